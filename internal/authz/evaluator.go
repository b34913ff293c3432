package authz

import (
	"errors"
	"fmt"

	"github.com/besikta/inspection-server/internal/models"
)

// Operation is what the principal wants to do with the resource
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations lists every operation in evaluation-table order.
var Operations = []Operation{OpRead, OpCreate, OpUpdate, OpDelete}

// DenyReason explains a denied decision
type DenyReason string

const (
	ReasonRoleInsufficient DenyReason = "role-insufficient"
	ReasonBranchMismatch   DenyReason = "branch-mismatch"
	ReasonNotOwner         DenyReason = "not-owner"
	ReasonNotPublic        DenyReason = "not-public"
)

// ErrPermissionDenied matches every *PermissionDeniedError via errors.Is.
var ErrPermissionDenied = errors.New("permission denied")

// PermissionDeniedError is returned when the evaluator denies an operation.
type PermissionDeniedError struct {
	Reason DenyReason
	Op     Operation
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s on %s", e.Reason, e.Op)
}

// Is lets errors.Is(err, ErrPermissionDenied) match.
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// PermissionContext is the explicit authorization input threaded through
// every service call. Nothing reads the principal from ambient state.
type PermissionContext struct {
	Principal models.Principal
	RequestID string
}

// NewPermissionContext wraps a resolved principal.
func NewPermissionContext(p models.Principal, requestID string) PermissionContext {
	return PermissionContext{Principal: p, RequestID: requestID}
}

// Decision is the evaluator's verdict. The zero value is a deny.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow is the allowing decision.
var Allow = Decision{Allowed: true}

// Deny builds a denying decision.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Err converts a deny into a *PermissionDeniedError and an allow into nil.
func (d Decision) Err(op Operation) error {
	if d.Allowed {
		return nil
	}
	return &PermissionDeniedError{Reason: d.Reason, Op: op}
}

// Evaluate decides op on r for the principal in pc. Rules are checked in
// order and the first match wins.
func Evaluate(pc PermissionContext, r models.Resource, op Operation) Decision {
	p := pc.Principal

	if op == OpRead && r.IsPublic && publicKind(r.Kind) {
		return Allow
	}
	if p.IsAnonymous() {
		return Deny(ReasonNotPublic)
	}
	if p.PermissionLevel >= models.LevelSuperadmin {
		return Allow
	}
	if p.Role == models.RoleCustomer {
		return evaluateCustomer(p, r, op)
	}
	if p.PermissionLevel >= models.LevelBranchAdmin {
		if HasBranchAccess(p, r.BranchID) {
			return Allow
		}
		return Deny(ReasonBranchMismatch)
	}
	if p.PermissionLevel == models.LevelInspector {
		return evaluateInspector(p, r, op)
	}
	return Deny(ReasonRoleInsufficient)
}

// Authorize is Evaluate returning an error for call sites that only need to
// stop on a deny.
func Authorize(pc PermissionContext, r models.Resource, op Operation) error {
	return Evaluate(pc, r, op).Err(op)
}

// customers are scoped by company only; branch fields are ignored
func evaluateCustomer(p models.Principal, r models.Resource, op Operation) Decision {
	if op != OpRead && op != OpUpdate {
		return Deny(ReasonRoleInsufficient)
	}
	if companyMatch(p, r) {
		return Allow
	}
	return Deny(ReasonNotOwner)
}

func evaluateInspector(p models.Principal, r models.Resource, op Operation) Decision {
	if op == OpDelete {
		return Deny(ReasonRoleInsufficient)
	}
	if !HasBranchAccess(p, r.BranchID) {
		return Deny(ReasonBranchMismatch)
	}
	if op == OpRead {
		return Allow
	}
	if r.CreatedBy != p.ID {
		return Deny(ReasonNotOwner)
	}
	return Allow
}

func companyMatch(p models.Principal, r models.Resource) bool {
	return r.CompanyID != "" && r.CompanyID == p.CompanyID
}

func publicKind(k models.ResourceKind) bool {
	return k == models.KindOffer || k == models.KindReport
}
