// Package models defines the data structures shared across the application.
// These map to the PostgreSQL schema in internal/database.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the coarse role carried by a principal token
type Role string

const (
	RoleCustomer    Role = "customer"
	RoleInspector   Role = "inspector"
	RoleBranchAdmin Role = "branchAdmin"
	RoleSuperadmin  Role = "superadmin"
)

// Permission levels totally order the roles.
const (
	LevelCustomer    = -1
	LevelInspector   = 0
	LevelBranchAdmin = 1
	LevelSuperadmin  = 2
)

// MainBranch is the branch id that grants cross-branch visibility.
// Nothing outside NewPrincipal compares against it.
const MainBranch = "main"

// Level returns the permission level of a role and whether the role is known.
func (r Role) Level() (int, bool) {
	switch r {
	case RoleCustomer:
		return LevelCustomer, true
	case RoleInspector:
		return LevelInspector, true
	case RoleBranchAdmin:
		return LevelBranchAdmin, true
	case RoleSuperadmin:
		return LevelSuperadmin, true
	}
	return 0, false
}

// Principal is the authenticated actor evaluated by the permission system.
// It is built once per request and never mutated afterwards.
type Principal struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Role                 Role   `json:"role"`
	PermissionLevel      int    `json:"permission_level"`
	BranchID             string `json:"branch_id,omitempty"`
	CompanyID            string `json:"company_id,omitempty"`
	HasCrossBranchAccess bool   `json:"has_cross_branch_access"`
}

// NewPrincipal derives the permission level and the cross-branch capability
// from role and branch. Unknown roles get ok=false.
func NewPrincipal(id, name string, role Role, branchID, companyID string) (Principal, bool) {
	level, ok := role.Level()
	if !ok {
		return Principal{}, false
	}
	return Principal{
		ID:                   id,
		Name:                 name,
		Role:                 role,
		PermissionLevel:      level,
		BranchID:             branchID,
		CompanyID:            companyID,
		HasCrossBranchAccess: branchID == MainBranch && level >= LevelInspector,
	}, true
}

// Anonymous is the principal of an unauthenticated request.
func Anonymous() Principal {
	return Principal{PermissionLevel: LevelCustomer - 1}
}

// IsAnonymous reports whether the principal carries no identity.
func (p Principal) IsAnonymous() bool {
	return p.ID == "" || p.Role == ""
}

// ResourceKind names the entity family a Resource was projected from
type ResourceKind string

const (
	KindCustomer    ResourceKind = "customer"
	KindReport      ResourceKind = "report"
	KindOffer       ResourceKind = "offer"
	KindAppointment ResourceKind = "appointment"
)

// Resource is the authorization view shared by customers, reports, offers
// and appointments.
type Resource struct {
	ID        string       `json:"id"`
	Kind      ResourceKind `json:"kind"`
	BranchID  string       `json:"branch_id,omitempty"`
	CompanyID string       `json:"company_id,omitempty"`
	CreatedBy string       `json:"created_by"`
	IsPublic  bool         `json:"is_public,omitempty"`
}

// StatusEntry is one immutable record in an entity's status history.
type StatusEntry struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	ChangedBy     string    `json:"changed_by"`
	ChangedByName string    `json:"changed_by_name"`
	Reason        string    `json:"reason,omitempty"`
	PrevHash      string    `json:"prev_hash"`
	Hash          string    `json:"hash"`
}

// HistoryRecord is a status entry together with the entity it belongs to,
// as served by the audit feed.
type HistoryRecord struct {
	EntityKind ResourceKind `json:"entity_kind"`
	EntityID   string       `json:"entity_id"`
	Seq        int          `json:"seq"`
	StatusEntry
}

// Report is the inspection report an offer or appointment links to. Only the
// fields the core touches are modelled.
type Report struct {
	ID          string      `json:"id"`
	BranchID    string      `json:"branch_id,omitempty"`
	CompanyID   string      `json:"company_id,omitempty"`
	CreatedBy   string      `json:"created_by"`
	IsPublic    bool        `json:"is_public"`
	OfferStatus OfferStatus `json:"offer_status,omitempty"`
}

// Resource projects the report for authorization.
func (r Report) Resource() Resource {
	return Resource{
		ID:        r.ID,
		Kind:      KindReport,
		BranchID:  r.BranchID,
		CompanyID: r.CompanyID,
		CreatedBy: r.CreatedBy,
		IsPublic:  r.IsPublic,
	}
}

// NotificationKind identifies what the external sender should deliver
type NotificationKind string

const (
	NotifyOfferFollowUp  NotificationKind = "offer_follow_up"
	NotifyOfferEscalated NotificationKind = "offer_escalation"
	NotifyOfferAccepted  NotificationKind = "offer_accepted"
	NotifyOfferRejected  NotificationKind = "offer_rejected"
	NotifyOfferExpired   NotificationKind = "offer_expired"
)

// Notification is a dispatch request for the external e-mail sender.
type Notification struct {
	ID            uuid.UUID        `json:"id"`
	Kind          NotificationKind `json:"kind"`
	OfferID       string           `json:"offer_id"`
	ReportID      string           `json:"report_id"`
	BranchID      string           `json:"branch_id,omitempty"`
	CompanyID     string           `json:"company_id,omitempty"`
	RecipientRole Role             `json:"recipient_role"`
	Attempt       int              `json:"attempt,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// HealthStatus represents the server health check response
type HealthStatus struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Database   string `json:"database"`
	MerkleRoot string `json:"merkle_root,omitempty"`
}

// MerkleProof contains the Merkle proof for a specific history entry
type MerkleProof struct {
	LeafHash string      `json:"leaf_hash"`
	Root     string      `json:"root"`
	Proof    []ProofStep `json:"proof"`
	Index    int         `json:"index"`
	Verified bool        `json:"verified"`
}

// ProofStep is a single step in a Merkle proof path
type ProofStep struct {
	Hash     string `json:"hash"`
	Position string `json:"position"` // "left" | "right"
}

// Customer is a client company contact record.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BranchID  string    `json:"branch_id,omitempty"`
	CompanyID string    `json:"company_id,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Resource projects the customer for authorization.
func (c Customer) Resource() Resource {
	return Resource{
		ID:        c.ID,
		Kind:      KindCustomer,
		BranchID:  c.BranchID,
		CompanyID: c.CompanyID,
		CreatedBy: c.CreatedBy,
	}
}
