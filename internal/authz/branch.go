// Package authz decides whether a principal may perform an operation on a
// resource. Everything here is pure: no I/O, no logging, no shared state, so
// it is safe to call concurrently on every request.
package authz

import "github.com/besikta/inspection-server/internal/models"

// HasBranchAccess reports whether the principal's branch assignment covers
// resourceBranchID. A resource without a branch never matches; superadmins
// are handled by the evaluator before this is consulted.
func HasBranchAccess(p models.Principal, resourceBranchID string) bool {
	if resourceBranchID == "" {
		return false
	}
	if p.BranchID != "" && p.BranchID == resourceBranchID {
		return true
	}
	return p.HasCrossBranchAccess
}
