package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/store"
)

// ErrStaleAuthorization matches every *StaleAuthorizationError.
var ErrStaleAuthorization = errors.New("stale authorization")

// StaleAuthorizationError reports token claims that no longer agree with the
// canonical principal record. The client has to obtain a fresh token.
type StaleAuthorizationError struct {
	PrincipalID string
	Field       string
}

func (e *StaleAuthorizationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("stale authorization for %s: principal no longer exists", e.PrincipalID)
	}
	return fmt.Sprintf("stale authorization for %s: %s changed", e.PrincipalID, e.Field)
}

func (e *StaleAuthorizationError) Is(target error) bool {
	return target == ErrStaleAuthorization
}

// Resolver authenticates bearer tokens against the principal store.
type Resolver struct {
	tokens     *TokenManager
	principals store.PrincipalStore
}

func NewResolver(tokens *TokenManager, principals store.PrincipalStore) *Resolver {
	return &Resolver{tokens: tokens, principals: principals}
}

// Resolve validates the token and returns the canonical principal.
func (r *Resolver) Resolve(ctx context.Context, token string) (models.Principal, error) {
	claims, err := r.tokens.ValidateToken(token)
	if err != nil {
		return models.Principal{}, err
	}
	claimed, err := claims.Principal()
	if err != nil {
		return models.Principal{}, err
	}

	canonical, err := r.principals.GetPrincipal(ctx, claimed.ID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Principal{}, &StaleAuthorizationError{PrincipalID: claimed.ID}
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("load principal: %w", err)
	}
	if field := diff(claimed, canonical); field != "" {
		return models.Principal{}, &StaleAuthorizationError{PrincipalID: claimed.ID, Field: field}
	}
	return canonical, nil
}

// diff names the first authorization-relevant attribute that differs.
func diff(claimed, canonical models.Principal) string {
	switch {
	case claimed.Role != canonical.Role:
		return "role"
	case claimed.PermissionLevel != canonical.PermissionLevel:
		return "permission_level"
	case claimed.BranchID != canonical.BranchID:
		return "branch_id"
	case claimed.CompanyID != canonical.CompanyID:
		return "company_id"
	case claimed.HasCrossBranchAccess != canonical.HasCrossBranchAccess:
		return "cross_branch_access"
	}
	return ""
}
