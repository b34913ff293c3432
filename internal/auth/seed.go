package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/store"
)

// PrincipalRecord is one entry of a principals file. The permission level
// and cross-branch access are derived from the role and branch.
type PrincipalRecord struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Role      models.Role `json:"role"`
	BranchID  string      `json:"branch_id,omitempty"`
	CompanyID string      `json:"company_id,omitempty"`
}

// LoadPrincipals reads a JSON array of principal records and saves each one
// as a canonical principal. Nothing is saved when a record is invalid.
func LoadPrincipals(ctx context.Context, principals store.PrincipalStore, r io.Reader) ([]models.Principal, error) {
	var records []PrincipalRecord
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode principals: %w", err)
	}

	seen := make(map[string]bool, len(records))
	out := make([]models.Principal, 0, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("principal %d: id is required", i)
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("principal %s: duplicate id", rec.ID)
		}
		seen[rec.ID] = true
		p, ok := models.NewPrincipal(rec.ID, rec.Name, rec.Role, rec.BranchID, rec.CompanyID)
		if !ok {
			return nil, fmt.Errorf("principal %s: unknown role %q", rec.ID, rec.Role)
		}
		out = append(out, p)
	}

	for _, p := range out {
		if err := principals.SavePrincipal(ctx, p); err != nil {
			return nil, fmt.Errorf("save principal %s: %w", p.ID, err)
		}
	}
	return out, nil
}

// LoadPrincipalsFile is LoadPrincipals for a file on disk.
func LoadPrincipalsFile(ctx context.Context, principals store.PrincipalStore, path string) ([]models.Principal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open principals file: %w", err)
	}
	defer f.Close()
	return LoadPrincipals(ctx, principals, f)
}
