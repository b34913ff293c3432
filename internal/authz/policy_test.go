package authz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/besikta/inspection-server/internal/models"
)

// principalSpace covers consistent principals built from tokens plus
// hand-assembled ones whose role and level disagree, so the two rule
// encodings are compared on inputs NewPrincipal would never produce too.
func principalSpace() []models.Principal {
	var out []models.Principal
	ids := []string{"", "u1"}
	roles := []models.Role{"", models.RoleCustomer, models.RoleInspector, models.RoleBranchAdmin, models.RoleSuperadmin}
	branches := []string{"", "stockholm", models.MainBranch}
	companies := []string{"", "acme"}
	for _, id := range ids {
		for _, role := range roles {
			for _, branch := range branches {
				for _, company := range companies {
					if p, ok := models.NewPrincipal(id, "n", role, branch, company); ok {
						out = append(out, p)
					}
					for level := -2; level <= 3; level++ {
						for _, cross := range []bool{false, true} {
							out = append(out, models.Principal{
								ID:                   id,
								Role:                 role,
								PermissionLevel:      level,
								BranchID:             branch,
								CompanyID:            company,
								HasCrossBranchAccess: cross,
							})
						}
					}
				}
			}
		}
	}
	out = append(out, models.Anonymous())
	return out
}

func resourceSpace() []models.Resource {
	var out []models.Resource
	kinds := []models.ResourceKind{models.KindCustomer, models.KindReport, models.KindOffer, models.KindAppointment}
	for _, kind := range kinds {
		for _, branch := range []string{"", "stockholm", "goteborg"} {
			for _, company := range []string{"", "acme", "globex"} {
				for _, creator := range []string{"", "u1", "u2"} {
					for _, public := range []bool{false, true} {
						out = append(out, models.Resource{
							ID:        "r",
							Kind:      kind,
							BranchID:  branch,
							CompanyID: company,
							CreatedBy: creator,
							IsPublic:  public,
						})
					}
				}
			}
		}
	}
	return out
}

func TestPolicyMatchesEvaluator(t *testing.T) {
	principals := principalSpace()
	resources := resourceSpace()
	policies := map[Operation]Expr{}
	for _, op := range Operations {
		policies[op] = Policy(op)
	}

	checked := 0
	for _, p := range principals {
		pc := NewPermissionContext(p, "")
		for _, r := range resources {
			for _, op := range Operations {
				want := Evaluate(pc, r, op).Allowed
				got := policies[op].Eval(p, r)
				if want != got {
					t.Fatalf("divergence for %s: principal=%+v resource=%+v evaluator=%v policy=%v", op, p, r, want, got)
				}
				checked++
			}
		}
	}
	assert.Greater(t, checked, 100000)
}

func TestPolicyDeleteNeverLooserThanRead(t *testing.T) {
	read := Policy(OpRead)
	del := Policy(OpDelete)
	for _, p := range principalSpace() {
		for _, r := range resourceSpace() {
			if del.Eval(p, r) && !read.Eval(p, r) {
				t.Fatalf("delete allowed without read: principal=%+v resource=%+v", p, r)
			}
		}
	}
}

func TestPolicySQL(t *testing.T) {
	offers := Table{Name: "offers", Kind: models.KindOffer}
	appointments := Table{Name: "appointments", Kind: models.KindAppointment}

	readOffers := Policy(OpRead).SQL(offers)
	assert.Contains(t, readOffers, "COALESCE(is_public, FALSE)")
	assert.Contains(t, readOffers, "current_setting('app.cross_branch', true)")
	assert.Contains(t, readOffers, "company_id = COALESCE(current_setting('app.company_id', true), '')")

	readAppointments := Policy(OpRead).SQL(appointments)
	assert.NotContains(t, readAppointments, "is_public", "appointments are never public")

	deleteSQL := Policy(OpDelete).SQL(offers)
	assert.NotContains(t, deleteSQL, "created_by", "no ownership path grants delete")

	assert.Equal(t, strings.Count(readOffers, "("), strings.Count(readOffers, ")"))
}

func TestSessionSettings(t *testing.T) {
	p, _ := models.NewPrincipal("a1", "Anna", models.RoleBranchAdmin, models.MainBranch, "")
	s := SessionSettings(p)
	assert.Equal(t, "a1", s["app.principal_id"])
	assert.Equal(t, "1", s["app.permission_level"])
	assert.Equal(t, "true", s["app.cross_branch"])
}
