package authz

import (
	"fmt"
	"strings"

	"github.com/besikta/inspection-server/internal/models"
)

// Evaluate is procedural and ordered. The same rules are kept here as a
// declarative table of allow-conditions so they can be enforced
// a second time at the storage boundary (rendered as PostgreSQL row level
// security predicates). Policy(op).Eval must agree with Evaluate for every
// principal/resource pair; policy_test.go enumerates the attribute space to
// hold that.

type exprKind int

const (
	exprTrue exprKind = iota
	exprAnd
	exprOr
	exprNot
	exprAuthenticated
	exprPublicResource
	exprLevelAtLeast
	exprLevelEquals
	exprRoleIs
	exprCompanyMatch
	exprBranchAccess
	exprCreatorIsPrincipal
)

// Expr is a boolean condition over principal and resource attributes.
type Expr struct {
	kind  exprKind
	args  []Expr
	level int
	role  models.Role
}

func and(args ...Expr) Expr { return Expr{kind: exprAnd, args: args} }
func or(args ...Expr) Expr { return Expr{kind: exprOr, args: args} }
func not(arg Expr) Expr { return Expr{kind: exprNot, args: []Expr{arg}} }
func levelAtLeast(n int) Expr { return Expr{kind: exprLevelAtLeast, level: n} }
func levelEquals(n int) Expr { return Expr{kind: exprLevelEquals, level: n} }
func roleIs(r models.Role) Expr { return Expr{kind: exprRoleIs, role: r} }
func leaf(kind exprKind) Expr { return Expr{kind: kind} }
func alwaysFalse() Expr { return or() }
func authenticated() Expr { return leaf(exprAuthenticated) }
func branchAccess() Expr { return leaf(exprBranchAccess) }
func creatorIsPrincipal() Expr { return leaf(exprCreatorIsPrincipal) }
func notCustomer() Expr { return not(roleIs(models.RoleCustomer)) }
func opSet(ops ...Operation) []Operation { return ops }

// Rule is one allow-condition of the declarative table.
type Rule struct {
	Name string
	Ops  []Operation
	When Expr
}

// Rules is the declarative mirror of Evaluate.
var Rules = []Rule{
	{
		Name: "public_read",
		Ops:  opSet(OpRead),
		When: leaf(exprPublicResource),
	},
	{
		Name: "superadmin",
		Ops:  opSet(OpRead, OpCreate, OpUpdate, OpDelete),
		When: and(authenticated(), levelAtLeast(models.LevelSuperadmin)),
	},
	{
		Name: "customer_company",
		Ops:  opSet(OpRead, OpUpdate),
		When: and(authenticated(), roleIs(models.RoleCustomer), leaf(exprCompanyMatch)),
	},
	{
		Name: "branch_admin",
		Ops:  opSet(OpRead, OpCreate, OpUpdate, OpDelete),
		When: and(authenticated(), notCustomer(), levelAtLeast(models.LevelBranchAdmin), branchAccess()),
	},
	{
		Name: "inspector_read",
		Ops:  opSet(OpRead),
		When: and(authenticated(), notCustomer(), levelEquals(models.LevelInspector), branchAccess()),
	},
	{
		Name: "inspector_own",
		Ops:  opSet(OpCreate, OpUpdate),
		When: and(authenticated(), notCustomer(), levelEquals(models.LevelInspector), branchAccess(), creatorIsPrincipal()),
	},
}

// Policy returns the disjunction of every rule that grants op.
func Policy(op Operation) Expr {
	var terms []Expr
	for _, rule := range Rules {
		for _, o := range rule.Ops {
			if o == op {
				terms = append(terms, rule.When)
				break
			}
		}
	}
	if len(terms) == 0 {
		return alwaysFalse()
	}
	return or(terms...)
}

// Eval evaluates the condition in Go.
func (e Expr) Eval(p models.Principal, r models.Resource) bool {
	switch e.kind {
	case exprTrue:
		return true
	case exprAnd:
		for _, a := range e.args {
			if !a.Eval(p, r) {
				return false
			}
		}
		return true
	case exprOr:
		for _, a := range e.args {
			if a.Eval(p, r) {
				return true
			}
		}
		return false
	case exprNot:
		return !e.args[0].Eval(p, r)
	case exprAuthenticated:
		return !p.IsAnonymous()
	case exprPublicResource:
		return r.IsPublic && publicKind(r.Kind)
	case exprLevelAtLeast:
		return p.PermissionLevel >= e.level
	case exprLevelEquals:
		return p.PermissionLevel == e.level
	case exprRoleIs:
		return p.Role == e.role
	case exprCompanyMatch:
		return companyMatch(p, r)
	case exprBranchAccess:
		return HasBranchAccess(p, r.BranchID)
	case exprCreatorIsPrincipal:
		return r.CreatedBy == p.ID
	}
	return false
}

// Table describes how a resource kind is stored so predicates can be
// rendered against its columns.
type Table struct {
	Name string
	Kind models.ResourceKind
}

// Session settings the storage layer reads the principal from.
const (
	settingPrincipalID = "app.principal_id"
	settingRole        = "app.role"
	settingLevel       = "app.permission_level"
	settingBranchID    = "app.branch_id"
	settingCompanyID   = "app.company_id"
	settingCrossBranch = "app.cross_branch"
)

// SessionSettings returns the set_config values that describe p to the
// row level security predicates.
func SessionSettings(p models.Principal) map[string]string {
	return map[string]string{
		settingPrincipalID: p.ID,
		settingRole:        string(p.Role),
		settingLevel:       fmt.Sprint(p.PermissionLevel),
		settingBranchID:    p.BranchID,
		settingCompanyID:   p.CompanyID,
		settingCrossBranch: fmt.Sprint(p.HasCrossBranchAccess),
	}
}

func setting(name string) string {
	return fmt.Sprintf("COALESCE(current_setting('%s', true), '')", name)
}

// SQL renders the condition as a PostgreSQL boolean expression over the
// columns of t.
func (e Expr) SQL(t Table) string {
	switch e.kind {
	case exprTrue:
		return "TRUE"
	case exprAnd, exprOr:
		if len(e.args) == 0 {
			if e.kind == exprAnd {
				return "TRUE"
			}
			return "FALSE"
		}
		sep := " AND "
		if e.kind == exprOr {
			sep = " OR "
		}
		parts := make([]string, len(e.args))
		for i, a := range e.args {
			parts[i] = a.SQL(t)
		}
		return "(" + strings.Join(parts, sep) + ")"
	case exprNot:
		return "NOT " + e.args[0].SQL(t)
	case exprAuthenticated:
		return fmt.Sprintf("(%s <> '' AND %s <> '')", setting(settingPrincipalID), setting(settingRole))
	case exprPublicResource:
		if !publicKind(t.Kind) {
			return "FALSE"
		}
		return "COALESCE(is_public, FALSE)"
	case exprLevelAtLeast:
		return fmt.Sprintf("%s >= %d", levelSQL(), e.level)
	case exprLevelEquals:
		return fmt.Sprintf("%s = %d", levelSQL(), e.level)
	case exprRoleIs:
		return fmt.Sprintf("(%s = '%s')", setting(settingRole), e.role)
	case exprCompanyMatch:
		return fmt.Sprintf("(COALESCE(company_id, '') <> '' AND company_id = %s)", setting(settingCompanyID))
	case exprBranchAccess:
		return fmt.Sprintf("(COALESCE(branch_id, '') <> '' AND ((%s <> '' AND branch_id = %s) OR %s = 'true'))",
			setting(settingBranchID), setting(settingBranchID), setting(settingCrossBranch))
	case exprCreatorIsPrincipal:
		return fmt.Sprintf("(created_by = %s)", setting(settingPrincipalID))
	}
	return "FALSE"
}

func levelSQL() string {
	return fmt.Sprintf("COALESCE(NULLIF(current_setting('%s', true), ''), '-2')::int", settingLevel)
}
