package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/besikta/inspection-server/internal/authz"
	"github.com/besikta/inspection-server/internal/models"
)

// Tables lists the row-secured tables and the resource kind stored in each.
var Tables = []authz.Table{
	{Name: "customers", Kind: models.KindCustomer},
	{Name: "reports", Kind: models.KindReport},
	{Name: "offers", Kind: models.KindOffer},
	{Name: "appointments", Kind: models.KindAppointment},
}

var commands = map[authz.Operation]string{
	authz.OpRead:   "SELECT",
	authz.OpCreate: "INSERT",
	authz.OpUpdate: "UPDATE",
	authz.OpDelete: "DELETE",
}

// PolicyName is the name of the policy guarding op on table.
func PolicyName(table string, op authz.Operation) string {
	return fmt.Sprintf("%s_%s", table, op)
}

// PolicyStatements renders the row level security policies of every table
// from authz.Policy. RLS is enabled, not forced, so the owning service role
// keeps full access and every other role is held to the rule table.
func PolicyStatements() []string {
	var stmts []string
	for _, t := range Tables {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", t.Name))
		for _, op := range authz.Operations {
			name := PolicyName(t.Name, op)
			pred := authz.Policy(op).SQL(t)
			stmts = append(stmts, fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", name, t.Name))

			var clause string
			switch op {
			case authz.OpCreate:
				clause = fmt.Sprintf("WITH CHECK (%s)", pred)
			case authz.OpUpdate:
				clause = fmt.Sprintf("USING (%s) WITH CHECK (%s)", pred, pred)
			default:
				clause = fmt.Sprintf("USING (%s)", pred)
			}
			stmts = append(stmts, fmt.Sprintf("CREATE POLICY %s ON %s FOR %s %s", name, t.Name, commands[op], clause))
		}
	}
	return stmts
}

// ApplySession publishes p to the policies of the current transaction.
func ApplySession(ctx context.Context, tx pgx.Tx, p models.Principal) error {
	settings := authz.SessionSettings(p)
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", k, settings[k]); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}
