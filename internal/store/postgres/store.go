// Package postgres implements store.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const offerColumns = `id, report_id, COALESCE(branch_id, ''), COALESCE(company_id, ''), created_by, is_public,
	status, sent_at, valid_until, follow_up_attempts, last_follow_up_at, escalated_at, responded_at,
	COALESCE(customer_response, ''), version, created_at`

const appointmentColumns = `id, COALESCE(branch_id, ''), COALESCE(company_id, ''), created_by, status,
	COALESCE(report_id, ''), assigned_inspector_id, scheduled_at, version, created_at`

func scanOffer(row pgx.Row) (models.Offer, error) {
	var o models.Offer
	err := row.Scan(&o.ID, &o.ReportID, &o.BranchID, &o.CompanyID, &o.CreatedBy, &o.IsPublic,
		&o.Status, &o.SentAt, &o.ValidUntil, &o.FollowUpAttempts, &o.LastFollowUpAt, &o.EscalatedAt,
		&o.RespondedAt, &o.CustomerResponse, &o.Version, &o.CreatedAt)
	return o, err
}

func scanAppointment(row pgx.Row) (models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(&a.ID, &a.BranchID, &a.CompanyID, &a.CreatedBy, &a.Status,
		&a.ReportID, &a.AssignedInspectorID, &a.ScheduledAt, &a.Version, &a.CreatedAt)
	return a, err
}

func notFound(kind models.ResourceKind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) CreateOffer(ctx context.Context, o models.Offer) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)`, o.ReportID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("report %s: %w", o.ReportID, store.ErrNotFound)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO offers (id, report_id, branch_id, company_id, created_by, is_public, status, sent_at,
			valid_until, follow_up_attempts, last_follow_up_at, escalated_at, responded_at, customer_response,
			version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		o.ID, o.ReportID, nullable(o.BranchID), nullable(o.CompanyID), o.CreatedBy, o.IsPublic, o.Status, o.SentAt,
		o.ValidUntil, o.FollowUpAttempts, o.LastFollowUpAt, o.EscalatedAt, o.RespondedAt, nullable(o.CustomerResponse),
		o.Version, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	if err = insertHistory(ctx, tx, models.KindOffer, o.ID, 0, o.StatusHistory...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetOffer(ctx context.Context, id string) (models.Offer, error) {
	o, err := scanOffer(s.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
	if err != nil {
		return models.Offer{}, notFound(models.KindOffer, id, err)
	}
	if o.StatusHistory, err = loadEntries(ctx, s.pool, models.KindOffer, id); err != nil {
		return models.Offer{}, err
	}
	return o, nil
}

func (s *Store) ListOffersByStatus(ctx context.Context, status models.OfferStatus) ([]models.Offer, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+offerColumns+` FROM offers WHERE status = $1 ORDER BY created_at, id`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range offers {
		if offers[i].StatusHistory, err = loadEntries(ctx, s.pool, models.KindOffer, offers[i].ID); err != nil {
			return nil, err
		}
	}
	return offers, nil
}

// CommitOffer locks the row, validates the commit against the locked state
// and writes offer, history entry and report propagation in one
// transaction. The version predicate on the UPDATE is kept as a second
// guard.
func (s *Store) CommitOffer(ctx context.Context, c store.OfferCommit) (_ models.Offer, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Offer{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := scanOffer(tx.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1 FOR UPDATE`, c.Offer.ID))
	if err != nil {
		return models.Offer{}, notFound(models.KindOffer, c.Offer.ID, err)
	}
	if current.StatusHistory, err = loadEntries(ctx, tx, models.KindOffer, current.ID); err != nil {
		return models.Offer{}, err
	}
	if err = store.ValidateOfferCommit(current, c); err != nil {
		return models.Offer{}, err
	}

	o := c.Offer
	tag, err := tx.Exec(ctx, `
		UPDATE offers SET status = $2, sent_at = $3, follow_up_attempts = $4, last_follow_up_at = $5,
			escalated_at = $6, responded_at = $7, customer_response = $8, version = version + 1
		WHERE id = $1 AND version = $9`,
		o.ID, o.Status, o.SentAt, o.FollowUpAttempts, o.LastFollowUpAt, o.EscalatedAt, o.RespondedAt,
		nullable(o.CustomerResponse), c.ExpectedVersion)
	if err != nil {
		return models.Offer{}, fmt.Errorf("update offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Offer{}, store.ErrConflict
	}
	if err = insertHistory(ctx, tx, models.KindOffer, o.ID, len(current.StatusHistory), *c.Entry); err != nil {
		return models.Offer{}, err
	}
	if c.ReportOfferStatus != "" {
		tag, err = tx.Exec(ctx, `UPDATE reports SET offer_status = $2 WHERE id = $1`, current.ReportID, c.ReportOfferStatus)
		if err != nil {
			return models.Offer{}, fmt.Errorf("propagate offer status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.Offer{}, fmt.Errorf("report %s: %w", current.ReportID, store.ErrNotFound)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Offer{}, err
	}

	next := o.Clone()
	next.Version = current.Version + 1
	return next, nil
}

func (s *Store) CreateAppointment(ctx context.Context, a models.Appointment) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, branch_id, company_id, created_by, status, report_id,
			assigned_inspector_id, scheduled_at, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, nullable(a.BranchID), nullable(a.CompanyID), a.CreatedBy, a.Status, nullable(a.ReportID),
		a.AssignedInspectorID, a.ScheduledAt, a.Version, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	if err = insertHistory(ctx, tx, models.KindAppointment, a.ID, 0, a.StatusHistory...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetAppointment(ctx context.Context, id string) (models.Appointment, error) {
	a, err := scanAppointment(s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return models.Appointment{}, notFound(models.KindAppointment, id, err)
	}
	if a.StatusHistory, err = loadEntries(ctx, s.pool, models.KindAppointment, id); err != nil {
		return models.Appointment{}, err
	}
	return a, nil
}

func (s *Store) CommitAppointment(ctx context.Context, c store.AppointmentCommit) (_ models.Appointment, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Appointment{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, c.Appointment.ID))
	if err != nil {
		return models.Appointment{}, notFound(models.KindAppointment, c.Appointment.ID, err)
	}
	if current.StatusHistory, err = loadEntries(ctx, tx, models.KindAppointment, current.ID); err != nil {
		return models.Appointment{}, err
	}
	if err = store.ValidateAppointmentCommit(current, c); err != nil {
		return models.Appointment{}, err
	}

	a := c.Appointment
	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET status = $2, report_id = $3, version = version + 1
		WHERE id = $1 AND version = $4`,
		a.ID, a.Status, nullable(a.ReportID), c.ExpectedVersion)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Appointment{}, store.ErrConflict
	}
	if err = insertHistory(ctx, tx, models.KindAppointment, a.ID, len(current.StatusHistory), *c.Entry); err != nil {
		return models.Appointment{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Appointment{}, err
	}

	next := a.Clone()
	next.Version = current.Version + 1
	return next, nil
}

func (s *Store) CreateReport(ctx context.Context, r models.Report) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reports (id, branch_id, company_id, created_by, is_public, offer_status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, nullable(r.BranchID), nullable(r.CompanyID), r.CreatedBy, r.IsPublic, nullable(string(r.OfferStatus)))
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id string) (models.Report, error) {
	var r models.Report
	err := s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(branch_id, ''), COALESCE(company_id, ''), created_by, is_public, COALESCE(offer_status, '')
		FROM reports WHERE id = $1`, id).
		Scan(&r.ID, &r.BranchID, &r.CompanyID, &r.CreatedBy, &r.IsPublic, &r.OfferStatus)
	if err != nil {
		return models.Report{}, notFound(models.KindReport, id, err)
	}
	return r, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c models.Customer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (id, name, branch_id, company_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, nullable(c.BranchID), nullable(c.CompanyID), c.CreatedBy, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (models.Customer, error) {
	var c models.Customer
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(branch_id, ''), COALESCE(company_id, ''), created_by, created_at
		FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.BranchID, &c.CompanyID, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return models.Customer{}, notFound(models.KindCustomer, id, err)
	}
	return c, nil
}

func (s *Store) SavePrincipal(ctx context.Context, p models.Principal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO principals (id, name, role, branch_id, company_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role,
			branch_id = EXCLUDED.branch_id, company_id = EXCLUDED.company_id`,
		p.ID, p.Name, p.Role, nullable(p.BranchID), nullable(p.CompanyID))
	if err != nil {
		return fmt.Errorf("upsert principal: %w", err)
	}
	return nil
}

// GetPrincipal rebuilds the principal through models.NewPrincipal so level
// and cross-branch access are always derived, never stored.
func (s *Store) GetPrincipal(ctx context.Context, id string) (models.Principal, error) {
	var (
		name, branchID, companyID string
		role                      models.Role
	)
	err := s.pool.QueryRow(ctx, `
		SELECT name, role, COALESCE(branch_id, ''), COALESCE(company_id, '')
		FROM principals WHERE id = $1`, id).Scan(&name, &role, &branchID, &companyID)
	if err != nil {
		return models.Principal{}, notFound("principal", id, err)
	}
	p, ok := models.NewPrincipal(id, name, role, branchID, companyID)
	if !ok {
		return models.Principal{}, fmt.Errorf("principal %s has unknown role %q", id, role)
	}
	return p, nil
}

func (s *Store) ListHistory(ctx context.Context, kind models.ResourceKind, entityID string) ([]models.HistoryRecord, error) {
	return queryHistory(ctx, s.pool, `
		SELECT `+historyColumns+` FROM status_history
		WHERE entity_kind = $1 AND entity_id = $2 ORDER BY seq`, kind, entityID)
}

func (s *Store) RecentHistory(ctx context.Context, limit int) ([]models.HistoryRecord, error) {
	return queryHistory(ctx, s.pool, `
		SELECT `+historyColumns+` FROM status_history ORDER BY id DESC LIMIT $1`, limit)
}

func (s *Store) AllHistoryHashes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT hash FROM status_history ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const historyColumns = `entity_kind, entity_id, seq, status, changed_at, changed_by, changed_by_name, reason, prev_hash, hash`

func queryHistory(ctx context.Context, q queryer, sql string, args ...any) ([]models.HistoryRecord, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		var rec models.HistoryRecord
		if err := rows.Scan(&rec.EntityKind, &rec.EntityID, &rec.Seq, &rec.Status, &rec.Timestamp,
			&rec.ChangedBy, &rec.ChangedByName, &rec.Reason, &rec.PrevHash, &rec.Hash); err != nil {
			return nil, err
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func loadEntries(ctx context.Context, q queryer, kind models.ResourceKind, id string) ([]models.StatusEntry, error) {
	records, err := queryHistory(ctx, q, `
		SELECT `+historyColumns+` FROM status_history
		WHERE entity_kind = $1 AND entity_id = $2 ORDER BY seq`, kind, id)
	if err != nil {
		return nil, err
	}
	var entries []models.StatusEntry
	for _, rec := range records {
		entries = append(entries, rec.StatusEntry)
	}
	return entries, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, kind models.ResourceKind, id string, seq int, entries ...models.StatusEntry) error {
	for i, e := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO status_history (entity_kind, entity_id, seq, status, changed_at, changed_by,
				changed_by_name, reason, prev_hash, hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			kind, id, seq+i, e.Status, e.Timestamp.UTC().Truncate(time.Microsecond), e.ChangedBy,
			e.ChangedByName, e.Reason, e.PrevHash, e.Hash)
		if err != nil {
			return fmt.Errorf("insert history entry: %w", err)
		}
	}
	return nil
}
