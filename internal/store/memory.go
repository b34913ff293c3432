package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/besikta/inspection-server/internal/models"
)

// Memory is a Store kept in process memory. One mutex serialises every
// write, which makes each Commit atomic.
type Memory struct {
	mu           sync.RWMutex
	offers       map[string]models.Offer
	appointments map[string]models.Appointment
	reports      map[string]models.Report
	customers    map[string]models.Customer
	principals   map[string]models.Principal
	history      []models.HistoryRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		offers:       make(map[string]models.Offer),
		appointments: make(map[string]models.Appointment),
		reports:      make(map[string]models.Report),
		customers:    make(map[string]models.Customer),
		principals:   make(map[string]models.Principal),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateOffer(ctx context.Context, o models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.offers[o.ID]; ok {
		return fmt.Errorf("offer %s already exists", o.ID)
	}
	if _, ok := m.reports[o.ReportID]; !ok {
		return fmt.Errorf("report %s: %w", o.ReportID, ErrNotFound)
	}
	m.offers[o.ID] = o.Clone()
	m.recordLocked(models.KindOffer, o.ID, o.StatusHistory, 0)
	return nil
}

func (m *Memory) GetOffer(ctx context.Context, id string) (models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.offers[id]
	if !ok {
		return models.Offer{}, fmt.Errorf("offer %s: %w", id, ErrNotFound)
	}
	return o.Clone(), nil
}

func (m *Memory) ListOffersByStatus(ctx context.Context, status models.OfferStatus) ([]models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Offer
	for _, o := range m.offers {
		if o.Status == status {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) CommitOffer(ctx context.Context, c OfferCommit) (models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.offers[c.Offer.ID]
	if !ok {
		return models.Offer{}, fmt.Errorf("offer %s: %w", c.Offer.ID, ErrNotFound)
	}
	if err := ValidateOfferCommit(current, c); err != nil {
		return models.Offer{}, err
	}
	var report models.Report
	if c.ReportOfferStatus != "" {
		report, ok = m.reports[current.ReportID]
		if !ok {
			return models.Offer{}, fmt.Errorf("report %s: %w", current.ReportID, ErrNotFound)
		}
	}

	next := c.Offer.Clone()
	next.Version = current.Version + 1
	m.offers[next.ID] = next
	m.recordLocked(models.KindOffer, next.ID, []models.StatusEntry{*c.Entry}, len(current.StatusHistory))
	if c.ReportOfferStatus != "" {
		report.OfferStatus = c.ReportOfferStatus
		m.reports[report.ID] = report
	}
	return next.Clone(), nil
}

func (m *Memory) CreateAppointment(ctx context.Context, a models.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[a.ID]; ok {
		return fmt.Errorf("appointment %s already exists", a.ID)
	}
	m.appointments[a.ID] = a.Clone()
	m.recordLocked(models.KindAppointment, a.ID, a.StatusHistory, 0)
	return nil
}

func (m *Memory) GetAppointment(ctx context.Context, id string) (models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return models.Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	return a.Clone(), nil
}

func (m *Memory) CommitAppointment(ctx context.Context, c AppointmentCommit) (models.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.appointments[c.Appointment.ID]
	if !ok {
		return models.Appointment{}, fmt.Errorf("appointment %s: %w", c.Appointment.ID, ErrNotFound)
	}
	if err := ValidateAppointmentCommit(current, c); err != nil {
		return models.Appointment{}, err
	}
	next := c.Appointment.Clone()
	next.Version = current.Version + 1
	m.appointments[next.ID] = next
	m.recordLocked(models.KindAppointment, next.ID, []models.StatusEntry{*c.Entry}, len(current.StatusHistory))
	return next.Clone(), nil
}

func (m *Memory) CreateReport(ctx context.Context, r models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[r.ID]; ok {
		return fmt.Errorf("report %s already exists", r.ID)
	}
	m.reports[r.ID] = r
	return nil
}

func (m *Memory) GetReport(ctx context.Context, id string) (models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return models.Report{}, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (m *Memory) CreateCustomer(ctx context.Context, c models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[c.ID]; ok {
		return fmt.Errorf("customer %s already exists", c.ID)
	}
	m.customers[c.ID] = c
	return nil
}

func (m *Memory) GetCustomer(ctx context.Context, id string) (models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return models.Customer{}, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (m *Memory) SavePrincipal(ctx context.Context, p models.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.principals[p.ID] = p
	return nil
}

func (m *Memory) GetPrincipal(ctx context.Context, id string) (models.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.principals[id]
	if !ok {
		return models.Principal{}, fmt.Errorf("principal %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *Memory) ListHistory(ctx context.Context, kind models.ResourceKind, entityID string) ([]models.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.HistoryRecord
	for _, rec := range m.history {
		if rec.EntityKind == kind && rec.EntityID == entityID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) RecentHistory(ctx context.Context, limit int) ([]models.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.HistoryRecord, 0, limit)
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.history[i])
	}
	return out, nil
}

func (m *Memory) AllHistoryHashes(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.history))
	for i, rec := range m.history {
		out[i] = rec.Hash
	}
	return out, nil
}

// recordLocked appends entries to the audit feed starting at sequence seq.
// Caller holds the write lock.
func (m *Memory) recordLocked(kind models.ResourceKind, id string, entries []models.StatusEntry, seq int) {
	for i, e := range entries {
		m.history = append(m.history, models.HistoryRecord{
			EntityKind:  kind,
			EntityID:    id,
			Seq:         seq + i,
			StatusEntry: e,
		})
	}
}
