package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/authz"
	"github.com/besikta/inspection-server/internal/lifecycle"
	"github.com/besikta/inspection-server/internal/lock"
	"github.com/besikta/inspection-server/internal/metrics"
	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/notify"
	"github.com/besikta/inspection-server/internal/store"
)

// clock is a settable time source shared by services and tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func principal(t *testing.T, id string, role models.Role, branch, company string) models.Principal {
	t.Helper()
	p, ok := models.NewPrincipal(id, id, role, branch, company)
	require.True(t, ok)
	return p
}

func pc(p models.Principal) authz.PermissionContext {
	return authz.NewPermissionContext(p, "req-test")
}

type fixture struct {
	store        *store.Memory
	notifier     *notify.Recorder
	clock        *clock
	locker       *lock.Memory
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	offers       *OfferService
	appointments *AppointmentService
	history      *HistoryService
	scheduler    *FollowUpScheduler

	inspector  models.Principal
	outsider   models.Principal
	admin      models.Principal
	customer   models.Principal
	superadmin models.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemory(),
		notifier: &notify.Recorder{},
		clock:    &clock{now: day(2025, 1, 1)},
		locker:   lock.NewMemory(),
		registry: prometheus.NewRegistry(),
	}
	f.metrics = metrics.New(f.registry)
	deps := f.deps(f.store)
	f.offers = NewOfferService(deps, lifecycle.DefaultFollowUpPolicy())
	f.appointments = NewAppointmentService(deps, lifecycle.AppointmentPolicy{})
	f.history = NewHistoryService(deps)
	f.scheduler = NewFollowUpScheduler(f.offers, f.locker)

	f.inspector = principal(t, "i1", models.RoleInspector, "stockholm", "")
	f.outsider = principal(t, "i2", models.RoleInspector, "goteborg", "")
	f.admin = principal(t, "a1", models.RoleBranchAdmin, "stockholm", "")
	f.customer = principal(t, "c1", models.RoleCustomer, "", "acme")
	f.superadmin = principal(t, "s1", models.RoleSuperadmin, "", "")

	require.NoError(t, f.store.CreateReport(context.Background(), models.Report{
		ID:        "r1",
		BranchID:  "stockholm",
		CompanyID: "acme",
		CreatedBy: "i1",
	}))
	return f
}

func (f *fixture) deps(st store.Store) Deps {
	return Deps{
		Store:         st,
		Notifier:      f.notifier,
		Metrics:       f.metrics,
		Logger:        zap.NewNop().Sugar(),
		CommitRetries: 3,
		Now:           f.clock.Now,
	}
}

// sentOffer creates and sends an offer valid until the end of January.
func (f *fixture) sentOffer(t *testing.T) models.Offer {
	t.Helper()
	ctx := context.Background()
	o, err := f.offers.Create(ctx, pc(f.inspector), models.NewOffer{
		ReportID:   "r1",
		ValidUntil: time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC),
	})
	require.NoError(t, err)
	o, err = f.offers.Send(ctx, pc(f.inspector), o.ID)
	require.NoError(t, err)
	return o
}

// counter reads a counter sample from the fixture's registry.
func (f *fixture) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func (f *fixture) transitions(t *testing.T, entity, transition, outcome string) float64 {
	return f.counter(t, "inspection_transitions_total", map[string]string{
		"entity":     entity,
		"transition": transition,
		"outcome":    outcome,
	})
}
