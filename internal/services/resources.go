package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/besikta/inspection-server/internal/authz"
	"github.com/besikta/inspection-server/internal/models"
)

// CustomerService handles customer records
type CustomerService struct {
	Deps
}

func NewCustomerService(deps Deps) *CustomerService {
	return &CustomerService{Deps: deps}
}

func (s *CustomerService) Get(ctx context.Context, pc authz.PermissionContext, id string) (models.Customer, error) {
	c, err := s.Store.GetCustomer(ctx, id)
	if err != nil {
		return models.Customer{}, err
	}
	if err := authz.Authorize(pc, c.Resource(), authz.OpRead); err != nil {
		return models.Customer{}, err
	}
	return c, nil
}

// Create stores a customer in the caller's branch unless one is given.
func (s *CustomerService) Create(ctx context.Context, pc authz.PermissionContext, req models.Customer) (models.Customer, error) {
	if strings.TrimSpace(req.Name) == "" {
		return models.Customer{}, invalid("name is required")
	}
	c := models.Customer{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		BranchID:  req.BranchID,
		CompanyID: req.CompanyID,
		CreatedBy: pc.Principal.ID,
		CreatedAt: s.now().UTC(),
	}
	if c.BranchID == "" {
		c.BranchID = pc.Principal.BranchID
	}
	if err := authz.Authorize(pc, c.Resource(), authz.OpCreate); err != nil {
		return models.Customer{}, err
	}
	if err := s.Store.CreateCustomer(ctx, c); err != nil {
		return models.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	s.Logger.Infow("Customer created", "customer_id", c.ID, "branch_id", c.BranchID, "request_id", pc.RequestID)
	return c, nil
}

// ReportService handles the report records offers and appointments link to
type ReportService struct {
	Deps
}

func NewReportService(deps Deps) *ReportService {
	return &ReportService{Deps: deps}
}

func (s *ReportService) Get(ctx context.Context, pc authz.PermissionContext, id string) (models.Report, error) {
	r, err := s.Store.GetReport(ctx, id)
	if err != nil {
		return models.Report{}, err
	}
	if err := authz.Authorize(pc, r.Resource(), authz.OpRead); err != nil {
		return models.Report{}, err
	}
	return r, nil
}

// Create stores a report. OfferStatus is owned by the offer lifecycle and is
// ignored on input.
func (s *ReportService) Create(ctx context.Context, pc authz.PermissionContext, req models.Report) (models.Report, error) {
	r := models.Report{
		ID:        uuid.NewString(),
		BranchID:  req.BranchID,
		CompanyID: req.CompanyID,
		CreatedBy: pc.Principal.ID,
		IsPublic:  req.IsPublic,
	}
	if r.BranchID == "" {
		r.BranchID = pc.Principal.BranchID
	}
	if err := authz.Authorize(pc, r.Resource(), authz.OpCreate); err != nil {
		return models.Report{}, err
	}
	if err := s.Store.CreateReport(ctx, r); err != nil {
		return models.Report{}, fmt.Errorf("create report: %w", err)
	}
	s.Logger.Infow("Report created", "report_id", r.ID, "branch_id", r.BranchID, "request_id", pc.RequestID)
	return r, nil
}
