package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/organization"
	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/reference"
)

// ErrMissingOrganization is returned when an order carries neither a resolved
// organization nor a target organization identifier to resolve one from.
var ErrMissingOrganization = errors.New("target organization required")

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	Position int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for item %d", e.Position)
}

// CreateOrderRequest holds the input for registering a new order.
type CreateOrderRequest struct {
	TargetOrganization string
	Items              []OrderItem
}

// Service encapsulates the order registration flow: organization resolution,
// reference allocation and totals computation around persistence.
type Service struct {
	orders    Repository
	orgs      organization.Repository
	allocator *reference.Allocator
	calc      *Calculator
	now       func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	orgs organization.Repository,
	allocator *reference.Allocator,
	calc *Calculator,
) *Service {
	return &Service{
		orders:    orders,
		orgs:      orgs,
		allocator: allocator,
		calc:      calc,
		now:       time.Now,
	}
}

// Create registers a new order: it resolves the owning organization,
// allocates the order's reference, computes totals from the items, and
// persists the result. Any failure aborts the flow; no partial order is
// written.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	o := &Order{
		ID:                 uuid.New().String(),
		TargetOrganization: req.TargetOrganization,
		CreatedAt:          s.now(),
	}
	o.UpdatedAt = o.CreatedAt
	o.SetItems(req.Items)

	if err := s.resolveOrganization(ctx, o); err != nil {
		return nil, err
	}

	// Reference allocation happens exactly once, on the creation path.
	if !o.Referenced() {
		asn, err := s.allocator.Allocate(ctx, o.Organization)
		if err != nil {
			return nil, errors.Wrap(err, "allocate reference")
		}
		o.AssignReference(asn.ReferenceID, asn.Reference)
	}

	totals, err := s.calc.Compute(o.Items)
	if err != nil {
		return nil, err
	}
	o.ApplyTotals(totals)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// Update replaces the order's items and recomputes its totals. The reference
// and reference id are never touched on this path.
func (s *Service) Update(ctx context.Context, id string, items []OrderItem) (*Order, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	o.SetItems(items)

	totals, err := s.calc.Compute(o.Items)
	if err != nil {
		return nil, err
	}
	o.ApplyTotals(totals)
	o.UpdatedAt = s.now()

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// Get returns a single order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// List returns all registered orders.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// resolveOrganization attaches the owning organization to the order, looking
// it up (or creating it) from the target organization id when it is not
// resolved yet.
func (s *Service) resolveOrganization(ctx context.Context, o *Order) error {
	if o.Organization != nil {
		return nil
	}
	if o.TargetOrganization == "" {
		return &organization.ResolutionError{ExternalID: "", Err: ErrMissingOrganization}
	}
	org, err := s.orgs.FindOrCreateByExternalID(ctx, o.TargetOrganization)
	if err != nil {
		return &organization.ResolutionError{ExternalID: o.TargetOrganization, Err: err}
	}
	o.Organization = org
	return nil
}

func validateItems(items []OrderItem) error {
	for i, item := range items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{Position: i}
		}
	}
	return nil
}
