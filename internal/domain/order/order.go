package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/organization"
)

// ErrNotFound is returned by repositories when an order id does not exist.
var ErrNotFound = errors.New("order not found")

// Order aggregates line items into a priced, referenced sales order.
type Order struct {
	ID string

	// Reference is the human-readable identifier {shortCode}-{year}-{referenceId}.
	// Empty until allocation; immutable once set.
	Reference string
	// ReferenceID is the sequential component of Reference, unique per
	// organization. Zero until allocation.
	ReferenceID int64

	// TargetOrganization is the external registry id used to resolve the
	// owning organization when Organization is not set yet.
	TargetOrganization string
	Organization       *organization.Organization

	Items []OrderItem

	// Price, PriceCurrency and Taxes are derived from Items and recomputed
	// before every persist.
	Price         decimal.Decimal
	PriceCurrency string
	Taxes         TaxBreakdown

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is a single line of an order. Price is the unit price in major
// currency units; see ParseUnitPrice for how wire representations are
// normalized into it.
type OrderItem struct {
	OrderID       string
	Price         decimal.Decimal
	PriceCurrency string
	Quantity      int64
	Taxes         []Tax
}

// Tax is a tax definition attached to an order item.
type Tax struct {
	Percentage decimal.Decimal
}

// AddItem appends an item to the order and sets its back-reference.
func (o *Order) AddItem(item OrderItem) {
	item.OrderID = o.ID
	o.Items = append(o.Items, item)
}

// RemoveItem deletes the item at the given position, preserving item order.
func (o *Order) RemoveItem(i int) {
	if i < 0 || i >= len(o.Items) {
		return
	}
	o.Items = append(o.Items[:i], o.Items[i+1:]...)
}

// SetItems replaces the order's items wholesale, syncing back-references.
func (o *Order) SetItems(items []OrderItem) {
	o.Items = o.Items[:0]
	for _, item := range items {
		o.AddItem(item)
	}
}

// AssignReference records the allocated reference on the order. An order
// keeps its first reference forever: assigning to an already referenced
// order is a no-op and reports false.
func (o *Order) AssignReference(id int64, ref string) bool {
	if o.Reference != "" {
		return false
	}
	o.ReferenceID = id
	o.Reference = ref
	return true
}

// Referenced reports whether the order already carries a reference.
func (o *Order) Referenced() bool { return o.Reference != "" }

// ApplyTotals writes a computed totals result back onto the order.
func (o *Order) ApplyTotals(t *Totals) {
	o.Price = t.Price
	o.PriceCurrency = t.Currency
	o.Taxes = t.Taxes
}

// Repository defines persistence operations for orders. Create and Update
// persist the order together with its items atomically.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context) ([]Order, error)
}
