package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/order"
	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/organization"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Orders
// and their items are written in one transaction; items are replaced
// wholesale on update.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// itemTax is the JSONB shape of a tax definition on an order item.
type itemTax struct {
	Percentage decimal.Decimal `json:"percentage"`
}

// Create persists a new order with its items.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		taxes, err := json.Marshal(o.Taxes)
		if err != nil {
			return errors.Wrap(err, "marshal taxes")
		}

		const q = `
			INSERT INTO orders (id, reference, reference_id, target_organization,
				organization_id, price, price_currency, taxes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		_, err = tx.Exec(ctx, q,
			o.ID,
			nullString(o.Reference),
			nullInt64(o.ReferenceID),
			o.TargetOrganization,
			o.Organization.ID,
			o.Price,
			o.PriceCurrency,
			taxes,
			o.CreatedAt,
			o.UpdatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order %q", o.ID)
		}

		return insertItems(ctx, tx, o)
	})
}

// Update rewrites the order's derived fields and replaces its items. The
// reference columns are deliberately not part of the statement.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		taxes, err := json.Marshal(o.Taxes)
		if err != nil {
			return errors.Wrap(err, "marshal taxes")
		}

		const q = `
			UPDATE orders
			SET price = $2, price_currency = $3, taxes = $4, updated_at = $5
			WHERE id = $1`
		tag, err := tx.Exec(ctx, q, o.ID, o.Price, o.PriceCurrency, taxes, o.UpdatedAt)
		if err != nil {
			return errors.Wrapf(err, "update order %q", o.ID)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
			return errors.Wrapf(err, "delete items of %q", o.ID)
		}
		return insertItems(ctx, tx, o)
	})
}

// GetByID loads an order with its items and owning organization.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	const q = `
		SELECT o.id, o.reference, o.reference_id, o.target_organization,
			o.price, o.price_currency, o.taxes, o.created_at, o.updated_at,
			g.id, g.external_id, g.short_code
		FROM orders o
		JOIN organizations g ON g.id = o.organization_id
		WHERE o.id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns all orders with their items, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	const q = `
		SELECT o.id, o.reference, o.reference_id, o.target_organization,
			o.price, o.price_currency, o.taxes, o.created_at, o.updated_at,
			g.id, g.external_id, g.short_code
		FROM orders o
		JOIN organizations g ON g.id = o.organization_id
		ORDER BY o.created_at DESC, o.id`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	for i := range orders {
		if err := r.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, o *order.Order) error {
	const q = `
		SELECT price, price_currency, quantity, taxes
		FROM order_items
		WHERE order_id = $1
		ORDER BY position`

	rows, err := r.pool.Query(ctx, q, o.ID)
	if err != nil {
		return errors.Wrapf(err, "load items of %q", o.ID)
	}
	defer rows.Close()

	for rows.Next() {
		item := order.OrderItem{OrderID: o.ID}
		var taxes []byte
		if err := rows.Scan(&item.Price, &item.PriceCurrency, &item.Quantity, &taxes); err != nil {
			return errors.Wrap(err, "scan item")
		}
		var parsed []itemTax
		if err := json.Unmarshal(taxes, &parsed); err != nil {
			return errors.Wrap(err, "unmarshal item taxes")
		}
		for _, t := range parsed {
			item.Taxes = append(item.Taxes, order.Tax{Percentage: t.Percentage})
		}
		o.Items = append(o.Items, item)
	}
	return rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	const q = `
		INSERT INTO order_items (order_id, position, price, price_currency, quantity, taxes)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for i, item := range o.Items {
		taxes := make([]itemTax, len(item.Taxes))
		for j, t := range item.Taxes {
			taxes[j] = itemTax{Percentage: t.Percentage}
		}
		encoded, err := json.Marshal(taxes)
		if err != nil {
			return errors.Wrap(err, "marshal item taxes")
		}
		if _, err := tx.Exec(ctx, q, o.ID, i, item.Price, item.PriceCurrency, item.Quantity, encoded); err != nil {
			return errors.Wrapf(err, "insert item %d of %q", i, o.ID)
		}
	}
	return nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o     order.Order
		org   organization.Organization
		ref   *string
		refID *int64
		taxes []byte
	)
	err := row.Scan(
		&o.ID, &ref, &refID, &o.TargetOrganization,
		&o.Price, &o.PriceCurrency, &taxes, &o.CreatedAt, &o.UpdatedAt,
		&org.ID, &org.ExternalID, &org.ShortCode,
	)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		o.Reference = *ref
	}
	if refID != nil {
		o.ReferenceID = *refID
	}
	if err := json.Unmarshal(taxes, &o.Taxes); err != nil {
		return nil, errors.Wrap(err, "unmarshal taxes")
	}
	o.Organization = &org
	return &o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
