package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/organization"
	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/reference"
)

var _ organization.Repository = (*OrganizationRepository)(nil)

// OrganizationRepository implements organization.Repository backed by
// PostgreSQL.
type OrganizationRepository struct {
	pool *pgxpool.Pool
}

// NewOrganizationRepository returns an OrganizationRepository using the
// given pool.
func NewOrganizationRepository(pool *pgxpool.Pool) *OrganizationRepository {
	return &OrganizationRepository{pool: pool}
}

// FindOrCreateByExternalID resolves an organization by external id, creating
// it on first sight. The upsert relies on the external_id unique constraint,
// so concurrent first-time creation for the same id yields one row; the
// DO UPDATE arm makes RETURNING produce the existing row on conflict.
func (r *OrganizationRepository) FindOrCreateByExternalID(ctx context.Context, externalID string) (*organization.Organization, error) {
	const q = `
		INSERT INTO organizations (id, external_id, short_code)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING id, external_id, short_code`

	var org organization.Organization
	err := r.pool.QueryRow(ctx, q,
		uuid.New().String(),
		externalID,
		organization.ShortCodeFromExternalID(externalID),
	).Scan(&org.ID, &org.ExternalID, &org.ShortCode)
	if err != nil {
		return nil, errors.Wrapf(err, "find or create organization %q", externalID)
	}
	return &org, nil
}

// NextReferenceID atomically increments and returns the organization's
// reference counter. The single UPDATE ... RETURNING statement serializes
// concurrent allocators on the row lock; transient transaction conflicts are
// mapped to reference.ErrAllocationConflict for the allocator to retry.
func (r *OrganizationRepository) NextReferenceID(ctx context.Context, orgID string) (int64, error) {
	const q = `
		UPDATE organizations
		SET reference_counter = reference_counter + 1
		WHERE id = $1
		RETURNING reference_counter`

	var id int64
	if err := r.pool.QueryRow(ctx, q, orgID).Scan(&id); err != nil {
		if isSerializationFailure(err) {
			return 0, errors.Wrapf(reference.ErrAllocationConflict, "increment counter for %q: %v", orgID, err)
		}
		return 0, errors.Wrapf(err, "increment counter for %q", orgID)
	}
	return id, nil
}
