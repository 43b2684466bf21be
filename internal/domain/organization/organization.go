// Package organization holds the organization entity that owns orders and
// hands out their sequential reference ids.
package organization

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an organization cannot be located and the
// repository is not allowed to create it.
var ErrNotFound = errors.New("organization not found")

// ResolutionError indicates that the organization owning an order could not
// be resolved or created from its external identifier. It is fatal for the
// order creation flow.
type ResolutionError struct {
	ExternalID string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving organization %q: %v", e.ExternalID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Organization owns orders and the reference counter that numbers them.
// The counter itself lives in storage and is only ever touched through
// Repository.NextReferenceID.
type Organization struct {
	ID         string
	ExternalID string
	ShortCode  string
}

// ShortCodeFromExternalID derives the default short code for a newly created
// organization: the last four characters of its external identifier. Existing
// organizations keep whatever short code storage already holds.
func ShortCodeFromExternalID(externalID string) string {
	if len(externalID) <= 4 {
		return externalID
	}
	return externalID[len(externalID)-4:]
}

// Repository provides lookup-or-create of organizations and the atomic
// per-organization reference counter.
type Repository interface {
	// FindOrCreateByExternalID resolves an organization by its external
	// registry identifier, creating it when absent. Implementations must be
	// safe under concurrent first-time creation for the same identifier.
	FindOrCreateByExternalID(ctx context.Context, externalID string) (*Organization, error)

	// NextReferenceID atomically increments and returns the organization's
	// reference counter. Values are monotonic, start at 1, and are never
	// reused even when an allocation is later discarded.
	NextReferenceID(ctx context.Context, orgID string) (int64, error)
}
