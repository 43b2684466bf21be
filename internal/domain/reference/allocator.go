// Package reference allocates the sequential, human-readable references that
// identify confirmed orders: {shortCode}-{year}-{referenceId}.
package reference

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/organization"
)

// ErrAllocationConflict is the transient failure of a reference counter
// increment. Storage implementations return it (for example on PostgreSQL
// serialization failures) so the allocator can retry.
var ErrAllocationConflict = errors.New("reference allocation conflict")

// DefaultMaxRetries bounds how often a conflicting counter increment is
// retried before the allocation fails.
const DefaultMaxRetries = 3

// Assignment is the outcome of one allocation: the sequential id and the
// formatted reference string it produced.
type Assignment struct {
	ReferenceID int64
	Reference   string
}

// Allocator hands out per-organization sequential references. Counter
// increments are delegated to the organization repository, which performs
// them atomically; the allocator only formats and retries.
type Allocator struct {
	orgs       organization.Repository
	maxRetries int
	now        func() time.Time
}

// NewAllocator creates an Allocator backed by the given organization
// repository, with DefaultMaxRetries conflict retries.
func NewAllocator(orgs organization.Repository) *Allocator {
	return &Allocator{
		orgs:       orgs,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}
}

// Allocate obtains the next reference id for the organization and composes
// the reference string using the four-digit year at allocation time.
//
// Transient increment conflicts are retried up to the configured bound; ids
// consumed by discarded attempts are never reused, so gaps are possible but
// duplicates are not.
func (a *Allocator) Allocate(ctx context.Context, org *organization.Organization) (Assignment, error) {
	var (
		id  int64
		err error
	)
	for attempt := 0; ; attempt++ {
		id, err = a.orgs.NextReferenceID(ctx, org.ID)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrAllocationConflict) {
			return Assignment{}, errors.Wrap(err, "next reference id")
		}
		if attempt >= a.maxRetries {
			return Assignment{}, errors.Wrapf(err, "allocation retries exhausted after %d attempts", attempt+1)
		}
	}

	year := a.now().Year()
	return Assignment{
		ReferenceID: id,
		Reference:   fmt.Sprintf("%s-%d-%d", org.ShortCode, year, id),
	}, nil
}
