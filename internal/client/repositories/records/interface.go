package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
)

// Repository persists the cached record set.
type Repository interface {
	// InsertAll stores recs in order. A record whose id is already cached is
	// overwritten.
	InsertAll(ctx context.Context, recs []models.Record, fetchedAt time.Time) error

	// GetAll returns the cached records in fetch order and the time of the
	// most recent fetch. An empty cache yields a nil slice and a zero time.
	GetAll(ctx context.Context) ([]models.Record, time.Time, error)

	// Clear removes every cached record.
	Clear(ctx context.Context) error
}
