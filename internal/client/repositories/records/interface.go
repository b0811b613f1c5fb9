package records

import (
	"context"

	"github.com/dmitrijs2005/tightlines/internal/client/models"
)

// Repository describes persistence operations for the local trip-log mirror.
// Implementations are typically backed by a local SQLite database.
type Repository interface {
	// Upsert inserts a new record or updates an existing one by LocalID.
	Upsert(ctx context.Context, record *models.TripRecord) error

	// UpsertAll applies Upsert to each record in order.
	UpsertAll(ctx context.Context, records []*models.TripRecord) error

	// GetByLocalID returns a single record by its local identity.
	GetByLocalID(ctx context.Context, localID string) (*models.TripRecord, error)

	// GetAllByOwner lists the owner's records, oldest first.
	GetAllByOwner(ctx context.Context, ownerID string) ([]*models.TripRecord, error)

	// GetUnsynced lists the owner's records still awaiting a remote write
	// (status pending or offline), oldest first.
	GetUnsynced(ctx context.Context, ownerID string) ([]*models.TripRecord, error)

	// MarkSynced stamps a record synced and attaches its server identity.
	MarkSynced(ctx context.Context, localID string, serverID string) error

	// CountByStatus returns the owner's record counts keyed by sync status.
	CountByStatus(ctx context.Context, ownerID string) (map[models.SyncStatus]int, error)
}
