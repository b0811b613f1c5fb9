package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tightlines/internal/client/models"
	"github.com/dmitrijs2005/tightlines/internal/dbx"
)

var ErrNotFound = errors.New("record not found")

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or updates a record by local id. On conflict, the mutable
// columns are replaced; the local id itself is never re-keyed.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.TripRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `INSERT INTO records (local_id, server_id, owner_id, created_at, payload, status)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(local_id) DO UPDATE SET server_id = excluded.server_id,
				payload = excluded.payload,
				status = excluded.status
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.LocalID, rec.ServerID, rec.OwnerID, rec.CreatedAt.UnixNano(), payload, string(rec.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// UpsertAll applies the batch atomically when backed by a plain connection:
// a failure mid-batch rolls the whole merge back, so the mirror never holds a
// partially applied remote snapshot.
func (r *SQLiteRepository) UpsertAll(ctx context.Context, recs []*models.TripRecord) error {
	if db, ok := r.db.(*sql.DB); ok {
		return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return upsertAll(ctx, NewSQLiteRepository(tx), recs)
		})
	}
	return upsertAll(ctx, r, recs)
}

func upsertAll(ctx context.Context, r *SQLiteRepository, recs []*models.TripRecord) error {
	for _, rec := range recs {
		if err := r.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) GetByLocalID(ctx context.Context, localID string) (*models.TripRecord, error) {
	query := `SELECT local_id, server_id, owner_id, created_at, payload, status
		FROM records WHERE local_id = ?`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetAllByOwner(ctx context.Context, ownerID string) ([]*models.TripRecord, error) {
	query := `SELECT local_id, server_id, owner_id, created_at, payload, status
		FROM records WHERE owner_id = ? ORDER BY created_at`
	return r.queryRecords(ctx, query, ownerID)
}

func (r *SQLiteRepository) GetUnsynced(ctx context.Context, ownerID string) ([]*models.TripRecord, error) {
	query := `SELECT local_id, server_id, owner_id, created_at, payload, status
		FROM records WHERE owner_id = ? AND status IN (?, ?) ORDER BY created_at`
	return r.queryRecords(ctx, query, ownerID, string(models.StatusPending), string(models.StatusOffline))
}

// MarkSynced stamps the record synced and attaches the server identity.
// It expects exactly one row to be affected.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, localID string, serverID string) error {
	query := `UPDATE records SET status = ?, server_id = ? WHERE local_id = ?`
	res, err := r.db.ExecContext(ctx, query, string(models.StatusSynced), serverID, localID)
	if err != nil {
		return fmt.Errorf("failed to mark record synced: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context, ownerID string) (map[models.SyncStatus]int, error) {
	query := `SELECT status, count(*) FROM records WHERE owner_id = ? GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	result := make(map[models.SyncStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		result[models.SyncStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) queryRecords(ctx context.Context, query string, args ...any) ([]*models.TripRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*models.TripRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.TripRecord, error) {
	rec := &models.TripRecord{}
	var createdAt int64
	var payload []byte
	var status string
	if err := row.Scan(&rec.LocalID, &rec.ServerID, &rec.OwnerID, &createdAt, &payload, &status); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.Status = models.SyncStatus(status)
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return rec, nil
}
