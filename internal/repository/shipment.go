package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurkhatq/qrcode/internal/entity"
)

// ListFilter narrows shipment listings; nil/empty fields match everything.
type ListFilter struct {
	From      *time.Time
	To        *time.Time
	SourceRef string
}

// ShipmentRepository is the ingestion gate's storage side. Insert treats
// (package_id, order_id) as a uniqueness constraint: inserting an existing
// key is a no-op success, never an error, so re-ingesting overlapping
// documents can never persist a logical shipment twice.
type ShipmentRepository interface {
	Exists(ctx context.Context, packageID, orderID string) (bool, error)
	Insert(ctx context.Context, rec *entity.ShipmentRecord) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*entity.ShipmentRecord, error)
	ListUnsynced(ctx context.Context) ([]*entity.ShipmentRecord, error)
	MarkSynced(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type sqliteShipmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteRepository wraps an SQLite handle opened via OpenSQLite.
func NewSQLiteRepository(db *sql.DB, logger *slog.Logger) ShipmentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqliteShipmentRepository{db: db, logger: logger}
}

func (r *sqliteShipmentRepository) Exists(ctx context.Context, packageID, orderID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM shipments WHERE package_id = ? AND order_id = ? LIMIT 1`,
		packageID, orderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}

func (r *sqliteShipmentRepository) Insert(ctx context.Context, rec *entity.ShipmentRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO shipments
			(id, ingested_at, transfer_ts, source_ref, seq_number,
			 package_id, weight_kg, order_id, submitted_by, weight_approx, synced, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)
		ON CONFLICT (package_id, order_id) DO NOTHING`,
		rec.ID.String(),
		rec.IngestedAt.Unix(),
		rec.TransferTimestamp.Unix(),
		rec.SourceRef,
		rec.SequenceNumber,
		rec.PackageID,
		rec.WeightKg,
		rec.OrderID,
		rec.SubmittedBy,
		boolToInt(rec.WeightApprox),
	)
	if err != nil {
		r.logger.Error("shipments.insert.failed", "package_id", rec.PackageID, "order_id", rec.OrderID, "error", err)
		return false, fmt.Errorf("insert shipment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const sqliteSelect = `
	SELECT id, ingested_at, transfer_ts, source_ref, seq_number,
	       package_id, weight_kg, order_id, submitted_by, weight_approx, synced, synced_at
	FROM shipments`

func (r *sqliteShipmentRepository) List(ctx context.Context, filter ListFilter) ([]*entity.ShipmentRecord, error) {
	where := []string{}
	args := []any{}
	if filter.From != nil {
		where = append(where, "transfer_ts >= ?")
		args = append(args, filter.From.Unix())
	}
	if filter.To != nil {
		where = append(where, "transfer_ts <= ?")
		args = append(args, filter.To.Unix())
	}
	if filter.SourceRef != "" {
		where = append(where, "source_ref = ?")
		args = append(args, filter.SourceRef)
	}
	q := sqliteSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY transfer_ts, seq_number"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()
	return scanSQLiteRows(rows)
}

func (r *sqliteShipmentRepository) ListUnsynced(ctx context.Context) ([]*entity.ShipmentRecord, error) {
	rows, err := r.db.QueryContext(ctx, sqliteSelect+" WHERE synced = 0 ORDER BY transfer_ts, seq_number")
	if err != nil {
		return nil, fmt.Errorf("list unsynced: %w", err)
	}
	defer rows.Close()
	return scanSQLiteRows(rows)
}

func (r *sqliteShipmentRepository) MarkSynced(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{at.Unix()}
	ph := make([]string, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args = append(args, id.String())
	}
	// synced = 0 guard keeps the transition one-way: synced_at is written
	// at most once per record
	_, err := r.db.ExecContext(ctx,
		`UPDATE shipments SET synced = 1, synced_at = ? WHERE id IN (`+strings.Join(ph, ", ")+`) AND synced = 0`,
		args...)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func scanSQLiteRows(rows *sql.Rows) ([]*entity.ShipmentRecord, error) {
	var out []*entity.ShipmentRecord
	for rows.Next() {
		var (
			idStr        string
			ingestedAt   int64
			transferTS   int64
			weightApprox int
			synced       int
			syncedAt     sql.NullInt64
			rec          entity.ShipmentRecord
		)
		if err := rows.Scan(&idStr, &ingestedAt, &transferTS, &rec.SourceRef, &rec.SequenceNumber,
			&rec.PackageID, &rec.WeightKg, &rec.OrderID, &rec.SubmittedBy, &weightApprox, &synced, &syncedAt); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("scan shipment id: %w", err)
		}
		rec.ID = id
		rec.IngestedAt = time.Unix(ingestedAt, 0).UTC()
		rec.TransferTimestamp = time.Unix(transferTS, 0).UTC()
		rec.WeightApprox = weightApprox != 0
		rec.Synced = synced != 0
		if syncedAt.Valid {
			t := time.Unix(syncedAt.Int64, 0).UTC()
			rec.SyncedAt = &t
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
