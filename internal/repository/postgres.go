package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nurkhatq/qrcode/internal/entity"
)

type postgresShipmentRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresRepository wraps a pgx pool opened via OpenPostgres.
func NewPostgresRepository(pool *pgxpool.Pool, logger *slog.Logger) ShipmentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresShipmentRepository{pool: pool, logger: logger}
}

func (r *postgresShipmentRepository) Exists(ctx context.Context, packageID, orderID string) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM shipments WHERE package_id = $1 AND order_id = $2 LIMIT 1`,
		packageID, orderID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}

func (r *postgresShipmentRepository) Insert(ctx context.Context, rec *entity.ShipmentRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO shipments
			(id, ingested_at, transfer_ts, source_ref, seq_number,
			 package_id, weight_kg, order_id, submitted_by, weight_approx, synced, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NULL)
		ON CONFLICT (package_id, order_id) DO NOTHING`,
		rec.ID.String(),
		rec.IngestedAt,
		rec.TransferTimestamp,
		rec.SourceRef,
		rec.SequenceNumber,
		rec.PackageID,
		rec.WeightKg,
		rec.OrderID,
		rec.SubmittedBy,
		rec.WeightApprox,
	)
	if err != nil {
		r.logger.Error("shipments.insert.failed", "package_id", rec.PackageID, "order_id", rec.OrderID, "error", err)
		return false, fmt.Errorf("insert shipment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const postgresSelect = `
	SELECT id, ingested_at, transfer_ts, source_ref, seq_number,
	       package_id, weight_kg, order_id, submitted_by, weight_approx, synced, synced_at
	FROM shipments`

func (r *postgresShipmentRepository) List(ctx context.Context, filter ListFilter) ([]*entity.ShipmentRecord, error) {
	where := []string{}
	args := []any{}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("transfer_ts >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("transfer_ts <= $%d", len(args)))
	}
	if filter.SourceRef != "" {
		args = append(args, filter.SourceRef)
		where = append(where, fmt.Sprintf("source_ref = $%d", len(args)))
	}
	q := postgresSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY transfer_ts, seq_number"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()
	return scanPostgresRows(rows)
}

func (r *postgresShipmentRepository) ListUnsynced(ctx context.Context) ([]*entity.ShipmentRecord, error) {
	rows, err := r.pool.Query(ctx, postgresSelect+" WHERE NOT synced ORDER BY transfer_ts, seq_number")
	if err != nil {
		return nil, fmt.Errorf("list unsynced: %w", err)
	}
	defer rows.Close()
	return scanPostgresRows(rows)
}

func (r *postgresShipmentRepository) MarkSynced(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE shipments SET synced = TRUE, synced_at = $1 WHERE id = ANY($2) AND NOT synced`,
		at, strIDs)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func scanPostgresRows(rows pgx.Rows) ([]*entity.ShipmentRecord, error) {
	var out []*entity.ShipmentRecord
	for rows.Next() {
		var (
			idStr    string
			syncedAt *time.Time
			rec      entity.ShipmentRecord
		)
		if err := rows.Scan(&idStr, &rec.IngestedAt, &rec.TransferTimestamp, &rec.SourceRef, &rec.SequenceNumber,
			&rec.PackageID, &rec.WeightKg, &rec.OrderID, &rec.SubmittedBy, &rec.WeightApprox, &rec.Synced, &syncedAt); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("scan shipment id: %w", err)
		}
		rec.ID = id
		rec.SyncedAt = syncedAt
		out = append(out, &rec)
	}
	return out, rows.Err()
}
