package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nurkhatq/qrcode/internal/entity"
)

func newTestRepo(t *testing.T) ShipmentRepository {
	t.Helper()
	db, err := OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db, nil)
}

func testRecord(pkg, order string) *entity.ShipmentRecord {
	return &entity.ShipmentRecord{
		ID:                uuid.New(),
		IngestedAt:        time.Now().UTC().Truncate(time.Second),
		TransferTimestamp: time.Date(2025, time.November, 14, 13, 6, 30, 0, time.UTC),
		SourceRef:         "doc1",
		SequenceNumber:    1,
		PackageID:         pkg,
		WeightKg:          7.25,
		OrderID:           order,
		SubmittedBy:       "Иванов",
	}
}

func TestInsertAndExists(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	inserted, err := repo.Insert(ctx, testRecord("PKG-1", "ORD1"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to report a new row")
	}

	exists, err := repo.Exists(ctx, "PKG-1", "ORD1")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("expected key to exist")
	}
	exists, err = repo.Exists(ctx, "PKG-1", "OTHER")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("did not expect a different key to exist")
	}
}

func TestInsertDuplicateKeyIsNoOp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Insert(ctx, testRecord("PKG-1", "ORD1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// same logical shipment, different record id
	inserted, err := repo.Insert(ctx, testRecord("PKG-1", "ORD1"))
	if err != nil {
		t.Fatalf("duplicate insert must not error: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate insert to be suppressed")
	}

	recs, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(recs))
	}
}

func TestListRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	want := testRecord("PKG-1", "ORD1")
	want.WeightApprox = true
	if _, err := repo.Insert(ctx, want); err != nil {
		t.Fatalf("insert: %v", err)
	}

	recs, err := repo.List(ctx, ListFilter{SourceRef: "doc1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	got := recs[0]
	if got.ID != want.ID || got.PackageID != "PKG-1" || got.OrderID != "ORD1" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.WeightKg != want.WeightKg || !got.WeightApprox || got.SubmittedBy != "Иванов" {
		t.Fatalf("unexpected fields: %+v", got)
	}
	if !got.TransferTimestamp.Equal(want.TransferTimestamp) {
		t.Fatalf("expected transfer ts %v, got %v", want.TransferTimestamp, got.TransferTimestamp)
	}
	if got.Synced || got.SyncedAt != nil {
		t.Fatalf("new records must be unsynced, got %+v", got)
	}

	none, err := repo.List(ctx, ListFilter{SourceRef: "other"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no records for other source, got %d", len(none))
	}
}

func TestListDateWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	early := testRecord("PKG-1", "ORD1")
	early.TransferTimestamp = time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	late := testRecord("PKG-2", "ORD2")
	late.TransferTimestamp = time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)
	for _, rec := range []*entity.ShipmentRecord{early, late} {
		if _, err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	from := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	recs, err := repo.List(ctx, ListFilter{From: &from})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 || recs[0].PackageID != "PKG-2" {
		t.Fatalf("expected only the late record, got %+v", recs)
	}
}

func TestMarkSyncedIsOneWayAndOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := testRecord("PKG-1", "ORD1")
	if _, err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	unsynced, err := repo.ListUnsynced(ctx)
	if err != nil {
		t.Fatalf("list unsynced: %v", err)
	}
	if len(unsynced) != 1 {
		t.Fatalf("expected 1 unsynced record, got %d", len(unsynced))
	}

	first := time.Date(2025, time.November, 15, 10, 0, 0, 0, time.UTC)
	if err := repo.MarkSynced(ctx, []uuid.UUID{rec.ID}, first); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	unsynced, err = repo.ListUnsynced(ctx)
	if err != nil {
		t.Fatalf("list unsynced: %v", err)
	}
	if len(unsynced) != 0 {
		t.Fatalf("expected no unsynced records, got %d", len(unsynced))
	}

	// a second transition attempt must not move synced_at
	if err := repo.MarkSynced(ctx, []uuid.UUID{rec.ID}, first.Add(time.Hour)); err != nil {
		t.Fatalf("mark synced again: %v", err)
	}
	recs, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := recs[0]
	if !got.Synced || got.SyncedAt == nil {
		t.Fatalf("expected synced record, got %+v", got)
	}
	if !got.SyncedAt.Equal(first) {
		t.Fatalf("expected synced_at %v untouched, got %v", first, got.SyncedAt)
	}
}
