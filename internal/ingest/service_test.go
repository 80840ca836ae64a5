package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nurkhatq/qrcode/internal/extract"
	"github.com/nurkhatq/qrcode/internal/repository"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, ref string) (Document, error) {
	text, ok := m[ref]
	if !ok {
		return Document{}, fmt.Errorf("unknown document %s", ref)
	}
	return Document{Text: text, SourceRef: ref}, nil
}

type blockingFetcher struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	text    string
}

func (f *blockingFetcher) Fetch(_ context.Context, ref string) (Document, error) {
	f.once.Do(func() { close(f.started) })
	<-f.release
	return Document{Text: f.text, SourceRef: ref}, nil
}

func newTestRepo(t *testing.T) repository.ShipmentRepository {
	t.Helper()
	db, err := repository.OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewSQLiteRepository(db, nil)
}

const docOne = "14.11.2025 13:06:30\n1 PKG-1 7.5 ORD1\n2 PKG-2 3,25 ORD2"
const docTwo = "14.11.2025 14:00:00\n1 PKG-2 3,25 ORD2\n2 PKG-3 9.1 ORD3"

func TestRunCycle_PersistsParsedRecords(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(mapFetcher{"doc1": docOne}, extract.NewPipeline(nil), repo, nil)

	stats, err := svc.RunCycle(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if stats.Parsed != 2 || stats.Inserted != 2 || stats.Duplicates != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Strategy != "single-line" {
		t.Fatalf("expected single-line strategy, got %q", stats.Strategy)
	}

	recs, err := repo.List(context.Background(), repository.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 persisted records, got %d", len(recs))
	}
}

func TestRunCycle_OverlappingDocumentsPersistDistinctKeysOnly(t *testing.T) {
	repo := newTestRepo(t)
	fetcher := mapFetcher{"doc1": docOne, "doc2": docTwo}
	svc := NewService(fetcher, extract.NewPipeline(nil), repo, nil)
	ctx := context.Background()

	if _, err := svc.RunCycle(ctx, "doc1"); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	stats, err := svc.RunCycle(ctx, "doc2")
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if stats.Parsed != 2 || stats.Inserted != 1 || stats.Duplicates != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	recs, err := repo.List(ctx, repository.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// 4 rows parsed across both documents, 3 distinct keys persisted
	if len(recs) != 3 {
		t.Fatalf("expected 3 persisted records, got %d", len(recs))
	}
}

func TestRunCycle_RerunIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(mapFetcher{"doc1": docOne}, extract.NewPipeline(nil), repo, nil)
	ctx := context.Background()

	if _, err := svc.RunCycle(ctx, "doc1"); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	stats, err := svc.RunCycle(ctx, "doc1")
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if stats.Inserted != 0 || stats.Duplicates != 2 {
		t.Fatalf("expected rerun to insert nothing, got %+v", stats)
	}
}

func TestRunCycle_SecondInvocationRejectedWhileBusy(t *testing.T) {
	repo := newTestRepo(t)
	fetcher := &blockingFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		text:    docOne,
	}
	svc := NewService(fetcher, extract.NewPipeline(nil), repo, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunCycle(context.Background(), "doc1")
		done <- err
	}()

	<-fetcher.started
	if !svc.Busy() {
		t.Fatal("expected service to report busy")
	}
	if _, err := svc.RunCycle(context.Background(), "doc1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(fetcher.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first cycle: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle did not finish")
	}

	// once the flight lands the gate reopens
	if svc.Busy() {
		t.Fatal("expected service to be idle again")
	}
	if _, err := svc.RunCycle(context.Background(), "doc1"); err != nil {
		t.Fatalf("cycle after release: %v", err)
	}
}

func TestRunCycle_PipelineFailuresPropagate(t *testing.T) {
	repo := newTestRepo(t)
	fetcher := mapFetcher{
		"nodate": "1 PKG-1 7.5 ORD1",
		"norows": "14.11.2025 13:06:30\nпустой манифест",
	}
	svc := NewService(fetcher, extract.NewPipeline(nil), repo, nil)
	ctx := context.Background()

	if _, err := svc.RunCycle(ctx, "nodate"); !errors.Is(err, extract.ErrMetadataMissing) {
		t.Fatalf("expected ErrMetadataMissing, got %v", err)
	}
	if _, err := svc.RunCycle(ctx, "norows"); !errors.Is(err, extract.ErrNoRecordsRecovered) {
		t.Fatalf("expected ErrNoRecordsRecovered, got %v", err)
	}

	recs, err := repo.List(ctx, repository.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("failed documents must persist nothing, got %d records", len(recs))
	}
}

func TestRunCycle_FetchErrorSurfaces(t *testing.T) {
	svc := NewService(mapFetcher{}, extract.NewPipeline(nil), newTestRepo(t), nil)
	if _, err := svc.RunCycle(context.Background(), "missing"); err == nil {
		t.Fatal("expected fetch error")
	}
}
