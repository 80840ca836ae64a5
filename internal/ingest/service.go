package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/nurkhatq/qrcode/internal/extract"
	"github.com/nurkhatq/qrcode/internal/repository"
)

// ErrBusy is returned when a cycle is requested while another is still in
// flight. It is a non-fatal "try again later" condition, not a failure.
var ErrBusy = errors.New("ingestion cycle already in flight")

// Publisher is the optional second consumer of freshly persisted records,
// e.g. the spreadsheet append.
type Publisher interface {
	AppendToWorkbook(ctx context.Context, path string) (int, error)
}

// CycleStats summarizes one ingestion cycle.
type CycleStats struct {
	SourceRef  string `json:"source_ref"`
	Strategy   string `json:"strategy"`
	Parsed     int    `json:"parsed"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Published  int    `json:"published"`
}

// Service runs the full download → extract → dedup-check → persist →
// publish cycle. Cycles are single-flight: duplicate detection on the
// (package_id, order_id) key is only meaningful when writes are serialized,
// so a second invocation while one is running is rejected immediately with
// ErrBusy, never queued.
type Service struct {
	fetcher      Fetcher
	pipeline     *extract.Pipeline
	repo         repository.ShipmentRepository
	publisher    Publisher
	workbookPath string
	logger       *slog.Logger

	busy atomic.Bool
}

func NewService(fetcher Fetcher, pipeline *extract.Pipeline, repo repository.ShipmentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:  fetcher,
		pipeline: pipeline,
		repo:     repo,
		logger:   logger,
	}
}

// WithPublisher enables spreadsheet publication at the end of each cycle.
func (s *Service) WithPublisher(p Publisher, workbookPath string) *Service {
	s.publisher = p
	s.workbookPath = workbookPath
	return s
}

// Busy reports whether a cycle is currently in flight.
func (s *Service) Busy() bool { return s.busy.Load() }

// RunCycle ingests one document end to end. Pipeline failures
// (extract.ErrMetadataMissing, extract.ErrNoRecordsRecovered) propagate
// unchanged so callers can translate them for users.
func (s *Service) RunCycle(ctx context.Context, ref string) (*CycleStats, error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warn("ingest.cycle.busy", "source_ref", ref)
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	doc, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		s.logger.Error("ingest.fetch.failed", "source_ref", ref, "error", err)
		return nil, err
	}

	res, err := s.pipeline.Run(doc.Text, doc.SourceRef)
	if err != nil {
		return nil, err
	}

	stats := &CycleStats{SourceRef: ref, Strategy: res.Strategy, Parsed: len(res.Records)}
	for _, rec := range res.Records {
		exists, err := s.repo.Exists(ctx, rec.PackageID, rec.OrderID)
		if err != nil {
			return nil, err
		}
		if exists {
			stats.Duplicates++
			continue
		}
		inserted, err := s.repo.Insert(ctx, rec)
		if err != nil {
			return nil, err
		}
		if inserted {
			stats.Inserted++
		} else {
			// the unique constraint caught a key the pre-filter missed
			stats.Duplicates++
		}
	}

	if s.publisher != nil && s.workbookPath != "" {
		published, err := s.publisher.AppendToWorkbook(ctx, s.workbookPath)
		if err != nil {
			s.logger.Error("ingest.publish.failed", "source_ref", ref, "error", err)
			return nil, err
		}
		stats.Published = published
	}

	s.logger.Info("ingest.cycle.ok",
		"source_ref", ref,
		"strategy", stats.Strategy,
		"parsed", stats.Parsed,
		"inserted", stats.Inserted,
		"duplicates", stats.Duplicates,
		"published", stats.Published,
	)
	return stats, nil
}
