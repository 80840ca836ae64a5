package extract

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nurkhatq/qrcode/internal/entity"
)

// Document-level failures. Row-level problems never surface; they are
// absorbed by strategies and the builder.
var (
	// ErrMetadataMissing means no transfer timestamp could be recovered;
	// the document is unusable.
	ErrMetadataMissing = errors.New("transfer timestamp not found")

	// ErrNoRecordsRecovered means every layout strategy came up empty;
	// the document matches none of the known renderings.
	ErrNoRecordsRecovered = errors.New("no shipment rows recovered")
)

// Result is the outcome of one successful pipeline run. Strategy names the
// layout hypothesis that matched, so callers can observe and log which
// rendering the document used.
type Result struct {
	Records  []*entity.ShipmentRecord
	Strategy string
	Metadata entity.DocumentMetadata
}

// Pipeline orchestrates normalization, metadata extraction, the ordered
// strategy attempts and record building. It is stateless between documents
// and safe for reuse; single-flight serialization of whole ingestion cycles
// is the caller's job.
type Pipeline struct {
	strategies []Strategy
	builder    *Builder
	logger     *slog.Logger
}

func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		strategies: DefaultStrategies(),
		builder:    NewBuilder(),
		logger:     logger,
	}
}

// Run extracts shipment records from one manifest document. It is
// all-or-nothing: on failure no partial record set is returned, and on
// success every record comes from the single winning strategy, never from a
// mix of two.
func (p *Pipeline) Run(rawText, sourceRef string) (*Result, error) {
	text := Normalize(rawText)

	meta, ok := ExtractMetadata(text)
	if !ok {
		p.logger.Error("pipeline.metadata.missing", "source_ref", sourceRef)
		return nil, fmt.Errorf("%s: %w", sourceRef, ErrMetadataMissing)
	}

	for _, strategy := range p.strategies {
		tuples := strategy.Extract(text)
		if len(tuples) == 0 {
			continue
		}

		records := make([]*entity.ShipmentRecord, 0, len(tuples))
		for _, tuple := range tuples {
			rec, ok := p.builder.Build(tuple, meta, sourceRef)
			if !ok {
				continue
			}
			records = append(records, rec)
		}
		if len(records) == 0 {
			// every candidate this hypothesis produced was invalid;
			// let a later hypothesis try
			continue
		}

		p.logger.Info("pipeline.extract.ok",
			"source_ref", sourceRef,
			"strategy", strategy.Name(),
			"rows", len(records),
			"submitted_by", meta.SubmittedBy,
		)
		return &Result{Records: records, Strategy: strategy.Name(), Metadata: meta}, nil
	}

	p.logger.Error("pipeline.extract.empty", "source_ref", sourceRef)
	return nil, fmt.Errorf("%s: %w", sourceRef, ErrNoRecordsRecovered)
}
