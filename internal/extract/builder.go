package extract

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurkhatq/qrcode/internal/entity"
)

// Builder validates a raw row tuple and converts it into a shipment record.
// Rejection is silent here; the pipeline counts successes and decides
// whether the document as a whole failed.
type Builder struct {
	now   func() time.Time
	newID func() uuid.UUID
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now, newID: uuid.New}
}

// Build assigns a fresh id and ingestion timestamp and normalizes both ids
// (whitespace stripped, uppercased). The weight and id checks repeat what
// strategies already enforce, in case a strategy lets a bad tuple through.
func (b *Builder) Build(tuple entity.RawRowTuple, meta entity.DocumentMetadata, sourceRef string) (*entity.ShipmentRecord, bool) {
	packageID := normalizeID(tuple.PackageID)
	orderID := normalizeID(tuple.OrderID)
	if packageID == "" || orderID == "" {
		return nil, false
	}
	if tuple.WeightKg <= 0 {
		return nil, false
	}
	seq := tuple.SequenceNumber
	if seq < 0 {
		return nil, false
	}

	return &entity.ShipmentRecord{
		ID:                b.newID(),
		IngestedAt:        b.now(),
		TransferTimestamp: meta.TransferTimestamp,
		SourceRef:         sourceRef,
		SequenceNumber:    seq,
		PackageID:         packageID,
		WeightKg:          tuple.WeightKg,
		OrderID:           orderID,
		SubmittedBy:       meta.SubmittedBy,
		WeightApprox:      tuple.WeightApprox,
	}, true
}

func normalizeID(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
