package entity

import (
	"time"

	"github.com/google/uuid"
)

// ShipmentRecord is one shipment row recovered from a manifest document.
// It is immutable after construction except for the Synced/SyncedAt
// transition, which the publication layer performs exactly once.
type ShipmentRecord struct {
	ID                uuid.UUID  `json:"id"`
	IngestedAt        time.Time  `json:"ingested_at"`
	TransferTimestamp time.Time  `json:"transfer_timestamp"`
	SourceRef         string     `json:"source_ref"`
	SequenceNumber    int        `json:"sequence_number"`
	PackageID         string     `json:"package_id"`
	WeightKg          float64    `json:"weight_kg"`
	OrderID           string     `json:"order_id"`
	SubmittedBy       string     `json:"submitted_by"`
	WeightApprox      bool       `json:"weight_approx,omitempty"`
	Synced            bool       `json:"synced"`
	SyncedAt          *time.Time `json:"synced_at,omitempty"`
}

// ShipmentKey identifies a logical shipment across repeated ingestion.
// Two records with equal keys are the same shipment regardless of ID.
type ShipmentKey struct {
	PackageID string `json:"package_id"`
	OrderID   string `json:"order_id"`
}

func (r *ShipmentRecord) Key() ShipmentKey {
	return ShipmentKey{PackageID: r.PackageID, OrderID: r.OrderID}
}

// SameShipment reports whether two records describe the same logical shipment.
func (r *ShipmentRecord) SameShipment(other *ShipmentRecord) bool {
	return other != nil && r.Key() == other.Key()
}

// DocumentMetadata holds the document-level fields recovered from a manifest.
// TransferTimestamp is mandatory for the document to be usable; SubmittedBy
// degrades to empty when the submitter line cannot be found.
type DocumentMetadata struct {
	TransferTimestamp time.Time
	SubmittedBy       string
}

// RawRowTuple is the unvalidated field set a layout strategy recovers per row.
type RawRowTuple struct {
	SequenceNumber int
	PackageID      string
	WeightKg       float64
	OrderID        string

	// WeightApprox marks tuples whose weight came from the document-wide
	// fallback scan rather than a per-row token.
	WeightApprox bool
}
