package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/nurkhatq/qrcode/internal/entity"
)

func TestPipeline_MetadataMissingIsFatal(t *testing.T) {
	p := NewPipeline(nil)
	_, err := p.Run("1 ABC123 7.25 ORD456\n2 DEF789 3.5 GHI012", "doc1")
	if !errors.Is(err, ErrMetadataMissing) {
		t.Fatalf("expected ErrMetadataMissing, got %v", err)
	}
}

func TestPipeline_SingleLineDocument(t *testing.T) {
	raw := "14.11.2025 13:06:30\nСдал: Иванов PickUp Point Алматы\nПринял: Склад\n1 abc-1 7,25 ord9\n2 DEF789 3.5 GHI012"
	res, err := NewPipeline(nil).Run(raw, "doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Strategy != "single-line" {
		t.Fatalf("expected single-line strategy, got %q", res.Strategy)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}
	first := res.Records[0]
	if first.PackageID != "ABC-1" || first.OrderID != "ORD9" {
		t.Fatalf("expected uppercased ids, got %q %q", first.PackageID, first.OrderID)
	}
	if first.WeightKg != 7.25 || first.SequenceNumber != 1 {
		t.Fatalf("unexpected record: %+v", first)
	}
	if first.SubmittedBy != "Иванов" {
		t.Fatalf("expected submitter, got %q", first.SubmittedBy)
	}
	if first.SourceRef != "doc1" {
		t.Fatalf("expected source ref, got %q", first.SourceRef)
	}
	want := time.Date(2025, time.November, 14, 13, 6, 30, 0, time.UTC)
	if !first.TransferTimestamp.Equal(want) {
		t.Fatalf("expected transfer timestamp %v, got %v", want, first.TransferTimestamp)
	}
}

func TestPipeline_FirstMatchingStrategyWinsNoMerging(t *testing.T) {
	// the document satisfies both the single-line grammar and the 4-line
	// block grammar; only the single-line output must be returned
	raw := "14.11.2025\n1 ABC1 7.5 ORD2\n8.25\n3\n69616 6030\n696166030-1"
	res, err := NewPipeline(nil).Run(raw, "doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Strategy != "single-line" {
		t.Fatalf("expected single-line to win, got %q", res.Strategy)
	}
	if len(res.Records) != 1 || res.Records[0].PackageID != "ABC1" {
		t.Fatalf("expected only the single-line row, got %+v", res.Records)
	}
}

func TestPipeline_AllRowsInvalidIsNoRecordsRecovered(t *testing.T) {
	_, err := NewPipeline(nil).Run("14.11.2025\n1 ABC1 0 ORD2", "doc1")
	if !errors.Is(err, ErrNoRecordsRecovered) {
		t.Fatalf("expected ErrNoRecordsRecovered, got %v", err)
	}
}

func TestPipeline_UnrecognizedLayoutIsNoRecordsRecovered(t *testing.T) {
	_, err := NewPipeline(nil).Run("14.11.2025 13:06:30\nпросто текст без строк", "doc1")
	if !errors.Is(err, ErrNoRecordsRecovered) {
		t.Fatalf("expected ErrNoRecordsRecovered, got %v", err)
	}
}

func TestPipeline_MobileBlockScenario(t *testing.T) {
	raw := "14.11.2025 13:06:30\n\nACME Co\n\n1\n\n69616 6030\n\n696166030-1"
	res, err := NewPipeline(nil).Run(raw, "doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Strategy != "block-3-default-weight" {
		t.Fatalf("expected 3-line block strategy, got %q", res.Strategy)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	rec := res.Records[0]
	if rec.SubmittedBy != "ACME Co" || rec.SequenceNumber != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.OrderID != "696166030" || rec.PackageID != "696166030-1" {
		t.Fatalf("unexpected ids: %q %q", rec.OrderID, rec.PackageID)
	}
	want := time.Date(2025, time.November, 14, 13, 6, 30, 0, time.UTC)
	if !rec.TransferTimestamp.Equal(want) {
		t.Fatalf("expected transfer timestamp %v, got %v", want, rec.TransferTimestamp)
	}
	if !rec.WeightApprox || rec.WeightKg <= 0 {
		t.Fatalf("expected positive fallback weight tagged approximate, got %+v", rec)
	}
}

func TestPipeline_RerunYieldsSameLogicalRecordsFreshIDs(t *testing.T) {
	raw := "14.11.2025\n1 ABC1 7.5 ORD2\n2 DEF3 3,25 GHI4"
	p := NewPipeline(nil)
	a, err := p.Run(raw, "doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := p.Run(raw, "doc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.Records) != len(b.Records) {
		t.Fatalf("expected equal record counts, got %d and %d", len(a.Records), len(b.Records))
	}
	for i := range a.Records {
		if a.Records[i].Key() != b.Records[i].Key() {
			t.Fatalf("expected equal keys at %d, got %+v and %+v", i, a.Records[i].Key(), b.Records[i].Key())
		}
		if !a.Records[i].SameShipment(b.Records[i]) {
			t.Fatal("expected records to be the same logical shipment")
		}
		if a.Records[i].ID == b.Records[i].ID {
			t.Fatal("expected fresh ids on every run")
		}
	}
}

func TestBuilder_RejectsEmptyIDsAndBadWeight(t *testing.T) {
	b := NewBuilder()
	meta := entity.DocumentMetadata{TransferTimestamp: time.Now()}
	cases := []entity.RawRowTuple{
		{SequenceNumber: 1, PackageID: "  ", WeightKg: 1, OrderID: "ORD"},
		{SequenceNumber: 1, PackageID: "PKG", WeightKg: 1, OrderID: ""},
		{SequenceNumber: 1, PackageID: "PKG", WeightKg: 0, OrderID: "ORD"},
		{SequenceNumber: -1, PackageID: "PKG", WeightKg: 1, OrderID: "ORD"},
	}
	for i, tuple := range cases {
		if _, ok := b.Build(tuple, meta, "doc"); ok {
			t.Fatalf("case %d: expected rejection of %+v", i, tuple)
		}
	}
	rec, ok := b.Build(entity.RawRowTuple{SequenceNumber: 1, PackageID: " pkg 1 ", WeightKg: 2.5, OrderID: "ord x"}, meta, "doc")
	if !ok {
		t.Fatal("expected valid tuple to build")
	}
	if rec.PackageID != "PKG1" || rec.OrderID != "ORDX" {
		t.Fatalf("expected normalized ids, got %q %q", rec.PackageID, rec.OrderID)
	}
}
