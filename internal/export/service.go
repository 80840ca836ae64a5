package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/nurkhatq/qrcode/internal/entity"
	"github.com/nurkhatq/qrcode/internal/repository"
)

// Service produces XLSX exports of shipment records and appends unsynced
// records to a long-lived workbook. The workbook is an independent consumer
// of the (package_id, order_id) idempotency key: before appending it
// re-derives the key set from the rows already stored in the sheet, so a
// shipment is never appended twice even across process restarts.
type Service struct {
	repo   repository.ShipmentRepository
	sheet  string
	logger *slog.Logger
}

func NewService(repo repository.ShipmentRepository, sheet string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sheet == "" {
		sheet = "Shipments"
	}
	return &Service{repo: repo, sheet: sheet, logger: logger}
}

var headers = []string{
	"#",
	"Package ID",
	"Weight (kg)",
	"Order ID",
	"Transfer Date",
	"Submitted By",
	"Source",
}

const (
	colPackageID = 1 // 0-based index into a sheet row
	colOrderID   = 3
)

// WorkbookBytes returns an XLSX snapshot of the records matching the filter.
func (s *Service) WorkbookBytes(ctx context.Context, filter repository.ListFilter) ([]byte, error) {
	start := time.Now()
	recs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query shipments: %w", err)
	}

	f := excelize.NewFile()
	if err := s.ensureSheet(f); err != nil {
		return nil, err
	}
	for i, rec := range recs {
		if err := s.writeRow(f, i+2, rec); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok", "rows", len(recs), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// AppendToWorkbook publishes every unsynced record to the workbook at path,
// creating it when absent, and marks the published records synced. Records
// whose key is already present in the sheet are suppressed (and marked
// synced as well: they were published by an earlier run). Returns the
// number of rows actually appended.
func (s *Service) AppendToWorkbook(ctx context.Context, path string) (int, error) {
	recs, err := s.repo.ListUnsynced(ctx)
	if err != nil {
		return 0, fmt.Errorf("query unsynced: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	f, nextRow, existing, err := s.openWorkbook(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	appended := 0
	synced := make([]uuid.UUID, 0, len(recs))
	for _, rec := range recs {
		synced = append(synced, rec.ID)
		if _, ok := existing[rec.Key()]; ok {
			continue
		}
		if err := s.writeRow(f, nextRow, rec); err != nil {
			return 0, err
		}
		existing[rec.Key()] = struct{}{}
		nextRow++
		appended++
	}

	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("xlsx save: %w", err)
	}
	if err := s.repo.MarkSynced(ctx, synced, time.Now()); err != nil {
		return appended, err
	}

	s.logger.Info("export.append.ok", "path", path, "appended", appended, "skipped", len(recs)-appended)
	return appended, nil
}

// openWorkbook opens or creates the workbook and returns it together with
// the next free row index and the shipment keys already stored in the sheet.
func (s *Service) openWorkbook(path string) (*excelize.File, int, map[entity.ShipmentKey]struct{}, error) {
	existing := make(map[entity.ShipmentKey]struct{})

	if _, err := os.Stat(path); err != nil {
		f := excelize.NewFile()
		if err := s.ensureSheet(f); err != nil {
			return nil, 0, nil, err
		}
		return f, 2, existing, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("xlsx open: %w", err)
	}
	if err := s.ensureSheet(f); err != nil {
		f.Close()
		return nil, 0, nil, err
	}
	rows, err := f.GetRows(s.sheet)
	if err != nil {
		f.Close()
		return nil, 0, nil, fmt.Errorf("xlsx rows: %w", err)
	}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		key := rowKey(row)
		if key.PackageID != "" && key.OrderID != "" {
			existing[key] = struct{}{}
		}
	}
	nextRow := len(rows) + 1
	if nextRow < 2 {
		nextRow = 2
	}
	return f, nextRow, existing, nil
}

// rowKey re-derives the idempotency key from a stored sheet row, applying
// the same normalization the record builder does.
func rowKey(row []string) entity.ShipmentKey {
	var key entity.ShipmentKey
	if len(row) > colPackageID {
		key.PackageID = normalizeCell(row[colPackageID])
	}
	if len(row) > colOrderID {
		key.OrderID = normalizeCell(row[colOrderID])
	}
	return key
}

func normalizeCell(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func (s *Service) ensureSheet(f *excelize.File) error {
	index, _ := f.GetSheetIndex(s.sheet)
	if index == -1 {
		if _, err := f.NewSheet(s.sheet); err != nil {
			return err
		}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			if err := f.SetCellValue(s.sheet, cell, h); err != nil {
				return err
			}
		}
		_ = f.SetColWidth(s.sheet, "A", "A", 6)
		_ = f.SetColWidth(s.sheet, "B", "B", 20)
		_ = f.SetColWidth(s.sheet, "C", "C", 12)
		_ = f.SetColWidth(s.sheet, "D", "D", 20)
		_ = f.SetColWidth(s.sheet, "E", "E", 20)
		_ = f.SetColWidth(s.sheet, "F", "F", 24)
		_ = f.SetColWidth(s.sheet, "G", "G", 40)
	}
	// drop excelize's default sheet when it is not ours
	if def := f.GetSheetName(0); def != s.sheet && def == "Sheet1" {
		_ = f.DeleteSheet(def)
	}
	idx, _ := f.GetSheetIndex(s.sheet)
	f.SetActiveSheet(idx)
	return nil
}

func (s *Service) writeRow(f *excelize.File, row int, rec *entity.ShipmentRecord) error {
	values := []any{
		rec.SequenceNumber,
		rec.PackageID,
		rec.WeightKg,
		rec.OrderID,
		rec.TransferTimestamp.Format("2006-01-02 15:04:05"),
		rec.SubmittedBy,
		rec.SourceRef,
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		if err := f.SetCellValue(s.sheet, cell, v); err != nil {
			return fmt.Errorf("xlsx cell %s: %w", cell, err)
		}
	}
	if rec.WeightApprox {
		// approximate weights (document-wide fallback) get a review note
		cell, _ := excelize.CoordinatesToCellName(len(values)+1, row)
		if err := f.SetCellValue(s.sheet, cell, "weight approx"); err != nil {
			return err
		}
	}
	return nil
}
