package datasource

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/sashikomi/internal/config"
	"github.com/hyperjump/sashikomi/internal/models"
)

// ExcelSource implements Source over an Excel workbook: the first row is the
// header (field keys), each following row one record. The workbook is
// reopened per call so external edits are picked up; writes are serialized.
type ExcelSource struct {
	cfg config.DataSourceConfig
	mu  sync.Mutex
}

// NewExcelSource returns a Source reading the workbook described by cfg.
func NewExcelSource(cfg config.DataSourceConfig) *ExcelSource {
	return &ExcelSource{cfg: cfg}
}

// open opens the workbook and resolves the sheet name.
func (s *ExcelSource) open() (*excelize.File, string, error) {
	f, err := excelize.OpenFile(s.cfg.WorkbookPath)
	if err != nil {
		return nil, "", fmt.Errorf("open workbook %s: %w", s.cfg.WorkbookPath, err)
	}
	sheet := s.cfg.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			_ = f.Close()
			return nil, "", fmt.Errorf("workbook %s has no sheets", s.cfg.WorkbookPath)
		}
		sheet = sheets[0]
	}
	return f, sheet, nil
}

// Fields returns the header row as field keys with types inferred from the
// first data row (number, date, or text).
func (s *ExcelSource) Fields(_ context.Context) ([]models.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, sheet, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	var fields []models.Field
	for i, key := range rows[0] {
		if key == "" {
			continue
		}
		typ := "text"
		if len(rows) > 1 && i < len(rows[1]) {
			typ = inferType(rows[1][i])
		}
		fields = append(fields, models.Field{Key: key, Type: typ})
	}
	return fields, nil
}

// inferType guesses a field type from a sample cell value.
func inferType(sample string) string {
	if sample == "" {
		return "text"
	}
	if _, err := strconv.ParseFloat(sample, 64); err == nil {
		return "number"
	}
	for _, layout := range []string{"2006-01-02", "01/02/2006", "02.01.2006", time.RFC3339} {
		if _, err := time.Parse(layout, sample); err == nil {
			return "date"
		}
	}
	return "text"
}

// SelectByStatus returns every record whose status column equals status.
func (s *ExcelSource) SelectByStatus(ctx context.Context, status string) ([]models.Record, error) {
	records, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Record
	for _, r := range records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

// SelectByKeys returns exactly the requested records, in key order.
func (s *ExcelSource) SelectByKeys(ctx context.Context, keys []string) ([]models.Record, error) {
	records, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]models.Record, len(records))
	for _, r := range records {
		byKey[r.Key] = r
	}
	out := make([]models.Record, 0, len(keys))
	for _, k := range keys {
		r, ok := byKey[k]
		if !ok {
			return nil, fmt.Errorf("record key %q not found in %s", k, s.cfg.WorkbookPath)
		}
		out = append(out, r)
	}
	return out, nil
}

// all reads every record row.
func (s *ExcelSource) all(_ context.Context) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, sheet, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	header := rows[0]
	keyCol, statusCol := -1, -1
	for i, h := range header {
		if h == s.cfg.KeyColumn {
			keyCol = i
		}
		if h == s.cfg.StatusColumn {
			statusCol = i
		}
	}
	if keyCol < 0 {
		return nil, fmt.Errorf("key column %q not found in sheet %q", s.cfg.KeyColumn, sheet)
	}

	var out []models.Record
	for _, row := range rows[1:] {
		if keyCol >= len(row) || row[keyCol] == "" {
			continue
		}
		rec := models.Record{
			Key:    row[keyCol],
			Values: make(map[string]string, len(header)),
		}
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(row) {
				rec.Values[h] = row[i]
			} else {
				rec.Values[h] = ""
			}
		}
		if statusCol >= 0 && statusCol < len(row) {
			rec.Status = row[statusCol]
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpdateStatus sets the status cell of the record with the given key and
// saves the workbook.
func (s *ExcelSource) UpdateStatus(_ context.Context, key, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, sheet, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("sheet %q is empty", sheet)
	}

	keyCol, statusCol := -1, -1
	for i, h := range rows[0] {
		if h == s.cfg.KeyColumn {
			keyCol = i
		}
		if h == s.cfg.StatusColumn {
			statusCol = i
		}
	}
	if keyCol < 0 || statusCol < 0 {
		return fmt.Errorf("key or status column not found in sheet %q", sheet)
	}

	for i, row := range rows[1:] {
		if keyCol < len(row) && row[keyCol] == key {
			cell, err := excelize.CoordinatesToCellName(statusCol+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, status); err != nil {
				return fmt.Errorf("set status for record %q: %w", key, err)
			}
			if err := f.Save(); err != nil {
				return fmt.Errorf("save workbook: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("record key %q not found in %s", key, s.cfg.WorkbookPath)
}
