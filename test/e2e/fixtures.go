// Package e2e exercises the full upload → map → load → render → store flow
// with real components: SQLite, the disk object store, and an excelize
// workbook.
package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/xuri/excelize/v2"
)

// BuildLetterDocx returns a minimal packaged document whose body and header
// both carry markers, so rewriting must touch more than one part.
func BuildLetterDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct{ name, content string }{
		{
			"[Content_Types].xml",
			`<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
				`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
				`</Types>`,
		},
		{
			"word/document.xml",
			`<?xml version="1.0"?><w:document><w:body>` +
				`<w:p><w:r><w:t>Dear £Client Name£,</w:t></w:r></w:p>` +
				`<w:p><w:r><w:t>Your balance is £Amount£.</w:t></w:r></w:p>` +
				`</w:body></w:document>`,
		},
		{
			"word/header1.xml",
			`<?xml version="1.0"?><w:hdr><w:p><w:r><w:t>Statement for £Client Name£</w:t></w:r></w:p></w:hdr>`,
		},
		{
			"word/styles.xml",
			`<?xml version="1.0"?><w:styles><w:style w:styleId="Normal"/></w:styles>`,
		},
	}
	for _, p := range parts {
		fw, err := zw.Create(p.name)
		if err != nil {
			t.Fatalf("create %s: %v", p.name, err)
		}
		if _, err := fw.Write([]byte(p.content)); err != nil {
			t.Fatalf("write %s: %v", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// CustomerRow is one record of the workbook fixture.
type CustomerRow struct {
	ID     string
	Name   string
	Amount string
	Status string
}

// WriteCustomerWorkbook writes an xlsx with an id/name/amount/status sheet.
func WriteCustomerWorkbook(t *testing.T, path string, rows []CustomerRow) {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	header := []string{"id", "name", "amount", "status"}
	for col, value := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			t.Fatalf("set header: %v", err)
		}
	}
	for i, row := range rows {
		values := []string{row.ID, row.Name, row.Amount, row.Status}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				t.Fatalf("set row %d: %v", i, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close workbook: %v", err)
	}
}

// ReadDocPart extracts one named part from a packaged document.
func ReadDocPart(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read package: %v", err)
	}
	for _, zf := range zr.File {
		if zf.Name != name {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return buf.String()
	}
	t.Fatalf("part %s not found", name)
	return ""
}

// ReadWorkbookStatuses returns record key -> status from the workbook.
func ReadWorkbookStatuses(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) < 1 {
		t.Fatal("workbook is empty")
	}
	statuses := make(map[string]string)
	for i, row := range rows[1:] {
		if len(row) < 4 {
			t.Fatalf("row %d too short: %v", i+2, row)
		}
		statuses[row[0]] = row[3]
	}
	return statuses
}

// ArtifactPath builds the object-store path of one generation artifact.
func ArtifactPath(userID, generationID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", userID, generationID, filename)
}
