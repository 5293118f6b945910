// Package xlsx renders the registry as a spreadsheet: a summary sheet with one
// row per bucket and a documents sheet listing every page in display order.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

const (
	SummarySheet   = "Buckets"
	DocumentsSheet = "Documents"
)

var (
	summaryHeader   = []any{"Code", "Name", "Documents"}
	documentsHeader = []any{"Bucket Code", "Bucket Name", "Position", "Document", "Image Ref", "Year", "Year Assumed"}
)

func Write(w io.Writer, snapshot domain.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(DocumentsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeRow(f, SummarySheet, 1, summaryHeader); err != nil {
		return err
	}
	if err := writeRow(f, DocumentsSheet, 1, documentsHeader); err != nil {
		return err
	}
	for _, sheet := range []string{SummarySheet, DocumentsSheet} {
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}

	docRow := 2
	for i, b := range snapshot.Buckets {
		if err := writeRow(f, SummarySheet, i+2, []any{b.Code, b.DisplayName, len(b.Documents)}); err != nil {
			return err
		}
		for pos, doc := range b.Documents {
			row := []any{b.Code, b.DisplayName, pos + 1, doc.DisplayName, doc.ImageRef, doc.Year, doc.YearAssumed}
			if err := writeRow(f, DocumentsSheet, docRow, row); err != nil {
				return err
			}
			docRow++
		}
	}

	if err := f.SetColWidth(SummarySheet, "B", "B", 40); err != nil {
		return fmt.Errorf("size columns: %w", err)
	}
	if err := f.SetColWidth(DocumentsSheet, "B", "B", 40); err != nil {
		return fmt.Errorf("size columns: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
