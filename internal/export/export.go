// Package export renders cached question/answer data as spreadsheets.
package export

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gowows/kbserve/internal/models"
)

const sheetName = "Questions"

var headers = []string{"Question", "Answer", "Times Asked", "First Asked", "Last Updated"}

// QuestionsXLSX renders a document's cache entries as an xlsx workbook.
func QuestionsXLSX(entries []*models.CacheEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for row, e := range entries {
		values := []any{
			e.Query,
			e.Answer,
			e.HitCount,
			e.CreatedAt.Format(time.RFC3339),
			e.UpdatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	// Widen the text columns so exports open readable.
	if err := f.SetColWidth(sheetName, "A", "B", 60); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename returns a download filename for a document's question export.
func Filename(documentPath string) string {
	base := path.Base(strings.ReplaceAll(documentPath, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." {
		base = "document"
	}
	return fmt.Sprintf("questions_%s_%s.xlsx", base, time.Now().Format("20060102"))
}
