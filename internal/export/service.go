// Package export projects finished batch results into the interchange
// formats downstream accounting tools consume.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"invoicescan/constants"
	"invoicescan/internal/entity"
)

// utf8BOM is prepended to CSV output; the spreadsheet tools on the receiving
// end expect the encoding signal.
const utf8BOM = "\xEF\xBB\xBF"

// csvHeaders follows the exported line-item field order.
var csvHeaders = []string{
	"category", "vendor", "tax_id", "date", "invoice_number",
	"amount_without_tax", "tax_amount", "amount_with_tax", "source_file",
}

// ToExportBundle flattens the line items of every successful file into a
// read-only bundle, preserving batch order. Pending, processing, and errored
// files contribute nothing here but stay visible to the caller.
func ToExportBundle(results []entity.FileProcessingResult) entity.ExportBundle {
	items := make([]entity.ExportedLineItem, 0)
	for _, r := range results {
		if r.Status != constants.FileStatusSuccess {
			continue
		}
		for _, li := range r.LineItems {
			items = append(items, entity.ExportedLineItem{
				Category:         li.Category,
				Vendor:           li.Vendor,
				TaxID:            li.TaxID,
				Date:             li.Date,
				InvoiceNumber:    li.InvoiceNumber,
				AmountWithoutTax: li.AmountWithoutTax(),
				TaxAmount:        li.InputTax,
				AmountWithTax:    li.AmountWithTax,
				SourceFile:       li.SourceFileName,
			})
		}
	}
	return entity.ExportBundle{
		ExportedAt: time.Now().UTC(),
		TotalItems: len(items),
		Items:      items,
	}
}

// SerializeCSV renders the bundle as UTF-8 CSV with a leading BOM. Every
// cell is double-quoted, including headers.
func SerializeCSV(b entity.ExportBundle) []byte {
	var sb strings.Builder
	sb.WriteString(utf8BOM)
	writeRow := func(cells []string) {
		for i, c := range cells {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('"')
			sb.WriteString(strings.ReplaceAll(c, `"`, `""`))
			sb.WriteByte('"')
		}
		sb.WriteByte('\n')
	}

	writeRow(csvHeaders)
	for _, it := range b.Items {
		writeRow([]string{
			it.Category,
			it.Vendor,
			strOrEmpty(it.TaxID),
			strOrEmpty(it.Date),
			strOrEmpty(it.InvoiceNumber),
			formatAmount(it.AmountWithoutTax),
			formatAmount(it.TaxAmount),
			formatAmount(it.AmountWithTax),
			it.SourceFile,
		})
	}
	return []byte(sb.String())
}

// SerializeJSON renders the bundle as indented JSON.
func SerializeJSON(b entity.ExportBundle) ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// SerializeXLSX returns the bundle as an XLSX workbook for reviewers who
// work in spreadsheets rather than importing CSV.
func SerializeXLSX(b entity.ExportBundle) ([]byte, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	for i, h := range csvHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, it := range b.Items {
		row := i + 2
		set := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		set(1, it.Category)
		set(2, it.Vendor)
		set(3, strOrEmpty(it.TaxID))
		set(4, strOrEmpty(it.Date))
		set(5, strOrEmpty(it.InvoiceNumber))
		set(6, it.AmountWithoutTax)
		set(7, it.TaxAmount)
		set(8, it.AmountWithTax)
		set(9, it.SourceFile)
	}

	_ = f.SetColWidth(sheet, "B", "B", 28) // vendor
	_ = f.SetColWidth(sheet, "E", "E", 16) // invoice number
	_ = f.SetColWidth(sheet, "I", "I", 40) // source file

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// formatAmount trims trailing zeros so whole-NT$ amounts export as integers.
func formatAmount(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
