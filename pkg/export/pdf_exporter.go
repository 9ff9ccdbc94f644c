package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageHeight   = 297.0
	marginSide   = 10.0
	marginTop    = 15.0
	marginBottom = 15.0
	printable    = 190.0
	rowHeight    = 7.0
)

// PDFExporter prints a sheet on A4 pages: title, heading block, then the table with its
// header repeated on every page.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render produces the PDF bytes for sheet.
func (e *PDFExporter) Render(sheet Sheet) ([]byte, error) {
	if err := sheet.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginSide, marginTop, marginSide)
	pdf.SetAutoPageBreak(false, marginBottom)
	pdf.AliasNbPages("")
	// Core fonts are cp1252; names and comments arrive as UTF-8.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-marginBottom + 3)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	if sheet.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.MultiCell(0, 8, tr(sheet.Title), "", "L", false)
		pdf.Ln(2)
	}
	if len(sheet.Heading) > 0 {
		for _, field := range sheet.Heading {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(35, 6, tr(field.Label), "", 0, "", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			pdf.CellFormat(0, 6, tr(field.Value), "", 1, "", false, 0, "")
		}
		pdf.Ln(4)
	}

	widths := sheet.widths(printable)
	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, col := range sheet.Columns {
			label := col.Label
			if label == "" {
				label = col.Key
			}
			pdf.CellFormat(widths[i], 8, tr(label), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	header()

	if len(sheet.Rows) == 0 && sheet.EmptyText != "" {
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(printable, rowHeight, tr(sheet.EmptyText), "1", 1, "C", false, 0, "")
	}
	for _, row := range sheet.Rows {
		if pdf.GetY()+rowHeight > pageHeight-marginBottom {
			pdf.AddPage()
			header()
		}
		for i, cell := range row {
			pdf.CellFormat(widths[i], rowHeight, fitCell(pdf, tr(cell), widths[i]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// fitCell shortens already translated single-byte text with an ellipsis until it fits a
// cell of width w.
func fitCell(pdf *gofpdf.Fpdf, text string, w float64) string {
	limit := w - 2
	if pdf.GetStringWidth(text) <= limit {
		return text
	}
	cut := text
	for len(cut) > 0 && pdf.GetStringWidth(cut+"...") > limit {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
