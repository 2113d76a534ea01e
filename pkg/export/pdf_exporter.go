package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Document carries the header lines printed above a PDF table.
type Document struct {
	Title    string
	Subtitle string
	Footer   string
}

// PDFExporter renders datasets into a basic tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType reports the MIME type of rendered output.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension reports the file extension of rendered output.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates a PDF document with optional title lines and a table body.
func (e *PDFExporter) Render(data Dataset, doc Document) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
	}
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(row[header]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if doc.Footer != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, tr(doc.Footer), "", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
