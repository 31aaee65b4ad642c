package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin     = 10.0
	pdfLineHeight = 5.0
	pdfCellPad    = 1.5
)

// PDFExporter renders datasets as a landscape A4 table. Wrapped columns grow the row
// height instead of truncating, so full descriptions and notes stay readable.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

type pdfLayout struct {
	pdf     *gofpdf.Fpdf
	tr      func(string) string
	columns []Column
	widths  []float64
}

// Render creates the PDF document.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("pdf"); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.AliasNbPages("{nb}")
	layout := &pdfLayout{
		pdf:     pdf,
		tr:      pdf.UnicodeTranslatorFromDescriptor(""),
		columns: data.Columns,
		widths:  columnWidths(pdf, data.Columns),
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, pdfLineHeight, fmt.Sprintf("%d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 8, layout.tr(data.Title), "", 1, "L", false, 0, "")
	}
	if len(data.Summary) > 0 {
		pdf.SetFont("Arial", "", 9)
		for _, line := range data.Summary {
			pdf.CellFormat(0, pdfLineHeight, layout.tr(line), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(3)
	layout.header()

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		layout.row(row)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(pdf *gofpdf.Fpdf, columns []Column) []float64 {
	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*pdfMargin
	total := 0.0
	for _, column := range columns {
		total += weightOf(column)
	}
	widths := make([]float64, len(columns))
	for i, column := range columns {
		widths[i] = usable * weightOf(column) / total
	}
	return widths
}

func weightOf(column Column) float64 {
	if column.Weight <= 0 {
		return 1
	}
	return column.Weight
}

func (l *pdfLayout) header() {
	l.pdf.SetFont("Arial", "B", 9)
	l.pdf.SetFillColor(230, 230, 230)
	for i, column := range l.columns {
		title := column.Title
		if title == "" {
			title = column.Key
		}
		l.pdf.CellFormat(l.widths[i], 7, l.tr(title), "1", 0, "C", true, 0, "")
	}
	l.pdf.Ln(-1)
	l.pdf.SetFont("Arial", "", 9)
}

func (l *pdfLayout) row(row map[string]string) {
	lines := make([][]string, len(l.columns))
	height := 0
	for i, column := range l.columns {
		value := l.tr(row[column.Key])
		if column.Wrap {
			for _, line := range l.pdf.SplitLines([]byte(value), l.widths[i]-2*pdfCellPad) {
				lines[i] = append(lines[i], string(line))
			}
		}
		if len(lines[i]) == 0 {
			lines[i] = []string{value}
		}
		if len(lines[i]) > height {
			height = len(lines[i])
		}
	}
	rowHeight := float64(height)*pdfLineHeight + pdfCellPad

	_, pageHeight := l.pdf.GetPageSize()
	if l.pdf.GetY()+rowHeight > pageHeight-2*pdfMargin {
		l.pdf.AddPage()
		l.header()
	}

	x, y := l.pdf.GetXY()
	for i := range l.columns {
		l.pdf.Rect(x, y, l.widths[i], rowHeight, "D")
		for n, line := range lines[i] {
			l.pdf.SetXY(x+pdfCellPad, y+pdfCellPad/2+float64(n)*pdfLineHeight)
			l.pdf.CellFormat(l.widths[i]-2*pdfCellPad, pdfLineHeight, line, "", 0, "L", false, 0, "")
		}
		x += l.widths[i]
	}
	l.pdf.SetXY(pdfMargin, y+rowHeight)
}
