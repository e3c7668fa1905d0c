package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// pdfBuilder wraps gofpdf with the handful of layout primitives the
// inventory report uses.
type pdfBuilder struct {
	pdf *gofpdf.Fpdf
}

func newPDFBuilder(title string) *pdfBuilder {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)

	b := &pdfBuilder{pdf: pdf}

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(33, 37, 41)
	pdf.CellFormat(0, 15, title, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(108, 117, 125)
	pdf.CellFormat(0, 8, fmt.Sprintf("Generated: %s", time.Now().Format("January 2, 2006 3:04 PM")), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	return b
}

func (b *pdfBuilder) addSection(title string) {
	b.pdf.SetFont("Arial", "B", 14)
	b.pdf.SetTextColor(33, 37, 41)
	b.pdf.SetFillColor(240, 240, 240)
	b.pdf.CellFormat(0, 10, title, "", 1, "L", true, 0, "")
	b.pdf.Ln(5)
}

func (b *pdfBuilder) addParagraph(text string) {
	b.pdf.SetFont("Arial", "", 10)
	b.pdf.SetTextColor(33, 37, 41)
	b.pdf.MultiCell(0, 6, text, "", "L", false)
	b.pdf.Ln(5)
}

// addKeyValues renders label/value rows in the order given.
func (b *pdfBuilder) addKeyValues(rows []keyValue) {
	for _, row := range rows {
		b.pdf.SetFont("Arial", "", 10)
		b.pdf.SetTextColor(108, 117, 125)
		b.pdf.CellFormat(60, 7, row.key+":", "", 0, "L", false, 0, "")

		b.pdf.SetFont("Arial", "B", 10)
		b.pdf.SetTextColor(33, 37, 41)
		b.pdf.CellFormat(0, 7, row.value, "", 1, "L", false, 0, "")
	}

	b.pdf.Ln(5)
}

type keyValue struct {
	key   string
	value string
}

func (b *pdfBuilder) addTable(headers []string, rows [][]string) {
	pageWidth := 180.0 // A4 width minus margins
	colWidth := pageWidth / float64(len(headers))

	b.pdf.SetFont("Arial", "B", 9)
	b.pdf.SetFillColor(52, 58, 64)
	b.pdf.SetTextColor(255, 255, 255)
	for _, h := range headers {
		b.pdf.CellFormat(colWidth, 8, h, "1", 0, "C", true, 0, "")
	}
	b.pdf.Ln(-1)

	b.pdf.SetFont("Arial", "", 9)
	b.pdf.SetTextColor(33, 37, 41)
	fill := false
	for _, row := range rows {
		if fill {
			b.pdf.SetFillColor(248, 249, 250)
		} else {
			b.pdf.SetFillColor(255, 255, 255)
		}
		for _, cell := range row {
			if len(cell) > 25 {
				cell = cell[:22] + "..."
			}
			b.pdf.CellFormat(colWidth, 7, cell, "1", 0, "L", true, 0, "")
		}
		b.pdf.Ln(-1)
		fill = !fill
	}

	b.pdf.Ln(5)
}

// addBarChart draws horizontal bars scaled against the largest value.
// Entries render in the order given.
func (b *pdfBuilder) addBarChart(entries []chartEntry) {
	max := 0
	for _, e := range entries {
		if e.value > max {
			max = e.value
		}
	}
	if max == 0 {
		max = 1
	}

	barMaxWidth := 100.0
	for _, e := range entries {
		b.pdf.SetFont("Arial", "", 9)
		b.pdf.SetTextColor(108, 117, 125)
		b.pdf.CellFormat(40, 6, e.label, "", 0, "L", false, 0, "")

		barWidth := float64(e.value) / float64(max) * barMaxWidth
		b.pdf.SetFillColor(66, 133, 244)
		b.pdf.CellFormat(barWidth, 6, "", "", 0, "L", true, 0, "")

		b.pdf.SetTextColor(33, 37, 41)
		b.pdf.CellFormat(30, 6, fmt.Sprintf(" %d", e.value), "", 1, "L", false, 0, "")
	}

	b.pdf.Ln(5)
}

type chartEntry struct {
	label string
	value int
}

func (b *pdfBuilder) output() ([]byte, error) {
	b.pdf.SetFooterFunc(func() {
		b.pdf.SetY(-15)
		b.pdf.SetFont("Arial", "I", 8)
		b.pdf.SetTextColor(128, 128, 128)
		b.pdf.CellFormat(0, 10, fmt.Sprintf("EBSight - Page %d", b.pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	var buf bytes.Buffer
	if err := b.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering PDF: %w", err)
	}

	return buf.Bytes(), nil
}
