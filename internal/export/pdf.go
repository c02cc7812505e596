package export

import (
	"fmt"
	"io"

	"github.com/Priya8975/traffic-tracker/internal/domain"
	"github.com/go-pdf/fpdf"
)

const (
	pdfTitle      = "Event Log Export"
	pdfFontSize   = 7
	pdfRowHeight  = 6
	pdfPageMargin = 10
)

// pdfWidths are the column widths in mm for PDFColumns on landscape Letter.
var pdfWidths = []float64{24, 40, 30, 36, 30, 20, 20, 16, 14, 29}

// WritePDF renders the events as a single table on landscape Letter pages.
func WritePDF(w io.Writer, events []domain.Event) error {
	pdf := fpdf.New("L", "mm", "Letter", "")
	pdf.SetMargins(pdfPageMargin, pdfPageMargin, pdfPageMargin)
	pdf.SetAutoPageBreak(true, pdfPageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, pdfTitle, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	header := func() {
		pdf.SetFont("Helvetica", "B", pdfFontSize)
		pdf.SetFillColor(128, 128, 128)
		pdf.SetTextColor(245, 245, 245)
		for i, col := range PDFColumns {
			pdf.CellFormat(pdfWidths[i], pdfRowHeight+2, headerTitle(col), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", pdfFontSize)
		pdf.SetFillColor(245, 245, 220)
		pdf.SetTextColor(0, 0, 0)
	}

	_, pageHeight := pdf.GetPageSize()
	header()
	for _, e := range events {
		if pdf.GetY()+pdfRowHeight > pageHeight-pdfPageMargin {
			pdf.AddPage()
			header()
		}
		for i, col := range PDFColumns {
			text := fit(pdf, tr, field(e, col), pdfWidths[i]-2)
			pdf.CellFormat(pdfWidths[i], pdfRowHeight, text, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("rendering pdf: %w", err)
	}
	return nil
}

// fit translates s for the core font, truncating it with an ellipsis until it
// is no wider than width.
func fit(pdf *fpdf.Fpdf, tr func(string) string, s string, width float64) string {
	if out := tr(s); pdf.GetStringWidth(out) <= width {
		return out
	}
	// Truncate the UTF-8 text so a cut never splits a character.
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := tr(string(runes) + "...")
		if pdf.GetStringWidth(candidate) <= width {
			return candidate
		}
	}
	return ""
}
