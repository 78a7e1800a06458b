package document

import (
	"bytes"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"
)

// epoch stands in for a missing document date so output stays reproducible.
var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// PDFRenderer lays documents out on A4 pages with the core Helvetica font.
// Every line is measured before it is placed; a line that would cross the
// bottom margin starts a new page. Sections are written strictly in order.
type PDFRenderer struct {
	Margin     float64
	FontSize   float64
	LineHeight float64
	Creator    string
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Margin: 18, FontSize: 9.5, LineHeight: 5, Creator: "dealership"}
}

func (r *PDFRenderer) Render(doc Document) ([]byte, int, error) {
	date := doc.Date
	if date.IsZero() {
		date = epoch
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(r.Margin, r.Margin, r.Margin)
	pdf.SetAutoPageBreak(false, r.Margin)
	pdf.SetCreationDate(date.UTC())
	pdf.SetModificationDate(date.UTC())
	pdf.SetCatalogSort(true)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator(r.Creator, true)
	pdf.AliasNbPages("")

	w := &pdfWriter{
		pdf: pdf,
		r:   r,
		tr:  pdf.UnicodeTranslatorFromDescriptor(""),
	}
	pageW, pageH := pdf.GetPageSize()
	w.left = r.Margin
	w.width = pageW - 2*r.Margin
	w.bottom = pageH - r.Margin - 8

	pdf.SetFooterFunc(func() {
		pdf.SetY(pageH - r.Margin)
		pdf.SetFont("Helvetica", "", 7.5)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(w.width*0.7, 4, w.tr(doc.Footer), "T", 0, "L", false, 0, "")
		pdf.CellFormat(w.width*0.3, 4, fmt.Sprintf("page %d / {nb}", pdf.PageNo()), "T", 0, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()
	for _, s := range doc.Sections {
		w.section(s)
	}

	if pdf.Err() {
		return nil, 0, fmt.Errorf("render %s: %w", doc.Kind, pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, 0, fmt.Errorf("write %s: %w", doc.Kind, err)
	}
	return buf.Bytes(), pdf.PageCount(), nil
}

type pdfWriter struct {
	pdf    *gofpdf.Fpdf
	r      *PDFRenderer
	tr     func(string) string
	left   float64
	width  float64
	bottom float64
}

// ensure starts a new page when h more millimetres do not fit.
func (w *pdfWriter) ensure(h float64) {
	if w.pdf.GetY()+h > w.bottom {
		w.pdf.AddPage()
	}
}

func (w *pdfWriter) font(style string, size float64) {
	w.pdf.SetFont("Helvetica", style, size)
}

func (w *pdfWriter) lines(text string, width float64) []string {
	raw := w.pdf.SplitLines([]byte(w.tr(text)), width)
	if len(raw) == 0 {
		return []string{""}
	}
	out := make([]string, len(raw))
	for i, l := range raw {
		out[i] = string(l)
	}
	return out
}

func (w *pdfWriter) section(s Section) {
	lh := w.r.LineHeight
	if s.Heading != "" {
		// keep a heading on the same page as its first line
		w.ensure(2*lh + 3)
		w.pdf.Ln(2)
		w.font("B", w.r.FontSize+1.5)
		w.pdf.SetX(w.left)
		w.pdf.CellFormat(w.width, lh+1, w.tr(s.Heading), "B", 1, "L", false, 0, "")
		w.pdf.Ln(1)
	}
	for _, b := range s.Blocks {
		switch b := b.(type) {
		case Paragraph:
			w.paragraph(b)
		case Fields:
			w.fields(b)
		case Table:
			w.table(b)
		case Checklist:
			w.checklist(b)
		case Signatures:
			w.signatures(b)
		}
	}
	w.pdf.Ln(1.5)
}

func (w *pdfWriter) paragraph(p Paragraph) {
	size, lh := w.r.FontSize, w.r.LineHeight
	if p.Large {
		size, lh = size+6, lh+3
	}
	style := ""
	if p.Bold {
		style = "B"
	}
	align := string(p.Align)
	if align == "" {
		align = string(AlignLeft)
	}

	w.font(style, size)
	text := p.Text
	if text == "" {
		text = Placeholder
	}
	for _, line := range w.lines(text, w.width) {
		w.ensure(lh)
		w.pdf.SetX(w.left)
		w.pdf.CellFormat(w.width, lh, line, "", 1, align, false, 0, "")
	}
}

func (w *pdfWriter) fields(f Fields) {
	lh := w.r.LineHeight
	labelW := w.width * 0.32
	valueW := w.width - labelW

	for _, row := range f.Rows {
		w.font("B", w.r.FontSize)
		labels := w.lines(row.Label, labelW)
		w.font("", w.r.FontSize)
		values := w.lines(Text(row.Value), valueW)

		n := max(len(labels), len(values))
		for i := 0; i < n; i++ {
			w.ensure(lh)
			w.pdf.SetX(w.left)
			w.font("B", w.r.FontSize)
			w.pdf.CellFormat(labelW, lh, at(labels, i), "", 0, "L", false, 0, "")
			w.font("", w.r.FontSize)
			w.pdf.CellFormat(valueW, lh, at(values, i), "", 1, "L", false, 0, "")
		}
	}
}

func (w *pdfWriter) table(t Table) {
	lh := w.r.LineHeight
	widths := make([]float64, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = w.width * c.Width
	}

	w.font("B", w.r.FontSize)
	w.ensure(2 * lh)
	w.pdf.SetX(w.left)
	w.pdf.SetFillColor(235, 235, 235)
	for i, c := range t.Columns {
		ln := 0
		if i == len(t.Columns)-1 {
			ln = 1
		}
		w.pdf.CellFormat(widths[i], lh+1, w.tr(c.Header), "B", ln, string(c.Align), true, 0, "")
	}

	w.font("", w.r.FontSize)
	for _, row := range t.Rows {
		cells := make([][]string, len(t.Columns))
		n := 1
		for i := range t.Columns {
			cells[i] = w.lines(Text(at(row, i)), widths[i])
			n = max(n, len(cells[i]))
		}
		for li := 0; li < n; li++ {
			w.ensure(lh)
			w.pdf.SetX(w.left)
			for i, c := range t.Columns {
				ln := 0
				if i == len(t.Columns)-1 {
					ln = 1
				}
				w.pdf.CellFormat(widths[i], lh, at(cells[i], li), "", ln, string(c.Align), false, 0, "")
			}
		}
	}
}

func (w *pdfWriter) checklist(c Checklist) {
	lh := w.r.LineHeight
	box := 3.2
	textW := w.width - box - 3

	w.font("", w.r.FontSize)
	for _, it := range c.Items {
		for i, line := range w.lines(it.Label, textW) {
			w.ensure(lh)
			y := w.pdf.GetY()
			if i == 0 {
				w.pdf.Rect(w.left, y+(lh-box)/2, box, box, "D")
				if it.Checked {
					w.pdf.Line(w.left+0.6, y+(lh-box)/2+0.6, w.left+box-0.6, y+(lh+box)/2-0.6)
					w.pdf.Line(w.left+0.6, y+(lh+box)/2-0.6, w.left+box-0.6, y+(lh-box)/2+0.6)
				}
			}
			w.pdf.SetX(w.left + box + 3)
			w.pdf.CellFormat(textW, lh, line, "", 1, "L", false, 0, "")
		}
	}
}

func (w *pdfWriter) signatures(s Signatures) {
	const perRow = 2
	lh := w.r.LineHeight
	colW := w.width / perRow
	blockH := 6*lh + 4

	for start := 0; start < len(s.Parties); start += perRow {
		row := s.Parties[start:min(start+perRow, len(s.Parties))]
		w.ensure(blockH)
		top := w.pdf.GetY() + 2

		for i, p := range row {
			x := w.left + float64(i)*colW
			w.pdf.SetXY(x, top)
			w.font("B", w.r.FontSize)
			w.pdf.CellFormat(colW-6, lh, w.tr(p.Role), "", 0, "L", false, 0, "")

			lineY := top + 4*lh
			w.pdf.Line(x, lineY, x+colW-10, lineY)
			w.pdf.SetXY(x, lineY+1)
			w.font("", w.r.FontSize)
			w.pdf.CellFormat(colW-6, lh, w.tr(p.Name), "", 0, "L", false, 0, "")
		}
		w.pdf.SetXY(w.left, top+blockH)
	}
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}
