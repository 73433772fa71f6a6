package report

import (
	"fmt"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/jamesruggles/carbonara/internal/badge"
)

const (
	pageMargin = 40.0
	pageWidth  = 595.28
	pageHeight = 841.89
	lineGap    = 4.0
)

var badgeRGB = map[badge.Color][3]uint8{
	badge.Green:  {46, 160, 67},
	badge.Yellow: {210, 153, 34},
	badge.Orange: {219, 109, 40},
	badge.Red:    {218, 54, 51},
	badge.None:   {150, 150, 150},
}

// pdfWriter flows text down the page, starting new pages as needed.
type pdfWriter struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *pdfWriter) font(family string, size float64) {
	if w.err != nil {
		return
	}
	w.err = w.pdf.SetFont(family, "", size)
}

func (w *pdfWriter) ensure(height float64) {
	if w.pdf.GetY()+height > pageHeight-pageMargin {
		w.pdf.AddPage()
		w.pdf.SetXY(pageMargin, pageMargin)
	}
}

// text writes s wrapped to the printable width, indented by indent.
func (w *pdfWriter) text(s string, size, indent float64) {
	if w.err != nil {
		return
	}
	width := pageWidth - 2*pageMargin - indent
	lines, err := w.pdf.SplitText(s, width)
	if err != nil {
		lines = []string{s}
	}
	for _, line := range lines {
		w.ensure(size + lineGap)
		w.pdf.SetX(pageMargin + indent)
		if err := w.pdf.Cell(&gopdf.Rect{W: width, H: size + lineGap}, line); err != nil {
			w.err = err
			return
		}
		w.pdf.Br(size + lineGap)
	}
}

func (w *pdfWriter) space(h float64) {
	w.pdf.Br(h)
}

// swatch draws a badge-coloured square at the current line.
func (w *pdfWriter) swatch(c badge.Color, size float64) {
	rgb, ok := badgeRGB[c]
	if !ok {
		rgb = badgeRGB[badge.None]
	}
	w.pdf.SetFillColor(rgb[0], rgb[1], rgb[2])
	w.pdf.RectFromUpperLeftWithStyle(pageMargin, w.pdf.GetY()+2, size, size, "F")
}

func (g *Generator) pdf(s *snapshot) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	if err := pdf.AddTTFFontData("go", goregular.TTF); err != nil {
		return nil, fmt.Errorf("loading font: %w", err)
	}
	if err := pdf.AddTTFFontData("go-bold", gobold.TTF); err != nil {
		return nil, fmt.Errorf("loading font: %w", err)
	}
	pdf.AddPage()
	pdf.SetXY(pageMargin, pageMargin)

	w := &pdfWriter{pdf: pdf}

	w.font("go-bold", 18)
	w.text("Carbonara Assessment Report: "+s.title, 18, 0)
	w.font("go", 10)
	pdf.SetTextColor(90, 90, 90)
	w.text("Generated "+s.generatedAt.Format("January 2, 2006 15:04:05 MST"), 10, 0)
	pdf.SetTextColor(0, 0, 0)
	w.space(8)

	w.font("go", 11)
	w.text(fmt.Sprintf("%d stored result(s) from %d tool(s), %d finding(s).", len(s.records), len(s.groups), s.findingCount()), 11, 0)
	for _, c := range s.categoryCounts() {
		w.text(fmt.Sprintf("%s: %d (environmental impact %s)", c.category.Name, c.count, c.category.EnvironmentalImpact), 10, 12)
	}
	w.space(8)

	for _, group := range s.groups {
		w.ensure(40)
		w.font("go-bold", 14)
		w.text(group.DisplayName, 14, 0)
		for _, entry := range group.Entries {
			w.ensure(30)
			w.swatch(entry.BadgeColor, 9)
			w.font("go-bold", 11)
			w.text(entry.Label, 11, 14)
			w.font("go", 9)
			pdf.SetTextColor(90, 90, 90)
			w.text(entry.Description, 9, 14)
			pdf.SetTextColor(0, 0, 0)
			for _, d := range g.builder.CreateDataDetails(s.byID[entry.ID]) {
				w.text(d.Label, 9, 24)
			}
			w.space(4)
		}
		w.space(6)
	}

	if w.err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", w.err)
	}
	out, err := pdf.GetBytesPdfReturnErr()
	if err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return out, nil
}
