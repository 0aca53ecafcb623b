// Package render maps an extracted article onto a PDF document. Block order
// is the primary fidelity goal: every block, including image placeholders,
// lands at its original sequence position.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/dywsy21/wechat2pdf/internal/article"
)

// ErrEmptyDocument means zero blocks rendered successfully, so there is
// nothing worth writing.
var ErrEmptyDocument = errors.New("no renderable content")

const (
	bodyFontSize    = 11.0
	bodyLineHeight  = 5.5
	captionFontSize = 9.0
	// maxHeadingLevel clamps body heading levels; the article title occupies
	// level 1, body headings are offset one below it.
	maxHeadingLevel = 5
	// DefaultImageMaxWidth is the widest an embedded image may render, in mm.
	DefaultImageMaxWidth = 160.0
)

// headingSizes indexes font size by clamped heading level.
var headingSizes = [maxHeadingLevel + 1]float64{0, 18, 16, 14, 13, 12}

// Renderer writes articles as A4 portrait PDFs. The zero value is usable.
type Renderer struct {
	// ImageMaxWidth caps embedded image width in mm; zero means
	// DefaultImageMaxWidth.
	ImageMaxWidth float64
}

// Render produces the PDF bytes for an article with its resolved images.
// A block that cannot be rendered is skipped and reported as a warning rather
// than failing the document; rendering fails only when no block succeeds.
func (r *Renderer) Render(a article.Article, images article.ImageSet) ([]byte, []string, error) {
	if len(a.Blocks) == 0 {
		return nil, nil, ErrEmptyDocument
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	// Fixed creation date keeps output byte-identical for identical inputs.
	pdf.SetCreationDate(time.Unix(0, 0))
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", bodyFontSize)
	pdf.AddPage()

	writeFrontMatter(pdf, tr, a)

	s := &sheet{pdf: pdf, tr: tr, maxImageWidth: r.ImageMaxWidth}
	if s.maxImageWidth <= 0 {
		s.maxImageWidth = DefaultImageMaxWidth
	}

	rendered := 0
	counts := orderedRunCounts(a.Blocks)
	for i, b := range a.Blocks {
		if ok := s.writeBlock(b, images, counts[i]); ok {
			rendered++
		} else {
			s.warnings = append(s.warnings, fmt.Sprintf("block %d (%s) skipped", i+1, kindName(b.Kind)))
		}
	}
	if rendered == 0 {
		return nil, s.warnings, ErrEmptyDocument
	}
	if pdf.Err() {
		return nil, s.warnings, fmt.Errorf("render pdf: %v", pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, s.warnings, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), s.warnings, nil
}

// orderedRunCounts returns, per block, its 1-based position within a
// consecutive run of ordered list items, or 0 for every other block. Numbering
// restarts whenever the run is interrupted by any other block kind.
func orderedRunCounts(blocks []article.Block) []int {
	counts := make([]int, len(blocks))
	run := 0
	for i, b := range blocks {
		if b.Kind == article.KindListItem && b.Ordered {
			run++
			counts[i] = run
			continue
		}
		run = 0
	}
	return counts
}

// writeFrontMatter renders the article title and byline ahead of the body.
func writeFrontMatter(pdf *gofpdf.Fpdf, tr func(string) string, a article.Article) {
	if a.Title != "" {
		pdf.SetFont("Helvetica", "B", headingSizes[1])
		pdf.MultiCell(0, 9, tr(a.Title), "", "C", false)
		pdf.Ln(2)
	}
	byline := a.Author
	if a.PublishedAt != "" {
		if byline != "" {
			byline += "  ·  "
		}
		byline += a.PublishedAt
	}
	if byline != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(120, 120, 120)
		pdf.MultiCell(0, 5, tr(byline), "", "C", false)
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(4)
}

// sheet tracks per-document rendering state.
type sheet struct {
	pdf           *gofpdf.Fpdf
	tr            func(string) string
	maxImageWidth float64
	warnings      []string
	imageCount    int
}

func (s *sheet) writeBlock(b article.Block, images article.ImageSet, orderedCount int) bool {
	switch b.Kind {
	case article.KindHeading:
		s.writeHeading(b)
	case article.KindParagraph:
		s.writeSpans(b.Spans)
		s.pdf.Ln(bodyLineHeight + 2)
	case article.KindImage:
		s.writeImage(b, images)
	case article.KindListItem:
		s.writeListItem(b, orderedCount)
	case article.KindQuote:
		s.writeQuote(b)
	default:
		return false
	}
	return true
}

func (s *sheet) writeHeading(b article.Block) {
	level := b.Level + 1
	if level < 2 {
		level = 2
	}
	if level > maxHeadingLevel {
		level = maxHeadingLevel
	}
	s.pdf.Ln(2)
	s.pdf.SetFont("Helvetica", "B", headingSizes[level])
	s.pdf.MultiCell(0, headingSizes[level]*0.55, s.tr(b.Text()), "", "L", false)
	s.pdf.SetFont("Helvetica", "", bodyFontSize)
	s.pdf.Ln(2)
}

// writeSpans writes one run per span, mapping bold/italic flags to font
// styles. Link spans render their text followed by the target URL in
// parentheses; the minimal PDF form carries no native hyperlinks.
func (s *sheet) writeSpans(spans []article.Span) {
	for _, sp := range spans {
		style := ""
		if sp.Bold {
			style += "B"
		}
		if sp.Italic {
			style += "I"
		}
		s.pdf.SetFont("Helvetica", style, bodyFontSize)
		text := sp.Text
		if sp.Link != "" {
			text = fmt.Sprintf("%s (%s)", text, sp.Link)
		}
		s.pdf.Write(bodyLineHeight, s.tr(text))
	}
	s.pdf.SetFont("Helvetica", "", bodyFontSize)
}

func (s *sheet) writeImage(b article.Block, images article.ImageSet) {
	img := images.Lookup(b.ImageURL)
	if img.State != article.ImageReady {
		s.writePlaceholder(b)
		return
	}

	s.imageCount++
	name := fmt.Sprintf("img%d", s.imageCount)
	opts := gofpdf.ImageOptions{ImageType: img.Format}
	info := s.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Bytes))
	if info == nil || s.pdf.Err() {
		// Corrupt bytes that slipped past the format sniff. Clear the sticky
		// error so one bad image cannot fail the whole document.
		s.pdf.ClearError()
		s.writePlaceholder(b)
		return
	}

	left, _, right, _ := s.pdf.GetMargins()
	pageW, _ := s.pdf.GetPageSize()
	contentW := pageW - left - right
	w := s.maxImageWidth
	if w > contentW {
		w = contentW
	}
	if info.Width() < w {
		w = info.Width()
	}
	x := left + (contentW-w)/2

	s.pdf.Ln(2)
	s.pdf.ImageOptions(name, x, 0, w, 0, true, opts, 0, "")
	s.pdf.Ln(2)

	if b.Caption != "" {
		s.pdf.SetFont("Helvetica", "I", captionFontSize)
		s.pdf.SetTextColor(120, 120, 120)
		s.pdf.MultiCell(0, 4.5, s.tr(b.Caption), "", "C", false)
		s.pdf.SetTextColor(0, 0, 0)
		s.pdf.SetFont("Helvetica", "", bodyFontSize)
		s.pdf.Ln(1)
	}
}

// writePlaceholder keeps the image's sequence position visible when its bytes
// never arrived.
func (s *sheet) writePlaceholder(b article.Block) {
	text := "[image could not be loaded]"
	if b.Caption != "" {
		text = fmt.Sprintf("[image could not be loaded: %s]", b.Caption)
	}
	s.pdf.SetFont("Helvetica", "I", bodyFontSize)
	s.pdf.SetTextColor(150, 150, 150)
	s.pdf.MultiCell(0, bodyLineHeight, s.tr(text), "", "C", false)
	s.pdf.SetTextColor(0, 0, 0)
	s.pdf.SetFont("Helvetica", "", bodyFontSize)
	s.pdf.Ln(2)
}

func (s *sheet) writeListItem(b article.Block, orderedCount int) {
	marker := "• "
	if b.Ordered {
		marker = fmt.Sprintf("%d. ", orderedCount)
	}
	left, _, _, _ := s.pdf.GetMargins()
	s.pdf.SetX(left + 4)
	s.pdf.Write(bodyLineHeight, s.tr(marker))
	s.writeSpans(b.Spans)
	s.pdf.Ln(bodyLineHeight + 1)
}

func (s *sheet) writeQuote(b article.Block) {
	left, _, _, _ := s.pdf.GetMargins()
	s.pdf.SetLeftMargin(left + 8)
	s.pdf.SetX(left + 8)
	s.pdf.SetFont("Helvetica", "I", bodyFontSize)
	s.pdf.SetTextColor(100, 100, 100)
	s.pdf.MultiCell(0, bodyLineHeight, s.tr(b.Text()), "", "L", false)
	s.pdf.SetTextColor(0, 0, 0)
	s.pdf.SetFont("Helvetica", "", bodyFontSize)
	s.pdf.SetLeftMargin(left)
	s.pdf.Ln(2)
}

func kindName(k article.Kind) string {
	switch k {
	case article.KindParagraph:
		return "paragraph"
	case article.KindHeading:
		return "heading"
	case article.KindImage:
		return "image"
	case article.KindListItem:
		return "list item"
	case article.KindQuote:
		return "quote"
	default:
		return "unknown"
	}
}
