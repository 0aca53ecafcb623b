package extract

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/dywsy21/wechat2pdf/internal/article"
)

// spanFormat is the inline formatting state carried down the subtree during
// flattening.
type spanFormat struct {
	bold   bool
	italic bool
	link   string
}

// flattenSpans converts the inline content of a block-producing element into
// contiguous spans. Emphasis tags toggle flags for their subtree, anchors
// attach a link target, and any other inline tag degrades to plain text.
func flattenSpans(n *html.Node) []article.Span {
	var spans []article.Span
	var walk func(*html.Node, spanFormat)
	walk = func(cur *html.Node, f spanFormat) {
		switch cur.Type {
		case html.TextNode:
			if text := collapseSpaces(cur.Data); text != "" {
				spans = append(spans, article.Span{Text: text, Bold: f.bold, Italic: f.italic, Link: f.link})
			}
			return
		case html.ElementNode:
			switch strings.ToLower(cur.Data) {
			case "b", "strong":
				f.bold = true
			case "i", "em":
				f.italic = true
			case "a":
				if href := strings.TrimSpace(attr(cur, "href")); href != "" {
					f.link = href
				}
			case "br":
				spans = append(spans, article.Span{Text: "\n", Bold: f.bold, Italic: f.italic, Link: f.link})
				return
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c, f)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, spanFormat{})
	}
	return tidySpans(spans)
}

// textSpan wraps a bare text node in a single plain span, or nil when the
// text is insignificant.
func textSpan(data string) []article.Span {
	text := normalizeText(data)
	if text == "" {
		return nil
	}
	return []article.Span{{Text: text}}
}

// tidySpans merges adjacent spans with identical formatting and trims the
// block's outer whitespace while keeping interior spacing intact, so the
// concatenation of span texts is exactly the block's visible text.
func tidySpans(spans []article.Span) []article.Span {
	if len(spans) == 0 {
		return nil
	}
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Bold == last.Bold && s.Italic == last.Italic && s.Link == last.Link {
			last.Text += s.Text
			continue
		}
		merged = append(merged, s)
	}
	// Trim leading whitespace off the front, trailing off the back.
	for len(merged) > 0 {
		merged[0].Text = strings.TrimLeft(merged[0].Text, " \n")
		if merged[0].Text != "" {
			break
		}
		merged = merged[1:]
	}
	for len(merged) > 0 {
		last := len(merged) - 1
		merged[last].Text = strings.TrimRight(merged[last].Text, " \n")
		if merged[last].Text != "" {
			break
		}
		merged = merged[:last]
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// normalizeText cleans metadata strings: NBSP to space, whitespace runs
// collapsed, outer whitespace trimmed.
func normalizeText(s string) string {
	return strings.TrimSpace(collapseSpaces(s))
}

// collapseSpaces folds whitespace runs to single spaces without trimming, so
// word boundaries between spans survive.
func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', ' ':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return b.String()
}
