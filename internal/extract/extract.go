// Package extract turns raw article markup into an ordered sequence of typed
// content blocks. The platform's markup is irregular, so everything here is a
// prioritized chain of selectors and a fixed classification table rather than
// a grammar.
package extract

import (
	"bytes"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/dywsy21/wechat2pdf/internal/article"
)

// ErrStructureNotFound means the markup parsed but no known content container
// matched, so the page layout is unrecognized.
var ErrStructureNotFound = errors.New("article structure not recognized")

// DefaultContainerSelectors is the ordered chain of content container
// selectors, first match wins. The trailing generic "article" entry keeps the
// extractor usable on non-platform pages.
var DefaultContainerSelectors = []string{
	"div.rich_media_content",
	"div#js_content",
	"div.article-content",
	"div.rich_media_wrp",
	"div.content-article",
	"div.wx-article-content",
	"article",
}

var titleSelectors = []string{
	"h1.rich_media_title",
	"h1#activity-name",
	"h1.activity-name",
	"h2.rich_media_title",
	"h1.title",
	"meta[property=\"og:title\"]",
}

var authorSelectors = []string{
	"a.wx_tap_link",
	"a.rich_media_meta_link",
	"span.rich_media_meta_text",
	"div#js_profile_qrcode strong.profile_nickname",
	"div.profile_nickname",
	"meta[name=\"author\"]",
}

var dateSelectors = []string{
	"#publish_time",
	".publish_time",
	".rich_media_createtime",
	"em.rich_media_meta_text",
}

var datePattern = regexp.MustCompile(`\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}[-/]\d{1,2}[-/]\d{4}`)

// imageSrcAttrs is the attribute priority for image sources. The platform
// lazy-loads images, so data-src usually carries the real URL while src holds
// a placeholder.
var imageSrcAttrs = []string{"data-src", "src", "data-url", "data-backh-src"}

const defaultTitle = "WeChat Article"
const defaultAuthor = "Unknown Author"

// Extractor parses markup into an article.Article. The zero value uses the
// default selector chain.
type Extractor struct {
	// ContainerSelectors overrides DefaultContainerSelectors when non-nil.
	ContainerSelectors []string
}

// Extract parses markup and returns the article's metadata and ordered
// blocks. baseURL is used to absolutize relative image sources. It returns
// ErrStructureNotFound when no container selector matches.
func (e *Extractor) Extract(markup []byte, baseURL string) (article.Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return article.Article{}, err
	}
	doc.Find("script, style, noscript").Remove()

	base, _ := url.Parse(baseURL)

	container, err := e.findContainer(doc)
	if err != nil {
		return article.Article{}, err
	}

	a := article.Article{
		Title:       findTitle(doc),
		Author:      findAuthor(doc),
		PublishedAt: findDate(doc),
		BaseURL:     baseURL,
	}

	w := &walker{base: base}
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}
	a.Blocks = w.blocks
	return a, nil
}

func (e *Extractor) findContainer(doc *goquery.Document) (*html.Node, error) {
	selectors := e.ContainerSelectors
	if selectors == nil {
		selectors = DefaultContainerSelectors
	}
	for _, s := range selectors {
		if sel := doc.Find(s); sel.Length() > 0 {
			return sel.Nodes[0], nil
		}
	}
	return nil, ErrStructureNotFound
}

func findTitle(doc *goquery.Document) string {
	for _, s := range titleSelectors {
		sel := doc.Find(s)
		if sel.Length() == 0 {
			continue
		}
		var title string
		if strings.HasPrefix(s, "meta") {
			title = sel.AttrOr("content", "")
		} else {
			title = sel.First().Text()
		}
		if title = normalizeText(title); title != "" {
			return title
		}
	}
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		if title := normalizeText(h1.Text()); title != "" {
			return title
		}
	}
	return defaultTitle
}

func findAuthor(doc *goquery.Document) string {
	for _, s := range authorSelectors {
		sel := doc.Find(s)
		if sel.Length() == 0 {
			continue
		}
		var author string
		if strings.HasPrefix(s, "meta") {
			author = sel.AttrOr("content", "")
		} else {
			author = sel.First().Text()
		}
		if author = normalizeText(author); author != "" {
			return author
		}
	}
	return defaultAuthor
}

func findDate(doc *goquery.Document) string {
	for _, s := range dateSelectors {
		var found string
		doc.Find(s).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := normalizeText(sel.Text())
			if datePattern.MatchString(text) {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// walker accumulates blocks while traversing the container subtree in
// document order.
type walker struct {
	base   *url.URL
	blocks []article.Block
}

// visit classifies one node. Precedence: heading tags, images, list
// containers, blockquotes, then paragraph-like elements; every other element
// is a transparent container whose children are still visited.
func (w *walker) visit(n *html.Node) {
	if n.Type == html.TextNode {
		// Stray text directly inside a container becomes its own paragraph.
		if spans := textSpan(n.Data); len(spans) > 0 {
			w.emit(article.Block{Kind: article.KindParagraph, Spans: spans})
		}
		return
	}
	if n.Type != html.ElementNode {
		return
	}

	switch strings.ToLower(n.Data) {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		w.emit(article.Block{Kind: article.KindHeading, Level: level, Spans: flattenSpans(n)})
	case "img":
		w.emitImage(n)
	case "ul", "ol":
		w.emitList(n, strings.EqualFold(n.Data, "ol"))
	case "blockquote":
		w.emit(article.Block{Kind: article.KindQuote, Spans: flattenSpans(n)})
	case "p", "section", "div", "span":
		if hasBlockDescendant(n) {
			w.recurse(n)
			return
		}
		w.emit(article.Block{Kind: article.KindParagraph, Spans: flattenSpans(n)})
	default:
		w.recurse(n)
	}
}

func (w *walker) recurse(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}
}

// emit appends the block unless it carries no reproducible content.
func (w *walker) emit(b article.Block) {
	if strings.TrimSpace(b.Text()) == "" {
		return
	}
	w.blocks = append(w.blocks, b)
}

func (w *walker) emitImage(n *html.Node) {
	src := imageSource(n, w.base)
	// An image block with no source is kept but unresolved; the renderer
	// degrades it to a placeholder.
	w.blocks = append(w.blocks, article.Block{
		Kind:     article.KindImage,
		ImageURL: src,
		Caption:  normalizeText(attr(n, "alt")),
	})
}

func (w *walker) emitList(n *html.Node, ordered bool) {
	var items func(*html.Node)
	items = func(cur *html.Node) {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && strings.EqualFold(c.Data, "li") {
				w.emit(article.Block{Kind: article.KindListItem, Ordered: ordered, Spans: flattenSpans(c)})
				continue
			}
			items(c)
		}
	}
	items(n)
}

// hasBlockDescendant reports whether the subtree contains elements that must
// become their own blocks, which makes the current element a transparent
// container rather than a single paragraph.
func hasBlockDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			switch strings.ToLower(c.Data) {
			case "img", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "blockquote", "p", "section", "div":
				return true
			}
			if hasBlockDescendant(c) {
				return true
			}
		}
	}
	return false
}

// imageSource returns the absolute image URL from the prioritized source
// attributes, or "" when the source is absent or cannot be made absolute.
func imageSource(n *html.Node, base *url.URL) string {
	var raw string
	for _, a := range imageSrcAttrs {
		if v := strings.TrimSpace(attr(n, a)); v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		return ""
	}
	// Protocol-relative URLs are common on the platform's CDN.
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return u.String()
	}
	if base == nil || !base.IsAbs() {
		return ""
	}
	return base.ResolveReference(u).String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
