// Package article defines the content model shared by the extractor and the
// renderer: an ordered sequence of typed blocks with inline formatting spans.
package article

import "strings"

// Kind discriminates Block variants. Classification is a closed set; adding a
// new block kind means adding a constant here and a case in the extractor and
// renderer.
type Kind int

const (
	KindParagraph Kind = iota
	KindHeading
	KindImage
	KindListItem
	KindQuote
)

// Span is a contiguous run of text with inline formatting. Spans within one
// block never overlap and concatenate to the block's full visible text.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
	// Link holds the target URL when the span originated inside an anchor.
	Link string
}

// Block is one structurally distinct unit of article content. Fields are
// populated per Kind: Spans for text-bearing kinds, Level for headings,
// ImageURL/Caption for images, Ordered for list items.
type Block struct {
	Kind     Kind
	Level    int
	Spans    []Span
	ImageURL string
	Caption  string
	Ordered  bool
}

// Text returns the concatenated visible text of the block's spans.
func (b Block) Text() string {
	var sb strings.Builder
	for _, s := range b.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// Article is the extracted content of one page: metadata plus blocks in
// original document order.
type Article struct {
	Title       string
	Author      string
	PublishedAt string
	BaseURL     string
	Blocks      []Block
}

// ImageURLs returns the distinct resolved image URLs across all blocks, in
// first-appearance order. Blocks with an empty URL (unresolved source) are
// skipped.
func (a Article) ImageURLs() []string {
	seen := make(map[string]bool, len(a.Blocks))
	urls := make([]string, 0, len(a.Blocks))
	for _, b := range a.Blocks {
		if b.Kind != KindImage || b.ImageURL == "" || seen[b.ImageURL] {
			continue
		}
		seen[b.ImageURL] = true
		urls = append(urls, b.ImageURL)
	}
	return urls
}

// ImageState tracks the lifecycle of one referenced image through resolution.
type ImageState int

const (
	// ImageUnresolved marks an image block whose source URL was absent or
	// could not be made absolute.
	ImageUnresolved ImageState = iota
	// ImageFetchFailed marks a resolvable URL whose download failed.
	ImageFetchFailed
	// ImageReady marks a downloaded image whose bytes are ready to embed.
	ImageReady
)

// Image holds the outcome of fetching one image URL.
type Image struct {
	URL    string
	State  ImageState
	Bytes  []byte
	Format string
}

// ImageSet maps original image URLs to fetch outcomes for one conversion run.
type ImageSet map[string]Image

// Lookup returns the image for url. A missing entry reports ImageUnresolved so
// the renderer degrades to a placeholder without a nil check at every call
// site.
func (s ImageSet) Lookup(url string) Image {
	if img, ok := s[url]; ok {
		return img
	}
	return Image{URL: url, State: ImageUnresolved}
}
