// Package extract turns raw crawled HTML into ImageDocuments ready for
// embedding and indexing.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxAltLen     = 500
	maxTitleLen   = 200
	maxClassLen   = 300
	maxContextLen = 1000
	maxTextLen    = 2000
	maxURLLen     = 1000
)

// lazySrcAttrs are the attributes checked, in order, for an img tag's URL.
var lazySrcAttrs = []string{"src", "data-src", "data-lazy-src", "data-srcset"}

// Extractor parses HTML and produces one ImageDocument per image URL found
// in img and picture/source tags.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the image documents found in rawHTML. Relative image URLs
// are resolved against pageURL before document creation, so ImgURL is always
// absolute. A parse failure returns an error; a page without images returns
// an empty slice.
func (e *Extractor) Extract(rawHTML, pageURL string) ([]ImageDocument, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing html from %s: %w", pageURL, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url %s: %w", pageURL, err)
	}

	var docs []ImageDocument

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		raw := firstAttr(sel, lazySrcAttrs)
		if raw == "" {
			return
		}
		ctx := imgContext(sel)
		for _, imgURL := range splitSrcset(raw, base) {
			docs = append(docs, buildDocument(imgURL, "img", ctx, pageURL))
		}
	})

	doc.Find("source").Each(func(_ int, sel *goquery.Selection) {
		srcset, ok := sel.Attr("srcset")
		if !ok || srcset == "" {
			return
		}
		ctx := sourceContext(sel)
		for _, imgURL := range splitSrcset(srcset, base) {
			docs = append(docs, buildDocument(imgURL, "source", ctx, pageURL))
		}
	})

	return docs, nil
}

// tagContext carries the text extracted around one image element.
type tagContext struct {
	alt     string
	title   string
	class   string
	context string
}

func buildDocument(imgURL, tagType string, ctx tagContext, pageURL string) ImageDocument {
	text := fmt.Sprintf("Alt: %s | Title: %s | Class: %s | Context: %s",
		ctx.alt, ctx.title, ctx.class, ctx.context)
	return ImageDocument{
		Text:      truncate(text, maxTextLen),
		ImgURL:    truncate(imgURL, maxURLLen),
		ImgFormat: FormatFromURL(imgURL),
		AltText:   ctx.alt,
		Title:     ctx.title,
		Class:     ctx.class,
		TagType:   tagType,
		SourceURL: truncate(pageURL, maxURLLen),
	}
}

// firstAttr returns the first non-empty value among attrs on the selection.
func firstAttr(sel *goquery.Selection, attrs []string) string {
	for _, attr := range attrs {
		if v := strings.TrimSpace(sel.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

// imgContext pulls alt/title/class and surrounding text from an img tag.
func imgContext(sel *goquery.Selection) tagContext {
	ctx := tagContext{
		alt:   truncate(sel.AttrOr("alt", ""), maxAltLen),
		title: truncate(sel.AttrOr("title", ""), maxTitleLen),
		class: truncate(sel.AttrOr("class", ""), maxClassLen),
	}
	ctx.context = buildContextString(ctx, sel)
	return ctx
}

// sourceContext pulls context for a source tag from the enclosing picture's
// img element, since source tags carry no alt text of their own.
func sourceContext(sel *goquery.Selection) tagContext {
	var ctx tagContext
	if img := sel.Closest("picture").Find("img").First(); img.Length() > 0 {
		ctx.alt = truncate(img.AttrOr("alt", ""), maxAltLen)
		ctx.title = truncate(img.AttrOr("title", ""), maxTitleLen)
		ctx.class = truncate(img.AttrOr("class", ""), maxClassLen)
	}
	ctx.context = buildContextString(ctx, sel)
	return ctx
}

func buildContextString(ctx tagContext, sel *goquery.Selection) string {
	var parts []string
	if ctx.alt != "" {
		parts = append(parts, "Alt: "+ctx.alt)
	}
	if ctx.title != "" {
		parts = append(parts, "Title: "+ctx.title)
	}
	if ctx.class != "" {
		parts = append(parts, "Class: "+ctx.class)
	}
	if parent := sel.Parent(); parent.Length() > 0 {
		parentText := strings.TrimSpace(parent.Text())
		if parentText != "" {
			if len(parentText) > 150 {
				parentText = parentText[:150] + "..."
			}
			parts = append(parts, "Parent text: "+parentText)
		}
	}
	return truncate(strings.Join(parts, " | "), maxContextLen)
}

// splitSrcset expands a src or srcset value into absolute URLs, dropping
// width/density descriptors and data: URIs.
func splitSrcset(raw string, base *url.URL) []string {
	var urls []string
	for _, part := range strings.Split(raw, ",") {
		candidate := strings.Fields(strings.TrimSpace(part))
		if len(candidate) == 0 {
			continue
		}
		u := candidate[0]
		if strings.HasPrefix(u, "data:") {
			continue
		}
		abs := absoluteURL(u, base)
		if abs != "" {
			urls = append(urls, abs)
		}
	}
	return urls
}

// absoluteURL resolves a possibly relative image URL against the page URL.
func absoluteURL(raw string, base *url.URL) string {
	switch {
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return raw
	default:
		ref, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return base.ResolveReference(ref).String()
	}
}

// FormatFromURL derives the lowercase format token from an image URL.
func FormatFromURL(imgURL string) string {
	lower := strings.ToLower(imgURL)
	switch {
	case strings.Contains(lower, ".jpg"), strings.Contains(lower, ".jpeg"):
		return "jpg"
	case strings.Contains(lower, ".png"):
		return "png"
	case strings.Contains(lower, ".svg"):
		return "svg"
	case strings.Contains(lower, ".webp"):
		return "webp"
	case strings.Contains(lower, ".gif"):
		return "gif"
	default:
		return "unknown"
	}
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
