package worker

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Field limits applied to everything scraped from third-party markup
const (
	maxTitleLength = 200
	maxImageLength = 500
	maxPriceLength = 50
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)

	// A quoted amount such as "$49.99", '12,50' or "€ 10.00"
	quotedPriceRegex = regexp.MustCompile(`["'](?:[$€£₺]?\s?\d+[.,]\d{2})["']`)
)

// ProductMetadata is the best-effort data scraped from a product page.
// Any field may be empty.
type ProductMetadata struct {
	Title string
	Image string
	Price string
}

// Extractor pulls product metadata out of untrusted HTML
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a new metadata extractor
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract never fails: unparseable input yields empty fields
func (e *Extractor) Extract(html string) (meta ProductMetadata) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Metadata extraction panicked", "panic", r)
			meta = ProductMetadata{}
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Debug("Failed to parse HTML", "error", err)
		return ProductMetadata{}
	}

	return ProductMetadata{
		Title: truncate(e.extractTitle(doc), maxTitleLength),
		Image: truncate(e.extractImage(doc), maxImageLength),
		Price: truncate(e.extractPrice(doc, html), maxPriceLength),
	}
}

// extractTitle: og:title, then the title meta tag, then <title>
func (e *Extractor) extractTitle(doc *goquery.Document) string {
	if title := metaContent(doc, "meta[property='og:title']"); title != "" {
		return title
	}
	if title := metaContent(doc, "meta[name='title']"); title != "" {
		return title
	}
	return cleanText(doc.Find("title").First().Text())
}

// extractImage: og:image, then twitter:image
func (e *Extractor) extractImage(doc *goquery.Document) string {
	if image := metaContent(doc, "meta[property='og:image']"); image != "" {
		return image
	}
	return metaContent(doc, "meta[name='twitter:image'], meta[property='twitter:image']")
}

// extractPrice: structured price meta, then a price-classed element, then a
// quoted amount anywhere in the raw markup
func (e *Extractor) extractPrice(doc *goquery.Document, raw string) string {
	if price := metaContent(doc, "meta[property='product:price:amount'], meta[property='og:price:amount'], meta[property='product:price']"); price != "" {
		return price
	}

	var price string
	doc.Find("[class*='price']").EachWithBreak(func(i int, s *goquery.Selection) bool {
		price = cleanText(s.Text())
		return price == ""
	})
	if price != "" {
		return price
	}

	if match := quotedPriceRegex.FindString(raw); match != "" {
		return cleanText(strings.Trim(match, `"'`))
	}
	return ""
}

// metaContent returns the first non-empty content attribute matching selector
func metaContent(doc *goquery.Document, selector string) string {
	var content string
	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if value, ok := s.Attr("content"); ok {
			content = cleanText(value)
		}
		return content == ""
	})
	return content
}

// cleanText drops control characters and collapses whitespace. The HTML
// tokenizer leaves NUL bytes in attribute values, and jsonb rejects \u0000.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// truncate cuts s to at most max runes
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
