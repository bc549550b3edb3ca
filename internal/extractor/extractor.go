package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"noprime/redirector/internal/domain"
)

var (
	titleSelectors = []string{
		"#productTitle",
		"#title span",
		`h1[data-feature-name="title"] span`,
	}

	detailTableSelector  = "#productDetails_techSpec_section_1, #productDetails_detailBullets_sections1, .prodDetTable"
	detailBulletSelector = "#detailBullets_feature_div li, #detailBulletsWrapper_feature_div li"

	brandLabels = []string{"brand", "manufacturer"}
	isbnLabels  = []string{"isbn-13", "isbn-10", "isbn"}

	breadcrumbSelector = "#wayfinding-breadcrumbs_container, .a-breadcrumb"
	bookLandmarks      = "#bookDescription, #rpiContainer, #bookEditionBadge, #tmmSwatches"
	formatSelector     = "#tmmSwatches, #mediaTab_heading"

	booksWordRegex   = regexp.MustCompile(`(?i)\bbooks\b`)
	bookFormatRegex  = regexp.MustCompile(`(?i)\b(kindle|paperback|hardcover|audiobook|mass market)\b`)
	visitPrefixRegex = regexp.MustCompile(`(?i)^Visit the\s+`)
	storeSuffixRegex = regexp.MustCompile(`(?i)\s+Store$`)
	brandPrefixRegex = regexp.MustCompile(`(?i)^Brand:\s*`)
	isbnCharsRegex   = regexp.MustCompile(`(?i)[^0-9X]`)
	productPathRegex = regexp.MustCompile(`(?i)/(?:dp|gp/product)/[A-Z0-9]{10}`)
	isbnPathRegex    = regexp.MustCompile(`(?i)/(?:dp|gp/product)/([0-9]{9}[0-9X])(?:/|$)`)
)

// Separators Amazon puts between a detail label and its value, including
// the bidi marks U+200F and U+200E.
const detailSeparators = " \t\r\n:\u200f\u200e"

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// ParseHTML parses html and extracts the product found at pageURL.
func (e *Extractor) ParseHTML(html, pageURL string) (*domain.ProductInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return e.ExtractProductInfo(doc, pageURL), nil
}

// ExtractProductInfo reads brand, title, book classification and ISBN from
// doc. Missing fields stay empty; an empty Title means doc is not a product
// page.
func (e *Extractor) ExtractProductInfo(doc *goquery.Document, pageURL string) *domain.ProductInfo {
	isBook := e.detectBook(doc)

	info := &domain.ProductInfo{
		Brand:  e.extractBrand(doc),
		Title:  firstText(doc, titleSelectors...),
		URL:    pageURL,
		IsBook: isBook,
	}
	if isBook {
		info.ISBN = e.extractISBN(doc, pageURL)
	}

	log.Debugf("Extracted product from %s: title=%q brand=%q book=%v isbn=%q",
		pageURL, info.Title, info.Brand, info.IsBook, info.ISBN)
	return info
}

func (e *Extractor) extractBrand(doc *goquery.Document) string {
	// Byline: "Visit the Sony Store" or "Brand: Sony"
	if byline := doc.Find("#bylineInfo").First(); byline.Length() > 0 {
		text := strings.TrimSpace(byline.Text())
		text = visitPrefixRegex.ReplaceAllString(text, "")
		text = storeSuffixRegex.ReplaceAllString(text, "")
		text = brandPrefixRegex.ReplaceAllString(text, "")
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}

	if brand := extractDetailField(doc, brandLabels...); brand != "" {
		return brand
	}

	return extractJSONLDBrand(doc)
}

// detectBook reports whether any book signal is present on the page.
func (e *Extractor) detectBook(doc *goquery.Document) bool {
	if crumbs := doc.Find(breadcrumbSelector).First(); crumbs.Length() > 0 && booksWordRegex.MatchString(crumbs.Text()) {
		return true
	}

	if doc.Find(bookLandmarks).Length() > 0 {
		return true
	}

	if extractDetailField(doc, isbnLabels...) != "" {
		return true
	}

	if formats := doc.Find(formatSelector).First(); formats.Length() > 0 && bookFormatRegex.MatchString(formats.Text()) {
		return true
	}

	return false
}

// extractISBN prefers ISBN-13, then ISBN-10, then a ten-character book
// identifier in the page address.
func (e *Extractor) extractISBN(doc *goquery.Document, pageURL string) string {
	if isbn := extractDetailField(doc, "isbn-13"); isbn != "" {
		if cleaned := isbnCharsRegex.ReplaceAllString(isbn, ""); cleaned != "" {
			return strings.ToUpper(cleaned)
		}
	}

	if isbn := extractDetailField(doc, "isbn-10"); isbn != "" {
		if cleaned := isbnCharsRegex.ReplaceAllString(isbn, ""); cleaned != "" {
			return strings.ToUpper(cleaned)
		}
	}

	if u, err := url.Parse(pageURL); err == nil {
		if matches := isbnPathRegex.FindStringSubmatch(u.Path); len(matches) > 1 {
			return strings.ToUpper(matches[1])
		}
	}

	return ""
}

// IsProductPath reports whether an address path looks like a product page.
func IsProductPath(path string) bool {
	return productPathRegex.MatchString(path)
}

// IsProductURL is IsProductPath for a full address.
func IsProductURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return IsProductPath(u.Path)
}

// firstText returns the trimmed text of the first selector that yields any.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if text := strings.TrimSpace(s.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func labelMatches(label string, labels []string) bool {
	for _, l := range labels {
		if strings.Contains(label, strings.ToLower(l)) {
			return true
		}
	}
	return false
}

// extractDetailField finds a value in the product details tables or the
// detail bullet list by case-insensitive substring match on its label.
func extractDetailField(doc *goquery.Document, labels ...string) string {
	var value string

	doc.Find(detailTableSelector).EachWithBreak(func(i int, table *goquery.Selection) bool {
		table.Find("tr").EachWithBreak(func(j int, row *goquery.Selection) bool {
			th := row.Find("th").First()
			td := row.Find("td").First()
			if th.Length() == 0 || td.Length() == 0 {
				return true
			}

			label := strings.ToLower(strings.TrimSpace(th.Text()))
			if labelMatches(label, labels) {
				value = strings.TrimSpace(td.Text())
				return false
			}
			return true
		})
		return value == ""
	})
	if value != "" {
		return value
	}

	doc.Find(detailBulletSelector).EachWithBreak(func(i int, li *goquery.Selection) bool {
		bold := li.Find(".a-text-bold").First()
		if bold.Length() == 0 {
			return true
		}

		boldText := bold.Text()
		label := strings.ToLower(strings.TrimRight(strings.TrimSpace(boldText), detailSeparators))
		if !labelMatches(label, labels) {
			return true
		}

		rest := strings.Replace(li.Text(), boldText, "", 1)
		value = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(rest), detailSeparators))
		return value == ""
	})

	return value
}

// extractJSONLDBrand reads the brand from structured product data. Blocks
// that are not valid JSON are skipped.
func extractJSONLDBrand(doc *goquery.Document) string {
	var brand string

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, script *goquery.Selection) bool {
		raw := script.Text()
		if !gjson.Valid(raw) {
			log.Debugf("Skipping malformed JSON-LD block %d", i)
			return true
		}

		brand = brandFromJSONLD(gjson.Parse(raw))
		return brand == ""
	})

	return brand
}

func brandFromJSONLD(node gjson.Result) string {
	if node.IsArray() {
		for _, item := range node.Array() {
			if name := brandFromJSONLD(item); name != "" {
				return name
			}
		}
		return ""
	}

	if !node.IsObject() {
		return ""
	}

	if name := brandName(node.Get("brand")); name != "" {
		return name
	}

	for _, item := range node.Get("@graph").Array() {
		if name := brandName(item.Get("brand")); name != "" {
			return name
		}
	}

	return ""
}

func brandName(brand gjson.Result) string {
	switch {
	case !brand.Exists():
		return ""
	case brand.Type == gjson.String:
		return strings.TrimSpace(brand.String())
	case brand.IsArray():
		for _, b := range brand.Array() {
			if name := brandName(b); name != "" {
				return name
			}
		}
	case brand.IsObject():
		if name := strings.TrimSpace(brand.Get("brand.name").String()); name != "" {
			return name
		}
		return strings.TrimSpace(brand.Get("name").String())
	}
	return ""
}
