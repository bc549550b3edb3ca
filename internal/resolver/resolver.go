package resolver

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"noprime/redirector/internal/catalog"
	"noprime/redirector/internal/domain"
)

// Options configures the generated search and bookseller links.
type Options struct {
	SearchURL           string // Prefix the encoded query is appended to
	ExcludeTerm         string // Negative search term for the origin retailer
	BookSellerEANURL    string // Prefix for ISBN deep links
	BookSellerSearchURL string // Prefix for title searches
}

// DefaultOptions matches DuckDuckGo and Barnes & Noble, excluding Amazon.
var DefaultOptions = Options{
	SearchURL:           "https://duckduckgo.com/?q=",
	ExcludeTerm:         "-amazon",
	BookSellerEANURL:    "https://www.barnesandnoble.com/w/?ean=",
	BookSellerSearchURL: "https://www.barnesandnoble.com/s/",
}

const (
	redirectTitleLimit = 80
	fallbackTitleLimit = 60
	bookTitleLimit     = 80
	localTitleLimit    = 60
	suspectMinLetters  = 4
)

type Resolver struct {
	catalog *catalog.Catalog
	opts    Options
}

func New(c *catalog.Catalog, opts Options) *Resolver {
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultOptions.SearchURL
	}
	if opts.ExcludeTerm == "" {
		opts.ExcludeTerm = DefaultOptions.ExcludeTerm
	}
	if opts.BookSellerEANURL == "" {
		opts.BookSellerEANURL = DefaultOptions.BookSellerEANURL
	}
	if opts.BookSellerSearchURL == "" {
		opts.BookSellerSearchURL = DefaultOptions.BookSellerSearchURL
	}

	return &Resolver{
		catalog: c,
		opts:    opts,
	}
}

func (r *Resolver) Catalog() *catalog.Catalog {
	return r.catalog
}

// LookupBrand resolves a free-text brand to a store. The first strategy that
// matches wins: exact key, alias, whole-word key inside the input (in
// catalog order), alternate retailer. It returns nil when nothing matches.
func (r *Resolver) LookupBrand(rawBrand string) *domain.ResolvedMatch {
	key := strings.ToLower(strings.TrimSpace(rawBrand))
	if key == "" {
		return nil
	}

	if entry, ok := r.catalog.Entry(key); ok {
		return &domain.ResolvedMatch{Brand: key, StoreEntry: entry}
	}

	if target, ok := r.catalog.AliasTarget(key); ok {
		// A dangling alias is not a match.
		if entry, ok := r.catalog.Entry(target); ok {
			return &domain.ResolvedMatch{Brand: target, StoreEntry: entry}
		}
	}

	for _, candidate := range r.catalog.Keys() {
		if containsWord(key, candidate) {
			entry, _ := r.catalog.Entry(candidate)
			return &domain.ResolvedMatch{Brand: candidate, StoreEntry: entry}
		}
	}

	if entry, ok := r.catalog.Alternate(key); ok {
		return &domain.ResolvedMatch{Brand: key, StoreEntry: entry}
	}

	return nil
}

// IsDisreputable reports whether the brand, or the key it resolves to, is on
// the catalog's disreputable list.
func (r *Resolver) IsDisreputable(rawBrand string, match *domain.ResolvedMatch) bool {
	key := strings.ToLower(strings.TrimSpace(rawBrand))
	if key != "" && r.catalog.IsDisreputable(key) {
		return true
	}
	return match != nil && r.catalog.IsDisreputable(match.Brand)
}

// IsSuspectBrand flags brand names whose letters are all upper-case, a
// common pattern for generated seller names. Names with fewer than four
// letters are never flagged.
func IsSuspectBrand(name string) bool {
	letters := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			letters = append(letters, c)
		}
	}

	if len(letters) < suspectMinLetters {
		return false
	}

	alpha := string(letters)
	return alpha == strings.ToUpper(alpha)
}

// containsWord reports whether word occurs in s with a boundary on both
// sides. A boundary is a string edge or any rune that is neither a letter
// nor a digit, so "nike, inc." contains "nike" and "nikeplus" does not.
func containsWord(s, word string) bool {
	if word == "" {
		return false
	}

	for offset := 0; offset <= len(s)-len(word); {
		i := strings.Index(s[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)

		if boundaryBefore(s, start) && boundaryAfter(s, end) {
			return true
		}

		_, size := utf8.DecodeRuneInString(s[start:])
		offset = start + size
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isBoundary(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return isBoundary(r)
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
