package resolver

import (
	"strings"

	"noprime/redirector/internal/domain"
)

// BuildRedirectURL deep-links into the store's search with the product title
// when the store has a search template, otherwise returns its homepage.
// It returns "" for a nil match.
func (r *Resolver) BuildRedirectURL(match *domain.ResolvedMatch, productTitle string) string {
	if match == nil {
		return ""
	}

	query := strings.TrimSpace(truncate(strings.TrimSpace(productTitle), redirectTitleLimit))
	if match.SearchTemplate != "" && query != "" {
		return strings.Replace(match.SearchTemplate, domain.QueryPlaceholder, encodeComponent(query), 1)
	}

	return match.URL
}

// BuildSearchFallbackURL builds a web search for `"brand" title -retailer`.
func (r *Resolver) BuildSearchFallbackURL(brand, productTitle string) string {
	parts := make([]string, 0, 3)
	if brand != "" {
		parts = append(parts, `"`+brand+`"`)
	}
	if productTitle != "" {
		parts = append(parts, truncate(productTitle, fallbackTitleLimit))
	}
	parts = append(parts, r.opts.ExcludeTerm)

	return r.opts.SearchURL + encodeComponent(strings.Join(parts, " "))
}

// BuildBarnesNobleURL deep-links by ISBN, or searches by title without one.
func (r *Resolver) BuildBarnesNobleURL(isbn, title string) string {
	if isbn != "" {
		return r.opts.BookSellerEANURL + encodeComponent(isbn)
	}

	q := strings.TrimSpace(truncate(title, bookTitleLimit))
	return r.opts.BookSellerSearchURL + encodeComponent(q)
}

// BuildLocalBookstoreURL searches for local bookstores carrying the title.
func (r *Resolver) BuildLocalBookstoreURL(title string) string {
	q := `"` + strings.TrimSpace(truncate(title, localTitleLimit)) + `" local bookstores`
	return r.opts.SearchURL + encodeComponent(q)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

const upperHex = "0123456789ABCDEF"

// encodeComponent percent-encodes s as a URI component: everything except
// A-Z a-z 0-9 and -_.!~*'() is escaped, and spaces become %20.
func encodeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
