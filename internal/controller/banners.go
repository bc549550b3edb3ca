package controller

import (
	"noprime/redirector/internal/domain"
	"noprime/redirector/internal/page"
)

// BuildBanner picks the banner variant for a detection. searchEngine names
// the web search used by fallback links.
func BuildBanner(d *domain.Detection, searchEngine string) *page.Banner {
	switch d.MatchType {
	case domain.MatchTypeBook:
		return bookBanner(d)
	case domain.MatchTypeSuspectBrand:
		return suspectBanner(d, searchEngine)
	case domain.MatchTypeBrand:
		return brandBanner(d)
	default:
		return fallbackBanner(d, searchEngine)
	}
}

func bookBanner(d *domain.Detection) *page.Banner {
	b := &page.Banner{
		Variant: domain.MatchTypeBook,
		Message: []page.Segment{{Text: "This book may be available from other booksellers."}},
	}
	if d.LocalBookstoreURL != "" {
		b.Actions = append(b.Actions, page.Action{Label: "Find Local Bookstores", URL: d.LocalBookstoreURL, Primary: true})
	}
	b.Actions = append(b.Actions, page.Action{Label: "Barnes & Noble", URL: d.RedirectURL, Primary: d.LocalBookstoreURL == ""})
	return b
}

func brandBanner(d *domain.Detection) *page.Banner {
	label := brandLabel(d, "the manufacturer")

	if d.StoreName != "" {
		return &page.Banner{
			Variant: domain.MatchTypeBrand,
			Message: []page.Segment{
				{Text: "This "},
				{Text: label, Strong: true},
				{Text: " product may be available at "},
				{Text: d.StoreName, Strong: true},
				{Text: "."},
			},
			Actions: []page.Action{{Label: "Search " + d.StoreName, URL: d.RedirectURL, Primary: true}},
		}
	}

	return &page.Banner{
		Variant: domain.MatchTypeBrand,
		Message: []page.Segment{
			{Text: "This product may be available directly from "},
			{Text: label, Strong: true},
			{Text: "."},
		},
		Actions: []page.Action{{Label: "Go to " + label, URL: d.RedirectURL, Primary: true}},
	}
}

func suspectBanner(d *domain.Detection, searchEngine string) *page.Banner {
	return &page.Banner{
		Variant: domain.MatchTypeSuspectBrand,
		Message: []page.Segment{
			{Text: brandLabel(d, "This brand"), Strong: true},
			{Text: " doesn't appear to be a well-known manufacturer. Consider researching before buying."},
		},
		Actions: []page.Action{{Label: "Search on " + searchEngine, URL: d.RedirectURL, Primary: true}},
	}
}

func fallbackBanner(d *domain.Detection, searchEngine string) *page.Banner {
	return &page.Banner{
		Variant: domain.MatchTypeSearchFallback,
		Message: []page.Segment{
			{Text: "We couldn't find the store for "},
			{Text: brandLabel(d, "the manufacturer"), Strong: true},
			{Text: ", but you can search online."},
		},
		Actions: []page.Action{{Label: "Search on " + searchEngine, URL: d.RedirectURL, Primary: true}},
	}
}

func brandLabel(d *domain.Detection, fallback string) string {
	if d.Brand != "" {
		return d.Brand
	}
	return fallback
}
