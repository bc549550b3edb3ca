package resolver

import (
	log "github.com/sirupsen/logrus"

	"noprime/redirector/internal/domain"
)

// Classify runs the resolution pipeline for an extracted product. It returns
// nil when the page has no product title.
//
// Order matters: books first, then catalog resolution, and only after the
// catalog fails is the all-caps heuristic consulted, so catalog brands
// written in capitals (LEGO, ASUS) are never flagged.
func (r *Resolver) Classify(product *domain.ProductInfo) *domain.Detection {
	if !product.IsProductPage() {
		return nil
	}

	d := &domain.Detection{ProductInfo: *product}

	if product.IsBook {
		d.MatchType = domain.MatchTypeBook
		d.RedirectURL = r.BuildBarnesNobleURL(product.ISBN, product.Title)
		d.LocalBookstoreURL = r.BuildLocalBookstoreURL(product.Title)
		return d
	}

	match := r.LookupBrand(product.Brand)
	switch {
	case r.IsDisreputable(product.Brand, match):
		d.MatchType = domain.MatchTypeSuspectBrand
		d.RedirectURL = r.BuildSearchFallbackURL(product.Brand, product.Title)
	case match != nil:
		d.MatchType = domain.MatchTypeBrand
		d.RedirectURL = r.BuildRedirectURL(match, product.Title)
		d.StoreBrand = match.Brand
		d.StoreName = match.Store
	case IsSuspectBrand(product.Brand):
		d.MatchType = domain.MatchTypeSuspectBrand
		d.RedirectURL = r.BuildSearchFallbackURL(product.Brand, product.Title)
	default:
		d.MatchType = domain.MatchTypeSearchFallback
		d.RedirectURL = r.BuildSearchFallbackURL(product.Brand, product.Title)
	}

	log.Debugf("Classified %q (brand %q) as %s", product.Title, product.Brand, d.MatchType)
	return d
}
