package domain

import (
	"encoding/json"
	"time"
)

// ProductInfo is what the extractor recovers from a product page.
// Empty strings mean the field was not found and travel as null; an empty
// Title means the page is not a product page.
type ProductInfo struct {
	Brand  string
	Title  string
	URL    string
	IsBook bool
	ISBN   string // Only set when IsBook
}

func (p *ProductInfo) IsProductPage() bool {
	return p != nil && p.Title != ""
}

// Detection is the PRODUCT_DETECTED payload: the product plus the outcome
// of the resolution pipeline.
type Detection struct {
	ProductInfo
	RedirectURL string
	MatchType   MatchType
	StoreBrand  string // Empty when no catalog entry matched

	StoreName         string // Alternate retailer display name
	LocalBookstoreURL string // Books only
}

// TabState is the coordinator's cached view of one tab.
type TabState struct {
	TabID      int        `json:"tabId"`
	Detection  *Detection `json:"detection"`
	DetectedAt time.Time  `json:"detectedAt"`
}

type productJSON struct {
	Brand  *string `json:"brand"`
	Title  *string `json:"title"`
	URL    string  `json:"url"`
	IsBook bool    `json:"isBook"`
	ISBN   *string `json:"isbn"`
}

type detectionJSON struct {
	productJSON
	RedirectURL       string    `json:"redirectUrl"`
	MatchType         MatchType `json:"matchType"`
	StoreBrand        *string   `json:"storeBrand"`
	StoreName         string    `json:"storeName,omitempty"`
	LocalBookstoreURL string    `json:"localBookstoreUrl,omitempty"`
}

func (p ProductInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toJSON())
}

func (p *ProductInfo) UnmarshalJSON(data []byte) error {
	var w productJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = w.product()
	return nil
}

func (d Detection) MarshalJSON() ([]byte, error) {
	return json.Marshal(detectionJSON{
		productJSON:       d.ProductInfo.toJSON(),
		RedirectURL:       d.RedirectURL,
		MatchType:         d.MatchType,
		StoreBrand:        nullable(d.StoreBrand),
		StoreName:         d.StoreName,
		LocalBookstoreURL: d.LocalBookstoreURL,
	})
}

func (d *Detection) UnmarshalJSON(data []byte) error {
	var w detectionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = Detection{
		ProductInfo:       w.product(),
		RedirectURL:       w.RedirectURL,
		MatchType:         w.MatchType,
		StoreBrand:        deref(w.StoreBrand),
		StoreName:         w.StoreName,
		LocalBookstoreURL: w.LocalBookstoreURL,
	}
	return nil
}

func (p ProductInfo) toJSON() productJSON {
	return productJSON{
		Brand:  nullable(p.Brand),
		Title:  nullable(p.Title),
		URL:    p.URL,
		IsBook: p.IsBook,
		ISBN:   nullable(p.ISBN),
	}
}

func (w productJSON) product() ProductInfo {
	return ProductInfo{
		Brand:  deref(w.Brand),
		Title:  deref(w.Title),
		URL:    w.URL,
		IsBook: w.IsBook,
		ISBN:   deref(w.ISBN),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
