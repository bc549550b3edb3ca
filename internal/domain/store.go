package domain

// StoreEntry is a catalog record. Store is set only for alternate retailers.
type StoreEntry struct {
	Store          string `json:"store,omitempty" yaml:"store,omitempty"`
	URL            string `json:"url" yaml:"url"`
	SearchTemplate string `json:"searchTemplate,omitempty" yaml:"searchTemplate,omitempty"`
}

func (e StoreEntry) IsAlternate() bool {
	return e.Store != ""
}

// ResolvedMatch is a StoreEntry together with the catalog key that produced it.
type ResolvedMatch struct {
	Brand string `json:"brand"`
	StoreEntry
}

// QueryPlaceholder is substituted with the encoded product title.
const QueryPlaceholder = "{query}"
