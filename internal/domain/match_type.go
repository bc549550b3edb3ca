package domain

type MatchType string

func (m MatchType) String() string {
	return string(m)
}

const (
	MatchTypeBrand          MatchType = "brand"           // Direct store or alternate retailer
	MatchTypeSearchFallback MatchType = "search-fallback" // Web search, brand unknown
	MatchTypeSuspectBrand   MatchType = "suspect-brand"   // Web search plus a warning
	MatchTypeBook           MatchType = "book"            // Booksellers
)

var MatchTypes = []MatchType{
	MatchTypeBrand,
	MatchTypeSearchFallback,
	MatchTypeSuspectBrand,
	MatchTypeBook,
}

func (m MatchType) Valid() bool {
	switch m {
	case MatchTypeBrand, MatchTypeSearchFallback, MatchTypeSuspectBrand, MatchTypeBook:
		return true
	default:
		return false
	}
}

// GetBadge returns the toolbar badge shown for a tab with this match type.
// Books share the direct-brand badge.
func (m MatchType) GetBadge() Badge {
	switch m {
	case MatchTypeSuspectBrand:
		return Badge{Text: "⚠", Color: "#dc2626"}
	case MatchTypeSearchFallback:
		return Badge{Text: "?", Color: "#b45309"}
	default:
		return Badge{Text: "✓", Color: "#1a6b3c"}
	}
}
