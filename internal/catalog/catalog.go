package catalog

import (
	"maps"
	"slices"

	"github.com/samber/lo"

	"noprime/redirector/internal/domain"
)

// Catalog is the immutable brand-to-store table set. Build one with New,
// Parse or Load; every constructor validates the whole document first.
type Catalog struct {
	version      string
	keys         []string // Canonical keys in declaration order
	entries      map[string]domain.StoreEntry
	aliases      map[string]string
	disreputable map[string]struct{}
	alternates   map[string]domain.StoreEntry
}

// Brand is one keyed record of the brands or alternates table.
type Brand struct {
	Key   string
	Entry domain.StoreEntry
}

// Alias maps a variant spelling to a canonical key.
type Alias struct {
	Variant string
	Target  string
}

// Document is the decoded, not yet validated catalog.
type Document struct {
	Version      string
	Brands       []Brand
	Aliases      []Alias
	Disreputable []string
	Alternates   []Brand
}

// New validates doc and freezes it into a Catalog.
func New(doc Document) (*Catalog, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}

	brandEntry := func(b Brand) (string, domain.StoreEntry) { return b.Key, b.Entry }

	c := &Catalog{
		version: doc.Version,
		keys:    lo.Map(doc.Brands, func(b Brand, _ int) string { return b.Key }),
		entries: lo.SliceToMap(doc.Brands, brandEntry),
		aliases: lo.SliceToMap(doc.Aliases, func(a Alias) (string, string) {
			return a.Variant, a.Target
		}),
		disreputable: lo.SliceToMap(doc.Disreputable, func(key string) (string, struct{}) {
			return key, struct{}{}
		}),
		alternates: lo.SliceToMap(doc.Alternates, brandEntry),
	}

	return c, nil
}

func (c *Catalog) Version() string {
	return c.version
}

func (c *Catalog) Len() int {
	return len(c.keys)
}

// Keys returns the canonical keys in declaration order.
func (c *Catalog) Keys() []string {
	return slices.Clone(c.keys)
}

func (c *Catalog) Entry(key string) (domain.StoreEntry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// AliasTarget returns the canonical key a variant points to.
func (c *Catalog) AliasTarget(variant string) (string, bool) {
	t, ok := c.aliases[variant]
	return t, ok
}

// Aliases returns a copy of the alias table.
func (c *Catalog) Aliases() map[string]string {
	return maps.Clone(c.aliases)
}

func (c *Catalog) Alternate(key string) (domain.StoreEntry, bool) {
	e, ok := c.alternates[key]
	return e, ok
}

func (c *Catalog) IsDisreputable(key string) bool {
	_, ok := c.disreputable[key]
	return ok
}
