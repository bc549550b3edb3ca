package resolver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noprime/redirector/internal/catalog"
	"noprime/redirector/internal/domain"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return New(c, Options{})
}

func TestLookupBrand_CaseInsensitiveForEveryKey(t *testing.T) {
	r := newTestResolver(t)

	for _, key := range r.Catalog().Keys() {
		entry, _ := r.Catalog().Entry(key)
		want := &domain.ResolvedMatch{Brand: key, StoreEntry: entry}

		assert.Equal(t, want, r.LookupBrand(key), "lookup %q", key)
		assert.Equal(t, want, r.LookupBrand(strings.ToUpper(key)), "lookup %q", strings.ToUpper(key))
		assert.Equal(t, want, r.LookupBrand("  "+key+"  "), "lookup padded %q", key)
	}
}

func TestLookupBrand_AliasesResolveLikeTheirTarget(t *testing.T) {
	r := newTestResolver(t)

	for alias, target := range r.Catalog().Aliases() {
		assert.Equal(t, r.LookupBrand(target), r.LookupBrand(alias), "alias %q -> %q", alias, target)
	}
}

func TestLookupBrand(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name      string
		raw       string
		wantBrand string
		wantStore string
	}{
		{name: "exact", raw: "Sony", wantBrand: "sony"},
		{name: "alias", raw: "Hewlett-Packard", wantBrand: "hp"},
		{name: "alias with punctuation", raw: "Beats by Dr. Dre", wantBrand: "beats"},
		{name: "whole word with suffix", raw: "Nike, Inc.", wantBrand: "nike"},
		{name: "whole word with trailing words", raw: "Patagonia Outdoor Gear", wantBrand: "patagonia"},
		{name: "whole word in the middle", raw: "Official Garmin Shop", wantBrand: "garmin"},
		{name: "key with punctuation", raw: "Levi's Kids", wantBrand: "levi's"},
		{name: "alternate retailer", raw: "Raspberry Pi", wantBrand: "raspberry pi", wantStore: "Adafruit"},
		{name: "alternate retailer mixed case", raw: "FISHER-PRICE", wantBrand: "fisher-price", wantStore: "Target"},
		{name: "asics inside another word", raw: "Amazon Basics"},
		{name: "nike inside another word", raw: "Nikeplus"},
		{name: "unknown", raw: "Acme Widgets"},
		{name: "empty", raw: ""},
		{name: "whitespace only", raw: "   \t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.LookupBrand(tt.raw)
			if tt.wantBrand == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantBrand, got.Brand)
			assert.Equal(t, tt.wantStore, got.Store)
		})
	}
}

func TestLookupBrand_AmazonBasicsNeverResolvesToAsics(t *testing.T) {
	r := newTestResolver(t)

	got := r.LookupBrand("Amazon Basics")
	if got != nil {
		assert.NotEqual(t, "asics", got.Brand)
	}
}

func TestLookupBrand_FirstDeclaredKeyWins(t *testing.T) {
	c, err := catalog.Parse([]byte(`
brands:
  widget: { url: "https://widget.test" }
  acme: { url: "https://acme.test" }
`))
	require.NoError(t, err)
	r := New(c, Options{})

	got := r.LookupBrand("acme widget co")
	require.NotNil(t, got)
	assert.Equal(t, "widget", got.Brand)
}

func TestContainsWord(t *testing.T) {
	tests := []struct {
		s, word string
		want    bool
	}{
		{"nike", "nike", true},
		{"nike, inc.", "nike", true},
		{"nike.", "nike", true},
		{"the nike store", "nike", true},
		{"nikeplus", "nike", false},
		{"amazon basics", "asics", false},
		{"basics asics", "asics", true},
		{"(sony)", "sony", true},
		{"sony-ericsson", "sony", true},
		{"sony2", "sony", false},
		{"cafésony", "sony", false},
		{"hp", "hp", true},
		{"xhp hp", "hp", true},
		{"", "hp", false},
		{"hp", "", false},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, containsWord(tt.s, tt.word), "containsWord(%q, %q)", tt.s, tt.word)
	}
}

func TestIsSuspectBrand(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"BSTOEM", true},
		{"LEGO", true},
		{"ASUS", true},
		{"KOORUI-2", true},
		{"Dell", false},
		{"AB", false},
		{"A.B.C", false},
		{"", false},
		{"iPhone", false},
		{"TGKXT 123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSuspectBrand(tt.name))
		})
	}
}

func TestIsDisreputable(t *testing.T) {
	r := newTestResolver(t)

	assert.True(t, r.IsDisreputable("Amazon Basics", nil))
	assert.True(t, r.IsDisreputable("  SOLIMO ", nil))
	assert.False(t, r.IsDisreputable("Sony", r.LookupBrand("Sony")))
	assert.False(t, r.IsDisreputable("", nil))
}
