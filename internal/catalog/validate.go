package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"noprime/redirector/internal/domain"
)

// Validate checks every table of doc and reports all problems at once.
func Validate(doc Document) error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	canonical := make(map[string]struct{}, len(doc.Brands))
	for _, b := range doc.Brands {
		if err := checkKey(b.Key); err != nil {
			add("brand %q: %w", b.Key, err)
			continue
		}
		if _, dup := canonical[b.Key]; dup {
			add("brand %q: duplicate key", b.Key)
			continue
		}
		canonical[b.Key] = struct{}{}

		if b.Entry.IsAlternate() {
			add("brand %q: store name is only allowed on alternates", b.Key)
		}
		if err := checkEntry(b.Entry); err != nil {
			add("brand %q: %w", b.Key, err)
		}
	}

	variants := make(map[string]struct{}, len(doc.Aliases))
	for _, a := range doc.Aliases {
		if err := checkKey(a.Variant); err != nil {
			add("alias %q: %w", a.Variant, err)
			continue
		}
		if _, dup := variants[a.Variant]; dup {
			add("alias %q: duplicate key", a.Variant)
			continue
		}
		variants[a.Variant] = struct{}{}

		if _, clash := canonical[a.Variant]; clash {
			add("alias %q: shadows a brand key", a.Variant)
		}
		if _, ok := canonical[a.Target]; !ok {
			add("alias %q: target %q is not a brand", a.Variant, a.Target)
		}
	}

	for _, d := range doc.Disreputable {
		if err := checkKey(d); err != nil {
			add("disreputable %q: %w", d, err)
		}
	}

	alternates := make(map[string]struct{}, len(doc.Alternates))
	for _, b := range doc.Alternates {
		if err := checkKey(b.Key); err != nil {
			add("alternate %q: %w", b.Key, err)
			continue
		}
		if _, dup := alternates[b.Key]; dup {
			add("alternate %q: duplicate key", b.Key)
			continue
		}
		alternates[b.Key] = struct{}{}

		if _, clash := canonical[b.Key]; clash {
			add("alternate %q: shadows a brand key", b.Key)
		}
		if !b.Entry.IsAlternate() {
			add("alternate %q: missing store name", b.Key)
		}
		if err := checkEntry(b.Entry); err != nil {
			add("alternate %q: %w", b.Key, err)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidCatalog, errors.Join(problems...))
	}
	return nil
}

func checkKey(key string) error {
	switch {
	case key == "":
		return errors.New("empty key")
	case key != strings.TrimSpace(key):
		return errors.New("key has surrounding whitespace")
	case key != strings.ToLower(key):
		return errors.New("key is not lower-case")
	}
	return nil
}

func checkEntry(e domain.StoreEntry) error {
	if err := checkSecureURL(e.URL); err != nil {
		return fmt.Errorf("url: %w", err)
	}

	if e.SearchTemplate == "" {
		return nil
	}
	if n := strings.Count(e.SearchTemplate, domain.QueryPlaceholder); n != 1 {
		return fmt.Errorf("searchTemplate: want exactly one %s, found %d", domain.QueryPlaceholder, n)
	}
	sample := strings.Replace(e.SearchTemplate, domain.QueryPlaceholder, "probe", 1)
	if err := checkSecureURL(sample); err != nil {
		return fmt.Errorf("searchTemplate: %w", err)
	}
	return nil
}

func checkSecureURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%q is not https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
