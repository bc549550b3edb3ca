package catalog

import (
	_ "embed"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"noprime/redirector/internal/domain"
)

//go:embed brands.yaml
var defaultDocument []byte

// rawDocument keeps the mappings as nodes so declaration order survives.
type rawDocument struct {
	Version      string    `yaml:"version"`
	Brands       yaml.Node `yaml:"brands"`
	Aliases      yaml.Node `yaml:"aliases"`
	Disreputable []string  `yaml:"disreputable"`
	Alternates   yaml.Node `yaml:"alternates"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultDocument)
}

// Load reads a catalog document from path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	log.Infof("📚 Loaded brand catalog %s (version %s, %d brands)", path, c.Version(), c.Len())
	return c, nil
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return New(doc)
}

// Decode turns YAML into a Document without validating it.
func Decode(data []byte) (Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("%w: %w", domain.ErrInvalidCatalog, err)
	}

	brands, err := decodeEntries(&raw.Brands)
	if err != nil {
		return Document{}, fmt.Errorf("%w: brands: %w", domain.ErrInvalidCatalog, err)
	}

	alternates, err := decodeEntries(&raw.Alternates)
	if err != nil {
		return Document{}, fmt.Errorf("%w: alternates: %w", domain.ErrInvalidCatalog, err)
	}

	aliases, err := decodeAliases(&raw.Aliases)
	if err != nil {
		return Document{}, fmt.Errorf("%w: aliases: %w", domain.ErrInvalidCatalog, err)
	}

	return Document{
		Version:      raw.Version,
		Brands:       brands,
		Aliases:      aliases,
		Disreputable: raw.Disreputable,
		Alternates:   alternates,
	}, nil
}

func decodeEntries(node *yaml.Node) ([]Brand, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	brands := make([]Brand, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]

		var entry domain.StoreEntry
		if err := valueNode.Decode(&entry); err != nil {
			return nil, fmt.Errorf("line %d: %q: %w", keyNode.Line, keyNode.Value, err)
		}
		brands = append(brands, Brand{Key: keyNode.Value, Entry: entry})
	}
	return brands, nil
}

func decodeAliases(node *yaml.Node) ([]Alias, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	aliases := make([]Alias, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		if valueNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: %q: target must be a string", keyNode.Line, keyNode.Value)
		}
		aliases = append(aliases, Alias{Variant: keyNode.Value, Target: valueNode.Value})
	}
	return aliases, nil
}
