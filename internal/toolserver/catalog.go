package toolserver

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Product is one catalog entry, serialized the way a storefront search
// tool returns it.
type Product struct {
	ProductID   string     `yaml:"product_id" json:"product_id"`
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	URL         string     `yaml:"url,omitempty" json:"url,omitempty"`
	ImageURL    string     `yaml:"image_url,omitempty" json:"image_url,omitempty"`
	Tags        []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	PriceRange  PriceRange `yaml:"price_range" json:"price_range"`
}

// PriceRange holds decimal prices as strings, like the storefront API.
type PriceRange struct {
	Min      string `yaml:"min" json:"min"`
	Max      string `yaml:"max" json:"max"`
	Currency string `yaml:"currency" json:"currency"`
}

// Catalog is an in-memory product list loaded from YAML.
type Catalog struct {
	Products []Product `yaml:"products"`
}

// DefaultCatalog returns the built-in fixture.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file. An empty path loads the built-in fixture.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	for i, p := range c.Products {
		if p.ProductID == "" {
			return nil, fmt.Errorf("product %d has no product_id", i)
		}
	}
	return &c, nil
}

// Search returns products whose title, description or tags contain every
// word of query, in catalog order. An empty query matches everything.
func (c *Catalog) Search(query string, limit int) []Product {
	terms := strings.Fields(strings.ToLower(query))
	out := []Product{}
	for _, p := range c.Products {
		if limit > 0 && len(out) >= limit {
			break
		}
		if p.matches(terms) {
			out = append(out, p)
		}
	}
	return out
}

func (p Product) matches(terms []string) bool {
	haystack := strings.ToLower(p.Title + " " + p.Description + " " + strings.Join(p.Tags, " "))
	for _, t := range terms {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}
