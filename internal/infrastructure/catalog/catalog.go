package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

//go:embed default.yaml
var defaultCatalog []byte

// Category is one catalog entry. Keywords feed the keyword classifier and the
// classification prompt.
type Category struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

type Catalog struct {
	DefaultCategory string     `yaml:"default_category"`
	Categories      []Category `yaml:"categories"`
}

// Load reads a catalog file. An empty path yields the built-in catalog.
func Load(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Default() Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

// Parse decodes and normalizes a catalog: names are upper-cased and trimmed,
// keywords lower-cased, and the default category must be one of the entries.
func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Categories) == 0 {
		return Catalog{}, errors.New("catalog has no categories")
	}

	seen := make(map[string]bool, len(c.Categories))
	for i := range c.Categories {
		cat := &c.Categories[i]
		cat.Name = NormalizeName(cat.Name)
		if cat.Name == "" {
			return Catalog{}, fmt.Errorf("catalog entry %d: name is required", i)
		}
		if seen[cat.Name] {
			return Catalog{}, fmt.Errorf("catalog entry %d: duplicate category %s", i, cat.Name)
		}
		seen[cat.Name] = true
		cat.Description = strings.TrimSpace(cat.Description)

		keywords := cat.Keywords[:0]
		for _, kw := range cat.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		cat.Keywords = keywords
	}

	c.DefaultCategory = NormalizeName(c.DefaultCategory)
	if c.DefaultCategory == "" {
		c.DefaultCategory = c.Categories[0].Name
	}
	if !seen[c.DefaultCategory] {
		return Catalog{}, fmt.Errorf("default category %s is not in the catalog", c.DefaultCategory)
	}
	return c, nil
}

// WithDefault overrides the fallback category when name is set and known.
func (c Catalog) WithDefault(name string) (Catalog, error) {
	name = NormalizeName(name)
	if name == "" {
		return c, nil
	}
	if _, ok := c.Lookup(name); !ok {
		return Catalog{}, fmt.Errorf("default category %s is not in the catalog", name)
	}
	c.DefaultCategory = name
	return c, nil
}

func (c Catalog) Lookup(name string) (Category, bool) {
	name = NormalizeName(name)
	for _, cat := range c.Categories {
		if cat.Name == name {
			return cat, true
		}
	}
	return Category{}, false
}

func (c Catalog) Names() []string {
	out := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		out = append(out, cat.Name)
	}
	return out
}

// Seed ensures every catalog category exists in the record store.
func Seed(ctx context.Context, repo ports.CategoryRepository, c Catalog) error {
	for _, cat := range c.Categories {
		if _, err := repo.EnsureCategory(ctx, cat.Name, cat.Description); err != nil {
			return fmt.Errorf("seed category %s: %w", cat.Name, err)
		}
	}
	return nil
}

// Prune deletes stored categories that are no longer in the catalog. Documents that
// referenced them keep their record with no category. It returns the removed names.
func Prune(ctx context.Context, repo ports.CategoryRepository, c Catalog) ([]string, error) {
	stored, err := repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	var removed []string
	for _, cat := range stored {
		if _, ok := c.Lookup(cat.Name); ok {
			continue
		}
		if err := repo.DeleteCategory(ctx, cat.ID); err != nil {
			return removed, fmt.Errorf("prune category %s: %w", cat.Name, err)
		}
		removed = append(removed, cat.Name)
	}
	return removed, nil
}

func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
