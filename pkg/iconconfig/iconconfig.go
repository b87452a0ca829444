// Package iconconfig holds the icon variants measured per format and the
// test types that size a suite.
package iconconfig

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/ethpandaops/iconbench/pkg/record"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownFormat is returned for a format with no configured variants.
	ErrUnknownFormat = errors.New("unknown format")

	// ErrUnknownTestType is returned for an unconfigured test type.
	ErrUnknownTestType = errors.New("unknown test type")
)

// Variant is one named way of rendering an icon of a format.
type Variant struct {
	Name string `yaml:"name"`
	// Selector matches every rendered icon of the variant.
	Selector string `yaml:"selector"`
	// Markup is an html/template fragment for a single icon. It receives
	// the icon's position as .Index.
	Markup string `yaml:"markup"`
	// Style is injected once before the icons are rendered.
	Style              string            `yaml:"style,omitempty"`
	HasNetworkOverhead bool              `yaml:"has_network_overhead"`
	Hints              map[string]string `yaml:"hints,omitempty"`
}

// TestType sizes a suite.
type TestType struct {
	Name       string `yaml:"name"`
	Iterations int    `yaml:"iterations"`
	IconCount  int    `yaml:"icon_count"`
}

// Catalog maps formats to their variants and names to test types.
type Catalog struct {
	Formats   map[record.Format][]Variant `yaml:"formats"`
	TestTypes map[string]TestType         `yaml:"test_types"`
}

// Variants returns the ordered variants of format.
func (c *Catalog) Variants(format string) ([]Variant, error) {
	variants, ok := c.Formats[record.Format(format)]
	if !ok || len(variants) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	return slices.Clone(variants), nil
}

// TestType returns the test type called name.
func (c *Catalog) TestType(name string) (TestType, error) {
	tt, ok := c.TestTypes[name]
	if !ok {
		return TestType{}, fmt.Errorf("%w: %q", ErrUnknownTestType, name)
	}

	return tt, nil
}

// TestTypeNames returns the configured test type names, sorted.
func (c *Catalog) TestTypeNames() []string {
	return slices.Sorted(maps.Keys(c.TestTypes))
}

// Load returns the default catalog overlaid with the YAML file at path.
// Formats and test types present in the file replace the defaults of the
// same name. An empty path returns the defaults.
func Load(path string) (*Catalog, error) {
	c := Default()

	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading icons file: %w", err)
	}

	var overlay Catalog
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parsing icons file: %w", err)
	}

	for format, variants := range overlay.Formats {
		if !format.Valid() {
			return nil, fmt.Errorf("icons file: %w: %q", record.ErrInvalidFormat, format)
		}

		for i, v := range variants {
			if v.Name == "" {
				return nil, fmt.Errorf("icons file: %s variant %d: name is required", format, i)
			}

			if v.Markup == "" {
				return nil, fmt.Errorf("icons file: %s variant %q: markup is required", format, v.Name)
			}
		}

		c.Formats[format] = variants
	}

	for name, tt := range overlay.TestTypes {
		if tt.Iterations <= 0 || tt.IconCount <= 0 {
			return nil, fmt.Errorf("icons file: test type %q needs positive iterations and icon_count", name)
		}

		tt.Name = name
		c.TestTypes[name] = tt
	}

	return c, nil
}
