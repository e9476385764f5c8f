package experiment

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrDuplicateTest = errors.New("duplicate test id")

// Catalog is the read-only set of tests loaded at startup.
type Catalog struct {
	order []string
	tests map[string]*Test
}

type catalogFile struct {
	Tests []Test `yaml:"tests"`
}

var validate = validator.New()

// NewCatalog builds a catalog, keeping the given order.
func NewCatalog(tests []Test) (*Catalog, error) {
	c := &Catalog{tests: make(map[string]*Test, len(tests))}
	for i := range tests {
		t := tests[i]
		if err := validate.Struct(&t); err != nil {
			return nil, fmt.Errorf("invalid test %q: %w", t.ID, err)
		}
		if _, ok := c.tests[t.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTest, t.ID)
		}
		t.Variants = append([]Variant(nil), t.Variants...)
		c.tests[t.ID] = &t
		c.order = append(c.order, t.ID)
	}
	return c, nil
}

// ParseCatalog decodes a YAML document of the form `tests: [...]`.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tests: %w", err)
	}
	return NewCatalog(f.Tests)
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tests file: %w", err)
	}
	return ParseCatalog(data)
}

func (c *Catalog) Get(id string) (*Test, bool) {
	t, ok := c.tests[id]
	return t, ok
}

// Tests returns the tests in configured order.
func (c *Catalog) Tests() []*Test {
	out := make([]*Test, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tests[id])
	}
	return out
}

func (c *Catalog) Len() int {
	return len(c.order)
}

// UnevenSplits returns the IDs of tests whose splits do not add up to 100.
// These still load; draws above the total resolve to control.
func (c *Catalog) UnevenSplits() []string {
	var ids []string
	for _, id := range c.order {
		if math.Abs(c.tests[id].TotalSplit()-100) > 1e-9 {
			ids = append(ids, id)
		}
	}
	return ids
}

// DefaultCatalog is served when no tests file is configured.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Test{
		{
			ID:   "hero_headline",
			Name: "Hero headline",
			Variants: []Variant{
				{ID: ControlVariantID, Name: "Control", Description: "Current headline", TrafficSplit: 50, IsControl: true},
				{ID: "benefit_focused", Name: "Benefit focused", Description: "Headline leads with time saved", TrafficSplit: 50},
			},
		},
		{
			ID:   "pricing_display",
			Name: "Pricing display",
			Variants: []Variant{
				{ID: ControlVariantID, Name: "Monthly", Description: "Monthly prices first", TrafficSplit: 34, IsControl: true},
				{ID: "annual_first", Name: "Annual first", Description: "Annual prices with savings badge", TrafficSplit: 33},
				{ID: "single_plan", Name: "Single plan", Description: "One highlighted plan", TrafficSplit: 33},
			},
		},
		{
			ID:   "cta_button",
			Name: "Call to action",
			Variants: []Variant{
				{ID: ControlVariantID, Name: "Start free trial", TrafficSplit: 50, IsControl: true},
				{ID: "download_now", Name: "Download now", TrafficSplit: 50},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return c
}
