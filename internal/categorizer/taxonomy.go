// Package categorizer maps merchant and description text onto expense
// categories using tiered keyword lists.
package categorizer

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultFuzzyThreshold is the minimum normalized similarity for a fuzzy match.
const DefaultFuzzyThreshold = 0.8

//go:embed categories.yaml
var defaultTaxonomyYAML []byte

// Rule holds the keyword tiers and plausible amount range of one category.
type Rule struct {
	Category models.Category
	Min      decimal.Decimal
	Max      decimal.Decimal
	// Keywords are normalized and indexed by tier.
	Keywords map[models.Tier][]string
}

// Taxonomy is the ordered set of category rules.
type Taxonomy struct {
	FuzzyThreshold float64
	Rules          []Rule
}

type yamlRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type yamlCategory struct {
	Name   string    `yaml:"name"`
	Range  yamlRange `yaml:"range"`
	High   []string  `yaml:"high"`
	Medium []string  `yaml:"medium"`
	Low    []string  `yaml:"low"`
}

type yamlTaxonomy struct {
	FuzzyThreshold float64        `yaml:"fuzzy_threshold"`
	Categories     []yamlCategory `yaml:"categories"`
}

// DefaultTaxonomy returns the embedded keyword taxonomy.
func DefaultTaxonomy() (*Taxonomy, error) {
	return ParseTaxonomy(defaultTaxonomyYAML)
}

// LoadTaxonomy reads a taxonomy from a YAML file. An empty path selects the
// embedded default.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}

	return ParseTaxonomy(data)
}

// ParseTaxonomy decodes and validates a YAML taxonomy. Category names must
// belong to the fixed category set and appear at most once.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var raw yamlTaxonomy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse categories: %w", err)
	}

	if len(raw.Categories) == 0 {
		return nil, fmt.Errorf("no categories defined")
	}

	t := &Taxonomy{FuzzyThreshold: raw.FuzzyThreshold}
	if t.FuzzyThreshold <= 0 || t.FuzzyThreshold > 1 {
		t.FuzzyThreshold = DefaultFuzzyThreshold
	}

	seen := make(map[models.Category]bool, len(raw.Categories))
	for _, rc := range raw.Categories {
		cat := models.Category(strings.ToLower(strings.TrimSpace(rc.Name)))
		if !cat.Valid() || cat == models.CategoryUncategorized {
			return nil, fmt.Errorf("unknown category %q", rc.Name)
		}
		if seen[cat] {
			return nil, fmt.Errorf("duplicate category %q", rc.Name)
		}
		seen[cat] = true

		if rc.Range.Max < rc.Range.Min {
			return nil, fmt.Errorf("category %q: range max below min", rc.Name)
		}

		t.Rules = append(t.Rules, Rule{
			Category: cat,
			Min:      decimal.NewFromFloat(rc.Range.Min),
			Max:      decimal.NewFromFloat(rc.Range.Max),
			Keywords: map[models.Tier][]string{
				models.TierHigh:   normalizeAll(rc.High),
				models.TierMedium: normalizeAll(rc.Medium),
				models.TierLow:    normalizeAll(rc.Low),
			},
		})
	}

	return t, nil
}

func normalizeAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if n := normalize(kw); n != "" {
			out = append(out, n)
		}
	}
	return out
}
