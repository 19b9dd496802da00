package models

import (
	"fmt"
	"strings"
)

// Category is one of the fixed expense categories.
type Category string

// Categories in declaration order. The order breaks classifier ties and
// drives keyboard layout.
const (
	CategoryFood          Category = "food"
	CategoryGroceries     Category = "groceries"
	CategoryTransport     Category = "transport"
	CategoryShopping      Category = "shopping"
	CategoryBills         Category = "bills"
	CategoryEntertainment Category = "entertainment"
	CategoryHealth        Category = "health"
	CategoryEducation     Category = "education"
	CategoryFinance       Category = "finance"
	CategoryOther         Category = "other"

	// CategoryUncategorized is used when nothing matched.
	CategoryUncategorized Category = "uncategorized"
)

// AllCategories lists the selectable categories in declaration order.
var AllCategories = []Category{
	CategoryFood,
	CategoryGroceries,
	CategoryTransport,
	CategoryShopping,
	CategoryBills,
	CategoryEntertainment,
	CategoryHealth,
	CategoryEducation,
	CategoryFinance,
	CategoryOther,
}

type categoryInfo struct {
	label string
	emoji string
}

var categoryDetails = map[Category]categoryInfo{
	CategoryFood:          {"Food", "🍔"},
	CategoryGroceries:     {"Groceries", "🛒"},
	CategoryTransport:     {"Transport", "🚕"},
	CategoryShopping:      {"Shopping", "🛍️"},
	CategoryBills:         {"Bills & Utilities", "💡"},
	CategoryEntertainment: {"Entertainment", "🎬"},
	CategoryHealth:        {"Health", "💊"},
	CategoryEducation:     {"Education", "📚"},
	CategoryFinance:       {"Banking & Finance", "🏦"},
	CategoryOther:         {"Other", "📦"},
	CategoryUncategorized: {"Uncategorized", "❓"},
}

// Valid reports whether c is a selectable category or uncategorized.
func (c Category) Valid() bool {
	_, ok := categoryDetails[c]
	return ok
}

// Label returns the human readable category name.
func (c Category) Label() string {
	if info, ok := categoryDetails[c]; ok {
		return info.label
	}
	return string(c)
}

// Emoji returns the icon shown next to the category.
func (c Category) Emoji() string {
	if info, ok := categoryDetails[c]; ok {
		return info.emoji
	}
	return "❓"
}

// Index returns the declaration position of c, or len(AllCategories) for
// uncategorized and unknown values.
func (c Category) Index() int {
	for i, cat := range AllCategories {
		if cat == c {
			return i
		}
	}
	return len(AllCategories)
}

// ParseCategory resolves a category from its name or label, case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("category is empty")
	}
	for c, info := range categoryDetails {
		if strings.EqualFold(string(c), s) || strings.EqualFold(info.label, s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}
