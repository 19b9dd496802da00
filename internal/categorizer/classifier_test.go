package categorizer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"pgregory.net/rapid"
)

func defaultClassifier(t testing.TB) *Classifier {
	t.Helper()

	tax, err := DefaultTaxonomy()
	require.NoError(t, err)
	return New(tax)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	c := defaultClassifier(t)

	tests := []struct {
		name     string
		text     string
		wantCat  models.Category
		wantTier models.Tier
	}{
		{name: "merchant with apostrophe", text: "McDonald's", wantCat: models.CategoryFood, wantTier: models.TierHigh},
		{name: "delivery app", text: "Zomato", wantCat: models.CategoryFood, wantTier: models.TierHigh},
		{name: "ride hailing", text: "uber", wantCat: models.CategoryTransport, wantTier: models.TierHigh},
		{name: "multi word high keyword beats single word", text: "uber eats order", wantCat: models.CategoryFood, wantTier: models.TierHigh},
		{name: "generic word is medium", text: "lunch with team", wantCat: models.CategoryFood, wantTier: models.TierMedium},
		{name: "broad word is low", text: "weekend trip", wantCat: models.CategoryTransport, wantTier: models.TierLow},
		{name: "streaming", text: "Netflix subscription", wantCat: models.CategoryEntertainment, wantTier: models.TierHigh},
		{name: "fuzzy typo", text: "starbuks", wantCat: models.CategoryFood, wantTier: models.TierHigh},
		{name: "fuzzy medium word", text: "resturant", wantCat: models.CategoryFood, wantTier: models.TierMedium},
		{name: "keyword inside another word does not match", text: "business", wantCat: models.CategoryUncategorized, wantTier: models.TierNone},
		{name: "nothing", text: "xyzzy plugh", wantCat: models.CategoryUncategorized, wantTier: models.TierNone},
		{name: "empty", text: "", wantCat: models.CategoryUncategorized, wantTier: models.TierNone},
		{name: "punctuation only", text: "!!!", wantCat: models.CategoryUncategorized, wantTier: models.TierNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := c.Classify(tt.text)
			require.Equal(t, tt.wantCat, got.Category)
			require.Equal(t, tt.wantTier, got.Tier)
		})
	}
}

func TestClassify_TierOrderBeatsDeclarationOrder(t *testing.T) {
	t.Parallel()

	// "coffee" is a medium food word; "amazon" is a high shopping keyword.
	// The high tier is searched across every category first.
	got := defaultClassifier(t).Classify("coffee beans from amazon")
	require.Equal(t, models.CategoryShopping, got.Category)
	require.Equal(t, models.TierHigh, got.Tier)
	require.Equal(t, "amazon", got.Keyword)
}

func TestClassify_DeclarationOrderWithinTier(t *testing.T) {
	t.Parallel()

	tax, err := ParseTaxonomy([]byte(`
categories:
  - name: shopping
    range: {min: 1, max: 10}
    medium: [store]
  - name: groceries
    range: {min: 1, max: 10}
    medium: [store]
`))
	require.NoError(t, err)

	got := New(tax).Classify("corner store")
	require.Equal(t, models.CategoryShopping, got.Category)
}

func TestCheckPlausibility(t *testing.T) {
	t.Parallel()

	c := defaultClassifier(t)
	food := c.Classify("zomato")
	require.Equal(t, models.TierHigh, food.Tier)

	tests := []struct {
		name     string
		amount   decimal.NullDecimal
		wantTier models.Tier
	}{
		{name: "typical amount keeps tier", amount: decimal.NewNullDecimal(decimal.NewFromInt(350)), wantTier: models.TierHigh},
		{name: "unknown amount keeps tier", amount: decimal.NullDecimal{}, wantTier: models.TierHigh},
		{name: "absurdly high lowers tier", amount: decimal.NewNullDecimal(decimal.NewFromInt(900000)), wantTier: models.TierMedium},
		{name: "absurdly low lowers tier", amount: decimal.NewNullDecimal(decimal.RequireFromString("0.5")), wantTier: models.TierMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := c.CheckPlausibility(food, tt.amount)
			require.Equal(t, tt.wantTier, got.Tier)
			require.Equal(t, models.CategoryFood, got.Category, "category is never overridden")
		})
	}

	t.Run("no match is untouched", func(t *testing.T) {
		t.Parallel()
		got := c.CheckPlausibility(c.Classify("xyzzy"), decimal.NewNullDecimal(decimal.NewFromInt(1)))
		require.Equal(t, models.TierNone, got.Tier)
	})

	t.Run("low stays low", func(t *testing.T) {
		t.Parallel()
		low := c.Classify("weekend trip")
		require.Equal(t, models.TierLow, low.Tier)
		got := c.CheckPlausibility(low, decimal.NewNullDecimal(decimal.NewFromInt(99_000_000)))
		require.Equal(t, models.TierLow, got.Tier)
	})
}

func TestRange(t *testing.T) {
	t.Parallel()

	c := defaultClassifier(t)
	lo, hi, ok := c.Range(models.CategoryFood)
	require.True(t, ok)
	require.True(t, lo.LessThan(hi))

	_, _, ok = c.Range(models.CategoryUncategorized)
	require.False(t, ok)
}

func TestParseTaxonomy_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "invalid yaml", yaml: "categories: ["},
		{name: "no categories", yaml: "categories: []"},
		{name: "unknown category", yaml: "categories:\n  - name: rockets\n"},
		{name: "uncategorized not allowed", yaml: "categories:\n  - name: uncategorized\n"},
		{name: "duplicate", yaml: "categories:\n  - name: food\n  - name: food\n"},
		{name: "inverted range", yaml: "categories:\n  - name: food\n    range: {min: 10, max: 1}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseTaxonomy([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestDefaultTaxonomy_CoversEveryCategory(t *testing.T) {
	t.Parallel()

	tax, err := DefaultTaxonomy()
	require.NoError(t, err)
	require.InDelta(t, DefaultFuzzyThreshold, tax.FuzzyThreshold, 1e-9)
	require.Len(t, tax.Rules, len(models.AllCategories))
	for i, rule := range tax.Rules {
		require.Equal(t, models.AllCategories[i], rule.Category)
	}
}

func TestLoadTaxonomy(t *testing.T) {
	t.Parallel()

	tax, err := LoadTaxonomy("")
	require.NoError(t, err)
	require.NotEmpty(t, tax.Rules)

	_, err = LoadTaxonomy("/nonexistent/categories.yaml")
	require.Error(t, err)
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()

	c := defaultClassifier(t)
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		first := c.Classify(text)
		second := c.Classify(text)
		if first != second {
			t.Fatalf("Classify(%q) not deterministic: %+v vs %+v", text, first, second)
		}
		if first.Matched() != (first.Category != models.CategoryUncategorized) {
			t.Fatalf("tier and category disagree: %+v", first)
		}
	})
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	require.Equal(t, "mcdonald s", normalize("McDonald's"))
	require.Equal(t, "h m store", normalize("  H&M -- store!! "))
	require.Empty(t, normalize("..."))
}
