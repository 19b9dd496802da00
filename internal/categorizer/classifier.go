package categorizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
)

// minFuzzyRunes is the shortest token considered for fuzzy matching.
const minFuzzyRunes = 4

// plausibilityMargin is how far outside a category range an amount must fall
// before the match tier is lowered.
var plausibilityMargin = decimal.NewFromInt(10)

var matchOrder = []models.Tier{models.TierHigh, models.TierMedium, models.TierLow}

// Result is the outcome of classifying a piece of text.
type Result struct {
	Category models.Category
	Tier     models.Tier
	Keyword  string
	// Similarity is 1 for exact matches and the normalized edit similarity
	// for fuzzy matches.
	Similarity float64
}

// Matched reports whether any keyword matched.
func (r Result) Matched() bool {
	return r.Tier != models.TierNone
}

var noMatch = Result{Category: models.CategoryUncategorized, Tier: models.TierNone}

// Classifier assigns categories using a keyword taxonomy. It is safe for
// concurrent use; all state is read-only after construction.
type Classifier struct {
	taxonomy *Taxonomy
}

// New creates a Classifier from a taxonomy.
func New(t *Taxonomy) *Classifier {
	return &Classifier{taxonomy: t}
}

// Classify maps merchant or description text to a category and match tier.
// Exact word-bounded matches are tried tier by tier, then the best fuzzy
// match above the threshold, then uncategorized.
func (c *Classifier) Classify(text string) Result {
	norm := normalize(text)
	if norm == "" {
		return noMatch
	}
	padded := " " + norm + " "

	for _, tier := range matchOrder {
		for _, rule := range c.taxonomy.Rules {
			for _, kw := range rule.Keywords[tier] {
				if strings.Contains(padded, " "+kw+" ") {
					return Result{Category: rule.Category, Tier: tier, Keyword: kw, Similarity: 1}
				}
			}
		}
	}

	return c.fuzzy(strings.Fields(norm))
}

func (c *Classifier) fuzzy(tokens []string) Result {
	best := noMatch
	for _, tier := range matchOrder {
		for _, rule := range c.taxonomy.Rules {
			for _, kw := range rule.Keywords[tier] {
				sim := bestSimilarity(tokens, kw)
				if sim >= c.taxonomy.FuzzyThreshold && sim > best.Similarity {
					best = Result{Category: rule.Category, Tier: tier, Keyword: kw, Similarity: sim}
				}
			}
		}
	}
	return best
}

// bestSimilarity compares kw against every window of len(kw words) tokens.
func bestSimilarity(tokens []string, kw string) float64 {
	width := strings.Count(kw, " ") + 1
	if utf8.RuneCountInString(kw) < minFuzzyRunes || width > len(tokens) {
		return 0
	}

	best := 0.0
	for i := 0; i+width <= len(tokens); i++ {
		candidate := strings.Join(tokens[i:i+width], " ")
		if utf8.RuneCountInString(candidate) < minFuzzyRunes {
			continue
		}
		if sim := similarity(candidate, kw); sim > best {
			best = sim
		}
	}
	return best
}

// similarity is 1 - distance/longest, in runes.
func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// CheckPlausibility lowers the tier by one step when the amount falls far
// outside the category's typical range. The category is never changed.
func (c *Classifier) CheckPlausibility(r Result, amount decimal.NullDecimal) Result {
	if !r.Matched() || !amount.Valid {
		return r
	}

	rule, ok := c.rule(r.Category)
	if !ok {
		return r
	}

	tooHigh := amount.Decimal.GreaterThan(rule.Max.Mul(plausibilityMargin))
	tooLow := amount.Decimal.LessThan(rule.Min.Div(plausibilityMargin))
	if tooHigh || tooLow {
		r.Tier = r.Tier.Lower()
	}
	return r
}

// Range returns the typical amount range of a category.
func (c *Classifier) Range(cat models.Category) (lo, hi decimal.Decimal, ok bool) {
	rule, ok := c.rule(cat)
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return rule.Min, rule.Max, true
}

func (c *Classifier) rule(cat models.Category) (Rule, bool) {
	for _, rule := range c.taxonomy.Rules {
		if rule.Category == cat {
			return rule, true
		}
	}
	return Rule{}, false
}

// normalize lowercases text and turns every run of non-alphanumerics into a
// single space.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}
