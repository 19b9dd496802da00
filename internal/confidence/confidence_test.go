package confidence

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"pgregory.net/rapid"
)

func candidate(amount, merchant bool, tier models.Tier, method models.ExtractionMethod) models.CandidateExpense {
	c := models.CandidateExpense{MatchTier: tier, Method: method}
	if amount {
		c.Amount = decimal.NewNullDecimal(decimal.NewFromInt(15))
	}
	if merchant {
		c.Merchant = "McDonald's"
	}
	return c
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		c    models.CandidateExpense
		want int
	}{
		{name: "everything from the model", c: candidate(true, true, models.TierHigh, models.MethodLanguageModel), want: 100},
		{name: "everything from regex", c: candidate(true, true, models.TierHigh, models.MethodRegex), want: 88},
		{name: "hybrid medium tier", c: candidate(true, true, models.TierMedium, models.MethodHybrid), want: 84},
		{name: "amount only via regex", c: candidate(true, false, models.TierNone, models.MethodRegex), want: 43},
		{name: "medium tier no merchant", c: candidate(true, false, models.TierMedium, models.MethodLanguageModel), want: 70},
		{name: "merchant only hybrid", c: candidate(false, true, models.TierHigh, models.MethodHybrid), want: 59},
		{name: "nothing known via regex", c: candidate(false, false, models.TierNone, models.MethodRegex), want: 8},
		{name: "nothing at all", c: models.CandidateExpense{}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Score(tt.c))
		})
	}
}

func TestScore_Pure(t *testing.T) {
	t.Parallel()

	c := candidate(true, true, models.TierMedium, models.MethodRegex)
	before := c
	require.Equal(t, Score(c), Score(c))
	require.Equal(t, before, c)
}

func TestScore_MonotoneInKnownFields(t *testing.T) {
	t.Parallel()

	tiers := []models.Tier{models.TierNone, models.TierLow, models.TierMedium, models.TierHigh}
	methods := []models.ExtractionMethod{models.MethodRegex, models.MethodHybrid, models.MethodLanguageModel}

	rapid.Check(t, func(t *rapid.T) {
		tier := rapid.SampledFrom(tiers).Draw(t, "tier")
		method := rapid.SampledFrom(methods).Draw(t, "method")
		amount := rapid.Bool().Draw(t, "amount")
		merchant := rapid.Bool().Draw(t, "merchant")

		base := Score(candidate(amount, merchant, tier, method))
		withAmount := Score(candidate(true, merchant, tier, method))
		withMerchant := Score(candidate(amount, true, tier, method))
		full := Score(candidate(true, true, tier, method))

		if withAmount < base || withMerchant < base || full < withAmount || full < withMerchant {
			t.Fatalf("score decreased: base=%d amount=%d merchant=%d full=%d", base, withAmount, withMerchant, full)
		}
		if base < 0 || full > 100 {
			t.Fatalf("score out of range: %d..%d", base, full)
		}
	})
}

func TestNewScorer(t *testing.T) {
	t.Parallel()

	_, err := NewScorer(Weights{Amount: 0.5, Merchant: 0.5, Tier: 0.5})
	require.Error(t, err)

	_, err = NewScorer(Weights{Amount: 1.2, Merchant: -0.2})
	require.Error(t, err)

	s, err := NewScorer(Weights{Amount: 1})
	require.NoError(t, err)
	require.Equal(t, 100, s.Score(candidate(true, false, models.TierNone, models.MethodRegex)))
	require.Equal(t, 0, s.Score(candidate(false, true, models.TierHigh, models.MethodLanguageModel)))
}

func TestSignals(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, TierSignal(models.TierHigh), 1e-9)
	require.InDelta(t, 0.6, TierSignal(models.TierMedium), 1e-9)
	require.InDelta(t, 0.3, TierSignal(models.TierLow), 1e-9)
	require.InDelta(t, 0.0, TierSignal(models.TierNone), 1e-9)
	require.InDelta(t, 1.0, MethodSignal(models.MethodLanguageModel), 1e-9)
	require.InDelta(t, 0.7, MethodSignal(models.MethodHybrid), 1e-9)
	require.InDelta(t, 0.4, MethodSignal(models.MethodRegex), 1e-9)
}

func TestBandOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, BandHigh, BandOf(88))
	require.Equal(t, BandHigh, BandOf(80))
	require.Equal(t, BandMedium, BandOf(79))
	require.Equal(t, BandMedium, BandOf(50))
	require.Equal(t, BandLow, BandOf(49))
	require.Equal(t, BandLow, BandOf(0))
}
