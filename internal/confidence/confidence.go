// Package confidence scores how trustworthy an extracted expense is.
package confidence

import (
	"fmt"
	"math"

	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
)

// Weights are the relative importance of each signal. They must sum to 1.
type Weights struct {
	Amount   float64
	Merchant float64
	Tier     float64
	Method   float64
}

// DefaultWeights favour the amount, since a candidate without one cannot be
// confirmed.
var DefaultWeights = Weights{
	Amount:   0.35,
	Merchant: 0.20,
	Tier:     0.25,
	Method:   0.20,
}

// Validate checks the weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Amount, w.Merchant, w.Tier, w.Method} {
		if v < 0 {
			return fmt.Errorf("weights must not be negative")
		}
	}
	sum := w.Amount + w.Merchant + w.Tier + w.Method
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights sum to %.4f, want 1", sum)
	}
	return nil
}

// TierSignal normalizes a classifier tier to [0,1].
func TierSignal(t models.Tier) float64 {
	switch t {
	case models.TierHigh:
		return 1.0
	case models.TierMedium:
		return 0.6
	case models.TierLow:
		return 0.3
	default:
		return 0
	}
}

// MethodSignal normalizes an extraction method to [0,1].
func MethodSignal(m models.ExtractionMethod) float64 {
	switch m {
	case models.MethodLanguageModel:
		return 1.0
	case models.MethodHybrid:
		return 0.7
	case models.MethodRegex:
		return 0.4
	default:
		return 0
	}
}

// Scorer computes confidence scores with fixed weights.
type Scorer struct {
	weights Weights
}

// NewScorer creates a Scorer, rejecting invalid weights.
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

// Score returns round(100 × weighted sum of signals), in 0..100.
func (s *Scorer) Score(c models.CandidateExpense) int {
	w := s.weights
	sum := w.Tier*TierSignal(c.MatchTier) + w.Method*MethodSignal(c.Method)
	if c.HasAmount() {
		sum += w.Amount
	}
	if c.HasMerchant() {
		sum += w.Merchant
	}

	score := int(math.Round(100 * sum))
	return min(max(score, 0), 100)
}

var defaultScorer = &Scorer{weights: DefaultWeights}

// Score scores c with DefaultWeights.
func Score(c models.CandidateExpense) int {
	return defaultScorer.Score(c)
}

// Band groups scores for display.
type Band string

// Confidence bands.
const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// BandOf maps a score to its band.
func BandOf(score int) Band {
	switch {
	case score >= 80:
		return BandHigh
	case score >= 50:
		return BandMedium
	default:
		return BandLow
	}
}
