// Package extractor turns free text into a CandidateExpense. A language model
// is tried first; a pattern-based reader fills gaps or takes over when the
// model fails. Extract never returns an error.
package extractor

import (
	"context"
	"errors"
	"strings"
	"time"

	"gitlab.com/yelinaung/sheets-expense-bot/internal/categorizer"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/confidence"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/llm"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a single language model call.
const DefaultTimeout = 15 * time.Second

// LanguageModel performs structured extraction. Implementations return
// llm.ErrNoData when the reply holds neither amount nor merchant.
type LanguageModel interface {
	ExtractExpense(ctx context.Context, text string) (*models.ModelExtraction, error)
}

// attempt is the tagged outcome of one strategy.
type attempt struct {
	ok     bool
	reason string
}

type modelAttempt struct {
	attempt
	data *models.ModelExtraction
}

type patternAttempt struct {
	attempt
	data regexResult
}

// Extractor runs the extraction strategies and scores the result. It is
// safe for concurrent use.
type Extractor struct {
	model       LanguageModel
	classifier  *categorizer.Classifier
	scorer      *confidence.Scorer
	timeout     time.Duration
	instruments *telemetry.Instruments
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithScorer replaces the default confidence scorer.
func WithScorer(s *confidence.Scorer) Option {
	return func(e *Extractor) { e.scorer = s }
}

// WithInstruments records extraction counts.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(e *Extractor) { e.instruments = i }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Extractor) { e.tracer = t }
}

// WithClock sets the source of the default expense date.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New creates an Extractor. model may be nil, in which case only the
// pattern strategy runs.
func New(model LanguageModel, classifier *categorizer.Classifier, opts ...Option) *Extractor {
	e := &Extractor{
		model:      model,
		classifier: classifier,
		timeout:    DefaultTimeout,
		tracer:     telemetry.Tracer(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scorer == nil {
		e.scorer, _ = confidence.NewScorer(confidence.DefaultWeights)
	}
	return e
}

// Extract reads an expense from text. On total failure the candidate has no
// amount or merchant, is uncategorized and has confidence 0, so the caller
// can still offer manual entry.
func (e *Extractor) Extract(ctx context.Context, text string) models.CandidateExpense {
	ctx, span := e.tracer.Start(ctx, "extractor.Extract")
	defer span.End()

	ma := e.tryModel(ctx, text)

	var pa patternAttempt
	if !ma.ok || needsPatterns(ma.data) {
		pa = tryPatterns(text)
	}

	c, ok := e.combine(text, ma, pa)
	if !ok {
		c = e.unrecognized(text)
	} else {
		e.categorize(&c, ma)
		c.Confidence = e.scorer.Score(c)
	}

	span.SetAttributes(
		attribute.String("extraction.method", string(c.Method)),
		attribute.Bool("extraction.model_ok", ma.ok),
		attribute.String("extraction.model_reason", ma.reason),
		attribute.Bool("extraction.pattern_ok", pa.ok),
		attribute.Int("extraction.confidence", c.Confidence),
	)
	e.instruments.Extraction(ctx, string(c.Method))

	logger.Log.Debug().
		Str("method", string(c.Method)).
		Bool("model_ok", ma.ok).
		Str("model_reason", ma.reason).
		Bool("pattern_ok", pa.ok).
		Str("pattern_reason", pa.reason).
		Str("category", string(c.Category)).
		Str("tier", c.MatchTier.String()).
		Int("confidence", c.Confidence).
		Str("text", logger.SanitizeText(text)).
		Msg("Expense extracted")

	return c
}

func (e *Extractor) tryModel(ctx context.Context, text string) modelAttempt {
	if e.model == nil {
		return modelAttempt{attempt: attempt{reason: "no model configured"}}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	data, err := e.model.ExtractExpense(callCtx, text)
	switch {
	case err == nil && data != nil && !data.IsEmpty():
		return modelAttempt{attempt: attempt{ok: true}, data: data}
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return modelAttempt{attempt: attempt{reason: "timeout"}}
	case errors.Is(err, llm.ErrNoData), err == nil:
		return modelAttempt{attempt: attempt{reason: "no data"}}
	default:
		return modelAttempt{attempt: attempt{reason: err.Error()}}
	}
}

func tryPatterns(text string) patternAttempt {
	data, ok := parseWithPatterns(text)
	if !ok {
		return patternAttempt{attempt: attempt{reason: "no amount"}}
	}
	return patternAttempt{attempt: attempt{ok: true}, data: data}
}

func needsPatterns(m *models.ModelExtraction) bool {
	return !m.Amount.Valid || m.Merchant == "" || m.PaymentMethod == ""
}

// combine merges the strategy outcomes. It reports false when neither
// produced an amount or merchant.
func (e *Extractor) combine(text string, ma modelAttempt, pa patternAttempt) (models.CandidateExpense, bool) {
	c := models.CandidateExpense{
		Category: models.CategoryUncategorized,
		Date:     e.today(),
		Source:   models.SourceText,
	}

	switch {
	case ma.ok:
		m := ma.data
		c.Method = models.MethodLanguageModel
		c.Amount = m.Amount
		c.Merchant = m.Merchant
		c.Description = m.Description
		c.PaymentMethod = m.PaymentMethod
		if !m.Date.IsZero() {
			c.Date = m.Date
		}

		if pa.ok {
			filled := false
			if !c.Amount.Valid {
				c.Amount = pa.data.amount
				filled = true
			}
			if c.Merchant == "" && pa.data.merchant != "" {
				c.Merchant = pa.data.merchant
				filled = true
			}
			if c.PaymentMethod == "" && pa.data.paymentMethod != "" {
				c.PaymentMethod = pa.data.paymentMethod
				filled = true
			}
			if c.Description == "" {
				c.Description = pa.data.description
			}
			if filled {
				c.Method = models.MethodHybrid
			}
		}
	case pa.ok:
		c.Method = models.MethodRegex
		c.Amount = pa.data.amount
		c.Merchant = pa.data.merchant
		c.Description = pa.data.description
		c.PaymentMethod = pa.data.paymentMethod
	default:
		return models.CandidateExpense{}, false
	}

	if c.Description == "" {
		c.Description = clip(squash(text), models.MaxDescriptionLength)
	}

	return c, c.HasAmount() || c.HasMerchant()
}

// categorize classifies the merchant, then the description, and reconciles
// the result with the model's own guess.
func (e *Extractor) categorize(c *models.CandidateExpense, ma modelAttempt) {
	res := e.classifier.Classify(c.Merchant)
	if !res.Matched() {
		res = e.classifier.Classify(c.Description)
	}

	if ma.ok && ma.data.Category.Valid() && ma.data.Category != models.CategoryUncategorized {
		if !res.Matched() || res.Category != ma.data.Category {
			res = categorizer.Result{Category: ma.data.Category, Tier: models.TierMedium}
		}
	}

	res = e.classifier.CheckPlausibility(res, c.Amount)
	c.Category = res.Category
	c.MatchTier = res.Tier
}

func (e *Extractor) unrecognized(text string) models.CandidateExpense {
	return models.CandidateExpense{
		Category:    models.CategoryUncategorized,
		MatchTier:   models.TierNone,
		Description: clip(squash(text), models.MaxDescriptionLength),
		Method:      models.MethodRegex,
		Confidence:  0,
		Date:        e.today(),
		Source:      models.SourceText,
	}
}

func (e *Extractor) today() time.Time {
	now := e.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
