package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeInvalid = "invalid"
)

// Instruments holds the counters the bot records. A nil *Instruments is
// valid and records nothing.
type Instruments struct {
	extractions    metric.Int64Counter
	sessionsOpened metric.Int64Counter
	confirmations  metric.Int64Counter
	sheetAppends   metric.Int64Counter
}

// NewInstruments creates the counters on mp's module meter.
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(InstrumentationName)

	extractions, err := meter.Int64Counter("expense_extractions_total",
		metric.WithDescription("Expense extractions by the method that produced the candidate"))
	if err != nil {
		return nil, fmt.Errorf("failed to create extractions counter: %w", err)
	}

	sessionsOpened, err := meter.Int64Counter("expense_sessions_opened_total",
		metric.WithDescription("Pending expense sessions opened"))
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions counter: %w", err)
	}

	confirmations, err := meter.Int64Counter("expense_confirmations_total",
		metric.WithDescription("Expense confirmations by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create confirmations counter: %w", err)
	}

	sheetAppends, err := meter.Int64Counter("sheet_appends_total",
		metric.WithDescription("Spreadsheet row appends by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet appends counter: %w", err)
	}

	return &Instruments{
		extractions:    extractions,
		sessionsOpened: sessionsOpened,
		confirmations:  confirmations,
		sheetAppends:   sheetAppends,
	}, nil
}

// Extraction counts a finished extraction.
func (i *Instruments) Extraction(ctx context.Context, method string) {
	if i == nil {
		return
	}
	i.extractions.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// SessionOpened counts a newly opened session.
func (i *Instruments) SessionOpened(ctx context.Context) {
	if i == nil {
		return
	}
	i.sessionsOpened.Add(ctx, 1)
}

// Confirmation counts a confirm attempt.
func (i *Instruments) Confirmation(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SheetAppend counts a spreadsheet append attempt.
func (i *Instruments) SheetAppend(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.sheetAppends.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
