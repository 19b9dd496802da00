package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/telemetry"
	"google.golang.org/api/googleapi"
)

// DefaultTimeout bounds each spreadsheet operation.
const DefaultTimeout = 20 * time.Second

const (
	defaultRetryDelay = 2 * time.Second
	retryAttempts     = 3
)

// Writer appends confirmed expenses to per-user spreadsheets.
type Writer struct {
	service     Service
	links       LinkStore
	shareMode   ShareMode
	timeout     time.Duration
	retryDelay  time.Duration
	instruments *telemetry.Instruments
	now         func() time.Time

	provisioning sync.Map // user id -> *sync.Mutex
	unlinked     sync.Map // user id -> spreadsheet id created but not yet saved
	headed       sync.Map // spreadsheet id -> struct{}
}

// Option configures a Writer.
type Option func(*Writer)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithRetryDelay sets the wait between rate-limited attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(w *Writer) {
		w.retryDelay = d
	}
}

// WithShareMode sets how new spreadsheets are shared.
func WithShareMode(m ShareMode) Option {
	return func(w *Writer) {
		w.shareMode = m
	}
}

// WithInstruments records append outcomes.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(w *Writer) {
		w.instruments = i
	}
}

// WithClock overrides time.Now for spreadsheet titles.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a Writer.
func NewWriter(service Service, links LinkStore, opts ...Option) *Writer {
	w := &Writer{
		service:    service,
		links:      links,
		shareMode:  ShareAnyoneWriter,
		timeout:    DefaultTimeout,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append writes one row to the user's spreadsheet, creating the spreadsheet
// on the user's first expense. It is not idempotent.
func (w *Writer) Append(ctx context.Context, user models.User, row models.ConfirmedExpenseRow) error {
	ctx, span := telemetry.Tracer().Start(ctx, "sheets.Append")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	id, err := w.ensureSpreadsheet(ctx, user)
	if err != nil {
		w.instruments.SheetAppend(ctx, telemetry.OutcomeFailure)
		span.RecordError(err)
		return err
	}

	values := row.Values()
	err = w.withRetry(ctx, func() error {
		return w.service.AppendRow(ctx, id, values)
	})
	if err != nil {
		w.instruments.SheetAppend(ctx, telemetry.OutcomeFailure)
		span.RecordError(err)
		logger.Log.Error().
			Err(err).
			Str("user_hash", logger.HashUserID(user.ID)).
			Msg("Failed to append expense row")
		return &PersistenceError{Op: "append", Err: err}
	}

	w.instruments.SheetAppend(ctx, telemetry.OutcomeSuccess)
	logger.Log.Info().
		Str("user_hash", logger.HashUserID(user.ID)).
		Str("category", string(row.Category)).
		Msg("Expense row appended")
	return nil
}

// SheetURL returns the link to the user's spreadsheet or ErrNoSheet.
func (w *Writer) SheetURL(ctx context.Context, userID int64) (string, error) {
	id, err := w.links.SpreadsheetID(ctx, userID)
	if err != nil {
		return "", &PersistenceError{Op: "lookup", Err: err}
	}
	if id == "" {
		return "", ErrNoSheet
	}
	return URL(id), nil
}

// Rows reads back the user's expense rows. Rows that do not parse are
// skipped.
func (w *Writer) Rows(ctx context.Context, userID int64) ([]models.ConfirmedExpenseRow, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	id, err := w.links.SpreadsheetID(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "lookup", Err: err}
	}
	if id == "" {
		return nil, ErrNoSheet
	}

	var raw [][]any
	err = w.withRetry(ctx, func() error {
		var readErr error
		raw, readErr = w.service.ReadRows(ctx, id)
		return readErr
	})
	if err != nil {
		return nil, &PersistenceError{Op: "read", Err: err}
	}

	rows := make([]models.ConfirmedExpenseRow, 0, len(raw))
	for _, values := range raw {
		if row, ok := parseRow(values); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (w *Writer) ensureSpreadsheet(ctx context.Context, user models.User) (string, error) {
	muAny, _ := w.provisioning.LoadOrStore(user.ID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	id, err := w.links.SpreadsheetID(ctx, user.ID)
	if err != nil {
		return "", &PersistenceError{Op: "lookup", Err: err}
	}
	if id == "" {
		if id, err = w.provision(ctx, user); err != nil {
			return "", err
		}
	}

	// Row 1 is only ever the header, so rewriting it after a restart is safe.
	if _, ok := w.headed.Load(id); !ok {
		err = w.withRetry(ctx, func() error {
			return w.service.WriteHeader(ctx, id, models.RowHeaders)
		})
		if err != nil {
			return "", &PersistenceError{Op: "header", Err: err}
		}
		w.headed.Store(id, struct{}{})
	}
	return id, nil
}

// provision creates and links a spreadsheet for the user. A spreadsheet whose
// link could not be saved is reused on the next attempt.
func (w *Writer) provision(ctx context.Context, user models.User) (string, error) {
	var id string
	if pending, ok := w.unlinked.Load(user.ID); ok {
		id = pending.(string)
	} else {
		title := SpreadsheetTitle(user, w.now())
		err := w.withRetry(ctx, func() error {
			var createErr error
			id, createErr = w.service.CreateSpreadsheet(ctx, title)
			return createErr
		})
		if err != nil {
			return "", &PersistenceError{Op: "create", Err: err}
		}
		w.unlinked.Store(user.ID, id)

		if err := w.service.Share(ctx, id, w.shareMode); err != nil {
			logger.Log.Warn().
				Err(err).
				Str("user_hash", logger.HashUserID(user.ID)).
				Str("mode", string(w.shareMode)).
				Msg("Failed to share spreadsheet")
		}
	}

	if err := w.links.SaveSpreadsheetID(ctx, user.ID, id); err != nil {
		return "", &PersistenceError{Op: "link", Err: err}
	}
	w.unlinked.Delete(user.ID)

	logger.Log.Info().
		Str("user_hash", logger.HashUserID(user.ID)).
		Msg("Spreadsheet provisioned")
	return id, nil
}

func (w *Writer) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.RetryIf(isRateLimited),
		retry.OnRetry(func(n uint, err error) {
			logger.Log.Warn().Err(err).Uint("attempt", n+1).Msg("Sheets rate limited, retrying")
		}),
		retry.Attempts(retryAttempts),
		retry.Delay(w.retryDelay),
		retry.LastErrorOnly(true),
	)
}

func isRateLimited(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests
}

// SpreadsheetTitle names a user's spreadsheet.
func SpreadsheetTitle(user models.User, day time.Time) string {
	name := user.Username
	if name == "" {
		name = fmt.Sprintf("%d", user.ID)
	}
	return fmt.Sprintf("ExpenseTracker_%s_%s", name, day.Format(models.RowDateLayout))
}

func parseRow(values []any) (models.ConfirmedExpenseRow, bool) {
	if len(values) < 2 {
		return models.ConfirmedExpenseRow{}, false
	}

	cell := func(i int) string {
		if i >= len(values) {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(values[i]))
	}

	date, err := time.Parse(models.RowDateLayout, cell(0))
	if err != nil {
		return models.ConfirmedExpenseRow{}, false
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(cell(1), ",", ""))
	if err != nil {
		return models.ConfirmedExpenseRow{}, false
	}

	category, err := models.ParseCategory(cell(2))
	if err != nil {
		category = models.CategoryUncategorized
	}
	payment, _ := models.ParsePaymentMethod(cell(5))

	return models.ConfirmedExpenseRow{
		Date:          date,
		Amount:        amount,
		Category:      category,
		Merchant:      cell(3),
		Description:   cell(4),
		PaymentMethod: payment,
	}, true
}
