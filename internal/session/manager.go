package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/confidence"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/money"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/telemetry"
)

// DefaultTTL is how long an untouched session stays pending.
const DefaultTTL = 30 * time.Minute

// Sink persists a confirmed expense.
type Sink interface {
	Append(ctx context.Context, user models.User, row models.ConfirmedExpenseRow) error
}

// userSlot serializes all operations for one user.
type userSlot struct {
	mu      sync.Mutex
	session *Session
	// removed is set when the sweeper drops the slot from the map.
	removed bool
}

// Manager owns all pending sessions. Operations for one user run one at a
// time; different users never block each other.
type Manager struct {
	mu    sync.Mutex
	slots map[int64]*userSlot

	sink        Sink
	ttl         time.Duration
	now         func() time.Time
	scorer      *confidence.Scorer
	instruments *telemetry.Instruments
	newID       func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithScorer sets the scorer used after edits.
func WithScorer(s *confidence.Scorer) Option {
	return func(m *Manager) { m.scorer = s }
}

// WithInstruments records session metrics.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(m *Manager) { m.instruments = i }
}

// WithIDGenerator replaces the random session id source.
func WithIDGenerator(f func() string) Option {
	return func(m *Manager) { m.newID = f }
}

// NewManager creates a Manager that confirms into sink.
func NewManager(sink Sink, opts ...Option) *Manager {
	m := &Manager{
		slots: make(map[int64]*userSlot),
		sink:  sink,
		ttl:   DefaultTTL,
		now:   time.Now,
		newID: func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.scorer == nil {
		m.scorer, _ = confidence.NewScorer(confidence.DefaultWeights)
	}
	return m
}

// lock returns the user's slot with its mutex held.
func (m *Manager) lock(userID int64) *userSlot {
	for {
		m.mu.Lock()
		slot, ok := m.slots[userID]
		if !ok {
			slot = &userSlot{}
			m.slots[userID] = slot
		}
		m.mu.Unlock()

		slot.mu.Lock()
		if !slot.removed {
			return slot
		}
		slot.mu.Unlock()
	}
}

// live returns the slot's session if it matches id and has not expired.
// An empty id matches any session.
func (m *Manager) live(slot *userSlot, id string) (*Session, error) {
	s := slot.session
	if s == nil {
		return nil, ErrNotFound
	}
	if m.now().After(s.ExpiresAt) {
		slot.session = nil
		return nil, ErrNotFound
	}
	if id != "" && s.ID != id {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) touch(s *Session) {
	s.ExpiresAt = m.now().Add(m.ttl)
}

// Open starts a session for the candidate, replacing any session the user
// already had.
func (m *Manager) Open(user models.User, chatID int64, c models.CandidateExpense) Session {
	slot := m.lock(user.ID)
	defer slot.mu.Unlock()

	now := m.now()
	if slot.session != nil {
		logger.Log.Debug().
			Str("user_hash", logger.HashUserID(user.ID)).
			Str("replaced_session", slot.session.ID).
			Msg("Replacing pending expense")
	}

	s := &Session{
		ID:        m.newID(),
		User:      user,
		ChatID:    chatID,
		Candidate: c,
		State:     StatePending,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	slot.session = s
	m.instruments.SessionOpened(context.Background())

	return s.snapshot()
}

// Get returns the session with id.
func (m *Manager) Get(userID int64, id string) (Session, error) {
	slot := m.lock(userID)
	defer slot.mu.Unlock()

	s, err := m.live(slot, id)
	if err != nil {
		return Session{}, err
	}
	return s.snapshot(), nil
}

// Current returns the user's session whatever its id.
func (m *Manager) Current(userID int64) (Session, error) {
	return m.Get(userID, "")
}

// SetMessage remembers the chat message showing the preview.
func (m *Manager) SetMessage(userID int64, id string, messageID int) error {
	slot := m.lock(userID)
	defer slot.mu.Unlock()

	s, err := m.live(slot, id)
	if err != nil {
		return err
	}
	s.MessageID = messageID
	return nil
}

// BeginEdit moves the session to Editing with the cursor on field.
func (m *Manager) BeginEdit(userID int64, id string, field models.Field) (Session, error) {
	if _, err := models.ParseField(string(field)); err != nil {
		return Session{}, &ValidationError{Field: field, Reason: "unknown field"}
	}

	slot := m.lock(userID)
	defer slot.mu.Unlock()

	s, err := m.live(slot, id)
	if err != nil {
		return Session{}, err
	}

	s.State = StateEditing
	s.Cursor = field
	m.touch(s)
	return s.snapshot(), nil
}

// ApplyEdit validates value and writes it to field. On failure the session
// is unchanged. A Pending session stays Pending, which is how quick fixes
// apply in one step.
func (m *Manager) ApplyEdit(userID int64, id string, field models.Field, value string) (Session, error) {
	slot := m.lock(userID)
	defer slot.mu.Unlock()

	s, err := m.live(slot, id)
	if err != nil {
		return Session{}, err
	}

	updated, err := applyField(s.Candidate, field, value)
	if err != nil {
		return Session{}, err
	}

	s.History = append(s.History, Change{
		Field: field,
		Old:   FieldValue(s.Candidate, field),
		New:   FieldValue(updated, field),
		At:    m.now(),
	})
	updated.Confidence = m.scorer.Score(updated)
	s.Candidate = updated
	s.Cursor = ""
	m.touch(s)

	logger.Log.Debug().
		Str("user_hash", logger.HashUserID(userID)).
		Str("session_id", s.ID).
		Str("field", string(field)).
		Int("confidence", updated.Confidence).
		Msg("Expense field edited")

	return s.snapshot(), nil
}

func applyField(c models.CandidateExpense, field models.Field, value string) (models.CandidateExpense, error) {
	value = strings.Join(strings.Fields(value), " ")

	switch field {
	case models.FieldAmount:
		d, err := money.Parse(value)
		if err != nil {
			return c, &ValidationError{Field: field, Reason: "enter a number like 12.50 (0 or more)"}
		}
		c.Amount = decimal.NewNullDecimal(d)
	case models.FieldMerchant:
		if err := checkText(field, value, models.MaxMerchantLength); err != nil {
			return c, err
		}
		c.Merchant = value
	case models.FieldDescription:
		if err := checkText(field, value, models.MaxDescriptionLength); err != nil {
			return c, err
		}
		c.Description = value
	case models.FieldCategory:
		cat, err := models.ParseCategory(value)
		if err != nil || cat == models.CategoryUncategorized {
			return c, &ValidationError{Field: field, Reason: "pick one of the listed categories"}
		}
		c.Category = cat
		c.MatchTier = models.TierHigh
	case models.FieldPaymentMethod:
		pm, err := models.ParsePaymentMethod(value)
		if err != nil {
			return c, &ValidationError{Field: field, Reason: "pick one of the listed payment methods"}
		}
		c.PaymentMethod = pm
	default:
		return c, &ValidationError{Field: field, Reason: "unknown field"}
	}

	return c, nil
}

func checkText(field models.Field, value string, maxLength int) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	if len(value) > maxLength {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", maxLength)}
	}
	return nil
}

// Save ends editing: Editing → Pending.
func (m *Manager) Save(userID int64, id string) (Session, error) {
	slot := m.lock(userID)
	defer slot.mu.Unlock()

	s, err := m.live(slot, id)
	if err != nil {
		return Session{}, err
	}

	s.State = StatePending
	s.Cursor = ""
	m.touch(s)
	return s.snapshot(), nil
}

// Confirm writes the expense to the sink and ends the session. It fails with
// a *ValidationError while the amount is unknown. If the sink fails the
// session stays Pending so the user can retry.
func (m *Manager) Confirm(ctx context.Context, userID int64, id string) (models.ConfirmedExpenseRow, error) {
	slot := m.lock(userID)
	defer slot.mu.Unlock()

	s, err := m.live(slot, id)
	if err != nil {
		return models.ConfirmedExpenseRow{}, err
	}

	s.State = StatePending
	s.Cursor = ""

	c := s.Candidate
	if !c.HasAmount() {
		m.instruments.Confirmation(ctx, telemetry.OutcomeInvalid)
		return models.ConfirmedExpenseRow{}, &ValidationError{Field: models.FieldAmount, Reason: "amount is required"}
	}

	row := models.ConfirmedExpenseRow{
		Date:          c.Date,
		Amount:        c.Amount.Decimal,
		Category:      c.Category,
		Merchant:      c.Merchant,
		Description:   c.Description,
		PaymentMethod: c.PaymentMethod,
	}
	if row.Date.IsZero() {
		row.Date = m.now()
	}
	if row.Category == "" {
		row.Category = models.CategoryUncategorized
	}

	if err := m.sink.Append(ctx, s.User, row); err != nil {
		m.touch(s)
		m.instruments.Confirmation(ctx, telemetry.OutcomeFailure)
		return models.ConfirmedExpenseRow{}, fmt.Errorf("failed to save expense: %w", err)
	}

	s.State = StateConfirmed
	slot.session = nil
	m.instruments.Confirmation(ctx, telemetry.OutcomeSuccess)

	return row, nil
}

// Cancel discards the session.
func (m *Manager) Cancel(userID int64, id string) error {
	slot := m.lock(userID)
	defer slot.mu.Unlock()

	s, err := m.live(slot, id)
	if err != nil {
		return err
	}

	s.State = StateCancelled
	slot.session = nil
	return nil
}

// Sweep drops expired sessions and returns how many it removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.slots))
	slots := make([]*userSlot, 0, len(m.slots))
	for id, slot := range m.slots {
		ids = append(ids, id)
		slots = append(slots, slot)
	}
	m.mu.Unlock()

	removed := 0
	now := m.now()
	for i, slot := range slots {
		slot.mu.Lock()
		if slot.session != nil && now.After(slot.session.ExpiresAt) {
			slot.session = nil
			removed++
		}
		if slot.session == nil && !slot.removed {
			m.mu.Lock()
			if m.slots[ids[i]] == slot {
				delete(m.slots, ids[i])
				slot.removed = true
			}
			m.mu.Unlock()
		}
		slot.mu.Unlock()
	}

	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Log.Info().Dur("interval", interval).Dur("ttl", m.ttl).Msg("Session sweeper started")

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("Session sweeper stopped")
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.Log.Debug().Int("expired", n).Msg("Expired pending expenses removed")
			}
		}
	}
}
