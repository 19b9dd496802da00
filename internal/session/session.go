// Package session keeps one pending expense per user while they review,
// edit and confirm it.
package session

import (
	"slices"
	"time"

	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
)

// State is a session's position in its lifecycle.
type State string

// Session states.
const (
	StatePending   State = "pending"
	StateEditing   State = "editing"
	StateConfirmed State = "confirmed"
	StateCancelled State = "cancelled"
)

// Change is one applied edit.
type Change struct {
	Field models.Field
	Old   string
	New   string
	At    time.Time
}

// Session is a pending expense awaiting confirmation.
type Session struct {
	ID        string
	User      models.User
	ChatID    int64
	MessageID int
	Candidate models.CandidateExpense
	State     State
	// Cursor is the field awaiting a typed value, empty when none.
	Cursor    models.Field
	History   []Change
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) snapshot() Session {
	cp := *s
	cp.History = slices.Clone(s.History)
	return cp
}

// FieldValue renders a candidate field for display and change history.
func FieldValue(c models.CandidateExpense, f models.Field) string {
	switch f {
	case models.FieldAmount:
		if !c.Amount.Valid {
			return ""
		}
		return c.Amount.Decimal.StringFixed(2)
	case models.FieldMerchant:
		return c.Merchant
	case models.FieldCategory:
		return string(c.Category)
	case models.FieldDescription:
		return c.Description
	case models.FieldPaymentMethod:
		return string(c.PaymentMethod)
	}
	return ""
}
