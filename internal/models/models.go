// Package models defines the domain entities for the sheet expense bot.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxDescriptionLength is the maximum allowed length for expense descriptions.
const MaxDescriptionLength = 200

// MaxMerchantLength is the maximum allowed length for merchant names.
const MaxMerchantLength = 100

// User represents a Telegram user.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the best human readable name for the user.
func (u *User) DisplayName() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.FirstName != "":
		return u.FirstName
	default:
		return ""
	}
}

// InputSource records where the raw expense text came from.
type InputSource string

// Input sources.
const (
	SourceText  InputSource = "text"
	SourcePhoto InputSource = "photo"
)

// CandidateExpense is an extracted but unconfirmed expense.
// Amount.Valid is false while the amount is unknown; an empty Merchant or
// PaymentMethod means unknown.
type CandidateExpense struct {
	Amount        decimal.NullDecimal
	Merchant      string
	Category      Category
	MatchTier     Tier
	Description   string
	PaymentMethod PaymentMethod
	Method        ExtractionMethod
	Confidence    int
	Date          time.Time
	Source        InputSource
}

// HasAmount returns true if the amount is known.
func (c *CandidateExpense) HasAmount() bool {
	return c.Amount.Valid
}

// HasMerchant returns true if the merchant is known.
func (c *CandidateExpense) HasMerchant() bool {
	return c.Merchant != ""
}

// HasPaymentMethod returns true if the payment method is known.
func (c *CandidateExpense) HasPaymentMethod() bool {
	return c.PaymentMethod != ""
}

// ConfirmedExpenseRow is the record appended to the user's spreadsheet.
type ConfirmedExpenseRow struct {
	Date          time.Time
	Amount        decimal.Decimal
	Category      Category
	Merchant      string
	Description   string
	PaymentMethod PaymentMethod
}

// RowDateLayout is the date format used in spreadsheet rows.
const RowDateLayout = "2006-01-02"

// Values returns the row in spreadsheet column order.
func (r ConfirmedExpenseRow) Values() []any {
	return []any{
		r.Date.Format(RowDateLayout),
		r.Amount.StringFixed(2),
		r.Category.Label(),
		sheetText(r.Merchant),
		sheetText(r.Description),
		string(r.PaymentMethod),
	}
}

// sheetText keeps free text from being entered as a formula.
func sheetText(s string) string {
	if s != "" && strings.ContainsRune("=+-@", rune(s[0])) {
		return "'" + s
	}
	return s
}

// RowHeaders are the spreadsheet column headers, matching Values.
var RowHeaders = []any{"Date", "Amount", "Category", "Merchant", "Description", "Payment Method"}
