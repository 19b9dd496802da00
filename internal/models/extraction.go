package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModelExtraction is a language model's structured reading of expense text.
// Zero values mean the model did not supply the field.
type ModelExtraction struct {
	Amount        decimal.NullDecimal
	Merchant      string
	Category      Category
	Description   string
	PaymentMethod PaymentMethod
	Date          time.Time
}

// IsEmpty returns true if the model found neither amount nor merchant.
func (m *ModelExtraction) IsEmpty() bool {
	return !m.Amount.Valid && m.Merchant == ""
}
