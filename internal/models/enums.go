package models

import (
	"fmt"
	"maps"
	"strings"
)

// Tier is the strength of a classifier keyword match.
type Tier int

// Match tiers, weakest first.
const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "none"
	}
}

// Lower returns the tier one step weaker, never below TierLow for a match.
func (t Tier) Lower() Tier {
	if t <= TierLow {
		return t
	}
	return t - 1
}

// ExtractionMethod records which strategy produced a candidate.
type ExtractionMethod string

// Extraction methods.
const (
	MethodLanguageModel ExtractionMethod = "language_model"
	MethodRegex         ExtractionMethod = "regex"
	MethodHybrid        ExtractionMethod = "hybrid"
)

// Field is an editable CandidateExpense field.
type Field string

// Editable fields.
const (
	FieldAmount        Field = "amount"
	FieldMerchant      Field = "merchant"
	FieldCategory      Field = "category"
	FieldDescription   Field = "description"
	FieldPaymentMethod Field = "payment_method"
)

// AllFields lists the editable fields in menu order.
var AllFields = []Field{
	FieldAmount,
	FieldMerchant,
	FieldCategory,
	FieldDescription,
	FieldPaymentMethod,
}

// ParseField resolves an editable field by name.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FieldAmount, FieldMerchant, FieldCategory, FieldDescription, FieldPaymentMethod:
		return f, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// Label returns the human readable field name.
func (f Field) Label() string {
	switch f {
	case FieldAmount:
		return "Amount"
	case FieldMerchant:
		return "Merchant"
	case FieldCategory:
		return "Category"
	case FieldDescription:
		return "Description"
	case FieldPaymentMethod:
		return "Payment Method"
	}
	return string(f)
}

// PaymentMethod is a normalized payment channel.
type PaymentMethod string

// Payment methods.
const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentUPI          PaymentMethod = "upi"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentWallet       PaymentMethod = "wallet"
	PaymentOther        PaymentMethod = "other"
)

// AllPaymentMethods lists the payment methods in keyboard order.
var AllPaymentMethods = []PaymentMethod{
	PaymentCash,
	PaymentCard,
	PaymentUPI,
	PaymentBankTransfer,
	PaymentWallet,
	PaymentOther,
}

// paymentSynonyms maps user and model vocabulary onto payment methods.
var paymentSynonyms = map[string]PaymentMethod{
	"cash":          PaymentCash,
	"card":          PaymentCard,
	"credit":        PaymentCard,
	"debit":         PaymentCard,
	"credit card":   PaymentCard,
	"debit card":    PaymentCard,
	"visa":          PaymentCard,
	"mastercard":    PaymentCard,
	"amex":          PaymentCard,
	"upi":           PaymentUPI,
	"gpay":          PaymentUPI,
	"google pay":    PaymentUPI,
	"paytm":         PaymentUPI,
	"phonepe":       PaymentUPI,
	"bhim":          PaymentUPI,
	"bank_transfer": PaymentBankTransfer,
	"bank transfer": PaymentBankTransfer,
	"netbanking":    PaymentBankTransfer,
	"neft":          PaymentBankTransfer,
	"imps":          PaymentBankTransfer,
	"wallet":        PaymentWallet,
	"paypal":        PaymentWallet,
	"apple pay":     PaymentWallet,
	"grabpay":       PaymentWallet,
	"other":         PaymentOther,
}

// PaymentKeywords returns a copy of the recognized payment vocabulary.
func PaymentKeywords() map[string]PaymentMethod {
	return maps.Clone(paymentSynonyms)
}

// ParsePaymentMethod normalizes s onto a known payment method.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if pm, ok := paymentSynonyms[key]; ok {
		return pm, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// Label returns the human readable payment method.
func (p PaymentMethod) Label() string {
	switch p {
	case PaymentCash:
		return "Cash"
	case PaymentCard:
		return "Card"
	case PaymentUPI:
		return "UPI"
	case PaymentBankTransfer:
		return "Bank Transfer"
	case PaymentWallet:
		return "Wallet"
	case PaymentOther:
		return "Other"
	}
	return string(p)
}
