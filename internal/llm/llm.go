// Package llm holds the prompt and reply handling shared by the language
// model providers.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
)

// MaxInputLength bounds user text embedded in prompts.
const MaxInputLength = 500

var (
	// ErrTimeout indicates the model call exceeded its deadline.
	ErrTimeout = errors.New("language model call timed out")
	// ErrEmptyResponse indicates the model returned no text.
	ErrEmptyResponse = errors.New("empty response from language model")
	// ErrNoData indicates the reply held neither amount nor merchant.
	ErrNoData = errors.New("no usable expense data in reply")
)

// SystemInstruction constrains the model to JSON output.
const SystemInstruction = "You are a JSON API. You MUST respond with ONLY valid JSON, no preamble or explanation. Output a single JSON object."

// Reply is the JSON object the model is asked to return.
type Reply struct {
	Amount        string `json:"amount"`
	Merchant      string `json:"merchant"`
	Category      string `json:"category"`
	Description   string `json:"description"`
	PaymentMethod string `json:"payment_method"`
	Date          string `json:"date"`
}

// CategoryNames returns the selectable category names for prompts and schemas.
func CategoryNames() []string {
	names := make([]string, 0, len(models.AllCategories))
	for _, c := range models.AllCategories {
		names = append(names, string(c))
	}
	return names
}

// PaymentNames returns the payment method names for prompts and schemas.
func PaymentNames() []string {
	names := make([]string, 0, len(models.AllPaymentMethods))
	for _, p := range models.AllPaymentMethods {
		names = append(names, string(p))
	}
	return names
}

// BuildExtractionPrompt creates the structured extraction prompt for text.
func BuildExtractionPrompt(text string, today time.Time) string {
	return fmt.Sprintf(`Extract a single expense from this message: "%s"

Today's date is %s.

Return ONLY a JSON object with these fields:
- amount: the amount paid as a plain number string, e.g. "15" or "1299.50". Empty string if no amount is stated.
- merchant: the shop, app or payee, e.g. "McDonald's". Empty string if not stated.
- category: one of %s. Empty string if unsure.
- description: a short description of what was bought.
- payment_method: one of %s. Empty string if not stated.
- date: the expense date in YYYY-MM-DD format. Empty string if not stated.

Never invent an amount or merchant that is not in the message.

Example: "Lunch $15 McDonald's" →
{"amount": "15", "merchant": "McDonald's", "category": "food", "description": "Lunch", "payment_method": "", "date": ""}`,
		SanitizeForPrompt(text, MaxInputLength),
		today.Format(models.RowDateLayout),
		strings.Join(CategoryNames(), ", "),
		strings.Join(PaymentNames(), ", "),
	)
}

// ParseReply decodes a model reply into a ModelExtraction. Unknown category
// and payment values are dropped rather than rejected; a bad amount or a
// reply with neither amount nor merchant is an error.
func ParseReply(text string) (*models.ModelExtraction, error) {
	jsonText := ExtractJSON(text)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var r Reply
	if err := json.Unmarshal([]byte(jsonText), &r); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	out := &models.ModelExtraction{
		Merchant:    cleanField(r.Merchant, models.MaxMerchantLength),
		Description: cleanField(r.Description, models.MaxDescriptionLength),
	}

	if amount := strings.TrimSpace(r.Amount); amount != "" {
		d, err := decimal.NewFromString(strings.ReplaceAll(amount, ",", ""))
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", r.Amount, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("negative amount %q", r.Amount)
		}
		out.Amount = decimal.NewNullDecimal(d.Round(2))
	}

	if c, err := models.ParseCategory(r.Category); err == nil && c != models.CategoryUncategorized {
		out.Category = c
	}
	if p, err := models.ParsePaymentMethod(r.PaymentMethod); err == nil {
		out.PaymentMethod = p
	}
	if r.Date != "" {
		if d, err := time.Parse(models.RowDateLayout, strings.TrimSpace(r.Date)); err == nil {
			out.Date = d
		}
	}

	if out.IsEmpty() {
		return nil, ErrNoData
	}

	return out, nil
}

// ExtractJSON extracts a JSON object from text that may contain preamble or
// markdown fences.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(text, "}")
	if end == -1 || end <= start {
		return ""
	}

	return text[start : end+1]
}

// SanitizeForPrompt neutralizes quotes and control characters in user input
// and truncates it to maxLength bytes.
func SanitizeForPrompt(input string, maxLength int) string {
	input = strings.ReplaceAll(input, `"`, `'`)
	input = strings.ReplaceAll(input, "`", "'")
	input = strings.ReplaceAll(input, "\x00", "")

	input = strings.Join(strings.Fields(input), " ")

	if len(input) > maxLength {
		input = strings.TrimSpace(strings.ToValidUTF8(input[:maxLength], ""))
	}

	return input
}

func cleanField(s string, maxLength int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxLength {
		s = strings.TrimSpace(strings.ToValidUTF8(s[:maxLength], ""))
	}
	return s
}
