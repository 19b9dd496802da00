package bot

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
)

func TestFormatPreview(t *testing.T) {
	t.Parallel()

	b := newTestEnv(t, lunch()).bot

	c := lunch()
	c.Merchant = "<Tom & Jerry>"
	c.Date = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c.Source = models.SourcePhoto
	text := b.formatPreview(session.Session{ID: firstID, Candidate: c, State: session.StatePending})

	require.Contains(t, text, "New expense")
	require.Contains(t, text, "&lt;Tom &amp; Jerry&gt;")
	require.Contains(t, text, "Food <i>(high match)</i>")
	require.Contains(t, text, "Payment: Card")
	require.Contains(t, text, "01 May 2026")
	require.Contains(t, text, "From photo")
	require.Contains(t, text, "(high) · AI")
	require.NotContains(t, text, "No amount found")
}

func TestFormatPreview_Unknowns(t *testing.T) {
	t.Parallel()

	b := newTestEnv(t, vague()).bot
	text := b.formatPreview(session.Session{ID: firstID, Candidate: vague(), State: session.StateEditing})

	require.Contains(t, text, "Editing expense")
	require.Contains(t, text, "Amount: <i>unknown</i>")
	require.Contains(t, text, "Uncategorized")
	require.NotContains(t, text, "match)")
	require.Contains(t, text, "Payment: <i>not set</i>")
	require.Contains(t, text, "(low) · pattern")
	require.Contains(t, text, "No amount found")
}

func TestFormatFieldPrompt(t *testing.T) {
	t.Parallel()

	b := newTestEnv(t, lunch()).bot
	s := session.Session{ID: firstID, Candidate: lunch()}

	text := b.formatFieldPrompt(s, models.FieldAmount, "")
	require.Contains(t, text, "Edit Amount")
	require.Contains(t, text, "Current: $15.00")
	require.NotContains(t, text, "❌")

	text = b.formatFieldPrompt(s, models.FieldDescription, "invalid description: must not be empty")
	require.Contains(t, text, "❌ invalid description")
	require.Contains(t, text, "Current: Lunch")
}

func TestFormatSaved(t *testing.T) {
	t.Parallel()

	b := newTestEnv(t, lunch()).bot
	row := models.ConfirmedExpenseRow{
		Date:          time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.RequireFromString("1299.5"),
		Category:      models.CategoryShopping,
		Merchant:      "Croma",
		PaymentMethod: models.PaymentUPI,
	}

	text := b.formatSaved(row, "https://docs.google.com/spreadsheets/d/x/edit")
	require.Contains(t, text, "$1,299.50 at Croma")
	require.Contains(t, text, "Shopping · UPI")
	require.Contains(t, text, "14 May 2026")
	require.Contains(t, text, `href="https://docs.google.com/spreadsheets/d/x/edit"`)

	require.NotContains(t, b.formatSaved(row, ""), "href")
}

func TestMethodLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "AI", methodLabel(models.MethodLanguageModel))
	require.Equal(t, "AI + pattern", methodLabel(models.MethodHybrid))
	require.Equal(t, "pattern", methodLabel(models.MethodRegex))
}
