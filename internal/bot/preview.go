package bot

import (
	"fmt"
	"html"
	"strings"

	"gitlab.com/yelinaung/sheets-expense-bot/internal/confidence"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/money"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
)

const (
	previewDateLayout = "02 Jan 2006"
	unknownValue      = "<i>unknown</i>"
	notSetValue       = "<i>not set</i>"
)

func methodLabel(m models.ExtractionMethod) string {
	switch m {
	case models.MethodLanguageModel:
		return "AI"
	case models.MethodHybrid:
		return "AI + pattern"
	case models.MethodRegex:
		return "pattern"
	}
	return string(m)
}

func (b *Bot) formatAmount(c models.CandidateExpense) string {
	if !c.HasAmount() {
		return unknownValue
	}
	return html.EscapeString(money.Format(b.currency(), c.Amount.Decimal))
}

func textOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return html.EscapeString(value)
}

func categoryLine(c models.CandidateExpense) string {
	cat := c.Category
	if cat == "" {
		cat = models.CategoryUncategorized
	}
	line := fmt.Sprintf("%s Category: %s", cat.Emoji(), html.EscapeString(cat.Label()))
	if cat != models.CategoryUncategorized {
		line += fmt.Sprintf(" <i>(%s match)</i>", c.MatchTier)
	}
	return line
}

func paymentText(c models.CandidateExpense) string {
	if !c.HasPaymentMethod() {
		return notSetValue
	}
	return html.EscapeString(c.PaymentMethod.Label())
}

// formatPreview renders the candidate for review.
func (b *Bot) formatPreview(s session.Session) string {
	c := s.Candidate

	title := "🧾 <b>New expense</b>"
	if s.State == session.StateEditing {
		title = "✏️ <b>Editing expense</b>"
	}

	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "💰 Amount: %s\n", b.formatAmount(c))
	fmt.Fprintf(&sb, "🏪 Merchant: %s\n", textOr(c.Merchant, unknownValue))
	sb.WriteString(categoryLine(c))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "📝 Description: %s\n", textOr(c.Description, notSetValue))
	fmt.Fprintf(&sb, "💳 Payment: %s\n", paymentText(c))
	if !c.Date.IsZero() {
		fmt.Fprintf(&sb, "📅 Date: %s\n", c.Date.Format(previewDateLayout))
	}
	if c.Source == models.SourcePhoto {
		sb.WriteString("📷 From photo\n")
	}

	fmt.Fprintf(&sb, "\n🎯 Confidence: %d%% (%s) · %s", c.Confidence, confidence.BandOf(c.Confidence), methodLabel(c.Method))

	if !c.HasAmount() {
		sb.WriteString("\n\n⚠️ No amount found. Tap <b>Edit</b> to add one before confirming.")
	}

	return sb.String()
}

// formatEditMenu renders the field picker.
func (b *Bot) formatEditMenu(s session.Session) string {
	return b.formatPreview(s) + "\n\n<b>Which field do you want to change?</b>"
}

// formatFieldPrompt asks for a typed value.
func (b *Bot) formatFieldPrompt(s session.Session, field models.Field, problem string) string {
	current := session.FieldValue(s.Candidate, field)
	if field == models.FieldAmount && s.Candidate.HasAmount() {
		current = money.Format(b.currency(), s.Candidate.Amount.Decimal)
	}

	var sb strings.Builder
	if problem != "" {
		fmt.Fprintf(&sb, "❌ %s\n\n", html.EscapeString(problem))
	}
	fmt.Fprintf(&sb, "✏️ <b>Edit %s</b>\n\n", field.Label())
	fmt.Fprintf(&sb, "Current: %s\n\n", textOr(current, notSetValue))
	sb.WriteString(fieldHint(field))
	return sb.String()
}

func fieldHint(field models.Field) string {
	switch field {
	case models.FieldAmount:
		return "Please type the new amount (e.g. <code>250</code> or <code>12.50</code>):"
	case models.FieldMerchant:
		return "Please type the merchant name:"
	case models.FieldDescription:
		return "Please type a short description:"
	case models.FieldCategory:
		return "Pick a category below or type its name:"
	case models.FieldPaymentMethod:
		return "Pick a payment method below or type it (e.g. <code>upi</code>):"
	}
	return "Please type the new value:"
}

// formatSaved confirms a written row.
func (b *Bot) formatSaved(row models.ConfirmedExpenseRow, sheetURL string) string {
	var sb strings.Builder
	sb.WriteString("✅ <b>Saved to your sheet</b>\n\n")
	fmt.Fprintf(&sb, "💰 %s", html.EscapeString(money.Format(b.currency(), row.Amount)))
	if row.Merchant != "" {
		fmt.Fprintf(&sb, " at %s", html.EscapeString(row.Merchant))
	}
	fmt.Fprintf(&sb, "\n%s %s", row.Category.Emoji(), html.EscapeString(row.Category.Label()))
	if row.PaymentMethod != "" {
		fmt.Fprintf(&sb, " · %s", html.EscapeString(row.PaymentMethod.Label()))
	}
	fmt.Fprintf(&sb, "\n📅 %s", row.Date.Format(previewDateLayout))
	if sheetURL != "" {
		fmt.Fprintf(&sb, "\n\n<a href=\"%s\">Open your sheet</a>", html.EscapeString(sheetURL))
	}
	return sb.String()
}

// formatDiagnostic shows an extraction without opening a session.
func (b *Bot) formatDiagnostic(c models.CandidateExpense) string {
	var sb strings.Builder
	sb.WriteString("🔬 <b>Parse result</b>\n\n")
	fmt.Fprintf(&sb, "Amount: %s\n", b.formatAmount(c))
	fmt.Fprintf(&sb, "Merchant: %s\n", textOr(c.Merchant, unknownValue))
	fmt.Fprintf(&sb, "Category: %s (%s)\n", html.EscapeString(string(c.Category)), c.MatchTier)
	fmt.Fprintf(&sb, "Description: %s\n", textOr(c.Description, notSetValue))
	fmt.Fprintf(&sb, "Payment: %s\n", paymentText(c))
	fmt.Fprintf(&sb, "Method: %s\n", c.Method)
	fmt.Fprintf(&sb, "Confidence: %d (%s)", c.Confidence, confidence.BandOf(c.Confidence))
	return sb.String()
}
