package bot

import (
	"slices"

	tgmodels "github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/confidence"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
)

const (
	quickFixCount  = 3
	buttonsPerRow  = 2
	backButtonText = "⬅️ Back"
)

func button(text string, cb callback) tgmodels.InlineKeyboardButton {
	return tgmodels.InlineKeyboardButton{Text: text, CallbackData: cb.String()}
}

func rows(buttons []tgmodels.InlineKeyboardButton, perRow int) [][]tgmodels.InlineKeyboardButton {
	var out [][]tgmodels.InlineKeyboardButton
	for chunk := range slices.Chunk(buttons, perRow) {
		out = append(out, chunk)
	}
	return out
}

// previewKeyboard offers confirm, edit and cancel, plus quick category fixes
// when the candidate is not high confidence.
func (b *Bot) previewKeyboard(s session.Session) *tgmodels.InlineKeyboardMarkup {
	keyboard := [][]tgmodels.InlineKeyboardButton{
		{
			button("✅ Confirm", callback{Action: actionConfirm, SessionID: s.ID}),
			button("✏️ Edit", callback{Action: actionEdit, SessionID: s.ID}),
			button("❌ Cancel", callback{Action: actionCancel, SessionID: s.ID}),
		},
	}

	if confidence.BandOf(s.Candidate.Confidence) != confidence.BandHigh {
		var quick []tgmodels.InlineKeyboardButton
		for _, cat := range b.quickFixes(s.Candidate) {
			quick = append(quick, button(cat.Emoji()+" "+cat.Label(), callback{Action: actionCategory, SessionID: s.ID, Arg: string(cat)}))
		}
		if len(quick) > 0 {
			keyboard = append(keyboard, quick)
		}
	}

	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

// quickFixes returns the most likely categories other than the current one.
func (b *Bot) quickFixes(c models.CandidateExpense) []models.Category {
	var ranked []models.Category
	if b.learner != nil {
		ranked = b.learner.Rank(c.Merchant + " " + c.Description)
	} else {
		ranked = slices.Clone(models.AllCategories)
	}

	out := make([]models.Category, 0, quickFixCount)
	for _, cat := range ranked {
		if cat == c.Category || cat == models.CategoryUncategorized {
			continue
		}
		out = append(out, cat)
		if len(out) == quickFixCount {
			break
		}
	}
	return out
}

func editMenuKeyboard(sessionID string) *tgmodels.InlineKeyboardMarkup {
	fields := make([]tgmodels.InlineKeyboardButton, 0, len(models.AllFields))
	for _, f := range models.AllFields {
		fields = append(fields, button(f.Label(), callback{Action: actionField, SessionID: sessionID, Arg: string(f)}))
	}

	keyboard := rows(fields, buttonsPerRow)
	keyboard = append(keyboard, []tgmodels.InlineKeyboardButton{
		button("💾 Save", callback{Action: actionSave, SessionID: sessionID}),
		button("❌ Cancel", callback{Action: actionCancel, SessionID: sessionID}),
	})

	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

func categoryKeyboard(sessionID string) *tgmodels.InlineKeyboardMarkup {
	buttons := make([]tgmodels.InlineKeyboardButton, 0, len(models.AllCategories))
	for _, cat := range models.AllCategories {
		if cat == models.CategoryUncategorized {
			continue
		}
		buttons = append(buttons, button(cat.Emoji()+" "+cat.Label(), callback{Action: actionCategory, SessionID: sessionID, Arg: string(cat)}))
	}

	keyboard := rows(buttons, buttonsPerRow)
	keyboard = append(keyboard, []tgmodels.InlineKeyboardButton{
		button(backButtonText, callback{Action: actionEdit, SessionID: sessionID}),
	})

	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

func paymentKeyboard(sessionID string) *tgmodels.InlineKeyboardMarkup {
	buttons := make([]tgmodels.InlineKeyboardButton, 0, len(models.AllPaymentMethods))
	for _, pm := range models.AllPaymentMethods {
		buttons = append(buttons, button(pm.Label(), callback{Action: actionPayment, SessionID: sessionID, Arg: string(pm)}))
	}

	keyboard := rows(buttons, buttonsPerRow+1)
	keyboard = append(keyboard, []tgmodels.InlineKeyboardButton{
		button(backButtonText, callback{Action: actionEdit, SessionID: sessionID}),
	})

	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

// promptKeyboard accompanies a typed-value prompt. Back saves and returns to
// the preview, which also clears the cursor.
func promptKeyboard(sessionID string) *tgmodels.InlineKeyboardMarkup {
	return &tgmodels.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
			{button(backButtonText, callback{Action: actionBack, SessionID: sessionID})},
		},
	}
}
