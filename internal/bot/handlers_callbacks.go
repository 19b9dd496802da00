package bot

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/sheets"
)

const (
	nothingPendingText = "⌛ Nothing pending. Please send the expense again."
	saveFailedText     = "❌ Could not save to your sheet. The expense is kept, tap Confirm to retry."
)

// handleCallback handles expense button presses.
func (b *Bot) handleCallback(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.handleCallbackCore(ctx, tgBot, update)
}

// callbackTarget identifies the message a button press came from.
type callbackTarget struct {
	chatID    int64
	messageID int
	userID    int64
}

// handleCallbackCore is the testable implementation of handleCallback.
func (b *Bot) handleCallbackCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	cq := update.CallbackQuery
	if cq == nil {
		return
	}

	cb, err := parseCallback(cq.Data)
	if err != nil {
		logger.Log.Debug().Err(err).Str("data", cq.Data).Msg("Ignoring callback")
		_, _ = tg.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID})
		return
	}

	if cq.Message.Message == nil {
		_, _ = tg.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: cq.ID,
			Text:            "This message is too old. Please send the expense again.",
		})
		return
	}

	target := callbackTarget{
		chatID:    cq.Message.Message.Chat.ID,
		messageID: cq.Message.Message.ID,
		userID:    cq.From.ID,
	}

	notice := b.dispatchCallback(ctx, tg, target, cb)

	_, _ = tg.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cq.ID,
		Text:            notice,
	})
}

// dispatchCallback performs the action and returns a short toast, if any.
func (b *Bot) dispatchCallback(ctx context.Context, tg TelegramAPI, t callbackTarget, cb callback) string {
	switch cb.Action {
	case actionConfirm:
		return b.confirm(ctx, tg, t, cb.SessionID)

	case actionEdit:
		s, err := b.sessions.Get(t.userID, cb.SessionID)
		if err != nil {
			return b.callbackError(ctx, tg, t, err)
		}
		b.editMessage(ctx, tg, t, b.formatEditMenu(s), editMenuKeyboard(s.ID))

	case actionField:
		return b.beginFieldEdit(ctx, tg, t, cb)

	case actionCategory:
		return b.applyChoice(ctx, tg, t, cb.SessionID, models.FieldCategory, cb.Arg)

	case actionPayment:
		return b.applyChoice(ctx, tg, t, cb.SessionID, models.FieldPaymentMethod, cb.Arg)

	case actionSave, actionBack:
		s, err := b.sessions.Save(t.userID, cb.SessionID)
		if err != nil {
			return b.callbackError(ctx, tg, t, err)
		}
		b.editMessage(ctx, tg, t, b.formatPreview(s), b.previewKeyboard(s))

	case actionCancel:
		if err := b.sessions.Cancel(t.userID, cb.SessionID); err != nil {
			return b.callbackError(ctx, tg, t, err)
		}
		logger.Log.Info().Str("user_hash", logger.HashUserID(t.userID)).Msg("Expense cancelled")
		b.editMessage(ctx, tg, t, "❌ Expense discarded.", nil)
	}

	return ""
}

func (b *Bot) confirm(ctx context.Context, tg TelegramAPI, t callbackTarget, sessionID string) string {
	s, err := b.sessions.Get(t.userID, sessionID)
	if err != nil {
		return b.callbackError(ctx, tg, t, err)
	}

	row, err := b.sessions.Confirm(ctx, t.userID, sessionID)
	var verr *session.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		// The amount is the only field confirm requires; ask for it.
		edited, beginErr := b.sessions.BeginEdit(t.userID, sessionID, verr.Field)
		if beginErr != nil {
			return b.callbackError(ctx, tg, t, beginErr)
		}
		b.editMessage(ctx, tg, t, b.formatFieldPrompt(edited, verr.Field, verr.Error()), promptKeyboard(edited.ID))
		return "Please add the " + verr.Field.Label() + " first"
	case errors.Is(err, session.ErrNotFound):
		return b.callbackError(ctx, tg, t, err)
	default:
		logger.Log.Error().Err(err).
			Str("user_hash", logger.HashUserID(t.userID)).
			Msg("Failed to confirm expense")
		if current, getErr := b.sessions.Get(t.userID, sessionID); getErr == nil {
			s = current
		}
		b.editMessage(ctx, tg, t, b.formatPreview(s)+"\n\n"+saveFailedText, b.previewKeyboard(s))
		return "Saving failed"
	}

	if b.learner != nil {
		b.learner.Learn(row.Merchant+" "+row.Description, row.Category)
	}

	url, err := b.sheets.SheetURL(ctx, t.userID)
	if err != nil && !errors.Is(err, sheets.ErrNoSheet) {
		logger.Log.Warn().Err(err).Msg("Failed to look up sheet link")
	}

	logger.Log.Info().
		Str("user_hash", logger.HashUserID(t.userID)).
		Str("category", string(row.Category)).
		Msg("Expense confirmed")

	b.editMessage(ctx, tg, t, b.formatSaved(row, url), nil)
	return "Saved"
}

func (b *Bot) beginFieldEdit(ctx context.Context, tg TelegramAPI, t callbackTarget, cb callback) string {
	field, err := models.ParseField(cb.Arg)
	if err != nil {
		return "Unknown field"
	}

	s, err := b.sessions.BeginEdit(t.userID, cb.SessionID, field)
	if err != nil {
		return b.callbackError(ctx, tg, t, err)
	}

	switch field {
	case models.FieldCategory:
		b.editMessage(ctx, tg, t, b.formatFieldPrompt(s, field, ""), categoryKeyboard(s.ID))
	case models.FieldPaymentMethod:
		b.editMessage(ctx, tg, t, b.formatFieldPrompt(s, field, ""), paymentKeyboard(s.ID))
	default:
		b.editMessage(ctx, tg, t, b.formatFieldPrompt(s, field, ""), promptKeyboard(s.ID))
	}
	return ""
}

// applyChoice sets a category or payment method from a button. From the
// edit flow it returns to the edit menu; as a quick fix it stays on the
// preview.
func (b *Bot) applyChoice(
	ctx context.Context,
	tg TelegramAPI,
	t callbackTarget,
	sessionID string,
	field models.Field,
	value string,
) string {
	s, err := b.sessions.ApplyEdit(t.userID, sessionID, field, value)
	if err != nil {
		return b.callbackError(ctx, tg, t, err)
	}

	if s.State == session.StateEditing {
		b.editMessage(ctx, tg, t, b.formatEditMenu(s), editMenuKeyboard(s.ID))
	} else {
		b.editMessage(ctx, tg, t, b.formatPreview(s), b.previewKeyboard(s))
	}
	return field.Label() + " updated"
}

// callbackError reports a session error and returns the toast text.
func (b *Bot) callbackError(ctx context.Context, tg TelegramAPI, t callbackTarget, err error) string {
	var verr *session.ValidationError
	switch {
	case errors.Is(err, session.ErrNotFound):
		b.editMessage(ctx, tg, t, nothingPendingText, nil)
		return "Nothing pending"
	case errors.As(err, &verr):
		return verr.Error()
	}

	logger.Log.Error().Err(err).Msg("Callback failed")
	return "Something went wrong"
}

func (b *Bot) editMessage(
	ctx context.Context,
	tg TelegramAPI,
	t callbackTarget,
	text string,
	keyboard *tgmodels.InlineKeyboardMarkup,
) {
	params := &bot.EditMessageTextParams{
		ChatID:    t.chatID,
		MessageID: t.messageID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	if _, err := tg.EditMessageText(ctx, params); err != nil {
		logger.Log.Debug().Err(err).Msg("Failed to edit message")
	}
}

// sendFieldPrompt asks again for a field after a rejected value.
func (b *Bot) sendFieldPrompt(
	ctx context.Context,
	tg TelegramAPI,
	chatID int64,
	s session.Session,
	field models.Field,
	problem string,
) {
	_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        b.formatFieldPrompt(s, field, problem),
		ParseMode:   tgmodels.ParseModeHTML,
		ReplyMarkup: promptKeyboard(s.ID),
	})
}

func (b *Bot) sendNotFound(ctx context.Context, tg TelegramAPI, chatID int64) {
	_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   nothingPendingText,
	})
}
