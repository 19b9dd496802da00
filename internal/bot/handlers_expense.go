package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/gemini"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
)

// maxPhotoBytes caps photo downloads.
const maxPhotoBytes = 10 << 20

var errPhotoTooLarge = errors.New("photo exceeds size limit")

// handleMessageCore routes a non-command message by its content.
func (b *Bot) handleMessageCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	switch {
	case len(msg.Photo) > 0:
		b.handlePhotoCore(ctx, tg, update)
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		b.handlePhotoCore(ctx, tg, update)
	case strings.TrimSpace(msg.Text) != "":
		b.handleTextCore(ctx, tg, update)
	default:
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    msg.Chat.ID,
			Text:      "I can read text or photos. Send an expense like <code>Lunch 250 at Zomato upi</code> or use /help.",
			ParseMode: tgmodels.ParseModeHTML,
		})
	}
}

// handleTextCore treats text as a typed field value while the user is
// editing, and as a new expense otherwise.
func (b *Bot) handleTextCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	msg := update.Message
	user := toUser(msg.From)

	if s, err := b.sessions.Current(user.ID); err == nil && s.State == session.StateEditing && s.Cursor != "" {
		b.applyTypedEdit(ctx, tg, msg.Chat.ID, s, msg.Text)
		return
	}

	b.processExpense(ctx, tg, user, msg.Chat.ID, msg.Text, models.SourceText)
}

func (b *Bot) applyTypedEdit(ctx context.Context, tg TelegramAPI, chatID int64, s session.Session, text string) {
	updated, err := b.sessions.ApplyEdit(s.User.ID, s.ID, s.Cursor, text)
	if err != nil {
		var verr *session.ValidationError
		if errors.As(err, &verr) {
			b.sendFieldPrompt(ctx, tg, chatID, s, s.Cursor, verr.Error())
			return
		}
		b.sendNotFound(ctx, tg, chatID)
		return
	}

	logger.Log.Info().
		Str("user_hash", logger.HashUserID(s.User.ID)).
		Str("field", string(s.Cursor)).
		Msg("Expense field updated")

	sent, err := tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        b.formatEditMenu(updated),
		ParseMode:   tgmodels.ParseModeHTML,
		ReplyMarkup: editMenuKeyboard(updated.ID),
	})
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to send edit menu")
		return
	}
	_ = b.sessions.SetMessage(s.User.ID, updated.ID, sent.ID)
}

// processExpense extracts text, opens a session and sends the preview.
func (b *Bot) processExpense(
	ctx context.Context,
	tg TelegramAPI,
	user models.User,
	chatID int64,
	text string,
	source models.InputSource,
) {
	candidate := b.extractor.Extract(ctx, text)
	candidate.Source = source

	s := b.sessions.Open(user, chatID, candidate)

	logger.Log.Info().
		Str("user_hash", logger.HashUserID(user.ID)).
		Str("session_id", s.ID).
		Str("method", string(candidate.Method)).
		Int("confidence", candidate.Confidence).
		Str("source", string(source)).
		Msg("Expense candidate opened")

	sent, err := tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        b.formatPreview(s),
		ParseMode:   tgmodels.ParseModeHTML,
		ReplyMarkup: b.previewKeyboard(s),
	})
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to send expense preview")
		return
	}

	if err := b.sessions.SetMessage(user.ID, s.ID, sent.ID); err != nil {
		logger.Log.Debug().Err(err).Msg("Session ended before preview was recorded")
	}
}

// handlePhotoCore transcribes a photo and continues as for text.
func (b *Bot) handlePhotoCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	msg := update.Message
	chatID := msg.Chat.ID
	user := toUser(msg.From)

	if b.ocr == nil {
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      "📷 Reading photos is not available right now. Please type the expense instead, e.g. <code>Lunch 250 at Zomato</code>",
			ParseMode: tgmodels.ParseModeHTML,
		})
		return
	}

	fileID, mimeType := photoFile(msg)

	_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   "📷 Reading your photo...",
	})

	image, err := b.downloadFile(ctx, tg, fileID)
	if err != nil {
		logger.Log.Error().Err(err).
			Str("user_hash", logger.HashUserID(user.ID)).
			Msg("Failed to download photo")
		text := "❌ Failed to download photo. Please try again."
		if errors.Is(err, errPhotoTooLarge) {
			text = "❌ That photo is too large. Please send one under 10 MB."
		}
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
		return
	}

	text, err := b.ocr.RecognizeText(ctx, image, mimeType)
	if err != nil {
		logger.Log.Warn().Err(err).
			Str("user_hash", logger.HashUserID(user.ID)).
			Msg("Failed to read photo")

		reply := "❌ I couldn't read this photo. Please type the expense instead."
		switch {
		case errors.Is(err, gemini.ErrRecognizeTimeout):
			reply = "⏱️ Reading the photo timed out. Please try again or type the expense."
		case errors.Is(err, gemini.ErrNoText):
			reply = "🤷 I couldn't find an expense in this photo. Please type it instead."
		}
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: reply})
		return
	}

	if caption := strings.TrimSpace(msg.Caption); caption != "" {
		text = text + " " + caption
	}

	b.processExpense(ctx, tg, user, chatID, text, models.SourcePhoto)
}

// photoFile picks the largest photo size, or an image document.
func photoFile(msg *tgmodels.Message) (fileID, mimeType string) {
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID, "image/jpeg"
	}
	return msg.Document.FileID, msg.Document.MimeType
}

// downloadFile fetches a Telegram file, refusing anything over maxPhotoBytes.
func (b *Bot) downloadFile(ctx context.Context, tg TelegramAPI, fileID string) ([]byte, error) {
	file, err := tg.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if file.FileSize > maxPhotoBytes {
		return nil, errPhotoTooLarge
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tg.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := b.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status downloading file: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return nil, errPhotoTooLarge
	}

	return data, nil
}
