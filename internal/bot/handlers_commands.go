package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/money"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/sheets"
)

const helpText = `📖 <b>How to use</b>

Send an expense in plain words, for example:
• <code>Lunch $15 McDonald's</code>
• <code>350 at Zomato upi</code>
• <code>Uber 220 card</code>

Or send a photo of a receipt or payment screen.

I'll show what I understood. Tap ✅ Confirm to add it to your Google Sheet, or ✏️ Edit to fix any field first.

<b>Commands</b>
/sheet - link to your spreadsheet
/summary - this month by category
/categories - all-time spending by category
/cancel - discard the pending expense
/testparse &lt;text&gt; - show how a message is read
/help - this message`

// handleStart handles the /start command.
func (b *Bot) handleStart(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.handleStartCore(ctx, tgBot, update)
}

// handleStartCore is the testable implementation of handleStart.
func (b *Bot) handleStartCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}

	name := ""
	if update.Message.From != nil {
		name = update.Message.From.FirstName
	}

	text := fmt.Sprintf("👋 Hi %s! I log your expenses to a Google Sheet.\n\n%s", html.EscapeString(name), helpText)
	_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    update.Message.Chat.ID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
}

// handleHelp handles the /help command.
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.handleHelpCore(ctx, tgBot, update)
}

// handleHelpCore is the testable implementation of handleHelp.
func (b *Bot) handleHelpCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}

	_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    update.Message.Chat.ID,
		Text:      helpText,
		ParseMode: tgmodels.ParseModeHTML,
	})
}

// handleTestParse handles the /testparse command.
func (b *Bot) handleTestParse(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.handleTestParseCore(ctx, tgBot, update)
}

// handleTestParseCore shows the extraction result without opening a session.
func (b *Bot) handleTestParseCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	text := extractCommandArgs(update.Message.Text, "/testparse")
	if text == "" {
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      "Usage: <code>/testparse Lunch 250 at Zomato</code>",
			ParseMode: tgmodels.ParseModeHTML,
		})
		return
	}

	candidate := b.extractor.Extract(ctx, text)
	_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      b.formatDiagnostic(candidate),
		ParseMode: tgmodels.ParseModeHTML,
	})
}

// handleSheet handles the /sheet command.
func (b *Bot) handleSheet(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.handleSheetCore(ctx, tgBot, update)
}

// handleSheetCore is the testable implementation of handleSheet.
func (b *Bot) handleSheetCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	url, err := b.sheets.SheetURL(ctx, update.Message.From.ID)

	var text string
	switch {
	case err == nil:
		text = fmt.Sprintf("📊 <a href=\"%s\">Open your expense sheet</a>", html.EscapeString(url))
	case errors.Is(err, sheets.ErrNoSheet):
		text = "You don't have a sheet yet. Confirm your first expense and I'll create one."
	default:
		logger.Log.Error().Err(err).Msg("Failed to look up sheet")
		text = "❌ Could not look up your sheet. Please try again."
	}

	_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
}

// handleSummary handles the /summary command.
func (b *Bot) handleSummary(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.handleSummaryCore(ctx, tgBot, update)
}

// handleSummaryCore sends this month's totals by category with a pie chart.
func (b *Bot) handleSummaryCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	rows, ok := b.readRows(ctx, tg, chatID, update.Message.From.ID)
	if !ok {
		return
	}

	now := b.today()
	totals, grand := monthTotals(rows, now)
	period := now.Format("January 2006")
	if len(totals) == 0 {
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   fmt.Sprintf("📊 No expenses recorded for %s.", period),
		})
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>%s</b>\n\n", period)
	for _, t := range totals {
		fmt.Fprintf(&sb, "%s %s: %s (%d)\n", t.Category.Emoji(), html.EscapeString(t.Category.Label()),
			html.EscapeString(money.Format(b.currency(), t.Total)), t.Count)
	}
	fmt.Fprintf(&sb, "\n<b>Total: %s</b>", html.EscapeString(money.Format(b.currency(), grand)))
	caption := sb.String()

	chart, err := GenerateSummaryChart(totals, "Expenses - "+period)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to generate summary chart")
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      caption,
			ParseMode: tgmodels.ParseModeHTML,
		})
		return
	}

	_, err = tg.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: chatID,
		Photo: &tgmodels.InputFileUpload{
			Filename: fmt.Sprintf("summary_%s.png", now.Format("2006-01")),
			Data:     bytes.NewReader(chart),
		},
		Caption:   caption,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to send summary chart")
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      caption,
			ParseMode: tgmodels.ParseModeHTML,
		})
	}
}

// handleCategories handles the /categories command.
func (b *Bot) handleCategories(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.handleCategoriesCore(ctx, tgBot, update)
}

// handleCategoriesCore sends all-time totals, share and average per category.
func (b *Bot) handleCategoriesCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	rows, ok := b.readRows(ctx, tg, chatID, update.Message.From.ID)
	if !ok {
		return
	}

	totals, grand := categoryTotals(rows, nil)
	if len(totals) == 0 {
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "📂 No expenses recorded yet.",
		})
		return
	}

	var sb strings.Builder
	sb.WriteString("📂 <b>Spending by category</b>\n\n")
	for _, t := range totals {
		share := decimal.Zero
		if grand.IsPositive() {
			share = t.Total.Mul(decimal.NewFromInt(100)).Div(grand)
		}
		avg := t.Total.Div(decimal.NewFromInt(int64(t.Count)))
		fmt.Fprintf(&sb, "%s <b>%s</b>: %s (%s%%)\n   %d expenses, avg %s\n",
			t.Category.Emoji(), html.EscapeString(t.Category.Label()),
			html.EscapeString(money.Format(b.currency(), t.Total)), share.StringFixed(0),
			t.Count, html.EscapeString(money.Format(b.currency(), avg)))
	}
	fmt.Fprintf(&sb, "\n<b>Total: %s</b> across %d expenses",
		html.EscapeString(money.Format(b.currency(), grand)), len(rows))

	_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      sb.String(),
		ParseMode: tgmodels.ParseModeHTML,
	})
}

// readRows loads the user's sheet rows, replying on failure.
func (b *Bot) readRows(ctx context.Context, tg TelegramAPI, chatID, userID int64) ([]models.ConfirmedExpenseRow, bool) {
	rows, err := b.sheets.Rows(ctx, userID)
	switch {
	case errors.Is(err, sheets.ErrNoSheet):
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "📊 No expenses yet. Send one to get started.",
		})
		return nil, false
	case err != nil:
		logger.Log.Error().Err(err).Str("user_hash", logger.HashUserID(userID)).Msg("Failed to read sheet")
		_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "❌ Could not read your sheet. Please try again.",
		})
		return nil, false
	}
	return rows, true
}

// handleCancel handles the /cancel command.
func (b *Bot) handleCancel(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.handleCancelCore(ctx, tgBot, update)
}

// handleCancelCore discards the pending expense, if any.
func (b *Bot) handleCancelCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	text := "Nothing pending."
	if s, err := b.sessions.Current(userID); err == nil {
		if err := b.sessions.Cancel(userID, s.ID); err == nil {
			text = "❌ Pending expense discarded."
			if s.MessageID != 0 {
				_, _ = tg.EditMessageText(ctx, &bot.EditMessageTextParams{
					ChatID:    s.ChatID,
					MessageID: s.MessageID,
					Text:      "❌ Expense discarded.",
				})
			}
		}
	} else if !errors.Is(err, session.ErrNotFound) {
		logger.Log.Error().Err(err).Msg("Failed to look up session")
	}

	_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
}

// extractCommandArgs strips the command, including any @botname suffix.
func extractCommandArgs(text, command string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), command)
	if !ok {
		return ""
	}
	if strings.HasPrefix(rest, "@") {
		if i := strings.IndexAny(rest, " \n"); i >= 0 {
			rest = rest[i:]
		} else {
			rest = ""
		}
	}
	return strings.TrimSpace(rest)
}
