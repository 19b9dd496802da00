// Package bot provides the Telegram bot initialization and handlers.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/categorizer"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/config"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/telemetry"
)

const (
	sweepInterval        = time.Minute
	downloadTimeout      = 30 * time.Second
	webhookShutdownGrace = 5 * time.Second
)

// ExpenseExtractor turns free text into a candidate expense.
type ExpenseExtractor interface {
	Extract(ctx context.Context, text string) models.CandidateExpense
}

// TextRecognizer transcribes a photo into expense text.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// SheetReader reads back a user's spreadsheet.
type SheetReader interface {
	SheetURL(ctx context.Context, userID int64) (string, error)
	Rows(ctx context.Context, userID int64) ([]models.ConfirmedExpenseRow, error)
}

// UserStore records Telegram users.
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) error
}

// Deps are the services the bot dispatches to. OCR and Users may be nil.
type Deps struct {
	Extractor ExpenseExtractor
	OCR       TextRecognizer
	Sessions  *session.Manager
	Sheets    SheetReader
	Users     UserStore
	Learner   *categorizer.Learner
}

// Bot wraps the Telegram bot with application dependencies.
type Bot struct {
	bot        *bot.Bot
	cfg        *config.Config
	extractor  ExpenseExtractor
	ocr        TextRecognizer
	sessions   *session.Manager
	sheets     SheetReader
	users      UserStore
	learner    *categorizer.Learner
	httpClient *http.Client
	now        func() time.Time
}

// New creates a new Bot instance.
func New(cfg *config.Config, deps Deps) (*Bot, error) {
	if deps.Extractor == nil || deps.Sessions == nil || deps.Sheets == nil {
		return nil, errors.New("bot requires an extractor, a session manager and a sheet reader")
	}

	b := &Bot{
		cfg:        cfg,
		extractor:  deps.Extractor,
		ocr:        deps.OCR,
		sessions:   deps.Sessions,
		sheets:     deps.Sheets,
		users:      deps.Users,
		learner:    deps.Learner,
		httpClient: telemetry.HTTPClient(downloadTimeout),
		now:        time.Now,
	}

	opts := []bot.Option{
		bot.WithMiddlewares(b.whitelistMiddleware),
		bot.WithDefaultHandler(b.defaultHandler),
	}
	if cfg.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
	}

	telegramBot, err := bot.New(cfg.TelegramBotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b.bot = telegramBot
	b.registerHandlers()

	if !cfg.WhitelistEnabled() {
		logger.Log.Warn().Msg("No whitelist configured, the bot accepts every user")
	}

	return b, nil
}

// Start runs the session sweeper and receives updates until ctx is done,
// by webhook when configured and by long polling otherwise.
func (b *Bot) Start(ctx context.Context) error {
	go b.sessions.Run(ctx, sweepInterval)

	if !b.cfg.WebhookEnabled() {
		if _, err := b.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to delete webhook before polling")
		}
		logger.Log.Info().Msg("Bot started polling")
		b.bot.Start(ctx)
		return nil
	}

	return b.startWebhook(ctx)
}

func (b *Bot) startWebhook(ctx context.Context) error {
	_, err := b.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:         b.cfg.WebhookURL,
		SecretToken: b.cfg.WebhookSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	server := &http.Server{
		Addr:              b.cfg.WebhookListenAddr,
		Handler:           telemetry.HTTPHandler(b.bot.WebhookHandler(), "telegram.webhook"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go b.bot.StartWebhook(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), webhookShutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Log.Info().Str("addr", server.Addr).Msg("Bot listening for webhook updates")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook server failed: %w", err)
	}
	return nil
}

// registerHandlers sets up command and callback handlers.
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleStart)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/testparse", bot.MatchTypePrefix, b.handleTestParse)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/sheet", bot.MatchTypePrefix, b.handleSheet)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/summary", bot.MatchTypePrefix, b.handleSummary)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/categories", bot.MatchTypePrefix, b.handleCategories)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypePrefix, b.handleCancel)
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, callbackPrefix+"_", bot.MatchTypePrefix, b.handleCallback)
}

// whitelistMiddleware checks if the user is whitelisted before processing.
func (b *Bot) whitelistMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
		if b.allowUpdate(ctx, tgBot, update) {
			next(ctx, tgBot, update)
		}
	}
}

// allowUpdate applies the whitelist and registers the user.
func (b *Bot) allowUpdate(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) bool {
	userID := extractUserID(update)
	if userID == 0 {
		return false
	}

	logUserAction(userID, update)

	if !b.cfg.IsUserWhitelisted(userID, extractUsername(update)) {
		logger.Log.Warn().
			Str("user_hash", logger.HashUserID(userID)).
			Msg("Blocked non-whitelisted user")
		if update.Message != nil {
			_, _ = tg.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: update.Message.Chat.ID,
				Text:   "⛔ Sorry, you are not authorized to use this bot.",
			})
		}
		return false
	}

	if err := b.ensureUserRegistered(ctx, update); err != nil {
		logger.Log.Error().
			Str("user_hash", logger.HashUserID(userID)).
			Err(err).
			Msg("Failed to register user")
	}

	return true
}

// logUserAction logs the kind of input without its content.
func logUserAction(userID int64, update *tgmodels.Update) {
	switch {
	case update.Message != nil:
		msg := update.Message
		event := logger.Log.Info().
			Str("user_hash", logger.HashUserID(userID)).
			Str("chat_hash", logger.HashChatID(msg.Chat.ID))

		switch {
		case len(msg.Photo) > 0:
			event = event.Str("type", "photo")
		case msg.Document != nil:
			event = event.Str("type", "document").Str("mime", msg.Document.MimeType)
		case msg.Text != "":
			event = event.Str("type", "text").Str("text", logger.SanitizeText(msg.Text))
		}

		event.Msg("User input")

	case update.CallbackQuery != nil:
		logger.Log.Info().
			Str("user_hash", logger.HashUserID(userID)).
			Str("data", update.CallbackQuery.Data).
			Msg("Callback query")

	case update.EditedMessage != nil:
		logger.Log.Debug().
			Str("user_hash", logger.HashUserID(userID)).
			Msg("Ignoring edited message")
	}
}

// extractUsername gets the username from the update.
func extractUsername(update *tgmodels.Update) string {
	if from := sender(update); from != nil {
		return from.Username
	}
	return ""
}

// extractUserID gets the user ID from various update types.
func extractUserID(update *tgmodels.Update) int64 {
	if from := sender(update); from != nil {
		return from.ID
	}
	return 0
}

func sender(update *tgmodels.Update) *tgmodels.User {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From
	case update.EditedMessage != nil && update.EditedMessage.From != nil:
		return update.EditedMessage.From
	}
	return nil
}

func toUser(from *tgmodels.User) models.User {
	return models.User{
		ID:        from.ID,
		Username:  from.Username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}
}

// ensureUserRegistered creates or updates the user record.
func (b *Bot) ensureUserRegistered(ctx context.Context, update *tgmodels.Update) error {
	if b.users == nil || update.EditedMessage != nil {
		return nil
	}

	from := sender(update)
	if from == nil {
		return nil
	}

	user := toUser(from)
	if err := b.users.UpsertUser(ctx, &user); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// defaultHandler handles every message that is not a command.
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.handleMessageCore(ctx, tgBot, update)
}

func (b *Bot) currency() string {
	if b.cfg == nil || b.cfg.CurrencySymbol == "" {
		return config.DefaultCurrencySymbol
	}
	return b.cfg.CurrencySymbol
}

func (b *Bot) today() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}
