package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gitlab.com/yelinaung/sheets-expense-bot/internal/boltstore"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/bot"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/categorizer"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/claude"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/confidence"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/config"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/database"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/extractor"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/gemini"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/repository"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/sheets"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/telemetry"
	"go.opentelemetry.io/otel"
)

const telemetryShutdownTimeout = 5 * time.Second

// runServe wires the services from configuration and runs the bot until ctx
// is cancelled.
func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	if err := logger.InitHashSalt(cfg.LogHashSalt); err != nil {
		return fmt.Errorf("failed to initialize log hashing: %w", err)
	}
	if cfg.LogHashSalt == "" {
		logger.Log.Warn().Msg("LOG_HASH_SALT not set, user hashes change on every restart")
	}

	shutdown, err := telemetry.Setup(ctx, cfg.OTelExporter, cfg.ServiceName, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	instruments, err := telemetry.NewInstruments(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	scorer, err := confidence.NewScorer(confidence.DefaultWeights)
	if err != nil {
		return fmt.Errorf("failed to create scorer: %w", err)
	}

	llms, err := newModels(ctx, cfg)
	if err != nil {
		return err
	}

	expenseExtractor, err := newExtractor(cfg, llms.extraction,
		extractor.WithScorer(scorer),
		extractor.WithInstruments(instruments),
	)
	if err != nil {
		return err
	}

	creds, err := sheets.LoadCredentials(cfg.GoogleCredentialsFile, cfg.GoogleCredentialsJSON)
	if err != nil {
		return fmt.Errorf("failed to load Google credentials: %w", err)
	}
	sheetService, err := sheets.NewGoogleService(ctx, creds, telemetry.HTTPClient(cfg.SheetsTimeout))
	if err != nil {
		return fmt.Errorf("failed to create Google Sheets client: %w", err)
	}

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	writer := sheets.NewWriter(sheetService, stores.links,
		sheets.WithTimeout(cfg.SheetsTimeout),
		sheets.WithShareMode(cfg.SheetsShareMode),
		sheets.WithInstruments(instruments),
	)

	sessions := session.NewManager(writer,
		session.WithTTL(cfg.SessionTTL),
		session.WithScorer(scorer),
		session.WithInstruments(instruments),
	)

	deps := bot.Deps{
		Extractor: expenseExtractor,
		Sessions:  sessions,
		Sheets:    writer,
		Users:     stores.users,
		Learner:   categorizer.NewLearner(),
	}
	if llms.ocr != nil {
		deps.OCR = llms.ocr
	} else {
		logger.Log.Warn().Msg("GEMINI_API_KEY not set, photo expenses are disabled")
	}

	telegramBot, err := bot.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Log.Info().
		Str("version", version).
		Str("llm_provider", cfg.LLMProvider).
		Bool("webhook", cfg.WebhookEnabled()).
		Msg("Starting bot")

	if err := telegramBot.Start(ctx); err != nil {
		return fmt.Errorf("bot stopped: %w", err)
	}

	logger.Log.Info().Msg("Shutting down...")
	return nil
}

// languageModels are the configured model clients. Either may be nil.
type languageModels struct {
	extraction extractor.LanguageModel
	ocr        *gemini.Client
}

// newModels creates the extraction client for the configured provider.
// Photos always go to Gemini, so a Gemini key enables OCR even when
// Anthropic handles text.
func newModels(ctx context.Context, cfg *config.Config) (languageModels, error) {
	var out languageModels

	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, telemetry.HTTPClient(0))
		if err != nil {
			return out, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		out.ocr = client
		if cfg.LLMProvider == config.ProviderGemini {
			out.extraction = client
		}
	}

	if cfg.LLMProvider == config.ProviderAnthropic {
		client, err := claude.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, telemetry.HTTPClient(0))
		if err != nil {
			return out, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		out.extraction = client
	}

	if out.extraction == nil {
		logger.Log.Warn().Msg("No language model configured, using pattern extraction only")
	}

	return out, nil
}

func newExtractor(cfg *config.Config, model extractor.LanguageModel, opts ...extractor.Option) (*extractor.Extractor, error) {
	taxonomy, err := categorizer.LoadTaxonomy(cfg.CategoriesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	opts = append(opts, extractor.WithTimeout(cfg.LLMTimeout))
	return extractor.New(model, categorizer.New(taxonomy), opts...), nil
}

// stores holds the link store and, with Postgres, the user store.
type stores struct {
	links  sheets.LinkStore
	users  bot.UserStore
	closer io.Closer
	close  func()
}

func (s *stores) Close() {
	if s.close != nil {
		s.close()
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to close link store")
		}
	}
}

// openStores uses Postgres when DATABASE_URL is set and the embedded bolt
// file otherwise.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Log.Info().Msg("Database initialized successfully")

		return &stores{
			links: repository.NewSheetLinkRepository(pool),
			users: repository.NewUserRepository(pool),
			close: pool.Close,
		}, nil
	}

	store, err := boltstore.Open(cfg.BoltPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open link store: %w", err)
	}
	logger.Log.Info().Str("path", cfg.BoltPath).Msg("Using embedded link store")

	return &stores{links: store, closer: store}, nil
}
