package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/confidence"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/config"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/logger"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/money"
)

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <text...>",
		Short: "Show how a message would be read, without Telegram or Sheets",
		Example: `  sheets-expense-bot parse "Lunch $15 McDonald's"
  sheets-expense-bot parse Uber 220 card`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger.Configure("warn", cfg.LogFormat)

			llms, err := newModels(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			ex, err := newExtractor(cfg, llms.extraction)
			if err != nil {
				return err
			}

			c := ex.Extract(cmd.Context(), strings.Join(args, " "))
			printCandidate(cmd.OutOrStdout(), c, cfg.CurrencySymbol)
			return nil
		},
	}
}

var (
	labelColor   = color.New(color.FgCyan, color.Bold)
	missingColor = color.New(color.FgRed)
)

func bandColor(b confidence.Band) *color.Color {
	switch b {
	case confidence.BandHigh:
		return color.New(color.BgGreen, color.FgBlack)
	case confidence.BandMedium:
		return color.New(color.BgYellow, color.FgBlack)
	default:
		return color.New(color.BgRed, color.FgWhite)
	}
}

func printField(w io.Writer, label, value string) {
	labelColor.Fprintf(w, "%-12s ", label)
	if value == "" {
		missingColor.Fprintln(w, "unknown")
		return
	}
	fmt.Fprintln(w, value)
}

// printCandidate writes a coloured, one field per line rendering of c.
func printCandidate(w io.Writer, c models.CandidateExpense, symbol string) {
	amount := ""
	if c.HasAmount() {
		amount = money.Format(symbol, c.Amount.Decimal)
	}

	cat := c.Category
	if cat == "" {
		cat = models.CategoryUncategorized
	}

	printField(w, "Amount", amount)
	printField(w, "Merchant", c.Merchant)
	printField(w, "Category", fmt.Sprintf("%s (%s match)", cat.Label(), c.MatchTier))
	printField(w, "Description", c.Description)
	printField(w, "Payment", string(c.PaymentMethod))
	if !c.Date.IsZero() {
		printField(w, "Date", c.Date.Format(models.RowDateLayout))
	}
	printField(w, "Method", string(c.Method))

	band := confidence.BandOf(c.Confidence)
	labelColor.Fprintf(w, "%-12s ", "Confidence")
	bandColor(band).Fprintf(w, " %d %s ", c.Confidence, band)
	fmt.Fprintln(w)
}
