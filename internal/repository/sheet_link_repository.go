package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/database"
)

// SheetLinkRepository maps users to their spreadsheets.
type SheetLinkRepository struct {
	db database.PGXDB
}

// NewSheetLinkRepository creates a new SheetLinkRepository.
func NewSheetLinkRepository(db database.PGXDB) *SheetLinkRepository {
	return &SheetLinkRepository{db: db}
}

// SpreadsheetID returns the user's spreadsheet id, or "" if none is linked.
func (r *SheetLinkRepository) SpreadsheetID(ctx context.Context, userID int64) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		SELECT spreadsheet_id FROM sheet_links WHERE user_id = $1
	`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get sheet link: %w", err)
	}
	return id, nil
}

// SaveSpreadsheetID links a spreadsheet to the user. The user row is created
// if it does not exist yet.
func (r *SheetLinkRepository) SaveSpreadsheetID(ctx context.Context, userID int64, spreadsheetID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO sheet_links (user_id, spreadsheet_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			spreadsheet_id = EXCLUDED.spreadsheet_id,
			updated_at = NOW()
	`, userID, spreadsheetID)
	if err != nil {
		return fmt.Errorf("failed to save sheet link: %w", err)
	}
	return nil
}
