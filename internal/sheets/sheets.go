// Package sheets appends confirmed expenses to a per-user Google Sheet,
// creating and sharing the spreadsheet on first use.
package sheets

import (
	"context"
	"errors"
	"fmt"
)

// TabName is the worksheet that holds expense rows.
const TabName = "Expenses"

// ErrNoSheet indicates the user has no spreadsheet yet.
var ErrNoSheet = errors.New("no spreadsheet linked")

// PersistenceError reports a failed spreadsheet operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("sheets %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ShareMode controls who can open a newly created spreadsheet.
type ShareMode string

// Share modes.
const (
	ShareAnyoneWriter ShareMode = "anyone-writer"
	ShareAnyoneReader ShareMode = "anyone-reader"
	ShareNone         ShareMode = "none"
)

// ParseShareMode validates a configured share mode.
func ParseShareMode(s string) (ShareMode, error) {
	switch m := ShareMode(s); m {
	case ShareAnyoneWriter, ShareAnyoneReader, ShareNone:
		return m, nil
	case "":
		return ShareAnyoneWriter, nil
	}
	return "", fmt.Errorf("unknown share mode %q", s)
}

// Service is the subset of the Sheets and Drive APIs the writer needs.
type Service interface {
	CreateSpreadsheet(ctx context.Context, title string) (string, error)
	WriteHeader(ctx context.Context, spreadsheetID string, headers []any) error
	Share(ctx context.Context, spreadsheetID string, mode ShareMode) error
	AppendRow(ctx context.Context, spreadsheetID string, values []any) error
	ReadRows(ctx context.Context, spreadsheetID string) ([][]any, error)
}

// LinkStore remembers which spreadsheet belongs to which user.
// SpreadsheetID returns "" without error when the user has none.
type LinkStore interface {
	SpreadsheetID(ctx context.Context, userID int64) (string, error)
	SaveSpreadsheetID(ctx context.Context, userID int64, spreadsheetID string) error
}

// URL returns the browser link for a spreadsheet.
func URL(spreadsheetID string) string {
	return "https://docs.google.com/spreadsheets/d/" + spreadsheetID + "/edit"
}
