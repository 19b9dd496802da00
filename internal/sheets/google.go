package sheets

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// LoadCredentials reads service account JSON from a file, or from an inline
// value that is either raw JSON or base64-encoded JSON.
func LoadCredentials(file, inline string) ([]byte, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}
		return data, nil
	}

	inline = strings.TrimSpace(inline)
	if inline == "" {
		return nil, fmt.Errorf("no Google credentials configured")
	}
	if strings.HasPrefix(inline, "{") {
		return []byte(inline), nil
	}

	data, err := base64.StdEncoding.DecodeString(inline)
	if err != nil {
		return nil, fmt.Errorf("credentials are neither JSON nor base64: %w", err)
	}
	return data, nil
}

// GoogleService talks to the Sheets and Drive APIs.
type GoogleService struct {
	sheets *sheets.Service
	drive  *drive.Service
}

// NewGoogleService authenticates with a service account. Requests go
// through base's transport, so an instrumented client traces them.
func NewGoogleService(ctx context.Context, credentialsJSON []byte, base *http.Client) (*GoogleService, error) {
	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account key: %w", err)
	}

	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	httpClient := oauth2.NewClient(ctx, jwtConfig.TokenSource(ctx))
	if base != nil {
		httpClient.Timeout = base.Timeout
	}

	return NewGoogleServiceWithOptions(ctx, option.WithHTTPClient(httpClient))
}

// NewGoogleServiceWithOptions builds the API clients from raw options.
func NewGoogleServiceWithOptions(ctx context.Context, opts ...option.ClientOption) (*GoogleService, error) {
	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create drive service: %w", err)
	}

	return &GoogleService{sheets: sheetsSvc, drive: driveSvc}, nil
}

// CreateSpreadsheet creates a spreadsheet with a single expenses tab.
func (g *GoogleService) CreateSpreadsheet(ctx context.Context, title string) (string, error) {
	created, err := g.sheets.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title: title,
		},
		Sheets: []*sheets.Sheet{
			{
				Properties: &sheets.SheetProperties{
					Title: TabName,
				},
			},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating spreadsheet: %w", err)
	}
	return created.SpreadsheetId, nil
}

// WriteHeader writes the header row.
func (g *GoogleService) WriteHeader(ctx context.Context, spreadsheetID string, headers []any) error {
	_, err := g.sheets.Spreadsheets.Values.Update(spreadsheetID, TabName+"!A1", &sheets.ValueRange{
		Values: [][]any{headers},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("updating headers: %w", err)
	}
	return nil
}

// Share grants link access according to mode.
func (g *GoogleService) Share(ctx context.Context, spreadsheetID string, mode ShareMode) error {
	var role string
	switch mode {
	case ShareAnyoneWriter:
		role = "writer"
	case ShareAnyoneReader:
		role = "reader"
	default:
		return nil
	}

	_, err := g.drive.Permissions.Create(spreadsheetID, &drive.Permission{
		Type: "anyone",
		Role: role,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("creating permission: %w", err)
	}
	return nil
}

// AppendRow appends one row below the existing data.
func (g *GoogleService) AppendRow(ctx context.Context, spreadsheetID string, values []any) error {
	_, err := g.sheets.Spreadsheets.Values.Append(spreadsheetID, TabName+"!A:F", &sheets.ValueRange{
		Values: [][]any{values},
	}).ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("appending row: %w", err)
	}
	return nil
}

// ReadRows returns all data rows below the header.
func (g *GoogleService) ReadRows(ctx context.Context, spreadsheetID string) ([][]any, error) {
	resp, err := g.sheets.Spreadsheets.Values.Get(spreadsheetID, TabName+"!A2:F").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return resp.Values, nil
}
