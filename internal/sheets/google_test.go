package sheets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestLoadCredentials(t *testing.T) {
	t.Parallel()

	raw := `{"type": "service_account"}`

	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	got, err := LoadCredentials(path, "ignored")
	require.NoError(t, err)
	require.JSONEq(t, raw, string(got))

	got, err = LoadCredentials("", raw)
	require.NoError(t, err)
	require.JSONEq(t, raw, string(got))

	got, err = LoadCredentials("", base64.StdEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)
	require.JSONEq(t, raw, string(got))

	_, err = LoadCredentials("", "")
	require.Error(t, err)

	_, err = LoadCredentials("", "%%% not base64")
	require.Error(t, err)

	_, err = LoadCredentials(filepath.Join(t.TempDir(), "missing.json"), "")
	require.Error(t, err)
}

func TestNewGoogleService_BadCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewGoogleService(context.Background(), []byte("not json"), nil)
	require.Error(t, err)
}

// recordedRequest captures what the API server received.
type recordedRequest struct {
	method string
	path   string
	query  string
	body   map[string]any
}

func newAPIServer(t *testing.T) (*GoogleService, *[]recordedRequest) {
	t.Helper()

	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)

		mu.Lock()
		reqs = append(reqs, recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: body})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/v4/spreadsheets"):
			_, _ = io.WriteString(w, `{"spreadsheetId": "new-sheet"}`)
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/values/"):
			_, _ = io.WriteString(w, `{"values": [["2026-05-01", "15.00", "Food"]]}`)
		case strings.Contains(r.URL.Path, "/permissions"):
			_, _ = io.WriteString(w, `{"id": "perm"}`)
		default:
			_, _ = io.WriteString(w, `{}`)
		}
	}))
	t.Cleanup(srv.Close)

	svc, err := NewGoogleServiceWithOptions(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	return svc, &reqs
}

func TestGoogleService_Calls(t *testing.T) {
	t.Parallel()

	svc, reqs := newAPIServer(t)
	ctx := context.Background()

	id, err := svc.CreateSpreadsheet(ctx, "ExpenseTracker_alice_2026-05-01")
	require.NoError(t, err)
	require.Equal(t, "new-sheet", id)

	require.NoError(t, svc.WriteHeader(ctx, id, []any{"Date", "Amount"}))
	require.NoError(t, svc.AppendRow(ctx, id, []any{"2026-05-01", "15.00"}))
	require.NoError(t, svc.Share(ctx, id, ShareAnyoneReader))
	require.NoError(t, svc.Share(ctx, id, ShareNone))

	rows, err := svc.ReadRows(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := *reqs
	require.Len(t, got, 5, "share mode none makes no request")

	props := got[0].body["properties"].(map[string]any)
	require.Equal(t, "ExpenseTracker_alice_2026-05-01", props["title"])

	require.Equal(t, http.MethodPut, got[1].method)
	require.Contains(t, got[1].query, "valueInputOption=RAW")

	require.Contains(t, got[2].path, ":append")
	require.Contains(t, got[2].query, "valueInputOption=USER_ENTERED")
	require.Contains(t, got[2].query, "insertDataOption=INSERT_ROWS")

	require.Contains(t, got[3].path, "/files/new-sheet/permissions")
	require.Equal(t, "anyone", got[3].body["type"])
	require.Equal(t, "reader", got[3].body["role"])
}
