package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/bot/mocks"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/gemini"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
)

func TestHandleMessage_TextOpensSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	ctx := context.Background()

	env.bot.handleMessageCore(ctx, env.tg, mocks.MessageUpdate(testChatID, testUserID, "Lunch $15 McDonald's card"))

	require.Equal(t, []string{"Lunch $15 McDonald's card"}, env.extractor.calls())
	require.Equal(t, 1, env.tg.SentMessageCount())

	msg := env.tg.LastSentMessage()
	require.Equal(t, tgmodels.ParseModeHTML, msg.ParseMode)
	require.Contains(t, msg.Text, "$15.00")
	require.Contains(t, msg.Text, "McDonald&#39;s")
	require.Contains(t, msg.Text, "Confidence: 100%")

	kb := inlineKeyboard(t, msg.ReplyMarkup)
	require.Len(t, kb.InlineKeyboard, 1, "high confidence has no quick fixes")
	require.Equal(t, []string{"exp_ok_" + firstID, "exp_ed_" + firstID, "exp_x_" + firstID}, callbackData(kb))

	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, firstID, s.ID)
	require.Equal(t, 1000, s.MessageID)
	require.Equal(t, testChatID, s.ChatID)
	require.Equal(t, session.StatePending, s.State)
}

func TestHandleMessage_LowConfidenceOffersQuickFixes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, vague())
	env.bot.handleMessageCore(context.Background(), env.tg, mocks.MessageUpdate(testChatID, testUserID, "corner shop"))

	msg := env.tg.LastSentMessage()
	require.Contains(t, msg.Text, "No amount found")

	kb := inlineKeyboard(t, msg.ReplyMarkup)
	require.Len(t, kb.InlineKeyboard, 2)
	require.Len(t, kb.InlineKeyboard[1], quickFixCount)
	for _, b := range kb.InlineKeyboard[1] {
		cb, err := parseCallback(b.CallbackData)
		require.NoError(t, err)
		require.Equal(t, actionCategory, cb.Action)
	}
}

func TestHandleMessage_NewExpenseReplacesPending(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	ctx := context.Background()

	env.bot.handleMessageCore(ctx, env.tg, mocks.MessageUpdate(testChatID, testUserID, "first"))
	env.bot.handleMessageCore(ctx, env.tg, mocks.MessageUpdate(testChatID, testUserID, "second"))

	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, "sess0002", s.ID)

	_, err = env.bot.sessions.Get(testUserID, firstID)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestHandleMessage_UnsupportedContent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	update := mocks.MessageUpdate(testChatID, testUserID, "   ")

	env.bot.handleMessageCore(context.Background(), env.tg, update)

	require.Empty(t, env.extractor.calls())
	require.Contains(t, env.tg.LastSentMessage().Text, "/help")
}

func TestHandleMessage_IgnoresMissingSender(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	env.bot.handleMessageCore(context.Background(), env.tg, &tgmodels.Update{})
	require.Zero(t, env.tg.SentMessageCount())
}

func TestHandleText_TypedEditWhileEditing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, vague())
	ctx := context.Background()

	env.bot.handleMessageCore(ctx, env.tg, mocks.MessageUpdate(testChatID, testUserID, "corner shop"))
	_, err := env.bot.sessions.BeginEdit(testUserID, firstID, models.FieldAmount)
	require.NoError(t, err)

	env.bot.handleMessageCore(ctx, env.tg, mocks.MessageUpdate(testChatID, testUserID, "1,250.50"))

	require.Len(t, env.extractor.calls(), 1, "typed value must not start a new expense")

	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, firstID, s.ID)
	require.Equal(t, "1250.5", s.Candidate.Amount.Decimal.String())
	require.Empty(t, s.Cursor)
	require.Equal(t, session.StateEditing, s.State)
	require.Equal(t, 1001, s.MessageID, "edit menu becomes the tracked message")

	msg := env.tg.LastSentMessage()
	require.Contains(t, msg.Text, "Which field")
	require.Contains(t, msg.Text, "$1,250.50")
}

func TestHandleText_InvalidTypedEditReprompts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, vague())
	ctx := context.Background()

	env.bot.handleMessageCore(ctx, env.tg, mocks.MessageUpdate(testChatID, testUserID, "corner shop"))
	_, err := env.bot.sessions.BeginEdit(testUserID, firstID, models.FieldAmount)
	require.NoError(t, err)

	env.bot.handleMessageCore(ctx, env.tg, mocks.MessageUpdate(testChatID, testUserID, "lots"))

	msg := env.tg.LastSentMessage()
	require.Contains(t, msg.Text, "❌")
	require.Contains(t, msg.Text, "Edit Amount")
	require.Equal(t, []string{"exp_bk_" + firstID}, callbackData(inlineKeyboard(t, msg.ReplyMarkup)))

	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.False(t, s.Candidate.HasAmount())
	require.Equal(t, models.FieldAmount, s.Cursor)
}

func TestHandleText_PendingSessionTextStartsNewExpense(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	ctx := context.Background()

	env.bot.handleMessageCore(ctx, env.tg, mocks.MessageUpdate(testChatID, testUserID, "one"))
	env.bot.handleMessageCore(ctx, env.tg, mocks.MessageUpdate(testChatID, testUserID, "two"))

	require.Equal(t, []string{"one", "two"}, env.extractor.calls())
}

func photoServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandlePhoto(t *testing.T) {
	t.Parallel()

	srv := photoServer(t, []byte("jpeg-bytes"))

	env := newTestEnv(t, lunch())
	ocr := &stubOCR{text: "Starbucks 350.00 paid via UPI"}
	env.bot.ocr = ocr
	env.bot.httpClient = srv.Client()
	env.tg.FileDownloadLinkToReturn = srv.URL + "/photo.jpg"

	update := mocks.NewUpdateBuilder().
		WithMessage(testChatID, testUserID, "").
		WithPhoto("photo-1").
		WithCaption("coffee").
		Build()

	env.bot.handleMessageCore(context.Background(), env.tg, update)

	require.Equal(t, "image/jpeg", ocr.gotMime)
	require.Equal(t, len("jpeg-bytes"), ocr.gotSize)
	require.Equal(t, []string{"Starbucks 350.00 paid via UPI coffee"}, env.extractor.calls())

	require.Equal(t, 2, env.tg.SentMessageCount())
	require.Contains(t, env.tg.SentMessages[0].Text, "Reading your photo")
	require.Contains(t, env.tg.LastSentMessage().Text, "From photo")

	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, models.SourcePhoto, s.Candidate.Source)
}

func TestHandlePhoto_ImageDocument(t *testing.T) {
	t.Parallel()

	srv := photoServer(t, []byte("png"))

	env := newTestEnv(t, lunch())
	ocr := &stubOCR{text: "Total 99"}
	env.bot.ocr = ocr
	env.bot.httpClient = srv.Client()
	env.tg.FileDownloadLinkToReturn = srv.URL

	update := mocks.NewUpdateBuilder().
		WithMessage(testChatID, testUserID, "").
		WithDocument("doc-1", "receipt.png", "image/png").
		Build()

	env.bot.handleMessageCore(context.Background(), env.tg, update)

	require.Equal(t, "image/png", ocr.gotMime)
	require.Len(t, env.extractor.calls(), 1)
}

func TestHandlePhoto_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ocr      TextRecognizer
		file     *tgmodels.File
		fileErr  error
		wantText string
	}{
		{name: "no recognizer", wantText: "not available"},
		{name: "get file fails", ocr: &stubOCR{text: "x"}, fileErr: errors.New("telegram down"), wantText: "Failed to download"},
		{name: "too large", ocr: &stubOCR{text: "x"}, file: &tgmodels.File{FileID: "f", FileSize: maxPhotoBytes + 1}, wantText: "too large"},
		{name: "timeout", ocr: &stubOCR{err: gemini.ErrRecognizeTimeout}, wantText: "timed out"},
		{name: "nothing found", ocr: &stubOCR{err: gemini.ErrNoText}, wantText: "couldn't find an expense"},
		{name: "other failure", ocr: &stubOCR{err: errors.New("boom")}, wantText: "couldn't read this photo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := photoServer(t, []byte("jpeg"))

			env := newTestEnv(t, lunch())
			env.bot.ocr = tt.ocr
			env.bot.httpClient = srv.Client()
			env.tg.FileDownloadLinkToReturn = srv.URL
			env.tg.FileToReturn = tt.file
			env.tg.GetFileError = tt.fileErr

			env.bot.handleMessageCore(context.Background(), env.tg, mocks.PhotoUpdate(testChatID, testUserID, "p"))

			require.Contains(t, env.tg.LastSentMessage().Text, tt.wantText)
			require.Empty(t, env.extractor.calls())

			_, err := env.bot.sessions.Current(testUserID)
			require.ErrorIs(t, err, session.ErrNotFound)
		})
	}
}

func TestDownloadFile(t *testing.T) {
	t.Parallel()

	t.Run("bad status", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		t.Cleanup(srv.Close)

		tg := mocks.NewMockBot()
		tg.FileDownloadLinkToReturn = srv.URL
		b := &Bot{httpClient: srv.Client()}

		_, err := b.downloadFile(context.Background(), tg, "f")
		require.ErrorContains(t, err, "unexpected status")
	})

	t.Run("body over limit", func(t *testing.T) {
		t.Parallel()

		srv := photoServer(t, make([]byte, maxPhotoBytes+10))

		tg := mocks.NewMockBot()
		tg.FileDownloadLinkToReturn = srv.URL
		b := &Bot{httpClient: srv.Client()}

		_, err := b.downloadFile(context.Background(), tg, "f")
		require.ErrorIs(t, err, errPhotoTooLarge)
	})
}
