package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/bot/mocks"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/sheets"
)

const previewMessageID = 1000

// openSession sends text through the bot so a preview exists.
func openSession(t *testing.T, env *testEnv) {
	t.Helper()
	env.bot.handleMessageCore(context.Background(), env.tg, mocks.MessageUpdate(testChatID, testUserID, "expense"))
	_, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
}

func press(env *testEnv, data string) {
	env.bot.handleCallbackCore(context.Background(), env.tg, mocks.CallbackQueryUpdate(testChatID, testUserID, previewMessageID, data))
}

func lastToast(t *testing.T, env *testEnv) string {
	t.Helper()
	require.NotEmpty(t, env.tg.AnsweredCallbacks)
	return env.tg.AnsweredCallbacks[len(env.tg.AnsweredCallbacks)-1].Text
}

func TestCallback_ConfirmSaves(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	openSession(t, env)

	press(env, "exp_ok_"+firstID)

	rows := env.sink.appended()
	require.Len(t, rows, 1)
	require.Equal(t, models.CategoryFood, rows[0].Category)
	require.Equal(t, "15", rows[0].Amount.String())
	require.Equal(t, testNow, rows[0].Date, "missing date defaults to today")

	edited := env.tg.LastEditedMessage()
	require.Equal(t, previewMessageID, edited.MessageID)
	require.Contains(t, edited.Text, "Saved to your sheet")
	require.Contains(t, edited.Text, env.sheets.url)
	require.Nil(t, edited.ReplyMarkup)

	require.Equal(t, "Saved", lastToast(t, env))
	require.Equal(t, 1, env.bot.learner.Learned())

	_, err := env.bot.sessions.Current(testUserID)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestCallback_ConfirmWithoutSheetLink(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	env.sheets.url = ""
	env.sheets.urlErr = sheets.ErrNoSheet
	openSession(t, env)

	press(env, "exp_ok_"+firstID)

	require.Len(t, env.sink.appended(), 1)
	require.NotContains(t, env.tg.LastEditedMessage().Text, "Open your sheet")
}

func TestCallback_ConfirmWithoutAmountAsksForIt(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, vague())
	openSession(t, env)

	press(env, "exp_ok_"+firstID)

	require.Empty(t, env.sink.appended())
	require.Contains(t, lastToast(t, env), "Amount")

	edited := env.tg.LastEditedMessage()
	require.Contains(t, edited.Text, "Edit Amount")
	require.Equal(t, []string{"exp_bk_" + firstID}, callbackData(inlineKeyboard(t, edited.ReplyMarkup)))

	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, session.StateEditing, s.State)
	require.Equal(t, models.FieldAmount, s.Cursor)

	// Typing the amount and confirming again succeeds.
	env.bot.handleMessageCore(context.Background(), env.tg, mocks.MessageUpdate(testChatID, testUserID, "42"))
	press(env, "exp_ok_"+firstID)

	rows := env.sink.appended()
	require.Len(t, rows, 1)
	require.Equal(t, "42", rows[0].Amount.String())
	require.Equal(t, models.CategoryUncategorized, rows[0].Category)
}

func TestCallback_ConfirmPersistenceFailureKeepsSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	env.sink.err = &sheets.PersistenceError{Op: "append", Err: errors.New("quota exceeded")}
	openSession(t, env)

	press(env, "exp_ok_"+firstID)

	require.Equal(t, "Saving failed", lastToast(t, env))

	edited := env.tg.LastEditedMessage()
	require.Contains(t, edited.Text, saveFailedText)
	require.Contains(t, callbackData(inlineKeyboard(t, edited.ReplyMarkup)), "exp_ok_"+firstID)

	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, session.StatePending, s.State)
	require.Zero(t, env.bot.learner.Learned())

	// Retry once the sheet recovers.
	env.sink.mu.Lock()
	env.sink.err = nil
	env.sink.mu.Unlock()
	env.tg.Reset()

	press(env, "exp_ok_"+firstID)
	require.Len(t, env.sink.appended(), 1)
	require.Equal(t, "Saved", lastToast(t, env))
	require.Equal(t, 1, env.tg.AnsweredCallbackCount())
	require.NotContains(t, env.tg.LastEditedMessage().Text, saveFailedText)
}

func TestCallback_StaleSession(t *testing.T) {
	t.Parallel()

	for _, data := range []string{
		"exp_ok_deadbeef",
		"exp_ed_deadbeef",
		"exp_f_deadbeef_amount",
		"exp_cat_deadbeef_food",
		"exp_pay_deadbeef_cash",
		"exp_sv_deadbeef",
		"exp_bk_deadbeef",
		"exp_x_deadbeef",
	} {
		t.Run(data, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, lunch())
			openSession(t, env)

			press(env, data)

			require.Equal(t, nothingPendingText, env.tg.LastEditedMessage().Text)
			require.Equal(t, "Nothing pending", lastToast(t, env))
			require.Empty(t, env.sink.appended())

			_, err := env.bot.sessions.Get(testUserID, firstID)
			require.NoError(t, err, "the live session is untouched")
		})
	}
}

func TestCallback_EditFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	openSession(t, env)
	ctx := context.Background()

	press(env, "exp_ed_"+firstID)
	edited := env.tg.LastEditedMessage()
	require.Contains(t, edited.Text, "Which field")
	data := callbackData(inlineKeyboard(t, edited.ReplyMarkup))
	require.Contains(t, data, "exp_f_"+firstID+"_merchant")
	require.Contains(t, data, "exp_sv_"+firstID)

	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, session.StatePending, s.State, "opening the menu changes nothing")

	press(env, "exp_f_"+firstID+"_merchant")
	require.Contains(t, env.tg.LastEditedMessage().Text, "Edit Merchant")

	env.bot.handleMessageCore(ctx, env.tg, mocks.MessageUpdate(testChatID, testUserID, "Burger King"))

	s, err = env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, "Burger King", s.Candidate.Merchant)
	require.Len(t, s.History, 1)
	require.Equal(t, "McDonald's", s.History[0].Old)

	press(env, "exp_sv_"+firstID)
	require.Contains(t, env.tg.LastEditedMessage().Text, "New expense")

	s, err = env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, session.StatePending, s.State)
	require.Empty(t, s.Cursor)
}

func TestCallback_CategoryAndPaymentPickers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	openSession(t, env)

	press(env, "exp_f_"+firstID+"_category")
	data := callbackData(inlineKeyboard(t, env.tg.LastEditedMessage().ReplyMarkup))
	require.Contains(t, data, "exp_cat_"+firstID+"_groceries")
	require.Contains(t, data, "exp_ed_"+firstID)

	press(env, "exp_cat_"+firstID+"_groceries")
	require.Equal(t, "Category updated", lastToast(t, env))
	require.Contains(t, env.tg.LastEditedMessage().Text, "Which field", "picker returns to the edit menu")

	press(env, "exp_f_"+firstID+"_payment_method")
	data = callbackData(inlineKeyboard(t, env.tg.LastEditedMessage().ReplyMarkup))
	require.Contains(t, data, "exp_pay_"+firstID+"_bank_transfer")

	press(env, "exp_pay_"+firstID+"_bank_transfer")

	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, models.CategoryGroceries, s.Candidate.Category)
	require.Equal(t, models.PaymentBankTransfer, s.Candidate.PaymentMethod)
	require.Equal(t, session.StateEditing, s.State)
}

func TestCallback_QuickFixStaysOnPreview(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, vague())
	openSession(t, env)

	press(env, "exp_cat_"+firstID+"_transport")

	edited := env.tg.LastEditedMessage()
	require.Contains(t, edited.Text, "New expense")
	require.Contains(t, edited.Text, "Transport")

	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, session.StatePending, s.State)
	require.Equal(t, models.CategoryTransport, s.Candidate.Category)
}

func TestCallback_InvalidChoice(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	openSession(t, env)

	press(env, "exp_cat_"+firstID+"_rockets")

	require.Contains(t, lastToast(t, env), "invalid category")
	s, err := env.bot.sessions.Current(testUserID)
	require.NoError(t, err)
	require.Equal(t, models.CategoryFood, s.Candidate.Category)
}

func TestCallback_UnknownField(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	openSession(t, env)

	press(env, "exp_f_"+firstID+"_colour")

	require.Equal(t, "Unknown field", lastToast(t, env))
	require.Empty(t, env.tg.EditedMessages)
}

func TestCallback_Cancel(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	openSession(t, env)

	press(env, "exp_x_"+firstID)

	require.Contains(t, env.tg.LastEditedMessage().Text, "discarded")
	_, err := env.bot.sessions.Current(testUserID)
	require.ErrorIs(t, err, session.ErrNotFound)

	press(env, "exp_ok_"+firstID)
	require.Empty(t, env.sink.appended())
	require.Equal(t, nothingPendingText, env.tg.LastEditedMessage().Text)
}

func TestCallback_MalformedDataIsAnsweredOnly(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	openSession(t, env)

	press(env, "exp_zz_"+firstID)

	require.Equal(t, 1, env.tg.AnsweredCallbackCount())
	require.Empty(t, env.tg.EditedMessages)
}

func TestCallback_OtherUserCannotTouchSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lunch())
	openSession(t, env)

	env.bot.handleCallbackCore(context.Background(), env.tg,
		mocks.CallbackQueryUpdate(testChatID, testUserID+1, previewMessageID, "exp_ok_"+firstID))

	require.Empty(t, env.sink.appended())
	_, err := env.bot.sessions.Get(testUserID, firstID)
	require.NoError(t, err)
}
