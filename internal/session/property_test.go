package session

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
	"pgregory.net/rapid"
)

// TestStateMachine drives random operation sequences and checks that each
// user has at most one live session and that confirmation never writes a
// row without an amount.
func TestStateMachine(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		sink := &recordingSink{}
		m := NewManager(sink)
		users := []int64{1, 2}
		ids := map[int64]string{}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for range steps {
			uid := rapid.SampledFrom(users).Draw(t, "user")
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0:
				c := models.CandidateExpense{Category: models.CategoryUncategorized, Description: "x"}
				if rapid.Bool().Draw(t, "with amount") {
					c.Amount = decimal.NewNullDecimal(decimal.NewFromInt(int64(rapid.IntRange(0, 1000).Draw(t, "amount"))))
				}
				ids[uid] = m.Open(models.User{ID: uid}, uid, c).ID
			case 1:
				_, _ = m.ApplyEdit(uid, ids[uid], models.FieldAmount, rapid.SampledFrom([]string{"12", "abc", "-3", "1,000.50"}).Draw(t, "value"))
			case 2:
				_, _ = m.BeginEdit(uid, ids[uid], rapid.SampledFrom(models.AllFields).Draw(t, "field"))
			case 3:
				_ = m.Cancel(uid, ids[uid])
			case 4:
				before, getErr := m.Get(uid, ids[uid])
				_, err := m.Confirm(context.Background(), uid, ids[uid])
				if getErr == nil && !before.Candidate.HasAmount() && err == nil {
					t.Fatalf("confirmed a session without an amount")
				}
				if getErr == nil && !before.Candidate.HasAmount() {
					if after, _ := m.Get(uid, ids[uid]); after.State != StatePending {
						t.Fatalf("failed confirm left state %q", after.State)
					}
				}
			}

			for _, u := range users {
				if s, err := m.Current(u); err == nil && s.ID != ids[u] {
					t.Fatalf("user %d has session %s, want %s", u, s.ID, ids[u])
				}
			}
		}

		sink.mu.Lock()
		defer sink.mu.Unlock()
		for _, row := range sink.rows {
			if row.Amount.IsNegative() {
				t.Fatalf("negative amount written: %s", row.Amount)
			}
		}
	})
}
