package session

import (
	"errors"
	"fmt"

	"gitlab.com/yelinaung/sheets-expense-bot/internal/models"
)

// ErrNotFound indicates the session does not exist, was replaced by a newer
// one, or has expired.
var ErrNotFound = errors.New("no pending expense")

// ValidationError reports a field value that cannot be applied or a session
// that cannot be confirmed yet.
type ValidationError struct {
	Field  models.Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
