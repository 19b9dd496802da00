package bot

import (
	"errors"
	"strings"
)

const (
	callbackPrefix = "exp"
	// maxCallbackData is Telegram's limit on callback_data.
	maxCallbackData = 64
)

// Callback actions.
const (
	actionConfirm  = "ok"
	actionEdit     = "ed"
	actionField    = "f"
	actionCategory = "cat"
	actionPayment  = "pay"
	actionSave     = "sv"
	actionBack     = "bk"
	actionCancel   = "x"
)

var (
	errNotExpenseCallback = errors.New("not an expense callback")
	errBadCallback        = errors.New("malformed expense callback")
)

// callback is a decoded inline button press: exp_<action>_<session>[_<arg>].
type callback struct {
	Action    string
	SessionID string
	Arg       string
}

func (c callback) String() string {
	s := callbackPrefix + "_" + c.Action + "_" + c.SessionID
	if c.Arg != "" {
		s += "_" + c.Arg
	}
	return s
}

func knownAction(a string) bool {
	switch a {
	case actionConfirm, actionEdit, actionField, actionCategory, actionPayment, actionSave, actionBack, actionCancel:
		return true
	}
	return false
}

func needsArg(a string) bool {
	return a == actionField || a == actionCategory || a == actionPayment
}

// parseCallback decodes callback data. The argument is last so it may
// itself contain underscores.
func parseCallback(data string) (callback, error) {
	if !strings.HasPrefix(data, callbackPrefix+"_") {
		return callback{}, errNotExpenseCallback
	}
	if len(data) > maxCallbackData {
		return callback{}, errBadCallback
	}

	parts := strings.SplitN(data, "_", 4)
	if len(parts) < 3 {
		return callback{}, errBadCallback
	}

	cb := callback{Action: parts[1], SessionID: parts[2]}
	if len(parts) == 4 {
		if parts[3] == "" {
			return callback{}, errBadCallback
		}
		cb.Arg = parts[3]
	}

	switch {
	case !knownAction(cb.Action), cb.SessionID == "":
		return callback{}, errBadCallback
	case needsArg(cb.Action) && cb.Arg == "":
		return callback{}, errBadCallback
	case !needsArg(cb.Action) && cb.Arg != "":
		return callback{}, errBadCallback
	}

	return cb, nil
}
