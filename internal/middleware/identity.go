package middleware

// identity.go holds the accessors for what SessionAuth stores in the echo
// context.  Handlers behind SessionAuth can rely on them returning ok.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bank-report-review/internal/model"
)

const (
	ctxSession = "session"
	ctxToken   = "session_token"
	ctxUserID  = "user_id"
)

// Session returns the authenticated session.
func Session(c echo.Context) (model.SessionRecord, bool) {
	rec, ok := c.Get(ctxSession).(model.SessionRecord)
	return rec, ok
}

// Identity returns the authenticated caller.
func Identity(c echo.Context) (model.Identity, bool) {
	rec, ok := Session(c)
	if !ok {
		return model.Identity{}, false
	}
	return rec.Identity(), true
}

// Token returns the raw bearer token of the authenticated request.
func Token(c echo.Context) string {
	s, _ := c.Get(ctxToken).(string)
	return s
}

// userID returns the caller's user id for rate-limit keys, or "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
