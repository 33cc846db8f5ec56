package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bank-report-review/internal/apperr"
	"github.com/iliyamo/bank-report-review/internal/session"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header.  The scheme is matched case-insensitively.
func BearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SessionAuth rejects requests whose bearer token does not name an active
// session.  On success the session, its identity and the raw token are
// stored in the echo context (see Identity, Session and Token).
func SessionAuth(store session.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := BearerToken(c)
			if raw == "" {
				return unauthorized(c, "missing bearer token")
			}
			rec, err := store.Lookup(c.Request().Context(), raw)
			if err != nil {
				if apperr.Is(err, apperr.KindAuth) {
					return unauthorized(c, err.Error())
				}
				return err
			}
			c.Set(ctxSession, rec)
			c.Set(ctxToken, raw)
			c.Set(ctxUserID, strconv.FormatInt(rec.UserID, 10))
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg, "kind": apperr.KindAuth.String()})
}
