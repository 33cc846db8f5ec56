package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bank-report-review/internal/middleware"
	"github.com/iliyamo/bank-report-review/internal/service"
)

// AuthHandler serves login, logout and the current user.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(a *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: a}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type userPart struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginResp struct {
	Token     string     `json:"token"`
	Success   bool       `json:"success"`
	User      userPart   `json:"user"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Login: verify credentials and open a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	res, err := h.Auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return respond(c, err)
	}
	out := loginResp{
		Token:   res.Token,
		Success: true,
		User:    userPart{Username: res.User.Username, Role: res.User.Role},
	}
	if !res.ExpiresAt.IsZero() {
		out.ExpiresAt = &res.ExpiresAt
	}
	return c.JSON(http.StatusOK, out)
}

// Logout: always succeeds; a known token's session is destroyed.
func (h *AuthHandler) Logout(c echo.Context) error {
	if tok := middleware.BearerToken(c); tok != "" {
		if err := h.Auth.Logout(c.Request().Context(), tok); err != nil {
			return respond(c, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Me returns the caller's identity and session expiry.
func (h *AuthHandler) Me(c echo.Context) error {
	rec, _ := middleware.Session(c)
	body := echo.Map{
		"user_id":    rec.UserID,
		"username":   rec.Username,
		"role":       rec.Role,
		"created_at": rec.CreatedAt,
	}
	if !rec.ExpiresAt.IsZero() {
		body["expires_at"] = rec.ExpiresAt
	}
	return c.JSON(http.StatusOK, body)
}
