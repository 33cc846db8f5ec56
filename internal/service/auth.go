package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bank-report-review/internal/apperr"
	"github.com/iliyamo/bank-report-review/internal/events"
	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/repository"
	"github.com/iliyamo/bank-report-review/internal/session"
	"github.com/iliyamo/bank-report-review/internal/utils"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	User      model.Identity
	ExpiresAt time.Time // zero when sessions do not expire
}

// LogoutHook runs after a session has been destroyed.
type LogoutHook func(ctx context.Context, rec model.SessionRecord)

// AuthService checks credentials and manages the session lifecycle.
type AuthService struct {
	users    *repository.UserRepo
	sessions session.Store
	events   events.Publisher
	log      logrus.FieldLogger

	mu    sync.RWMutex
	hooks []LogoutHook
}

func NewAuthService(users *repository.UserRepo, sessions session.Store, pub events.Publisher, log logrus.FieldLogger) *AuthService {
	if pub == nil {
		pub = events.Discard{}
	}
	return &AuthService{users: users, sessions: sessions, events: pub, log: log}
}

// OnLogout registers a hook, e.g. closing the session's WebSocket
// connections or dropping its conversation thread.
func (a *AuthService) OnLogout(h LogoutHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, h)
}

// Login verifies username and password and opens a session.  Unknown users
// and wrong passwords are indistinguishable to the caller.
func (a *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	u, err := a.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return LoginResult{}, apperr.Storage(err, "load user failed")
	}
	// an unknown user is checked against a dummy hash
	if !utils.VerifyPassword(u.PasswordHash, password) {
		a.log.WithField("username", username).Info("auth: login failed")
		return LoginResult{}, apperr.Auth("Invalid credentials")
	}
	id := model.Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
	s, err := a.sessions.Create(ctx, id)
	if err != nil {
		return LoginResult{}, err
	}
	a.log.WithFields(logrus.Fields{"username": u.Username, "role": u.Role}).Info("auth: login")
	return LoginResult{Token: s.Token, User: id, ExpiresAt: s.ExpiresAt}, nil
}

// Logout ends the session behind token.  It succeeds for unknown or
// already revoked tokens.
func (a *AuthService) Logout(ctx context.Context, token string) error {
	rec, found, err := a.sessions.Destroy(ctx, token)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	a.mu.RLock()
	hooks := append([]LogoutHook(nil), a.hooks...)
	a.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, rec)
	}
	_ = a.events.Publish(ctx, events.New(events.SessionEnded, rec.Username, map[string]any{"user_id": rec.UserID}))
	a.log.WithField("username", rec.Username).Info("auth: logout")
	return nil
}
