// Package session keeps the set of active login sessions.  A session is
// identified by a random id embedded in a signed token; the token is only
// honoured while the id is present in the active set, so logout revokes it
// immediately.  The active set lives in memory and is written through to a
// Persister so sessions survive a restart.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bank-report-review/internal/apperr"
	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/utils"
)

// Session is a freshly created login session.
type Session struct {
	Token     string
	Record    model.SessionRecord
	ExpiresAt time.Time // zero when the session does not expire
}

// Store creates, resolves and destroys sessions.  Implementations are safe
// for concurrent use.
type Store interface {
	Create(ctx context.Context, id model.Identity) (Session, error)
	Destroy(ctx context.Context, token string) (model.SessionRecord, bool, error)
	IsValid(ctx context.Context, token string) bool
	Resolve(ctx context.Context, token string) (model.Identity, error)
	Lookup(ctx context.Context, token string) (model.SessionRecord, error)
}

// Persister is the durable side-store of the active set.
type Persister interface {
	Load(ctx context.Context, now time.Time) ([]model.SessionRecord, error)
	Save(ctx context.Context, rec model.SessionRecord) error
	Delete(ctx context.Context, id string) error
}

// ErrUnauthorized is the message of every authentication failure; callers
// cannot tell a forged token from a revoked one.
const ErrUnauthorized = "invalid or expired session"

// Manager is the Store implementation used by the server.
type Manager struct {
	secret  []byte
	ttl     time.Duration
	persist Persister
	log     logrus.FieldLogger
	now     func() time.Time

	mu     sync.RWMutex
	active map[string]model.SessionRecord

	// OnChange, when set, is called with the number of active sessions
	// after every change.
	OnChange func(active int)
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l logrus.FieldLogger) Option { return func(m *Manager) { m.log = l } }

// NewManager builds a Manager and loads the persisted sessions.  Expired
// sessions are dropped while loading.
func NewManager(ctx context.Context, secret []byte, ttl time.Duration, p Persister, opts ...Option) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is empty")
	}
	m := &Manager{
		secret:  secret,
		ttl:     ttl,
		persist: p,
		log:     logrus.StandardLogger(),
		now:     time.Now,
		active:  map[string]model.SessionRecord{},
	}
	for _, o := range opts {
		o(m)
	}
	recs, err := p.Load(ctx, m.now())
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if !r.Expired(m.now()) {
			m.active[r.ID] = r
		}
	}
	return m, nil
}

// Create starts a session for id and returns its signed token.  The
// session is persisted before the token is handed out.
func (m *Manager) Create(ctx context.Context, id model.Identity) (Session, error) {
	now := m.now().UTC()
	sid, err := utils.NewSessionID()
	if err != nil {
		return Session{}, apperr.Storage(err, "generate session id")
	}
	tok, err := utils.NewSessionToken(m.secret, sid, id.UserID, id.Role, m.ttl, now)
	if err != nil {
		return Session{}, apperr.Storage(err, "sign session token")
	}
	rec := model.SessionRecord{
		ID:        sid,
		UserID:    id.UserID,
		Username:  id.Username,
		Role:      id.Role,
		CreatedAt: now.Truncate(time.Second),
		ExpiresAt: tok.Exp,
	}
	if err := m.persist.Save(ctx, rec); err != nil {
		return Session{}, apperr.Storage(err, "persist session")
	}

	m.mu.Lock()
	m.active[sid] = rec
	n := len(m.active)
	m.mu.Unlock()
	m.changed(n)

	return Session{Token: tok.Token, Record: rec, ExpiresAt: tok.Exp}, nil
}

// Lookup returns the active session behind token.
func (m *Manager) Lookup(ctx context.Context, token string) (model.SessionRecord, error) {
	now := m.now()
	claims, err := utils.ParseSessionToken(m.secret, token, true, now)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// drop the lapsed session eagerly
			if c, perr := utils.ParseSessionToken(m.secret, token, false, now); perr == nil {
				m.remove(ctx, c.SID)
			}
		}
		return model.SessionRecord{}, apperr.Auth(ErrUnauthorized)
	}
	m.mu.RLock()
	rec, ok := m.active[claims.SID]
	m.mu.RUnlock()
	if !ok {
		return model.SessionRecord{}, apperr.Auth(ErrUnauthorized)
	}
	if rec.Expired(now) {
		m.remove(ctx, rec.ID)
		return model.SessionRecord{}, apperr.Auth(ErrUnauthorized)
	}
	return rec, nil
}

// Resolve returns the identity bound to token.
func (m *Manager) Resolve(ctx context.Context, token string) (model.Identity, error) {
	rec, err := m.Lookup(ctx, token)
	if err != nil {
		return model.Identity{}, err
	}
	return rec.Identity(), nil
}

// IsValid reports whether token names an active session.
func (m *Manager) IsValid(ctx context.Context, token string) bool {
	_, err := m.Lookup(ctx, token)
	return err == nil
}

// Destroy ends the session behind token and returns it.  Unknown, expired
// or malformed tokens are not an error; found is false for them.
func (m *Manager) Destroy(ctx context.Context, token string) (rec model.SessionRecord, found bool, err error) {
	claims, perr := utils.ParseSessionToken(m.secret, token, false, m.now())
	if perr != nil {
		return rec, false, nil
	}
	m.mu.Lock()
	rec, found = m.active[claims.SID]
	delete(m.active, claims.SID)
	n := len(m.active)
	m.mu.Unlock()
	if found {
		m.changed(n)
	}
	if err := m.persist.Delete(ctx, claims.SID); err != nil {
		return rec, found, apperr.Storage(err, "delete persisted session")
	}
	return rec, found, nil
}

// Sweep drops expired sessions from memory and the side-store and returns
// how many were removed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	var expired []string
	m.mu.RLock()
	for id, r := range m.active {
		if r.Expired(now) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range expired {
		m.remove(ctx, id)
	}
	return len(expired)
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

func (m *Manager) remove(ctx context.Context, sid string) {
	m.mu.Lock()
	_, ok := m.active[sid]
	delete(m.active, sid)
	n := len(m.active)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.changed(n)
	if err := m.persist.Delete(ctx, sid); err != nil {
		m.log.WithError(err).WithField("sid", sid).Warn("session: delete expired session failed")
	}
}

func (m *Manager) changed(n int) {
	if m.OnChange != nil {
		m.OnChange(n)
	}
}
