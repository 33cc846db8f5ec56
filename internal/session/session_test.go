package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bank-report-review/internal/apperr"
	"github.com/iliyamo/bank-report-review/internal/model"
)

type memPersister struct {
	mu   sync.Mutex
	recs map[string]model.SessionRecord
}

func newMemPersister() *memPersister {
	return &memPersister{recs: map[string]model.SessionRecord{}}
}

func (p *memPersister) Load(_ context.Context, _ time.Time) ([]model.SessionRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.SessionRecord
	for _, r := range p.recs {
		out = append(out, r)
	}
	return out, nil
}

func (p *memPersister) Save(_ context.Context, r model.SessionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs[r.ID] = r
	return nil
}

func (p *memPersister) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.recs, id)
	return nil
}

func (p *memPersister) has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.recs[id]
	return ok
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var analyst = model.Identity{UserID: 3, Username: "analyst3", Role: "analyst"}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	var gauge int
	m, err := NewManager(ctx, []byte("secret"), time.Hour, p)
	require.NoError(t, err)
	m.OnChange = func(n int) { gauge = n }

	s, err := m.Create(ctx, analyst)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.True(t, p.has(s.Record.ID))
	assert.Equal(t, 1, gauge)

	id, err := m.Resolve(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, analyst, id)
	assert.True(t, m.IsValid(ctx, s.Token))

	rec, found, err := m.Destroy(ctx, s.Token)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, s.Record.ID, rec.ID)
	assert.False(t, p.has(s.Record.ID))
	assert.Equal(t, 0, gauge)

	_, err = m.Resolve(ctx, s.Token)
	assert.True(t, apperr.Is(err, apperr.KindAuth))

	// logout is idempotent
	_, found, err = m.Destroy(ctx, s.Token)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManagerTokensAreNeverReused(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ctx, []byte("secret"), 0, newMemPersister())
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := m.Create(ctx, analyst)
		require.NoError(t, err)
		assert.False(t, seen[s.Token])
		seen[s.Token] = true
	}
	assert.Equal(t, 50, m.Count())
}

func TestManagerRejectsUnknownTokens(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ctx, []byte("secret"), time.Hour, newMemPersister())
	require.NoError(t, err)
	other, err := NewManager(ctx, []byte("other-secret"), time.Hour, newMemPersister())
	require.NoError(t, err)
	forged, err := other.Create(ctx, analyst)
	require.NoError(t, err)

	for _, tok := range []string{"", "123456789", "not.a.jwt", forged.Token} {
		_, err := m.Resolve(ctx, tok)
		assert.True(t, apperr.Is(err, apperr.KindAuth), "token %q", tok)
		assert.False(t, m.IsValid(ctx, tok))
	}
}

func TestManagerExpiry(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	p := newMemPersister()
	m, err := NewManager(ctx, []byte("secret"), time.Hour, p, WithClock(c.now))
	require.NoError(t, err)

	s, err := m.Create(ctx, analyst)
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(time.Hour), s.ExpiresAt)

	c.t = c.t.Add(59 * time.Minute)
	assert.True(t, m.IsValid(ctx, s.Token))

	c.t = c.t.Add(2 * time.Minute)
	assert.False(t, m.IsValid(ctx, s.Token))
	assert.False(t, p.has(s.Record.ID))
	assert.Zero(t, m.Count())
}

func TestManagerSweep(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	p := newMemPersister()
	m, err := NewManager(ctx, []byte("secret"), time.Hour, p, WithClock(c.now))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, analyst)
		require.NoError(t, err)
	}
	c.t = c.t.Add(2 * time.Hour)
	assert.Equal(t, 3, m.Sweep(ctx))
	assert.Zero(t, m.Count())
	recs, _ := p.Load(ctx, c.t)
	assert.Empty(t, recs)
}

func TestManagerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.json")

	m1, err := NewManager(ctx, []byte("secret"), time.Hour, NewFilePersister(path))
	require.NoError(t, err)
	keep, err := m1.Create(ctx, analyst)
	require.NoError(t, err)
	drop, err := m1.Create(ctx, model.Identity{UserID: 12, Username: "admin", Role: "admin"})
	require.NoError(t, err)
	_, _, err = m1.Destroy(ctx, drop.Token)
	require.NoError(t, err)

	m2, err := NewManager(ctx, []byte("secret"), time.Hour, NewFilePersister(path))
	require.NoError(t, err)
	id, err := m2.Resolve(ctx, keep.Token)
	require.NoError(t, err)
	assert.Equal(t, analyst, id)
	assert.False(t, m2.IsValid(ctx, drop.Token))
}

func TestFilePersister(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	p := NewFilePersister(path)
	recs, err := p.Load(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, recs)

	live := model.SessionRecord{ID: "a", UserID: 1, Username: "analyst1", Role: "analyst", CreatedAt: now}
	old := model.SessionRecord{ID: "b", UserID: 2, Username: "analyst2", Role: "analyst", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, p.Save(ctx, live))
	require.NoError(t, p.Save(ctx, old))

	recs, err = NewFilePersister(path).Load(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are renamed into place")

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
	_, err = NewFilePersister(path).Load(ctx, now)
	assert.Error(t, err)
}

func TestRecordFromHash(t *testing.T) {
	rec, ok := recordFromHash("abc", map[string]string{
		"user_id": "4", "username": "analyst4", "role": "analyst", "created_at": "1700000000", "expires_at": "0",
	})
	require.True(t, ok)
	assert.Equal(t, "abc", rec.ID)
	assert.Equal(t, int64(4), rec.UserID)
	assert.True(t, rec.ExpiresAt.IsZero())

	_, ok = recordFromHash("abc", map[string]string{})
	assert.False(t, ok)
	_, ok = recordFromHash("abc", map[string]string{"user_id": "x", "created_at": "1", "expires_at": "0"})
	assert.False(t, ok)
}
