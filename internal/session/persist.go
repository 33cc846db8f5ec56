package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/repository"
)

// SQLPersister stores sessions in the sessions table.
type SQLPersister struct{ Repo *repository.SessionRepo }

func (p SQLPersister) Load(ctx context.Context, now time.Time) ([]model.SessionRecord, error) {
	return p.Repo.ListActive(ctx, now)
}

func (p SQLPersister) Save(ctx context.Context, rec model.SessionRecord) error {
	return p.Repo.Insert(ctx, rec)
}

func (p SQLPersister) Delete(ctx context.Context, id string) error {
	return p.Repo.Delete(ctx, id)
}

// FilePersister mirrors the active set into a JSON file.  The whole file is
// rewritten on every change through a temporary file and a rename, so a
// reader never sees a partial write.
type FilePersister struct {
	path string

	mu   sync.Mutex
	recs map[string]model.SessionRecord
}

// NewFilePersister returns a persister writing to path.  The file is read
// by Load.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path, recs: map[string]model.SessionRecord{}}
}

func (p *FilePersister) Load(_ context.Context, now time.Time) ([]model.SessionRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []model.SessionRecord
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p.path, err)
		}
	}
	out := make([]model.SessionRecord, 0, len(recs))
	p.recs = map[string]model.SessionRecord{}
	for _, r := range recs {
		if r.Expired(now) {
			continue
		}
		p.recs[r.ID] = r
		out = append(out, r)
	}
	if len(out) != len(recs) {
		return out, p.flush()
	}
	return out, nil
}

func (p *FilePersister) Save(_ context.Context, rec model.SessionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs[rec.ID] = rec
	return p.flush()
}

func (p *FilePersister) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.recs[id]; !ok {
		return nil
	}
	delete(p.recs, id)
	return p.flush()
}

// flush writes p.recs; callers hold p.mu.
func (p *FilePersister) flush() error {
	recs := make([]model.SessionRecord, 0, len(p.recs))
	for _, r := range p.recs {
		recs = append(recs, r)
	}
	raw, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".sessions-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

// RedisPersister stores each session as a hash under Prefix+id.  Hashes of
// expiring sessions carry a matching key TTL so Redis drops them on its own.
type RedisPersister struct {
	Client *redis.Client
	Prefix string
}

// NewRedisPersister returns a persister using keys "session:<id>".
func NewRedisPersister(c *redis.Client) *RedisPersister {
	return &RedisPersister{Client: c, Prefix: "session:"}
}

func (p *RedisPersister) Load(ctx context.Context, now time.Time) ([]model.SessionRecord, error) {
	var out []model.SessionRecord
	iter := p.Client.Scan(ctx, 0, p.Prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := p.Client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		rec, ok := recordFromHash(strings.TrimPrefix(key, p.Prefix), fields)
		if !ok || rec.Expired(now) {
			continue
		}
		out = append(out, rec)
	}
	return out, iter.Err()
}

func (p *RedisPersister) Save(ctx context.Context, rec model.SessionRecord) error {
	key := p.Prefix + rec.ID
	var exp int64
	if !rec.ExpiresAt.IsZero() {
		exp = rec.ExpiresAt.Unix()
	}
	pipe := p.Client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"user_id":    rec.UserID,
		"username":   rec.Username,
		"role":       rec.Role,
		"created_at": rec.CreatedAt.Unix(),
		"expires_at": exp,
	})
	if exp > 0 {
		pipe.ExpireAt(ctx, key, rec.ExpiresAt)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPersister) Delete(ctx context.Context, id string) error {
	return p.Client.Del(ctx, p.Prefix+id).Err()
}

func recordFromHash(id string, f map[string]string) (model.SessionRecord, bool) {
	if len(f) == 0 {
		return model.SessionRecord{}, false
	}
	uid, err1 := strconv.ParseInt(f["user_id"], 10, 64)
	created, err2 := strconv.ParseInt(f["created_at"], 10, 64)
	exp, err3 := strconv.ParseInt(f["expires_at"], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return model.SessionRecord{}, false
	}
	rec := model.SessionRecord{
		ID:        id,
		UserID:    uid,
		Username:  f["username"],
		Role:      f["role"],
		CreatedAt: time.Unix(created, 0).UTC(),
	}
	if exp > 0 {
		rec.ExpiresAt = time.Unix(exp, 0).UTC()
	}
	return rec, true
}
