package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bank-report-review/internal/config"
	"github.com/iliyamo/bank-report-review/internal/metrics"
	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/session"
)

type memPersister struct{}

func (memPersister) Load(context.Context, time.Time) ([]model.SessionRecord, error) { return nil, nil }
func (memPersister) Save(context.Context, model.SessionRecord) error                 { return nil }
func (memPersister) Delete(context.Context, string) error                            { return nil }

func newStore(t *testing.T) *session.Manager {
	t.Helper()
	m, err := session.NewManager(context.Background(), []byte("k"), time.Hour, memPersister{})
	require.NoError(t, err)
	return m
}

func whoami(c echo.Context) error {
	id, ok := Identity(c)
	if !ok {
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, echo.Map{"username": id.Username, "token": Token(c) != "", "uid": userID(c)})
}

func TestSessionAuth(t *testing.T) {
	store := newStore(t)
	e := echo.New()
	e.GET("/me", whoami, SessionAuth(store))

	sess, err := store.Create(context.Background(), model.Identity{UserID: 4, Username: "analyst4", Role: "analyst"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + sess.Token, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"valid", "Bearer " + sess.Token, http.StatusOK},
		{"lower-case scheme", "bearer " + sess.Token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"username":"analyst4","token":true,"uid":"4"}`, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"kind":"auth"`)
			}
		})
	}

	// A destroyed session is rejected even though its signature is valid.
	_, _, err = store.Destroy(context.Background(), sess.Token)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	log, _ := test.NewNullLogger()
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		RateLimit(config.RateLimitConfig{Enabled: true}, nil, log))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/chat")

	assert.Equal(t, "rl:ip:10.0.0.7:route:POST /api/chat", rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_route"}, c))
	assert.Equal(t, "rl:user:anon", rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c))
	c.Set(ctxUserID, "9")
	assert.Equal(t, "rl:user:9:route:POST /api/chat", rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "USER_ROUTE"}, c))
}

func TestMetricsAndLogger(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, reg)
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	e := echo.New()
	e.Use(RequestLogger(log), Metrics(m))
	e.GET("/api/banks/:id", func(c echo.Context) error { return c.NoContent(http.StatusNotFound) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/banks/7", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	n, err := testutil.GatherAndCount(reg, "review_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NotEmpty(t, hook.AllEntries())
	last := hook.LastEntry()
	assert.Equal(t, "/api/banks/:id", last.Data["route"])
	assert.Equal(t, 404, last.Data["status"])
}
