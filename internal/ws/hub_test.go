package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bank-report-review/internal/apperr"
	"github.com/iliyamo/bank-report-review/internal/events"
	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/session"
)

type fakeStore struct {
	session.Store
	recs map[string]model.SessionRecord
}

func (f fakeStore) Lookup(_ context.Context, token string) (model.SessionRecord, error) {
	if r, ok := f.recs[token]; ok {
		return r, nil
	}
	return model.SessionRecord{}, apperr.Auth(session.ErrUnauthorized)
}

func newServer(t *testing.T, h *Hub) string {
	t.Helper()
	store := fakeStore{recs: map[string]model.SessionRecord{
		"good":  {ID: "sid-1", UserID: 1, Username: "analyst1", Role: "analyst"},
		"other": {ID: "sid-2", UserID: 2, Username: "analyst2", Role: "analyst"},
	}}
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = h.Serve(r.Context(), conn, store)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, first string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(first)))
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	return c
}

func TestServeRejectsBadToken(t *testing.T) {
	log, _ := test.NewNullLogger()
	h := NewHub(log)
	url := newServer(t, h)

	for _, first := range []string{`{"token":"nope"}`, `{}`, `hello`} {
		c := dial(t, url, first)
		_, _, err := c.ReadMessage()
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce, first)
		assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
	}
	assert.Zero(t, h.Count())
}

func TestServeRegistersAndPushes(t *testing.T) {
	log, _ := test.NewNullLogger()
	h := NewHub(log)
	url := newServer(t, h)

	c := dial(t, url, `{"token":"good"}`)
	var ack map[string]any
	require.NoError(t, c.ReadJSON(&ack))
	assert.Equal(t, "connected", ack["type"])
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]int{"sid-1": 1}, h.Sessions())

	h.Broadcast(events.New(events.BankCreated, "analyst2", map[string]any{"id": 21}))
	var ev events.Event
	require.NoError(t, c.ReadJSON(&ev))
	assert.Equal(t, events.BankCreated, ev.Type)
	assert.Equal(t, "analyst2", ev.Actor)
}

func TestCloseSession(t *testing.T) {
	log, _ := test.NewNullLogger()
	h := NewHub(log)
	url := newServer(t, h)

	a := dial(t, url, `{"token":"good"}`)
	b := dial(t, url, `{"token":"other"}`)
	var ack map[string]any
	require.NoError(t, a.ReadJSON(&ack))
	require.NoError(t, b.ReadJSON(&ack))
	require.Eventually(t, func() bool { return h.Count() == 2 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, h.CloseSession("sid-1"))
	_, _, err := a.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	assert.Equal(t, map[string]int{"sid-2": 1}, h.Sessions())
	assert.Zero(t, h.CloseSession("sid-1"))
}

func TestUnregisterOnClientLeave(t *testing.T) {
	log, _ := test.NewNullLogger()
	h := NewHub(log)
	url := newServer(t, h)

	c := dial(t, url, `{"token":"good"}`)
	var ack map[string]any
	require.NoError(t, c.ReadJSON(&ack))
	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return h.Count() == 0 }, time.Second, 10*time.Millisecond)
}
