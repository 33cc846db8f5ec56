package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/bank-report-review/internal/config"
	"github.com/iliyamo/bank-report-review/internal/database"
	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/repository"
	"github.com/iliyamo/bank-report-review/internal/service"
)

var analyst = model.Identity{UserID: 1, Username: "analyst1", Role: "analyst"}

type outcomes struct {
	mu  sync.Mutex
	got map[string]string
}

func (o *outcomes) observe(tool, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got[tool] = outcome
}

func newRegistry(t *testing.T) (*Registry, *outcomes) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DBConfig{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "tools.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	_, err = database.Seed(ctx, db, database.SeedOptions{Reports: 30, BcryptCost: bcrypt.MinCost, Rand: rand.New(rand.NewSource(5))})
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	review := service.NewReviewService(repository.NewBankRepo(db), repository.NewReportRepo(db), repository.NewErrorRepo(db), nil, log)
	o := &outcomes{got: map[string]string{}}
	return NewRegistry(review, repository.NewSchemaRepo(db), log, o.observe), o
}

func call(t *testing.T, r *Registry, name, args string) Result {
	t.Helper()
	res, err := r.Call(context.Background(), analyst, name, json.RawMessage(args))
	require.NoError(t, err)
	return res
}

func TestRegistryNames(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Equal(t, []string{
		"add_error_comment", "create_bank", "delete_bank", "execute_sql_query",
		"get_banks", "get_database_schema", "get_report_errors", "get_reports",
		"get_reports_by_status", "update_bank", "update_report_status",
	}, r.Names())

	for _, tl := range r.Tools() {
		var schema map[string]any
		require.NoError(t, json.Unmarshal(tl.InputSchema, &schema), tl.Name)
		assert.Equal(t, "object", schema["type"], tl.Name)
		assert.NotEmpty(t, tl.Description, tl.Name)
	}

	log, _ := test.NewNullLogger()
	without := NewRegistry(nil, nil, log, nil)
	assert.Len(t, without.Tools(), 9)
	_, ok := without.Lookup("execute_sql_query")
	assert.False(t, ok)
}

func TestCallUnknownTool(t *testing.T) {
	r, _ := newRegistry(t)
	_, err := r.Call(context.Background(), analyst, "drop_everything", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestReadTools(t *testing.T) {
	r, o := newRegistry(t)

	res := call(t, r, "get_banks", "")
	require.False(t, res.IsError, res.Text)
	var banks []model.Bank
	require.NoError(t, json.Unmarshal([]byte(res.Text), &banks))
	assert.Len(t, banks, 20)
	assert.Equal(t, "ok", o.got["get_banks"])

	res = call(t, r, "get_reports", "{}")
	var reports []model.Report
	require.NoError(t, json.Unmarshal([]byte(res.Text), &reports))
	assert.Len(t, reports, 30)

	res = call(t, r, "get_reports_by_status", `{"status":"pending"}`)
	require.False(t, res.IsError, res.Text)
	var pending []model.Report
	require.NoError(t, json.Unmarshal([]byte(res.Text), &pending))
	for _, rep := range pending {
		assert.Nil(t, rep.IsAccepted)
	}

	res = call(t, r, "get_reports_by_status", `{"status":"lost"}`)
	assert.True(t, res.IsError)
	assert.Equal(t, "validation", res.Category)
	assert.Equal(t, "validation", o.got["get_reports_by_status"])

	res = call(t, r, "get_report_errors", `{"report_id": 999999}`)
	assert.True(t, res.IsError)
	assert.Equal(t, "not_found", res.Category)
	assert.False(t, res.Retryable)
}

func TestArgumentValidation(t *testing.T) {
	r, _ := newRegistry(t)

	res := call(t, r, "update_report_status", `{"report_id": 1}`)
	assert.True(t, res.IsError)
	assert.Equal(t, "validation", res.Category)
	assert.Contains(t, res.Text, "is_accepted")

	res = call(t, r, "add_error_comment", `{"error_id": "x", "comment": "hi"}`)
	assert.True(t, res.IsError)
	assert.Equal(t, "validation", res.Category)

	res = call(t, r, "create_bank", `{"aba_code": "", "name": "X"}`)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text, "aba_code")
}

func TestDecisionAndComment(t *testing.T) {
	r, _ := newRegistry(t)

	res := call(t, r, "update_report_status", `{"report_id": 1, "is_accepted": false}`)
	require.False(t, res.IsError, res.Text)
	var out struct {
		Success bool         `json:"success"`
		Report  model.Report `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Text), &out))
	assert.True(t, out.Success)
	require.NotNil(t, out.Report.IsAccepted)
	assert.False(t, *out.Report.IsAccepted)

	res = call(t, r, "get_database_schema", "")
	require.False(t, res.IsError, res.Text)

	res = call(t, r, "execute_sql_query", `{"sql_query": "SELECT id FROM validation_errors ORDER BY id LIMIT 1"}`)
	require.False(t, res.IsError, res.Text)

	res = call(t, r, "add_error_comment", `{"error_id": 1, "comment": "checked with the bank"}`)
	require.False(t, res.IsError, res.Text)
	var added struct {
		Comment model.ErrorComment `json:"comment"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Text), &added))
	assert.Equal(t, "analyst1", added.Comment.Username)
	assert.Equal(t, "checked with the bank", added.Comment.Comment)
}

func TestBankLifecycle(t *testing.T) {
	r, _ := newRegistry(t)

	res := call(t, r, "create_bank", `{"aba_code": "999999999", "name": "Test Bank"}`)
	require.False(t, res.IsError, res.Text)
	var created struct {
		Bank model.Bank `json:"bank"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Text), &created))
	require.NotZero(t, created.Bank.ID)

	res = call(t, r, "create_bank", `{"aba_code": "999999999", "name": "Other"}`)
	assert.True(t, res.IsError)
	assert.Equal(t, "conflict", res.Category)

	id := created.Bank.ID
	res = call(t, r, "update_bank", jsonArgs(t, map[string]any{"bank_id": id, "aba_code": "999999998", "name": "Renamed"}))
	require.False(t, res.IsError, res.Text)

	res = call(t, r, "delete_bank", jsonArgs(t, map[string]any{"bank_id": id}))
	require.False(t, res.IsError, res.Text)
	res = call(t, r, "delete_bank", jsonArgs(t, map[string]any{"bank_id": id}))
	assert.Equal(t, "not_found", res.Category)

	// A bank that still has reports cannot be deleted.
	res = call(t, r, "get_reports", "")
	var reports []model.Report
	require.NoError(t, json.Unmarshal([]byte(res.Text), &reports))
	require.NotEmpty(t, reports)
	res = call(t, r, "delete_bank", jsonArgs(t, map[string]any{"bank_id": reports[0].BankID}))
	assert.True(t, res.IsError)
	assert.Equal(t, "conflict", res.Category)
	assert.Contains(t, res.Text, "associated report(s)")
}

func jsonArgs(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestExecuteSQLQuery(t *testing.T) {
	r, _ := newRegistry(t)

	res := call(t, r, "execute_sql_query", `{"sql_query": "SELECT COUNT(*) AS n FROM banks;"}`)
	require.False(t, res.IsError, res.Text)
	assert.Equal(t, "| n |\n| --- |\n| 20 |\n\n*1 row(s) returned*", res.Text)

	res = call(t, r, "execute_sql_query", `{"sql_query": "SELECT id FROM banks WHERE id < 0"}`)
	require.False(t, res.IsError, res.Text)
	assert.Equal(t, "No data to display.", res.Text)

	for _, q := range []string{
		"DELETE FROM banks",
		"SELECT 1; DELETE FROM banks",
		"   ",
		"UPDATE reports SET is_accepted = 1",
	} {
		res = call(t, r, "execute_sql_query", jsonArgs(t, map[string]any{"sql_query": q}))
		assert.True(t, res.IsError, q)
		assert.Equal(t, "validation", res.Category, q)
	}

	res = call(t, r, "execute_sql_query", `{"sql_query": "SELECT nope FROM banks"}`)
	assert.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(res.Text, "Error: "))

	// The query tool cannot write even when the statement sneaks past the
	// keyword check.
	res = call(t, r, "execute_sql_query", `{"sql_query": "WITH x AS (SELECT 1) DELETE FROM banks"}`)
	assert.True(t, res.IsError)
	res = call(t, r, "get_banks", "")
	var banks []model.Bank
	require.NoError(t, json.Unmarshal([]byte(res.Text), &banks))
	assert.Len(t, banks, 20)

	r.MaxRows = 3
	res = call(t, r, "execute_sql_query", `{"sql_query": "SELECT id FROM banks"}`)
	assert.Contains(t, res.Text, "*3 row(s) returned*")
}

func TestReadOnlyStatement(t *testing.T) {
	q, err := readOnlyStatement("  select * from banks ;; ")
	require.NoError(t, err)
	assert.Equal(t, "select * from banks", q)

	_, err = readOnlyStatement("SELECT(1)")
	assert.NoError(t, err)
	_, err = readOnlyStatement("PRAGMA table_info(banks)")
	assert.Error(t, err)
}

func TestMarkdownTable(t *testing.T) {
	got := markdownTable([]string{"id", "note"}, [][]any{{int64(1), "a|b"}, {int64(2), nil}})
	assert.Equal(t, "| id | note |\n| --- | --- |\n| 1 | a\\|b |\n| 2 | NULL |\n\n*2 row(s) returned*", got)
	assert.Equal(t, "No data to display.", markdownTable(nil, nil))
}

func rpc(t *testing.T, s *Server, st *State, msg string) map[string]any {
	t.Helper()
	reply := s.Handle(context.Background(), st, []byte(msg))
	require.NotNil(t, reply, msg)
	var out map[string]any
	require.NoError(t, json.Unmarshal(reply, &out))
	return out
}

func TestMCPHandle(t *testing.T) {
	r, _ := newRegistry(t)
	s := NewServer(r, "bank-report-review", "test")
	st := NewState(analyst)

	out := rpc(t, s, st, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	assert.EqualValues(t, codeInvalidRequest, out["error"].(map[string]any)["code"])

	out = rpc(t, s, st, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"t"}}}`)
	result := out["result"].(map[string]any)
	assert.Equal(t, protocolVersion, result["protocolVersion"])
	assert.True(t, st.Initialized())

	assert.Nil(t, s.Handle(context.Background(), st, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))

	out = rpc(t, s, st, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	listed := out["result"].(map[string]any)["tools"].([]any)
	assert.Len(t, listed, 11)

	out = rpc(t, s, st, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"update_report_status","arguments":{"report_id":2,"is_accepted":true}}}`)
	cr := out["result"].(map[string]any)
	assert.Nil(t, cr["isError"])
	assert.NotNil(t, cr["structuredContent"])

	out = rpc(t, s, st, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"get_report_errors","arguments":{"report_id":424242}}}`)
	cr = out["result"].(map[string]any)
	assert.Equal(t, true, cr["isError"])
	assert.Equal(t, "not_found", cr["errorInfo"].(map[string]any)["category"])

	out = rpc(t, s, st, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"nope"}}`)
	assert.EqualValues(t, codeInvalidParams, out["error"].(map[string]any)["code"])

	out = rpc(t, s, st, `{"jsonrpc":"2.0","id":7,"method":"resources/list"}`)
	assert.EqualValues(t, codeMethodNotFound, out["error"].(map[string]any)["code"])

	out = rpc(t, s, st, `{not json`)
	assert.EqualValues(t, codeParseError, out["error"].(map[string]any)["code"])

	out = rpc(t, s, st, `{"jsonrpc":"1.0","id":8,"method":"ping"}`)
	assert.EqualValues(t, codeInvalidRequest, out["error"].(map[string]any)["code"])
}

func TestMCPRun(t *testing.T) {
	r, _ := newRegistry(t)
	s := NewServer(r, "bank-report-review", "test")

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25"}}`,
		``,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_banks","arguments":{}}}`,
	}, "\n"))
	var out bytes.Buffer
	require.NoError(t, s.Run(context.Background(), in, &out, analyst))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"protocolVersion"`)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":{}}`, lines[1])
	assert.Contains(t, lines[2], "aba_code")
}

func TestSessions(t *testing.T) {
	s := NewSessions()
	st := NewState(analyst)
	id := s.Put("sid-a", st)

	got, ok := s.Get(id, "sid-a")
	require.True(t, ok)
	assert.Same(t, st, got)

	_, ok = s.Get(id, "sid-b")
	assert.False(t, ok)
	assert.False(t, s.Close(id, "sid-b"))

	s.Put("sid-a", NewState(analyst))
	s.Put("sid-b", NewState(analyst))
	assert.Equal(t, 2, s.CloseOwner("sid-a"))
	assert.Equal(t, 1, s.Len())
}
