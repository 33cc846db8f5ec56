// Package tools exposes the review operations as named tools with JSON
// Schema inputs for an LLM agent, and serves them over the MCP JSON-RPC
// protocol.  Tools call the review service in-process.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bank-report-review/internal/apperr"
	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/repository"
	"github.com/iliyamo/bank-report-review/internal/service"
)

// Tool is one callable operation.
type Tool struct {
	Name        string
	Title       string
	Description string
	InputSchema json.RawMessage
	ReadOnly    bool

	run func(ctx context.Context, id model.Identity, args json.RawMessage) (string, error)
}

// Result is the outcome of a tool call.  Failures of the operation itself
// are results with IsError set, not Go errors.
type Result struct {
	Text      string
	IsError   bool
	Category  string
	Retryable bool
}

// SQL is the database access used by the schema and query tools.
type SQL interface {
	Describe(ctx context.Context) (repository.Schema, error)
	ReadOnlyQuery(ctx context.Context, query string, limit int) (repository.QueryResult, error)
}

// Observer receives the outcome of every call, e.g. a metrics counter.
type Observer func(tool, outcome string)

// Registry holds the tool set.
type Registry struct {
	tools    []Tool
	byName   map[string]*Tool
	review   service.Reviewer
	sql      SQL
	validate *validator.Validate
	log      logrus.FieldLogger
	observe  Observer

	// MaxRows caps the rows returned by execute_sql_query.
	MaxRows int
}

// ErrUnknownTool is returned by Call for names not in the registry.
var ErrUnknownTool = errors.New("unknown tool")

// NewRegistry builds the nine review tools and, when sql is not nil, the
// schema and query tools.
func NewRegistry(review service.Reviewer, sql SQL, log logrus.FieldLogger, observe Observer) *Registry {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	r := &Registry{
		review:   review,
		sql:      sql,
		validate: v,
		log:      log,
		observe:  observe,
		MaxRows:  200,
	}
	r.tools = r.reviewTools()
	if sql != nil {
		r.tools = append(r.tools, r.sqlTools()...)
	}
	r.byName = make(map[string]*Tool, len(r.tools))
	for i := range r.tools {
		r.byName[r.tools[i].Name] = &r.tools[i]
	}
	return r
}

// Tools returns the tool declarations in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the tool named name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return *t, true
}

// Call runs tool name with JSON arguments on behalf of id.  The only Go
// error is ErrUnknownTool; everything else is reported in the Result.
func (r *Registry) Call(ctx context.Context, id model.Identity, name string, args json.RawMessage) (Result, error) {
	t, ok := r.byName[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	start := time.Now()
	text, err := t.run(ctx, id, args)
	fields := logrus.Fields{"tool": name, "user": id.Username, "duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		info := classify(err)
		r.log.WithFields(fields).WithError(err).WithField("category", info.Category).Info("tools: call failed")
		r.record(name, info.Category)
		return Result{Text: "Error: " + err.Error(), IsError: true, Category: info.Category, Retryable: info.Retryable}, nil
	}
	r.log.WithFields(fields).Debug("tools: call")
	r.record(name, "ok")
	return Result{Text: text}, nil
}

func (r *Registry) record(name, outcome string) {
	if r.observe != nil {
		r.observe(name, outcome)
	}
}

// decode unmarshals args into dst and validates it.  Empty args decode as
// an empty object.
func (r *Registry) decode(args json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(args)) == 0 || string(bytes.TrimSpace(args)) == "null" {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return apperr.Invalid("invalid arguments: %v", err)
	}
	if err := r.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			var parts []string
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return apperr.Invalid("invalid arguments: %s", strings.Join(parts, ", "))
		}
		return apperr.Invalid("invalid arguments: %v", err)
	}
	return nil
}

func asJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", apperr.Storage(err, "encode result")
	}
	return string(b), nil
}

type errorInfo struct {
	Category  string `json:"category"`
	Retryable bool   `json:"retryable"`
}

// classify maps an error onto a tool error category: validation,
// not_found, forbidden, conflict, transient or internal.
func classify(err error) errorInfo {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errorInfo{Category: "transient", Retryable: true}
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return errorInfo{Category: "internal"}
	}
	switch ae.Kind {
	case apperr.KindInvalidInput:
		return errorInfo{Category: "validation"}
	case apperr.KindNotFound:
		return errorInfo{Category: "not_found"}
	case apperr.KindConflict:
		return errorInfo{Category: "conflict"}
	case apperr.KindAuth:
		return errorInfo{Category: "forbidden"}
	default:
		return errorInfo{Category: "internal"}
	}
}
