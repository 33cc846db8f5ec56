package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/iliyamo/bank-report-review/internal/apperr"
	"github.com/iliyamo/bank-report-review/internal/model"
)

type queryArgs struct {
	SQLQuery string `json:"sql_query" validate:"required,max=10000"`
}

func (r *Registry) sqlTools() []Tool {
	return []Tool{
		{
			Name:        "get_database_schema",
			Title:       "Describe the database",
			Description: "Get the database type, SQL dialect and every table with its columns and foreign keys. Call this before writing a SQL query.",
			InputSchema: json.RawMessage(emptySchema),
			ReadOnly:    true,
			run: func(ctx context.Context, _ model.Identity, args json.RawMessage) (string, error) {
				if err := r.decode(args, &noArgs{}); err != nil {
					return "", err
				}
				schema, err := r.sql.Describe(ctx)
				if err != nil {
					return "", apperr.Storage(err, "describe schema")
				}
				return asJSON(schema)
			},
		},
		{
			Name:        "execute_sql_query",
			Title:       "Run a read-only SQL query",
			Description: "Run one SELECT (or WITH ... SELECT) statement against the review database and get the result as a markdown table. Writes are rejected.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"sql_query":{"type":"string","minLength":1,"description":"A single SELECT statement"}},"required":["sql_query"],"additionalProperties":false}`),
			ReadOnly:    true,
			run: func(ctx context.Context, _ model.Identity, args json.RawMessage) (string, error) {
				var a queryArgs
				if err := r.decode(args, &a); err != nil {
					return "", err
				}
				query, err := readOnlyStatement(a.SQLQuery)
				if err != nil {
					return "", err
				}
				res, err := r.sql.ReadOnlyQuery(ctx, query, r.MaxRows)
				if err != nil {
					// Driver messages are the useful part for the model.
					return "", apperr.Invalid("%v", err)
				}
				return markdownTable(res.Columns, res.Rows), nil
			},
		},
	}
}

// readOnlyStatement accepts a single SELECT or WITH statement, optionally
// terminated by a semicolon, and returns it without the terminator.
func readOnlyStatement(q string) (string, error) {
	q = strings.TrimSpace(q)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	if q == "" {
		return "", apperr.Invalid("empty query")
	}
	if strings.Contains(q, ";") {
		return "", apperr.Invalid("only a single statement is allowed")
	}
	first := strings.ToUpper(strings.Fields(q)[0])
	if i := strings.IndexByte(first, '('); i >= 0 {
		first = first[:i]
	}
	if first != "SELECT" && first != "WITH" {
		return "", apperr.Invalid("only SELECT queries are allowed")
	}
	return q, nil
}
