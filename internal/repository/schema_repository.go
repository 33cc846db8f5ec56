package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Column describes one table column.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// ForeignKey describes a column reference to another table.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencesTable  string `json:"references_table"`
	ReferencesColumn string `json:"references_column"`
}

// Table describes one table of the schema.
type Table struct {
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// Schema is the introspected database layout.
type Schema struct {
	DatabaseType string           `json:"database_type"`
	SQLDialect   string           `json:"sql_dialect"`
	Tables       map[string]Table `json:"tables"`
}

// QueryResult is the outcome of an ad hoc read-only query.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// SchemaRepo introspects the schema and runs ad hoc read-only queries for
// the SQL tools.
type SchemaRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewSchemaRepo(db *sqlx.DB) *SchemaRepo {
	return &SchemaRepo{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Describe returns every application table with its columns and foreign
// keys.
func (r *SchemaRepo) Describe(ctx context.Context) (Schema, error) {
	switch r.db.DriverName() {
	case "mysql":
		return r.describeMySQL(ctx)
	default:
		return r.describeSQLite(ctx)
	}
}

func (r *SchemaRepo) describeSQLite(ctx context.Context) (Schema, error) {
	s := Schema{DatabaseType: "SQLite", SQLDialect: "SQLite SQL", Tables: map[string]Table{}}

	q, args, err := r.qb.Select("name").From("sqlite_master").
		Where(sq.Eq{"type": "table"}).
		Where(sq.NotLike{"name": "sqlite_%"}).
		OrderBy("name").ToSql()
	if err != nil {
		return s, fmt.Errorf("build query: %w", err)
	}
	var names []string
	if err := r.db.SelectContext(ctx, &names, q, args...); err != nil {
		return s, err
	}

	for _, name := range names {
		var cols []struct {
			CID     int            `db:"cid"`
			Name    string         `db:"name"`
			Type    string         `db:"type"`
			NotNull bool           `db:"notnull"`
			Default sql.NullString `db:"dflt_value"`
			PK      int            `db:"pk"`
		}
		// table names come from sqlite_master, not from the caller
		if err := r.db.SelectContext(ctx, &cols, fmt.Sprintf("PRAGMA table_info(%q)", name)); err != nil {
			return s, err
		}
		var fks []struct {
			ID       int            `db:"id"`
			Seq      int            `db:"seq"`
			Table    string         `db:"table"`
			From     string         `db:"from"`
			To       sql.NullString `db:"to"`
			OnUpdate string         `db:"on_update"`
			OnDelete string         `db:"on_delete"`
			Match    string         `db:"match"`
		}
		if err := r.db.SelectContext(ctx, &fks, fmt.Sprintf("PRAGMA foreign_key_list(%q)", name)); err != nil {
			return s, err
		}

		t := Table{Columns: []Column{}, ForeignKeys: []ForeignKey{}}
		for _, c := range cols {
			t.Columns = append(t.Columns, Column{Name: c.Name, Type: c.Type, NotNull: c.NotNull, PrimaryKey: c.PK > 0})
		}
		for _, fk := range fks {
			t.ForeignKeys = append(t.ForeignKeys, ForeignKey{Column: fk.From, ReferencesTable: fk.Table, ReferencesColumn: fk.To.String})
		}
		s.Tables[name] = t
	}
	return s, nil
}

func (r *SchemaRepo) describeMySQL(ctx context.Context) (Schema, error) {
	s := Schema{DatabaseType: "MySQL", SQLDialect: "MySQL SQL", Tables: map[string]Table{}}

	q, args, err := r.qb.
		Select("table_name", "column_name", "column_type", "is_nullable", "column_key").
		From("information_schema.columns").
		Where("table_schema = DATABASE()").
		OrderBy("table_name", "ordinal_position").ToSql()
	if err != nil {
		return s, fmt.Errorf("build query: %w", err)
	}
	var cols []struct {
		Table    string `db:"table_name"`
		Column   string `db:"column_name"`
		Type     string `db:"column_type"`
		Nullable string `db:"is_nullable"`
		Key      string `db:"column_key"`
	}
	if err := r.db.SelectContext(ctx, &cols, q, args...); err != nil {
		return s, err
	}
	for _, c := range cols {
		t, ok := s.Tables[c.Table]
		if !ok {
			t = Table{Columns: []Column{}, ForeignKeys: []ForeignKey{}}
		}
		t.Columns = append(t.Columns, Column{Name: c.Column, Type: c.Type, NotNull: c.Nullable == "NO", PrimaryKey: c.Key == "PRI"})
		s.Tables[c.Table] = t
	}

	q, args, err = r.qb.
		Select("table_name", "column_name", "referenced_table_name", "referenced_column_name").
		From("information_schema.key_column_usage").
		Where("table_schema = DATABASE()").
		Where(sq.NotEq{"referenced_table_name": nil}).ToSql()
	if err != nil {
		return s, fmt.Errorf("build query: %w", err)
	}
	var fks []struct {
		Table     string `db:"table_name"`
		Column    string `db:"column_name"`
		RefTable  string `db:"referenced_table_name"`
		RefColumn string `db:"referenced_column_name"`
	}
	if err := r.db.SelectContext(ctx, &fks, q, args...); err != nil {
		return s, err
	}
	for _, fk := range fks {
		t := s.Tables[fk.Table]
		t.ForeignKeys = append(t.ForeignKeys, ForeignKey{Column: fk.Column, ReferencesTable: fk.RefTable, ReferencesColumn: fk.RefColumn})
		s.Tables[fk.Table] = t
	}
	return s, nil
}

// ReadOnlyQuery runs a single statement with writes disabled and returns at
// most limit rows (0 = unlimited).  Byte slices are returned as strings.
func (r *SchemaRepo) ReadOnlyQuery(ctx context.Context, query string, limit int) (QueryResult, error) {
	var res QueryResult
	conn, err := r.db.Connx(ctx)
	if err != nil {
		return res, err
	}
	defer conn.Close()

	var rows *sqlx.Rows
	switch r.db.DriverName() {
	case "mysql":
		tx, err := conn.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return res, err
		}
		defer tx.Rollback()
		rows, err = tx.QueryxContext(ctx, query)
		if err != nil {
			return res, err
		}
	default:
		if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			return res, err
		}
		defer conn.ExecContext(context.Background(), "PRAGMA query_only = OFF")
		rows, err = conn.QueryxContext(ctx, query)
		if err != nil {
			return res, err
		}
	}
	defer rows.Close()

	if res.Columns, err = rows.Columns(); err != nil {
		return res, err
	}
	for rows.Next() {
		if limit > 0 && len(res.Rows) >= limit {
			break
		}
		vals, err := rows.SliceScan()
		if err != nil {
			return res, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}
