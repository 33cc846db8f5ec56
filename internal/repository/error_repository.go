package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/bank-report-review/internal/model"
)

// ErrorRepo reads validation errors together with their comment threads
// and appends comments.
type ErrorRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewErrorRepo(db *sqlx.DB) *ErrorRepo {
	return &ErrorRepo{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// ListByReport returns the validation errors of a report ordered by id.
// Each error carries its comments in creation order with the author's
// username; errors without comments have an empty slice.
func (r *ErrorRepo) ListByReport(ctx context.Context, reportID int64) ([]model.ValidationError, error) {
	errs := []model.ValidationError{}
	if err := r.db.SelectContext(ctx, &errs,
		"SELECT id, report_id, error_type, error_message, field_name FROM validation_errors WHERE report_id = ? ORDER BY id",
		reportID); err != nil {
		return nil, err
	}
	if len(errs) == 0 {
		return errs, nil
	}

	ids := make([]int64, len(errs))
	byID := make(map[int64]int, len(errs))
	for i := range errs {
		ids[i] = errs[i].ID
		byID[errs[i].ID] = i
		errs[i].Comments = []model.ErrorComment{}
	}

	q, args, err := r.selectComments().Where(sq.Eq{"c.error_id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var comments []model.ErrorComment
	if err := r.db.SelectContext(ctx, &comments, q, args...); err != nil {
		return nil, err
	}
	for _, c := range comments {
		i := byID[c.ErrorID]
		errs[i].Comments = append(errs[i].Comments, c)
	}
	return errs, nil
}

func (r *ErrorRepo) selectComments() sq.SelectBuilder {
	return r.qb.
		Select("c.id", "c.error_id", "c.user_id", "u.username", "c.comment", "c.created_at").
		From("error_comments c").
		Join("users u ON u.id = c.user_id").
		OrderBy("c.created_at", "c.id")
}

// Exists reports whether a validation error with id exists.
func (r *ErrorRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM validation_errors WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// AddComment appends c to its error's thread and fills in the ID and the
// author's username.  CreatedAt must already be set.
func (r *ErrorRepo) AddComment(ctx context.Context, c *model.ErrorComment) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO error_comments (error_id, user_id, comment, created_at) VALUES (?, ?, ?, ?)",
		c.ErrorID, c.UserID, c.Comment, c.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	q, args, err := r.selectComments().Where(sq.Eq{"c.id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return r.db.GetContext(ctx, c, q, args...)
}
