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

// ReportRepo reads reports joined with their bank and records review
// decisions.
type ReportRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewReportRepo(db *sqlx.DB) *ReportRepo {
	return &ReportRepo{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

func (r *ReportRepo) selectReports() sq.SelectBuilder {
	return r.qb.
		Select("r.id", "r.bank_id", "r.report_code", "r.submission_date", "r.has_errors",
			"r.is_accepted", "b.aba_code", "b.name AS bank_name").
		From("reports r").
		Join("banks b ON b.id = r.bank_id").
		OrderBy("r.submission_date DESC", "r.id DESC")
}

// statusPredicate maps a derived status onto the stored columns.
func statusPredicate(status model.ReportStatus) (sq.Sqlizer, error) {
	switch status {
	case model.StatusAccepted:
		return sq.Eq{"r.is_accepted": true}, nil
	case model.StatusRejected:
		return sq.And{sq.Eq{"r.is_accepted": false}, sq.Eq{"r.has_errors": true}}, nil
	case model.StatusPending:
		return sq.Eq{"r.is_accepted": nil}, nil
	}
	return nil, fmt.Errorf("no filter for status %q", status)
}

// List returns all reports, newest submission first.
func (r *ReportRepo) List(ctx context.Context) ([]model.Report, error) {
	return r.query(ctx, r.selectReports())
}

// ListByStatus returns the reports whose derived status equals status.
func (r *ReportRepo) ListByStatus(ctx context.Context, status model.ReportStatus) ([]model.Report, error) {
	pred, err := statusPredicate(status)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, r.selectReports().Where(pred))
}

// GetByID returns a single report or ErrNotFound.
func (r *ReportRepo) GetByID(ctx context.Context, id int64) (model.Report, error) {
	reports, err := r.query(ctx, r.selectReports().Where(sq.Eq{"r.id": id}))
	if err != nil {
		return model.Report{}, err
	}
	if len(reports) == 0 {
		return model.Report{}, ErrNotFound
	}
	return reports[0], nil
}

func (r *ReportRepo) query(ctx context.Context, b sq.SelectBuilder) ([]model.Report, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	reports := []model.Report{}
	if err := r.db.SelectContext(ctx, &reports, q, args...); err != nil {
		return nil, err
	}
	for i := range reports {
		reports[i].Derive()
	}
	return reports, nil
}

// SetDecision records an accept (true) or reject (false) decision.  A
// report may be decided again; the last write wins.
func (r *ReportRepo) SetDecision(ctx context.Context, id int64, accepted bool) error {
	res, err := r.db.ExecContext(ctx, "UPDATE reports SET is_accepted = ? WHERE id = ?", accepted, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Exists reports whether a report with id exists.
func (r *ReportRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM reports WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
