// Package service implements the review operations and login/logout on top
// of the repositories.  Every error it returns is an *apperr.Error.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bank-report-review/internal/apperr"
	"github.com/iliyamo/bank-report-review/internal/config"
	"github.com/iliyamo/bank-report-review/internal/database"
	"github.com/iliyamo/bank-report-review/internal/events"
	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/repository"
)

// Reviewer is the set of review operations shared by the REST handlers and
// the agent tools.
type Reviewer interface {
	ListBanks(ctx context.Context) ([]model.Bank, error)
	ListReports(ctx context.Context) ([]model.Report, error)
	ListReportsByStatus(ctx context.Context, status string) ([]model.Report, error)
	ListReportErrors(ctx context.Context, reportID int64) ([]model.ValidationError, error)
	AddComment(ctx context.Context, actor model.Identity, errorID int64, text string) (model.ErrorComment, error)
	SetReportDecision(ctx context.Context, actor model.Identity, reportID int64, accepted bool) (model.Report, error)
	CreateBank(ctx context.Context, actor model.Identity, abaCode, name string) (model.Bank, error)
	UpdateBank(ctx context.Context, actor model.Identity, id int64, abaCode, name string) (model.Bank, error)
	DeleteBank(ctx context.Context, actor model.Identity, id int64) error
}

const module = "service"

// ReviewService is the Reviewer backed by the SQL repositories.
type ReviewService struct {
	banks   *repository.BankRepo
	reports *repository.ReportRepo
	errs    *repository.ErrorRepo
	events  events.Publisher
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewReviewService wires the repositories.  A nil publisher discards
// events.
func NewReviewService(banks *repository.BankRepo, reports *repository.ReportRepo, errs *repository.ErrorRepo, pub events.Publisher, log logrus.FieldLogger) *ReviewService {
	if pub == nil {
		pub = events.Discard{}
	}
	return &ReviewService{banks: banks, reports: reports, errs: errs, events: pub, log: log, now: time.Now}
}

var _ Reviewer = (*ReviewService)(nil)

func (s *ReviewService) storage(fn string, data any, err error, msg string) error {
	config.LogError(s.log, module, fn, data, err)
	return apperr.Storage(err, msg)
}

func (s *ReviewService) publish(ctx context.Context, typ string, actor model.Identity, data any) {
	_ = s.events.Publish(ctx, events.New(typ, actor.Username, data))
}

func (s *ReviewService) ListBanks(ctx context.Context) ([]model.Bank, error) {
	banks, err := s.banks.List(ctx)
	if err != nil {
		return nil, s.storage("ListBanks", nil, err, "list banks failed")
	}
	return banks, nil
}

func (s *ReviewService) ListReports(ctx context.Context) ([]model.Report, error) {
	reports, err := s.reports.List(ctx)
	if err != nil {
		return nil, s.storage("ListReports", nil, err, "list reports failed")
	}
	return reports, nil
}

// ListReportsByStatus filters by accepted, rejected or pending.  Any other
// value is an input error rather than an empty result.
func (s *ReviewService) ListReportsByStatus(ctx context.Context, status string) ([]model.Report, error) {
	st, ok := model.ParseReportStatus(status)
	if !ok {
		return nil, apperr.Invalid("Invalid status. Use: accepted, rejected, or pending").With("status", status)
	}
	reports, err := s.reports.ListByStatus(ctx, st)
	if err != nil {
		return nil, s.storage("ListReportsByStatus", status, err, "list reports failed")
	}
	return reports, nil
}

func (s *ReviewService) ListReportErrors(ctx context.Context, reportID int64) ([]model.ValidationError, error) {
	ok, err := s.reports.Exists(ctx, reportID)
	if err != nil {
		return nil, s.storage("ListReportErrors", reportID, err, "load report failed")
	}
	if !ok {
		return nil, apperr.NotFound("report %d not found", reportID)
	}
	list, err := s.errs.ListByReport(ctx, reportID)
	if err != nil {
		return nil, s.storage("ListReportErrors", reportID, err, "list validation errors failed")
	}
	return list, nil
}

// AddComment appends text to the comment thread of a validation error on
// behalf of actor.
func (s *ReviewService) AddComment(ctx context.Context, actor model.Identity, errorID int64, text string) (model.ErrorComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ErrorComment{}, apperr.Invalid("comment must not be empty")
	}
	ok, err := s.errs.Exists(ctx, errorID)
	if err != nil {
		return model.ErrorComment{}, s.storage("AddComment", errorID, err, "load validation error failed")
	}
	if !ok {
		return model.ErrorComment{}, apperr.NotFound("validation error %d not found", errorID)
	}
	c := model.ErrorComment{
		ErrorID:   errorID,
		UserID:    actor.UserID,
		Comment:   text,
		CreatedAt: s.now().UTC().Format(database.TimestampLayout),
	}
	if err := s.errs.AddComment(ctx, &c); err != nil {
		return model.ErrorComment{}, s.storage("AddComment", errorID, err, "add comment failed")
	}
	s.publish(ctx, events.CommentAdded, actor, c)
	return c, nil
}

// SetReportDecision records accept or reject.  Re-deciding a report
// overwrites the previous decision.
func (s *ReviewService) SetReportDecision(ctx context.Context, actor model.Identity, reportID int64, accepted bool) (model.Report, error) {
	if err := s.reports.SetDecision(ctx, reportID, accepted); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Report{}, apperr.NotFound("report %d not found", reportID)
		}
		return model.Report{}, s.storage("SetReportDecision", reportID, err, "update report status failed")
	}
	r, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return model.Report{}, s.storage("SetReportDecision", reportID, err, "load report failed")
	}
	s.publish(ctx, events.ReportDecided, actor, r)
	return r, nil
}

func bankInput(abaCode, name string) (string, string, error) {
	abaCode, name = strings.TrimSpace(abaCode), strings.TrimSpace(name)
	if abaCode == "" || name == "" {
		return "", "", apperr.Invalid("aba_code and name are required")
	}
	return abaCode, name, nil
}

func (s *ReviewService) CreateBank(ctx context.Context, actor model.Identity, abaCode, name string) (model.Bank, error) {
	abaCode, name, err := bankInput(abaCode, name)
	if err != nil {
		return model.Bank{}, err
	}
	b := model.Bank{ABACode: abaCode, Name: name}
	if err := s.banks.Create(ctx, &b); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Bank{}, apperr.Conflict("a bank with ABA code %s already exists", abaCode).With("aba_code", abaCode)
		}
		return model.Bank{}, s.storage("CreateBank", b, err, "create bank failed")
	}
	s.publish(ctx, events.BankCreated, actor, b)
	return b, nil
}

func (s *ReviewService) UpdateBank(ctx context.Context, actor model.Identity, id int64, abaCode, name string) (model.Bank, error) {
	abaCode, name, err := bankInput(abaCode, name)
	if err != nil {
		return model.Bank{}, err
	}
	b := model.Bank{ID: id, ABACode: abaCode, Name: name}
	if err := s.banks.Update(ctx, b); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return model.Bank{}, apperr.NotFound("bank %d not found", id)
		case errors.Is(err, repository.ErrDuplicate):
			return model.Bank{}, apperr.Conflict("a bank with ABA code %s already exists", abaCode).With("aba_code", abaCode)
		}
		return model.Bank{}, s.storage("UpdateBank", b, err, "update bank failed")
	}
	s.publish(ctx, events.BankUpdated, actor, b)
	return b, nil
}

// DeleteBank removes a bank without reports.  A bank that still has
// reports yields a Conflict carrying report_count.
func (s *ReviewService) DeleteBank(ctx context.Context, actor model.Identity, id int64) error {
	n, err := s.banks.Delete(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("bank %d not found", id)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict("Cannot delete bank. It has %d associated report(s).", n).With("report_count", n)
	default:
		return s.storage("DeleteBank", id, err, "delete bank failed")
	}
	s.publish(ctx, events.BankDeleted, actor, map[string]any{"id": id})
	return nil
}
