package model

import "strings"

// ReportStatus is the review state of a report. It is derived from the
// is_accepted and has_errors columns and never stored.
type ReportStatus string

const (
	// StatusAccepted: is_accepted = true.
	StatusAccepted ReportStatus = "accepted"
	// StatusRejected: is_accepted = false and the report has validation errors.
	StatusRejected ReportStatus = "rejected"
	// StatusPending: no decision recorded yet, regardless of has_errors.
	StatusPending ReportStatus = "pending"
	// StatusDeclined: is_accepted = false on a report without validation
	// errors. It is reported on rows but is not a filter value.
	StatusDeclined ReportStatus = "declined"
)

// FilterStatuses lists the values accepted by the report status filter.
var FilterStatuses = []ReportStatus{StatusAccepted, StatusRejected, StatusPending}

// ParseReportStatus parses a status filter value. Matching is case
// insensitive; StatusDeclined is not a valid filter.
func ParseReportStatus(s string) (ReportStatus, bool) {
	switch ReportStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusAccepted:
		return StatusAccepted, true
	case StatusRejected:
		return StatusRejected, true
	case StatusPending:
		return StatusPending, true
	}
	return "", false
}

// DeriveStatus computes the status of a report from its stored fields.
func DeriveStatus(hasErrors bool, isAccepted *bool) ReportStatus {
	switch {
	case isAccepted == nil:
		return StatusPending
	case *isAccepted:
		return StatusAccepted
	case hasErrors:
		return StatusRejected
	default:
		return StatusDeclined
	}
}

// Report is a regulatory submission joined with its bank's name and code.
type Report struct {
	ID             int64  `db:"id" json:"id"`
	BankID         int64  `db:"bank_id" json:"bank_id"`
	ReportCode     string `db:"report_code" json:"report_code"`
	SubmissionDate string `db:"submission_date" json:"submission_date"`
	HasErrors      bool   `db:"has_errors" json:"has_errors"`
	// IsAccepted is nil while the report awaits a decision.
	IsAccepted *bool        `db:"is_accepted" json:"is_accepted"`
	ABACode    string       `db:"aba_code" json:"aba_code"`
	BankName   string       `db:"bank_name" json:"bank_name"`
	Status     ReportStatus `db:"-" json:"status"`
}

// Derive fills Status from the stored fields.
func (r *Report) Derive() {
	r.Status = DeriveStatus(r.HasErrors, r.IsAccepted)
}
