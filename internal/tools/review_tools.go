package tools

import (
	"context"
	"encoding/json"

	"github.com/iliyamo/bank-report-review/internal/model"
)

type noArgs struct{}

type statusArgs struct {
	Status string `json:"status" validate:"required"`
}

type reportArgs struct {
	ReportID int64 `json:"report_id" validate:"required,gt=0"`
}

type commentArgs struct {
	ErrorID int64  `json:"error_id" validate:"required,gt=0"`
	Comment string `json:"comment" validate:"required,max=2000"`
}

type decisionArgs struct {
	ReportID   int64 `json:"report_id" validate:"required,gt=0"`
	IsAccepted *bool `json:"is_accepted" validate:"required"`
}

type bankArgs struct {
	ABACode string `json:"aba_code" validate:"required,max=32"`
	Name    string `json:"name" validate:"required,max=255"`
}

type bankUpdateArgs struct {
	BankID  int64  `json:"bank_id" validate:"required,gt=0"`
	ABACode string `json:"aba_code" validate:"required,max=32"`
	Name    string `json:"name" validate:"required,max=255"`
}

type bankIDArgs struct {
	BankID int64 `json:"bank_id" validate:"required,gt=0"`
}

const emptySchema = `{"type":"object","properties":{},"additionalProperties":false}`

func (r *Registry) reviewTools() []Tool {
	return []Tool{
		{
			Name:        "get_banks",
			Title:       "List banks",
			Description: "Get the list of all banks with their id, ABA routing code and name, sorted by name.",
			InputSchema: json.RawMessage(emptySchema),
			ReadOnly:    true,
			run: func(ctx context.Context, _ model.Identity, args json.RawMessage) (string, error) {
				if err := r.decode(args, &noArgs{}); err != nil {
					return "", err
				}
				banks, err := r.review.ListBanks(ctx)
				if err != nil {
					return "", err
				}
				return asJSON(banks)
			},
		},
		{
			Name:        "get_reports",
			Title:       "List reports",
			Description: "Get all regulatory reports with bank name and ABA code, newest submission first. Each report has has_errors, is_accepted (true, false or null) and a derived status.",
			InputSchema: json.RawMessage(emptySchema),
			ReadOnly:    true,
			run: func(ctx context.Context, _ model.Identity, args json.RawMessage) (string, error) {
				if err := r.decode(args, &noArgs{}); err != nil {
					return "", err
				}
				reports, err := r.review.ListReports(ctx)
				if err != nil {
					return "", err
				}
				return asJSON(reports)
			},
		},
		{
			Name:        "get_reports_by_status",
			Title:       "List reports by status",
			Description: "Get reports filtered by review status. accepted: is_accepted is true. rejected: is_accepted is false and the report has errors. pending: no decision yet.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"status":{"type":"string","enum":["accepted","rejected","pending"],"description":"Review status to filter by"}},"required":["status"],"additionalProperties":false}`),
			ReadOnly:    true,
			run: func(ctx context.Context, _ model.Identity, args json.RawMessage) (string, error) {
				var a statusArgs
				if err := r.decode(args, &a); err != nil {
					return "", err
				}
				reports, err := r.review.ListReportsByStatus(ctx, a.Status)
				if err != nil {
					return "", err
				}
				return asJSON(reports)
			},
		},
		{
			Name:        "get_report_errors",
			Title:       "List report validation errors",
			Description: "Get the validation errors of a report. Each error includes its type, message, field name and its comment thread in chronological order with the commenting user.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"report_id":{"type":"integer","minimum":1,"description":"Report id"}},"required":["report_id"],"additionalProperties":false}`),
			ReadOnly:    true,
			run: func(ctx context.Context, _ model.Identity, args json.RawMessage) (string, error) {
				var a reportArgs
				if err := r.decode(args, &a); err != nil {
					return "", err
				}
				errs, err := r.review.ListReportErrors(ctx, a.ReportID)
				if err != nil {
					return "", err
				}
				return asJSON(errs)
			},
		},
		{
			Name:        "add_error_comment",
			Title:       "Comment on a validation error",
			Description: "Add a comment to a validation error. The comment is attributed to the current user.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"error_id":{"type":"integer","minimum":1,"description":"Validation error id"},"comment":{"type":"string","minLength":1,"description":"Comment text"}},"required":["error_id","comment"],"additionalProperties":false}`),
			run: func(ctx context.Context, id model.Identity, args json.RawMessage) (string, error) {
				var a commentArgs
				if err := r.decode(args, &a); err != nil {
					return "", err
				}
				c, err := r.review.AddComment(ctx, id, a.ErrorID, a.Comment)
				if err != nil {
					return "", err
				}
				return asJSON(map[string]any{"success": true, "comment": c})
			},
		},
		{
			Name:        "update_report_status",
			Title:       "Accept or reject a report",
			Description: "Record the review decision for a report: is_accepted true accepts it, false rejects it. A report may be decided again.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"report_id":{"type":"integer","minimum":1,"description":"Report id"},"is_accepted":{"type":"boolean","description":"true to accept, false to reject"}},"required":["report_id","is_accepted"],"additionalProperties":false}`),
			run: func(ctx context.Context, id model.Identity, args json.RawMessage) (string, error) {
				var a decisionArgs
				if err := r.decode(args, &a); err != nil {
					return "", err
				}
				rep, err := r.review.SetReportDecision(ctx, id, a.ReportID, *a.IsAccepted)
				if err != nil {
					return "", err
				}
				return asJSON(map[string]any{"success": true, "report": rep})
			},
		},
		{
			Name:        "create_bank",
			Title:       "Create a bank",
			Description: "Create a new bank. The ABA code must not belong to another bank.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"aba_code":{"type":"string","minLength":1,"description":"ABA routing code"},"name":{"type":"string","minLength":1,"description":"Bank name"}},"required":["aba_code","name"],"additionalProperties":false}`),
			run: func(ctx context.Context, id model.Identity, args json.RawMessage) (string, error) {
				var a bankArgs
				if err := r.decode(args, &a); err != nil {
					return "", err
				}
				b, err := r.review.CreateBank(ctx, id, a.ABACode, a.Name)
				if err != nil {
					return "", err
				}
				return asJSON(map[string]any{"success": true, "bank": b})
			},
		},
		{
			Name:        "update_bank",
			Title:       "Update a bank",
			Description: "Change the ABA code and name of an existing bank.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"bank_id":{"type":"integer","minimum":1,"description":"Bank id"},"aba_code":{"type":"string","minLength":1,"description":"ABA routing code"},"name":{"type":"string","minLength":1,"description":"Bank name"}},"required":["bank_id","aba_code","name"],"additionalProperties":false}`),
			run: func(ctx context.Context, id model.Identity, args json.RawMessage) (string, error) {
				var a bankUpdateArgs
				if err := r.decode(args, &a); err != nil {
					return "", err
				}
				b, err := r.review.UpdateBank(ctx, id, a.BankID, a.ABACode, a.Name)
				if err != nil {
					return "", err
				}
				return asJSON(map[string]any{"success": true, "bank": b})
			},
		},
		{
			Name:        "delete_bank",
			Title:       "Delete a bank",
			Description: "Delete a bank. Fails with the number of associated reports when the bank still has reports.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"bank_id":{"type":"integer","minimum":1,"description":"Bank id"}},"required":["bank_id"],"additionalProperties":false}`),
			run: func(ctx context.Context, id model.Identity, args json.RawMessage) (string, error) {
				var a bankIDArgs
				if err := r.decode(args, &a); err != nil {
					return "", err
				}
				if err := r.review.DeleteBank(ctx, id, a.BankID); err != nil {
					return "", err
				}
				return asJSON(map[string]any{"success": true})
			},
		},
	}
}
