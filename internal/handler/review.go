package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bank-report-review/internal/middleware"
	"github.com/iliyamo/bank-report-review/internal/service"
)

// ReviewHandler exposes the review operations over REST.
type ReviewHandler struct {
	Review service.Reviewer
}

func NewReviewHandler(r service.Reviewer) *ReviewHandler {
	if r == nil {
		panic("nil reviewer passed to NewReviewHandler")
	}
	return &ReviewHandler{Review: r}
}

type bankReq struct {
	ABACode string `json:"aba_code" validate:"required,max=32"`
	Name    string `json:"name" validate:"required,max=255"`
}

type commentReq struct {
	Comment string `json:"comment" validate:"required,max=2000"`
}

type statusReq struct {
	IsAccepted *bool `json:"is_accepted" validate:"required"`
}

var okBody = echo.Map{"success": true}

func (h *ReviewHandler) ListBanks(c echo.Context) error {
	banks, err := h.Review.ListBanks(c.Request().Context())
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, banks)
}

func (h *ReviewHandler) CreateBank(c echo.Context) error {
	var req bankReq
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	id, _ := middleware.Identity(c)
	b, err := h.Review.CreateBank(c.Request().Context(), id, req.ABACode, req.Name)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "bank": b})
}

func (h *ReviewHandler) UpdateBank(c echo.Context) error {
	bankID, err := pathID(c, "id")
	if err != nil {
		return respond(c, err)
	}
	var req bankReq
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	id, _ := middleware.Identity(c)
	if _, err := h.Review.UpdateBank(c.Request().Context(), id, bankID, req.ABACode, req.Name); err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, okBody)
}

// DeleteBank refuses with 409 and report_count while reports reference
// the bank.
func (h *ReviewHandler) DeleteBank(c echo.Context) error {
	bankID, err := pathID(c, "id")
	if err != nil {
		return respond(c, err)
	}
	id, _ := middleware.Identity(c)
	if err := h.Review.DeleteBank(c.Request().Context(), id, bankID); err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, okBody)
}

func (h *ReviewHandler) ListReports(c echo.Context) error {
	reports, err := h.Review.ListReports(c.Request().Context())
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, reports)
}

func (h *ReviewHandler) ListReportsByStatus(c echo.Context) error {
	reports, err := h.Review.ListReportsByStatus(c.Request().Context(), c.Param("status"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, reports)
}

func (h *ReviewHandler) ListReportErrors(c echo.Context) error {
	reportID, err := pathID(c, "id")
	if err != nil {
		return respond(c, err)
	}
	errs, err := h.Review.ListReportErrors(c.Request().Context(), reportID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, errs)
}

func (h *ReviewHandler) AddComment(c echo.Context) error {
	errorID, err := pathID(c, "id")
	if err != nil {
		return respond(c, err)
	}
	var req commentReq
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	id, _ := middleware.Identity(c)
	cm, err := h.Review.AddComment(c.Request().Context(), id, errorID, req.Comment)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "comment": cm})
}

func (h *ReviewHandler) SetReportStatus(c echo.Context) error {
	reportID, err := pathID(c, "id")
	if err != nil {
		return respond(c, err)
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	id, _ := middleware.Identity(c)
	rep, err := h.Review.SetReportDecision(c.Request().Context(), id, reportID, *req.IsAccepted)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "report": rep})
}
