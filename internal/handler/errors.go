package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bank-report-review/internal/apperr"
)

// statusOf maps an error kind onto its HTTP status.
func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respond writes err as {"error", "kind", ...details}.  Storage failures
// hide the driver message.
func respond(c echo.Context, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Storage(err, "internal error")
	}
	body := echo.Map{"kind": ae.Kind.String()}
	for k, v := range ae.Details {
		body[k] = v
	}
	if ae.Kind == apperr.KindStorage {
		body["error"] = ae.Message
	} else {
		body["error"] = ae.Error()
	}
	return c.JSON(statusOf(ae.Kind), body)
}

// ErrorHandler renders errors that escape handlers (unknown routes, bad
// methods, panics recovered upstream) in the same JSON shape.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			kind := "http"
			switch he.Code {
			case http.StatusNotFound:
				kind = apperr.KindNotFound.String()
			case http.StatusUnauthorized:
				kind = apperr.KindAuth.String()
			case http.StatusBadRequest:
				kind = apperr.KindInvalidInput.String()
			}
			msg := fmt.Sprint(he.Message)
			if c.Request().Method == http.MethodHead {
				_ = c.NoContent(he.Code)
				return
			}
			_ = c.JSON(he.Code, echo.Map{"error": msg, "kind": kind})
			return
		}
		if apperr.KindOf(err) == apperr.KindStorage {
			log.WithError(err).WithField("path", c.Request().URL.Path).Error("handler: unhandled error")
		}
		_ = respond(c, err)
	}
}

// Validator adapts validator/v10 to echo.  Field names in messages are the
// JSON names.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Invalid("invalid request: %v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return apperr.Invalid("%s", strings.Join(parts, "; "))
}

// bind decodes the JSON body into dst and validates it.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Invalid("invalid body")
	}
	return c.Validate(dst)
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("invalid %s", name)
	}
	return id, nil
}
