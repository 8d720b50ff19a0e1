// Package httpx holds the request binding and error mapping shared by every
// fiber handler.
package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/money"
)

// UserIDKey is the fiber local set by the JWT middleware.
const UserIDKey = "user_id"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Bind decodes the JSON body into dst and validates its struct tags.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Validation("malformed_body", "request body is not valid JSON")
	}
	return Validate(dst)
}

// Validate runs the struct validator and converts failures to a validation error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation("invalid_request", "%s", err.Error())
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fmt.Sprintf("failed on '%s'", fe.Tag())
	}
	return apperr.Validation("invalid_request", "request validation failed").With("", details)
}

// Amount converts a decoded major-unit amount into minor units.
func Amount(d decimal.Decimal) (int64, error) {
	return money.FromDecimal(d)
}

// UserID returns the authenticated account id.
func UserID(c *fiber.Ctx) (string, error) {
	uid, _ := c.Locals(UserIDKey).(string)
	if uid == "" {
		return "", apperr.Unauthenticated("unauthenticated", "authentication required")
	}
	return uid, nil
}

// StatusOf maps a tagged error to its HTTP status.
func StatusOf(err error) int {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindLimitExceeded, apperr.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case apperr.KindOTP:
		if appErr.Code == "otp_expired" {
			return http.StatusGone
		}
		return http.StatusUnauthorized
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindStateConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindTransient, apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders errors returned by handlers as ErrorBody JSON.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorBody{Error: fe.Message})
		}

		status := StatusOf(err)
		body := ErrorBody{Error: "internal error"}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			body = ErrorBody{Error: appErr.Message, Code: appErr.Code, Details: appErr.Details}
			if appErr.Kind == apperr.KindInternal {
				body = ErrorBody{Error: "internal error"}
			} else if body.Error == "" {
				body.Error = appErr.Kind.String()
			}
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Any("error", err),
			)
		}
		return c.Status(status).JSON(body)
	}
}
