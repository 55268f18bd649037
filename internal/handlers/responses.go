package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"example.com/fincap/backend/internal/ledger"
)

type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// invalid отвечает 400 со списком полей, не прошедших валидацию.
func invalid(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: invalidFields(err)})
}

func invalidFields(err error) []string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, fe.Field())
	}
	return fields
}

func validationMessage(err error) string {
	fields := invalidFields(err)
	if len(fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(fields, ", ")
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
}

func conflict(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, ErrorResponse{Error: message})
}

func notFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{Error: message})
}

// tooManyRequests выставляет Retry-After в целых секундах, не меньше одной.
func tooManyRequests(c echo.Context, wait time.Duration) error {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
	return c.JSON(http.StatusTooManyRequests, map[string]any{
		"error":        "rate limit exceeded",
		"wait_hint_ms": wait.Milliseconds(),
	})
}

func serverError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// ledgerError переводит ошибки журнала в HTTP-ответы.
func ledgerError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ledger.ErrNoActiveUser):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "session expired"})
	case errors.Is(err, ledger.ErrValidation):
		return badRequest(c, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return notFound(c, "not found")
	case errors.Is(err, ledger.ErrConflict):
		return conflict(c, err.Error())
	default:
		return serverError(c)
	}
}
