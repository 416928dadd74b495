package presenter

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/totegamma/portfolio"
	"github.com/totegamma/portfolio/internal/domain"
)

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func Created(c echo.Context, payload any) error {
	return c.JSON(http.StatusCreated, payload)
}

func NoContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// Status maps an error to its HTTP status code.
func Status(err error, anonymous bool) int {
	var kinded domain.KindedError
	if !errors.As(err, &kinded) {
		return http.StatusInternalServerError
	}
	switch kinded.Kind() {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuthorization:
		if anonymous {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case domain.KindUnconfirmedWrite:
		return http.StatusServiceUnavailable
	case domain.KindStorage:
		if domain.IsRetryable(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// Body renders err for the client. Errors outside the taxonomy are reported
// as non-retryable storage failures without their message.
func Body(err error) portfolio.ErrorResponse {
	var kinded domain.KindedError
	if !errors.As(err, &kinded) {
		return portfolio.ErrorResponse{Error: portfolio.ErrorBody{
			Kind:    domain.KindStorage,
			Message: "internal error",
		}}
	}

	body := portfolio.ErrorBody{
		Kind:      kinded.Kind(),
		Message:   kinded.Error(),
		Retryable: domain.IsRetryable(err),
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
		body.Message = ve.Message
	}
	return portfolio.ErrorResponse{Error: body}
}

// Error writes err with the status its kind maps to.
func Error(c echo.Context, err error) error {
	anonymous := domain.RequesterFrom(c.Request().Context()).IsAnonymous()
	return c.JSON(Status(err, anonymous), Body(err))
}

func BadRequestMessage(c echo.Context, field, msg string) error {
	return Error(c, domain.ValidationError{Field: field, Message: msg})
}
