package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/service"
)

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSeatUnavailable):
		return http.StatusConflict
	case errors.Is(err, service.ErrAlreadyFinalizedOrExpired):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoSeats):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrStoreUnavailable), errors.Is(err, service.ErrTicketCodeExhausted):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorCode is the stable, machine-readable name of an engine error.
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrSeatUnavailable):
		return "seat_unavailable"
	case errors.Is(err, service.ErrAlreadyFinalizedOrExpired):
		return "already_finalized_or_expired"
	case errors.Is(err, service.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrNoSeats):
		return "no_seats"
	case errors.Is(err, service.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, service.ErrTicketCodeExhausted):
		return "ticket_code_exhausted"
	}
	return "internal"
}

// writeError responds with the status and error code for err.  Internal
// details of store failures are logged, not returned.
func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, echo.Map{"error": errorCode(err)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// parseID parses a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// parseSeatNumber parses a positive row or seat path parameter.
func parseSeatNumber(c echo.Context, name string) (uint32, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint32(n), true
}
