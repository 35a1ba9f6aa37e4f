package handler

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/model"
    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/repository"
    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/service"
)

// SessionReader loads session metadata.  *repository.SessionRepo
// implements it.
type SessionReader interface {
    GetByID(ctx context.Context, id uint64) (*model.Session, error)
}

// SessionHandler serves the public, read-only session endpoints: session
// metadata, the seat map and single-seat availability.
type SessionHandler struct {
    Sessions  SessionReader
    Engine    *service.Engine
    Projector *service.Projector
}

// NewSessionHandler constructs a SessionHandler.  All dependencies must be
// non-nil.
func NewSessionHandler(sessions SessionReader, engine *service.Engine, projector *service.Projector) *SessionHandler {
    if sessions == nil || engine == nil || projector == nil {
        panic("nil dependency passed to NewSessionHandler")
    }
    return &SessionHandler{Sessions: sessions, Engine: engine, Projector: projector}
}

// GetSession handles GET /v1/sessions/:id.  It returns the session's
// title, start time, current price and hall geometry.
func (h *SessionHandler) GetSession(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return badRequest(c, "invalid session id")
    }
    s, err := h.Sessions.GetByID(c.Request().Context(), id)
    if err != nil {
        if errors.Is(err, repository.ErrSessionNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
        }
        return writeError(c, &service.StoreError{Op: "load session", Err: err})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "id":          s.ID,
        "title":       s.Title,
        "starts_at":   s.StartsAt.Format(time.RFC3339),
        "price_cents": s.PriceCents,
        "hall":        s.Hall,
        "capacity":    s.Hall.Capacity(),
    })
}

// GetSeatMap handles GET /v1/sessions/:id/seats.  It returns every seat
// of the hall in row-major order with its state.
func (h *SessionHandler) GetSeatMap(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return badRequest(c, "invalid session id")
    }
    seats, err := h.Projector.GetSeatStatuses(c.Request().Context(), id)
    if err != nil {
        return writeError(c, err)
    }
    available := 0
    for _, st := range seats {
        if st.State == model.SeatAvailable {
            available++
        }
    }
    return c.JSON(http.StatusOK, echo.Map{
        "session_id": id,
        "available":  available,
        "seats":      seats,
    })
}

// GetSeatAvailability handles GET /v1/sessions/:id/seats/:row/:seat/availability.
func (h *SessionHandler) GetSeatAvailability(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return badRequest(c, "invalid session id")
    }
    row, ok := parseSeatNumber(c, "row")
    if !ok {
        return badRequest(c, "invalid row")
    }
    seat, ok := parseSeatNumber(c, "seat")
    if !ok {
        return badRequest(c, "invalid seat")
    }
    free, err := h.Engine.IsSeatAvailable(c.Request().Context(), id, row, seat)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "session_id":  id,
        "row":         row,
        "seat_number": seat,
        "available":   free,
    })
}
