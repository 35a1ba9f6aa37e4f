package handler

import (
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/middleware"
    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/model"
    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/service"
)

// maxSeatsPerRequest caps hold and confirm batches.
const maxSeatsPerRequest = 20

// BookingHandler serves the customer endpoints: holding seats, dropping
// holds, confirming sales and reading tickets.  All methods assume JWT
// authentication has run; the subject claim is the ticket owner.
type BookingHandler struct {
    Engine *service.Engine
}

// NewBookingHandler constructs a BookingHandler.  engine must be non-nil.
func NewBookingHandler(engine *service.Engine) *BookingHandler {
    if engine == nil {
        panic("nil engine passed to NewBookingHandler")
    }
    return &BookingHandler{Engine: engine}
}

type seatFailureJSON struct {
    Row   uint32 `json:"row"`
    Seat  uint32 `json:"seat"`
    Error string `json:"error"`
}

// HoldSeats handles POST /v1/sessions/:id/hold.  The body is
// {"seats":[{"row":1,"seat":2}, ...]}.  Each seat is held independently:
// 201 is returned when at least one seat was held, listing the tickets
// and the seats that failed.  When none could be held the status reflects
// the reason (409 taken, 404 unknown seat, 503 store down).
func (h *BookingHandler) HoldSeats(c echo.Context) error {
    ownerID, err := middleware.UserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    sessionID, ok := parseID(c, "id")
    if !ok {
        return badRequest(c, "invalid session id")
    }
    var body struct {
        Seats []model.SeatRef `json:"seats"`
    }
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    if len(body.Seats) == 0 {
        return badRequest(c, "seats is required")
    }
    if len(body.Seats) > maxSeatsPerRequest {
        return badRequest(c, "too many seats")
    }

    res, err := h.Engine.HoldSeats(c.Request().Context(), sessionID, ownerID, body.Seats)
    if err != nil && (res == nil || len(res.Tickets) == 0) {
        return writeError(c, err)
    }

    failed := make([]seatFailureJSON, 0, len(res.Failed))
    for _, f := range res.Failed {
        failed = append(failed, seatFailureJSON{Row: f.Seat.Row, Seat: f.Seat.Seat, Error: errorCode(f.Err)})
    }
    var expires *time.Time
    if len(res.Tickets) > 0 {
        expires = res.Tickets[0].ExpiresAt
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "requested":  res.Requested,
        "held":       len(res.Tickets),
        "expires_at": expires,
        "tickets":    res.Tickets,
        "failed":     failed,
    })
}

// ReleaseHolds handles DELETE /v1/sessions/:id/hold.  It drops all of the
// caller's holds on the session and returns how many were released.
func (h *BookingHandler) ReleaseHolds(c echo.Context) error {
    ownerID, err := middleware.UserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    sessionID, ok := parseID(c, "id")
    if !ok {
        return badRequest(c, "invalid session id")
    }
    n, err := h.Engine.ReleaseHolds(c.Request().Context(), sessionID, ownerID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"released": n})
}

type confirmResultJSON struct {
    TicketID uint64        `json:"ticket_id"`
    Ticket   *model.Ticket `json:"ticket,omitempty"`
    Error    string        `json:"error,omitempty"`
}

// ConfirmSale handles POST /v1/tickets/confirm with body
// {"ticket_ids":[...]}.  It is called once payment has been captured.
// Tickets of other owners are reported as not_found.  200 is returned
// when at least one ticket was sold; otherwise the status of the first
// failure.
func (h *BookingHandler) ConfirmSale(c echo.Context) error {
    ownerID, err := middleware.UserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        TicketIDs []uint64 `json:"ticket_ids"`
    }
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    if len(body.TicketIDs) == 0 {
        return badRequest(c, "ticket_ids is required")
    }
    if len(body.TicketIDs) > maxSeatsPerRequest {
        return badRequest(c, "too many tickets")
    }

    ctx := c.Request().Context()
    results := make([]confirmResultJSON, 0, len(body.TicketIDs))
    var firstErr error
    sold := 0
    for _, id := range body.TicketIDs {
        r := confirmResultJSON{TicketID: id}
        t, err := h.Engine.GetTicket(ctx, id)
        if err == nil && t.OwnerID != ownerID {
            err = service.ErrNotFound
        }
        if err == nil {
            t, err = h.Engine.ConfirmSale(ctx, id)
        }
        if err != nil {
            r.Error = errorCode(err)
            if firstErr == nil {
                firstErr = err
            }
        } else {
            r.Ticket = t
            sold++
        }
        results = append(results, r)
    }

    status := http.StatusOK
    if sold == 0 {
        status = statusFor(firstErr)
    }
    return c.JSON(status, echo.Map{"sold": sold, "results": results})
}

// LookupTicket handles GET /v1/tickets/:code.
func (h *BookingHandler) LookupTicket(c echo.Context) error {
    code := strings.TrimSpace(c.Param("code"))
    if code == "" {
        return badRequest(c, "invalid ticket code")
    }
    t, err := h.Engine.LookupTicket(c.Request().Context(), code)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"item": t})
}

// ListMyTickets handles GET /v1/my-tickets.  Sold tickets are listed by
// default; ?status=HELD|SOLD|RELEASED|ALL changes the filter.
func (h *BookingHandler) ListMyTickets(c echo.Context) error {
    ownerID, err := middleware.UserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    status := model.TicketSold
    if q := strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))); q != "" {
        switch {
        case q == "ALL":
            status = ""
        case model.TicketStatus(q).Valid():
            status = model.TicketStatus(q)
        default:
            return badRequest(c, "invalid status")
        }
    }
    items, err := h.Engine.ListTickets(c.Request().Context(), ownerID, status)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetMyTicket handles GET /v1/my-tickets/:id.  Tickets of other owners
// are reported as not_found, so their IDs are not revealed.
func (h *BookingHandler) GetMyTicket(c echo.Context) error {
    ownerID, err := middleware.UserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, ok := parseID(c, "id")
    if !ok {
        return badRequest(c, "invalid ticket id")
    }
    t, err := h.Engine.GetTicket(c.Request().Context(), id)
    if err == nil && t.OwnerID != ownerID {
        err = service.ErrNotFound
    }
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"item": t})
}
