package router

import (
	"github.com/labstack/echo/v4"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/middleware"
)

// CustomerRole is the role claim required on booking endpoints.
const CustomerRole = "CUSTOMER"

// RegisterCustomer registers the booking endpoints under /v1.  All routes
// require a valid JWT with the CUSTOMER role; the token subject is the
// ticket owner.  Placing holds has its own, tighter rate limit because
// every hold locks a seat for other customers.
func RegisterCustomer(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(CustomerRole),
		middleware.NewTokenBucket(d.RateLimit, d.Redis),
	)
	g.POST("/sessions/:id/hold", d.Booking.HoldSeats, middleware.NewTokenBucket(d.HoldLimit, d.Redis))
	g.DELETE("/sessions/:id/hold", d.Booking.ReleaseHolds)
	g.POST("/tickets/confirm", d.Booking.ConfirmSale)
	g.GET("/tickets/:code", d.Booking.LookupTicket)
	g.GET("/my-tickets", d.Booking.ListMyTickets)
	g.GET("/my-tickets/:id", d.Booking.GetMyTicket)
}
