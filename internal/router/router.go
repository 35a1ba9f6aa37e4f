package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/config"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/handler"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/middleware"
)

// Deps bundles everything the routes need.  Redis may be nil; the rate
// limiters then run in process and the session cache is bypassed.
type Deps struct {
	DB        handler.Pinger
	Sessions  *handler.SessionHandler
	Booking   *handler.BookingHandler
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	HoldLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// RegisterRoutes registers routes that do not require authentication:
// the health check and the public session endpoints.  The seat map is
// never cached so it always reflects the ledger.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))

	g := e.Group("/v1", middleware.NewTokenBucket(d.RateLimit, d.Redis))
	g.GET("/sessions/:id", d.Sessions.GetSession, middleware.NewRedisCache(d.Cache, d.Redis))
	g.GET("/sessions/:id/seats", d.Sessions.GetSeatMap)
	g.GET("/sessions/:id/seats/:row/:seat/availability", d.Sessions.GetSeatAvailability)
}
