// README: HTTP router registration.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"haulbook/internal/http/handlers"
	"haulbook/internal/http/middleware"
	"haulbook/internal/infra"
)

type RouterDeps struct {
	Bookings handlers.BookingService
	Trucks   handlers.TruckService
	Nearby   handlers.NearbySearch
	Verifier infra.TokenVerifier
	Log      *slog.Logger
	// Ping reports backing store health for /health; nil skips the check.
	Ping func(ctx context.Context) error
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		if deps.Ping != nil {
			if err := deps.Ping(c.Request.Context()); err != nil {
				deps.Log.Warn("health check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1", middleware.Auth(deps.Verifier))

	bookingHandler := handlers.NewBookingHandler(deps.Bookings, deps.Log)
	api.POST("/bookings", bookingHandler.Create)
	api.GET("/bookings", bookingHandler.List)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.GET("/bookings/:id/status-history", bookingHandler.History)
	api.PATCH("/bookings/:id/assign-truck", bookingHandler.AssignTruck)
	api.PATCH("/bookings/:id/status", bookingHandler.UpdateStatus)
	api.DELETE("/bookings/:id", bookingHandler.Cancel)

	truckHandler := handlers.NewTruckHandler(deps.Trucks, deps.Nearby, deps.Log)
	api.GET("/trucks/nearby", truckHandler.Nearby)
	api.GET("/trucks/owner/:owner_id", truckHandler.ListByOwner)
	api.POST("/trucks", truckHandler.Register)
	api.GET("/trucks/:id", truckHandler.Get)
	api.PUT("/trucks/:id", truckHandler.Update)
	api.DELETE("/trucks/:id", truckHandler.Delete)
	api.PUT("/trucks/:id/location", truckHandler.UpdateLocation)

	return r
}
