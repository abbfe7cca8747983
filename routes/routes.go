package routes

import (
	"time"

	"wellnest/handlers"
	"wellnest/middleware"
	"wellnest/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterCustomerRoutes registers the customer booking endpoints.
func RegisterCustomerRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/bookings")
	{
		api.Use(middleware.JWTAuthMiddleware(), middleware.RequireRole(models.RoleCustomer))
		api.POST("", hb.CreateBookingHandler)
		api.GET("", hb.ListCustomerBookingsHandler)
		api.POST("/check", hb.CheckAvailabilityHandler)
		api.POST("/:id/cancel", hb.CancelBookingHandler)
		api.GET("/stream", hb.StreamBookingsHandler)
	}
}

// RegisterOwnerRoutes registers the provider owner console endpoints.
func RegisterOwnerRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/owner/bookings")
	{
		api.Use(middleware.JWTAuthMiddleware(), middleware.RequireRole(models.RoleOwner))
		api.GET("", hb.ListOwnerBookingsHandler)
		api.POST("/:id/confirm", hb.ConfirmBookingHandler)
		api.POST("/:id/reject", hb.RejectBookingHandler)
		api.POST("/:id/cancel", hb.CancelBookingHandler)
		api.GET("/stream", hb.StreamBookingsHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, maxRequestsPerMin int) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RateLimitMiddleware(maxRequestsPerMin))

	RegisterHealthRoute(r, hb)
	RegisterCustomerRoutes(r, hb)
	RegisterOwnerRoutes(r, hb)
}
