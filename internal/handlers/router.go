// Package handlers contains the HTTP handlers and routing.
package handlers

import (
	"github.com/gin-gonic/gin"
)

// RouterConfig carries the settings the routes and middleware need.
type RouterConfig struct {
	GinMode        string
	CORSOrigins    []string
	JWTSecret      string
	InternalAPIKey string
	CheckoutRPS    float64
	CheckoutBurst  int
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(cfg RouterConfig, payments *PaymentHandler, memberships *MembershipHandler) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware(cfg.CORSOrigins))
	router.Use(RequestIDMiddleware())

	// Health check (public)
	router.GET("/health", payments.Health)

	memberAuth := MemberAuthMiddleware(cfg.JWTSecret)

	v1 := router.Group("/api/v1")
	{
		pay := v1.Group("/payments")
		{
			// Gateway endpoints (public, IPN validates its signature)
			pay.POST("/momo/ipn", payments.HandleIPN)
			pay.GET("/momo/return", payments.HandleReturn)

			pay.POST("/checkout", memberAuth, RateLimitMiddleware(cfg.CheckoutRPS, cfg.CheckoutBurst), payments.CreateCheckout)
			pay.GET("/:id", memberAuth, payments.GetPayment)
		}

		ms := v1.Group("/memberships")
		ms.Use(memberAuth)
		{
			ms.GET("", memberships.List)
			ms.POST("/:id/pause", memberships.Pause)
			ms.POST("/:id/resume", memberships.Resume)
			ms.POST("/:id/cancel", memberships.Cancel)
		}

		admin := v1.Group("/admin")
		admin.Use(memberAuth, RequireRole(RoleAdmin))
		{
			admin.POST("/memberships/expire", memberships.ExpireNow)
		}
	}

	// Server-to-server routes for FitStack Core
	internal := router.Group("/internal")
	internal.Use(ServiceAuthMiddleware(cfg.InternalAPIKey))
	{
		internal.POST("/memberships/:id/sessions/consume", memberships.ConsumeSession)
		internal.POST("/memberships/:id/sessions/release", memberships.ReleaseSession)
	}

	return router
}
