package routes

import (
	"net/http"
	"time"

	"consultly/handlers"
	"consultly/middleware"
	"consultly/models"
	"consultly/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterConsultationRoutes registers consultation lifecycle endpoints.
func RegisterConsultationRoutes(r *gin.Engine, h *handlers.ConsultationHandler) {
	api := r.Group("/api/consultations")
	{
		api.Use(middleware.JWTAuthMiddleware(models.OwnerKindUser, models.OwnerKindGuest, models.OwnerKindProvider))
		api.POST("", h.CreateHandler)
		api.GET("", h.ListHandler)
		api.GET("/:id", h.GetHandler)
		api.POST("/:id/accept", h.AcceptHandler)
		api.POST("/:id/end", h.EndHandler)
		api.POST("/:id/connection-lost", h.ConnectionLostHandler)
	}
}

// RegisterWalletRoutes registers wallet endpoints for the authenticated owner.
func RegisterWalletRoutes(r *gin.Engine, h *handlers.WalletHandler) {
	api := r.Group("/api/wallet")
	{
		api.Use(middleware.JWTAuthMiddleware(models.OwnerKindUser, models.OwnerKindGuest, models.OwnerKindProvider))
		api.GET("/balance", h.BalanceHandler)
		api.GET("/transactions", h.TransactionsHandler)
		api.POST("/topup", h.TopUpHandler)
		api.POST("/topup/confirm", h.ConfirmTopUpHandler)

		withdraw := api.Group("")
		withdraw.Use(middleware.JWTAuthMiddleware(models.OwnerKindProvider))
		withdraw.POST("/withdraw", h.WithdrawHandler)
	}
}

// RegisterProviderRoutes registers rate configuration endpoints.
func RegisterProviderRoutes(r *gin.Engine, h *handlers.ProviderHandler) {
	api := r.Group("/api/providers")
	{
		api.GET("/:id/rates", h.GetRatesHandler)

		protected := api.Group("")
		protected.Use(middleware.JWTAuthMiddleware(models.OwnerKindProvider))
		protected.PUT("/:id/rates", h.UpdateRatesHandler)
	}
}

// RegisterAdminRoutes sets up endpoints for operator repairs.
func RegisterAdminRoutes(r *gin.Engine, h *handlers.AdminHandler) {
	adminGroup := r.Group("/api/admin")
	{
		adminGroup.Use(middleware.JWTAuthMiddleware("admin"))
		adminGroup.POST("/transactions/:id/reverse", h.ReverseTransactionHandler)
		adminGroup.POST("/consultations/:id/repair", h.RepairConsultationHandler)
		adminGroup.POST("/reconciliation/run", h.RunSweepHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint reporting the live
// status of Mongo and Redis.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		status := utils.GetHealthStatus()
		code := http.StatusOK
		if !status.Healthy() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, ch *handlers.ConsultationHandler, wh *handlers.WalletHandler, ph *handlers.ProviderHandler, ah *handlers.AdminHandler) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RateLimitMiddleware())
	r.Use(utils.ErrorHandler())

	RegisterConsultationRoutes(r, ch)
	RegisterWalletRoutes(r, wh)
	RegisterProviderRoutes(r, ph)
	RegisterAdminRoutes(r, ah)
	RegisterHealthRoute(r)
}
