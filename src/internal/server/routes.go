package server

import (
	"github.com/labstack/echo/v4"

	"github.com/casapps/landregistry/src/internal/api/handlers"
	apimw "github.com/casapps/landregistry/src/internal/api/middleware"
	"github.com/casapps/landregistry/src/internal/auth"
)

// setupRoutes configures all application routes
func (s *Server) setupRoutes() {
	authMiddleware := auth.NewMiddleware(s.auth, s.users)

	anonymous := s.limit(s.anonLimiter)
	protected := []echo.MiddlewareFunc{authMiddleware.Auth(), s.limit(s.userLimiter)}
	adminOnly := append(protected[:len(protected):len(protected)], authMiddleware.RequireAdmin())

	authHandler := handlers.NewAuthHandler(s.users)
	landHandler := handlers.NewLandHandler(s.lands)
	transferHandler := handlers.NewTransferHandler(s.transfers)
	adminHandler := handlers.NewAdminHandler(s.admin, s.users, s.lands, s.transfers, s.reports, s.audit)
	healthHandler := handlers.NewHealthHandler(s.db, s.cache, s.ledger, s.version)

	// Operations
	s.echo.GET("/health", healthHandler.Health)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	api := s.echo.Group("/api")

	// Authentication routes
	authGroup := api.Group("/auth")
	authGroup.POST("/login", authHandler.Login, anonymous)
	authGroup.POST("/register", authHandler.Register, anonymous)
	authGroup.POST("/demo-login", authHandler.DemoLogin, anonymous)
	authGroup.GET("/profile", authHandler.Profile, protected...)
	authGroup.PUT("/profile", authHandler.UpdateProfile, protected...)
	authGroup.POST("/change-password", authHandler.ChangePassword, protected...)
	authGroup.POST("/logout", authHandler.Logout, protected...)
	authGroup.POST("/2fa/setup", authHandler.SetupTOTP, protected...)
	authGroup.POST("/2fa/enable", authHandler.EnableTOTP, protected...)
	authGroup.POST("/2fa/disable", authHandler.DisableTOTP, protected...)

	// Land routes
	lands := api.Group("/lands", protected...)
	lands.GET("", landHandler.List)
	lands.GET("/", landHandler.List)
	lands.POST("", landHandler.Create, s.auditor.Audit("land.create", "land", "id"))
	lands.POST("/", landHandler.Create, s.auditor.Audit("land.create", "land", "id"))
	lands.GET("/map-data", landHandler.MapData)
	lands.GET("/statistics", landHandler.Statistics)
	lands.GET("/my-lands", landHandler.MyLands)
	lands.GET("/transfers", transferHandler.List)
	lands.GET("/:id", landHandler.Get)
	lands.POST("/:id/transfer/initiate", transferHandler.Initiate, s.auditor.Audit("transfer.initiate", "land", "id"))
	lands.POST("/:id/transfer/:transferId/execute", transferHandler.Execute, s.auditor.Audit("transfer.execute", "transfer", "transferId"))
	lands.POST("/:id/transfer/:transferId/cancel", transferHandler.Cancel, s.auditor.Audit("transfer.cancel", "transfer", "transferId"))
	lands.GET("/:id/transfer-history", transferHandler.History)

	// Admin routes
	admin := api.Group("/admin", adminOnly...)
	admin.GET("/dashboard", adminHandler.Dashboard)
	admin.GET("/users", adminHandler.ListUsers)
	admin.GET("/users/:id", adminHandler.GetUser)
	admin.POST("/users/:id/status", adminHandler.SetUserStatus, s.auditor.Audit("user.status", "user", "id"))
	admin.GET("/lands/pending", adminHandler.PendingLands)
	admin.GET("/lands/all", adminHandler.AllLands)
	admin.POST("/lands/:id/review", adminHandler.ReviewLand, s.auditor.Audit("land.review", "land", "id"))
	admin.POST("/lands/:id/register-blockchain", adminHandler.RegisterOnBlockchain, s.auditor.Audit("land.register", "land", "id"))
	admin.GET("/transfers", adminHandler.ListTransfers)
	admin.GET("/blockchain/status", adminHandler.BlockchainStatus)
	admin.GET("/reports/:type", adminHandler.Report, s.auditor.Audit("report.download", "report", "type"))
	admin.GET("/audit", adminHandler.AuditLog)
}

// limit applies rl unless rate limiting is switched off
func (s *Server) limit(rl *apimw.RateLimiter) echo.MiddlewareFunc {
	if !s.config.GetBool("ratelimit.enabled") {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return rl.Middleware()
}
