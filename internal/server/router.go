package server

import (
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "github.com/yungbote/disputedesk-backend/internal/handlers"
  "github.com/yungbote/disputedesk-backend/internal/middleware"
)

type RouterConfig struct {
  AuthHandler       *handlers.AuthHandler
  AuthMiddleware    *middleware.AuthMiddleware
  IdentityHandler   *handlers.IdentityHandler
  OrderHandler      *handlers.OrderHandler
  RiskHandler       *handlers.RiskHandler
  CaseHandler       *handlers.CaseHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  // Cors
  router.Use(cors.New(cors.Config{
    AllowOrigins: []string{
      "http://localhost:80",
      "http://localhost:3000",
      "http://localhost:5174",
    },
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  router.POST("/register", cfg.AuthHandler.Register)
  router.POST("/login", cfg.AuthHandler.Login)

// ===============
// || Protected ||
// ===============
  protected := router.Group("/")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  // Auth
  protected.POST("/refresh", cfg.AuthHandler.Refresh)
  protected.POST("/logout", cfg.AuthHandler.Logout)
  // Identity
  protected.POST("/identity/resolve", cfg.IdentityHandler.Resolve)
  protected.POST("/identity/merge", cfg.IdentityHandler.Merge)
  protected.GET("/identity/matches", cfg.IdentityHandler.ListPendingMatches)
  protected.POST("/identity/matches/:id/accept", cfg.IdentityHandler.AcceptMatch)
  protected.POST("/identity/matches/:id/reject", cfg.IdentityHandler.RejectMatch)
  protected.GET("/identity/:id", cfg.IdentityHandler.Get)
  // Orders
  protected.POST("/orders/reconcile", cfg.OrderHandler.Reconcile)
  protected.POST("/orders/import", cfg.OrderHandler.Import)
  protected.GET("/orders/import/:runId/stream", cfg.OrderHandler.StreamImport)
  // Risk
  protected.POST("/risk/:identityId/recalculate", cfg.RiskHandler.Recalculate)
  protected.GET("/risk/:identityId", cfg.RiskHandler.Get)
  // Cases
  protected.GET("/cases", cfg.CaseHandler.List)
  protected.POST("/cases", cfg.CaseHandler.Create)

  return router
}
