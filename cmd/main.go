package main

import (
  "context"
  "fmt"
  "os"
  "time"
  redisclient "github.com/yungbote/disputedesk-backend/internal/clients/redis"
  "github.com/yungbote/disputedesk-backend/internal/db"
  "github.com/yungbote/disputedesk-backend/internal/handlers"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/middleware"
  "github.com/yungbote/disputedesk-backend/internal/repos"
  "github.com/yungbote/disputedesk-backend/internal/server"
  "github.com/yungbote/disputedesk-backend/internal/services"
  "github.com/yungbote/disputedesk-backend/internal/sse"
  "github.com/yungbote/disputedesk-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
  refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
  candidateLimit := utils.GetEnvAsInt("RESOLVER_CANDIDATE_LIMIT", 200, log)
  port := utils.GetEnv("PORT", "8080", log)

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  userRepo := repos.NewUserRepo(thePG, log)
  userTokenRepo := repos.NewUserTokenRepo(thePG, log)
  identityRepo := repos.NewCustomerIdentityRepo(thePG, log)
  addressRepo := repos.NewIdentityAddressRepo(thePG, log)
  matchRepo := repos.NewIdentityMatchRepo(thePG, log)
  orderRepo := repos.NewOrderRepo(thePG, log)
  changeRepo := repos.NewOrderChangeRecordRepo(thePG, log)
  riskRepo := repos.NewRiskScoreRepo(thePG, log)
  caseRepo := repos.NewDisputeCaseRepo(thePG, log)

  // SSE
  log.Info("Setting up SSE hub now...")
  sseHub := sse.NewSSEHub(log)
  var sseBus redisclient.SSEBus
  if os.Getenv("REDIS_ADDR") != "" {
    sseBus, err = redisclient.NewSSEBus(log)
    if err != nil {
      log.Warn("Redis bus unavailable, running with local broadcast only", "error", err)
      sseBus = nil
    } else {
      if err := sseBus.StartForwarder(context.Background(), sseHub.Broadcast); err != nil {
        log.Warn("Redis forwarder failed to start", "error", err)
      }
    }
  }
  publisher := services.NewSSEPublisher(log, sseHub, sseBus)

  // Services
  log.Info("Setting up Services from main...")
  authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
  resolverService := services.NewIdentityResolverService(thePG, log, identityRepo, addressRepo, matchRepo, publisher, candidateLimit)
  reconcilerService := services.NewOrderReconcilerService(thePG, log, orderRepo, changeRepo)
  deduplicatorService := services.NewImportDeduplicatorService(thePG, log, orderRepo, changeRepo, publisher)
  scorerService := services.NewRiskScorerService(thePG, log, identityRepo, riskRepo, caseRepo, services.SignalSources{}, publisher)
  caseService := services.NewCaseService(thePG, log, caseRepo, identityRepo, riskRepo, orderRepo)

  // Handlers
  log.Info("Setting up Handlers from main...")
  authHandler := handlers.NewAuthHandler(authService)
  identityHandler := handlers.NewIdentityHandler(resolverService)
  orderHandler := handlers.NewOrderHandler(reconcilerService, deduplicatorService, sseHub)
  riskHandler := handlers.NewRiskHandler(scorerService)
  caseHandler := handlers.NewCaseHandler(caseService)

  // Middleware
  authMiddleware := middleware.NewAuthMiddleware(log, authService)

  // Router
  router := server.NewRouter(server.RouterConfig{
    AuthHandler:     authHandler,
    AuthMiddleware:  authMiddleware,
    IdentityHandler: identityHandler,
    OrderHandler:    orderHandler,
    RiskHandler:     riskHandler,
    CaseHandler:     caseHandler,
  })

  log.Info("Starting server", "port", port)
  if err := router.Run(":" + port); err != nil {
    log.Fatal("Server stopped", "error", err)
  }
}
