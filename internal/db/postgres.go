package db

import (
  "fmt"
  "gorm.io/driver/postgres"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/types"
  "github.com/yungbote/disputedesk-backend/internal/utils"
)

type PostgresService struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
  postgresName := utils.GetEnv("POSTGRES_NAME", "disputedesk", log)

  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

  log.Info("Connecting to Postgres...")
  gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    serviceLog.Error("Failed to connect to Postgres", "error", err)
    return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
  }

  return &PostgresService{db: gormDB, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Auto migrating postgres tables...")
  err := s.db.AutoMigrate(
    &types.User{},
    &types.UserToken{},
    &types.CustomerIdentity{},
    &types.IdentityAddress{},
    &types.IdentityMatch{},
    &types.Order{},
    &types.OrderChangeRecord{},
    &types.RiskScore{},
    &types.DisputeCase{},
  )
  if err != nil {
    s.log.Error("Auto migration failed for postgres tables", "error", err)
    return err
  }

  s.log.Info("Configuring foreign key relationships for postgres tables...")
  constraints := []string{
    `ALTER TABLE "user_token"
     ADD CONSTRAINT "fk_user_token_user_id"
     FOREIGN KEY ("user_id") REFERENCES "user"("id")
     ON DELETE CASCADE`,
    `ALTER TABLE "identity_address"
     ADD CONSTRAINT "fk_identity_address_identity_id"
     FOREIGN KEY ("identity_id") REFERENCES "customer_identity"("id")
     ON DELETE CASCADE`,
    `ALTER TABLE "identity_match"
     ADD CONSTRAINT "fk_identity_match_identity_id"
     FOREIGN KEY ("identity_id") REFERENCES "customer_identity"("id")
     ON DELETE CASCADE`,
    `ALTER TABLE "identity_match"
     ADD CONSTRAINT "fk_identity_match_candidate_id"
     FOREIGN KEY ("candidate_id") REFERENCES "customer_identity"("id")
     ON DELETE CASCADE`,
    `ALTER TABLE "order_change_record"
     ADD CONSTRAINT "fk_order_change_record_order_id"
     FOREIGN KEY ("order_id") REFERENCES "order"("id")
     ON DELETE CASCADE`,
    `ALTER TABLE "risk_score"
     ADD CONSTRAINT "fk_risk_score_identity_id"
     FOREIGN KEY ("identity_id") REFERENCES "customer_identity"("id")
     ON DELETE CASCADE`,
    `ALTER TABLE "dispute_case"
     ADD CONSTRAINT "fk_dispute_case_identity_id"
     FOREIGN KEY ("identity_id") REFERENCES "customer_identity"("id")
     ON DELETE CASCADE`,
  }
  for _, ddl := range constraints {
    if err := s.db.Exec(ddl).Error; err != nil {
      s.log.Warn("Failed to add constraint (may already exist)", "error", err)
    }
  }

  // Active identities must be unique per normalized email; tombstones are
  // excluded so a merged-away identity never blocks re-use of its key.
  if err := s.db.Exec(`
    CREATE UNIQUE INDEX IF NOT EXISTS "uq_customer_identity_active_email"
    ON "customer_identity"("normalized_email")
    WHERE "master_identity_id" IS NULL AND "normalized_email" <> ''
  `).Error; err != nil {
    s.log.Warn("Failed to create active-email unique index", "error", err)
  }
  return nil
}
