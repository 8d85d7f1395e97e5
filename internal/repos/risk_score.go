package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

type RiskScoreRepo interface {
  Upsert(ctx context.Context, tx *gorm.DB, score *types.RiskScore) (*types.RiskScore, error)
  GetByIdentityID(ctx context.Context, tx *gorm.DB, identityID uuid.UUID) (*types.RiskScore, error)
}

type riskScoreRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewRiskScoreRepo(db *gorm.DB, baseLog *logger.Logger) RiskScoreRepo {
  repoLog := baseLog.With("repo", "RiskScoreRepo")
  return &riskScoreRepo{db: db, log: repoLog}
}

// Upsert keeps exactly one snapshot per identity: the latest computation wins.
func (r *riskScoreRepo) Upsert(ctx context.Context, tx *gorm.DB, score *types.RiskScore) (*types.RiskScore, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns: []clause.Column{{Name: "identity_id"}},
      DoUpdates: clause.AssignmentColumns([]string{
        "overall_score", "level",
        "dispute_score", "support_score", "review_score",
        "order_frequency_score", "engagement_score",
        "confidence", "breakdown", "recommendations",
        "computed_at", "updated_at",
      }),
    }).
    Create(score).Error; err != nil {
    return nil, err
  }
  return score, nil
}

func (r *riskScoreRepo) GetByIdentityID(ctx context.Context, tx *gorm.DB, identityID uuid.UUID) (*types.RiskScore, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.RiskScore
  if err := transaction.WithContext(ctx).
    Where("identity_id = ?", identityID).
    Limit(1).
    Find(&results).Error; err != nil {
    return nil, err
  }
  if len(results) == 0 {
    return nil, nil
  }
  return results[0], nil
}
