package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

type DisputeCaseRepo interface {
  Create(ctx context.Context, tx *gorm.DB, cases []*types.DisputeCase) ([]*types.DisputeCase, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DisputeCase, error)
  ListByIdentityID(ctx context.Context, tx *gorm.DB, identityID uuid.UUID) ([]*types.DisputeCase, error)
  List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.DisputeCase, error)
  CountOpenByIdentityID(ctx context.Context, tx *gorm.DB, identityID uuid.UUID) (int64, error)
  UpdateRiskLevelByIdentityID(ctx context.Context, tx *gorm.DB, identityID uuid.UUID, riskLevel string) error
}

type disputeCaseRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewDisputeCaseRepo(db *gorm.DB, baseLog *logger.Logger) DisputeCaseRepo {
  repoLog := baseLog.With("repo", "DisputeCaseRepo")
  return &disputeCaseRepo{db: db, log: repoLog}
}

func (r *disputeCaseRepo) Create(ctx context.Context, tx *gorm.DB, cases []*types.DisputeCase) ([]*types.DisputeCase, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(cases) == 0 {
    return []*types.DisputeCase{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&cases).Error; err != nil {
    return nil, err
  }
  return cases, nil
}

func (r *disputeCaseRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DisputeCase, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.DisputeCase
  if len(ids) == 0 {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("id IN ?", ids).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *disputeCaseRepo) ListByIdentityID(ctx context.Context, tx *gorm.DB, identityID uuid.UUID) ([]*types.DisputeCase, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.DisputeCase
  if err := transaction.WithContext(ctx).
    Where("identity_id = ?", identityID).
    Order("created_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *disputeCaseRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.DisputeCase, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if limit <= 0 {
    limit = 50
  }
  var results []*types.DisputeCase
  if err := transaction.WithContext(ctx).
    Order("created_at DESC").
    Limit(limit).
    Offset(offset).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *disputeCaseRepo) CountOpenByIdentityID(ctx context.Context, tx *gorm.DB, identityID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var count int64
  if err := transaction.WithContext(ctx).
    Model(&types.DisputeCase{}).
    Where("identity_id = ? AND status <> ?", identityID, types.CaseStatusResolved).
    Count(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}

func (r *disputeCaseRepo) UpdateRiskLevelByIdentityID(ctx context.Context, tx *gorm.DB, identityID uuid.UUID, riskLevel string) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).
    Model(&types.DisputeCase{}).
    Where("identity_id = ?", identityID).
    Update("risk_level", riskLevel).Error
}
