package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

type OrderChangeRecordRepo interface {
  Create(ctx context.Context, tx *gorm.DB, records []*types.OrderChangeRecord) ([]*types.OrderChangeRecord, error)
  GetByOrderID(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]*types.OrderChangeRecord, error)
  HasManualEdit(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error)
}

type orderChangeRecordRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewOrderChangeRecordRepo(db *gorm.DB, baseLog *logger.Logger) OrderChangeRecordRepo {
  repoLog := baseLog.With("repo", "OrderChangeRecordRepo")
  return &orderChangeRecordRepo{db: db, log: repoLog}
}

func (r *orderChangeRecordRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.OrderChangeRecord) ([]*types.OrderChangeRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(records) == 0 {
    return []*types.OrderChangeRecord{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&records).Error; err != nil {
    return nil, err
  }
  return records, nil
}

func (r *orderChangeRecordRepo) GetByOrderID(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]*types.OrderChangeRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.OrderChangeRecord
  if err := transaction.WithContext(ctx).
    Where("order_id = ?", orderID).
    Order("created_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *orderChangeRecordRepo) HasManualEdit(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var count int64
  if err := transaction.WithContext(ctx).
    Model(&types.OrderChangeRecord{}).
    Where("order_id = ? AND source = ?", orderID, types.ChangeSourceManualEdit).
    Count(&count).Error; err != nil {
    return false, err
  }
  return count > 0, nil
}
