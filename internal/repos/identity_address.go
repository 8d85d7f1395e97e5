package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

type IdentityAddressRepo interface {
  Create(ctx context.Context, tx *gorm.DB, addresses []*types.IdentityAddress) ([]*types.IdentityAddress, error)
  GetByIdentityIDs(ctx context.Context, tx *gorm.DB, identityIDs []uuid.UUID) ([]*types.IdentityAddress, error)
  ClearCurrent(ctx context.Context, tx *gorm.DB, identityID uuid.UUID) error
}

type identityAddressRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewIdentityAddressRepo(db *gorm.DB, baseLog *logger.Logger) IdentityAddressRepo {
  repoLog := baseLog.With("repo", "IdentityAddressRepo")
  return &identityAddressRepo{db: db, log: repoLog}
}

func (r *identityAddressRepo) Create(ctx context.Context, tx *gorm.DB, addresses []*types.IdentityAddress) ([]*types.IdentityAddress, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(addresses) == 0 {
    return []*types.IdentityAddress{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&addresses).Error; err != nil {
    return nil, err
  }
  return addresses, nil
}

func (r *identityAddressRepo) GetByIdentityIDs(ctx context.Context, tx *gorm.DB, identityIDs []uuid.UUID) ([]*types.IdentityAddress, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.IdentityAddress
  if len(identityIDs) == 0 {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("identity_id IN ?", identityIDs).
    Order("recorded_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *identityAddressRepo) ClearCurrent(ctx context.Context, tx *gorm.DB, identityID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).
    Model(&types.IdentityAddress{}).
    Where("identity_id = ? AND current = ?", identityID, true).
    Update("current", false).Error
}
