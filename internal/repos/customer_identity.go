package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

type CustomerIdentityRepo interface {
  Create(ctx context.Context, tx *gorm.DB, identities []*types.CustomerIdentity) ([]*types.CustomerIdentity, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.CustomerIdentity, error)
  GetActiveByNormalizedEmail(ctx context.Context, tx *gorm.DB, email string) (*types.CustomerIdentity, error)
  GetActiveByNormalizedPhone(ctx context.Context, tx *gorm.DB, phone string) (*types.CustomerIdentity, error)
  ListRecentActive(ctx context.Context, tx *gorm.DB, limit int) ([]*types.CustomerIdentity, error)
  Update(ctx context.Context, tx *gorm.DB, identity *types.CustomerIdentity) error
}

type customerIdentityRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewCustomerIdentityRepo(db *gorm.DB, baseLog *logger.Logger) CustomerIdentityRepo {
  repoLog := baseLog.With("repo", "CustomerIdentityRepo")
  return &customerIdentityRepo{db: db, log: repoLog}
}

func (r *customerIdentityRepo) Create(ctx context.Context, tx *gorm.DB, identities []*types.CustomerIdentity) ([]*types.CustomerIdentity, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(identities) == 0 {
    return []*types.CustomerIdentity{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&identities).Error; err != nil {
    return nil, err
  }
  return identities, nil
}

func (r *customerIdentityRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.CustomerIdentity, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.CustomerIdentity
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

// GetActiveByNormalizedEmail returns the active (non-tombstoned) identity for
// a normalized email, or nil when none exists. Not-found is not an error.
func (r *customerIdentityRepo) GetActiveByNormalizedEmail(ctx context.Context, tx *gorm.DB, email string) (*types.CustomerIdentity, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if email == "" {
    return nil, nil
  }
  var results []*types.CustomerIdentity
  if err := transaction.WithContext(ctx).
    Where("normalized_email = ? AND master_identity_id IS NULL", email).
    Limit(1).
    Find(&results).Error; err != nil {
    return nil, err
  }
  if len(results) == 0 {
    return nil, nil
  }
  return results[0], nil
}

func (r *customerIdentityRepo) GetActiveByNormalizedPhone(ctx context.Context, tx *gorm.DB, phone string) (*types.CustomerIdentity, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if phone == "" {
    return nil, nil
  }
  var results []*types.CustomerIdentity
  if err := transaction.WithContext(ctx).
    Where("normalized_phone = ? AND master_identity_id IS NULL", phone).
    Limit(1).
    Find(&results).Error; err != nil {
    return nil, err
  }
  if len(results) == 0 {
    return nil, nil
  }
  return results[0], nil
}

// ListRecentActive is the bounded candidate set for the fuzzy pass: the most
// recently seen active identities, newest first.
func (r *customerIdentityRepo) ListRecentActive(ctx context.Context, tx *gorm.DB, limit int) ([]*types.CustomerIdentity, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if limit <= 0 {
    limit = 200
  }
  var results []*types.CustomerIdentity
  if err := transaction.WithContext(ctx).
    Where("master_identity_id IS NULL").
    Order("last_seen_at DESC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *customerIdentityRepo) Update(ctx context.Context, tx *gorm.DB, identity *types.CustomerIdentity) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).Save(identity).Error
}
