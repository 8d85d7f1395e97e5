package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

type IdentityMatchRepo interface {
  Create(ctx context.Context, tx *gorm.DB, matches []*types.IdentityMatch) ([]*types.IdentityMatch, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.IdentityMatch, error)
  ListPending(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.IdentityMatch, error)
  MarkReviewed(ctx context.Context, tx *gorm.DB, id uuid.UUID, status, reviewedBy string) error
}

type identityMatchRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewIdentityMatchRepo(db *gorm.DB, baseLog *logger.Logger) IdentityMatchRepo {
  repoLog := baseLog.With("repo", "IdentityMatchRepo")
  return &identityMatchRepo{db: db, log: repoLog}
}

func (r *identityMatchRepo) Create(ctx context.Context, tx *gorm.DB, matches []*types.IdentityMatch) ([]*types.IdentityMatch, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(matches) == 0 {
    return []*types.IdentityMatch{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&matches).Error; err != nil {
    return nil, err
  }
  return matches, nil
}

func (r *identityMatchRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.IdentityMatch, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.IdentityMatch
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

func (r *identityMatchRepo) ListPending(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.IdentityMatch, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if limit <= 0 {
    limit = 50
  }
  var results []*types.IdentityMatch
  if err := transaction.WithContext(ctx).
    Where("status = ?", types.MatchStatusPending).
    Order("confidence DESC, created_at ASC").
    Limit(limit).
    Offset(offset).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

// MarkReviewed moves a pending row to its terminal review status. Rows that
// were auto_merged at creation are never touched.
func (r *identityMatchRepo) MarkReviewed(ctx context.Context, tx *gorm.DB, id uuid.UUID, status, reviewedBy string) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  now := time.Now()
  return transaction.WithContext(ctx).
    Model(&types.IdentityMatch{}).
    Where("id = ? AND status = ?", id, types.MatchStatusPending).
    Updates(map[string]interface{}{
      "status":      status,
      "reviewed_by": reviewedBy,
      "reviewed_at": &now,
    }).Error
}
