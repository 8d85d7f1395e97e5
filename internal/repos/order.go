package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

type OrderRepo interface {
  Create(ctx context.Context, tx *gorm.DB, orders []*types.Order) ([]*types.Order, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Order, error)
  GetBySourceExternalID(ctx context.Context, tx *gorm.DB, sourceSystem, externalID string) (*types.Order, error)
  GetByOrderNumber(ctx context.Context, tx *gorm.DB, orderNumber string) (*types.Order, error)
  ListByEmailAround(ctx context.Context, tx *gorm.DB, email string, center time.Time, window time.Duration, limit int) ([]*types.Order, error)
  ListReconcileCandidates(ctx context.Context, tx *gorm.DB, ship ReconcileCandidateFilter, limit int) ([]*types.Order, error)
  Update(ctx context.Context, tx *gorm.DB, order *types.Order) error
}

// ReconcileCandidateFilter narrows the order table down to rows any of the
// reconciliation strategies could possibly hit.
type ReconcileCandidateFilter struct {
  OrderNumber      string
  ExternalID       string
  OrderKey         string
  CustomerEmail    string
  CustomerName     string
  TrackingNumber   string
  ShipDate         time.Time
}

type orderRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewOrderRepo(db *gorm.DB, baseLog *logger.Logger) OrderRepo {
  repoLog := baseLog.With("repo", "OrderRepo")
  return &orderRepo{db: db, log: repoLog}
}

func (r *orderRepo) Create(ctx context.Context, tx *gorm.DB, orders []*types.Order) ([]*types.Order, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if len(orders) == 0 {
    return []*types.Order{}, nil
  }
  if err := transaction.WithContext(ctx).Create(&orders).Error; err != nil {
    return nil, err
  }
  return orders, nil
}

func (r *orderRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Order, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.Order
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

func (r *orderRepo) GetBySourceExternalID(ctx context.Context, tx *gorm.DB, sourceSystem, externalID string) (*types.Order, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if externalID == "" {
    return nil, nil
  }
  var results []*types.Order
  if err := transaction.WithContext(ctx).
    Where("source_system = ? AND external_id = ?", sourceSystem, externalID).
    Limit(1).
    Find(&results).Error; err != nil {
    return nil, err
  }
  if len(results) == 0 {
    return nil, nil
  }
  return results[0], nil
}

func (r *orderRepo) GetByOrderNumber(ctx context.Context, tx *gorm.DB, orderNumber string) (*types.Order, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if orderNumber == "" {
    return nil, nil
  }
  var results []*types.Order
  if err := transaction.WithContext(ctx).
    Where("order_number = ?", orderNumber).
    Limit(1).
    Find(&results).Error; err != nil {
    return nil, err
  }
  if len(results) == 0 {
    return nil, nil
  }
  return results[0], nil
}

// ListByEmailAround is the bounded per-email candidate set for the import
// dedup cascade: orders for one customer email ordered within the window
// around the incoming record's creation timestamp.
func (r *orderRepo) ListByEmailAround(ctx context.Context, tx *gorm.DB, email string, center time.Time, window time.Duration, limit int) ([]*types.Order, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if email == "" {
    return nil, nil
  }
  if limit <= 0 {
    limit = 50
  }
  var results []*types.Order
  if err := transaction.WithContext(ctx).
    Where("customer_email = ? AND ordered_at BETWEEN ? AND ?", email, center.Add(-window), center.Add(window)).
    Order("ordered_at DESC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *orderRepo) ListReconcileCandidates(ctx context.Context, tx *gorm.DB, f ReconcileCandidateFilter, limit int) ([]*types.Order, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if limit <= 0 {
    limit = 100
  }

  query := transaction.WithContext(ctx).Model(&types.Order{})
  cond := transaction.Session(&gorm.Session{NewDB: true}).Model(&types.Order{})
  matched := false
  if f.OrderNumber != "" {
    cond = cond.Or("order_number = ?", f.OrderNumber).
      Or("internal_notes LIKE ?", "%"+f.OrderNumber+"%")
    matched = true
  }
  if f.ExternalID != "" {
    cond = cond.Or("external_id = ?", f.ExternalID)
    matched = true
  }
  if f.OrderKey != "" {
    cond = cond.Or("order_key = ?", f.OrderKey)
    matched = true
  }
  if f.CustomerEmail != "" {
    cond = cond.Or("customer_email = ? AND ordered_at BETWEEN ? AND ?",
      f.CustomerEmail, f.ShipDate.AddDate(0, 0, -3), f.ShipDate.AddDate(0, 0, 3))
    matched = true
  }
  if f.CustomerName != "" {
    cond = cond.Or("LOWER(customer_name) = ?", f.CustomerName)
    matched = true
  }
  if f.TrackingNumber != "" {
    cond = cond.Or("tracking_number = ?", f.TrackingNumber)
    matched = true
  }
  if !matched {
    return []*types.Order{}, nil
  }

  var results []*types.Order
  if err := query.Where(cond).Order("ordered_at DESC").Limit(limit).Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *orderRepo) Update(ctx context.Context, tx *gorm.DB, order *types.Order) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  return transaction.WithContext(ctx).Save(order).Error
}
