package services

import (
  "context"
  "fmt"
  "strings"
  "time"
  "gorm.io/gorm"
  "github.com/google/uuid"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/normalization"
  "github.com/yungbote/disputedesk-backend/internal/repos"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

const (
  StrategyOrderNumber     = "order_number"
  StrategyExternalID      = "external_id"
  StrategyOrderKey        = "order_key"
  StrategyNoteReference   = "note_reference"
  StrategyEmailDateWindow = "email_date_window"
  StrategyNameSameDay     = "name_same_day"
  StrategyTrackingNumber  = "tracking_number"
)

// emailDateWindow is how far an order date may sit from the ship date for the
// email strategy to still consider them the same purchase.
const emailDateWindow = 3 * 24 * time.Hour

type ShipmentEvent struct {
  TrackingNumber   string      `json:"tracking_number"`
  Carrier          string      `json:"carrier"`
  OrderNumber      string      `json:"order_number"`
  OrderKey         string      `json:"order_key"`
  ExternalID       string      `json:"external_id"`
  CustomerEmail    string      `json:"customer_email"`
  CustomerName     string      `json:"customer_name"`
  ShipDate         time.Time   `json:"ship_date"`
  Voided           bool        `json:"voided"`
}

type ReconcileMatch struct {
  Order      *types.Order   `json:"order"`
  Strategy   string         `json:"strategy"`
}

type OrderReconcilerService interface {
  FindMatchingOrder(ctx context.Context, ship ShipmentEvent, candidates []*types.Order) (*ReconcileMatch, error)
  LinkShipment(ctx context.Context, ship ShipmentEvent, actorID string) (*ReconcileMatch, error)
}

type orderReconcilerService struct {
  db           *gorm.DB
  log          *logger.Logger
  orderRepo    repos.OrderRepo
  changeRepo   repos.OrderChangeRecordRepo
}

func NewOrderReconcilerService(
  db *gorm.DB,
  log *logger.Logger,
  orderRepo repos.OrderRepo,
  changeRepo repos.OrderChangeRecordRepo,
) OrderReconcilerService {
  serviceLog := log.With("service", "OrderReconcilerService")
  return &orderReconcilerService{
    db:         db,
    log:        serviceLog,
    orderRepo:  orderRepo,
    changeRepo: changeRepo,
  }
}

type reconcileStrategy struct {
  name    string
  matches func(ship ShipmentEvent, order *types.Order) bool
}

// The cascade is strict: the first strategy with a hit wins and strategy
// order is the only tie-break. There is no scoring.
var reconcileStrategies = []reconcileStrategy{
  {StrategyOrderNumber, matchOrderNumber},
  {StrategyExternalID, matchExternalID},
  {StrategyOrderKey, matchOrderKey},
  {StrategyNoteReference, matchNoteReference},
  {StrategyEmailDateWindow, matchEmailDateWindow},
  {StrategyNameSameDay, matchNameSameDay},
  {StrategyTrackingNumber, matchTrackingNumber},
}

// FindMatchingOrder walks the cascade over the supplied candidates. A voided
// shipment never matches, and exhausting the cascade is a normal outcome that
// leaves the shipment unlinked, not an error.
func (s *orderReconcilerService) FindMatchingOrder(ctx context.Context, ship ShipmentEvent, candidates []*types.Order) (*ReconcileMatch, error) {
  if ship.Voided {
    s.log.Debug("Skipping voided shipment", "trackingNumber", ship.TrackingNumber)
    return nil, nil
  }
  for _, strategy := range reconcileStrategies {
    for _, order := range candidates {
      if order == nil {
        continue
      }
      if strategy.matches(ship, order) {
        s.log.Debug("Shipment matched order",
          "strategy", strategy.name,
          "orderID", order.ID,
          "trackingNumber", ship.TrackingNumber)
        return &ReconcileMatch{Order: order, Strategy: strategy.name}, nil
      }
    }
  }
  return nil, nil
}

// LinkShipment loads a bounded candidate set, runs the cascade and, on a hit,
// stores the tracking details on the order with a change record attributing
// the link to the import source.
func (s *orderReconcilerService) LinkShipment(ctx context.Context, ship ShipmentEvent, actorID string) (*ReconcileMatch, error) {
  if ship.Voided {
    return nil, nil
  }
  filter := repos.ReconcileCandidateFilter{
    OrderNumber:    ship.OrderNumber,
    ExternalID:     ship.ExternalID,
    OrderKey:       ship.OrderKey,
    CustomerEmail:  normalization.NormalizeEmail(ship.CustomerEmail),
    CustomerName:   normalization.NormalizeName(ship.CustomerName),
    TrackingNumber: ship.TrackingNumber,
    ShipDate:       ship.ShipDate,
  }
  candidates, err := s.orderRepo.ListReconcileCandidates(ctx, nil, filter, 100)
  if err != nil {
    return nil, fmt.Errorf("load reconcile candidates: %w", err)
  }
  match, err := s.FindMatchingOrder(ctx, ship, candidates)
  if err != nil || match == nil {
    return match, err
  }

  err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    match.Order.TrackingNumber = ship.TrackingNumber
    if ship.Carrier != "" {
      match.Order.Carrier = ship.Carrier
    }
    if err := s.orderRepo.Update(ctx, tx, match.Order); err != nil {
      return fmt.Errorf("store tracking on order: %w", err)
    }
    record := &types.OrderChangeRecord{
      ID:         uuid.New(),
      OrderID:    match.Order.ID,
      Source:     types.ChangeSourceImport,
      ChangeType: types.ChangeTypeShipmentLinked,
      ActorID:    actorID,
    }
    if _, err := s.changeRepo.Create(ctx, tx, []*types.OrderChangeRecord{record}); err != nil {
      return fmt.Errorf("record shipment link: %w", err)
    }
    return nil
  })
  if err != nil {
    return nil, err
  }
  return match, nil
}

func matchOrderNumber(ship ShipmentEvent, order *types.Order) bool {
  return ship.OrderNumber != "" && ship.OrderNumber == order.OrderNumber
}

func matchExternalID(ship ShipmentEvent, order *types.Order) bool {
  return ship.ExternalID != "" && ship.ExternalID == order.ExternalID
}

func matchOrderKey(ship ShipmentEvent, order *types.Order) bool {
  return ship.OrderKey != "" && ship.OrderKey == order.OrderKey
}

func matchNoteReference(ship ShipmentEvent, order *types.Order) bool {
  if ship.OrderNumber == "" || order.InternalNotes == "" {
    return false
  }
  return strings.Contains(strings.ToLower(order.InternalNotes), strings.ToLower(ship.OrderNumber))
}

func matchEmailDateWindow(ship ShipmentEvent, order *types.Order) bool {
  if ship.CustomerEmail == "" || order.CustomerEmail == "" {
    return false
  }
  if normalization.NormalizeEmail(ship.CustomerEmail) != normalization.NormalizeEmail(order.CustomerEmail) {
    return false
  }
  delta := ship.ShipDate.Sub(order.OrderedAt)
  if delta < 0 {
    delta = -delta
  }
  return delta <= emailDateWindow
}

func matchNameSameDay(ship ShipmentEvent, order *types.Order) bool {
  if ship.CustomerName == "" || order.CustomerName == "" {
    return false
  }
  if !strings.EqualFold(strings.TrimSpace(ship.CustomerName), strings.TrimSpace(order.CustomerName)) {
    return false
  }
  shipY, shipM, shipD := ship.ShipDate.Date()
  orderY, orderM, orderD := order.OrderedAt.Date()
  return shipY == orderY && shipM == orderM && shipD == orderD
}

func matchTrackingNumber(ship ShipmentEvent, order *types.Order) bool {
  return ship.TrackingNumber != "" && ship.TrackingNumber == order.TrackingNumber
}
