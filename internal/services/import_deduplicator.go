package services

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "math"
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/normalization"
  "github.com/yungbote/disputedesk-backend/internal/repos"
  "github.com/yungbote/disputedesk-backend/internal/sse"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

const (
  ImportResultCreated  = "created"
  ImportResultUpdated  = "updated"
  ImportResultConflict = "conflict"
  ImportResultSkipped  = "skipped"

  // importDedupeWindow is how close in time two orders for the same email
  // must be to count as the same order when no key matches.
  importDedupeWindow = time.Hour

  defaultImportPageSize = 100
)

type LineItem struct {
  SKU        string    `json:"sku"`
  Name       string    `json:"name"`
  Quantity   int       `json:"quantity"`
  UnitPrice  float64   `json:"unit_price"`
}

type IncomingOrder struct {
  ExternalID        string            `json:"external_id"`
  OrderNumber       string            `json:"order_number"`
  SourceSystem      string            `json:"source_system"`
  OrderKey          string            `json:"order_key"`
  CustomerEmail     string            `json:"customer_email"`
  CustomerName      string            `json:"customer_name"`
  ShippingAddress   string            `json:"shipping_address"`
  Status            string            `json:"status"`
  Total             float64           `json:"total"`
  ShippingCost      float64           `json:"shipping_cost"`
  Tax               float64           `json:"tax"`
  LineItems         []LineItem        `json:"line_items"`
  TrackingNumber    string            `json:"tracking_number"`
  OrderedAt         time.Time         `json:"ordered_at"`
  CreatedAt         time.Time         `json:"created_at"`
  Raw               json.RawMessage   `json:"raw,omitempty"`
}

type FieldChange struct {
  Old   any   `json:"old"`
  New   any   `json:"new"`
}

type ImportOutcome struct {
  Result           string                   `json:"result"`
  Order            *types.Order             `json:"order,omitempty"`
  ConflictFields   map[string]FieldChange   `json:"conflict_fields,omitempty"`
  Existing         json.RawMessage          `json:"existing,omitempty"`
  Incoming         json.RawMessage          `json:"incoming,omitempty"`
}

type ImportError struct {
  Index         int      `json:"index"`
  OrderNumber   string   `json:"order_number"`
  Error         string   `json:"error"`
}

type ImportSummary struct {
  RunID       uuid.UUID          `json:"run_id"`
  Total       int                `json:"total"`
  Processed   int                `json:"processed"`
  Created     int                `json:"created"`
  Updated     int                `json:"updated"`
  Skipped     int                `json:"skipped"`
  Conflicts   []*ImportOutcome   `json:"conflicts,omitempty"`
  Errors      []ImportError      `json:"errors,omitempty"`
}

type ImportDeduplicatorService interface {
  FindExistingOrder(ctx context.Context, in IncomingOrder) (*types.Order, error)
  DetectChanges(existing *types.Order, in IncomingOrder) map[string]FieldChange
  ImportSingleOrder(ctx context.Context, in IncomingOrder, actorID string) (*ImportOutcome, error)
  ImportBatch(ctx context.Context, runID uuid.UUID, records []IncomingOrder, actorID string, pageSize int) (*ImportSummary, error)
}

type importDeduplicatorService struct {
  db           *gorm.DB
  log          *logger.Logger
  orderRepo    repos.OrderRepo
  changeRepo   repos.OrderChangeRecordRepo
  publisher    EventPublisher
}

func NewImportDeduplicatorService(
  db *gorm.DB,
  log *logger.Logger,
  orderRepo repos.OrderRepo,
  changeRepo repos.OrderChangeRecordRepo,
  publisher EventPublisher,
) ImportDeduplicatorService {
  serviceLog := log.With("service", "ImportDeduplicatorService")
  return &importDeduplicatorService{
    db:         db,
    log:        serviceLog,
    orderRepo:  orderRepo,
    changeRepo: changeRepo,
    publisher:  publisher,
  }
}

// FindExistingOrder resolves an incoming record to a local order: source id
// first, then order number, then same-email orders placed within an hour of
// the incoming creation timestamp. Nil means genuinely new.
func (s *importDeduplicatorService) FindExistingOrder(ctx context.Context, in IncomingOrder) (*types.Order, error) {
  if order, err := s.orderRepo.GetBySourceExternalID(ctx, nil, in.SourceSystem, in.ExternalID); err != nil {
    return nil, fmt.Errorf("external id lookup: %w", err)
  } else if order != nil {
    return order, nil
  }
  if order, err := s.orderRepo.GetByOrderNumber(ctx, nil, in.OrderNumber); err != nil {
    return nil, fmt.Errorf("order number lookup: %w", err)
  } else if order != nil {
    return order, nil
  }
  email := normalization.NormalizeEmail(in.CustomerEmail)
  if email == "" {
    return nil, nil
  }
  center := in.CreatedAt
  if center.IsZero() {
    center = in.OrderedAt
  }
  candidates, err := s.orderRepo.ListByEmailAround(ctx, nil, email, center, importDedupeWindow, 50)
  if err != nil {
    return nil, fmt.Errorf("email window lookup: %w", err)
  }
  if len(candidates) == 0 {
    return nil, nil
  }
  return candidates[0], nil
}

// orderDiffFields is the declared comparison list. Extending conflict
// detection to a new field means adding a row here, not a new code path.
var orderDiffFields = []struct {
  name    string
  diff    func(existing *types.Order, in IncomingOrder) (FieldChange, bool)
}{
  {"status", func(existing *types.Order, in IncomingOrder) (FieldChange, bool) {
    if in.Status == "" || existing.Status == in.Status {
      return FieldChange{}, false
    }
    return FieldChange{Old: existing.Status, New: in.Status}, true
  }},
  {"total", func(existing *types.Order, in IncomingOrder) (FieldChange, bool) {
    if moneyEqual(existing.Total, in.Total) {
      return FieldChange{}, false
    }
    return FieldChange{Old: existing.Total, New: in.Total}, true
  }},
  {"shipping_cost", func(existing *types.Order, in IncomingOrder) (FieldChange, bool) {
    if moneyEqual(existing.ShippingCost, in.ShippingCost) {
      return FieldChange{}, false
    }
    return FieldChange{Old: existing.ShippingCost, New: in.ShippingCost}, true
  }},
  {"tax", func(existing *types.Order, in IncomingOrder) (FieldChange, bool) {
    if moneyEqual(existing.Tax, in.Tax) {
      return FieldChange{}, false
    }
    return FieldChange{Old: existing.Tax, New: in.Tax}, true
  }},
  {"line_items", func(existing *types.Order, in IncomingOrder) (FieldChange, bool) {
    incoming := canonicalJSON(in.LineItems)
    current := canonicalJSONRaw(existing.LineItems)
    if bytes.Equal(incoming, current) {
      return FieldChange{}, false
    }
    return FieldChange{Old: json.RawMessage(current), New: json.RawMessage(incoming)}, true
  }},
}

// DetectChanges compares the declared field list; a field appears in the map
// only when it differs.
func (s *importDeduplicatorService) DetectChanges(existing *types.Order, in IncomingOrder) map[string]FieldChange {
  changes := make(map[string]FieldChange)
  for _, field := range orderDiffFields {
    if change, changed := field.diff(existing, in); changed {
      changes[field.name] = change
    }
  }
  return changes
}

func (s *importDeduplicatorService) ImportSingleOrder(ctx context.Context, in IncomingOrder, actorID string) (*ImportOutcome, error) {
  existing, err := s.FindExistingOrder(ctx, in)
  if err != nil {
    return nil, err
  }
  if existing == nil {
    return s.createOrder(ctx, in, actorID)
  }

  changes := s.DetectChanges(existing, in)
  if len(changes) == 0 {
    return &ImportOutcome{Result: ImportResultSkipped, Order: existing}, nil
  }

  manuallyEdited, err := s.changeRepo.HasManualEdit(ctx, nil, existing.ID)
  if err != nil {
    return nil, fmt.Errorf("manual edit check: %w", err)
  }
  if manuallyEdited {
    // A human touched this order; the import never overwrites their work.
    existingJSON, _ := json.Marshal(existing)
    incomingJSON := in.Raw
    if len(incomingJSON) == 0 {
      incomingJSON, _ = json.Marshal(in)
    }
    s.log.Info("Import conflict detected",
      "orderID", existing.ID,
      "fields", fieldNames(changes))
    return &ImportOutcome{
      Result:         ImportResultConflict,
      Order:          existing,
      ConflictFields: changes,
      Existing:       existingJSON,
      Incoming:       incomingJSON,
    }, nil
  }

  return s.applyUpdate(ctx, existing, in, changes, actorID)
}

func (s *importDeduplicatorService) createOrder(ctx context.Context, in IncomingOrder, actorID string) (*ImportOutcome, error) {
  order := &types.Order{
    ID:              uuid.New(),
    OrderNumber:     in.OrderNumber,
    ExternalID:      in.ExternalID,
    OrderKey:        in.OrderKey,
    SourceSystem:    in.SourceSystem,
    CustomerEmail:   normalization.NormalizeEmail(in.CustomerEmail),
    CustomerName:    in.CustomerName,
    ShippingAddress: in.ShippingAddress,
    TrackingNumber:  in.TrackingNumber,
    Status:          in.Status,
    Total:           in.Total,
    ShippingCost:    in.ShippingCost,
    Tax:             in.Tax,
    OrderedAt:       in.OrderedAt,
  }
  if len(in.LineItems) > 0 {
    order.LineItems = datatypes.JSON(canonicalJSON(in.LineItems))
  }
  if len(in.Raw) > 0 {
    order.RawPayload = datatypes.JSON(in.Raw)
  }

  err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if _, err := s.orderRepo.Create(ctx, tx, []*types.Order{order}); err != nil {
      return fmt.Errorf("create order: %w", err)
    }
    record := &types.OrderChangeRecord{
      ID:         uuid.New(),
      OrderID:    order.ID,
      Source:     types.ChangeSourceImport,
      ChangeType: types.ChangeTypeImported,
      ActorID:    actorID,
    }
    if _, err := s.changeRepo.Create(ctx, tx, []*types.OrderChangeRecord{record}); err != nil {
      return fmt.Errorf("record import: %w", err)
    }
    return nil
  })
  if err != nil {
    return nil, err
  }
  return &ImportOutcome{Result: ImportResultCreated, Order: order}, nil
}

func (s *importDeduplicatorService) applyUpdate(ctx context.Context, existing *types.Order, in IncomingOrder, changes map[string]FieldChange, actorID string) (*ImportOutcome, error) {
  if _, ok := changes["status"]; ok {
    existing.Status = in.Status
  }
  if _, ok := changes["total"]; ok {
    existing.Total = in.Total
  }
  if _, ok := changes["shipping_cost"]; ok {
    existing.ShippingCost = in.ShippingCost
  }
  if _, ok := changes["tax"]; ok {
    existing.Tax = in.Tax
  }
  if _, ok := changes["line_items"]; ok {
    existing.LineItems = datatypes.JSON(canonicalJSON(in.LineItems))
  }
  if len(in.Raw) > 0 {
    existing.RawPayload = datatypes.JSON(in.Raw)
  }

  diffJSON, err := json.Marshal(changes)
  if err != nil {
    return nil, fmt.Errorf("marshal diff: %w", err)
  }

  err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if err := s.orderRepo.Update(ctx, tx, existing); err != nil {
      return fmt.Errorf("apply import update: %w", err)
    }
    record := &types.OrderChangeRecord{
      ID:         uuid.New(),
      OrderID:    existing.ID,
      Source:     types.ChangeSourceImport,
      ChangeType: types.ChangeTypeUpdated,
      ActorID:    actorID,
      Diff:       datatypes.JSON(diffJSON),
    }
    if _, err := s.changeRepo.Create(ctx, tx, []*types.OrderChangeRecord{record}); err != nil {
      return fmt.Errorf("record import update: %w", err)
    }
    return nil
  })
  if err != nil {
    return nil, err
  }
  return &ImportOutcome{Result: ImportResultUpdated, Order: existing}, nil
}

// ImportBatch walks the records strictly in order, one page at a time,
// emitting a progress event after every record. One bad record is recorded
// and skipped; it never aborts the run. Cancellation is honored between
// records only.
func (s *importDeduplicatorService) ImportBatch(ctx context.Context, runID uuid.UUID, records []IncomingOrder, actorID string, pageSize int) (*ImportSummary, error) {
  if pageSize <= 0 {
    pageSize = defaultImportPageSize
  }
  summary := &ImportSummary{RunID: runID, Total: len(records)}
  channel := sse.ImportRunChannel(runID)

  for start := 0; start < len(records); start += pageSize {
    end := start + pageSize
    if end > len(records) {
      end = len(records)
    }
    s.log.Info("Processing import page", "runID", runID, "from", start, "to", end, "total", len(records))

    for i := start; i < end; i++ {
      if err := ctx.Err(); err != nil {
        s.log.Warn("Import cancelled between records", "runID", runID, "processed", summary.Processed)
        return summary, err
      }
      record := records[i]
      outcome, err := s.ImportSingleOrder(ctx, record, actorID)
      if err != nil {
        summary.Errors = append(summary.Errors, ImportError{
          Index:       i,
          OrderNumber: record.OrderNumber,
          Error:       err.Error(),
        })
        s.log.Warn("Import record failed", "runID", runID, "index", i, "error", err)
      } else {
        switch outcome.Result {
        case ImportResultCreated:
          summary.Created++
        case ImportResultUpdated:
          summary.Updated++
        case ImportResultSkipped:
          summary.Skipped++
        case ImportResultConflict:
          summary.Conflicts = append(summary.Conflicts, outcome)
          if s.publisher != nil {
            s.publisher.Publish(ctx, sse.SSEMessage{
              Channel: channel,
              Event:   sse.SSEEventImportConflict,
              Data:    outcome,
            })
          }
        }
      }
      summary.Processed++

      if s.publisher != nil {
        s.publisher.Publish(ctx, sse.SSEMessage{
          Channel: channel,
          Event:   sse.SSEEventImportProgress,
          Data: map[string]any{
            "run_id":    runID,
            "processed": summary.Processed,
            "total":     summary.Total,
            "created":   summary.Created,
            "updated":   summary.Updated,
            "skipped":   summary.Skipped,
            "conflicts": len(summary.Conflicts),
            "errors":    len(summary.Errors),
            "current":   record.OrderNumber,
          },
        })
      }
    }
  }

  if s.publisher != nil {
    s.publisher.Publish(ctx, sse.SSEMessage{
      Channel: channel,
      Event:   sse.SSEEventImportCompleted,
      Data:    summary,
    })
  }
  return summary, nil
}

func moneyEqual(a, b float64) bool {
  return math.Abs(a-b) < 0.005
}

func fieldNames(changes map[string]FieldChange) []string {
  names := make([]string, 0, len(changes))
  for name := range changes {
    names = append(names, name)
  }
  return names
}

// canonicalJSON re-marshals through a generic value so field order and
// formatting differences between source systems do not register as changes.
func canonicalJSON(v any) []byte {
  raw, err := json.Marshal(v)
  if err != nil {
    return nil
  }
  return canonicalJSONRaw(raw)
}

func canonicalJSONRaw(raw []byte) []byte {
  if len(raw) == 0 {
    return []byte("null")
  }
  var generic any
  if err := json.Unmarshal(raw, &generic); err != nil {
    // Malformed stored payloads degrade to empty rather than failing the
    // comparison outright.
    return []byte("null")
  }
  out, err := json.Marshal(generic)
  if err != nil {
    return []byte("null")
  }
  return out
}
