package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

const (
  ChangeSourceImport       = "import"
  ChangeSourceManualEdit   = "manual_edit"

  ChangeTypeImported       = "imported"
  ChangeTypeUpdated        = "updated"
  ChangeTypeManualEdit     = "manual_edit"
  ChangeTypeShipmentLinked = "shipment_linked"
)

// OrderChangeRecord is the append-only audit trail for an order. The presence
// of a manual_edit row is what turns a detected import diff into a conflict
// instead of a silent auto-update.
type OrderChangeRecord struct {
  ID           uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
  OrderID      uuid.UUID        `gorm:"type:uuid;not null;index;column:order_id" json:"order_id"`
  Order        *Order           `gorm:"constraint:OnDelete:CASCADE;foreignKey:OrderID;references:ID" json:"order,omitempty"`
  Source       string           `gorm:"not null;index;column:source" json:"source"`
  ChangeType   string           `gorm:"not null;column:change_type" json:"change_type"`
  ActorID      string           `gorm:"column:actor_id" json:"actor_id"`
  Diff         datatypes.JSON   `gorm:"column:diff" json:"diff,omitempty"`
  CreatedAt    time.Time        `gorm:"not null" json:"created_at"`
}

func (OrderChangeRecord) TableName() string {
  return "order_change_record"
}
