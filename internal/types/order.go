package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

// Order is a shipment/purchase record pulled from one of the upstream
// platforms. At most one row should exist per (source_system, external_id);
// that rule is enforced opportunistically by the import deduplicator, not by
// the schema, so transient duplicates are tolerated and reconciled later.
type Order struct {
  ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
  OrderNumber       string           `gorm:"column:order_number;index" json:"order_number"`
  ExternalID        string           `gorm:"column:external_id;index" json:"external_id"`
  OrderKey          string           `gorm:"column:order_key;index" json:"order_key"`
  SourceSystem      string           `gorm:"column:source_system;index" json:"source_system"`
  CustomerEmail     string           `gorm:"column:customer_email;index" json:"customer_email"`
  CustomerName      string           `gorm:"column:customer_name" json:"customer_name"`
  ShippingAddress   string           `gorm:"column:shipping_address" json:"shipping_address"`
  TrackingNumber    string           `gorm:"column:tracking_number;index" json:"tracking_number"`
  Carrier           string           `gorm:"column:carrier" json:"carrier"`
  Status            string           `gorm:"column:status" json:"status"`
  Total             float64          `gorm:"column:total;not null;default:0" json:"total"`
  ShippingCost      float64          `gorm:"column:shipping_cost;not null;default:0" json:"shipping_cost"`
  Tax               float64          `gorm:"column:tax;not null;default:0" json:"tax"`
  LineItems         datatypes.JSON   `gorm:"column:line_items" json:"line_items,omitempty"`
  InternalNotes     string           `gorm:"column:internal_notes" json:"internal_notes,omitempty"`
  OrderedAt         time.Time        `gorm:"column:ordered_at" json:"ordered_at"`
  RawPayload        datatypes.JSON   `gorm:"column:raw_payload" json:"raw_payload,omitempty"`
  Metadata          datatypes.JSON   `gorm:"column:metadata" json:"metadata,omitempty"`
  CreatedAt         time.Time        `gorm:"not null" json:"created_at"`
  UpdatedAt         time.Time        `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string {
  return "order"
}
