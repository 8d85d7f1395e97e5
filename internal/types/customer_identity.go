package types

import (
  "time"
  "github.com/google/uuid"
)

// CustomerIdentity is the canonical customer record. Raw contact observations
// from the shipping, storefront, marketing and ticketing platforms all resolve
// to exactly one active identity. An identity with MasterIdentityID set has
// been merged away: it stays as a tombstone for audit and is excluded from
// all future matching.
type CustomerIdentity struct {
  ID                 uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
  NormalizedEmail    string              `gorm:"column:normalized_email;index" json:"normalized_email"`
  NormalizedPhone    string              `gorm:"column:normalized_phone;index" json:"normalized_phone"`
  DisplayName        string              `gorm:"column:display_name" json:"display_name"`
  CurrentAddress     string              `gorm:"column:current_address" json:"current_address"`
  FirstSeenAt        time.Time           `gorm:"column:first_seen_at;not null" json:"first_seen_at"`
  LastSeenAt         time.Time           `gorm:"column:last_seen_at;not null" json:"last_seen_at"`
  TotalOrders        int                 `gorm:"column:total_orders;not null;default:0" json:"total_orders"`
  LifetimeValue      float64             `gorm:"column:lifetime_value;not null;default:0" json:"lifetime_value"`
  DisputeCount       int                 `gorm:"column:dispute_count;not null;default:0" json:"dispute_count"`
  MasterIdentityID   *uuid.UUID          `gorm:"type:uuid;column:master_identity_id;index" json:"master_identity_id,omitempty"`
  MergedAt           *time.Time          `gorm:"column:merged_at" json:"merged_at,omitempty"`
  MergedBy           string              `gorm:"column:merged_by" json:"merged_by,omitempty"`
  Addresses          []*IdentityAddress  `gorm:"foreignKey:IdentityID;references:ID" json:"addresses,omitempty"`
  CreatedAt          time.Time           `gorm:"not null" json:"created_at"`
  UpdatedAt          time.Time           `gorm:"not null" json:"updated_at"`
}

func (CustomerIdentity) TableName() string {
  return "customer_identity"
}

func (ci *CustomerIdentity) IsMerged() bool {
  return ci.MasterIdentityID != nil
}
