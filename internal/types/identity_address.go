package types

import (
  "time"
  "github.com/google/uuid"
)

// IdentityAddress is one entry of an identity's address history, a child
// table rather than a serialized blob so appends and overlap checks are
// plain queries.
type IdentityAddress struct {
  ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
  IdentityID   uuid.UUID   `gorm:"type:uuid;not null;index;column:identity_id" json:"identity_id"`
  Line         string      `gorm:"not null;column:line" json:"line"`
  Current      bool        `gorm:"not null;default:false;column:current" json:"current"`
  RecordedAt   time.Time   `gorm:"not null;column:recorded_at" json:"recorded_at"`
  CreatedAt    time.Time   `gorm:"not null" json:"created_at"`
}

func (IdentityAddress) TableName() string {
  return "identity_address"
}
