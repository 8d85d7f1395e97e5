package types

import (
  "time"
  "github.com/google/uuid"
)

const (
  CaseStatusOpen     = "open"
  CaseStatusInReview = "in_review"
  CaseStatusResolved = "resolved"
)

// DisputeCase is the dashboard's unit of work. The core only creates and
// annotates cases (risk level copy); everything else about case workflow
// lives outside this service.
type DisputeCase struct {
  ID           uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
  IdentityID   uuid.UUID          `gorm:"type:uuid;not null;index;column:identity_id" json:"identity_id"`
  Identity     *CustomerIdentity  `gorm:"constraint:OnDelete:CASCADE;foreignKey:IdentityID;references:ID" json:"identity,omitempty"`
  OrderID      *uuid.UUID         `gorm:"type:uuid;index;column:order_id" json:"order_id,omitempty"`
  Subject      string             `gorm:"not null;column:subject" json:"subject"`
  Status       string             `gorm:"not null;index;column:status" json:"status"`
  RiskLevel    string             `gorm:"column:risk_level" json:"risk_level,omitempty"`
  OpenedBy     string             `gorm:"column:opened_by" json:"opened_by"`
  CreatedAt    time.Time          `gorm:"not null" json:"created_at"`
  UpdatedAt    time.Time          `gorm:"not null" json:"updated_at"`
}

func (DisputeCase) TableName() string {
  return "dispute_case"
}
