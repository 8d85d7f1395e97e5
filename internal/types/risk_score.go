package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

const (
  RiskLevelLow      = "low"
  RiskLevelMedium   = "medium"
  RiskLevelHigh     = "high"
  RiskLevelCritical = "critical"
)

// RiskScore is a derived, replaceable snapshot per identity. Recomputation
// upserts on IdentityID; no history is kept.
type RiskScore struct {
  ID                    uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
  IdentityID            uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex;column:identity_id" json:"identity_id"`
  Identity              *CustomerIdentity `gorm:"constraint:OnDelete:CASCADE;foreignKey:IdentityID;references:ID" json:"identity,omitempty"`
  OverallScore          int              `gorm:"not null;column:overall_score" json:"overall_score"`
  Level                 string           `gorm:"not null;column:level" json:"level"`
  DisputeScore          int              `gorm:"not null;column:dispute_score" json:"dispute_score"`
  SupportScore          int              `gorm:"not null;column:support_score" json:"support_score"`
  ReviewScore           int              `gorm:"not null;column:review_score" json:"review_score"`
  OrderFrequencyScore   int              `gorm:"not null;column:order_frequency_score" json:"order_frequency_score"`
  EngagementScore       int              `gorm:"not null;column:engagement_score" json:"engagement_score"`
  Confidence            int              `gorm:"not null;column:confidence" json:"confidence"`
  Breakdown             datatypes.JSON   `gorm:"column:breakdown" json:"breakdown,omitempty"`
  Recommendations       datatypes.JSON   `gorm:"column:recommendations" json:"recommendations,omitempty"`
  ComputedAt            time.Time        `gorm:"not null;column:computed_at" json:"computed_at"`
  CreatedAt             time.Time        `gorm:"not null" json:"created_at"`
  UpdatedAt             time.Time        `gorm:"not null" json:"updated_at"`
}

func (RiskScore) TableName() string {
  return "risk_score"
}
