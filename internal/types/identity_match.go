package types

import (
  "time"
  "github.com/google/uuid"
)

const (
  MatchTypeExactEmail      = "exact_email"
  MatchTypeExactPhone      = "exact_phone"
  MatchTypeFuzzyName       = "fuzzy_name"
  MatchTypeAddressOverlap  = "address_overlap"
  MatchTypeManual          = "manual"

  MatchStatusPending       = "pending"
  MatchStatusAutoMerged    = "auto_merged"
  MatchStatusAccepted      = "accepted"
  MatchStatusRejected      = "rejected"
)

// IdentityMatch is an edge between two identities considered by the resolver.
// Status is auto_merged only when Confidence >= 90 at creation time and is
// never rewritten afterwards; review either rejects a pending row or drives a
// merge, it does not edit the row's status history.
type IdentityMatch struct {
  ID            uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
  IdentityID    uuid.UUID           `gorm:"type:uuid;not null;index;column:identity_id" json:"identity_id"`
  Identity      *CustomerIdentity   `gorm:"constraint:OnDelete:CASCADE;foreignKey:IdentityID;references:ID" json:"identity,omitempty"`
  CandidateID   uuid.UUID           `gorm:"type:uuid;not null;index;column:candidate_id" json:"candidate_id"`
  Candidate     *CustomerIdentity   `gorm:"constraint:OnDelete:CASCADE;foreignKey:CandidateID;references:ID" json:"candidate,omitempty"`
  MatchType     string              `gorm:"not null;column:match_type" json:"match_type"`
  Confidence    int                 `gorm:"not null;column:confidence" json:"confidence"`
  Reason        string              `gorm:"column:reason" json:"reason"`
  Status        string              `gorm:"not null;index;column:status" json:"status"`
  ReviewedBy    string              `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
  ReviewedAt    *time.Time          `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
  CreatedAt     time.Time           `gorm:"not null" json:"created_at"`
  UpdatedAt     time.Time           `gorm:"not null" json:"updated_at"`
}

func (IdentityMatch) TableName() string {
  return "identity_match"
}
