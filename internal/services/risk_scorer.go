package services

import (
  "context"
  "encoding/json"
  "fmt"
  "math"
  "sync"
  "time"
  "github.com/google/uuid"
  "golang.org/x/sync/errgroup"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/repos"
  "github.com/yungbote/disputedesk-backend/internal/sse"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

const (
  disputeWeight        = 0.35
  supportWeight        = 0.25
  reviewWeight         = 0.20
  orderFrequencyWeight = 0.10
  engagementWeight     = 0.10

  criticalThreshold = 75
  highThreshold     = 50
  mediumThreshold   = 25

  // Confidence caps out low when almost nothing backed the score.
  lowSignalConfidenceCap = 40
)

type DisputeStats struct {
  TotalOrders      int   `json:"total_orders"`
  TotalDisputes    int   `json:"total_disputes"`
  RecentDisputes   int   `json:"recent_disputes"`
}

type SupportStats struct {
  TicketCount          int       `json:"ticket_count"`
  EscalatedCount       int       `json:"escalated_count"`
  AvgResolutionHours   float64   `json:"avg_resolution_hours"`
  SatisfactionScore    float64   `json:"satisfaction_score"`
}

type ReviewStats struct {
  ReviewCount       int       `json:"review_count"`
  NegativeReviews   int       `json:"negative_reviews"`
  AvgRating         float64   `json:"avg_rating"`
}

type EngagementStats struct {
  EmailsReceived   int       `json:"emails_received"`
  OpenRate         float64   `json:"open_rate"`
  ClickRate        float64   `json:"click_rate"`
  Unsubscribed     bool      `json:"unsubscribed"`
}

type OrderStats struct {
  OrderCount      int         `json:"order_count"`
  LifetimeValue   float64     `json:"lifetime_value"`
  FirstOrderAt    time.Time   `json:"first_order_at"`
  LastOrderAt     time.Time   `json:"last_order_at"`
}

// SignalSources are injected provider funcs for the upstream statistic
// bundles. A nil provider means that signal simply is not available in this
// deployment; a provider error marks the one signal unavailable without
// failing the whole computation.
type SignalSources struct {
  Dispute      func(ctx context.Context, identityID uuid.UUID) (*DisputeStats, error)
  Support      func(ctx context.Context, email string) (*SupportStats, error)
  Review       func(ctx context.Context, email string) (*ReviewStats, error)
  Engagement   func(ctx context.Context, email string) (*EngagementStats, error)
  Orders       func(ctx context.Context, email string) (*OrderStats, error)
}

type signalBundle struct {
  dispute      *DisputeStats
  support      *SupportStats
  review       *ReviewStats
  engagement   *EngagementStats
  orders       *OrderStats
  failures     []*SignalUnavailableError
}

type factorResult struct {
  Score         int        `json:"score"`
  Contributed   bool       `json:"contributed"`
  Notes         []string   `json:"notes,omitempty"`
  Unavailable   string     `json:"unavailable,omitempty"`
}

type RiskScorerService interface {
  CalculateRiskScore(ctx context.Context, identityID uuid.UUID, email string) (*types.RiskScore, error)
  GetRiskScore(ctx context.Context, identityID uuid.UUID) (*types.RiskScore, error)
}

type riskScorerService struct {
  db             *gorm.DB
  log            *logger.Logger
  identityRepo   repos.CustomerIdentityRepo
  riskRepo       repos.RiskScoreRepo
  caseRepo       repos.DisputeCaseRepo
  sources        SignalSources
  publisher      EventPublisher
}

func NewRiskScorerService(
  db *gorm.DB,
  log *logger.Logger,
  identityRepo repos.CustomerIdentityRepo,
  riskRepo repos.RiskScoreRepo,
  caseRepo repos.DisputeCaseRepo,
  sources SignalSources,
  publisher EventPublisher,
) RiskScorerService {
  serviceLog := log.With("service", "RiskScorerService")
  return &riskScorerService{
    db:           db,
    log:          serviceLog,
    identityRepo: identityRepo,
    riskRepo:     riskRepo,
    caseRepo:     caseRepo,
    sources:      sources,
    publisher:    publisher,
  }
}

func (s *riskScorerService) CalculateRiskScore(ctx context.Context, identityID uuid.UUID, email string) (*types.RiskScore, error) {
  identities, err := s.identityRepo.GetByIDs(ctx, nil, []uuid.UUID{identityID})
  if err != nil {
    return nil, fmt.Errorf("load identity: %w", err)
  }
  if len(identities) == 0 {
    return nil, ErrIdentityNotFound
  }
  identity := identities[0]
  if email == "" {
    email = identity.NormalizedEmail
  }

  signals := s.gatherSignals(ctx, identity, email)

  dispute := scoreDispute(signals.dispute)
  support := scoreSupport(signals.support)
  review := scoreReview(signals.review)
  frequency := scoreOrderFrequency(signals.orders)
  engagement := scoreEngagement(signals.engagement)

  overall := int(math.Round(
    float64(dispute.Score)*disputeWeight +
      float64(support.Score)*supportWeight +
      float64(review.Score)*reviewWeight +
      float64(frequency.Score)*orderFrequencyWeight +
      float64(engagement.Score)*engagementWeight))
  level := riskLevel(overall)
  confidence := signalConfidence(dispute, support, review, frequency, engagement)
  recommendations := buildRecommendations(level, dispute, support, review, frequency, engagement)

  breakdown := map[string]any{
    "dispute":         dispute,
    "support":         support,
    "review":          review,
    "order_frequency": frequency,
    "engagement":      engagement,
  }
  for _, failure := range signals.failures {
    if entry, ok := breakdown[failure.Signal].(factorResult); ok {
      entry.Unavailable = failure.Err.Error()
      breakdown[failure.Signal] = entry
    }
  }
  breakdownJSON, err := json.Marshal(breakdown)
  if err != nil {
    return nil, fmt.Errorf("marshal breakdown: %w", err)
  }
  recommendationsJSON, err := json.Marshal(recommendations)
  if err != nil {
    return nil, fmt.Errorf("marshal recommendations: %w", err)
  }

  score := &types.RiskScore{
    ID:                  uuid.New(),
    IdentityID:          identity.ID,
    OverallScore:        overall,
    Level:               level,
    DisputeScore:        dispute.Score,
    SupportScore:        support.Score,
    ReviewScore:         review.Score,
    OrderFrequencyScore: frequency.Score,
    EngagementScore:     engagement.Score,
    Confidence:          confidence,
    Breakdown:           datatypes.JSON(breakdownJSON),
    Recommendations:     datatypes.JSON(recommendationsJSON),
    ComputedAt:          time.Now().UTC(),
  }

  err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if _, err := s.riskRepo.Upsert(ctx, tx, score); err != nil {
      return fmt.Errorf("persist risk score: %w", err)
    }
    if err := s.caseRepo.UpdateRiskLevelByIdentityID(ctx, tx, identity.ID, level); err != nil {
      return fmt.Errorf("refresh case risk levels: %w", err)
    }
    return nil
  })
  if err != nil {
    return nil, err
  }

  s.log.Info("Risk score computed",
    "identityID", identity.ID,
    "overall", overall,
    "level", level,
    "confidence", confidence,
    "unavailableSignals", len(signals.failures))

  if s.publisher != nil {
    s.publisher.Publish(ctx, sse.SSEMessage{
      Channel: sse.IdentityChannel(identity.ID),
      Event:   sse.SSEEventRiskScoreUpdated,
      Data:    score,
    })
  }
  return score, nil
}

func (s *riskScorerService) GetRiskScore(ctx context.Context, identityID uuid.UUID) (*types.RiskScore, error) {
  return s.riskRepo.GetByIdentityID(ctx, nil, identityID)
}

// gatherSignals fans out to every configured provider at once. Provider
// failures are collected per signal; none of them abort the group.
func (s *riskScorerService) gatherSignals(ctx context.Context, identity *types.CustomerIdentity, email string) *signalBundle {
  bundle := &signalBundle{}
  var mu sync.Mutex
  group, groupCtx := errgroup.WithContext(ctx)

  recordFailure := func(signal string, err error) {
    mu.Lock()
    defer mu.Unlock()
    bundle.failures = append(bundle.failures, &SignalUnavailableError{Signal: signal, Err: err})
  }

  group.Go(func() error {
    if s.sources.Dispute == nil {
      // Local counters are always on hand even without an external provider.
      mu.Lock()
      bundle.dispute = &DisputeStats{
        TotalOrders:   identity.TotalOrders,
        TotalDisputes: identity.DisputeCount,
      }
      mu.Unlock()
      return nil
    }
    stats, err := s.sources.Dispute(groupCtx, identity.ID)
    if err != nil {
      recordFailure("dispute", err)
      return nil
    }
    mu.Lock()
    bundle.dispute = stats
    mu.Unlock()
    return nil
  })
  group.Go(func() error {
    if s.sources.Support == nil {
      return nil
    }
    stats, err := s.sources.Support(groupCtx, email)
    if err != nil {
      recordFailure("support", err)
      return nil
    }
    mu.Lock()
    bundle.support = stats
    mu.Unlock()
    return nil
  })
  group.Go(func() error {
    if s.sources.Review == nil {
      return nil
    }
    stats, err := s.sources.Review(groupCtx, email)
    if err != nil {
      recordFailure("review", err)
      return nil
    }
    mu.Lock()
    bundle.review = stats
    mu.Unlock()
    return nil
  })
  group.Go(func() error {
    if s.sources.Engagement == nil {
      return nil
    }
    stats, err := s.sources.Engagement(groupCtx, email)
    if err != nil {
      recordFailure("engagement", err)
      return nil
    }
    mu.Lock()
    bundle.engagement = stats
    mu.Unlock()
    return nil
  })
  group.Go(func() error {
    if s.sources.Orders == nil {
      mu.Lock()
      bundle.orders = &OrderStats{
        OrderCount:    identity.TotalOrders,
        LifetimeValue: identity.LifetimeValue,
        FirstOrderAt:  identity.FirstSeenAt,
        LastOrderAt:   identity.LastSeenAt,
      }
      mu.Unlock()
      return nil
    }
    stats, err := s.sources.Orders(groupCtx, email)
    if err != nil {
      // Named after its breakdown key so the failure annotates the factor.
      recordFailure("order_frequency", err)
      return nil
    }
    mu.Lock()
    bundle.orders = stats
    mu.Unlock()
    return nil
  })

  _ = group.Wait()
  for _, failure := range bundle.failures {
    s.log.Warn("Risk signal unavailable", "signal", failure.Signal, "error", failure.Err)
  }
  return bundle
}

func scoreDispute(stats *DisputeStats) factorResult {
  result := factorResult{}
  if stats == nil {
    return result
  }
  if stats.TotalOrders == 0 && stats.TotalDisputes == 0 {
    return result
  }
  result.Contributed = true
  score := 0
  if stats.TotalOrders > 0 {
    rate := float64(stats.TotalDisputes) / float64(stats.TotalOrders)
    switch {
    case rate > 0.20:
      score += 40
      result.Notes = append(result.Notes, "dispute rate above 20%")
    case rate > 0.10:
      score += 25
      result.Notes = append(result.Notes, "dispute rate above 10%")
    case rate > 0.05:
      score += 15
      result.Notes = append(result.Notes, "dispute rate above 5%")
    }
  }
  switch {
  case stats.RecentDisputes >= 3:
    score += 30
    result.Notes = append(result.Notes, "3+ disputes in recent window")
  case stats.RecentDisputes >= 1:
    score += 15
    result.Notes = append(result.Notes, "dispute in recent window")
  }
  switch {
  case stats.TotalDisputes >= 5:
    score += 30
  case stats.TotalDisputes >= 2:
    score += 15
  case stats.TotalDisputes == 1:
    score += 5
  }
  result.Score = capScore(score)
  return result
}

func scoreSupport(stats *SupportStats) factorResult {
  result := factorResult{}
  if stats == nil || stats.TicketCount == 0 {
    return result
  }
  result.Contributed = true
  score := 0
  switch {
  case stats.TicketCount >= 10:
    score += 30
    result.Notes = append(result.Notes, "heavy support contact")
  case stats.TicketCount >= 5:
    score += 20
  case stats.TicketCount >= 2:
    score += 10
  }
  if stats.TicketCount > 0 {
    escalationRate := float64(stats.EscalatedCount) / float64(stats.TicketCount)
    switch {
    case escalationRate > 0.50:
      score += 35
      result.Notes = append(result.Notes, "majority of tickets escalated")
    case escalationRate > 0.25:
      score += 20
    }
  }
  if stats.AvgResolutionHours > 72 {
    score += 15
    result.Notes = append(result.Notes, "slow resolutions")
  }
  if stats.SatisfactionScore > 0 && stats.SatisfactionScore < 3.0 {
    score += 20
    result.Notes = append(result.Notes, "low satisfaction")
  }
  result.Score = capScore(score)
  return result
}

func scoreReview(stats *ReviewStats) factorResult {
  result := factorResult{}
  if stats == nil || stats.ReviewCount == 0 {
    return result
  }
  result.Contributed = true
  score := 0
  negativeRate := float64(stats.NegativeReviews) / float64(stats.ReviewCount)
  switch {
  case negativeRate > 0.50:
    score += 40
    result.Notes = append(result.Notes, "mostly negative reviews")
  case negativeRate > 0.25:
    score += 25
  case negativeRate > 0:
    score += 10
  }
  if stats.AvgRating > 0 {
    switch {
    case stats.AvgRating < 2.0:
      score += 35
      result.Notes = append(result.Notes, "average rating below 2")
    case stats.AvgRating < 3.0:
      score += 20
    }
  }
  result.Score = capScore(score)
  return result
}

func scoreOrderFrequency(stats *OrderStats) factorResult {
  result := factorResult{}
  if stats == nil || stats.OrderCount == 0 {
    return result
  }
  result.Contributed = true
  score := 0
  // Single-order accounts carry more fraud risk than established buyers.
  switch {
  case stats.OrderCount == 1:
    score += 25
    result.Notes = append(result.Notes, "single order on record")
  case stats.OrderCount <= 3:
    score += 10
  }
  if stats.OrderCount > 0 {
    avgValue := stats.LifetimeValue / float64(stats.OrderCount)
    if avgValue > 500 {
      score += 20
      result.Notes = append(result.Notes, "high average order value")
    }
  }
  if !stats.FirstOrderAt.IsZero() && time.Since(stats.FirstOrderAt) < 30*24*time.Hour {
    score += 15
    result.Notes = append(result.Notes, "account younger than 30 days")
  }
  result.Score = capScore(score)
  return result
}

func scoreEngagement(stats *EngagementStats) factorResult {
  result := factorResult{}
  if stats == nil || stats.EmailsReceived == 0 {
    return result
  }
  result.Contributed = true
  score := 0
  if stats.Unsubscribed {
    score += 30
    result.Notes = append(result.Notes, "unsubscribed from email")
  }
  if stats.OpenRate < 0.05 {
    score += 25
    result.Notes = append(result.Notes, "near-zero open rate")
  } else if stats.OpenRate < 0.15 {
    score += 10
  }
  if stats.ClickRate == 0 && stats.EmailsReceived >= 10 {
    score += 15
  }
  result.Score = capScore(score)
  return result
}

func riskLevel(overall int) string {
  switch {
  case overall >= criticalThreshold:
    return types.RiskLevelCritical
  case overall >= highThreshold:
    return types.RiskLevelHigh
  case overall >= mediumThreshold:
    return types.RiskLevelMedium
  default:
    return types.RiskLevelLow
  }
}

// signalConfidence scales the count of contributing signal sets to 0-100 and
// caps the result when fewer than two contributed.
func signalConfidence(factors ...factorResult) int {
  contributed := 0
  for _, factor := range factors {
    if factor.Contributed {
      contributed++
    }
  }
  confidence := contributed * 100 / len(factors)
  if contributed < 2 && confidence > lowSignalConfidenceCap {
    confidence = lowSignalConfidenceCap
  }
  return confidence
}

func buildRecommendations(level string, dispute, support, review, frequency, engagement factorResult) []string {
  var recommendations []string
  if dispute.Score >= 50 {
    recommendations = append(recommendations, "Require photo evidence before approving any claim for this customer.")
  } else if dispute.Score >= 25 {
    recommendations = append(recommendations, "Review prior dispute outcomes before approving new claims.")
  }
  if support.Score >= 50 {
    recommendations = append(recommendations, "Route support contacts from this customer to a senior agent.")
  }
  if review.Score >= 50 {
    recommendations = append(recommendations, "Flag public review activity for the retention team.")
  }
  if frequency.Score >= 25 {
    recommendations = append(recommendations, "Verify shipping address on the next order from this account.")
  }
  if engagement.Score >= 30 {
    recommendations = append(recommendations, "Exclude this customer from promotional campaigns.")
  }
  switch level {
  case types.RiskLevelCritical:
    recommendations = append(recommendations, "Escalate all open cases for this customer to manual review.")
  case types.RiskLevelHigh:
    recommendations = append(recommendations, "Hold automatic refunds pending agent approval.")
  }
  if len(recommendations) == 0 {
    recommendations = append(recommendations, "No elevated risk signals; standard handling applies.")
  }
  return recommendations
}

func capScore(score int) int {
  if score > 100 {
    return 100
  }
  return score
}
