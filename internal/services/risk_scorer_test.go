package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/disputedesk-backend/internal/repos"
	"github.com/yungbote/disputedesk-backend/internal/types"
)

func TestScoreDispute_MonotoneInDisputeRate(t *testing.T) {
	prev := -1
	for disputes := 0; disputes <= 20; disputes++ {
		result := scoreDispute(&DisputeStats{TotalOrders: 20, TotalDisputes: disputes})
		if result.Score < prev {
			t.Fatalf("score dropped from %d to %d at %d disputes", prev, result.Score, disputes)
		}
		prev = result.Score
	}
}

func TestScoreDispute_RateThresholds(t *testing.T) {
	tests := []struct {
		name      string
		stats     DisputeStats
		wantScore int
	}{
		{"no data", DisputeStats{}, 0},
		{"clean history", DisputeStats{TotalOrders: 10}, 0},
		// 1/10 = 10% rate adds nothing at the >10% threshold, but one total
		// dispute still costs 5.
		{"at ten percent", DisputeStats{TotalOrders: 10, TotalDisputes: 1}, 5},
		{"above twenty percent", DisputeStats{TotalOrders: 10, TotalDisputes: 3}, 55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scoreDispute(&tt.stats)
			if result.Score != tt.wantScore {
				t.Fatalf("expected %d got %d", tt.wantScore, result.Score)
			}
		})
	}
}

func TestScoreDispute_CappedAtHundred(t *testing.T) {
	result := scoreDispute(&DisputeStats{TotalOrders: 10, TotalDisputes: 9, RecentDisputes: 5})
	if result.Score != 100 {
		t.Fatalf("expected cap at 100, got %d", result.Score)
	}
}

func TestRiskLevelThresholds(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, types.RiskLevelLow},
		{24, types.RiskLevelLow},
		{25, types.RiskLevelMedium},
		{49, types.RiskLevelMedium},
		{50, types.RiskLevelHigh},
		{74, types.RiskLevelHigh},
		{75, types.RiskLevelCritical},
		{100, types.RiskLevelCritical},
	}
	for _, tt := range tests {
		if got := riskLevel(tt.score); got != tt.want {
			t.Fatalf("riskLevel(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestSignalConfidence_ScalesAndCaps(t *testing.T) {
	c := func(contributed int) int {
		factors := make([]factorResult, 5)
		for i := 0; i < contributed; i++ {
			factors[i].Contributed = true
		}
		return signalConfidence(factors...)
	}
	if got := c(0); got != 0 {
		t.Fatalf("zero signals: %d", got)
	}
	if got := c(1); got != 20 {
		t.Fatalf("one signal: %d", got)
	}
	if got := c(2); got != 40 {
		t.Fatalf("two signals: %d", got)
	}
	if got := c(5); got != 100 {
		t.Fatalf("five signals: %d", got)
	}
}

func TestCalculateRiskScore_WeightsAndUpsert(t *testing.T) {
	db, log := newTestDB(t)
	identityRepo := repos.NewCustomerIdentityRepo(db, log)
	riskRepo := repos.NewRiskScoreRepo(db, log)
	caseRepo := repos.NewDisputeCaseRepo(db, log)
	ctx := context.Background()

	identity := &types.CustomerIdentity{ID: uuid.New(), NormalizedEmail: "risk@x.com"}
	_, err := identityRepo.Create(ctx, nil, []*types.CustomerIdentity{identity})
	require.NoError(t, err)

	sources := SignalSources{
		Dispute: func(ctx context.Context, identityID uuid.UUID) (*DisputeStats, error) {
			return &DisputeStats{TotalOrders: 10, TotalDisputes: 3, RecentDisputes: 3}, nil
		},
		Support: func(ctx context.Context, email string) (*SupportStats, error) {
			return &SupportStats{TicketCount: 10, EscalatedCount: 6}, nil
		},
		Review: func(ctx context.Context, email string) (*ReviewStats, error) {
			return &ReviewStats{ReviewCount: 4, NegativeReviews: 3, AvgRating: 1.5}, nil
		},
		Engagement: func(ctx context.Context, email string) (*EngagementStats, error) {
			return &EngagementStats{EmailsReceived: 20, OpenRate: 0.01, Unsubscribed: true}, nil
		},
		Orders: func(ctx context.Context, email string) (*OrderStats, error) {
			return &OrderStats{OrderCount: 1, LifetimeValue: 800}, nil
		},
	}
	svc := NewRiskScorerService(db, log, identityRepo, riskRepo, caseRepo, sources, nil)

	score, err := svc.CalculateRiskScore(ctx, identity.ID, "")
	require.NoError(t, err)

	// dispute 40+30+15=85(rate>20%, 3 recent, 2+ total) is capped per rule, and
	// the overall is the fixed weighted blend of the five sub-scores.
	expectedOverall := int(0.35*float64(score.DisputeScore) +
		0.25*float64(score.SupportScore) +
		0.20*float64(score.ReviewScore) +
		0.10*float64(score.OrderFrequencyScore) +
		0.10*float64(score.EngagementScore) + 0.5)
	require.Equal(t, expectedOverall, score.OverallScore)
	require.Equal(t, 100, score.Confidence)
	require.Equal(t, riskLevel(score.OverallScore), score.Level)

	var recommendations []string
	require.NoError(t, json.Unmarshal(score.Recommendations, &recommendations))
	require.NotEmpty(t, recommendations)

	// Recompute replaces the snapshot instead of accumulating rows.
	_, err = svc.CalculateRiskScore(ctx, identity.ID, "")
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&types.RiskScore{}).Where("identity_id = ?", identity.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCalculateRiskScore_SignalFailureLowersConfidenceOnly(t *testing.T) {
	db, log := newTestDB(t)
	identityRepo := repos.NewCustomerIdentityRepo(db, log)
	riskRepo := repos.NewRiskScoreRepo(db, log)
	caseRepo := repos.NewDisputeCaseRepo(db, log)
	ctx := context.Background()

	identity := &types.CustomerIdentity{ID: uuid.New(), NormalizedEmail: "flaky@x.com", TotalOrders: 10, DisputeCount: 3}
	_, err := identityRepo.Create(ctx, nil, []*types.CustomerIdentity{identity})
	require.NoError(t, err)

	sources := SignalSources{
		Support: func(ctx context.Context, email string) (*SupportStats, error) {
			return nil, errors.New("ticket platform timeout")
		},
	}
	svc := NewRiskScorerService(db, log, identityRepo, riskRepo, caseRepo, sources, nil)

	score, err := svc.CalculateRiskScore(ctx, identity.ID, "")
	require.NoError(t, err, "one dead signal must not abort the computation")
	require.Equal(t, 0, score.SupportScore)
	require.Greater(t, score.DisputeScore, 0, "local counters still feed the dispute factor")
	require.LessOrEqual(t, score.Confidence, 40)

	var breakdown map[string]factorResult
	require.NoError(t, json.Unmarshal(score.Breakdown, &breakdown))
	require.Contains(t, breakdown["support"].Unavailable, "timeout")
}

func TestCalculateRiskScore_OrdersFailureAnnotatedInBreakdown(t *testing.T) {
	db, log := newTestDB(t)
	identityRepo := repos.NewCustomerIdentityRepo(db, log)
	riskRepo := repos.NewRiskScoreRepo(db, log)
	caseRepo := repos.NewDisputeCaseRepo(db, log)
	ctx := context.Background()

	identity := &types.CustomerIdentity{ID: uuid.New(), NormalizedEmail: "orders@x.com", TotalOrders: 4}
	_, err := identityRepo.Create(ctx, nil, []*types.CustomerIdentity{identity})
	require.NoError(t, err)

	sources := SignalSources{
		Orders: func(ctx context.Context, email string) (*OrderStats, error) {
			return nil, errors.New("order warehouse down")
		},
	}
	svc := NewRiskScorerService(db, log, identityRepo, riskRepo, caseRepo, sources, nil)

	score, err := svc.CalculateRiskScore(ctx, identity.ID, "")
	require.NoError(t, err)
	require.Equal(t, 0, score.OrderFrequencyScore)

	// The persisted breakdown carries the provider error under the same key
	// the factor is reported under.
	var breakdown map[string]factorResult
	require.NoError(t, json.Unmarshal(score.Breakdown, &breakdown))
	require.False(t, breakdown["order_frequency"].Contributed)
	require.Contains(t, breakdown["order_frequency"].Unavailable, "down")
}

func TestCalculateRiskScore_UnknownIdentity(t *testing.T) {
	db, log := newTestDB(t)
	svc := NewRiskScorerService(db, log,
		repos.NewCustomerIdentityRepo(db, log),
		repos.NewRiskScoreRepo(db, log),
		repos.NewDisputeCaseRepo(db, log),
		SignalSources{}, nil)

	_, err := svc.CalculateRiskScore(context.Background(), uuid.New(), "")
	require.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestCalculateRiskScore_RefreshesOpenCaseRiskLevel(t *testing.T) {
	db, log := newTestDB(t)
	identityRepo := repos.NewCustomerIdentityRepo(db, log)
	riskRepo := repos.NewRiskScoreRepo(db, log)
	caseRepo := repos.NewDisputeCaseRepo(db, log)
	ctx := context.Background()

	identity := &types.CustomerIdentity{ID: uuid.New(), NormalizedEmail: "case@x.com", TotalOrders: 10, DisputeCount: 5}
	_, err := identityRepo.Create(ctx, nil, []*types.CustomerIdentity{identity})
	require.NoError(t, err)
	_, err = caseRepo.Create(ctx, nil, []*types.DisputeCase{{
		ID:         uuid.New(),
		IdentityID: identity.ID,
		Subject:    "missing package",
		Status:     types.CaseStatusOpen,
	}})
	require.NoError(t, err)

	svc := NewRiskScorerService(db, log, identityRepo, riskRepo, caseRepo, SignalSources{}, nil)
	score, err := svc.CalculateRiskScore(ctx, identity.ID, "")
	require.NoError(t, err)

	cases, err := caseRepo.ListByIdentityID(ctx, nil, identity.ID)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, score.Level, cases[0].RiskLevel)
}
