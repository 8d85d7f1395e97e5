package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/disputedesk-backend/internal/logger"
	"github.com/yungbote/disputedesk-backend/internal/normalization"
	"github.com/yungbote/disputedesk-backend/internal/repos"
	"github.com/yungbote/disputedesk-backend/internal/types"
)

type resolverFixture struct {
	db           *gorm.DB
	log          *logger.Logger
	identityRepo repos.CustomerIdentityRepo
	addressRepo  repos.IdentityAddressRepo
	matchRepo    repos.IdentityMatchRepo
	resolver     IdentityResolverService
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	db, log := newTestDB(t)
	identityRepo := repos.NewCustomerIdentityRepo(db, log)
	addressRepo := repos.NewIdentityAddressRepo(db, log)
	matchRepo := repos.NewIdentityMatchRepo(db, log)
	resolver := NewIdentityResolverService(db, log, identityRepo, addressRepo, matchRepo, nil, 200)
	return &resolverFixture{
		db:           db,
		log:          log,
		identityRepo: identityRepo,
		addressRepo:  addressRepo,
		matchRepo:    matchRepo,
		resolver:     resolver,
	}
}

func (f *resolverFixture) seedIdentity(t *testing.T, email, phone, name, address string) *types.CustomerIdentity {
	t.Helper()
	now := time.Now()
	identity := &types.CustomerIdentity{
		ID:              uuid.New(),
		NormalizedEmail: normalization.NormalizeEmail(email),
		NormalizedPhone: normalization.NormalizePhone(phone),
		DisplayName:     name,
		CurrentAddress:  address,
		FirstSeenAt:     now,
		LastSeenAt:      now,
	}
	_, err := f.identityRepo.Create(context.Background(), nil, []*types.CustomerIdentity{identity})
	require.NoError(t, err)
	return identity
}

func TestFindOrCreate_ExactEmailIgnoresCasingAndWhitespace(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	seeded := f.seedIdentity(t, "john@x.com", "", "John Carter", "")

	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "  JOHN@X.COM "}, "test")
	require.NoError(t, err)
	require.False(t, result.IsNew)
	require.Equal(t, seeded.ID, result.Identity.ID)
	require.Len(t, result.Matches, 1)
	require.Equal(t, types.MatchTypeExactEmail, result.Matches[0].MatchType)
	require.Equal(t, 100, result.Matches[0].Confidence)
}

func TestFindOrCreate_ExactEmailWinsOverFuzzyName(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	byEmail := f.seedIdentity(t, "a@x.com", "", "Completely Different", "")
	f.seedIdentity(t, "b@x.com", "", "A Smith", "")

	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "A@X.COM", Name: "A Smith"}, "test")
	require.NoError(t, err)
	require.False(t, result.IsNew)
	require.Equal(t, byEmail.ID, result.Identity.ID)
	require.Equal(t, types.MatchTypeExactEmail, result.Matches[0].MatchType)
}

func TestFindOrCreate_ExactPhoneAfterEmailMiss(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	seeded := f.seedIdentity(t, "", "+1 (555) 010-2030", "Dana Reyes", "")

	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Phone: "15550102030"}, "test")
	require.NoError(t, err)
	require.False(t, result.IsNew)
	require.Equal(t, seeded.ID, result.Identity.ID)
	require.Equal(t, types.MatchTypeExactPhone, result.Matches[0].MatchType)
}

func TestFindOrCreate_FuzzyMidConfidenceCreatesNewWithPendingMatch(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	// "jonathan smith" vs "jonathon smith" lands around 0.85 similarity:
	// above the 0.80 candidate floor, below the 0.90 auto-match bar.
	candidate := f.seedIdentity(t, "jon@x.com", "", "Jonathan Smith", "")

	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "other@y.com", Name: "Jonathon Smith"}, "test")
	require.NoError(t, err)
	require.True(t, result.IsNew)
	require.NotEqual(t, candidate.ID, result.Identity.ID)
	require.Len(t, result.Matches, 1)
	match := result.Matches[0]
	require.Equal(t, candidate.ID, match.CandidateID)
	require.Equal(t, types.MatchStatusPending, match.Status)
	require.GreaterOrEqual(t, match.Confidence, 50)
	require.Less(t, match.Confidence, 90)

	pending, err := f.resolver.ListPendingMatches(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestFindOrCreate_FuzzyHighConfidenceReturnsExisting(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	seeded := f.seedIdentity(t, "jane@x.com", "", "Jane Oduya", "")

	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "unknown@y.com", Name: "Jane Oduya"}, "test")
	require.NoError(t, err)
	require.False(t, result.IsNew)
	require.Equal(t, seeded.ID, result.Identity.ID)

	var count int64
	require.NoError(t, f.db.Model(&types.CustomerIdentity{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestFindOrCreate_CurrentAddressBoostLiftsFuzzyOverAutoMatchBar(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	// Name similarity alone lands at 85: pending territory. The matching
	// current address adds 10 and carries the candidate past the 90 bar.
	candidate := f.seedIdentity(t, "jon@x.com", "", "Jonathan Smith", "12 Oak Street")

	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{
		Email:   "other@y.com",
		Name:    "Jonathon Smith",
		Address: "12 Oak Street",
	}, "test")
	require.NoError(t, err)
	require.False(t, result.IsNew)
	require.Equal(t, candidate.ID, result.Identity.ID)
	require.Len(t, result.Matches, 1)
	require.Equal(t, 95, result.Matches[0].Confidence)
	require.Equal(t, types.MatchStatusAutoMerged, result.Matches[0].Status)
}

func TestFindOrCreate_HistoricalAddressBoostFiresOnce(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	candidate := f.seedIdentity(t, "jon@x.com", "", "Jonathan Smith", "")
	_, err := f.addressRepo.Create(ctx, nil, []*types.IdentityAddress{
		{ID: uuid.New(), IdentityID: candidate.ID, Line: "7 Birch Rd", Current: false, RecordedAt: time.Now()},
		{ID: uuid.New(), IdentityID: candidate.ID, Line: "7 Birch Road", Current: false, RecordedAt: time.Now()},
	})
	require.NoError(t, err)

	// Two overlapping historical addresses still add the 5-point boost only
	// once: 85 + 5 = 90, not 95.
	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{
		Email:   "other@y.com",
		Name:    "Jonathon Smith",
		Address: "7 Birch Rd",
	}, "test")
	require.NoError(t, err)
	require.False(t, result.IsNew)
	require.Equal(t, candidate.ID, result.Identity.ID)
	require.Len(t, result.Matches, 1)
	require.Equal(t, 90, result.Matches[0].Confidence)
}

func TestFindOrCreate_ExactHitRollsOverCurrentAddress(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	seeded := f.seedIdentity(t, "mover@x.com", "", "Mova Haus", "12 Oak St")
	_, err := f.addressRepo.Create(ctx, nil, []*types.IdentityAddress{
		{ID: uuid.New(), IdentityID: seeded.ID, Line: "12 Oak St", Current: true, RecordedAt: time.Now()},
	})
	require.NoError(t, err)

	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "mover@x.com", Address: "99 Pine Ave"}, "test")
	require.NoError(t, err)
	require.False(t, result.IsNew)
	require.Equal(t, "99 Pine Ave", result.Identity.CurrentAddress)

	addresses, err := f.addressRepo.GetByIdentityIDs(ctx, nil, []uuid.UUID{seeded.ID})
	require.NoError(t, err)
	require.Len(t, addresses, 2)
	current := map[string]bool{}
	for _, addr := range addresses {
		current[addr.Line] = addr.Current
	}
	require.False(t, current["12 Oak St"], "previous address must be retired")
	require.True(t, current["99 Pine Ave"])

	// A normalized-equal address on the next sighting is not a move.
	_, err = f.resolver.FindOrCreate(ctx, ResolveParams{Email: "mover@x.com", Address: "99 pine ave"}, "test")
	require.NoError(t, err)
	addresses, err = f.addressRepo.GetByIdentityIDs(ctx, nil, []uuid.UUID{seeded.ID})
	require.NoError(t, err)
	require.Len(t, addresses, 2)
}

func TestFindOrCreate_BelowFloorCreatesWithoutMatches(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	f.seedIdentity(t, "x@x.com", "", "Wilhelmina Vandergraaf", "")

	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "q@q.com", Name: "Bo Li"}, "test")
	require.NoError(t, err)
	require.True(t, result.IsNew)
	require.Empty(t, result.Matches)
}

func TestFindOrCreate_ResolvesThroughTombstoneChain(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	keep := f.seedIdentity(t, "keep@x.com", "", "Keep Me", "")
	merged := f.seedIdentity(t, "", "5550001111", "Old Record", "")
	merged.MasterIdentityID = &keep.ID
	require.NoError(t, f.identityRepo.Update(ctx, nil, merged))

	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Phone: "555-000-1111"}, "test")
	require.NoError(t, err)
	require.True(t, result.IsNew, "tombstoned identity must be invisible to matching")
}

func TestMergeIdentities_CountersAndAddressUnion(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	keep := f.seedIdentity(t, "keep@x.com", "", "Keep", "12 Oak St")
	merge := f.seedIdentity(t, "", "5551234567", "Merge", "99 Pine Ave")
	keep.TotalOrders, keep.LifetimeValue, keep.DisputeCount = 3, 300, 1
	merge.TotalOrders, merge.LifetimeValue, merge.DisputeCount = 2, 150.5, 2
	earlier := time.Now().Add(-48 * time.Hour)
	merge.FirstSeenAt = earlier
	require.NoError(t, f.identityRepo.Update(ctx, nil, keep))
	require.NoError(t, f.identityRepo.Update(ctx, nil, merge))
	_, err := f.addressRepo.Create(ctx, nil, []*types.IdentityAddress{
		{ID: uuid.New(), IdentityID: keep.ID, Line: "12 Oak St", Current: true, RecordedAt: time.Now()},
		{ID: uuid.New(), IdentityID: merge.ID, Line: "12 Oak St.", Current: false, RecordedAt: time.Now()},
		{ID: uuid.New(), IdentityID: merge.ID, Line: "7 Birch Rd", Current: false, RecordedAt: time.Now()},
	})
	require.NoError(t, err)

	kept, err := f.resolver.MergeIdentities(ctx, keep.ID, merge.ID, "reviewer-1")
	require.NoError(t, err)
	require.Equal(t, 5, kept.TotalOrders)
	require.InDelta(t, 450.5, kept.LifetimeValue, 0.001)
	require.Equal(t, 3, kept.DisputeCount)
	require.WithinDuration(t, earlier, kept.FirstSeenAt, time.Second)
	require.Equal(t, "5551234567", kept.NormalizedPhone)

	reloaded, err := f.identityRepo.GetByIDs(ctx, nil, []uuid.UUID{merge.ID})
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	require.NotNil(t, reloaded[0].MasterIdentityID)
	require.Equal(t, keep.ID, *reloaded[0].MasterIdentityID)
	require.Equal(t, "reviewer-1", reloaded[0].MergedBy)

	// Union is deduplicated on the normalized line: "12 Oak St." collapses
	// into keep's existing "12 Oak St", the others move over.
	addresses, err := f.addressRepo.GetByIdentityIDs(ctx, nil, []uuid.UUID{keep.ID})
	require.NoError(t, err)
	seen := map[string]int{}
	for _, addr := range addresses {
		seen[normalization.NormalizeAddress(addr.Line)]++
	}
	require.Equal(t, 1, seen["12 oak st"])
	require.Equal(t, 1, seen["7 birch rd"])
	require.Equal(t, 1, seen["99 pine ave"])
}

func TestMergeIdentities_UnknownIDRefuses(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	keep := f.seedIdentity(t, "keep@x.com", "", "Keep", "")
	_, err := f.resolver.MergeIdentities(ctx, keep.ID, uuid.New(), "test")
	require.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestMergeIdentities_TombstonedTargetRefuses(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	keep := f.seedIdentity(t, "keep@x.com", "", "Keep", "")
	a := f.seedIdentity(t, "a@x.com", "", "A", "")
	b := f.seedIdentity(t, "b@x.com", "", "B", "")
	_, err := f.resolver.MergeIdentities(ctx, keep.ID, a.ID, "test")
	require.NoError(t, err)

	_, err = f.resolver.MergeIdentities(ctx, b.ID, a.ID, "test")
	require.ErrorIs(t, err, ErrIdentityMerged)
}

func TestAcceptMatch_MergesIntoCandidateAndRecordsManualEdge(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	candidate := f.seedIdentity(t, "jon@x.com", "", "Jonathan Smith", "")
	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "other@y.com", Name: "Jonathon Smith"}, "test")
	require.NoError(t, err)
	require.True(t, result.IsNew)
	require.Len(t, result.Matches, 1)

	kept, err := f.resolver.AcceptMatch(ctx, result.Matches[0].ID, "reviewer-2")
	require.NoError(t, err)
	require.Equal(t, candidate.ID, kept.ID)

	reviewed, err := f.matchRepo.GetByIDs(ctx, nil, []uuid.UUID{result.Matches[0].ID})
	require.NoError(t, err)
	require.Equal(t, types.MatchStatusAccepted, reviewed[0].Status)
	require.Equal(t, "reviewer-2", reviewed[0].ReviewedBy)

	// The accepted row must keep its original confidence; the merge itself is
	// recorded as a separate manual edge.
	require.Less(t, reviewed[0].Confidence, 90)
	var manual []*types.IdentityMatch
	require.NoError(t, f.db.Where("match_type = ?", types.MatchTypeManual).Find(&manual).Error)
	require.Len(t, manual, 1)
	require.Equal(t, 100, manual[0].Confidence)
}

func TestAcceptMatch_FailedAcceptLeavesRowPending(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	f.seedIdentity(t, "jon@x.com", "", "Jonathan Smith", "")
	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "other@y.com", Name: "Jonathon Smith"}, "test")
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)

	// The newer identity gets merged away through another review path before
	// this match is acted on.
	other := f.seedIdentity(t, "third@z.com", "", "Third Wheel", "")
	_, err = f.resolver.MergeIdentities(ctx, other.ID, result.Identity.ID, "reviewer-4")
	require.NoError(t, err)

	_, err = f.resolver.AcceptMatch(ctx, result.Matches[0].ID, "reviewer-4")
	require.ErrorIs(t, err, ErrIdentityMerged)

	// A refused accept writes nothing: the row stays pending and no manual
	// edge appears, so the reviewer can still resolve it.
	reloaded, err := f.matchRepo.GetByIDs(ctx, nil, []uuid.UUID{result.Matches[0].ID})
	require.NoError(t, err)
	require.Equal(t, types.MatchStatusPending, reloaded[0].Status)
	var manual []*types.IdentityMatch
	require.NoError(t, f.db.Where("match_type = ?", types.MatchTypeManual).Find(&manual).Error)
	require.Empty(t, manual)
}

func TestRejectMatch_OnlyPendingRows(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	f.seedIdentity(t, "jon@x.com", "", "Jonathan Smith", "")
	result, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "other@y.com", Name: "Jonathon Smith"}, "test")
	require.NoError(t, err)
	matchID := result.Matches[0].ID

	require.NoError(t, f.resolver.RejectMatch(ctx, matchID, "reviewer-3"))
	err = f.resolver.RejectMatch(ctx, matchID, "reviewer-3")
	require.ErrorIs(t, err, ErrMatchNotPending)
}

func TestFindOrCreate_IdempotentForSameEmail(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	first, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "same@x.com", Name: "Sam Same"}, "test")
	require.NoError(t, err)
	require.True(t, first.IsNew)

	second, err := f.resolver.FindOrCreate(ctx, ResolveParams{Email: "same@x.com"}, "test")
	require.NoError(t, err)
	require.False(t, second.IsNew)
	require.Equal(t, first.Identity.ID, second.Identity.ID)
}
