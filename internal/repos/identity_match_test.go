package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/disputedesk-backend/internal/types"
)

func TestMarkReviewed_OnlyTouchesPendingRows(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewIdentityMatchRepo(db, log)
	ctx := context.Background()

	autoMerged := &types.IdentityMatch{
		ID: uuid.New(), IdentityID: uuid.New(), CandidateID: uuid.New(),
		MatchType: types.MatchTypeExactEmail, Confidence: 100, Status: types.MatchStatusAutoMerged,
	}
	pending := &types.IdentityMatch{
		ID: uuid.New(), IdentityID: uuid.New(), CandidateID: uuid.New(),
		MatchType: types.MatchTypeFuzzyName, Confidence: 72, Status: types.MatchStatusPending,
	}
	_, err := repo.Create(ctx, nil, []*types.IdentityMatch{autoMerged, pending})
	require.NoError(t, err)

	require.NoError(t, repo.MarkReviewed(ctx, nil, pending.ID, types.MatchStatusRejected, "reviewer"))
	// An auto_merged row is history; review must never rewrite it.
	require.NoError(t, repo.MarkReviewed(ctx, nil, autoMerged.ID, types.MatchStatusRejected, "reviewer"))

	rows, err := repo.GetByIDs(ctx, nil, []uuid.UUID{autoMerged.ID, pending.ID})
	require.NoError(t, err)
	byID := map[uuid.UUID]*types.IdentityMatch{}
	for _, row := range rows {
		byID[row.ID] = row
	}
	require.Equal(t, types.MatchStatusAutoMerged, byID[autoMerged.ID].Status)
	require.Equal(t, types.MatchStatusRejected, byID[pending.ID].Status)
}

func TestListPending_OrderedByConfidence(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewIdentityMatchRepo(db, log)
	ctx := context.Background()

	low := &types.IdentityMatch{
		ID: uuid.New(), IdentityID: uuid.New(), CandidateID: uuid.New(),
		MatchType: types.MatchTypeFuzzyName, Confidence: 55, Status: types.MatchStatusPending,
	}
	high := &types.IdentityMatch{
		ID: uuid.New(), IdentityID: uuid.New(), CandidateID: uuid.New(),
		MatchType: types.MatchTypeFuzzyName, Confidence: 88, Status: types.MatchStatusPending,
	}
	_, err := repo.Create(ctx, nil, []*types.IdentityMatch{low, high})
	require.NoError(t, err)

	rows, err := repo.ListPending(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, high.ID, rows[0].ID)
}
