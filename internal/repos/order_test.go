package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/disputedesk-backend/internal/types"
)

func TestListReconcileCandidates_MatchesAnyKey(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewOrderRepo(db, log)
	ctx := context.Background()

	shipDate := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	orders := []*types.Order{
		{ID: uuid.New(), OrderNumber: "SO-1"},
		{ID: uuid.New(), ExternalID: "777"},
		{ID: uuid.New(), CustomerEmail: "c@x.com", OrderedAt: shipDate.Add(-24 * time.Hour)},
		{ID: uuid.New(), OrderNumber: "UNRELATED", CustomerEmail: "z@z.com", OrderedAt: shipDate.AddDate(0, -1, 0)},
	}
	_, err := repo.Create(ctx, nil, orders)
	require.NoError(t, err)

	got, err := repo.ListReconcileCandidates(ctx, nil, ReconcileCandidateFilter{
		OrderNumber:   "SO-1",
		ExternalID:    "777",
		CustomerEmail: "c@x.com",
		ShipDate:      shipDate,
	}, 50)
	require.NoError(t, err)
	require.Len(t, got, 3, "each populated key should pull in its own candidate")
}

func TestGetBySourceExternalID_BothKeysRequired(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewOrderRepo(db, log)
	ctx := context.Background()

	_, err := repo.Create(ctx, nil, []*types.Order{
		{ID: uuid.New(), SourceSystem: "storefront", ExternalID: "5"},
	})
	require.NoError(t, err)

	found, err := repo.GetBySourceExternalID(ctx, nil, "storefront", "5")
	require.NoError(t, err)
	require.NotNil(t, found)

	miss, err := repo.GetBySourceExternalID(ctx, nil, "marketplace", "5")
	require.NoError(t, err)
	require.Nil(t, miss)

	empty, err := repo.GetBySourceExternalID(ctx, nil, "storefront", "")
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestListByEmailAround_WindowBounds(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewOrderRepo(db, log)
	ctx := context.Background()

	center := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := repo.Create(ctx, nil, []*types.Order{
		{ID: uuid.New(), CustomerEmail: "w@x.com", OrderedAt: center.Add(-30 * time.Minute)},
		{ID: uuid.New(), CustomerEmail: "w@x.com", OrderedAt: center.Add(-3 * time.Hour)},
		{ID: uuid.New(), CustomerEmail: "other@x.com", OrderedAt: center},
	})
	require.NoError(t, err)

	got, err := repo.ListByEmailAround(ctx, nil, "w@x.com", center, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
