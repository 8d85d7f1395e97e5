package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/disputedesk-backend/internal/repos"
	"github.com/yungbote/disputedesk-backend/internal/types"
)

type dedupFixture struct {
	db         *gorm.DB
	orderRepo  repos.OrderRepo
	changeRepo repos.OrderChangeRecordRepo
	svc        ImportDeduplicatorService
}

func newDedupFixture(t *testing.T) *dedupFixture {
	t.Helper()
	db, log := newTestDB(t)
	orderRepo := repos.NewOrderRepo(db, log)
	changeRepo := repos.NewOrderChangeRecordRepo(db, log)
	svc := NewImportDeduplicatorService(db, log, orderRepo, changeRepo, nil)
	return &dedupFixture{db: db, orderRepo: orderRepo, changeRepo: changeRepo, svc: svc}
}

func (f *dedupFixture) seedOrder(t *testing.T, order *types.Order) *types.Order {
	t.Helper()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	_, err := f.orderRepo.Create(context.Background(), nil, []*types.Order{order})
	require.NoError(t, err)
	return order
}

func TestImportSingleOrder_CreatesWithImportedRecord(t *testing.T) {
	f := newDedupFixture(t)
	ctx := context.Background()

	outcome, err := f.svc.ImportSingleOrder(ctx, IncomingOrder{
		ExternalID:    "900",
		OrderNumber:   "SO-900",
		SourceSystem:  "storefront",
		CustomerEmail: "New@X.com",
		Status:        "paid",
		Total:         49.99,
		OrderedAt:     time.Now(),
	}, "sync-job")
	require.NoError(t, err)
	require.Equal(t, ImportResultCreated, outcome.Result)
	require.Equal(t, "new@x.com", outcome.Order.CustomerEmail)

	records, err := f.changeRepo.GetByOrderID(ctx, nil, outcome.Order.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, types.ChangeTypeImported, records[0].ChangeType)
	require.Equal(t, types.ChangeSourceImport, records[0].Source)
}

func TestImportSingleOrder_NoChangesIsSkipped(t *testing.T) {
	f := newDedupFixture(t)
	ctx := context.Background()

	f.seedOrder(t, &types.Order{
		ExternalID:   "901",
		OrderNumber:  "SO-901",
		SourceSystem: "storefront",
		Status:       "paid",
		Total:        10,
	})

	outcome, err := f.svc.ImportSingleOrder(ctx, IncomingOrder{
		ExternalID:   "901",
		OrderNumber:  "SO-901",
		SourceSystem: "storefront",
		Status:       "paid",
		Total:        10,
	}, "sync-job")
	require.NoError(t, err)
	require.Equal(t, ImportResultSkipped, outcome.Result)
}

func TestImportSingleOrder_SafeUpdateWithoutManualHistory(t *testing.T) {
	f := newDedupFixture(t)
	ctx := context.Background()

	seeded := f.seedOrder(t, &types.Order{
		ExternalID:   "902",
		OrderNumber:  "SO-902",
		SourceSystem: "storefront",
		Status:       "paid",
		Total:        10,
	})

	outcome, err := f.svc.ImportSingleOrder(ctx, IncomingOrder{
		ExternalID:   "902",
		OrderNumber:  "SO-902",
		SourceSystem: "storefront",
		Status:       "shipped",
		Total:        12.50,
	}, "sync-job")
	require.NoError(t, err)
	require.Equal(t, ImportResultUpdated, outcome.Result)

	reloaded, err := f.orderRepo.GetByOrderNumber(ctx, nil, "SO-902")
	require.NoError(t, err)
	require.Equal(t, "shipped", reloaded.Status)
	require.InDelta(t, 12.50, reloaded.Total, 0.001)

	records, err := f.changeRepo.GetByOrderID(ctx, nil, seeded.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, types.ChangeTypeUpdated, records[0].ChangeType)
	var diff map[string]FieldChange
	require.NoError(t, json.Unmarshal(records[0].Diff, &diff))
	require.Contains(t, diff, "status")
	require.Contains(t, diff, "total")
}

func TestImportSingleOrder_ManualEditTurnsChangeIntoConflict(t *testing.T) {
	f := newDedupFixture(t)
	ctx := context.Background()

	seeded := f.seedOrder(t, &types.Order{
		ExternalID:   "903",
		OrderNumber:  "SO-903",
		SourceSystem: "storefront",
		Status:       "paid",
		Total:        20,
	})
	_, err := f.changeRepo.Create(ctx, nil, []*types.OrderChangeRecord{{
		ID:         uuid.New(),
		OrderID:    seeded.ID,
		Source:     types.ChangeSourceManualEdit,
		ChangeType: types.ChangeTypeManualEdit,
		ActorID:    "agent-7",
	}})
	require.NoError(t, err)

	outcome, err := f.svc.ImportSingleOrder(ctx, IncomingOrder{
		ExternalID:   "903",
		OrderNumber:  "SO-903",
		SourceSystem: "storefront",
		Status:       "cancelled",
		Total:        20,
	}, "sync-job")
	require.NoError(t, err)
	require.Equal(t, ImportResultConflict, outcome.Result)
	require.Len(t, outcome.ConflictFields, 1)
	require.Contains(t, outcome.ConflictFields, "status")
	require.Equal(t, "paid", outcome.ConflictFields["status"].Old)
	require.Equal(t, "cancelled", outcome.ConflictFields["status"].New)
	require.NotEmpty(t, outcome.Existing)
	require.NotEmpty(t, outcome.Incoming)

	// The local row stays exactly as the human left it.
	reloaded, err := f.orderRepo.GetByOrderNumber(ctx, nil, "SO-903")
	require.NoError(t, err)
	require.Equal(t, "paid", reloaded.Status)
}

func TestFindExistingOrder_CascadeFallsBackToEmailWindow(t *testing.T) {
	f := newDedupFixture(t)
	ctx := context.Background()

	placed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seeded := f.seedOrder(t, &types.Order{
		OrderNumber:   "SO-800",
		SourceSystem:  "storefront",
		CustomerEmail: "win@x.com",
		OrderedAt:     placed,
	})

	// Different source id and order number: only the email window can hit.
	found, err := f.svc.FindExistingOrder(ctx, IncomingOrder{
		ExternalID:    "unrelated",
		OrderNumber:   "EBAY-17",
		SourceSystem:  "marketplace",
		CustomerEmail: "win@x.com",
		CreatedAt:     placed.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, seeded.ID, found.ID)

	// Two hours out is beyond the window.
	found, err = f.svc.FindExistingOrder(ctx, IncomingOrder{
		OrderNumber:   "EBAY-18",
		SourceSystem:  "marketplace",
		CustomerEmail: "win@x.com",
		CreatedAt:     placed.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestDetectChanges_LineItemsCompareStructurally(t *testing.T) {
	f := newDedupFixture(t)
	svc := f.svc.(*importDeduplicatorService)

	existing := &types.Order{
		Status:    "paid",
		LineItems: datatypes.JSON([]byte(`[{"sku":"A","name":"Widget","quantity":1,"unit_price":5}]`)),
	}
	same := IncomingOrder{
		Status:    "paid",
		LineItems: []LineItem{{SKU: "A", Name: "Widget", Quantity: 1, UnitPrice: 5}},
	}
	require.Empty(t, svc.DetectChanges(existing, same))

	changed := IncomingOrder{
		Status:    "paid",
		LineItems: []LineItem{{SKU: "A", Name: "Widget", Quantity: 2, UnitPrice: 5}},
	}
	diff := svc.DetectChanges(existing, changed)
	require.Len(t, diff, 1)
	require.Contains(t, diff, "line_items")
}

func TestImportBatch_ContinuesPastBadRecordsAndCounts(t *testing.T) {
	f := newDedupFixture(t)
	ctx := context.Background()

	f.seedOrder(t, &types.Order{
		ExternalID:   "950",
		OrderNumber:  "SO-950",
		SourceSystem: "storefront",
		Status:       "paid",
	})

	records := []IncomingOrder{
		{ExternalID: "950", OrderNumber: "SO-950", SourceSystem: "storefront", Status: "paid"},
		{ExternalID: "951", OrderNumber: "SO-951", SourceSystem: "storefront", Status: "paid"},
		{ExternalID: "950", OrderNumber: "SO-950", SourceSystem: "storefront", Status: "shipped"},
	}
	summary, err := f.svc.ImportBatch(ctx, uuid.New(), records, "sync-job", 2)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 3, summary.Processed)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 1, summary.Created)
	require.Equal(t, 1, summary.Updated)
	require.Empty(t, summary.Errors)
}

func TestImportBatch_HonorsCancellationBetweenRecords(t *testing.T) {
	f := newDedupFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.svc.ImportBatch(ctx, uuid.New(), []IncomingOrder{
		{ExternalID: "960", OrderNumber: "SO-960", SourceSystem: "storefront"},
	}, "sync-job", 10)
	require.Error(t, err)
	require.Equal(t, 0, summary.Processed)
}
