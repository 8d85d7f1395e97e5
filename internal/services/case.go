package services

import (
  "context"
  "fmt"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/repos"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

type CreateCaseParams struct {
  IdentityID   uuid.UUID    `json:"identity_id"`
  OrderID      *uuid.UUID   `json:"order_id,omitempty"`
  Subject      string       `json:"subject"`
}

type CaseService interface {
  CreateCase(ctx context.Context, params CreateCaseParams, actorID string) (*types.DisputeCase, error)
  ListCases(ctx context.Context, limit, offset int) ([]*types.DisputeCase, error)
  ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]*types.DisputeCase, error)
}

type caseService struct {
  db             *gorm.DB
  log            *logger.Logger
  caseRepo       repos.DisputeCaseRepo
  identityRepo   repos.CustomerIdentityRepo
  riskRepo       repos.RiskScoreRepo
  orderRepo      repos.OrderRepo
}

func NewCaseService(
  db *gorm.DB,
  log *logger.Logger,
  caseRepo repos.DisputeCaseRepo,
  identityRepo repos.CustomerIdentityRepo,
  riskRepo repos.RiskScoreRepo,
  orderRepo repos.OrderRepo,
) CaseService {
  serviceLog := log.With("service", "CaseService")
  return &caseService{
    db:           db,
    log:          serviceLog,
    caseRepo:     caseRepo,
    identityRepo: identityRepo,
    riskRepo:     riskRepo,
    orderRepo:    orderRepo,
  }
}

// CreateCase opens a dispute case against an identity, stamping it with the
// identity's current risk level and bumping the dispute counter the risk
// scorer feeds on.
func (cs *caseService) CreateCase(ctx context.Context, params CreateCaseParams, actorID string) (*types.DisputeCase, error) {
  identities, iErr := cs.identityRepo.GetByIDs(ctx, nil, []uuid.UUID{params.IdentityID})
  if iErr != nil {
    return nil, fmt.Errorf("load identity: %w", iErr)
  }
  if len(identities) == 0 {
    return nil, ErrIdentityNotFound
  }
  identity := identities[0]

  if params.OrderID != nil {
    orders, oErr := cs.orderRepo.GetByIDs(ctx, nil, []uuid.UUID{*params.OrderID})
    if oErr != nil {
      return nil, fmt.Errorf("load order: %w", oErr)
    }
    if len(orders) == 0 {
      return nil, ErrOrderNotFound
    }
  }

  riskLevel := ""
  if score, rErr := cs.riskRepo.GetByIdentityID(ctx, nil, identity.ID); rErr != nil {
    return nil, fmt.Errorf("load risk score: %w", rErr)
  } else if score != nil {
    riskLevel = score.Level
  }

  disputeCase := &types.DisputeCase{
    ID:         uuid.New(),
    IdentityID: identity.ID,
    OrderID:    params.OrderID,
    Subject:    params.Subject,
    Status:     types.CaseStatusOpen,
    RiskLevel:  riskLevel,
    OpenedBy:   actorID,
  }
  err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if _, ccErr := cs.caseRepo.Create(ctx, tx, []*types.DisputeCase{disputeCase}); ccErr != nil {
      return fmt.Errorf("create case: %w", ccErr)
    }
    identity.DisputeCount++
    if uErr := cs.identityRepo.Update(ctx, tx, identity); uErr != nil {
      return fmt.Errorf("bump dispute count: %w", uErr)
    }
    return nil
  })
  if err != nil {
    return nil, err
  }
  cs.log.Info("Dispute case opened", "caseID", disputeCase.ID, "identityID", identity.ID, "actorID", actorID)
  return disputeCase, nil
}

func (cs *caseService) ListCases(ctx context.Context, limit, offset int) ([]*types.DisputeCase, error) {
  return cs.caseRepo.List(ctx, nil, limit, offset)
}

func (cs *caseService) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]*types.DisputeCase, error) {
  return cs.caseRepo.ListByIdentityID(ctx, nil, identityID)
}
