package services

import (
  "context"
  "fmt"
  "math"
  "sort"
  "time"
  "github.com/adrg/strutil"
  "github.com/adrg/strutil/metrics"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/normalization"
  "github.com/yungbote/disputedesk-backend/internal/repos"
  "github.com/yungbote/disputedesk-backend/internal/sse"
  "github.com/yungbote/disputedesk-backend/internal/types"
)

const (
  fuzzyNameThreshold       = 0.80
  addressOverlapThreshold  = 0.70
  autoMatchConfidence      = 90
  reviewMatchConfidence    = 50
  currentAddressBoost      = 10
  historicalAddressBoost   = 5
)

type ResolveParams struct {
  Email     string
  Phone     string
  Name      string
  Address   string
}

type ResolveResult struct {
  Identity   *types.CustomerIdentity   `json:"identity"`
  IsNew      bool                      `json:"is_new"`
  Matches    []*types.IdentityMatch    `json:"matches"`
}

type IdentityResolverService interface {
  FindOrCreate(ctx context.Context, params ResolveParams, actorID string) (*ResolveResult, error)
  MergeIdentities(ctx context.Context, keepID, mergeID uuid.UUID, actorID string) (*types.CustomerIdentity, error)
  AcceptMatch(ctx context.Context, matchID uuid.UUID, actorID string) (*types.CustomerIdentity, error)
  RejectMatch(ctx context.Context, matchID uuid.UUID, actorID string) error
  ListPendingMatches(ctx context.Context, limit, offset int) ([]*types.IdentityMatch, error)
  GetIdentity(ctx context.Context, id uuid.UUID) (*types.CustomerIdentity, error)
}

type identityResolverService struct {
  db               *gorm.DB
  log              *logger.Logger
  identityRepo     repos.CustomerIdentityRepo
  addressRepo      repos.IdentityAddressRepo
  matchRepo        repos.IdentityMatchRepo
  publisher        EventPublisher
  candidateLimit   int
  nameMetric       *metrics.SorensenDice
}

func NewIdentityResolverService(
  db *gorm.DB,
  log *logger.Logger,
  identityRepo repos.CustomerIdentityRepo,
  addressRepo repos.IdentityAddressRepo,
  matchRepo repos.IdentityMatchRepo,
  publisher EventPublisher,
  candidateLimit int,
) IdentityResolverService {
  serviceLog := log.With("service", "IdentityResolverService")
  if candidateLimit <= 0 {
    candidateLimit = 200
  }
  return &identityResolverService{
    db:             db,
    log:            serviceLog,
    identityRepo:   identityRepo,
    addressRepo:    addressRepo,
    matchRepo:      matchRepo,
    publisher:      publisher,
    candidateLimit: candidateLimit,
    nameMetric:     metrics.NewSorensenDice(),
  }
}

// FindOrCreate resolves a contact tuple to the canonical active identity.
// Exact email wins over exact phone, exact wins over fuzzy, and a fuzzy
// candidate needs confidence >= 90 to be treated as the same customer.
// Anything weaker in [50,90) is logged as a pending match for human review
// next to a freshly created identity.
func (s *identityResolverService) FindOrCreate(ctx context.Context, params ResolveParams, actorID string) (*ResolveResult, error) {
  email := normalization.NormalizeEmail(params.Email)
  phone := normalization.NormalizePhone(params.Phone)
  name := normalization.NormalizeName(params.Name)

  if hit, err := s.identityRepo.GetActiveByNormalizedEmail(ctx, nil, email); err != nil {
    return nil, fmt.Errorf("exact email lookup: %w", err)
  } else if hit != nil {
    return s.exactHit(ctx, hit, params, types.MatchTypeExactEmail, "normalized email equality")
  }

  if hit, err := s.identityRepo.GetActiveByNormalizedPhone(ctx, nil, phone); err != nil {
    return nil, fmt.Errorf("exact phone lookup: %w", err)
  } else if hit != nil {
    return s.exactHit(ctx, hit, params, types.MatchTypeExactPhone, "normalized phone equality")
  }

  var scored []scoredCandidate
  if name != "" {
    candidates, err := s.identityRepo.ListRecentActive(ctx, nil, s.candidateLimit)
    if err != nil {
      return nil, fmt.Errorf("fuzzy candidate query: %w", err)
    }
    scored, err = s.scoreCandidates(ctx, name, params.Address, candidates)
    if err != nil {
      return nil, err
    }
  }

  if len(scored) > 0 && scored[0].confidence >= autoMatchConfidence {
    top := scored[0]
    s.log.Debug("Fuzzy match accepted", "identityID", top.identity.ID, "confidence", top.confidence)
    result, err := s.exactHit(ctx, top.identity, params, types.MatchTypeFuzzyName, top.reason)
    if err != nil {
      return nil, err
    }
    result.Matches = transientMatches(top.identity.ID, scored)
    result.Matches[0].Status = types.MatchStatusAutoMerged
    return result, nil
  }

  return s.createWithPendingMatches(ctx, params, email, phone, scored, actorID)
}

type scoredCandidate struct {
  identity     *types.CustomerIdentity
  confidence   int
  matchType    string
  reason       string
}

func (s *identityResolverService) scoreCandidates(ctx context.Context, name, address string, candidates []*types.CustomerIdentity) ([]scoredCandidate, error) {
  normAddress := normalization.NormalizeAddress(address)

  var passed []scoredCandidate
  var passedIDs []uuid.UUID
  for _, candidate := range candidates {
    candidateName := normalization.NormalizeName(candidate.DisplayName)
    if candidateName == "" {
      continue
    }
    similarity := strutil.Similarity(name, candidateName, s.nameMetric)
    if similarity < fuzzyNameThreshold {
      continue
    }
    passed = append(passed, scoredCandidate{
      identity:   candidate,
      confidence: int(math.Round(similarity * 100)),
      matchType:  types.MatchTypeFuzzyName,
      reason:     fmt.Sprintf("name similarity %.2f", similarity),
    })
    passedIDs = append(passedIDs, candidate.ID)
  }
  if len(passed) == 0 || normAddress == "" {
    sortByConfidence(passed)
    return passed, nil
  }

  history, err := s.addressRepo.GetByIdentityIDs(ctx, nil, passedIDs)
  if err != nil {
    return nil, fmt.Errorf("address history query: %w", err)
  }
  historyByIdentity := make(map[uuid.UUID][]*types.IdentityAddress)
  for _, addr := range history {
    historyByIdentity[addr.IdentityID] = append(historyByIdentity[addr.IdentityID], addr)
  }

  for i := range passed {
    candidate := passed[i].identity
    if candidate.CurrentAddress != "" {
      sim := strutil.Similarity(normAddress, normalization.NormalizeAddress(candidate.CurrentAddress), s.nameMetric)
      if sim >= addressOverlapThreshold {
        passed[i].confidence += currentAddressBoost
        passed[i].reason += fmt.Sprintf(", current address overlap %.2f", sim)
      }
    }
    for _, addr := range historyByIdentity[candidate.ID] {
      if addr.Current {
        continue
      }
      sim := strutil.Similarity(normAddress, normalization.NormalizeAddress(addr.Line), s.nameMetric)
      if sim >= addressOverlapThreshold {
        passed[i].confidence += historicalAddressBoost
        passed[i].reason += fmt.Sprintf(", historical address overlap %.2f", sim)
        break
      }
    }
    if passed[i].confidence > 100 {
      passed[i].confidence = 100
    }
  }
  sortByConfidence(passed)
  return passed, nil
}

func sortByConfidence(scored []scoredCandidate) {
  sort.SliceStable(scored, func(i, j int) bool {
    return scored[i].confidence > scored[j].confidence
  })
}

// exactHit returns an existing identity, refreshing last-seen, filling in
// contact fields the identity was missing and rolling the address history
// forward when the sighting carries a different address.
func (s *identityResolverService) exactHit(ctx context.Context, identity *types.CustomerIdentity, params ResolveParams, matchType, reason string) (*ResolveResult, error) {
  identity, err := s.resolveActive(ctx, identity)
  if err != nil {
    return nil, err
  }

  changed := false
  if identity.NormalizedEmail == "" {
    if email := normalization.NormalizeEmail(params.Email); email != "" {
      identity.NormalizedEmail = email
      changed = true
    }
  }
  if identity.NormalizedPhone == "" {
    if phone := normalization.NormalizePhone(params.Phone); phone != "" {
      identity.NormalizedPhone = phone
      changed = true
    }
  }
  if identity.DisplayName == "" && params.Name != "" {
    identity.DisplayName = params.Name
    changed = true
  }
  newAddress := ""
  if params.Address != "" &&
    normalization.NormalizeAddress(params.Address) != normalization.NormalizeAddress(identity.CurrentAddress) {
    newAddress = params.Address
  }
  identity.LastSeenAt = time.Now()

  if newAddress == "" {
    if err := s.identityRepo.Update(ctx, nil, identity); err != nil {
      return nil, fmt.Errorf("refresh identity: %w", err)
    }
  } else {
    identity.CurrentAddress = newAddress
    changed = true
    err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
      if err := s.addressRepo.ClearCurrent(ctx, tx, identity.ID); err != nil {
        return fmt.Errorf("retire previous address: %w", err)
      }
      address := &types.IdentityAddress{
        ID:         uuid.New(),
        IdentityID: identity.ID,
        Line:       newAddress,
        Current:    true,
        RecordedAt: identity.LastSeenAt,
      }
      if _, err := s.addressRepo.Create(ctx, tx, []*types.IdentityAddress{address}); err != nil {
        return fmt.Errorf("record address rollover: %w", err)
      }
      if err := s.identityRepo.Update(ctx, tx, identity); err != nil {
        return fmt.Errorf("refresh identity: %w", err)
      }
      return nil
    })
    if err != nil {
      return nil, err
    }
  }
  if changed {
    s.log.Debug("Identity contact fields enriched on resolve", "identityID", identity.ID)
  }

  return &ResolveResult{
    Identity: identity,
    IsNew:    false,
    Matches: []*types.IdentityMatch{{
      IdentityID:  identity.ID,
      CandidateID: identity.ID,
      MatchType:   matchType,
      Confidence:  100,
      Reason:      reason,
      Status:      types.MatchStatusAutoMerged,
    }},
  }, nil
}

// resolveActive follows the tombstone chain to the active master record.
func (s *identityResolverService) resolveActive(ctx context.Context, identity *types.CustomerIdentity) (*types.CustomerIdentity, error) {
  current := identity
  for depth := 0; current.MasterIdentityID != nil; depth++ {
    if depth >= 10 {
      return nil, fmt.Errorf("merge chain too deep for identity %s", identity.ID)
    }
    next, err := s.identityRepo.GetByIDs(ctx, nil, []uuid.UUID{*current.MasterIdentityID})
    if err != nil {
      return nil, err
    }
    if len(next) == 0 {
      return nil, fmt.Errorf("%w: master %s", ErrIdentityNotFound, *current.MasterIdentityID)
    }
    current = next[0]
  }
  return current, nil
}

func (s *identityResolverService) createWithPendingMatches(ctx context.Context, params ResolveParams, email, phone string, scored []scoredCandidate, actorID string) (*ResolveResult, error) {
  now := time.Now()
  identity := &types.CustomerIdentity{
    ID:              uuid.New(),
    NormalizedEmail: email,
    NormalizedPhone: phone,
    DisplayName:     params.Name,
    CurrentAddress:  params.Address,
    FirstSeenAt:     now,
    LastSeenAt:      now,
  }

  var persisted []*types.IdentityMatch
  lostRace := false
  err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    // Re-check inside the transaction: another request may have created the
    // same email between our read and this insert. Narrows the window, does
    // not close it; the partial unique index is the backstop.
    if email != "" {
      existing, err := s.identityRepo.GetActiveByNormalizedEmail(ctx, tx, email)
      if err != nil {
        return err
      }
      if existing != nil {
        identity = existing
        lostRace = true
        return nil
      }
    }
    if _, err := s.identityRepo.Create(ctx, tx, []*types.CustomerIdentity{identity}); err != nil {
      return fmt.Errorf("create identity: %w", err)
    }
    if params.Address != "" {
      address := &types.IdentityAddress{
        ID:         uuid.New(),
        IdentityID: identity.ID,
        Line:       params.Address,
        Current:    true,
        RecordedAt: now,
      }
      if _, err := s.addressRepo.Create(ctx, tx, []*types.IdentityAddress{address}); err != nil {
        return fmt.Errorf("seed address history: %w", err)
      }
    }
    for _, candidate := range scored {
      if candidate.confidence < reviewMatchConfidence {
        continue
      }
      status := types.MatchStatusPending
      if candidate.confidence >= autoMatchConfidence {
        status = types.MatchStatusAutoMerged
      }
      persisted = append(persisted, &types.IdentityMatch{
        ID:          uuid.New(),
        IdentityID:  identity.ID,
        CandidateID: candidate.identity.ID,
        MatchType:   candidate.matchType,
        Confidence:  candidate.confidence,
        Reason:      candidate.reason,
        Status:      status,
      })
    }
    if _, err := s.matchRepo.Create(ctx, tx, persisted); err != nil {
      return fmt.Errorf("log candidate matches: %w", err)
    }
    return nil
  })
  if err != nil {
    return nil, err
  }
  return &ResolveResult{Identity: identity, IsNew: !lostRace, Matches: persisted}, nil
}

// MergeIdentities folds merge into keep: counters summed, address histories
// unioned, and the merged row tombstoned via MasterIdentityID. Rows are never
// deleted. Both ids must exist and be active or the merge refuses outright.
func (s *identityResolverService) MergeIdentities(ctx context.Context, keepID, mergeID uuid.UUID, actorID string) (*types.CustomerIdentity, error) {
  keep, merge, err := s.loadActivePair(ctx, keepID, mergeID)
  if err != nil {
    return nil, err
  }
  err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    return s.mergeInto(ctx, tx, keep, merge, actorID)
  })
  if err != nil {
    return nil, err
  }
  s.log.Info("Identities merged", "keepID", keepID, "mergeID", mergeID, "actorID", actorID)
  s.publishMerged(ctx, keepID, mergeID)
  return keep, nil
}

// loadActivePair fetches both ends of a merge and refuses when either side is
// missing or already tombstoned.
func (s *identityResolverService) loadActivePair(ctx context.Context, keepID, mergeID uuid.UUID) (*types.CustomerIdentity, *types.CustomerIdentity, error) {
  if keepID == mergeID {
    return nil, nil, fmt.Errorf("cannot merge identity %s into itself", keepID)
  }
  identities, err := s.identityRepo.GetByIDs(ctx, nil, []uuid.UUID{keepID, mergeID})
  if err != nil {
    return nil, nil, err
  }
  var keep, merge *types.CustomerIdentity
  for _, identity := range identities {
    switch identity.ID {
    case keepID:
      keep = identity
    case mergeID:
      merge = identity
    }
  }
  if keep == nil {
    return nil, nil, fmt.Errorf("%w: keep %s", ErrIdentityNotFound, keepID)
  }
  if merge == nil {
    return nil, nil, fmt.Errorf("%w: merge %s", ErrIdentityNotFound, mergeID)
  }
  if keep.IsMerged() {
    return nil, nil, fmt.Errorf("%w: keep %s", ErrIdentityMerged, keepID)
  }
  if merge.IsMerged() {
    return nil, nil, fmt.Errorf("%w: merge %s", ErrIdentityMerged, mergeID)
  }
  return keep, merge, nil
}

// mergeInto runs the merge writes on the caller's transaction so review
// bookkeeping can commit atomically with the merge itself.
func (s *identityResolverService) mergeInto(ctx context.Context, tx *gorm.DB, keep, merge *types.CustomerIdentity, actorID string) error {
  now := time.Now()
  existingAddresses, err := s.addressRepo.GetByIdentityIDs(ctx, tx, []uuid.UUID{keep.ID, merge.ID})
  if err != nil {
    return err
  }
  seen := make(map[string]bool)
  var moved []*types.IdentityAddress
  for _, addr := range existingAddresses {
    key := normalization.NormalizeAddress(addr.Line)
    if addr.IdentityID == keep.ID {
      seen[key] = true
    }
  }
  for _, addr := range existingAddresses {
    if addr.IdentityID != merge.ID {
      continue
    }
    key := normalization.NormalizeAddress(addr.Line)
    if key == "" || seen[key] {
      continue
    }
    seen[key] = true
    moved = append(moved, &types.IdentityAddress{
      ID:         uuid.New(),
      IdentityID: keep.ID,
      Line:       addr.Line,
      Current:    false,
      RecordedAt: addr.RecordedAt,
    })
  }
  if merge.CurrentAddress != "" {
    key := normalization.NormalizeAddress(merge.CurrentAddress)
    if key != "" && !seen[key] {
      seen[key] = true
      moved = append(moved, &types.IdentityAddress{
        ID:         uuid.New(),
        IdentityID: keep.ID,
        Line:       merge.CurrentAddress,
        Current:    false,
        RecordedAt: now,
      })
    }
  }
  if _, err := s.addressRepo.Create(ctx, tx, moved); err != nil {
    return fmt.Errorf("union address history: %w", err)
  }

  keep.TotalOrders += merge.TotalOrders
  keep.LifetimeValue += merge.LifetimeValue
  keep.DisputeCount += merge.DisputeCount
  if merge.FirstSeenAt.Before(keep.FirstSeenAt) {
    keep.FirstSeenAt = merge.FirstSeenAt
  }
  keep.LastSeenAt = now
  if keep.NormalizedEmail == "" {
    keep.NormalizedEmail = merge.NormalizedEmail
  }
  if keep.NormalizedPhone == "" {
    keep.NormalizedPhone = merge.NormalizedPhone
  }
  if err := s.identityRepo.Update(ctx, tx, keep); err != nil {
    return fmt.Errorf("update keep identity: %w", err)
  }

  merge.MasterIdentityID = &keep.ID
  merge.MergedAt = &now
  merge.MergedBy = actorID
  if err := s.identityRepo.Update(ctx, tx, merge); err != nil {
    return fmt.Errorf("tombstone merged identity: %w", err)
  }
  return nil
}

func (s *identityResolverService) publishMerged(ctx context.Context, keepID, mergeID uuid.UUID) {
  if s.publisher == nil {
    return
  }
  s.publisher.Publish(ctx, sse.SSEMessage{
    Channel: sse.IdentityChannel(keepID),
    Event:   sse.SSEEventIdentityMerged,
    Data:    map[string]any{"keep_id": keepID, "merge_id": mergeID},
  })
}

// AcceptMatch confirms a pending fuzzy match: the older candidate identity is
// kept and the newer one merged into it. Marking the row accepted, recording
// the manual match edge and the merge itself commit in one transaction, so a
// failure anywhere leaves the pending row untouched and retriable.
func (s *identityResolverService) AcceptMatch(ctx context.Context, matchID uuid.UUID, actorID string) (*types.CustomerIdentity, error) {
  matches, err := s.matchRepo.GetByIDs(ctx, nil, []uuid.UUID{matchID})
  if err != nil {
    return nil, err
  }
  if len(matches) == 0 {
    return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
  }
  match := matches[0]
  if match.Status != types.MatchStatusPending {
    return nil, fmt.Errorf("%w: %s is %s", ErrMatchNotPending, matchID, match.Status)
  }
  keep, merge, err := s.loadActivePair(ctx, match.CandidateID, match.IdentityID)
  if err != nil {
    return nil, err
  }

  err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if err := s.matchRepo.MarkReviewed(ctx, tx, matchID, types.MatchStatusAccepted, actorID); err != nil {
      return fmt.Errorf("mark match accepted: %w", err)
    }
    manual := &types.IdentityMatch{
      ID:          uuid.New(),
      IdentityID:  match.IdentityID,
      CandidateID: match.CandidateID,
      MatchType:   types.MatchTypeManual,
      Confidence:  100,
      Reason:      "confirmed by reviewer",
      Status:      types.MatchStatusAutoMerged,
      ReviewedBy:  actorID,
    }
    if _, err := s.matchRepo.Create(ctx, tx, []*types.IdentityMatch{manual}); err != nil {
      return fmt.Errorf("record manual match: %w", err)
    }
    return s.mergeInto(ctx, tx, keep, merge, actorID)
  })
  if err != nil {
    return nil, err
  }
  s.log.Info("Match accepted", "matchID", matchID, "keepID", keep.ID, "actorID", actorID)
  s.publishMerged(ctx, keep.ID, merge.ID)
  return keep, nil
}

func (s *identityResolverService) RejectMatch(ctx context.Context, matchID uuid.UUID, actorID string) error {
  matches, err := s.matchRepo.GetByIDs(ctx, nil, []uuid.UUID{matchID})
  if err != nil {
    return err
  }
  if len(matches) == 0 {
    return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
  }
  if matches[0].Status != types.MatchStatusPending {
    return fmt.Errorf("%w: %s is %s", ErrMatchNotPending, matchID, matches[0].Status)
  }
  return s.matchRepo.MarkReviewed(ctx, nil, matchID, types.MatchStatusRejected, actorID)
}

func (s *identityResolverService) ListPendingMatches(ctx context.Context, limit, offset int) ([]*types.IdentityMatch, error) {
  return s.matchRepo.ListPending(ctx, nil, limit, offset)
}

func (s *identityResolverService) GetIdentity(ctx context.Context, id uuid.UUID) (*types.CustomerIdentity, error) {
  identities, err := s.identityRepo.GetByIDs(ctx, nil, []uuid.UUID{id})
  if err != nil {
    return nil, err
  }
  if len(identities) == 0 {
    return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, id)
  }
  identity := identities[0]
  addresses, err := s.addressRepo.GetByIdentityIDs(ctx, nil, []uuid.UUID{id})
  if err != nil {
    return nil, err
  }
  identity.Addresses = addresses
  return identity, nil
}

func transientMatches(identityID uuid.UUID, scored []scoredCandidate) []*types.IdentityMatch {
  out := make([]*types.IdentityMatch, 0, len(scored))
  for _, candidate := range scored {
    out = append(out, &types.IdentityMatch{
      IdentityID:  identityID,
      CandidateID: candidate.identity.ID,
      MatchType:   candidate.matchType,
      Confidence:  candidate.confidence,
      Reason:      candidate.reason,
      Status:      types.MatchStatusPending,
    })
  }
  return out
}
