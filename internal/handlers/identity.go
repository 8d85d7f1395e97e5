package handlers

import (
  "errors"
  "net/http"
  "strconv"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/yungbote/disputedesk-backend/internal/requestdata"
  "github.com/yungbote/disputedesk-backend/internal/services"
)

type IdentityHandler struct {
  resolver   services.IdentityResolverService
}

func NewIdentityHandler(resolver services.IdentityResolverService) *IdentityHandler {
  return &IdentityHandler{resolver: resolver}
}

func (ih *IdentityHandler) Resolve(c *gin.Context) {
  var req struct {
    Email     string    `json:"email"`
    Phone     string    `json:"phone"`
    Name      string    `json:"name"`
    Address   string    `json:"address"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_body", err)
    return
  }
  result, err := ih.resolver.FindOrCreate(c.Request.Context(), services.ResolveParams{
    Email:   req.Email,
    Phone:   req.Phone,
    Name:    req.Name,
    Address: req.Address,
  }, actorID(c))
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "resolve_failed", err)
    return
  }
  RespondOK(c, result)
}

func (ih *IdentityHandler) Merge(c *gin.Context) {
  var req struct {
    KeepID    uuid.UUID   `json:"keep_id"`
    MergeID   uuid.UUID   `json:"merge_id"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_body", err)
    return
  }
  kept, err := ih.resolver.MergeIdentities(c.Request.Context(), req.KeepID, req.MergeID, actorID(c))
  if err != nil {
    RespondError(c, identityErrorStatus(err), "merge_failed", err)
    return
  }
  RespondOK(c, kept)
}

func (ih *IdentityHandler) ListPendingMatches(c *gin.Context) {
  limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
  offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
  matches, err := ih.resolver.ListPendingMatches(c.Request.Context(), limit, offset)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "list_failed", err)
    return
  }
  RespondOK(c, gin.H{"matches": matches})
}

func (ih *IdentityHandler) AcceptMatch(c *gin.Context) {
  matchID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", err)
    return
  }
  kept, err := ih.resolver.AcceptMatch(c.Request.Context(), matchID, actorID(c))
  if err != nil {
    RespondError(c, identityErrorStatus(err), "accept_failed", err)
    return
  }
  RespondOK(c, kept)
}

func (ih *IdentityHandler) RejectMatch(c *gin.Context) {
  matchID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", err)
    return
  }
  if err := ih.resolver.RejectMatch(c.Request.Context(), matchID, actorID(c)); err != nil {
    RespondError(c, identityErrorStatus(err), "reject_failed", err)
    return
  }
  RespondOK(c, gin.H{"success": "true"})
}

func (ih *IdentityHandler) Get(c *gin.Context) {
  identityID, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", err)
    return
  }
  identity, err := ih.resolver.GetIdentity(c.Request.Context(), identityID)
  if err != nil {
    RespondError(c, identityErrorStatus(err), "get_failed", err)
    return
  }
  RespondOK(c, identity)
}

func identityErrorStatus(err error) int {
  switch {
  case errors.Is(err, services.ErrIdentityNotFound),
    errors.Is(err, services.ErrMatchNotFound):
    return http.StatusNotFound
  case errors.Is(err, services.ErrIdentityMerged),
    errors.Is(err, services.ErrMatchNotPending):
    return http.StatusConflict
  default:
    return http.StatusInternalServerError
  }
}

// actorID names the operator for audit rows; sync jobs call the services
// directly with their own job name instead.
func actorID(c *gin.Context) string {
  if rd := requestdata.GetRequestData(c.Request.Context()); rd != nil {
    return rd.UserID.String()
  }
  return ""
}
