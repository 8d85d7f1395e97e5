package handlers

import (
  "errors"
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/yungbote/disputedesk-backend/internal/services"
)

type RiskHandler struct {
  scorer   services.RiskScorerService
}

func NewRiskHandler(scorer services.RiskScorerService) *RiskHandler {
  return &RiskHandler{scorer: scorer}
}

func (rh *RiskHandler) Recalculate(c *gin.Context) {
  identityID, err := uuid.Parse(c.Param("identityId"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", err)
    return
  }
  var req struct {
    Email   string   `json:"email"`
  }
  _ = c.ShouldBindJSON(&req)
  score, err := rh.scorer.CalculateRiskScore(c.Request.Context(), identityID, req.Email)
  if err != nil {
    if errors.Is(err, services.ErrIdentityNotFound) {
      RespondError(c, http.StatusNotFound, "identity_not_found", err)
      return
    }
    RespondError(c, http.StatusInternalServerError, "score_failed", err)
    return
  }
  RespondOK(c, score)
}

func (rh *RiskHandler) Get(c *gin.Context) {
  identityID, err := uuid.Parse(c.Param("identityId"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_id", err)
    return
  }
  score, err := rh.scorer.GetRiskScore(c.Request.Context(), identityID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "get_failed", err)
    return
  }
  if score == nil {
    RespondError(c, http.StatusNotFound, "score_not_found", nil)
    return
  }
  RespondOK(c, score)
}
