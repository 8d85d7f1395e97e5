package handlers

import (
  "errors"
  "net/http"
  "strconv"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/yungbote/disputedesk-backend/internal/services"
)

type CaseHandler struct {
  caseService   services.CaseService
}

func NewCaseHandler(caseService services.CaseService) *CaseHandler {
  return &CaseHandler{caseService: caseService}
}

func (ch *CaseHandler) Create(c *gin.Context) {
  var req services.CreateCaseParams
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_body", err)
    return
  }
  created, err := ch.caseService.CreateCase(c.Request.Context(), req, actorID(c))
  if err != nil {
    switch {
    case errors.Is(err, services.ErrIdentityNotFound), errors.Is(err, services.ErrOrderNotFound):
      RespondError(c, http.StatusNotFound, "not_found", err)
    default:
      RespondError(c, http.StatusInternalServerError, "create_failed", err)
    }
    return
  }
  RespondOK(c, created)
}

func (ch *CaseHandler) List(c *gin.Context) {
  if rawID := c.Query("identity_id"); rawID != "" {
    identityID, err := uuid.Parse(rawID)
    if err != nil {
      RespondError(c, http.StatusBadRequest, "invalid_id", err)
      return
    }
    cases, err := ch.caseService.ListByIdentity(c.Request.Context(), identityID)
    if err != nil {
      RespondError(c, http.StatusInternalServerError, "list_failed", err)
      return
    }
    RespondOK(c, gin.H{"cases": cases})
    return
  }
  limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
  offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
  cases, err := ch.caseService.ListCases(c.Request.Context(), limit, offset)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "list_failed", err)
    return
  }
  RespondOK(c, gin.H{"cases": cases})
}
