package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/yungbote/disputedesk-backend/internal/requestdata"
  "github.com/yungbote/disputedesk-backend/internal/services"
  "github.com/yungbote/disputedesk-backend/internal/sse"
)

type OrderHandler struct {
  reconciler     services.OrderReconcilerService
  deduplicator   services.ImportDeduplicatorService
  hub            *sse.SSEHub
}

func NewOrderHandler(
  reconciler services.OrderReconcilerService,
  deduplicator services.ImportDeduplicatorService,
  hub *sse.SSEHub,
) *OrderHandler {
  return &OrderHandler{reconciler: reconciler, deduplicator: deduplicator, hub: hub}
}

// Reconcile links a shipment event to its order. A miss is a 200 with a null
// match; the caller leaves the shipment unlinked.
func (oh *OrderHandler) Reconcile(c *gin.Context) {
  var ship services.ShipmentEvent
  if err := c.ShouldBindJSON(&ship); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_body", err)
    return
  }
  match, err := oh.reconciler.LinkShipment(c.Request.Context(), ship, actorID(c))
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "reconcile_failed", err)
    return
  }
  RespondOK(c, gin.H{"match": match})
}

func (oh *OrderHandler) Import(c *gin.Context) {
  var req struct {
    Records    []services.IncomingOrder   `json:"records"`
    PageSize   int                        `json:"page_size"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_body", err)
    return
  }
  runID := uuid.New()
  summary, err := oh.deduplicator.ImportBatch(c.Request.Context(), runID, req.Records, actorID(c), req.PageSize)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, "import_failed", err)
    return
  }
  RespondOK(c, summary)
}

func (oh *OrderHandler) StreamImport(c *gin.Context) {
  runID, err := uuid.Parse(c.Param("runId"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
    return
  }
  client := oh.hub.NewSSEClient(rd.UserID)
  oh.hub.AddChannel(client, sse.ImportRunChannel(runID))
  defer oh.hub.CloseClient(client)
  oh.hub.ServeHTTP(c.Writer, c.Request, client)
}
