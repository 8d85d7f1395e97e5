package services

import (
  "context"
  redisclient "github.com/yungbote/disputedesk-backend/internal/clients/redis"
  "github.com/yungbote/disputedesk-backend/internal/logger"
  "github.com/yungbote/disputedesk-backend/internal/sse"
)

// EventPublisher pushes dashboard events (import progress, merges, risk
// updates) to connected clients. With a redis bus configured the message goes
// through redis and comes back to every replica's hub via the forwarder;
// without one it is broadcast in-process only.
type EventPublisher interface {
  Publish(ctx context.Context, msg sse.SSEMessage)
}

type ssePublisher struct {
  log *logger.Logger
  hub *sse.SSEHub
  bus redisclient.SSEBus
}

func NewSSEPublisher(log *logger.Logger, hub *sse.SSEHub, bus redisclient.SSEBus) EventPublisher {
  return &ssePublisher{
    log: log.With("service", "SSEPublisher"),
    hub: hub,
    bus: bus,
  }
}

func (p *ssePublisher) Publish(ctx context.Context, msg sse.SSEMessage) {
  if p.bus != nil {
    if err := p.bus.Publish(ctx, msg); err != nil {
      p.log.Warn("Redis publish failed, falling back to local broadcast", "error", err)
      p.hub.Broadcast(msg)
    }
    return
  }
  p.hub.Broadcast(msg)
}
