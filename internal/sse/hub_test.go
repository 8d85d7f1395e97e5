package sse

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/disputedesk-backend/internal/logger"
)

func newTestHub(t *testing.T) *SSEHub {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	return NewSSEHub(log)
}

func TestBroadcast_DeliversOnlyToSubscribedChannel(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewSSEClient(uuid.New())
	runID := uuid.New()
	hub.AddChannel(client, ImportRunChannel(runID))

	hub.Broadcast(SSEMessage{Channel: ImportRunChannel(runID), Event: SSEEventImportProgress})
	hub.Broadcast(SSEMessage{Channel: ImportRunChannel(uuid.New()), Event: SSEEventImportProgress})

	require.Len(t, client.Outbound, 1)
}

func TestCloseClient_UnsubscribesAndStopsDelivery(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewSSEClient(uuid.New())
	channel := IdentityChannel(uuid.New())
	hub.AddChannel(client, channel)

	hub.CloseClient(client)

	// The client is fully unsubscribed before its outbound channel closes, so
	// a late broadcast on its old channel is a no-op rather than a send on a
	// closed channel.
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventIdentityMerged})

	select {
	case <-client.done:
	default:
		t.Fatal("done must be closed after CloseClient")
	}
	_, open := <-client.Outbound
	require.False(t, open)
}
