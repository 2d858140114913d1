package gateway

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBroadcastWithoutClients(t *testing.T) {
	registry := NewClientRegistry()
	b := NewEventBroadcaster(registry, zerolog.Nop())

	b.SessionStarted(1000)
	b.Broadcast(EventCompact, SessionEvent{StartAt: 1000})

	assert.Equal(t, int64(3), b.nextSeq())
}

func TestClientRegistry(t *testing.T) {
	registry := NewClientRegistry()

	registry.Add(&Client{ID: "a"})
	registry.Add(&Client{ID: "b"})
	assert.Equal(t, 2, registry.Count())

	client, ok := registry.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "a", client.ID)

	registry.Remove("a")
	_, ok = registry.Get("a")
	assert.False(t, ok)
	assert.Len(t, registry.GetAll(), 1)
}
