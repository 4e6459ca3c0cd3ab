package transport

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEnvelopeWrapsEventAndPayload(t *testing.T) {
	data, err := encodeEnvelope("join", map[string]string{"room": "r"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "join", env.Event)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "r", payload["room"])
}

func newTestClient(h *Hub, id string) *Client {
	return &Client{
		hub:   h,
		send:  make(chan []byte, 8),
		id:    id,
		rooms: make(map[string]struct{}),
	}
}

func TestJoinRegistersRoomMembership(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, "client-a")

	c.Join("room-1")

	h.mu.Lock()
	_, member := h.rooms["room-1"][c.id]
	h.mu.Unlock()
	assert.True(t, member)
}

func TestBroadcastToRoomReachesOnlyMembers(t *testing.T) {
	h := NewHub()
	inRoom := newTestClient(h, "in-room")
	outOfRoom := newTestClient(h, "out-of-room")
	inRoom.Join("room-1")

	h.BroadcastToRoom("room-1", "remoteUpdateIncoming", "in-room")

	select {
	case msg := <-inRoom.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, "remoteUpdateIncoming", env.Event)
	default:
		t.Fatal("expected room member to receive broadcast")
	}

	select {
	case <-outOfRoom.send:
		t.Fatal("non-member must not receive room broadcast")
	default:
	}
}

func TestLeaveRemovesMembershipAndEmptyRoom(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, "client-a")
	c.Join("room-1")

	h.Leave("room-1", "client-a")

	h.mu.Lock()
	_, exists := h.rooms["room-1"]
	h.mu.Unlock()
	assert.False(t, exists)
}

func TestTokenFromRequestPrefersQueryParam(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=query-token", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "query-token", tokenFromRequest(r))
}

func TestTokenFromRequestFallsBackToAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", tokenFromRequest(r))
}

func TestTokenFromRequestEmptyWhenNeitherPresent(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	assert.Equal(t, "", tokenFromRequest(r))
}

func TestEmitDropsOnFullSendBuffer(t *testing.T) {
	h := NewHub()
	c := &Client{hub: h, send: make(chan []byte, 1), id: "client-a", rooms: make(map[string]struct{})}
	c.Emit("x", 1)

	assert.NotPanics(t, func() { c.Emit("y", 2) })
	assert.Len(t, c.send, 1)
}
