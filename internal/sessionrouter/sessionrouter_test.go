package sessionrouter

import (
	"context"
	"testing"

	"github.com/area/diffsync/internal/adapter"
	"github.com/area/diffsync/internal/diffengine"
	"github.com/area/diffsync/internal/editprocessor"
	"github.com/area/diffsync/internal/roomstore"
	"github.com/area/diffsync/internal/savecoalescer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id, userID string
	joined     string
	emitted    []struct {
		event   string
		payload interface{}
	}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }
func (c *fakeConn) Emit(event string, payload interface{}) {
	c.emitted = append(c.emitted, struct {
		event   string
		payload interface{}
	}{event, payload})
}
func (c *fakeConn) Join(room string) { c.joined = room }

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastToRoom(room, event string, payload interface{}) {}

func newRouter(t *testing.T) (*Router, *roomstore.Store) {
	t.Helper()
	engine := diffengine.New(diffengine.Options{})
	mem := adapter.NewMemory()
	mem.Seed("r", map[string]interface{}{"text": "hello"})
	store := roomstore.New(mem, engine)
	coalescer := savecoalescer.New(mem, store)
	proc := editprocessor.New(store, coalescer, mem, noopBroadcaster{}, engine)
	return New(store, proc, engine), store
}

func TestJoinSeedsClientFromServerCopy(t *testing.T) {
	router, store := newRouter(t)
	conn := &fakeConn{id: "client-a", userID: "user"}

	doc, err := router.Join(context.Background(), conn, "r")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"text": "hello"}, doc)
	assert.Equal(t, "r", conn.joined)

	entry, err := store.GetData(context.Background(), "r", "user")
	require.NoError(t, err)
	entry.Mu.Lock()
	cs := entry.State.Clients["client-a"]
	require.NotNil(t, cs)
	assert.Equal(t, 0, cs.Shadow.ServerVersion)
	assert.Equal(t, 0, cs.Shadow.LocalVersion)
	assert.Empty(t, cs.Edits)
	_, registered := entry.State.RegisteredSockets["client-a"]
	assert.True(t, registered)
	entry.Mu.Unlock()
}

func TestJoinDocIsIndependentOfServerCopy(t *testing.T) {
	router, store := newRouter(t)
	conn := &fakeConn{id: "client-a", userID: "user"}

	doc, err := router.Join(context.Background(), conn, "r")
	require.NoError(t, err)

	doc.(map[string]interface{})["text"] = "mutated"

	entry, err := store.GetData(context.Background(), "r", "user")
	require.NoError(t, err)
	entry.Mu.Lock()
	assert.Equal(t, "hello", entry.State.ServerCopy.(map[string]interface{})["text"])
	entry.Mu.Unlock()
}

func TestLeaveRemovesClientAndMembership(t *testing.T) {
	router, store := newRouter(t)
	conn := &fakeConn{id: "client-a", userID: "user"}
	_, err := router.Join(context.Background(), conn, "r")
	require.NoError(t, err)

	router.Leave("r", "client-a")

	entry, err := store.GetData(context.Background(), "r", "user")
	require.NoError(t, err)
	entry.Mu.Lock()
	_, ok := entry.State.Clients["client-a"]
	assert.False(t, ok)
	_, registered := entry.State.RegisteredSockets["client-a"]
	assert.False(t, registered)
	entry.Mu.Unlock()
}

func TestLeaveToleratesUnknownRoom(t *testing.T) {
	router, _ := newRouter(t)
	assert.NotPanics(t, func() { router.Leave("never-loaded", "client-a") })
}
