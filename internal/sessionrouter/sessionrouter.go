// Package sessionrouter wires transport connection events to RoomStore and
// EditProcessor: the only component that touches both the transport-facing
// Connection and the sync core directly. Its shape follows
// controllers/room.go's OnConnect handler, with the ECS-specific bootstrap
// replaced by the generic join/syncWithServer handshake.
package sessionrouter

import (
	"context"

	"github.com/area/diffsync/internal/diffengine"
	"github.com/area/diffsync/internal/editprocessor"
	"github.com/area/diffsync/internal/roomstore"
)

// Connection is the subset of the transport connection contract the
// router needs to bootstrap a join. It embeds editprocessor.Connection so
// a single concrete connection type satisfies both.
type Connection interface {
	editprocessor.Connection
	Join(room string)
}

// Router wires one transport connection's join/syncWithServer events to
// the sync core.
type Router struct {
	store     *roomstore.Store
	processor *editprocessor.Processor
	engine    *diffengine.Engine
}

// New builds a Router over the given RoomStore/EditProcessor/DiffEngine.
// All three should be the same instances shared by the rest of the
// process.
func New(store *roomstore.Store, processor *editprocessor.Processor, engine *diffengine.Engine) *Router {
	return &Router{store: store, processor: processor, engine: engine}
}

// Join handles an inbound "join" event: loads or creates the room, seeds a
// ClientSyncState for conn, registers the connection with the transport
// room, and returns the document to hand back to the client as its
// initial state (the wire initCb invocation).
func (r *Router) Join(ctx context.Context, conn Connection, room string) (diffengine.Document, error) {
	entry, err := r.store.GetData(ctx, room, conn.UserID())
	if err != nil {
		return nil, err
	}

	entry.Mu.Lock()
	entry.State.AddClient(conn.ID(), r.engine)
	entry.State.RegisteredSockets[conn.ID()] = struct{}{}
	initial := r.engine.DeepCopy(entry.State.ServerCopy)
	entry.Mu.Unlock()

	conn.Join(room)
	return initial, nil
}

// SyncWithServer handles an inbound "syncWithServer" event by delegating
// to the EditProcessor; the reply is delivered through conn.Emit inside
// ReceiveEdit, with no additional logic at this layer.
func (r *Router) SyncWithServer(ctx context.Context, conn editprocessor.Connection, msg editprocessor.EditMessage) error {
	return r.processor.ReceiveEdit(ctx, conn, msg)
}

// Leave removes a disconnected connection's ClientSyncState and room
// membership. The core must tolerate this running at any time, including
// concurrently with in-flight edit processing for the same room.
func (r *Router) Leave(room string, connID string) {
	entry := r.store.Peek(room)
	if entry == nil {
		return
	}
	entry.Mu.Lock()
	defer entry.Mu.Unlock()
	entry.State.RemoveClient(connID)
	delete(entry.State.RegisteredSockets, connID)
}
