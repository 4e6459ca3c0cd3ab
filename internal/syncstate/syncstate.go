// Package syncstate is the pure, I/O-free bookkeeping for per-room and
// per-(room,client) differential synchronization state: RoomState and
// ClientSyncState.
package syncstate

import "github.com/area/diffsync/internal/diffengine"

// Edit is one wire-level step of change: a server/local version pair and
// the delta that advances the receiver from that pair to the next.
type Edit struct {
	ServerVersion int               `json:"serverVersion"`
	LocalVersion  int               `json:"localVersion"`
	Diff          *diffengine.Delta `json:"diff"`
}

// Shadow is the server's model of what a client has last acknowledged.
type Shadow struct {
	Doc           diffengine.Document
	ServerVersion int
	LocalVersion  int
}

// Backup is a one-step-back copy of Shadow, taken before applying an
// inbound edit, reserved for a recovery workflow this core does not
// implement (see DESIGN.md).
type Backup struct {
	Doc           diffengine.Document
	ServerVersion int
}

// ClientSyncState is the shadow/backup/edit-queue bookkeeping for one
// (room, client) pair.
type ClientSyncState struct {
	Shadow Shadow
	Backup Backup
	Edits  []Edit
}

// NewClientSyncState seeds a ClientSyncState from the room's current
// document. Shadow and Backup are independent deep copies of seed, and of
// each other.
func NewClientSyncState(seed diffengine.Document, engine *diffengine.Engine) *ClientSyncState {
	return &ClientSyncState{
		Shadow: Shadow{Doc: engine.DeepCopy(seed)},
		Backup: Backup{Doc: engine.DeepCopy(seed)},
		Edits:  []Edit{},
	}
}

// RoomState is the in-memory state for one active room: the authoritative
// document, its tracked clients, and the set of sockets currently joined
// (used only for broadcast membership).
type RoomState struct {
	ServerCopy        diffengine.Document
	Clients           map[string]*ClientSyncState
	RegisteredSockets map[string]struct{}
}

// NewRoomState constructs a RoomState around a freshly loaded document.
func NewRoomState(serverCopy diffengine.Document) *RoomState {
	return &RoomState{
		ServerCopy:        serverCopy,
		Clients:           make(map[string]*ClientSyncState),
		RegisteredSockets: make(map[string]struct{}),
	}
}

// AddClient creates and registers a ClientSyncState for clientID, seeded
// from the room's current ServerCopy.
func (r *RoomState) AddClient(clientID string, engine *diffengine.Engine) *ClientSyncState {
	cs := NewClientSyncState(r.ServerCopy, engine)
	r.Clients[clientID] = cs
	return cs
}

// RemoveClient tears down a client's state. SessionRouter calls this on
// disconnect; the core tolerates stale entries being removed at any time.
func (r *RoomState) RemoveClient(clientID string) {
	delete(r.Clients, clientID)
	delete(r.RegisteredSockets, clientID)
}
