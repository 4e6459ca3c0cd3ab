// Package savecoalescer implements the per-room save-coalescing state
// machine: at most one adapter.StoreData call in flight per room, with a
// single-slot queue collapsing any number of saves requested while one is
// running into exactly one follow-up save.
//
// The state names and the state-held-in-a-struct-with-explicit-transitions
// shape follow gazette's appendFSM (broker/append_fsm.go), narrowed from
// gazette's many-state append pipeline down to the three states this one
// actually needs.
package savecoalescer

import (
	"context"
	"sync"

	"github.com/area/diffsync/internal/adapter"
	"github.com/area/diffsync/internal/diffengine"
	"github.com/area/diffsync/internal/logging"
	"github.com/area/diffsync/internal/roomstore"
	"github.com/area/diffsync/internal/syncstate"
)

type saveState int

const (
	stateIdle saveState = iota
	stateSaving
	stateSavingQueued
)

type roomSave struct {
	mu            sync.Mutex
	state         saveState
	pendingEdits  []syncstate.Edit
	pendingUserID string
}

// Coalescer owns the per-room save state machines.
type Coalescer struct {
	adapter adapter.Adapter
	store   *roomstore.Store

	mu       sync.Mutex
	cond     *sync.Cond
	rooms    map[string]*roomSave
	inFlight int
}

// New builds a Coalescer. store is used to re-read each room's latest
// ServerCopy at the moment a (possibly follow-up) save is actually
// issued, rather than trusting the parameters captured when SaveSnapshot
// was called, so a follow-up save always reflects the room's most recent
// state rather than a stale snapshot.
func New(a adapter.Adapter, store *roomstore.Store) *Coalescer {
	c := &Coalescer{
		adapter: a,
		store:   store,
		rooms:   make(map[string]*roomSave),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Coalescer) roomFor(room string) *roomSave {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.rooms[room]
	if !ok {
		rs = &roomSave{}
		c.rooms[room] = rs
	}
	return rs
}

// SaveSnapshot requests that room's server copy be persisted. edits and
// userID are the triggering edit batch, informational for the adapter.
// Each StoreData call passes along the edits/userID of the most recent
// SaveSnapshot call for the room at the moment that save is issued, so a
// later call may replace this call's edits/userID before they are used.
func (c *Coalescer) SaveSnapshot(ctx context.Context, room, userID string, edits []syncstate.Edit) {
	rs := c.roomFor(room)

	rs.mu.Lock()
	rs.pendingEdits = edits
	rs.pendingUserID = userID

	switch rs.state {
	case stateIdle:
		rs.state = stateSaving
		rs.mu.Unlock()
		c.bumpInFlight(1)
		go c.run(ctx, room, rs)
	case stateSaving:
		rs.state = stateSavingQueued
		rs.mu.Unlock()
	case stateSavingQueued:
		rs.mu.Unlock()
	}
}

func (c *Coalescer) run(ctx context.Context, room string, rs *roomSave) {
	for {
		rs.mu.Lock()
		userID := rs.pendingUserID
		edits := rs.pendingEdits
		rs.mu.Unlock()

		serverCopy := c.latestServerCopy(room)

		if err := c.adapter.StoreData(ctx, room, userID, serverCopy, edits); err != nil {
			logging.Error("savecoalescer: store failed for room %s: %v", room, err)
		}

		rs.mu.Lock()
		if rs.state == stateSavingQueued {
			rs.state = stateSaving
			rs.mu.Unlock()
			continue
		}
		rs.state = stateIdle
		rs.mu.Unlock()
		c.bumpInFlight(-1)
		return
	}
}

func (c *Coalescer) latestServerCopy(room string) diffengine.Document {
	entry := c.store.Peek(room)
	if entry == nil {
		return nil
	}
	entry.Mu.Lock()
	defer entry.Mu.Unlock()
	return entry.State.ServerCopy
}

func (c *Coalescer) bumpInFlight(delta int) {
	c.mu.Lock()
	c.inFlight += delta
	if c.inFlight == 0 {
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

// WaitIdle blocks until no save is in progress for any room. Used by
// RoomStore.Reset to block until saves drain before clearing all state,
// using a condition variable instead of a fixed-interval poll loop.
func (c *Coalescer) WaitIdle() {
	c.mu.Lock()
	for c.inFlight > 0 {
		c.cond.Wait()
	}
	c.mu.Unlock()
}
