// Package roomstore is the in-memory, load-through cache of RoomState. It
// de-duplicates concurrent adapter loads for the same room and serializes
// all other operations on a room behind a per-room mutex, styled on the
// sync_gateway RevisionCache's map-guarded-by-mutex shape, narrowed here
// to one mutex per room instead of one for the whole cache.
package roomstore

import (
	"context"
	"sync"

	"github.com/area/diffsync/internal/adapter"
	"github.com/area/diffsync/internal/diffengine"
	"github.com/area/diffsync/internal/syncstate"
)

// Entry owns one room's state plus the mutex that serializes access to
// it. Callers lock Mu for the duration of any read-modify-write sequence
// that must be atomic with respect to other edits on the same room.
type Entry struct {
	Mu    sync.Mutex
	State *syncstate.RoomState
}

type loadResult struct {
	entry *Entry
	err   error
}

// Store is the process-wide room cache.
type Store struct {
	adapter adapter.Adapter
	engine  *diffengine.Engine

	mu      sync.Mutex
	rooms   map[string]*Entry
	loading map[string][]chan loadResult
}

// New builds a Store around the given storage adapter.
func New(a adapter.Adapter, engine *diffengine.Engine) *Store {
	return &Store{
		adapter: a,
		engine:  engine,
		rooms:   make(map[string]*Entry),
		loading: make(map[string][]chan loadResult),
	}
}

// GetData returns the cached Entry for room, loading it via the adapter
// on first miss. At most one adapter.GetData call is ever in flight per
// room; every concurrent caller during a pending load is queued and all
// of them are notified once it completes.
func (s *Store) GetData(ctx context.Context, room, userID string) (*Entry, error) {
	s.mu.Lock()
	if entry, ok := s.rooms[room]; ok {
		s.mu.Unlock()
		return entry, nil
	}

	if _, loading := s.loading[room]; loading {
		ch := make(chan loadResult, 1)
		s.loading[room] = append(s.loading[room], ch)
		s.mu.Unlock()
		res := <-ch
		return res.entry, res.err
	}

	// We are the first caller: claim the loading slot (with no waiters
	// yet) and release the lock before the suspension point.
	s.loading[room] = nil
	s.mu.Unlock()

	doc, err := s.adapter.GetData(ctx, room, userID)

	s.mu.Lock()
	waiters := s.loading[room]
	delete(s.loading, room)

	var entry *Entry
	if err == nil {
		entry = &Entry{State: syncstate.NewRoomState(doc)}
		s.rooms[room] = entry
	}
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- loadResult{entry: entry, err: err}
	}
	return entry, err
}

// Peek returns the already-cached Entry for room without triggering a
// load, or nil if the room has never been loaded. SaveCoalescer uses this
// to re-read the latest server copy for a follow-up save.
func (s *Store) Peek(room string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[room]
}

// Reset clears all cached rooms and in-flight load trackers once
// waitForIdle returns, then invokes done. waitForIdle is expected to block
// until no SaveCoalescer save is in progress for any room (see
// savecoalescer.Coalescer.WaitIdle); Reset itself does not know about
// saves, keeping the two components' state separate.
func (s *Store) Reset(waitForIdle func(), done func()) {
	waitForIdle()

	s.mu.Lock()
	s.rooms = make(map[string]*Entry)
	s.loading = make(map[string][]chan loadResult)
	s.mu.Unlock()

	if done != nil {
		done()
	}
}

// Engine exposes the configured DiffEngine so collaborating components
// (EditProcessor, SessionRouter) share the same hash/options.
func (s *Store) Engine() *diffengine.Engine {
	return s.engine
}
