// Package adapter defines the storage/authorization collaborator contract
// the sync core is built against, and a trivial in-memory implementation
// used by tests and local development. Each method is a synchronous call
// returning (value, error) rather than taking a completion callback,
// called from whatever goroutine needs the result.
package adapter

import (
	"context"
	"sync"

	"github.com/area/diffsync/internal/diffengine"
	"github.com/area/diffsync/internal/syncstate"
)

// EditMessage is the minimal view of an inbound edit batch an adapter
// needs to authorize it; it mirrors the wire edit message without
// importing the editprocessor package (which depends on Adapter).
type EditMessage struct {
	Room          string
	ServerVersion *int
	Edits         []syncstate.Edit
}

// Adapter is the storage/authorization collaborator injected into the
// sync core. Implementations must be safe for concurrent use: the core
// issues at most one GetData and at most one StoreData at a time per room,
// but CheckDiffs calls for the same room may run concurrently, and calls
// for different rooms are never serialized.
type Adapter interface {
	// GetData loads or constructs the seed document for room. Called at
	// most once per room between loads/resets (RoomStore de-duplicates
	// concurrent callers).
	GetData(ctx context.Context, room, userID string) (diffengine.Document, error)

	// CheckDiffs authorizes an inbound edit batch. A false result (with a
	// nil error) silently drops the batch; no client-visible error is
	// raised, to avoid leaking policy.
	CheckDiffs(ctx context.Context, msg EditMessage, room *syncstate.RoomState) (bool, error)

	// StoreData persists the room's current server copy. edits is the
	// triggering edit batch, informational only. Completion (error or
	// not) frees the SaveCoalescer's slot for that room.
	StoreData(ctx context.Context, room, userID string, serverCopy diffengine.Document, edits []syncstate.Edit) error
}

// Memory is a process-local Adapter backed by a map, used in tests and
// for local development without a real datastore. CheckDiffs allows every
// batch unless Deny is set; callers that need to exercise authorization
// rejection should wrap Memory or set Deny.
type Memory struct {
	mu   sync.Mutex
	docs map[string]diffengine.Document

	// Deny, if non-nil, is consulted by CheckDiffs; returning false drops
	// the batch the way a real authorization failure would.
	Deny func(msg EditMessage) bool

	// GetDataCalls counts invocations, for the "at most one load per
	// room" property tests.
	GetDataCalls map[string]int

	// StoreDataCalls records every persisted snapshot, in call order.
	StoreDataCalls []StoredSnapshot
}

// StoredSnapshot records one StoreData invocation for test assertions.
type StoredSnapshot struct {
	Room       string
	UserID     string
	ServerCopy diffengine.Document
}

// NewMemory builds an empty Memory adapter; use Seed to pre-populate a
// room's document.
func NewMemory() *Memory {
	return &Memory{
		docs:         make(map[string]diffengine.Document),
		GetDataCalls: make(map[string]int),
	}
}

// Seed pre-populates a room's document, as if it had been previously
// stored, without counting as a GetData call.
func (m *Memory) Seed(room string, doc diffengine.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[room] = doc
}

func (m *Memory) GetData(_ context.Context, room, _ string) (diffengine.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetDataCalls[room]++
	if doc, ok := m.docs[room]; ok {
		return doc, nil
	}
	seed := map[string]interface{}{}
	m.docs[room] = seed
	return seed, nil
}

func (m *Memory) CheckDiffs(_ context.Context, msg EditMessage, _ *syncstate.RoomState) (bool, error) {
	if m.Deny != nil && m.Deny(msg) {
		return false, nil
	}
	return true, nil
}

func (m *Memory) StoreData(_ context.Context, room, userID string, serverCopy diffengine.Document, _ []syncstate.Edit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[room] = serverCopy
	m.StoreDataCalls = append(m.StoreDataCalls, StoredSnapshot{Room: room, UserID: userID, ServerCopy: serverCopy})
	return nil
}
