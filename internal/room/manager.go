package room

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Store is the coordination-store surface the manager needs. Every replica
// discovers rooms through it; failures degrade to local-only operation, they
// never surface to connections.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) ([]Record, error)
	NextID(ctx context.Context) (int64, error)
	Touch(ctx context.Context, id string) error
}

// Allocation is the result of an allocation request: a room, or a capacity
// rejection tagged with the offending room id.
type Allocation struct {
	Room   *Room
	Err    error
	RoomID string
}

// Manager owns the local map of known rooms. Only the manager inserts and
// deletes map keys; room contents are mutated by the protocol layer through
// room handles.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	store    Store
	logger   *slog.Logger
	localSeq int64 // fallback id sequence, used only when the store is down
}

func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		store:  store,
		logger: logger,
	}
}

var roomIDStrip = regexp.MustCompile(`[^a-z0-9-_]`)

// SanitizeID normalizes a client-requested room id: lowercase, trimmed,
// spaces collapsed to dashes, disallowed characters stripped, 32 chars max.
// Returns "" when nothing survives.
func SanitizeID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	s = strings.Join(strings.Fields(s), "-")
	s = roomIDStrip.ReplaceAllString(s, "")
	if len(s) > 32 {
		s = s[:32]
	}
	return s
}

// Allocate finds or creates a room for a new connection. A named request is
// looked up in the shared store first so a room created by another replica is
// found; an unnamed request reconciles against the shared store and then
// first-fits into the existing rooms, favoring filling over creating.
func (m *Manager) Allocate(ctx context.Context, requestedID string) Allocation {
	if requestedID != "" {
		sanitized := SanitizeID(requestedID)
		if sanitized == "" {
			return m.allocateAny(ctx)
		}

		r := m.adopt(ctx, sanitized)
		if r == nil {
			r = m.Create(ctx, sanitized)
		}
		if r.PlayerCount() >= MaxPlayers {
			return Allocation{Err: ErrRoomFull, RoomID: sanitized}
		}
		return Allocation{Room: r}
	}

	return m.allocateAny(ctx)
}

func (m *Manager) allocateAny(ctx context.Context) Allocation {
	m.reconcile(ctx)

	m.mu.RLock()
	var found *Room
	for _, r := range m.rooms {
		if r.PlayerCount() < MaxPlayers {
			found = r
			break
		}
	}
	m.mu.RUnlock()

	if found != nil {
		return Allocation{Room: found}
	}
	return Allocation{Room: m.Create(ctx, "")}
}

// Create builds a room, generating an id when absent. Creation is idempotent
// with respect to id collisions: if another replica already persisted the id,
// its room is adopted instead of overwritten.
func (m *Manager) Create(ctx context.Context, id string) *Room {
	if id == "" {
		id = m.generateID(ctx)
	}

	if rec, err := m.store.Get(ctx, id); err == nil && rec != nil {
		return m.put(FromRecord(*rec))
	}

	m.mu.Lock()
	if existing, ok := m.rooms[id]; ok {
		m.mu.Unlock()
		return existing
	}
	r := New(id)
	m.rooms[id] = r
	m.mu.Unlock()

	if err := m.store.Save(ctx, r.ToRecord()); err != nil {
		m.logger.Warn("room not persisted, continuing local-only", "room", id, "err", err)
	} else {
		m.logger.Info("room created", "room", id)
	}
	return r
}

// Persist writes the room snapshot to the shared store and renews its
// expiry. Called after every state-mutating event except input.
func (m *Manager) Persist(ctx context.Context, r *Room) {
	if err := m.store.Save(ctx, r.ToRecord()); err != nil {
		m.logger.Warn("room sync failed", "room", r.ID, "err", err)
		return
	}
	if err := m.store.Touch(ctx, r.ID); err != nil {
		m.logger.Warn("room touch failed", "room", r.ID, "err", err)
	}
}

// CleanupIfEmpty retires a room once its last player left, removing it from
// the local map and the shared store. This is the only deletion path.
func (m *Manager) CleanupIfEmpty(ctx context.Context, r *Room) bool {
	if r == nil || r.PlayerCount() > 0 {
		return false
	}

	m.mu.Lock()
	delete(m.rooms, r.ID)
	m.mu.Unlock()

	if err := m.store.Delete(ctx, r.ID); err != nil {
		m.logger.Warn("room delete failed in store", "room", r.ID, "err", err)
	}
	m.logger.Info("room retired", "room", r.ID)
	return true
}

// Get returns a locally-known room.
func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// adopt pulls a room persisted by any replica into the local map. A room we
// already hold locally keeps its in-memory state; the shared record may lag
// behind it.
func (m *Manager) adopt(ctx context.Context, id string) *Room {
	m.mu.RLock()
	if r, ok := m.rooms[id]; ok {
		m.mu.RUnlock()
		return r
	}
	m.mu.RUnlock()

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		m.logger.Warn("room lookup failed in store", "room", id, "err", err)
		return nil
	}
	if rec == nil {
		return nil
	}
	return m.put(FromRecord(*rec))
}

// reconcile folds every room known to the shared store into the local map.
func (m *Manager) reconcile(ctx context.Context) {
	recs, err := m.store.All(ctx)
	if err != nil {
		m.logger.Warn("room reconcile failed, using local view", "err", err)
		return
	}
	for _, rec := range recs {
		m.mu.RLock()
		_, known := m.rooms[rec.ID]
		m.mu.RUnlock()
		if !known {
			_ = m.put(FromRecord(rec))
		}
	}
}

// put inserts an adopted room, keeping the local instance when one already
// exists: in-memory state wins over a possibly stale shared record.
func (m *Manager) put(r *Room) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rooms[r.ID]; ok {
		return existing
	}
	m.rooms[r.ID] = r
	return r
}

// generateID uses the store's atomic counter; when the store is unreachable
// it falls back to a locally-unique sequence (not globally unique across
// replicas, which is the accepted degradation).
func (m *Manager) generateID(ctx context.Context) string {
	seq, err := m.store.NextID(ctx)
	if err == nil {
		return fmt.Sprintf("room-%d", seq)
	}
	m.logger.Warn("room id generation degraded to local sequence", "err", err)

	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		m.localSeq++
		candidate := fmt.Sprintf("room-local-%d", m.localSeq)
		if _, taken := m.rooms[candidate]; !taken {
			return candidate
		}
	}
}
