package room

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

// fakeStore is an in-memory Store, optionally failing every call.
type fakeStore struct {
	recs    map[string]Record
	counter int64
	down    bool

	saves   int
	touches int
	deletes int
}

var errStoreDown = errors.New("store down")

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]Record)}
}

func (f *fakeStore) Save(_ context.Context, rec Record) error {
	if f.down {
		return errStoreDown
	}
	f.saves++
	f.recs[rec.ID] = rec
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Record, error) {
	if f.down {
		return nil, errStoreDown
	}
	rec, ok := f.recs[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	if f.down {
		return errStoreDown
	}
	f.deletes++
	delete(f.recs, id)
	return nil
}

func (f *fakeStore) All(_ context.Context) ([]Record, error) {
	if f.down {
		return nil, errStoreDown
	}
	out := make([]Record, 0, len(f.recs))
	for _, rec := range f.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) NextID(_ context.Context) (int64, error) {
	if f.down {
		return 0, errStoreDown
	}
	f.counter++
	return f.counter, nil
}

func (f *fakeStore) Touch(_ context.Context, id string) error {
	if f.down {
		return errStoreDown
	}
	f.touches++
	return nil
}

func newTestManager() (*Manager, *fakeStore) {
	fs := newFakeStore()
	return NewManager(fs, slog.Default()), fs
}

var ctx = context.Background()

// ---------------------------------------------------------------------------
// 1. Room id sanitization
// ---------------------------------------------------------------------------

func TestSanitizeID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Lobby", "lobby"},
		{"  my room  ", "my-room"},
		{"My   Cool Room", "my-cool-room"},
		{"room_1", "room_1"},
		{"sala-görkəmli", "sala-grkmli"},
		{"<script>", "script"},
		{"!!!", ""},
		{"   ", ""},
		{"aaaaaaaaaabbbbbbbbbbccccccccccddddddddddX", "aaaaaaaaaabbbbbbbbbbccccccccccdd"},
	}
	for _, c := range cases {
		if got := SanitizeID(c.in); got != c.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAllocateUnusableNameFallsToAny(t *testing.T) {
	m, _ := newTestManager()
	alloc := m.Allocate(ctx, "!!!")
	if alloc.Err != nil {
		t.Fatalf("allocate: %v", alloc.Err)
	}
	if alloc.Room.ID != "room-1" {
		t.Fatalf("room id = %q, want generated", alloc.Room.ID)
	}
}

// ---------------------------------------------------------------------------
// 2. Named allocation: idempotence, adoption, capacity
// ---------------------------------------------------------------------------

func TestCreateIdempotent(t *testing.T) {
	m, _ := newTestManager()
	r1 := m.Create(ctx, "lobby")
	r2 := m.Create(ctx, "lobby")
	if r1 != r2 {
		t.Fatal("second create returned a different room")
	}
}

func TestNamedAllocationAdoptsFromStore(t *testing.T) {
	m1, fs := newTestManager()
	r := m1.Create(ctx, "lobby")
	r.AddPlayer("c1", 0, "")
	m1.Persist(ctx, r)

	// A second replica sharing the store sees the same room.
	m2 := NewManager(fs, slog.Default())
	alloc := m2.Allocate(ctx, "lobby")
	if alloc.Err != nil {
		t.Fatalf("allocate: %v", alloc.Err)
	}
	if alloc.Room.PlayerCount() != 1 {
		t.Fatalf("adopted room lost players: %d", alloc.Room.PlayerCount())
	}
}

func TestAdoptKeepsLocalInstance(t *testing.T) {
	m, fs := newTestManager()
	r := m.Create(ctx, "lobby")
	r.AddPlayer("c1", 0, "")

	// The store holds a stale empty record; the live instance must win.
	fs.recs["lobby"] = New("lobby").ToRecord()
	alloc := m.Allocate(ctx, "lobby")
	if alloc.Room != r {
		t.Fatal("stale store record replaced the live room")
	}
}

func TestNamedAllocationFullRoom(t *testing.T) {
	m, _ := newTestManager()
	r := m.Create(ctx, "lobby")
	for i := 0; i < MaxPlayers; i++ {
		r.AddPlayer(string(rune('a'+i)), 0, "")
	}

	alloc := m.Allocate(ctx, "lobby")
	if alloc.Err != ErrRoomFull {
		t.Fatalf("err = %v, want ErrRoomFull", alloc.Err)
	}
	if alloc.RoomID != "lobby" {
		t.Fatalf("rejection names room %q", alloc.RoomID)
	}
}

// ---------------------------------------------------------------------------
// 3. Unnamed allocation: first fit, reconcile
// ---------------------------------------------------------------------------

func TestUnnamedAllocationFillsBeforeCreating(t *testing.T) {
	m, _ := newTestManager()
	first := m.Allocate(ctx, "")
	first.Room.AddPlayer("c1", 0, "")

	second := m.Allocate(ctx, "")
	if second.Room != first.Room {
		t.Fatal("created a new room while one had capacity")
	}
}

func TestUnnamedAllocationSkipsFullRooms(t *testing.T) {
	m, _ := newTestManager()
	first := m.Allocate(ctx, "").Room
	for i := 0; i < MaxPlayers; i++ {
		first.AddPlayer(string(rune('a'+i)), 0, "")
	}

	second := m.Allocate(ctx, "")
	if second.Err != nil {
		t.Fatalf("allocate: %v", second.Err)
	}
	if second.Room == first {
		t.Fatal("allocated into a full room")
	}
}

func TestUnnamedAllocationReconcilesStore(t *testing.T) {
	m1, fs := newTestManager()
	r := m1.Create(ctx, "shared")
	r.AddPlayer("c1", 0, "")
	m1.Persist(ctx, r)

	m2 := NewManager(fs, slog.Default())
	alloc := m2.Allocate(ctx, "")
	if alloc.Room.ID != "shared" {
		t.Fatalf("replica created %q instead of filling the shared room", alloc.Room.ID)
	}
}

// ---------------------------------------------------------------------------
// 4. Store degradation
// ---------------------------------------------------------------------------

func TestAllocateSurvivesStoreOutage(t *testing.T) {
	m, fs := newTestManager()
	fs.down = true

	alloc := m.Allocate(ctx, "lobby")
	if alloc.Err != nil {
		t.Fatalf("store outage surfaced to the connection: %v", alloc.Err)
	}
	if alloc.Room.ID != "lobby" {
		t.Fatalf("room id = %q", alloc.Room.ID)
	}
}

func TestLocalIDsUniqueDuringOutage(t *testing.T) {
	m, fs := newTestManager()
	fs.down = true

	a := m.Allocate(ctx, "").Room
	for i := 0; i < MaxPlayers; i++ {
		a.AddPlayer(string(rune('a'+i)), 0, "")
	}

	b := m.Allocate(ctx, "").Room
	if a.ID == b.ID {
		t.Fatalf("duplicate local id %q", a.ID)
	}
}

// ---------------------------------------------------------------------------
// 5. Lifecycle: persist and retirement
// ---------------------------------------------------------------------------

func TestPersistSavesAndTouches(t *testing.T) {
	m, fs := newTestManager()
	r := m.Create(ctx, "lobby")
	r.AddPlayer("c1", 0, "alice")

	m.Persist(ctx, r)
	if fs.touches != 1 {
		t.Fatalf("touches = %d, want 1", fs.touches)
	}
	if len(fs.recs["lobby"].Players) != 1 {
		t.Fatal("persisted record missing players")
	}
}

func TestCleanupOnlyWhenEmpty(t *testing.T) {
	m, fs := newTestManager()
	r := m.Create(ctx, "lobby")
	r.AddPlayer("c1", 0, "")

	if m.CleanupIfEmpty(ctx, r) {
		t.Fatal("retired an occupied room")
	}
	r.RemovePlayer("c1")
	if !m.CleanupIfEmpty(ctx, r) {
		t.Fatal("did not retire an empty room")
	}
	if _, ok := m.Get("lobby"); ok {
		t.Fatal("retired room still in local map")
	}
	if _, ok := fs.recs["lobby"]; ok {
		t.Fatal("retired room still in store")
	}
}
