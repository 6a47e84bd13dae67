package room

import (
	"strings"
	"testing"
	"time"

	"github.com/openmeet/signal-relay/internal/metrics"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	s := NewStore(8, metrics.New())
	s.now = func() time.Time { return now }
	return s, &now
}

func TestCreateRoom(t *testing.T) {
	s, _ := newTestStore(t)

	id := s.CreateRoom("alice", "Alice", "conn-a")
	if len(id) != 8 {
		t.Fatalf("room id %q: want length 8", id)
	}
	for _, c := range id {
		if !strings.ContainsRune(roomIDAlphabet, c) {
			t.Fatalf("room id %q contains %q outside alphabet", id, c)
		}
	}

	ps, ok := s.Participants(id)
	if !ok {
		t.Fatalf("room %q not found after create", id)
	}
	if len(ps) != 1 {
		t.Fatalf("participants = %v, want only creator", ps)
	}
	if got := ps["alice"]; !got.IsAdmin || got.Name != "Alice" {
		t.Fatalf("creator = %+v, want admin Alice", got)
	}

	roomID, userID, ok := s.FindByConn("conn-a")
	if !ok || roomID != id || userID != "alice" {
		t.Fatalf("FindByConn = (%q, %q, %v), want (%q, alice, true)", roomID, userID, ok, id)
	}
}

func TestAddParticipantUnknownRoom(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.AddParticipant("nope1234", "bob", "Bob", "conn-b"); err != ErrRoomNotFound {
		t.Fatalf("AddParticipant = %v, want ErrRoomNotFound", err)
	}
	if n := s.RoomCount(); n != 0 {
		t.Fatalf("RoomCount = %d after failed join, want 0", n)
	}
	if _, _, ok := s.FindByConn("conn-b"); ok {
		t.Fatal("failed join must not index the connection")
	}
}

func TestJoinThenLeaveLifecycle(t *testing.T) {
	s, _ := newTestStore(t)

	id := s.CreateRoom("alice", "Alice", "conn-a")
	ps, err := s.AddParticipant(id, "bob", "Bob", "conn-b")
	if err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("participants = %v, want alice and bob", ps)
	}
	if ps["bob"].IsAdmin {
		t.Fatal("joiner must not be admin")
	}
	if !ps["alice"].IsAdmin {
		t.Fatal("creator must stay admin")
	}

	// Admin leaves: room survives with no admin, no succession.
	removed, ok := s.RemoveParticipant(id, "alice")
	if !ok || removed.Name != "Alice" || !removed.IsAdmin {
		t.Fatalf("RemoveParticipant(alice) = %+v, %v", removed, ok)
	}
	ps, ok = s.Participants(id)
	if !ok {
		t.Fatal("room must survive while bob remains")
	}
	for _, p := range ps {
		if p.IsAdmin {
			t.Fatalf("no participant should be admin after creator left, got %+v", p)
		}
	}
	if _, _, ok := s.FindByConn("conn-a"); ok {
		t.Fatal("left connection must be unindexed")
	}

	// Last participant leaves: room is deleted in the same operation.
	if _, ok := s.RemoveParticipant(id, "bob"); !ok {
		t.Fatal("RemoveParticipant(bob) reported no-op")
	}
	if _, ok := s.Participants(id); ok {
		t.Fatal("empty room must not persist")
	}
	if _, err := s.AddParticipant(id, "carol", "Carol", "conn-c"); err != ErrRoomNotFound {
		t.Fatalf("join deleted room = %v, want ErrRoomNotFound", err)
	}
}

func TestRemoveParticipantNoOps(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.CreateRoom("alice", "Alice", "conn-a")

	if _, ok := s.RemoveParticipant("nope1234", "alice"); ok {
		t.Fatal("removing from unknown room must be a no-op")
	}
	if _, ok := s.RemoveParticipant(id, "ghost"); ok {
		t.Fatal("removing unknown participant must be a no-op")
	}
	if _, ok := s.Participants(id); !ok {
		t.Fatal("no-op removals must not delete the room")
	}
}

func TestRejoinOverwritesEntry(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.CreateRoom("alice", "Alice", "conn-a")
	if _, err := s.AddParticipant(id, "bob", "Bob", "conn-b1"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	ps, err := s.AddParticipant(id, "bob", "Bobby", "conn-b2")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if got := ps["bob"].Name; got != "Bobby" {
		t.Fatalf("rejoin name = %q, want last writer Bobby", got)
	}
	if _, _, ok := s.FindByConn("conn-b1"); ok {
		t.Fatal("stale connection must be unindexed after rejoin")
	}
	if roomID, userID, ok := s.FindByConn("conn-b2"); !ok || roomID != id || userID != "bob" {
		t.Fatalf("FindByConn(conn-b2) = (%q, %q, %v)", roomID, userID, ok)
	}
}

func TestRemoveByAdmin(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.CreateRoom("alice", "Alice", "conn-a")
	if _, err := s.AddParticipant(id, "bob", "Bob", "conn-b"); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Non-admin requester.
	if _, _, err := s.RemoveByAdmin(id, "conn-b", "alice"); err != ErrNotAdmin {
		t.Fatalf("non-admin eviction = %v, want ErrNotAdmin", err)
	}
	if ps, _ := s.Participants(id); len(ps) != 2 {
		t.Fatalf("non-admin eviction mutated the room: %v", ps)
	}

	// Requester from a different room.
	other := s.CreateRoom("mallory", "Mallory", "conn-m")
	if _, _, err := s.RemoveByAdmin(id, "conn-m", "bob"); err != ErrNotAdmin {
		t.Fatalf("cross-room eviction = %v, want ErrNotAdmin", err)
	}
	_ = other

	// Unknown target.
	if _, _, err := s.RemoveByAdmin(id, "conn-a", "ghost"); err != ErrNoSuchParticipant {
		t.Fatalf("unknown target = %v, want ErrNoSuchParticipant", err)
	}

	// Unknown room.
	if _, _, err := s.RemoveByAdmin("nope1234", "conn-a", "bob"); err != ErrRoomNotFound {
		t.Fatalf("unknown room = %v, want ErrRoomNotFound", err)
	}

	// Admin evicts bob.
	info, conn, err := s.RemoveByAdmin(id, "conn-a", "bob")
	if err != nil {
		t.Fatalf("admin eviction: %v", err)
	}
	if info.ID != "bob" || info.Name != "Bob" || conn != "conn-b" {
		t.Fatalf("evicted = %+v via %q", info, conn)
	}
	if ps, _ := s.Participants(id); len(ps) != 1 {
		t.Fatalf("participants after eviction = %v", ps)
	}
}

func TestSweepExpired(t *testing.T) {
	s, now := newTestStore(t)
	t0 := *now
	id := s.CreateRoom("alice", "Alice", "conn-a")

	*now = t0.Add(23*time.Hour + 59*time.Minute)
	if expired := s.SweepExpired(24 * time.Hour); len(expired) != 0 {
		t.Fatalf("sweep at 23h59m expired %v", expired)
	}
	if _, ok := s.Participants(id); !ok {
		t.Fatal("room disappeared before max age")
	}

	*now = t0.Add(24*time.Hour + time.Minute)
	expired := s.SweepExpired(24 * time.Hour)
	if len(expired) != 1 || expired[0] != id {
		t.Fatalf("sweep at 24h01m expired %v, want [%s]", expired, id)
	}
	if _, ok := s.Participants(id); ok {
		t.Fatal("room must be gone after expiry")
	}
	if _, _, ok := s.FindByConn("conn-a"); ok {
		t.Fatal("expired room's connections must be unindexed")
	}
}

func TestSweepIgnoresActivity(t *testing.T) {
	s, now := newTestStore(t)
	t0 := *now
	id := s.CreateRoom("alice", "Alice", "conn-a")

	// Membership churn right before the deadline does not refresh the room.
	*now = t0.Add(23 * time.Hour)
	if _, err := s.AddParticipant(id, "bob", "Bob", "conn-b"); err != nil {
		t.Fatalf("join: %v", err)
	}

	*now = t0.Add(25 * time.Hour)
	if expired := s.SweepExpired(24 * time.Hour); len(expired) != 1 {
		t.Fatalf("sweep expired %v, want the active room", expired)
	}
}
