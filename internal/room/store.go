// Package room holds the server's only shared mutable state: the mapping
// from room IDs to live rooms and their participants. All mutation goes
// through Store, which guards the whole table with one mutex; handlers and
// the expiry sweeper take the same lock, so every operation is atomic with
// respect to every other.
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/openmeet/signal-relay/internal/metrics"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrNotAdmin          = errors.New("requester is not the room admin")
	ErrNoSuchParticipant = errors.New("no such participant")
)

// ConnID identifies a live transport connection. The store treats it as an
// opaque back-reference: it never sends on it, only resolves it back to a
// (room, user) pair on disconnect and hands it out for direct addressing.
type ConnID string

// ParticipantInfo is the externally visible view of a participant, safe to
// hand to callers after the store lock is released.
type ParticipantInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin"`
}

type participant struct {
	name    string
	conn    ConnID
	isAdmin bool
}

type room struct {
	participants map[string]*participant
	createdAt    time.Time
}

type memberRef struct {
	roomID string
	userID string
}

// Store is the room table. The zero value is not usable; use NewStore.
type Store struct {
	mu       sync.Mutex
	rooms    map[string]*room
	byConn   map[ConnID]memberRef
	idLength int
	now      func() time.Time
	metrics  *metrics.Metrics
}

func NewStore(idLength int, m *metrics.Metrics) *Store {
	return &Store{
		rooms:    make(map[string]*room),
		byConn:   make(map[ConnID]memberRef),
		idLength: idLength,
		now:      time.Now,
		metrics:  m,
	}
}

// CreateRoom inserts a new room whose sole participant is the creator,
// flagged as admin. The admin flag never moves: if the creator later leaves,
// the room continues with no admin.
func (s *Store) CreateRoom(userID, userName string, conn ConnID) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Retry on collision rather than overwriting a live room. With 8
	// lowercase-alphanumeric characters a collision is already vanishingly
	// unlikely; the loop makes it impossible.
	var id string
	for {
		id = newRoomID(s.idLength)
		if _, exists := s.rooms[id]; !exists {
			break
		}
	}

	s.rooms[id] = &room{
		participants: map[string]*participant{
			userID: {name: userName, conn: conn, isAdmin: true},
		},
		createdAt: s.now(),
	}
	s.byConn[conn] = memberRef{roomID: id, userID: userID}
	s.metrics.Inc(metrics.RoomCreated)
	s.metrics.Inc(metrics.UserJoined)
	return id
}

// AddParticipant admits a non-admin participant into an existing room and
// returns the resulting participant listing. A re-join under an existing
// userID overwrites the previous entry (last writer wins).
func (s *Store) AddParticipant(roomID, userID, userName string, conn ConnID) (map[string]ParticipantInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		s.metrics.Inc(metrics.JoinUnknownRoom)
		return nil, ErrRoomNotFound
	}
	if prev, ok := r.participants[userID]; ok {
		delete(s.byConn, prev.conn)
	}
	r.participants[userID] = &participant{name: userName, conn: conn, isAdmin: false}
	s.byConn[conn] = memberRef{roomID: roomID, userID: userID}
	s.metrics.Inc(metrics.UserJoined)
	return snapshotLocked(r), nil
}

// RemoveParticipant removes userID from roomID if present, deleting the room
// in the same operation when it empties. It reports the removed participant
// and whether anything was removed; an unknown room or user is a no-op.
func (s *Store) RemoveParticipant(roomID, userID string) (ParticipantInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(roomID, userID)
}

func (s *Store) removeLocked(roomID, userID string) (ParticipantInfo, bool) {
	r, ok := s.rooms[roomID]
	if !ok {
		return ParticipantInfo{}, false
	}
	p, ok := r.participants[userID]
	if !ok {
		return ParticipantInfo{}, false
	}
	delete(r.participants, userID)
	delete(s.byConn, p.conn)
	s.metrics.Inc(metrics.UserLeft)
	if len(r.participants) == 0 {
		delete(s.rooms, roomID)
		s.metrics.Inc(metrics.RoomDeleted)
	}
	return ParticipantInfo{ID: userID, Name: p.name, IsAdmin: p.isAdmin}, true
}

// RemoveByAdmin removes targetUserID from roomID on behalf of the requester,
// after verifying under the lock that the requesting connection belongs to
// that room's admin. It returns the evicted participant and the connection
// to notify. Authorization failures are reported as errors; the caller
// decides whether to surface them (the dispatcher does not).
func (s *Store) RemoveByAdmin(roomID string, requester ConnID, targetUserID string) (ParticipantInfo, ConnID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return ParticipantInfo{}, "", ErrRoomNotFound
	}
	ref, ok := s.byConn[requester]
	if !ok || ref.roomID != roomID {
		return ParticipantInfo{}, "", ErrNotAdmin
	}
	req, ok := r.participants[ref.userID]
	if !ok || !req.isAdmin {
		return ParticipantInfo{}, "", ErrNotAdmin
	}
	target, ok := r.participants[targetUserID]
	if !ok {
		return ParticipantInfo{}, "", ErrNoSuchParticipant
	}
	targetConn := target.conn
	info, _ := s.removeLocked(roomID, targetUserID)
	s.metrics.Inc(metrics.AdminRemoved)
	return info, targetConn, nil
}

// FindByConn resolves a connection to the (room, user) it currently
// represents. Used by disconnect handling; a connection that never joined a
// room, or already left, resolves to nothing.
func (s *Store) FindByConn(conn ConnID) (roomID, userID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.byConn[conn]
	return ref.roomID, ref.userID, ok
}

// SweepExpired deletes every room older than maxAge and returns the IDs of
// the rooms it deleted. Expiry ignores activity: a busy room past its age is
// evicted all the same.
func (s *Store) SweepExpired(maxAge time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	var expired []string
	for id, r := range s.rooms {
		if r.createdAt.After(cutoff) {
			continue
		}
		for _, p := range r.participants {
			delete(s.byConn, p.conn)
		}
		delete(s.rooms, id)
		expired = append(expired, id)
		s.metrics.Inc(metrics.RoomExpired)
	}
	return expired
}

// Participants returns the current listing for a room, or false if the room
// does not exist.
func (s *Store) Participants(roomID string) (map[string]ParticipantInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	return snapshotLocked(r), true
}

// RoomCount reports the number of live rooms.
func (s *Store) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func snapshotLocked(r *room) map[string]ParticipantInfo {
	out := make(map[string]ParticipantInfo, len(r.participants))
	for id, p := range r.participants {
		out[id] = ParticipantInfo{ID: id, Name: p.name, IsAdmin: p.isAdmin}
	}
	return out
}
