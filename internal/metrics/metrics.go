package metrics

import "sync"

// Event names used across the relay. Keeping them in one place avoids typo'd
// counters that never show up in dashboards.
const (
	RoomCreated  = "room_created"
	RoomDeleted  = "room_deleted"
	RoomExpired  = "room_expired"
	UserJoined   = "user_joined"
	UserLeft     = "user_left"
	AdminRemoved = "admin_removed"
	RelayMessage = "relay_message"

	JoinUnknownRoom = "join_unknown_room"

	DropReasonRateLimited  = "rate_limited"
	DropReasonSlowConsumer = "slow_consumer"
	AuthFailure            = "auth_failure"
)

// Metrics is a minimal concurrency-safe counter registry. It keeps the room
// store and dispatcher observable without pulling a metrics SDK into the hot
// path; the Prometheus text handler exposes everything for scraping.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{m: make(map[string]uint64)}
}

// Inc increments a counter. A nil receiver is a no-op so callers don't have to
// guard every instrumentation point.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
