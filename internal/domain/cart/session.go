package cart

import (
	"context"
	"sync"
	"time"
)

// Session is the per-customer state carried between requests: the cart and
// the coupon code the customer asked to apply.
type Session struct {
	Cart       Cart
	CouponCode string
}

// Store keeps sessions keyed by user id.
type Store interface {
	Load(ctx context.Context, userID int64) (Session, error)
	Save(ctx context.Context, userID int64, s Session) error
	Clear(ctx context.Context, userID int64) error
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore is a process-local Store whose sessions expire after a TTL of
// inactivity.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[int64]memoryEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore. A zero ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[int64]memoryEntry),
	}
}

// Load returns the session of userID, or an empty one.
func (m *MemoryStore) Load(_ context.Context, userID int64) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[userID]
	if !ok {
		return Session{}, nil
	}
	if m.ttl > 0 && m.now().After(e.expiresAt) {
		delete(m.sessions, userID)
		return Session{}, nil
	}
	return e.session, nil
}

func (m *MemoryStore) Save(_ context.Context, userID int64, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[userID] = memoryEntry{session: s, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	return nil
}

// Sweep drops expired sessions.
func (m *MemoryStore) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int
	for id, e := range m.sessions {
		if now.After(e.expiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
