// Package dedup suppresses redelivered chat messages. NATS delivery is
// at-least-once; without this, a redelivered event would land in the batch
// window twice and every extracted action would double.
package dedup

import (
	"sync"
	"time"
)

// DefaultTTL comfortably outlives a batch window plus extensions, so a
// redelivery can never sneak into a later window either.
const DefaultTTL = 15 * time.Minute

type entry struct {
	seenAt time.Time
}

// Suppressor remembers recently seen message keys per conversation.
// Safe for concurrent use.
type Suppressor struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]entry
}

func New(ttl time.Duration) *Suppressor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Suppressor{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]entry),
	}
}

// Seen reports whether this message key was already processed within the
// TTL, and records it either way. The first call for a key returns false.
func (s *Suppressor) Seen(conversationID, messageKey string) bool {
	key := conversationID + "\x00" + messageKey
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(now)

	if e, ok := s.seen[key]; ok && now.Sub(e.seenAt) < s.ttl {
		return true
	}
	s.seen[key] = entry{seenAt: now}
	return false
}

// sweepLocked drops expired entries. Linear, but the map only ever holds
// one window's worth of traffic.
func (s *Suppressor) sweepLocked(now time.Time) {
	for k, e := range s.seen {
		if now.Sub(e.seenAt) >= s.ttl {
			delete(s.seen, k)
		}
	}
}
