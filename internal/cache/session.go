// Package cache keeps recently used session contexts in memory.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

// DefaultTTL matches how long an idle conversation keeps its context warm.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "session_context:"

// SessionCache is a TTL cache of session contexts. Values are copied on the
// way in and out so callers never share a PendingTrip.
type SessionCache struct {
	c *gocache.Cache
}

// NewSessionCache creates a cache whose entries expire after ttl.
func NewSessionCache(ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionCache{c: gocache.New(ttl, ttl/24+time.Minute)}
}

// Get returns the cached context for a session.
func (s *SessionCache) Get(sessionID string) (domain.SessionContext, bool) {
	v, found := s.c.Get(keyPrefix + sessionID)
	if !found {
		return domain.SessionContext{}, false
	}
	return clone(v.(domain.SessionContext)), true
}

// Set stores the context for a session.
func (s *SessionCache) Set(sessionID string, sc domain.SessionContext) {
	s.c.Set(keyPrefix+sessionID, clone(sc), gocache.DefaultExpiration)
}

// Delete drops a session's context.
func (s *SessionCache) Delete(sessionID string) {
	s.c.Delete(keyPrefix + sessionID)
}

func clone(sc domain.SessionContext) domain.SessionContext {
	if sc.PendingTrip != nil {
		trip := sc.PendingTrip.Clone()
		sc.PendingTrip = &trip
	}
	return sc
}
