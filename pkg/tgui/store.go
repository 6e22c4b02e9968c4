package tgui

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// TokenStore is an in-memory TTL store for callback payloads.
//
// Telegram limits callback_data to 64 bytes; long values such as file paths are
// kept here and only a short token travels in the button. Tokens never contain ':'.
type TokenStore struct {
	mu sync.Mutex

	max int
	ttl time.Duration
	now func() time.Time

	cleanupInterval time.Duration
	nextCleanup     time.Time

	m map[string]tokenEntry
}

type tokenEntry struct {
	v   string
	exp time.Time
}

// NewTokenStore creates a TokenStore. Non-positive ttl or max take the defaults (15m, 5000).
func NewTokenStore(ttl time.Duration, max int) *TokenStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if max <= 0 {
		max = 5000
	}
	return &TokenStore{
		ttl:             ttl,
		max:             max,
		now:             time.Now,
		cleanupInterval: time.Minute,
		m:               map[string]tokenEntry{},
	}
}

// Put stores v and returns a token: "~" + base64url(6 random bytes).
func (s *TokenStore) Put(v string) string {
	var buf [6]byte
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.maybeCleanupLocked(now)

	for {
		_, _ = rand.Read(buf[:])
		tok := "~" + base64.RawURLEncoding.EncodeToString(buf[:])
		if _, exists := s.m[tok]; exists {
			continue
		}
		s.m[tok] = tokenEntry{v: v, exp: now.Add(s.ttl)}
		s.enforceMaxLocked()
		return tok
	}
}

// Get returns the value stored under tok, if it has not expired.
func (s *TokenStore) Get(tok string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.maybeCleanupLocked(now)
	e, ok := s.m[tok]
	if !ok {
		return "", false
	}
	if now.After(e.exp) {
		delete(s.m, tok)
		return "", false
	}
	return e.v, true
}

func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *TokenStore) maybeCleanupLocked(now time.Time) {
	if now.Before(s.nextCleanup) {
		return
	}
	for k, e := range s.m {
		if now.After(e.exp) {
			delete(s.m, k)
		}
	}
	s.nextCleanup = now.Add(s.cleanupInterval)
}

// enforceMaxLocked evicts the entries closest to expiry.
func (s *TokenStore) enforceMaxLocked() {
	for len(s.m) > s.max {
		var oldest string
		var exp time.Time
		for k, e := range s.m {
			if oldest == "" || e.exp.Before(exp) {
				oldest, exp = k, e.exp
			}
		}
		delete(s.m, oldest)
	}
}
