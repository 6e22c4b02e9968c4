package picker

import (
	"sync"
	"time"
)

// session is one user's current file list. folder is empty for search results.
type session struct {
	folder      string
	files       []File
	page        int
	newestFirst bool
	touched     time.Time
}

type sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[int64]session
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{ttl: ttl, m: map[int64]session{}}
}

func (s *sessions) get(user int64, now time.Time) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[user]
	if !ok {
		return session{}, false
	}
	if now.Sub(sess.touched) > s.ttl {
		delete(s.m, user)
		return session{}, false
	}
	return sess, true
}

func (s *sessions) put(user int64, sess session, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.touched = now
	s.m[user] = sess
	for id, old := range s.m {
		if now.Sub(old.touched) > s.ttl {
			delete(s.m, id)
		}
	}
}
