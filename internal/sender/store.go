package sender

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/wavectl/internal/fec"
)

var ErrUnknownSession = errors.New("sender: unknown session id")

// Session is the retained artefact of one transmission: everything needed to
// replay specific DATA or PARITY packets on request.
type Session struct {
	SID        string
	Total      int
	Hash       string
	Flags      []string
	Protocol   string
	Scheme     fec.Scheme
	Chunks     map[int][]byte
	Parity     map[string][]byte
	ParityIDs  []string
	SentChunks int
	SentParity int
	CreatedAt  time.Time
}

// Info is the listing snapshot of a retained session.
type Info struct {
	SID        string    `json:"sid"`
	Total      int       `json:"total"`
	Protocol   string    `json:"protocol"`
	Scheme     string    `json:"scheme"`
	SentChunks int       `json:"sent_chunks"`
	SentParity int       `json:"sent_parity"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store retains send sessions by sid for caller-driven replay.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (s *Store) put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SID] = sess
}

// markSent advances the replay counters under the store lock; chunk and
// parity maps are immutable after put, counters are not.
func (s *Store) markSent(sid string, chunks, parity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sid]; ok {
		sess.SentChunks += chunks
		sess.SentParity += parity
	}
}

func (s *Store) get(sid string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sid]
	return sess, ok
}

// List returns session snapshots ordered newest-first.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, Info{
			SID:        sess.SID,
			Total:      sess.Total,
			Protocol:   sess.Protocol,
			Scheme:     sess.Scheme.Name,
			SentChunks: sess.SentChunks,
			SentParity: sess.SentParity,
			CreatedAt:  sess.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SID > out[j].SID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes one session. Unknown sids report ErrUnknownSession.
func (s *Store) Delete(sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sid]; !ok {
		return ErrUnknownSession
	}
	delete(s.sessions, sid)
	return nil
}

// ClearAll drops every retained session.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session)
}

// ClearOld drops sessions older than age and returns how many were removed.
func (s *Store) ClearOld(age time.Duration) int {
	cutoff := time.Now().Add(-age)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for sid, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.sessions, sid)
			removed++
		}
	}
	return removed
}
