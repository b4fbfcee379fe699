package server

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/graph"
)

type session struct {
	id       string
	state    *graph.State
	location *graph.MemoryLocation
	limiter  *rate.Limiter
	created  time.Time

	lastSeen atomic.Int64 // unix nanos of the last request
	watchers atomic.Int32 // open event streams
}

func (s *session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

// idle reports whether nobody has used s for longer than ttl.
func (s *session) idle(now time.Time, ttl time.Duration) bool {
	return s.watchers.Load() == 0 && now.Sub(time.Unix(0, s.lastSeen.Load())) > ttl
}

func (s *Server) newSession() *session {
	loc := graph.NewMemoryLocation("")
	sess := &session{
		id:       uuid.NewString(),
		location: loc,
		state: graph.New(s.fetcher,
			graph.WithPageSize(s.cfg.PageSize),
			graph.WithLogger(s.logger),
			graph.WithLocation(loc)),
		limiter: rate.NewLimiter(rate.Every(s.cfg.FetchInterval), s.cfg.FetchBurst),
		created: time.Now().UTC(),
	}
	sess.touch(sess.created)
	return sess
}

// ExpireSessions closes sessions left idle for longer than Config.SessionTTL
// until ctx ends. A session with an open event stream is never idle. A zero
// SessionTTL keeps sessions until they are deleted.
func (s *Server) ExpireSessions(ctx context.Context) {
	ttl := s.cfg.SessionTTL
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(max(ttl/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.expireIdle(now)
		}
	}
}

func (s *Server) expireIdle(now time.Time) int {
	expired := s.sessions.expire(now, s.cfg.SessionTTL)
	for _, sess := range expired {
		sess.state.Close()
		s.logger.Info("session expired", "id", sess.id, "idle", now.Sub(time.Unix(0, sess.lastSeen.Load())).Round(time.Second))
	}
	return len(expired)
}

type registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func (r *registry) add(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

func (r *registry) get(id string) (*session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeSessionNotFound, "session %s not found", id)
	}
	s.touch(time.Now())
	return s, nil
}

// expire removes and returns the sessions idle for longer than ttl.
func (r *registry) expire(now time.Time, ttl time.Duration) []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session
	for id, s := range r.sessions {
		if s.idle(now, ttl) {
			delete(r.sessions, id)
			out = append(out, s)
		}
	}
	return out
}

func (r *registry) remove(id string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeSessionNotFound, "session %s not found", id)
	}
	delete(r.sessions, id)
	return s, nil
}

func (r *registry) drain() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	clear(r.sessions)
	slices.SortFunc(out, func(a, b *session) int { return a.created.Compare(b.created) })
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
