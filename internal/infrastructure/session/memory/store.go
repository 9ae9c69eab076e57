package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// Options bounds how much history a session keeps and for how long. The zero
// value keeps full history forever.
type Options struct {
	// MaxTurns caps stored turns per session; older turns are dropped first.
	// Zero keeps every turn.
	MaxTurns int
	// IdleTTL evicts sessions untouched for this long. Zero disables eviction.
	IdleTTL time.Duration
}

type session struct {
	turns    []domain.Turn
	lastSeen time.Time
}

// Store is a process-local session store.
type Store struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

var _ ports.SessionStore = (*Store)(nil)

func New(opts Options) *Store {
	return &Store{
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

func (s *Store) Recent(_ context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || limit <= 0 {
		return nil, nil
	}
	sess.lastSeen = s.now()

	turns := sess.turns
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *Store) Append(_ context.Context, sessionID string, turns ...domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{}
		s.sessions[sessionID] = sess
	}
	for _, turn := range turns {
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = now
		}
		sess.turns = append(sess.turns, turn)
	}
	if over := len(sess.turns) - s.opts.MaxTurns; s.opts.MaxTurns > 0 && over > 0 {
		sess.turns = append([]domain.Turn(nil), sess.turns[over:]...)
	}
	sess.lastSeen = now
	return nil
}

func (s *Store) Close(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle since before now minus IdleTTL and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) >= s.opts.IdleTTL {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if s.opts.IdleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = s.opts.IdleTTL / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(s.now()); removed > 0 {
				slog.Info("sessions_evicted", slog.Int("count", removed))
			}
		}
	}
}
