package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/problem-workshop/internal/activity"
	"github.com/jonathan/problem-workshop/internal/observability"
)

// session is a live controller and the last time a request used it.
type session struct {
	ctl      *activity.Controller
	lastUsed time.Time
}

// sessions keeps one controller per (user key, activity) so that edits from
// concurrent requests share in-memory state and a single debounced saver.
type sessions struct {
	mu      sync.Mutex
	entries map[string]*session
	newCtl  func(def *activity.Definition) *activity.Controller
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func newSessions(newCtl func(def *activity.Definition) *activity.Controller, ttl time.Duration, logger *zap.Logger) *sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessions{
		entries: make(map[string]*session),
		newCtl:  newCtl,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

func sessionID(key, activityID string) string {
	return key + "/" + activityID
}

// acquire returns the live controller for key and def, loading one when none exists.
func (s *sessions) acquire(ctx context.Context, key string, def *activity.Definition) *activity.Controller {
	id := sessionID(key, def.ID)

	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.lastUsed = s.now()
		s.mu.Unlock()
		return e.ctl
	}
	s.mu.Unlock()

	ctl := s.newCtl(def)
	ctl.Start(ctx, key)

	return s.adopt(ctx, key, ctl)
}

// detached returns a controller waiting for a code. It is not registered; the caller
// must adopt or close it.
func (s *sessions) detached(ctx context.Context, def *activity.Definition) *activity.Controller {
	ctl := s.newCtl(def)
	ctl.Start(ctx, "")
	return ctl
}

// adopt registers ctl under key. A ready controller already registered for the same
// session wins over ctl, which is then closed.
func (s *sessions) adopt(ctx context.Context, key string, ctl *activity.Controller) *activity.Controller {
	id := sessionID(key, ctl.Definition().ID)

	s.mu.Lock()
	existing, ok := s.entries[id]
	if ok && existing.ctl.Snapshot().State == activity.StateReady {
		existing.lastUsed = s.now()
		s.mu.Unlock()
		ctl.Close(ctx)
		return existing.ctl
	}
	s.entries[id] = &session{ctl: ctl, lastUsed: s.now()}
	live := len(s.entries)
	s.mu.Unlock()

	if ok {
		existing.ctl.Close(ctx)
	}
	observability.SetLiveSessions(live)
	return ctl
}

// sweep flushes and drops controllers idle for longer than the TTL. It returns the
// number of sessions removed.
func (s *sessions) sweep(ctx context.Context) int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var idle []*activity.Controller
	for id, e := range s.entries {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e.ctl)
			delete(s.entries, id)
		}
	}
	live := len(s.entries)
	s.mu.Unlock()

	for _, ctl := range idle {
		ctl.Close(ctx)
	}
	if len(idle) > 0 {
		s.logger.Debug("swept idle sessions", zap.Int("removed", len(idle)), zap.Int("live", live))
	}
	observability.SetLiveSessions(live)
	return len(idle)
}

// sweepLoop runs sweep every interval until ctx is done.
func (s *sessions) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(context.WithoutCancel(ctx))
		}
	}
}

// closeAll flushes and drops every controller.
func (s *sessions) closeAll(ctx context.Context) {
	s.mu.Lock()
	all := make([]*activity.Controller, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e.ctl)
	}
	s.entries = make(map[string]*session)
	s.mu.Unlock()

	// Sequential, so sessions sharing a key do not race on the stored record
	for _, ctl := range all {
		ctl.Close(ctx)
	}
	observability.SetLiveSessions(0)
}

// count returns the number of live sessions.
func (s *sessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
