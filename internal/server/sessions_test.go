package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/problem-workshop/internal/activity"
	"github.com/jonathan/problem-workshop/internal/storage"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestSessions(t *testing.T, ttl time.Duration) (*sessions, *storage.MemoryStore, *fakeClock, *activity.Catalog) {
	t.Helper()
	catalog, err := activity.DefaultCatalog()
	require.NoError(t, err)

	mem := storage.NewMemoryStore()
	gateway := storage.NewGateway(mem, nil)
	newCtl := func(def *activity.Definition) *activity.Controller {
		return activity.NewController(def, gateway, activity.Options{SaveDelay: time.Hour})
	}

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := newSessions(newCtl, ttl, nil)
	s.now = clock.Now
	t.Cleanup(func() { s.closeAll(context.Background()) })
	return s, mem, clock, catalog
}

func TestSessions_AcquireReusesController(t *testing.T) {
	s, _, _, catalog := newTestSessions(t, time.Hour)
	def, _ := catalog.Get(originID)
	ctx := context.Background()

	first := s.acquire(ctx, "ABC123DEF456", def)
	second := s.acquire(ctx, "ABC123DEF456", def)

	assert.Same(t, first, second)
	assert.Equal(t, activity.StateReady, first.Snapshot().State)
	assert.Equal(t, 1, s.count())
}

func TestSessions_SeparatePerActivityAndKey(t *testing.T) {
	s, _, _, catalog := newTestSessions(t, time.Hour)
	origin, _ := catalog.Get(originID)
	market, _ := catalog.Get(marketID)
	ctx := context.Background()

	a := s.acquire(ctx, "ABC123DEF456", origin)
	b := s.acquire(ctx, "ABC123DEF456", market)
	c := s.acquire(ctx, "ZZZ123DEF456", origin)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, s.count())
}

func TestSessions_AdoptKeepsReadyController(t *testing.T) {
	s, _, _, catalog := newTestSessions(t, time.Hour)
	def, _ := catalog.Get(originID)
	ctx := context.Background()

	live := s.acquire(ctx, "ABC123DEF456", def)
	require.NoError(t, live.SetText("whoExperienced", "busy parents"))

	fresh := s.detached(ctx, def)
	assert.Equal(t, activity.StateNeedsUserCode, fresh.Snapshot().State)

	got := s.adopt(ctx, "ABC123DEF456", fresh)

	assert.Same(t, live, got, "the live controller holds newer in-memory state")
	assert.Equal(t, 1, s.count())
}

func TestSessions_SweepFlushesIdle(t *testing.T) {
	s, mem, clock, catalog := newTestSessions(t, 10*time.Minute)
	def, _ := catalog.Get(originID)
	ctx := context.Background()

	idle := s.acquire(ctx, "ABC123DEF456", def)
	require.NoError(t, idle.SetText("whoExperienced", "busy parents"))

	clock.now = clock.now.Add(6 * time.Minute)
	s.acquire(ctx, "ZZZ123DEF456", def)

	clock.now = clock.now.Add(5 * time.Minute)
	removed := s.sweep(ctx)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.count())

	record, err := mem.Get(ctx, "ABC123DEF456")
	require.NoError(t, err)
	require.NotNil(t, record, "swept sessions flush their pending save")
	st, _ := record.Activity(originID)
	assert.Equal(t, "busy parents", st.StepAnswers["whoExperienced"].Text.Response)

	// a later request loads the saved state into a new controller
	again := s.acquire(ctx, "ABC123DEF456", def)
	assert.NotSame(t, idle, again)
	assert.Equal(t, "busy parents", again.Snapshot().Answers["whoExperienced"].Text.Response)
}

func TestSessions_SweepDisabled(t *testing.T) {
	s, _, clock, catalog := newTestSessions(t, 0)
	def, _ := catalog.Get(originID)

	s.acquire(context.Background(), "ABC123DEF456", def)
	clock.now = clock.now.Add(24 * time.Hour)

	assert.Equal(t, 0, s.sweep(context.Background()))
	assert.Equal(t, 1, s.count())
}

func TestSessions_CloseAll(t *testing.T) {
	s, mem, _, catalog := newTestSessions(t, time.Hour)
	origin, _ := catalog.Get(originID)
	validation, _ := catalog.Get(validationID)
	ctx := context.Background()

	require.NoError(t, s.acquire(ctx, "ABC123DEF456", origin).SetText("whoExperienced", "busy parents"))
	require.NoError(t, s.acquire(ctx, "ABC123DEF456", validation).SetText("problemStatement", "late invoices"))

	s.closeAll(ctx)

	assert.Equal(t, 0, s.count())
	record, err := mem.Get(ctx, "ABC123DEF456")
	require.NoError(t, err)
	require.NotNil(t, record)
	_, hasOrigin := record.Activity(originID)
	_, hasValidation := record.Activity(validationID)
	assert.True(t, hasOrigin)
	assert.True(t, hasValidation)
}
