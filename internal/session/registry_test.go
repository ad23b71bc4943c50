// ABOUTME: Tests for the session registry lifecycle and concurrency guarantees.
// ABOUTME: Covers deferred registration, eviction, id uniqueness, and shutdown.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler is a Handler whose lifecycle is driven by the test.
type fakeHandler struct {
	id        string
	hooks     Hooks
	closeOnce sync.Once
	closes    atomic.Int32
}

func (h *fakeHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *fakeHandler) Close() error {
	h.closeOnce.Do(func() {
		h.closes.Add(1)
		h.hooks.Closed()
	})
	return nil
}

func (h *fakeHandler) establish() {
	h.hooks.Established(h.id)
}

// fakeFactory records every handler it builds, keyed by session id.
type fakeFactory struct {
	mu       sync.Mutex
	handlers map[string]*fakeHandler
	err      error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{handlers: make(map[string]*fakeHandler)}
}

func (f *fakeFactory) NewHandler(_ context.Context, id string, hooks Hooks) (Handler, error) {
	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandler{id: id, hooks: hooks}
	f.mu.Lock()
	f.handlers[id] = h
	f.mu.Unlock()
	return h, nil
}

func (f *fakeFactory) handler(t *testing.T, id string) *fakeHandler {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handlers[id]
	require.True(t, ok, "no handler built for %s", id)
	return h
}

// countingObserver tallies lifecycle events.
type countingObserver struct {
	opened    atomic.Int32
	closed    atomic.Int32
	abandoned atomic.Int32
}

func (o *countingObserver) SessionOpened()              { o.opened.Add(1) }
func (o *countingObserver) SessionClosed(time.Duration) { o.closed.Add(1) }
func (o *countingObserver) SessionAbandoned()           { o.abandoned.Add(1) }

func newTestRegistry(t *testing.T) (*Registry, *fakeFactory, *countingObserver) {
	t.Helper()
	factory := newFakeFactory()
	observer := &countingObserver{}
	registry, err := NewRegistry(Config{
		Factory:  factory,
		Logger:   slog.Default(),
		Observer: observer,
	})
	require.NoError(t, err)
	return registry, factory, observer
}

func TestNewRegistry_RequiresFactory(t *testing.T) {
	_, err := NewRegistry(Config{})
	require.Error(t, err)
}

func TestCreate_PendingUntilEstablished(t *testing.T) {
	registry, factory, observer := newTestRegistry(t)

	sess, err := registry.Create(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID())
	assert.Equal(t, StatePending, sess.State())
	assert.NotNil(t, sess.Handler())

	_, ok := registry.Lookup(sess.ID())
	assert.False(t, ok, "pending session must not be visible")
	assert.Equal(t, 0, registry.Len())

	factory.handler(t, sess.ID()).establish()

	found, ok := registry.Lookup(sess.ID())
	require.True(t, ok)
	assert.Same(t, sess, found)
	assert.Equal(t, StateActive, sess.State())
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, int32(1), observer.opened.Load())
}

func TestEstablish_IgnoresMismatchedID(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	sess, err := registry.Create(context.Background())
	require.NoError(t, err)

	factory.handler(t, sess.ID()).hooks.Established("someone-else")

	_, ok := registry.Lookup(sess.ID())
	assert.False(t, ok)
	_, ok = registry.Lookup("someone-else")
	assert.False(t, ok)
	assert.Equal(t, StatePending, sess.State())
}

func TestEstablish_Idempotent(t *testing.T) {
	registry, factory, observer := newTestRegistry(t)

	sess, err := registry.Create(context.Background())
	require.NoError(t, err)
	h := factory.handler(t, sess.ID())
	h.establish()
	h.establish()

	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, int32(1), observer.opened.Load())
}

func TestClosed_EvictsActiveSession(t *testing.T) {
	registry, factory, observer := newTestRegistry(t)

	sess, err := registry.Create(context.Background())
	require.NoError(t, err)
	h := factory.handler(t, sess.ID())
	h.establish()

	require.NoError(t, h.Close())

	_, ok := registry.Lookup(sess.ID())
	assert.False(t, ok, "closed session must not be found")
	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, int32(1), observer.closed.Load())
}

func TestClosed_NeverResurrects(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	sess, err := registry.Create(context.Background())
	require.NoError(t, err)
	h := factory.handler(t, sess.ID())
	h.establish()
	require.NoError(t, h.Close())

	// A late confirmation after closure must not bring the id back.
	h.establish()

	_, ok := registry.Lookup(sess.ID())
	assert.False(t, ok)
	assert.Equal(t, StateClosed, sess.State())
}

func TestClosed_BeforeEstablishIsNoop(t *testing.T) {
	registry, factory, observer := newTestRegistry(t)

	sess, err := registry.Create(context.Background())
	require.NoError(t, err)
	h := factory.handler(t, sess.ID())

	require.NoError(t, h.Close())
	h.establish()

	_, ok := registry.Lookup(sess.ID())
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, int32(0), observer.opened.Load())
	assert.Equal(t, int32(0), observer.closed.Load())
	assert.Equal(t, int32(1), observer.abandoned.Load())
}

func TestClosed_FiresTwiceSafely(t *testing.T) {
	registry, factory, observer := newTestRegistry(t)

	sess, err := registry.Create(context.Background())
	require.NoError(t, err)
	h := factory.handler(t, sess.ID())
	h.establish()

	h.hooks.Closed()
	h.hooks.Closed()

	assert.Equal(t, int32(1), observer.closed.Load())
}

func TestLookup_UnknownAndEmpty(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	_, ok := registry.Lookup("")
	assert.False(t, ok)
	_, ok = registry.Lookup("does-not-exist")
	assert.False(t, ok)
}

func TestCreate_UniqueIDsUnderConcurrency(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := registry.Create(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			factory.handler(t, sess.ID()).establish()
			ids <- sess.ID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, registry.Len())
}

func TestCreate_RegeneratesOnCollision(t *testing.T) {
	factory := newFakeFactory()
	ids := []string{"fixed", "fixed", "fresh"}
	var calls int
	registry, err := NewRegistry(Config{
		Factory: factory,
		NewID: func() string {
			id := ids[calls]
			calls++
			return id
		},
	})
	require.NoError(t, err)

	first, err := registry.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed", first.ID())

	second, err := registry.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", second.ID(), "pending id must not be handed out twice")
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	registry, err := NewRegistry(Config{
		Factory: newFakeFactory(),
		NewID:   func() string { return "same" },
	})
	require.NoError(t, err)

	_, err = registry.Create(context.Background())
	require.NoError(t, err)

	_, err = registry.Create(context.Background())
	require.Error(t, err)
}

func TestCreate_FactoryError(t *testing.T) {
	factory := newFakeFactory()
	factory.err = errors.New("boom")
	registry, err := NewRegistry(Config{Factory: factory})
	require.NoError(t, err)

	_, err = registry.Create(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, factory.err)
	assert.Equal(t, 0, registry.Len())
}

func TestSnapshot_OldestFirst(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	var want []string
	for range 3 {
		sess, err := registry.Create(context.Background())
		require.NoError(t, err)
		factory.handler(t, sess.ID()).establish()
		want = append(want, sess.ID())
		time.Sleep(time.Millisecond)
	}

	infos := registry.Snapshot()
	require.Len(t, infos, 3)
	for i, info := range infos {
		assert.Equal(t, want[i], info.ID)
	}
}

func TestShutdown_ClosesEverySession(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	active, err := registry.Create(context.Background())
	require.NoError(t, err)
	factory.handler(t, active.ID()).establish()

	pending, err := registry.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, registry.Shutdown(context.Background()))

	assert.Equal(t, int32(1), factory.handler(t, active.ID()).closes.Load())
	assert.Equal(t, int32(1), factory.handler(t, pending.ID()).closes.Load())
	assert.Equal(t, 0, registry.Len())

	_, err = registry.Create(context.Background())
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestLookupRacesWithClose(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	var sessions []*Session
	for range 50 {
		sess, err := registry.Create(context.Background())
		require.NoError(t, err)
		factory.handler(t, sess.ID()).establish()
		sessions = append(sessions, sess)
	}

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			for range 100 {
				registry.Lookup(id)
			}
		}(sess.ID())
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, factory.handler(t, id).Close())
			_, ok := registry.Lookup(id)
			assert.False(t, ok, fmt.Sprintf("session %s visible after close", id))
		}(sess.ID())
	}
	wg.Wait()

	assert.Equal(t, 0, registry.Len())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}
