package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	started atomic.Bool
	stopped atomic.Bool
	startFn func() error
	onStop  func()
	done    chan struct{}
	once    sync.Once
}

func newMockService() *mockService {
	return &mockService{done: make(chan struct{})}
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	<-m.done
	return nil
}

func (m *mockService) Stop() {
	m.stopped.Store(true)
	if m.onStop != nil {
		m.onStop()
	}
	m.once.Do(func() { close(m.done) })
}

func TestLifecycleStartsAndStopsServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	svc1 := newMockService()
	svc2 := newMockService()
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc1.started.Load() && svc2.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
}

func TestLifecycleStopsInReverseOrderThenCloses(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	first := newMockService()
	first.onStop = func() { record("stop first") }
	second := newMockService()
	second.onStop = func() { record("stop second") }
	lc.Add("first", first)
	lc.Add("second", second)
	lc.AddCloser("pool", func() error { record("close pool"); return nil })
	lc.AddCloser("client", func() error { record("close client"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, lc.Run(ctx))

	assert.Equal(t, []string{"stop second", "stop first", "close client", "close pool"}, order)
}

func TestLifecycleReturnsServiceFailure(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	boom := errors.New("listen tcp: address already in use")

	failing := newMockService()
	failing.startFn = func() error { return boom }
	healthy := newMockService()
	lc.Add("failing", failing)
	lc.Add("healthy", healthy)

	err := lc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "service failing")
	assert.True(t, healthy.stopped.Load())
}

func TestLifecycleReportsCloserError(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	closeErr := errors.New("already closed")
	lc.AddCloser("client", func() error { return closeErr })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := lc.Run(ctx)
	assert.ErrorIs(t, err, closeErr)
}

func TestLifecycleReleaseWithoutRun(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	var order []string
	closeErr := errors.New("already closed")
	lc.AddCloser("pool", func() error { order = append(order, "pool"); return nil })
	lc.AddCloser("client", func() error { order = append(order, "client"); return closeErr })

	err := lc.Release()
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, []string{"client", "pool"}, order)
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	assert.NoError(t, svc.Start())
	assert.True(t, started)
	svc.Stop()
	assert.True(t, stopped)
}
