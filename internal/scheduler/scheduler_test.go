package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBatchProcessor counts calls, signals when a batch starts and blocks
// until released.
type fakeBatchProcessor struct {
	calls   atomic.Int32
	started chan struct{}

	mu    sync.Mutex
	block chan struct{}
	err   error
}

func newFakeBatchProcessor() *fakeBatchProcessor {
	return &fakeBatchProcessor{
		started: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
}

func (f *fakeBatchProcessor) ProcessBatch(ctx context.Context) error {
	f.calls.Add(1)

	select {
	case f.started <- struct{}{}:
	default:
	}

	f.mu.Lock()
	block, err := f.block, f.err
	f.mu.Unlock()

	select {
	case <-block:
	case <-ctx.Done():
	}
	return err
}

func (f *fakeBatchProcessor) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.block)
}

func (f *fakeBatchProcessor) rearm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = make(chan struct{})
}

func waitStarted(t *testing.T, f *fakeBatchProcessor) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(time.Second):
		t.Fatal("ProcessBatch was not called")
	}
}

func TestSchedulerStartTriggersBatch(t *testing.T) {
	fake := newFakeBatchProcessor()
	s := NewSchedulerService(fake, 10*time.Millisecond, 2*time.Second, zerolog.Nop())

	assert.False(t, s.IsRunning())
	require.NoError(t, s.Start())
	waitStarted(t, fake)
	fake.release()

	assert.True(t, s.IsRunning())
	require.NoError(t, s.Stop())
}

func TestSchedulerStopWaitsForBatch(t *testing.T) {
	fake := newFakeBatchProcessor()
	s := NewSchedulerService(fake, 5*time.Millisecond, 2*time.Second, zerolog.Nop())

	require.NoError(t, s.Start())
	waitStarted(t, fake)

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()

	select {
	case <-done:
		t.Fatal("Stop returned before the batch finished")
	case <-time.After(50 * time.Millisecond):
	}

	fake.release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the batch finished")
	}
	assert.False(t, s.IsRunning())
}

func TestSchedulerRestart(t *testing.T) {
	fake := newFakeBatchProcessor()
	s := NewSchedulerService(fake, 10*time.Millisecond, 2*time.Second, zerolog.Nop())

	require.NoError(t, s.Start())
	waitStarted(t, fake)
	fake.release()
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	before := fake.calls.Load()
	fake.rearm()
	// drain a signal left by a batch that ran before Stop
	select {
	case <-fake.started:
	default:
	}

	require.NoError(t, s.Start())
	waitStarted(t, fake)
	assert.Greater(t, fake.calls.Load(), before)
	fake.release()
}

func TestSchedulerSurvivesBatchErrors(t *testing.T) {
	fake := newFakeBatchProcessor()
	fake.err = errors.New("redis down")
	fake.release()
	s := NewSchedulerService(fake, 5*time.Millisecond, time.Second, zerolog.Nop())

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return fake.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.IsRunning())
}

func TestSchedulerConcurrentStartStop(t *testing.T) {
	fake := newFakeBatchProcessor()
	fake.release()
	s := NewSchedulerService(fake, 5*time.Millisecond, 50*time.Millisecond, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Start()
		}()
		go func() {
			defer wg.Done()
			_ = s.Stop()
		}()
	}
	wg.Wait()
}
