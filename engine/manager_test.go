package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaconv/engine"
	"mediaconv/engine/enginetest"
	"mediaconv/failures"
)

// countingLoader hands out scripted engines and counts loads. If gate is
// set, each load waits for it.
type countingLoader struct {
	loads atomic.Int32
	gate  chan struct{}
	err   error
	made  []*engine.FFmpeg
	mu    sync.Mutex
}

func (l *countingLoader) Load(ctx context.Context) (engine.Engine, error) {
	l.loads.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	if l.err != nil {
		return nil, l.err
	}
	eng, err := enginetest.NewEngine(&enginetest.Script{})
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.made = append(l.made, eng)
	l.mu.Unlock()
	return eng, nil
}

func TestManagerStartsUninitialized(t *testing.T) {
	l := &countingLoader{}
	m := engine.NewManager(l)
	assert.Equal(t, engine.StateUninitialized, m.State())
	assert.False(t, m.IsReady())
	assert.Zero(t, l.loads.Load(), "construction must not load")
}

func TestManagerConcurrentAcquireLoadsOnce(t *testing.T) {
	l := &countingLoader{gate: make(chan struct{})}
	m := engine.NewManager(l)

	const callers = 10
	handles := make([]*engine.Handle, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = m.Acquire(context.Background())
		}(i)
	}

	assert.Eventually(t, func() bool { return m.State() == engine.StateLoading }, time.Second, time.Millisecond)
	close(l.gate)
	wg.Wait()

	assert.Equal(t, int32(1), l.loads.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i])
	}
	assert.True(t, m.IsReady())

	h, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, handles[0], h)
	assert.Equal(t, int32(1), l.loads.Load())
}

func TestManagerFailedLoadIsRetryable(t *testing.T) {
	boom := errors.New("download failed")
	l := &countingLoader{err: boom}
	m := engine.NewManager(l)

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failures.ErrEngineLoadFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, engine.StateFailed, m.State())
	assert.Equal(t, boom, m.LastError())

	l.err = nil
	h, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, engine.StateReady, m.State())
	assert.Nil(t, m.LastError())
	assert.Equal(t, int32(2), l.loads.Load())
}

func TestManagerAcquireHonorsCallerContext(t *testing.T) {
	l := &countingLoader{gate: make(chan struct{})}
	m := engine.NewManager(l)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Acquire(ctx)
	assert.ErrorIs(t, err, failures.ErrEngineLoadFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the load itself continues and serves the next caller
	close(l.gate)
	h, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, int32(1), l.loads.Load())
}

func TestManagerDispose(t *testing.T) {
	l := &countingLoader{}
	m := engine.NewManager(l)
	require.NoError(t, m.Dispose(), "dispose before load is a no-op")

	h, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Dispose())
	assert.Equal(t, engine.StateUninitialized, m.State())
	assert.ErrorIs(t, h.Engine().WriteFile("a.png", nil), engine.ErrTerminated)

	h2, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, h, h2)
	assert.Equal(t, int32(2), l.loads.Load())
}

func TestManagerDisposeDuringLoadDiscardsEngine(t *testing.T) {
	l := &countingLoader{gate: make(chan struct{})}
	m := engine.NewManager(l)

	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background())
		done <- err
	}()
	assert.Eventually(t, func() bool { return l.loads.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Dispose())
	close(l.gate)

	err := <-done
	assert.ErrorIs(t, err, engine.ErrDisposed)
	assert.Equal(t, engine.StateUninitialized, m.State())

	l.mu.Lock()
	require.Len(t, l.made, 1)
	discarded := l.made[0]
	l.mu.Unlock()
	assert.ErrorIs(t, discarded.WriteFile("a.png", nil), engine.ErrTerminated)
}

func TestHandleSerializesWork(t *testing.T) {
	eng, err := enginetest.NewEngine(&enginetest.Script{})
	require.NoError(t, err)
	h := engine.NewHandle(eng)

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Do(context.Background(), func(ctx context.Context, e engine.Engine) error {
				n := active.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", engine.StateReady.String())
	assert.Equal(t, "failed", engine.StateFailed.String())
	assert.Equal(t, "State(9)", engine.State(9).String())
}
