package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAndWaitReturnsValue(t *testing.T) {
	p := NewPool(2, 4)
	p.Start()
	defer p.Stop()

	res, err := p.SubmitAndWait("answer", func() (any, error) { return 42, nil })
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, 42, res.Value)
	assert.False(t, res.CompletedAt.IsZero())
	assert.Equal(t, int64(1), p.GetStats().CompletedJobs)
}

func TestSubmitAndWaitPropagatesTaskError(t *testing.T) {
	p := NewPool(1, 1)
	p.Start()
	defer p.Stop()

	boom := errors.New("boom")
	res, err := p.SubmitAndWait("fail", func() (any, error) { return nil, boom })
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, int64(1), p.GetStats().FailedJobs)
}

func TestPanicIsReportedAsError(t *testing.T) {
	p := NewPool(1, 1)
	p.Start()
	defer p.Stop()

	res, err := p.SubmitAndWait("panic", func() (any, error) { panic("oops") })
	require.NoError(t, err)
	assert.ErrorContains(t, res.Err, "oops")

	res, err = p.SubmitAndWait("after", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value, "worker survives a panicking task")
}

func TestSingleWorkerSerializesTasks(t *testing.T) {
	p := NewPool(1, 8)
	p.Start()
	defer p.Stop()

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.SubmitAndWait("slow", func() (any, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestFullQueueIsBusy(t *testing.T) {
	p := NewPool(1, 1)
	p.Start()
	defer p.Stop()

	release := make(chan struct{})
	running := make(chan struct{})
	go func() {
		_, _ = p.SubmitAndWait("blocker", func() (any, error) {
			close(running)
			<-release
			return nil, nil
		})
	}()
	<-running

	queued := make(chan error, 1)
	go func() {
		_, err := p.SubmitAndWait("queued", func() (any, error) { return nil, nil })
		queued <- err
	}()
	require.Eventually(t, func() bool { return p.GetStats().QueueSize == 1 }, time.Second, 5*time.Millisecond)

	_, err := p.SubmitAndWait("rejected", func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrPoolBusy)
	assert.Equal(t, int64(1), p.GetStats().RejectedJobs)

	close(release)
	assert.NoError(t, <-queued)
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewPool(1, 1)
	p.Start()
	p.Stop()
	p.Stop()

	_, err := p.SubmitAndWait("late", func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrPoolStopped)
}
