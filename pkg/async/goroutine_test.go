package async

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/plannerhq/plansearch/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestSafeGoRunsFunction(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), time.Second, "test task", testLogger(), func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestSafeGoRecoversFromPanic(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), time.Second, "panicking task", testLogger(), func(ctx context.Context) error {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	// The panic was swallowed; reaching here without crashing is the assertion
}

func TestSafeGoSwallowsErrors(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), time.Second, "failing task", testLogger(), func(ctx context.Context) error {
		close(done)
		return errors.New("expected")
	})
	<-done
}

func TestSafeGoEnforcesTimeout(t *testing.T) {
	expired := make(chan struct{})
	SafeGo(context.Background(), 10*time.Millisecond, "slow task", testLogger(), func(ctx context.Context) error {
		<-ctx.Done()
		close(expired)
		return ctx.Err()
	})

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("task context never expired")
	}
}

func TestLoopRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks int32
	Loop(ctx, 5*time.Millisecond, "ticker", testLogger(), func(ctx context.Context) {
		atomic.AddInt32(&ticks, 1)
	})

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&ticks) >= 3
	}, time.Second, time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	settled := atomic.LoadInt32(&ticks)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&ticks))
}

func TestLoopRecoversFromPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks int32
	Loop(ctx, 5*time.Millisecond, "panicking ticker", testLogger(), func(ctx context.Context) {
		atomic.AddInt32(&ticks, 1)
		panic("boom")
	})

	// The loop survives panics and keeps ticking
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&ticks) >= 2
	}, time.Second, time.Millisecond)
}
