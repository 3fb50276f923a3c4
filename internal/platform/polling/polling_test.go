package polling

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestStart_RunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	ticket := Start(context.Background(), time.Hour, func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	defer ticket.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("expected fn to run before the first interval")
	}
}

func TestStart_RepeatsOnInterval(t *testing.T) {
	var calls int32
	ticket := Start(context.Background(), 10*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&calls, 1)
	})
	time.Sleep(75 * time.Millisecond)
	ticket.Stop()

	if n := atomic.LoadInt32(&calls); n < 3 {
		t.Errorf("expected at least 3 calls, got %d", n)
	}
}

func TestStop_NoCallsAfterStop(t *testing.T) {
	var calls int32
	ticket := Start(context.Background(), 5*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&calls, 1)
	})
	time.Sleep(20 * time.Millisecond)
	ticket.Stop()

	after := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != after {
		t.Errorf("expected no calls after Stop, got %d more", n-after)
	}
}

func TestStop_Idempotent(t *testing.T) {
	ticket := Start(context.Background(), time.Millisecond, func(context.Context) {})
	ticket.Stop()
	ticket.Stop()

	select {
	case <-ticket.Done():
	default:
		t.Error("expected Done to be closed")
	}
}

func TestStart_NeverOverlaps(t *testing.T) {
	var running, overlapped int32
	ticket := Start(context.Background(), time.Millisecond, func(context.Context) {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	})
	time.Sleep(40 * time.Millisecond)
	ticket.Stop()

	if atomic.LoadInt32(&overlapped) != 0 {
		t.Error("expected runs never to overlap")
	}
}

func TestStart_StopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticket := Start(ctx, time.Millisecond, func(context.Context) {})
	cancel()

	select {
	case <-ticket.Done():
	case <-time.After(time.Second):
		t.Fatal("expected loop to exit when parent context is cancelled")
	}
}

func TestStart_ContextCancelledDuringRun(t *testing.T) {
	started := make(chan struct{})
	var sawCancel int32
	ticket := Start(context.Background(), time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		atomic.StoreInt32(&sawCancel, 1)
	})
	<-started
	ticket.Stop()

	if atomic.LoadInt32(&sawCancel) != 1 {
		t.Error("expected in-flight run to observe cancellation before Stop returns")
	}
}
