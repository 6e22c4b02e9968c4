package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecordsPanicAsError(t *testing.T) {
	s := New(context.Background())
	s.Go0("boom", func(context.Context) { panic("kaput") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}

	snap := s.Snapshot()
	if len(snap.Goroutines) != 1 || snap.Goroutines[0].Panics != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("fail", func(context.Context) error { return errors.New("nope") })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil || err.Error() != "fail: nope" {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestGoRestartRestartsAfterPanic(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	done := make(chan struct{})

	s.GoRestart("loop", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			panic("tick failed")
		}
		close(done)
		<-ctx.Done()
		return ctx.Err()
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop was not restarted, runs=%d", runs.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	for _, g := range s.Snapshot().Goroutines {
		if g.Name == "loop" && g.Restarts != 2 {
			t.Fatalf("restarts=%d want 2", g.Restarts)
		}
	}
}

func TestGoRestartStopsOnCleanExit(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("once", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if runs.Load() != 1 {
		t.Fatalf("runs=%d", runs.Load())
	}
}
