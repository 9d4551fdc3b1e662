package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vidproc/internal/pkg/logger"
)

func TestNewManagerDefaultTimeout(t *testing.T) {
	mgr := NewManager(logger.Discard(), 0)
	if mgr.timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", mgr.timeout)
	}
}

func TestShutdownRunsStepsInReverseOrder(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)

	var order []string
	mgr.Register("redis", func(ctx context.Context) error {
		order = append(order, "redis")
		return nil
	})
	mgr.RegisterCloser("postgres", func() error {
		order = append(order, "postgres")
		return nil
	})
	mgr.Register("http", func(ctx context.Context) error {
		order = append(order, "http")
		return nil
	})

	if err := mgr.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	want := []string{"http", "postgres", "redis"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestShutdownJoinsErrors(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	var ran atomic.Int32
	mgr.Register("a", func(ctx context.Context) error { ran.Add(1); return errA })
	mgr.Register("ok", func(ctx context.Context) error { ran.Add(1); return nil })
	mgr.Register("b", func(ctx context.Context) error { ran.Add(1); return errB })

	err := mgr.Shutdown()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both errors, got %v", err)
	}
	if ran.Load() != 3 {
		t.Errorf("expected a failing step not to stop the others, ran %d", ran.Load())
	}
}

func TestShutdownRunsOnce(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)

	var calls atomic.Int32
	mgr.Register("once", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.Shutdown()
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected one run, got %d", calls.Load())
	}
	select {
	case <-mgr.Done():
	default:
		t.Error("expected done channel to be closed")
	}
}

func TestShutdownTimeout(t *testing.T) {
	mgr := NewManager(logger.Discard(), 100*time.Millisecond)

	mgr.Register("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return nil
	})

	start := time.Now()
	err := mgr.Shutdown()

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestTriggerUnblocksWaitAndCancelsContext(t *testing.T) {
	mgr := NewManager(logger.Discard(), time.Second)
	ctx := mgr.Context()

	var ran atomic.Bool
	mgr.Register("step", func(context.Context) error {
		ran.Store(true)
		return nil
	})

	errc := make(chan error, 1)
	go func() { errc <- mgr.Wait(context.Background()) }()

	mgr.Trigger()
	mgr.Trigger()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Trigger")
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("expected context to be canceled")
	}
	if !ran.Load() {
		t.Error("expected step to run")
	}
}

func TestWaitReturnsWhenParentContextEnds(t *testing.T) {
	mgr := NewManager(logger.Discard(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		_ = mgr.Wait(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after parent context ended")
	}
}
