package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPopOrder(t *testing.T) {
	for _, m := range []int{0, 1, 5, 100} {
		q := New[int](2)
		for i := 0; i < m; i++ {
			if !q.Push(i) {
				t.Fatalf("Push(%d) returned false", i)
			}
		}
		if q.Len() != m {
			t.Errorf("Len() = %d, want %d", q.Len(), m)
		}
		for i := 0; i < m; i++ {
			got, ok := q.TryPop()
			if !ok {
				t.Fatalf("m=%d: TryPop() returned false for item %d", m, i)
			}
			if got != i {
				t.Errorf("m=%d: popped %d, want %d", m, got, i)
			}
		}
		if _, ok := q.TryPop(); ok {
			t.Errorf("m=%d: expected empty queue", m)
		}
	}
}

func TestQueue_GrowsWhenWrapped(t *testing.T) {
	q := New[int](4)

	// Advance head so the ring wraps before growing.
	for i := 0; i < 3; i++ {
		q.Push(i)
	}
	q.TryPop()
	q.TryPop()
	for i := 3; i < 10; i++ {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Grows == 0 {
		t.Error("expected at least one grow")
	}
	if stats.Len != 8 {
		t.Errorf("Len = %d, want 8", stats.Len)
	}

	for want := 2; want < 10; want++ {
		got, _ := q.TryPop()
		if got != want {
			t.Errorf("popped %d, want %d", got, want)
		}
	}
}

func TestQueue_BlockingPop(t *testing.T) {
	q := New[int](1)
	received := make(chan int, 1)

	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			received <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-received:
		if v != 42 {
			t.Errorf("received %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Pop")
	}
}

func TestQueue_PopContextCancel(t *testing.T) {
	q := New[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestQueue_CloseDrainsThenErrors(t *testing.T) {
	q := New[string](4)
	q.Push("a")
	q.Push("b")
	q.Close()

	if q.Push("c") {
		t.Error("Push after Close should return false")
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b"} {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		if got != want {
			t.Errorf("Pop = %q, want %q", got, want)
		}
	}
	if _, err := q.Pop(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Double close is a no-op.
	q.Close()
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := New[int](1)
	var wg sync.WaitGroup
	errs := make(chan error, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Pop(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int](8)
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	if got := len(q.Drain(0)); got != producers*perProducer {
		t.Errorf("drained %d, want %d", got, producers*perProducer)
	}
	stats := q.Stats()
	if stats.Pushed != stats.Popped {
		t.Errorf("Pushed = %d, Popped = %d", stats.Pushed, stats.Popped)
	}
}
