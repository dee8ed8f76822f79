package queue

import (
	"context"
	"testing"
	"time"

	"github.com/okian/bci/internal/domain/model"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Cap(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	event1 := model.NewEvent(model.KindCue, "s1")
	if !q.Enqueue(ctx, event1) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	event := <-q.Dequeue(ctx)
	if event.ID != event1.ID {
		t.Errorf("expected %s, got %s", event1.ID, event.ID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_DropsWhenFull(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if !q.Enqueue(ctx, model.NewEvent(model.KindCue, "s")) {
			t.Fatalf("enqueue %d failed", i)
		}
	}

	done := make(chan bool)
	go func() { done <- q.Enqueue(ctx, model.NewEvent(model.KindCue, "s")) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("expected enqueue on a full queue to fail")
		}
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}

func TestInMemoryQueue_PreservesOrder(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := model.NewEvent(model.KindCue, "s")
		e.Option = i
		q.Enqueue(ctx, e)
	}
	q.Close()

	i := 0
	for e := range q.Dequeue(ctx) {
		if e.Option != i {
			t.Errorf("expected option %d, got %d", i, e.Option)
		}
		i++
	}
	if i != 5 {
		t.Errorf("expected 5 events after close, got %d", i)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	if q.IsClosed() {
		t.Error("expected queue to be open")
	}
	if err := q.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if q.Enqueue(ctx, model.NewEvent(model.KindCue, "s")) {
		t.Error("expected enqueue after close to fail")
	}
	if _, ok := <-q.Dequeue(ctx); ok {
		t.Error("expected dequeue channel to be closed")
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, model.NewEvent(model.KindCue, "s")) {
		t.Error("expected enqueue with a cancelled context to fail")
	}

	// Notify ignores cancellation.
	q.Notify(ctx, model.NewEvent(model.KindSelected, "s"))
	if l := q.Len(context.Background()); l != 1 {
		t.Errorf("expected notify to enqueue, got length %d", l)
	}
}

func TestInMemoryQueue_DequeueStopsOnContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	ch := q.Dequeue(ctx)
	cancel()
	q.Enqueue(context.Background(), model.NewEvent(model.KindCue, "s"))
	q.Enqueue(context.Background(), model.NewEvent(model.KindCue, "s"))

	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("dequeue channel did not close after cancellation")
		}
	}
}
