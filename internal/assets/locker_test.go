package assets

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyedLocker_SerializesSameKey(t *testing.T) {
	l := NewKeyedLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(ctx, "a")
		if err != nil {
			t.Error(err)
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock() returned while the key was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock() never acquired the key")
	}
}

func TestKeyedLocker_IndependentKeys(t *testing.T) {
	l := NewKeyedLocker()
	ctx := context.Background()

	ua, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	defer ua()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	ub, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock(b) error = %v", err)
	}
	ub()
}

func TestKeyedLocker_CancelAndCleanup(t *testing.T) {
	l := NewKeyedLocker()
	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Lock(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("Lock() error = %v, want context.Canceled", err)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}

	unlock()
	unlock()
	if l.Len() != 0 {
		t.Errorf("Len() = %d after release, want 0", l.Len())
	}
}
