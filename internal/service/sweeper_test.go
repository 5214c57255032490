package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/lock"
)

func TestSweeper_RunOnce(t *testing.T) {
	f := newReservationFixture()
	book := f.loanedBook()
	user := f.member("reader@example.com")
	f.hold(user.ID, book.ID, fixedNow.Add(-2*testHold))

	locker := lock.NewMemoryLocker()
	sw := NewSweeper(f.svc, locker, zerolog.Nop(), DefaultSweepConfig())

	expired, err := sw.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}

	// The lock must be released afterwards.
	ok, err := locker.Acquire(context.Background(), lock.SweepKey, time.Minute)
	if err != nil || !ok {
		t.Errorf("sweep lock must be free after a run, got (%v, %v)", ok, err)
	}
}

func TestSweeper_SkipsWhenLockHeld(t *testing.T) {
	f := newReservationFixture()
	book := f.loanedBook()
	user := f.member("reader@example.com")
	stale := f.hold(user.ID, book.ID, fixedNow.Add(-2*testHold))

	locker := lock.NewMemoryLocker()
	held, err := locker.Acquire(context.Background(), lock.SweepKey, time.Minute)
	if err != nil || !held {
		t.Fatal("failed to pre-acquire the sweep lock")
	}

	sw := NewSweeper(f.svc, locker, zerolog.Nop(), DefaultSweepConfig())

	expired, err := sw.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired != 0 {
		t.Errorf("a skipped run must expire nothing, got %d", expired)
	}

	got, _ := f.res.GetByID(context.Background(), stale.ID)
	if !got.Active() {
		t.Error("the hold must be untouched when the lock is held elsewhere")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	f := newReservationFixture()
	sw := NewSweeper(f.svc, lock.NewNoopLocker(), zerolog.Nop(), SweepConfig{
		Interval: 10 * time.Millisecond,
		LockTTL:  time.Second,
	})

	sw.Start()
	time.Sleep(30 * time.Millisecond)
	sw.Stop()

	// Stop is idempotent and a stopped sweeper can be queried directly.
	sw.Stop()
	if _, err := sw.RunOnce(context.Background()); err != nil {
		t.Errorf("manual run after stop failed: %v", err)
	}
}
