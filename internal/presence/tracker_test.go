package presence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestTracker_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 3*time.Second)

	tr.TypingStarted("alice")

	clock.Advance(2999 * time.Millisecond)
	if !tr.IsTyping("alice") {
		t.Fatal("expected alice to be typing just before the window elapses")
	}

	clock.Advance(2 * time.Millisecond)
	if tr.IsTyping("alice") {
		t.Fatal("expected alice to expire after the window")
	}
	if got := tr.Typers(); len(got) != 0 {
		t.Errorf("expected no typers without a sweep, got %v", got)
	}
}

func TestTracker_RefreshExtendsExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 3*time.Second)

	tr.TypingStarted("alice")
	clock.Advance(2 * time.Second)
	tr.TypingStarted("alice")
	clock.Advance(2 * time.Second)

	if !tr.IsTyping("alice") {
		t.Error("expected refreshed entry to still be visible")
	}
}

func TestTracker_StopRemovesImmediately(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock(), 0)
	if tr.Window() != DefaultWindow {
		t.Errorf("expected default window %v, got %v", DefaultWindow, tr.Window())
	}

	tr.TypingStarted("alice")
	tr.TypingStarted("bob")
	tr.TypingStopped("alice")

	if got := fmt.Sprint(tr.Typers()); got != "[bob]" {
		t.Errorf("expected [bob], got %s", got)
	}
}

func TestTracker_TypersAreSorted(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock(), time.Second)
	for _, name := range []string{"carol", "alice", "bob", " "} {
		tr.TypingStarted(name)
	}
	if got := fmt.Sprint(tr.Typers()); got != "[alice bob carol]" {
		t.Errorf("expected sorted typers, got %s", got)
	}
}

func TestTracker_Sweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 3*time.Second)

	var notified [][]string
	tr.OnChange(func(typers []string) { notified = append(notified, typers) })

	tr.TypingStarted("alice")
	clock.Advance(time.Second)
	tr.TypingStarted("bob")
	clock.Advance(2 * time.Second)

	if n := tr.Sweep(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if got := fmt.Sprint(tr.Typers()); got != "[bob]" {
		t.Errorf("expected [bob] after sweep, got %s", got)
	}
	if n := tr.Sweep(); n != 0 {
		t.Errorf("expected nothing left to sweep, got %d", n)
	}
	if len(notified) != 3 {
		t.Fatalf("expected 3 change notifications, got %d: %v", len(notified), notified)
	}
	if got := fmt.Sprint(notified[2]); got != "[bob]" {
		t.Errorf("expected sweep notification [bob], got %s", got)
	}
}

func TestTracker_RunEvictsWithoutStopSignal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 3*time.Second)
	defer tr.Close()

	swept := make(chan []string, 8)
	tr.OnChange(func(typers []string) { swept <- typers })

	tr.TypingStarted("alice")
	<-swept

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		clock.Advance(time.Second)
		select {
		case typers := <-swept:
			if len(typers) != 0 {
				t.Fatalf("expected empty set after sweep, got %v", typers)
			}
			tr.mu.Lock()
			remaining := len(tr.entries)
			tr.mu.Unlock()
			if remaining != 0 {
				t.Fatalf("expected sweeper to evict the entry, %d left", remaining)
			}
			return
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("sweeper never evicted the expired entry")
		}
	}
}

func TestTracker_Close(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock(), time.Second)
	tr.TypingStarted("alice")

	tr.Close()
	tr.Close()

	if len(tr.Typers()) != 0 {
		t.Error("expected close to clear typers")
	}
	tr.TypingStarted("bob")
	if tr.IsTyping("bob") {
		t.Error("expected closed tracker to ignore new signals")
	}

	done := make(chan struct{})
	go func() {
		tr.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return on a closed tracker")
	}
}
