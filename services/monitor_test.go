package services

import (
	"context"
	"testing"
	"time"

	"github.com/akashpai/prepvox/backend/models"
)

func TestMonitorDebouncesRapidFlips(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)
	monitor := NewTabSwitchMonitor(engine, session.ID, nil)

	base := time.Now()

	first, err := monitor.HandleHidden(ctx, base)
	if err != nil {
		t.Fatalf("HandleHidden failed: %v", err)
	}
	if first.TabSwitches != 1 {
		t.Errorf("first event count = %d, expected 1", first.TabSwitches)
	}

	// A flip 500ms later is the same tab switch and must not count again.
	second, err := monitor.HandleHidden(ctx, base.Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("HandleHidden failed: %v", err)
	}
	if second.TabSwitches != 1 {
		t.Errorf("debounced event count = %d, expected 1", second.TabSwitches)
	}

	// Past the debounce window the next event counts.
	third, err := monitor.HandleHidden(ctx, base.Add(3*time.Second))
	if err != nil {
		t.Fatalf("HandleHidden failed: %v", err)
	}
	if third.TabSwitches != 2 {
		t.Errorf("post-debounce event count = %d, expected 2", third.TabSwitches)
	}
}

func TestMonitorFiresTerminateCallbackOnce(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAI{})
	ctx := context.Background()

	session := createStartedSession(t, engine, 3)

	terminations := 0
	monitor := NewTabSwitchMonitor(engine, session.ID, func() {
		terminations++
	})

	base := time.Now()
	for i := 0; i < models.TabSwitchLimit; i++ {
		result, err := monitor.HandleHidden(ctx, base.Add(time.Duration(i)*5*time.Second))
		if err != nil {
			t.Fatalf("HandleHidden %d failed: %v", i, err)
		}
		if i < models.TabSwitchLimit-1 && result.ShouldTerminate {
			t.Errorf("event %d terminated early", i)
		}
		if i == models.TabSwitchLimit-1 && !result.ShouldTerminate {
			t.Error("final event did not terminate")
		}
	}

	if terminations != 1 {
		t.Fatalf("onTerminate fired %d times, expected 1", terminations)
	}

	// Events after termination are absorbed without another callback.
	result, err := monitor.HandleHidden(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("post-termination HandleHidden failed: %v", err)
	}
	if result.ShouldTerminate {
		t.Error("terminated monitor reported termination again")
	}
	if terminations != 1 {
		t.Errorf("onTerminate fired %d times after extra event, expected 1", terminations)
	}
}
