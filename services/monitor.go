package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DebounceWindow collapses rapid hidden/visible flips so a single tab switch
// is not double-counted.
const DebounceWindow = 2 * time.Second

// TabSwitchMonitor consumes visibility-change events for one session,
// debounces them, and feeds qualifying events into the engine. When the
// engine signals termination the monitor fires its callback once so the
// caller can stop any in-flight recording and finalize, without waiting for
// further input.
type TabSwitchMonitor struct {
	engine    *InterviewEngine
	sessionID string
	debounce  time.Duration

	// onTerminate runs exactly once, on the event that cancels the session.
	onTerminate func()

	mu         sync.Mutex
	lastHidden time.Time
	terminated bool
}

func NewTabSwitchMonitor(engine *InterviewEngine, sessionID string, onTerminate func()) *TabSwitchMonitor {
	return &TabSwitchMonitor{
		engine:      engine,
		sessionID:   sessionID,
		debounce:    DebounceWindow,
		onTerminate: onTerminate,
	}
}

// HandleHidden processes one "focus context became hidden" event observed at
// the given time. Events inside the debounce window return the last known
// state without counting.
func (m *TabSwitchMonitor) HandleHidden(ctx context.Context, now time.Time) (*TabSwitchResult, error) {
	m.mu.Lock()
	if m.terminated {
		m.mu.Unlock()
		return &TabSwitchResult{ShouldTerminate: false}, nil
	}
	if !m.lastHidden.IsZero() && now.Sub(m.lastHidden) < m.debounce {
		m.mu.Unlock()
		slog.Debug("Tab switch debounced", "session_id", m.sessionID)
		session, err := m.engine.GetSession(ctx, m.sessionID)
		if err != nil {
			return nil, err
		}
		return &TabSwitchResult{TabSwitches: session.TabSwitchCount, ShouldTerminate: false}, nil
	}
	m.lastHidden = now
	m.mu.Unlock()

	result, err := m.engine.RecordTabSwitch(ctx, m.sessionID)
	if err != nil {
		return nil, err
	}

	if result.ShouldTerminate {
		m.mu.Lock()
		alreadyTerminated := m.terminated
		m.terminated = true
		m.mu.Unlock()

		if !alreadyTerminated && m.onTerminate != nil {
			m.onTerminate()
		}
	}

	return result, nil
}
