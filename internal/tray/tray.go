// Package tray shows the engine's state in the system tray and lets the
// user pause analysis, record sessions and open the dashboard.
package tray

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

// Actions are invoked from menu clicks. Nil actions are skipped.
type Actions struct {
	// Toggle receives the new analysis state.
	Toggle func(enabled bool)
	// Record starts (true) or stops (false) a session. The menu only flips
	// when it returns nil.
	Record    func(recording bool) error
	Dashboard func()
	Quit      func()
}

type item int

const (
	itemToggle item = iota
	itemRecord
	itemDashboard
	itemQuit
)

// Tray is the tray icon and its menu.
type Tray struct {
	mu        sync.RWMutex
	actions   Actions
	enabled   bool
	recording bool

	toggle *systray.MenuItem
	record *systray.MenuItem
	status *systray.MenuItem
}

// New returns a Tray with analysis enabled and no recording.
func New() *Tray {
	return &Tray{enabled: true}
}

// Bind replaces the non-nil actions in a.
func (t *Tray) Bind(a Actions) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a.Toggle != nil {
		t.actions.Toggle = a.Toggle
	}
	if a.Record != nil {
		t.actions.Record = a.Record
	}
	if a.Dashboard != nil {
		t.actions.Dashboard = a.Dashboard
	}
	if a.Quit != nil {
		t.actions.Quit = a.Quit
	}
}

// Run shows the tray and blocks until Quit. It must run on the main
// goroutine.
func (t *Tray) Run() {
	systray.Run(t.build, func() {})
}

// Quit removes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) build() {
	systray.SetTitle("Biomech")
	systray.SetTooltip("Biomech joint kinematics")

	t.mu.Lock()
	t.toggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume joint analysis")
	t.record = systray.AddMenuItem(recordTitle(t.recording), "Record joint kinematics to a session")
	systray.AddSeparator()
	t.status = systray.AddMenuItem(lastUpdateTitle(time.Time{}, 0), "Time of the last snapshot")
	t.status.Disable()
	clicks := map[item]<-chan struct{}{
		itemToggle: t.toggle.ClickedCh,
		itemRecord: t.record.ClickedCh,
	}
	t.mu.Unlock()

	systray.AddSeparator()
	clicks[itemDashboard] = systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser").ClickedCh
	systray.AddSeparator()
	clicks[itemQuit] = systray.AddMenuItem("Quit", "Quit Biomech").ClickedCh

	go func() {
		for {
			var it item
			select {
			case <-clicks[itemToggle]:
				it = itemToggle
			case <-clicks[itemRecord]:
				it = itemRecord
			case <-clicks[itemDashboard]:
				it = itemDashboard
			case <-clicks[itemQuit]:
				it = itemQuit
			}
			t.click(it)
			if it == itemQuit {
				return
			}
		}
	}()
}

// click runs the action for it. Actions are called without the lock held.
func (t *Tray) click(it item) {
	switch it {
	case itemToggle:
		t.mu.Lock()
		t.enabled = !t.enabled
		enabled, fn := t.enabled, t.actions.Toggle
		if t.toggle != nil {
			t.toggle.SetTitle(toggleTitle(enabled))
		}
		t.mu.Unlock()
		if fn != nil {
			fn(enabled)
		}

	case itemRecord:
		t.mu.RLock()
		want, fn := !t.recording, t.actions.Record
		t.mu.RUnlock()
		if fn != nil {
			if err := fn(want); err != nil {
				log.Printf("[tray] Recording: %v", err)
				return
			}
		}
		t.SetRecording(want)

	case itemDashboard:
		t.mu.RLock()
		fn := t.actions.Dashboard
		t.mu.RUnlock()
		if fn != nil {
			fn()
		}

	case itemQuit:
		t.mu.RLock()
		fn := t.actions.Quit
		t.mu.RUnlock()
		if fn != nil {
			fn()
		}
		systray.Quit()
	}
}

// SetRecording updates the record item, e.g. after a session was started
// through the API.
func (t *Tray) SetRecording(recording bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recording = recording
	if t.record != nil {
		t.record.SetTitle(recordTitle(recording))
	}
}

// SetLastUpdate shows when the last snapshot was produced and from how
// many cameras.
func (t *Tray) SetLastUpdate(at time.Time, cameras int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.status != nil {
		t.status.SetTitle(lastUpdateTitle(at, cameras))
	}
}

func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func (t *Tray) IsRecording() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.recording
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Analysis on"
	}
	return "○ Analysis off"
}

func recordTitle(recording bool) string {
	if recording {
		return "■ Stop Recording"
	}
	return "● Start Recording"
}

func lastUpdateTitle(at time.Time, cameras int) string {
	if at.IsZero() {
		return "Last update: none"
	}
	return fmt.Sprintf("Last update: %s (%d cameras)", at.Format("15:04:05"), cameras)
}
