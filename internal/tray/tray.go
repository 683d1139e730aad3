// Package tray provides a system tray menu for controlling a practice session.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onStart  func()
	onSkip   func()
	onCamera func(on bool)
	onOpen   func()
	onQuit   func()
	cameraOn bool
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuCamera *systray.MenuItem
	menuSign   *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a new Tray with the camera off.
func New() *Tray {
	return &Tray{}
}

// OnStart sets the callback called when "Start practice" is clicked.
func (t *Tray) OnStart(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStart = fn
}

// OnSkip sets the callback called when "Skip sign" is clicked.
func (t *Tray) OnSkip(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSkip = fn
}

// OnCamera sets the callback called when the camera item is toggled.
func (t *Tray) OnCamera(fn func(on bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCamera = fn
}

// OnOpen sets the callback called when "Open practice view" is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback called when "Quit" is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra sign practice")

	menuStart := systray.AddMenuItem("Start practice", "Start a practice session")
	menuSkip := systray.AddMenuItem("Skip sign", "Move to the next sign")

	t.mu.Lock()
	t.menuCamera = systray.AddMenuItem(cameraTitle(t.cameraOn), "Turn the camera on or off")
	systray.AddSeparator()

	t.menuSign = systray.AddMenuItem(signTitle(""), "Sign to perform")
	t.menuSign.Disable()
	t.menuStatus = systray.AddMenuItem(statusTitle(""), "Latest detection")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open practice view...", "Open the practice view in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	go func() {
		for {
			select {
			case <-menuStart.ClickedCh:
				t.fire(actionStart)
			case <-menuSkip.ClickedCh:
				t.fire(actionSkip)
			case <-t.menuCamera.ClickedCh:
				t.handleCamera()
			case <-menuOpen.ClickedCh:
				t.fire(actionOpen)
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

type action int

const (
	actionStart action = iota
	actionSkip
	actionOpen
)

// fire runs the callback registered for a outside the lock.
func (t *Tray) fire(a action) {
	t.mu.RLock()
	var cb func()
	switch a {
	case actionStart:
		cb = t.onStart
	case actionSkip:
		cb = t.onSkip
	case actionOpen:
		cb = t.onOpen
	}
	t.mu.RUnlock()

	if cb != nil {
		cb()
	}
}

// handleCamera flips the camera state and reports it.
func (t *Tray) handleCamera() {
	t.mu.Lock()
	t.cameraOn = !t.cameraOn
	on := t.cameraOn
	if t.menuCamera != nil {
		t.menuCamera.SetTitle(cameraTitle(on))
	}
	callback := t.onCamera
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(on)
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetCamera reflects the real camera state, e.g. after a failed start or completion.
func (t *Tray) SetCamera(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cameraOn = on
	if t.menuCamera != nil {
		t.menuCamera.SetTitle(cameraTitle(on))
	}
}

// SetSign shows the sign the learner should perform.
func (t *Tray) SetSign(name string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuSign != nil {
		t.menuSign.SetTitle(signTitle(name))
	}
}

// SetStatus shows the latest detection label.
func (t *Tray) SetStatus(label string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(label))
	}
}

// CameraOn returns the camera state shown in the menu.
func (t *Tray) CameraOn() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cameraOn
}

func cameraTitle(on bool) string {
	if on {
		return "● Camera on"
	}
	return "○ Camera off"
}

func signTitle(name string) string {
	if name == "" {
		return "Sign: none"
	}
	return "Sign: " + name
}

func statusTitle(label string) string {
	if label == "" {
		return "Last: none"
	}
	return "Last: " + label
}
