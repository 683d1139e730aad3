// Package plugin runs external executables in response to practice events.
package plugin

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/ayusman/mudra/internal/session"
)

// Plugin events
const (
	EventCorrect     = "correct"
	EventIncorrect   = "incorrect"
	EventCompleted   = "completed"
	EventCameraError = "camera-error"
)

// Manifest describes a plugin and the events it subscribes to.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Handles reports whether the plugin subscribed to event.
func (m Manifest) Handles(event string) bool {
	return slices.Contains(m.Events, event)
}

// Request is written to the plugin's stdin as JSON.
type Request struct {
	Event   string           `json:"event"`
	Sign    string           `json:"sign,omitempty"`
	Summary *session.Summary `json:"summary,omitempty"`
	Error   string           `json:"error,omitempty"`
	Config  json.RawMessage  `json:"config,omitempty"`
	At      time.Time        `json:"at"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
