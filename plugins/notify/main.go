// Package main provides a desktop notification plugin for mudra.
// It announces finished sessions and camera failures via osascript on macOS
// and notify-send elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event   string          `json:"event"`
	Sign    string          `json:"sign,omitempty"`
	Summary *Summary        `json:"summary,omitempty"`
	Error   string          `json:"error,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Summary mirrors the session summary sent on completion.
type Summary struct {
	Items       int     `json:"items"`
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"successRate"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// notifier shows a notification; replaced in tests.
var notifier = notify

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}
	writeResponse(handle(req))
}

// handle turns a request into a notification. Events without a message are ignored.
func handle(req Request) error {
	title, body, ok := message(req)
	if !ok {
		return nil
	}
	if err := notifier(title, body); err != nil {
		return fmt.Errorf("%s notification failed: %w", req.Event, err)
	}
	return nil
}

func message(req Request) (title, body string, ok bool) {
	switch req.Event {
	case "completed":
		if req.Summary == nil {
			return "", "", false
		}
		s := req.Summary
		return "Practice complete",
			fmt.Sprintf("%d of %d signs correct in %d attempts (%.0f%%)", s.Successes, s.Items, s.Attempts, s.SuccessRate*100),
			true
	case "camera-error":
		return "Camera unavailable", req.Error, true
	}
	return "", "", false
}

func notify(title, body string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := "display notification " + strconv.Quote(body) + " with title " + strconv.Quote(title)
		cmd = exec.Command("osascript", "-e", script)
	default:
		cmd = exec.Command("notify-send", "--app-name=mudra", title, body)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeResponse reports err, or success when err is nil, on stdout.
func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
