package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func writeManifest(t *testing.T, root, dir string, m Manifest) {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, "plugin.json"), data, 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
}

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "notify", Manifest{
		Name:        "notify",
		Version:     "1.0.0",
		Description: "Desktop notifications",
		Executable:  "notify",
		Events:      []string{EventCompleted, EventCameraError},
	})

	m := NewManager(root, zaptest.NewLogger(t).Sugar())
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := m.List()
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}
	p := plugins[0]
	if p.Manifest.Name != "notify" || p.Manifest.Version != "1.0.0" {
		t.Errorf("manifest = %+v", p.Manifest)
	}
	if want := filepath.Join(root, "notify"); p.Path != want {
		t.Errorf("path = %q, want %q", p.Path, want)
	}
	if want := filepath.Join(root, "notify", "notify"); p.Executable != want {
		t.Errorf("executable = %q, want %q", p.Executable, want)
	}
}

func TestManager_DiscoverSkipsInvalid(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "good", Manifest{Name: "good", Executable: "run", Events: []string{EventCorrect}})
	writeManifest(t, root, "nameless", Manifest{Executable: "run"})

	bad := filepath.Join(root, "broken")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, "plugin.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("not a plugin"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(root, zaptest.NewLogger(t).Sugar())
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := m.List()
	if len(plugins) != 1 || plugins[0].Manifest.Name != "good" {
		t.Errorf("plugins = %v, want only good", plugins)
	}
}

func TestManager_MissingDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope"), nil)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() on a missing dir failed: %v", err)
	}
	if len(m.List()) != 0 {
		t.Error("expected no plugins")
	}
}

func TestManager_Get(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "a", Manifest{Name: "alpha", Executable: "run"})

	m := NewManager(root, nil)
	if err := m.Discover(); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Get("alpha"); err != nil {
		t.Errorf("Get(alpha) error = %v", err)
	}
	if _, err := m.Get("beta"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Get(beta) error = %v, want ErrPluginNotFound", err)
	}
}

func TestManager_ForFiltersAndOrders(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "z", Manifest{Name: "zeta", Executable: "run", Events: []string{EventCompleted}})
	writeManifest(t, root, "a", Manifest{Name: "alpha", Executable: "run", Events: []string{EventCompleted, EventCorrect}})
	writeManifest(t, root, "m", Manifest{Name: "mu", Executable: "run", Events: []string{EventIncorrect}})

	m := NewManager(root, nil)
	if err := m.Discover(); err != nil {
		t.Fatal(err)
	}

	got := m.For(EventCompleted)
	if len(got) != 2 || got[0].Manifest.Name != "alpha" || got[1].Manifest.Name != "zeta" {
		t.Errorf("For(completed) = %v", got)
	}
	if got := m.For(EventCameraError); len(got) != 0 {
		t.Errorf("For(camera-error) = %v, want none", got)
	}
}

func TestManager_RediscoverReplaces(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "a", Manifest{Name: "alpha", Executable: "run"})

	m := NewManager(root, nil)
	if err := m.Discover(); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(filepath.Join(root, "a")); err != nil {
		t.Fatal(err)
	}
	if err := m.Discover(); err != nil {
		t.Fatal(err)
	}
	if len(m.List()) != 0 {
		t.Error("removed plugin still listed after rediscovery")
	}
}
