package trafficview

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, file, content string
	}{
		{"yaml", "viewer.yaml", "colorBySpeed: true\nmaxSpeed: 30\nhighlightColor: \"#ff0000\"\nfeedURL: ws://sim:9000/\n"},
		{"yml", "viewer.yml", "colorBySpeed: true\nmaxSpeed: 30\nhighlightColor: \"#ff0000\"\nfeedURL: ws://sim:9000/\n"},
		{"toml", "viewer.toml", "colorBySpeed = true\nmaxSpeed = 30.0\nhighlightColor = \"#ff0000\"\nfeedURL = \"ws://sim:9000/\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadSettings(writeFile(t, dir, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadSettings: %v", err)
			}
			if !s.ColorBySpeed || s.MaxSpeed != 30 || s.FeedURL != "ws://sim:9000/" {
				t.Errorf("settings = %+v", s)
			}
			if s.HighlightColor != (Color{1, 0, 0, 1}) {
				t.Errorf("HighlightColor = %v", s.HighlightColor)
			}
			// untouched fields keep their defaults
			def := DefaultSettings()
			if s.FollowDistance != def.FollowDistance || s.WindowWidth != def.WindowWidth || !s.ShowDecorations {
				t.Errorf("defaults lost: %+v", s)
			}
		})
	}
}

func TestLoadSettingsErrors(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "missing.yaml"),
		writeFile(t, dir, "viewer.json", "{}"),
		writeFile(t, dir, "bad.yaml", "maxSpeed: [1, 2\n"),
		writeFile(t, dir, "bad.toml", "maxSpeed = \"fast\"\n"),
		writeFile(t, dir, "color.yaml", "slowColor: \"#zz\"\n"),
	}
	for _, p := range paths {
		s, err := LoadSettings(p)
		if err == nil {
			t.Errorf("LoadSettings(%s) should fail", filepath.Base(p))
		}
		if s != DefaultSettings() {
			t.Errorf("LoadSettings(%s) should return defaults on error", filepath.Base(p))
		}
	}
}

func TestConfigStoreUpdate(t *testing.T) {
	c := NewConfigStore(DefaultSettings())
	var got []Settings
	h := c.Subscribe(func(s Settings) { got = append(got, s) })

	c.Update(func(s *Settings) { s.MaxSpeed = 50 })
	if len(got) != 1 || got[0].MaxSpeed != 50 {
		t.Fatalf("notifications = %v", got)
	}
	if c.Settings().MaxSpeed != 50 {
		t.Error("Settings should reflect the update")
	}

	// same values: no notification
	c.Update(func(s *Settings) { s.MaxSpeed = 50 })
	if len(got) != 1 {
		t.Errorf("unchanged update notified %d times", len(got))
	}

	h.Remove()
	h.Remove()
	c.Update(func(s *Settings) { s.MaxSpeed = 60 })
	if len(got) != 1 {
		t.Error("removed subscriber should not be notified")
	}
}

func TestConfigStoreSubscribeDuringNotify(t *testing.T) {
	c := NewConfigStore(DefaultSettings())
	calls := 0
	c.Subscribe(func(Settings) {
		calls++
		c.Subscribe(func(Settings) { calls++ })
	})
	c.Update(func(s *Settings) { s.Debug = true })
	if calls != 1 {
		t.Errorf("calls = %d, subscribers added mid-notify wait for the next change", calls)
	}
}

func TestConfigStoreApplyPending(t *testing.T) {
	c := NewConfigStore(DefaultSettings())
	if c.ApplyPending() {
		t.Error("nothing queued")
	}
	next := DefaultSettings()
	next.ShowDecorations = false
	c.reloads <- next
	if !c.ApplyPending() || c.Settings().ShowDecorations {
		t.Error("queued reload should be applied")
	}
}

func TestConfigStoreWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "viewer.yaml", "maxSpeed: 20\n")
	c := NewConfigStore(DefaultSettings())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, path) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()

	// rewrite until the watcher is up and reports the change
	deadline := time.Now().Add(5 * time.Second)
	for !c.ApplyPending() {
		if time.Now().After(deadline) {
			t.Fatal("reload never arrived")
		}
		writeFile(t, dir, "viewer.yaml", "maxSpeed: 80\n")
		time.Sleep(50 * time.Millisecond)
	}
	if c.Settings().MaxSpeed != 80 {
		t.Errorf("MaxSpeed = %v, want 80", c.Settings().MaxSpeed)
	}
}
