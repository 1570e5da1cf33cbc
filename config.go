package trafficview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Settings is every user-tunable option of the viewer.
type Settings struct {
	ColorBySpeed bool    `yaml:"colorBySpeed" toml:"colorBySpeed"`
	SlowColor    Color   `yaml:"slowColor" toml:"slowColor"`
	FastColor    Color   `yaml:"fastColor" toml:"fastColor"`
	MaxSpeed     float64 `yaml:"maxSpeed" toml:"maxSpeed"`

	ShowDecorations   bool  `yaml:"showDecorations" toml:"showDecorations"`
	DecorationSamples int   `yaml:"decorationSamples" toml:"decorationSamples"`
	DecorationSeed    int64 `yaml:"decorationSeed" toml:"decorationSeed"`

	HighlightColor  Color `yaml:"highlightColor" toml:"highlightColor"`
	CenterHighlight bool  `yaml:"centerHighlight" toml:"centerHighlight"`

	FlyDuration    float64 `yaml:"flyDuration" toml:"flyDuration"`
	FollowDistance float64 `yaml:"followDistance" toml:"followDistance"`
	FollowHeight   float64 `yaml:"followHeight" toml:"followHeight"`
	UnfollowHeight float64 `yaml:"unfollowHeight" toml:"unfollowHeight"`

	NetworkPath   string `yaml:"network" toml:"network"`
	AuxPath       string `yaml:"additional" toml:"additional"`
	FeedURL       string `yaml:"feedURL" toml:"feedURL"`
	RecordPath    string `yaml:"record" toml:"record"`
	ReplayPath    string `yaml:"replay" toml:"replay"`
	ReplayDelayMs int    `yaml:"replayDelayMs" toml:"replayDelayMs"`

	WindowWidth  int  `yaml:"windowWidth" toml:"windowWidth"`
	WindowHeight int  `yaml:"windowHeight" toml:"windowHeight"`
	Debug        bool `yaml:"debug" toml:"debug"`
}

// DefaultSettings returns the settings used when no file overrides them.
func DefaultSettings() Settings {
	return Settings{
		ColorBySpeed:      false,
		SlowColor:         Color{0.9, 0.1, 0.1, 1},
		FastColor:         Color{0.1, 0.85, 0.2, 1},
		MaxSpeed:          20,
		ShowDecorations:   true,
		DecorationSamples: 400,
		DecorationSeed:    1,
		HighlightColor:    Color{1, 0.4, 0, 1},
		CenterHighlight:   true,
		FlyDuration:       1.5,
		FollowDistance:    15,
		FollowHeight:      6,
		UnfollowHeight:    40,
		FeedURL:           "ws://localhost:5678/",
		ReplayDelayMs:     100,
		WindowWidth:       1280,
		WindowHeight:      800,
	}
}

// speedColoring extracts the agent coloring rule.
func (s Settings) speedColoring() SpeedColoring {
	return SpeedColoring{Enabled: s.ColorBySpeed, Slow: s.SlowColor, Fast: s.FastColor, MaxSpeed: s.MaxSpeed}
}

// LoadSettings reads a YAML (.yaml, .yml) or TOML (.toml) file over the
// defaults. Fields missing from the file keep their default values.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("trafficview: read settings: %w", err)
	}
	if err := decodeSettings(path, data, &s); err != nil {
		return DefaultSettings(), err
	}
	return s, nil
}

func decodeSettings(path string, data []byte, s *Settings) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, s); err != nil {
			return fmt.Errorf("trafficview: parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, s); err != nil {
			return fmt.Errorf("trafficview: parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("trafficview: unsupported settings format %q", filepath.Ext(path))
	}
	return nil
}

// SettingsHandle removes a subscription.
type SettingsHandle struct {
	id    uint32
	store *ConfigStore
}

// Remove unsubscribes. Safe to call more than once.
func (h SettingsHandle) Remove() {
	if h.store == nil {
		return
	}
	subs := h.store.subs
	for i, s := range subs {
		if s.id == h.id {
			h.store.subs = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

type settingsSub struct {
	id uint32
	fn func(Settings)
}

// ConfigStore holds the current Settings and notifies subscribers of
// changes. Reads, updates and notifications happen on the render loop; the
// file watcher only queues reloaded values for ApplyPending.
type ConfigStore struct {
	current Settings
	subs    []settingsSub
	nextID  uint32
	reloads chan Settings
}

// NewConfigStore creates a store holding s.
func NewConfigStore(s Settings) *ConfigStore {
	return &ConfigStore{current: s, reloads: make(chan Settings, 1)}
}

// Settings returns a copy of the current settings.
func (c *ConfigStore) Settings() Settings {
	return c.current
}

// Update mutates the settings through fn and notifies subscribers.
func (c *ConfigStore) Update(fn func(*Settings)) {
	next := c.current
	fn(&next)
	c.set(next)
}

func (c *ConfigStore) set(s Settings) {
	if s == c.current {
		return
	}
	c.current = s
	for _, sub := range append([]settingsSub(nil), c.subs...) {
		sub.fn(s)
	}
}

// Subscribe registers fn for every future change.
func (c *ConfigStore) Subscribe(fn func(Settings)) SettingsHandle {
	c.nextID++
	c.subs = append(c.subs, settingsSub{id: c.nextID, fn: fn})
	return SettingsHandle{id: c.nextID, store: c}
}

// ApplyPending publishes a settings reload queued by Watch, if any.
func (c *ConfigStore) ApplyPending() bool {
	select {
	case s := <-c.reloads:
		c.set(s)
		return true
	default:
		return false
	}
}

// Watch reloads path whenever it is written and queues the result for
// ApplyPending. Parse errors are logged and the previous settings stay in
// effect. Watch blocks until ctx is done.
func (c *ConfigStore) Watch(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("trafficview: watch settings: %w", err)
	}
	defer w.Close()
	// Editors often replace the file, so watch the directory.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("trafficview: watch settings: %w", err)
	}
	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			s, err := LoadSettings(path)
			if err != nil {
				logger.WithField("path", path).WithError(err).Warn("settings reload failed")
				continue
			}
			// keep only the newest reload
			select {
			case <-c.reloads:
			default:
			}
			c.reloads <- s
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("settings watcher error")
		}
	}
}
