package trafficview

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// scriptStep is a single action in a command script.
type scriptStep struct {
	Action string  `yaml:"action"`
	Label  string  `yaml:"label,omitempty"`
	ID     string  `yaml:"id,omitempty"`
	Class  string  `yaml:"class,omitempty"`
	X      float64 `yaml:"x,omitempty"`
	Y      float64 `yaml:"y,omitempty"`
	Z      float64 `yaml:"z,omitempty"`
	FromX  float64 `yaml:"fromX,omitempty"`
	FromY  float64 `yaml:"fromY,omitempty"`
	ToX    float64 `yaml:"toX,omitempty"`
	ToY    float64 `yaml:"toY,omitempty"`
	Frames int     `yaml:"frames,omitempty"`
	// Notches is the wheel amount for "wheel".
	Notches float64 `yaml:"notches,omitempty"`
}

type script struct {
	Steps []scriptStep `yaml:"steps"`
}

// ScriptRunner plays a command script one step per frame: injected input,
// scene commands, waits and screenshots. Attach to a Scene via SetScript.
type ScriptRunner struct {
	steps     []scriptStep
	cursor    int
	waitCount int
	done      bool
}

// LoadScript parses a YAML (or JSON) command script.
func LoadScript(data []byte) (*ScriptRunner, error) {
	var sc script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, errors.New("parse script: no steps")
	}
	for i, st := range sc.Steps {
		if !knownAction(st.Action) {
			return nil, fmt.Errorf("parse script: step %d: unknown action %q", i, st.Action)
		}
		if st.Action == "moveToRandom" {
			if _, err := ParseVehicleClass(st.Class); err != nil {
				return nil, fmt.Errorf("parse script: step %d: %w", i, err)
			}
		}
	}
	return &ScriptRunner{steps: sc.Steps}, nil
}

func knownAction(a string) bool {
	switch a {
	case "click", "drag", "wheel", "wait", "screenshot",
		"follow", "unfollow", "highlight", "unhighlight", "unhighlightAll",
		"moveTo", "moveToEntity", "moveToRandom", "moveToRandomSignal":
		return true
	}
	return false
}

// SetScript attaches a runner to the scene. The runner advances from
// Scene.Update before the camera each frame.
func (s *Scene) SetScript(runner *ScriptRunner) {
	s.script = runner
}

// Done reports whether every step has been executed.
func (r *ScriptRunner) Done() bool {
	return r.done
}

// step advances the runner by one frame.
func (r *ScriptRunner) step(s *Scene) {
	if r.done {
		return
	}
	// Wait for pending injections to drain before advancing.
	if len(s.injectQueue) > 0 {
		return
	}
	if r.waitCount > 0 {
		r.waitCount--
		return
	}
	if r.cursor >= len(r.steps) {
		r.done = true
		return
	}

	st := r.steps[r.cursor]
	r.cursor++

	switch st.Action {
	case "click":
		s.InjectClick(st.X, st.Y)
	case "drag":
		s.InjectDrag(st.FromX, st.FromY, st.ToX, st.ToY, max(st.Frames, 2))
	case "wheel":
		s.InjectWheel(st.Notches)
	case "wait":
		if st.Frames > 0 {
			r.waitCount = st.Frames - 1 // this frame counts as one
		}
	case "screenshot":
		s.Screenshot(st.Label)
	case "follow":
		if !s.Follow(st.ID) {
			logger.WithField("vehicle", st.ID).Warn("script: nothing to follow")
		}
	case "unfollow":
		s.Unfollow()
	case "highlight":
		s.Highlight(st.ID)
	case "unhighlight":
		s.Unhighlight(st.ID)
	case "unhighlightAll":
		s.UnhighlightAll()
	case "moveTo":
		s.MoveTo(SimPoint{X: st.X, Y: st.Y, Z: st.Z})
	case "moveToEntity":
		s.MoveToEntity(st.ID)
	case "moveToRandom":
		c, _ := ParseVehicleClass(st.Class)
		s.MoveToRandomEntityOfType(c)
	case "moveToRandomSignal":
		s.MoveToRandomSignal()
	}

	if r.cursor >= len(r.steps) && r.waitCount == 0 && len(s.injectQueue) == 0 {
		r.done = true
	}
}
