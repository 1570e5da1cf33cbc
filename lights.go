package trafficview

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownSignal   = errors.New("trafficview: unknown traffic light")
	ErrUnknownProgram  = errors.New("trafficview: unknown signal program")
	ErrNoActiveProgram = errors.New("trafficview: no active signal program")
	ErrPhaseOutOfRange = errors.New("trafficview: phase index out of range")
)

// SignalState is the lamp shown by one indicator.
type SignalState uint8

const (
	SignalOff SignalState = iota
	SignalRed
	SignalYellow
	SignalGreen
)

func (s SignalState) String() string {
	switch s {
	case SignalRed:
		return "red"
	case SignalYellow:
		return "yellow"
	case SignalGreen:
		return "green"
	}
	return "off"
}

func (s SignalState) material() MaterialKind {
	switch s {
	case SignalRed:
		return MaterialSignalRed
	case SignalYellow:
		return MaterialSignalYellow
	case SignalGreen:
		return MaterialSignalGreen
	}
	return MaterialSignalOff
}

// parseSignalChar maps one phase-state character. Matching ignores case, so
// major (G) and minor (g) green are both green. Anything else is off.
func parseSignalChar(c byte) SignalState {
	switch c | 0x20 {
	case 'r':
		return SignalRed
	case 'y':
		return SignalYellow
	case 'g':
		return SignalGreen
	}
	return SignalOff
}

// Indicator is the arrow drawn for one controlled link.
type Indicator struct {
	LinkIndex int
	Dir       Direction
	Lane      string
	Node      *Node
	State     SignalState
}

// TrafficLight is one signal: its indicators ordered by link index, its
// program table and the active program.
type TrafficLight struct {
	ID         string
	indicators []*Indicator // by link index; nil where no arrow exists
	programs   map[string][]Phase
	active     string
	hasActive  bool
	phase      int
	root       *Node
}

// ActiveProgram returns the current program id and whether one is set.
func (t *TrafficLight) ActiveProgram() (string, bool) {
	return t.active, t.hasActive
}

// Phase returns the last applied phase index, or -1.
func (t *TrafficLight) Phase() int {
	return t.phase
}

// Programs returns the known program ids, sorted.
func (t *TrafficLight) Programs() []string {
	out := make([]string, 0, len(t.programs))
	for id := range t.programs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NumIndicators returns the length of the indicator list (highest link
// index plus one).
func (t *TrafficLight) NumIndicators() int {
	return len(t.indicators)
}

// Indicator returns the arrow for link i, or nil.
func (t *TrafficLight) Indicator(i int) *Indicator {
	if i < 0 || i >= len(t.indicators) {
		return nil
	}
	return t.indicators[i]
}

// States returns the lamp of every link index; missing arrows read off.
func (t *TrafficLight) States() []SignalState {
	out := make([]SignalState, len(t.indicators))
	for i, ind := range t.indicators {
		if ind != nil {
			out[i] = ind.State
		}
	}
	return out
}

// TrafficLightSystem owns every signal of the network.
type TrafficLightSystem struct {
	lights map[string]*TrafficLight
	order  []string
	lib    *MaterialLibrary
	root   *Node
}

// NewTrafficLightSystem builds fixtures and indicator arrows from the
// connections of the static scene and loads the network's and overlay's
// signal programs. The fixture subtree is attached under ss.Root.
func NewTrafficLightSystem(ss *StaticScene) *TrafficLightSystem {
	s := &TrafficLightSystem{
		lights: make(map[string]*TrafficLight),
		lib:    ss.Library,
		root:   NewContainer("signals"),
	}
	ss.Root.AddChild(s.root)
	s.buildFixtures(ss)
	s.AddLogic(ss.Network.Logics...)
	if ss.Aux != nil {
		s.AddLogic(ss.Aux.Logics...)
	}
	s.root.refreshTransform()
	return s
}

func (s *TrafficLightSystem) light(id string) *TrafficLight {
	tl, ok := s.lights[id]
	if !ok {
		tl = &TrafficLight{ID: id, programs: make(map[string][]Phase), phase: -1}
		tl.root = NewContainer("signal:" + id)
		s.root.AddChild(tl.root)
		s.lights[id] = tl
		s.order = append(s.order, id)
	}
	return tl
}

// buildFixtures places one arrow per controlled link just before the stop
// line of its incoming lane. Arrows sharing a lane are stacked backwards.
// Each signal also gets a pole beside every incoming edge.
func (s *TrafficLightSystem) buildFixtures(ss *StaticScene) {
	net := ss.Network
	ct := ss.Transform
	perLane := make(map[string]int)
	poles := make(map[[2]string]bool)
	arrows := make(map[Direction]*Mesh)
	pole := boxMesh(mgl64.Vec3{0.2, 4, 0.2})

	for _, c := range net.Connections {
		if c.TL == "" {
			continue
		}
		e, ok := net.Edge(c.From)
		if !ok || c.FromLane < 0 || c.FromLane >= len(e.Lanes) {
			logger.WithFields(logrus.Fields{"signal": c.TL, "edge": c.From, "lane": c.FromLane}).
				Warn("connection references a missing lane, no indicator")
			continue
		}
		lane := &e.Lanes[c.FromLane]
		if len(lane.Shape) < 2 {
			continue
		}
		tl := s.light(c.TL)
		ref := DomainRef{Kind: KindTrafficLight, ID: c.TL}

		mesh, ok := arrows[c.Dir]
		if !ok {
			var err error
			mesh, err = arrowMesh(c.Dir)
			if err != nil {
				logger.WithFields(logrus.Fields{"signal": c.TL, "dir": c.Dir.String()}).WithError(err).
					Warn("no arrow for direction")
				continue
			}
			arrows[c.Dir] = mesh
		}

		length := polylineLength(lane.Shape)
		stack := perLane[lane.ID]
		perLane[lane.ID]++
		at, heading := pointAlong(lane.Shape, math.Max(length-1-float64(stack)*1.2, 0))

		n := NewMeshNode(fmt.Sprintf("arrow:%s:%d", c.TL, c.LinkIndex), mesh, s.lib.Get(MaterialSignalOff))
		n.Owner = ref
		p := ct.ToRender(at)
		n.SetPosition(mgl64.Vec3{p[0], p[1] + liftBusStop + 0.01, p[2]})
		n.SetYaw(heading - math.Pi/2)
		tl.root.AddChild(n)

		for len(tl.indicators) <= c.LinkIndex {
			tl.indicators = append(tl.indicators, nil)
		}
		if tl.indicators[c.LinkIndex] != nil {
			logger.WithFields(logrus.Fields{"signal": c.TL, "link": c.LinkIndex}).
				Warn("duplicate link index, keeping the first arrow")
			n.Dispose()
			continue
		}
		tl.indicators[c.LinkIndex] = &Indicator{
			LinkIndex: c.LinkIndex, Dir: c.Dir, Lane: lane.ID, Node: n,
		}

		key := [2]string{c.TL, e.ID}
		if !poles[key] && len(e.Lanes) > 0 && len(e.Lanes[0].Shape) >= 2 {
			poles[key] = true
			outer := &e.Lanes[0]
			end, h := pointAlong(outer.Shape, polylineLength(outer.Shape))
			// right of travel in sim space is (sin h, -cos h)
			off := outer.EffectiveWidth()/2 + 0.6
			end.X += math.Sin(h) * off
			end.Y -= math.Cos(h) * off
			pn := NewMeshNode("pole:"+c.TL, pole, s.lib.Get(MaterialFixture))
			pn.Owner = ref
			pn.SetPosition(ct.ToRender(end))
			tl.root.AddChild(pn)
		}
	}
}

// AddLogic merges programs into the program table. Programs already known
// under the same signal and program id are replaced; others are kept, so
// repeated calls with the same input are idempotent.
func (s *TrafficLightSystem) AddLogic(logics ...TLLogic) {
	for _, l := range logics {
		tl := s.light(l.ID)
		tl.programs[l.ProgramID] = append([]Phase(nil), l.Phases...)
	}
}

// SetLightProgram makes programID the active program of signal id.
func (s *TrafficLightSystem) SetLightProgram(id, programID string) error {
	tl, ok := s.lights[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSignal, id)
	}
	if _, ok := tl.programs[programID]; !ok {
		return fmt.Errorf("%w: %q on signal %q", ErrUnknownProgram, programID, id)
	}
	tl.active = programID
	tl.hasActive = true
	return nil
}

// SetPhase shows phase index of the active program. Characters are applied
// to indicators in link order; indicators beyond the state string and
// characters outside r/y/g read off.
func (s *TrafficLightSystem) SetPhase(id string, index int) error {
	tl, ok := s.lights[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSignal, id)
	}
	if !tl.hasActive {
		return fmt.Errorf("%w: signal %q", ErrNoActiveProgram, id)
	}
	phases := tl.programs[tl.active]
	if index < 0 || index >= len(phases) {
		return fmt.Errorf("%w: %d of %d on signal %q", ErrPhaseOutOfRange, index, len(phases), id)
	}
	s.applyState(tl, phases[index].State)
	tl.phase = index
	return nil
}

// ApplyState shows a raw phase-state string on signal id.
func (s *TrafficLightSystem) ApplyState(id, state string) error {
	tl, ok := s.lights[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSignal, id)
	}
	s.applyState(tl, state)
	return nil
}

func (s *TrafficLightSystem) applyState(tl *TrafficLight, state string) {
	for i, ind := range tl.indicators {
		if ind == nil {
			continue
		}
		st := SignalOff
		if i < len(state) {
			st = parseSignalChar(state[i])
		}
		ind.State = st
		ind.Node.Materials[0] = s.lib.Get(st.material())
	}
}

// Light returns signal id.
func (s *TrafficLightSystem) Light(id string) (*TrafficLight, bool) {
	tl, ok := s.lights[id]
	return tl, ok
}

// IDs returns signal ids in the order they were first seen.
func (s *TrafficLightSystem) IDs() []string {
	return s.order
}

// Position returns the average world position of a signal's indicators.
func (s *TrafficLightSystem) Position(id string) (mgl64.Vec3, bool) {
	tl, ok := s.lights[id]
	if !ok {
		return mgl64.Vec3{}, false
	}
	var sum mgl64.Vec3
	n := 0
	for _, ind := range tl.indicators {
		if ind == nil {
			continue
		}
		sum = sum.Add(ind.Node.WorldPosition())
		n++
	}
	if n == 0 {
		return mgl64.Vec3{}, false
	}
	return sum.Mul(1 / float64(n)), true
}

// Root returns the container holding every fixture.
func (s *TrafficLightSystem) Root() *Node {
	return s.root
}
