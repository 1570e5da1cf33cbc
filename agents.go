package trafficview

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Vehicle signal bits as reported by the simulation.
const (
	SignalBlinkerRight = 1 << 0
	SignalBlinkerLeft  = 1 << 1
	SignalEmergency    = 1 << 2
	SignalBrakeLight   = 1 << 3
)

// Blinker is the turn indicator state of an agent.
type Blinker uint8

const (
	BlinkerNone Blinker = iota
	BlinkerLeft
	BlinkerRight
	BlinkerHazard
)

// AgentInfo is a partial agent update. Nil fields are left unchanged.
type AgentInfo struct {
	Type   *string
	Class  *VehicleClass
	X      *float64
	Y      *float64
	Z      *float64
	Angle  *float64 // degrees, 0 = north, clockwise
	Speed  *float64 // m/s
	Length *float64
	Width  *float64
	// Signals is the vehicle signal bitmask.
	Signals *int
	// Contained marks a person riding inside a vehicle.
	Contained *bool
	// Color overrides the displayed color when non-nil.
	Color *Color
}

// Agent is one live moving entity and its visual instance.
type Agent struct {
	ID      string
	Class   VehicleClass
	TypeID  string
	Variant int
	Model   *Model
	Node    *Node

	X, Y, Z   float64
	Angle     float64
	Speed     float64
	Length    float64
	Width     float64
	Signals   int
	Contained bool

	baseColor      Color
	customColor    *Color
	highlightColor *Color
	material       *Material
}

// Color returns the color currently displayed.
func (a *Agent) Color() Color {
	return a.material.Color
}

// CustomColor returns the override color, if any.
func (a *Agent) CustomColor() (Color, bool) {
	if a.customColor == nil {
		return Color{}, false
	}
	return *a.customColor, true
}

// Highlighted reports whether a highlight color is shown over the agent.
func (a *Agent) Highlighted() bool {
	return a.highlightColor != nil
}

// Braking reports whether the brake light is on.
func (a *Agent) Braking() bool {
	return a.Signals&SignalBrakeLight != 0
}

// Blinker returns the turn indicator state.
func (a *Agent) Blinker() Blinker {
	l := a.Signals&SignalBlinkerLeft != 0
	r := a.Signals&SignalBlinkerRight != 0
	switch {
	case a.Signals&SignalEmergency != 0 || (l && r):
		return BlinkerHazard
	case l:
		return BlinkerLeft
	case r:
		return BlinkerRight
	}
	return BlinkerNone
}

// HeadingVector returns the unit direction of travel in render space.
func (a *Agent) HeadingVector() mgl64.Vec3 {
	th := a.Angle * math.Pi / 180
	return mgl64.Vec3{math.Sin(th), 0, -math.Cos(th)}
}

// VariantIndex picks a model variant for id: FNV-1a of the id modulo the
// pool size. The same id always maps to the same variant.
func VariantIndex(id string, poolSize int) int {
	if poolSize <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(poolSize))
}

// SpeedColoring is the speed-gradient rule.
type SpeedColoring struct {
	Enabled  bool
	Slow     Color
	Fast     Color
	MaxSpeed float64
}

// At returns the gradient color for speed.
func (s SpeedColoring) At(speed float64) Color {
	t := 0.0
	if s.MaxSpeed > 0 {
		t = clamp(speed/s.MaxSpeed, 0, 1)
	}
	return s.Slow.Lerp(s.Fast, t)
}

// AgentRegistry owns every live agent.
type AgentRegistry struct {
	agents   map[string]*Agent
	models   *ModelLibrary
	ct       *CoordTransform
	root     *Node
	coloring SpeedColoring
}

// NewAgentRegistry creates an empty registry drawing into a new container
// under parent.
func NewAgentRegistry(models *ModelLibrary, ct *CoordTransform, parent *Node) *AgentRegistry {
	r := &AgentRegistry{
		agents: make(map[string]*Agent),
		models: models,
		ct:     ct,
		root:   NewContainer("agents"),
	}
	if parent != nil {
		parent.AddChild(r.root)
	}
	return r
}

// Root returns the container holding every agent node.
func (r *AgentRegistry) Root() *Node {
	return r.root
}

// resolveClass determines the class of a new agent. An update carrying no
// type information defaults to passenger.
func resolveClass(info AgentInfo) (VehicleClass, string, error) {
	typeID := ""
	if info.Type != nil {
		typeID = *info.Type
	}
	if info.Class != nil {
		return *info.Class, typeID, nil
	}
	if typeID == "" {
		return ClassPassenger, typeID, nil
	}
	c, err := ParseVehicleClass(typeID)
	return c, typeID, err
}

// Upsert creates the agent on first sight or merges info into the existing
// one. The returned bool is true when the agent was created. Agents of an
// unknown class, or a class with no models, are not created.
func (r *AgentRegistry) Upsert(id string, info AgentInfo) (*Agent, bool, error) {
	if a, ok := r.agents[id]; ok {
		r.merge(a, info)
		r.place(a)
		r.RecomputeColor(a)
		return a, false, nil
	}
	class, typeID, err := resolveClass(info)
	if err != nil {
		return nil, false, fmt.Errorf("agent %q: %w", id, err)
	}
	pool := r.models.Pool(class)
	if len(pool) == 0 {
		return nil, false, fmt.Errorf("agent %q: %w: no models for %s", id, ErrUnknownVehicleClass, class)
	}
	variant := VariantIndex(id, len(pool))
	model := pool[variant]

	mats := append([]*Material(nil), model.Materials...)
	if len(mats) == 0 {
		mats = []*Material{NewMaterial(MaterialAgent)}
	}
	mats[0] = mats[0].Clone()

	a := &Agent{
		ID:        id,
		Class:     class,
		TypeID:    typeID,
		Variant:   variant,
		Model:     model,
		baseColor: model.BaseColor,
		material:  mats[0],
	}
	a.Node = NewMeshNode("agent:"+id, model.Mesh, mats...)
	a.Node.Owner = DomainRef{Kind: KindVehicle, ID: id}
	r.root.AddChild(a.Node)
	r.agents[id] = a

	r.merge(a, info)
	r.place(a)
	r.RecomputeColor(a)
	return a, true, nil
}

func (r *AgentRegistry) merge(a *Agent, info AgentInfo) {
	if info.Type != nil {
		a.TypeID = *info.Type
	}
	if info.X != nil {
		a.X = *info.X
	}
	if info.Y != nil {
		a.Y = *info.Y
	}
	if info.Z != nil {
		a.Z = *info.Z
	}
	if info.Angle != nil {
		a.Angle = *info.Angle
	}
	if info.Speed != nil {
		a.Speed = *info.Speed
	}
	if info.Length != nil {
		a.Length = *info.Length
	}
	if info.Width != nil {
		a.Width = *info.Width
	}
	if info.Signals != nil {
		a.Signals = *info.Signals
	}
	if info.Contained != nil {
		a.Contained = *info.Contained
	}
	if info.Color != nil {
		c := *info.Color
		a.customColor = &c
	}
}

// place derives the render transform from the reported front reference
// point: the model is rotated about its own center, then moved back along
// the heading by half its length plus the model offset.
func (r *AgentRegistry) place(a *Agent) {
	length := a.Length
	if length <= 0 {
		length = a.Model.Length
	}
	front := r.ct.ToRender(SimPoint{X: a.X, Y: a.Y, Z: a.Z})
	center := front.Sub(a.HeadingVector().Mul(length/2 + a.Model.Offset))

	a.Node.SetPosition(center)
	a.Node.SetYaw(-a.Angle * math.Pi / 180)
	if a.Model.Length > 0 && length > 0 {
		a.Node.SetScale(mgl64.Vec3{1, 1, length / a.Model.Length})
	}
	a.Node.Visible = !a.Contained
}

// RecomputeColor applies the color rule: highlight, else explicit override,
// else the speed gradient when enabled, else the model's base color.
func (r *AgentRegistry) RecomputeColor(a *Agent) {
	switch {
	case a.highlightColor != nil:
		a.material.Color = *a.highlightColor
	case a.customColor != nil:
		a.material.Color = *a.customColor
	case r.coloring.Enabled:
		a.material.Color = r.coloring.At(a.Speed)
	default:
		a.material.Color = a.baseColor
	}
}

// SetColoring replaces the speed-gradient rule and recolors every agent.
func (r *AgentRegistry) SetColoring(c SpeedColoring) {
	r.coloring = c
	for _, a := range r.agents {
		r.RecomputeColor(a)
	}
}

// Coloring returns the active speed-gradient rule.
func (r *AgentRegistry) Coloring() SpeedColoring {
	return r.coloring
}

// SetColor sets (or with nil clears) the override color of agent id.
func (r *AgentRegistry) SetColor(id string, c *Color) bool {
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	if c == nil {
		a.customColor = nil
	} else {
		v := *c
		a.customColor = &v
	}
	r.RecomputeColor(a)
	return true
}

// SetHighlight sets (or with nil clears) the highlight color of agent id.
// The override color is left untouched.
func (r *AgentRegistry) SetHighlight(id string, c *Color) bool {
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	if c == nil {
		a.highlightColor = nil
	} else {
		v := *c
		a.highlightColor = &v
	}
	r.RecomputeColor(a)
	return true
}

// Remove destroys agent id and its scene node. Removing an absent id is a
// no-op that returns false.
func (r *AgentRegistry) Remove(id string) bool {
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	a.Node.Dispose()
	delete(r.agents, id)
	return true
}

// Stale returns the sorted ids of live agents missing from present.
func (r *AgentRegistry) Stale(present map[string]AgentInfo) []string {
	var out []string
	for id := range r.agents {
		if _, ok := present[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Get returns agent id.
func (r *AgentRegistry) Get(id string) (*Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// Len returns the number of live agents.
func (r *AgentRegistry) Len() int {
	return len(r.agents)
}

// IDs returns the live agent ids, sorted.
func (r *AgentRegistry) IDs() []string {
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IDsOfClass returns the sorted ids of visible agents of class c.
func (r *AgentRegistry) IDsOfClass(c VehicleClass) []string {
	var out []string
	for id, a := range r.agents {
		if a.Class == c && !a.Contained {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
