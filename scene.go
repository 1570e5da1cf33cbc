package trafficview

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/hajimehoshi/ebiten/v2"
)

// EntityStore is the interface for optional ECS integration.
// When set on a Scene, every notification is also forwarded to the ECS.
type EntityStore interface {
	EmitEvent(event Event)
}

// EventType identifies a kind of scene notification.
type EventType uint8

const (
	EventClick         EventType = iota // a click was resolved to domain references
	EventFollow                         // the camera started following an agent
	EventUnfollow                       // the camera returned to free orbit
	EventEntityRemoved                  // an agent left the scene
	EventFeedStatus                     // the event feed changed connection state
)

func (t EventType) String() string {
	switch t {
	case EventClick:
		return "click"
	case EventFollow:
		return "follow"
	case EventUnfollow:
		return "unfollow"
	case EventEntityRemoved:
		return "removed"
	case EventFeedStatus:
		return "feed"
	default:
		return "unknown"
	}
}

// Event is a notification for the UI collaborator. Only the fields of its
// Type are set.
type Event struct {
	Type EventType
	// ID is the followed or removed agent.
	ID string
	// Click is set for EventClick.
	Click *ClickResult
	// Status and Err are set for EventFeedStatus.
	Status string
	Err    error
}

// ClickResult is a resolved click: every domain object under the pointer,
// nearest first. With a modifier held, the ground coordinate under the
// pointer is included when it can be resolved.
type ClickResult struct {
	ScreenX, ScreenY float64
	Button           MouseButton
	Modifiers        KeyModifiers
	Refs             []DomainRef

	World *mgl64.Vec3
	Sim   *SimPoint
	Geo   *LatLng
}

// LightInfo is a signal change. Nil fields are left unchanged; a program
// change is applied before the phase.
type LightInfo struct {
	ProgramID *string
	Phase     *int
	// State shows a raw phase-state string, bypassing the program table.
	State *string
}

// Update is one tick of the event feed.
type Update struct {
	Time float64
	// Full marks a complete snapshot: live agents missing from Agents are
	// removed.
	Full          bool
	Agents        map[string]AgentInfo
	Removed       []string
	Lights        map[string]LightInfo
	VehicleCounts map[string]int
}

// Scene owns the static scene, signals, agents, highlight overlay and camera,
// and is the single place where feed updates and user commands mutate them.
type Scene struct {
	root      *Node
	static    *StaticScene
	lights    *TrafficLightSystem
	agents    *AgentRegistry
	highlight *HighlightEngine
	camera    *Camera
	config    *ConfigStore
	cfgHandle SettingsHandle

	store    EntityStore
	handlers handlerRegistry
	// pending notifications, delivered at the end of the tick
	events []Event

	rng           *rand.Rand
	simTime       float64
	vehicleCounts map[string]int

	centerHighlight bool
	debug           bool
	lastUpdate      time.Duration

	// Render state
	tris    []triCommand
	sortBuf []triCommand
	verts   []ebiten.Vertex
	inds    []uint16

	// Input state
	pointer      pointerState
	dragDeadZone float64
	injectQueue  []pointerEvent
	script       *ScriptRunner

	screenshotQueue []string
	// ScreenshotDir is where Screenshot writes PNG files.
	ScreenshotDir string
}

const defaultCommandCap = 4096

// NewScene assembles a scene around a built static scene. Traffic light
// fixtures are added to ss, agents use models, and cfg drives every
// user-tunable option for the life of the scene.
func NewScene(ss *StaticScene, models *ModelLibrary, cfg *ConfigStore) *Scene {
	if cfg == nil {
		cfg = NewConfigStore(DefaultSettings())
	}
	if models == nil {
		models = NewModelLibrary()
	}
	settings := cfg.Settings()
	s := &Scene{
		root:          NewContainer("root"),
		static:        ss,
		config:        cfg,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		tris:          make([]triCommand, 0, defaultCommandCap),
		sortBuf:       make([]triCommand, 0, defaultCommandCap),
		dragDeadZone:  defaultDragDeadZone,
		ScreenshotDir: "screenshots",
	}
	s.root.AddChild(ss.Root)
	s.lights = NewTrafficLightSystem(ss)
	s.agents = NewAgentRegistry(models, ss.Transform, s.root)
	s.highlight = NewHighlightEngine(ss.Registry, s.agents, settings.HighlightColor)

	s.camera = newCamera(Rect{Width: float64(settings.WindowWidth), Height: float64(settings.WindowHeight)})
	s.camera.onMode = s.onCameraMode
	if lo, hi := ss.Network.Bounds(); hi.X > lo.X || hi.Y > lo.Y {
		extent := math.Max(hi.X-lo.X, hi.Y-lo.Y)
		s.camera.Distance = clamp(extent, s.camera.MinDistance, s.camera.MaxDistance)
		s.camera.updateOrbitEye()
	}

	s.applySettings(settings)
	s.cfgHandle = cfg.Subscribe(s.applySettings)
	updateWorldTransform(s.root, mgl64.Ident4(), true)
	return s
}

// applySettings pushes every setting into the component that uses it.
func (s *Scene) applySettings(st Settings) {
	s.agents.SetColoring(st.speedColoring())
	if s.static.Decorations != nil {
		s.static.Decorations.Visible = st.ShowDecorations
	}
	s.highlight.SetColor(st.HighlightColor)
	s.centerHighlight = st.CenterHighlight

	c := s.camera
	c.FlyDuration = float32(st.FlyDuration)
	if st.FollowDistance > 0 {
		c.FollowDistance = st.FollowDistance
	}
	if st.FollowHeight > 0 {
		c.FollowHeight = st.FollowHeight
	}
	if st.UnfollowHeight > 0 {
		c.UnfollowHeight = st.UnfollowHeight
	}
	if st.Debug != s.debug {
		s.SetDebugMode(st.Debug)
	}
}

// Close detaches the scene from its config store.
func (s *Scene) Close() {
	s.cfgHandle.Remove()
}

// --- Accessors ---

// Root returns the base scene root (static geometry, signals and agents).
func (s *Scene) Root() *Node { return s.root }

// Static returns the static scene.
func (s *Scene) Static() *StaticScene { return s.static }

// Agents returns the agent registry.
func (s *Scene) Agents() *AgentRegistry { return s.agents }

// Lights returns the traffic light system.
func (s *Scene) Lights() *TrafficLightSystem { return s.lights }

// Highlights returns the highlight engine.
func (s *Scene) Highlights() *HighlightEngine { return s.highlight }

// Camera returns the scene camera.
func (s *Scene) Camera() *Camera { return s.camera }

// Config returns the config store driving the scene.
func (s *Scene) Config() *ConfigStore { return s.config }

// SimTime returns the simulation time of the last applied update.
func (s *Scene) SimTime() float64 { return s.simTime }

// VehicleCounts returns a copy of the last reported per-class counts.
func (s *Scene) VehicleCounts() map[string]int {
	out := make(map[string]int, len(s.vehicleCounts))
	for k, v := range s.vehicleCounts {
		out[k] = v
	}
	return out
}

// SetEntityStore sets the optional ECS bridge.
func (s *Scene) SetEntityStore(store EntityStore) {
	s.store = store
}

// SetDebugMode enables or disables debug mode. When enabled, tree sanity
// checks run on node operations and per-frame stats are logged at Debug.
func (s *Scene) SetDebugMode(enabled bool) {
	s.debug = enabled
	globalDebug = enabled
}

// Resize sets the camera viewport.
func (s *Scene) Resize(width, height int) {
	vp := Rect{Width: float64(width), Height: float64(height)}
	if vp != s.camera.Viewport {
		s.camera.Viewport = vp
		s.camera.MarkDirty()
	}
}

// --- Feed ---

// ApplyUpdate applies one feed tick. Agent creations and updates are both
// upserts; removals of unknown ids are ignored. Per-entity failures are
// logged and never affect other entities.
func (s *Scene) ApplyUpdate(u Update) {
	s.simTime = u.Time
	if u.VehicleCounts != nil {
		s.vehicleCounts = make(map[string]int, len(u.VehicleCounts))
		for k, v := range u.VehicleCounts {
			s.vehicleCounts[k] = v
		}
	}

	for _, id := range sortedKeys(u.Agents) {
		if _, _, err := s.agents.Upsert(id, u.Agents[id]); err != nil {
			logger.WithField("vehicle", id).WithError(err).Warn("agent skipped")
		}
	}
	for _, id := range u.Removed {
		s.removeAgent(id)
	}
	if u.Full {
		for _, id := range s.agents.Stale(u.Agents) {
			s.removeAgent(id)
		}
	}

	for _, id := range sortedKeys(u.Lights) {
		s.applyLight(id, u.Lights[id])
	}
	s.agents.Root().refreshTransform()
}

func (s *Scene) applyLight(id string, li LightInfo) {
	log := logger.WithField("signal", id)
	if li.ProgramID != nil {
		if err := s.lights.SetLightProgram(id, *li.ProgramID); err != nil {
			log.WithError(err).Warn("program not applied")
		}
	}
	if li.Phase != nil {
		if err := s.lights.SetPhase(id, *li.Phase); err != nil {
			log.WithError(err).Warn("phase not applied")
		}
	}
	if li.State != nil {
		if err := s.lights.ApplyState(id, *li.State); err != nil {
			log.WithError(err).Warn("state not applied")
		}
	}
}

// RemoveAgent removes agent id. Removing an absent id is a no-op.
func (s *Scene) RemoveAgent(id string) {
	s.removeAgent(id)
}

// removeAgent leaves follow mode before the node goes away, so the camera
// still knows the agent's last pose, and drops any highlight.
func (s *Scene) removeAgent(id string) {
	if _, ok := s.agents.Get(id); !ok {
		return
	}
	if s.camera.FollowedID() == id {
		s.camera.Unfollow()
	}
	s.highlight.forget(id)
	s.agents.Remove(id)
	s.queue(Event{Type: EventEntityRemoved, ID: id})
}

// ReportFeedStatus forwards a feed lifecycle change to the UI collaborator.
func (s *Scene) ReportFeedStatus(status string, err error) {
	s.queue(Event{Type: EventFeedStatus, Status: status, Err: err})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- Commands ---

// Follow attaches the camera to agent id. It returns false when the agent
// is not in the scene.
func (s *Scene) Follow(id string) bool {
	a, ok := s.agents.Get(id)
	if !ok {
		return false
	}
	s.camera.Follow(id, a.Node)
	return true
}

// Unfollow returns the camera to free orbit.
func (s *Scene) Unfollow() {
	s.camera.Unfollow()
}

// Highlight highlights id and, when enabled, recenters the camera on it.
// It returns false when id names nothing in the scene.
func (s *Scene) Highlight(id string) bool {
	focus, ok := s.highlight.Highlight(id)
	if !ok {
		logger.WithField("id", id).Debug("nothing to highlight")
		return false
	}
	if focus != nil && s.centerHighlight {
		s.camera.MoveTo(*focus)
	}
	return true
}

// Unhighlight removes the highlight of id.
func (s *Scene) Unhighlight(id string) {
	s.highlight.Unhighlight(id)
}

// UnhighlightAll removes every highlight. Safe to call with none active.
func (s *Scene) UnhighlightAll() {
	s.highlight.UnhighlightAll()
}

// MoveTo flies to a simulation coordinate. Ignored while following.
func (s *Scene) MoveTo(p SimPoint) {
	s.camera.MoveTo(s.static.Transform.ToRender(p))
}

// MoveToLatLng flies to a geographic coordinate.
func (s *Scene) MoveToLatLng(ll LatLng) error {
	p, err := s.static.Transform.FromLatLng(ll)
	if err != nil {
		return err
	}
	s.MoveTo(p)
	return nil
}

// MoveToEntity moves to an agent or a static object on the next update.
func (s *Scene) MoveToEntity(id string) {
	s.camera.MoveToEntity(id)
}

// MoveToRandomEntityOfType moves to a random visible agent of class.
func (s *Scene) MoveToRandomEntityOfType(class VehicleClass) {
	s.camera.MoveToRandomEntityOfType(class)
}

// MoveToRandomSignal flies to a random traffic light.
func (s *Scene) MoveToRandomSignal() {
	s.camera.MoveToRandomSignal()
}

// SetAgentColor overrides (or with nil clears) the color of agent id.
func (s *Scene) SetAgentColor(id string, c *Color) bool {
	return s.agents.SetColor(id, c)
}

// --- Picking ---

// PickHits returns every resolved hit under a screen point, nearest first.
func (s *Scene) PickHits(sx, sy float64) []Hit {
	if !s.camera.Viewport.Contains(sx, sy) {
		return nil
	}
	ray := s.camera.ScreenRay(sx, sy)
	return pickRay(ray, s.root, s.highlight.Overlay())
}

// Pick returns the domain references under a screen point, nearest first.
// Empty sky yields an empty result.
func (s *Scene) Pick(sx, sy float64) []DomainRef {
	return refsOf(s.PickHits(sx, sy))
}

// Click resolves a click and queues an EventClick for it.
func (s *Scene) Click(sx, sy float64, button MouseButton, mods KeyModifiers) ClickResult {
	hits := s.PickHits(sx, sy)
	res := ClickResult{
		ScreenX: sx, ScreenY: sy,
		Button: button, Modifiers: mods,
		Refs: refsOf(hits),
	}
	if mods != 0 {
		s.resolveCoordinate(&res, hits)
	}
	s.queue(Event{Type: EventClick, Click: &res})
	return res
}

// resolveCoordinate fills the world, simulation and geographic coordinate of
// a click: the nearest hit, else the ground plane. Coordinates that cannot be
// inverted are left nil.
func (s *Scene) resolveCoordinate(res *ClickResult, hits []Hit) {
	var p mgl64.Vec3
	if len(hits) > 0 {
		p = hits[0].Point
	} else {
		ray := s.camera.ScreenRay(res.ScreenX, res.ScreenY)
		if math.Abs(ray.Dir[1]) < 1e-9 {
			return
		}
		t := -ray.Origin[1] / ray.Dir[1]
		if t < 0 {
			return
		}
		p = ray.At(t)
	}
	res.World = &p
	sim, ok := s.static.Transform.ToSim(p)
	if !ok {
		return
	}
	res.Sim = &sim
	if ll, err := s.static.Transform.ToLatLng(sim); err == nil {
		res.Geo = &ll
	}
}

// --- moveResolver ---

func (s *Scene) agentNode(id string) (*Node, bool) {
	a, ok := s.agents.Get(id)
	if !ok || a.Contained {
		return nil, false
	}
	return a.Node, true
}

func (s *Scene) randomAgentOfClass(c VehicleClass) (string, bool) {
	ids := s.agents.IDsOfClass(c)
	if len(ids) == 0 {
		return "", false
	}
	return ids[s.rng.Intn(len(ids))], true
}

func (s *Scene) randomSignal() (string, mgl64.Vec3, bool) {
	ids := s.lights.IDs()
	if len(ids) == 0 {
		return "", mgl64.Vec3{}, false
	}
	// Signals without fixtures have no position; try from a random start.
	start := s.rng.Intn(len(ids))
	for i := range ids {
		id := ids[(start+i)%len(ids)]
		if p, ok := s.lights.Position(id); ok {
			return id, p, true
		}
	}
	return "", mgl64.Vec3{}, false
}

func (s *Scene) staticCentroid(id string) (mgl64.Vec3, bool) {
	if p, ok := s.static.Registry.Centroid(id); ok {
		return p, true
	}
	return s.lights.Position(id)
}

// --- Notifications ---

func (s *Scene) onCameraMode(mode CameraMode, id string) {
	if mode == CameraFollow {
		s.queue(Event{Type: EventFollow, ID: id})
		return
	}
	s.queue(Event{Type: EventUnfollow})
}

// queue defers a notification to the end of the tick so that handlers can
// call back into the scene without re-entering a component mid-operation.
func (s *Scene) queue(e Event) {
	s.events = append(s.events, e)
}

// flushEvents delivers queued notifications. Events queued by handlers are
// delivered on the next tick.
func (s *Scene) flushEvents() {
	if len(s.events) == 0 {
		return
	}
	events := s.events
	s.events = nil
	for _, e := range events {
		s.dispatch(e)
		if s.store != nil {
			s.store.EmitEvent(e)
		}
	}
}

// --- Loop ---

// Update reads input and advances the scene by one ebiten tick.
func (s *Scene) Update() {
	dt := float32(1.0 / float64(ebiten.TPS()))
	s.processInput()
	s.step(dt)
}

// step advances the scene by dt seconds: reloaded settings, scripted
// commands, transforms, camera, then queued notifications.
func (s *Scene) step(dt float32) {
	var t0 time.Time
	if s.debug {
		t0 = time.Now()
	}
	s.config.ApplyPending()
	if s.script != nil {
		s.script.step(s)
	}
	// Refresh world transforms first so camera follow targets and picking
	// have accurate positions this frame.
	updateWorldTransform(s.root, mgl64.Ident4(), false)
	s.camera.update(dt, s)
	updateWorldTransform(s.highlight.Overlay(), mgl64.Ident4(), false)
	s.flushEvents()
	if s.debug {
		s.lastUpdate = time.Since(t0)
	}
}

// Draw renders the base scene and then the highlight overlay.
func (s *Scene) Draw(screen *ebiten.Image) {
	var stats debugStats
	var t0 time.Time
	if s.debug {
		t0 = time.Now()
	}

	s.tris = s.tris[:0]
	vp := s.camera.ViewProjection()
	s.collect(s.root, vp, layerBase)
	s.collect(s.highlight.Overlay(), vp, layerOverlay)

	if s.debug {
		stats.collectTime = time.Since(t0)
		t0 = time.Now()
	}

	s.mergeSort()

	if s.debug {
		stats.sortTime = time.Since(t0)
		t0 = time.Now()
	}

	calls := s.submit(screen)
	s.flushScreenshots(screen)

	if s.debug {
		stats.submitTime = time.Since(t0)
		stats.updateTime = s.lastUpdate
		stats.triangleCount = len(s.tris)
		stats.drawCallCount = calls
		stats.agentCount = s.agents.Len()
		s.root.Walk(func(*Node) bool { stats.nodeCount++; return true })
		s.debugLog(stats)
	}
}
