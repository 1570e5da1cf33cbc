package trafficview

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// --- Constants ---

const (
	defaultDragDeadZone = 4.0 // pixels

	orbitRadPerPixel = 0.005
	panPerPixel      = 0.0015 // fraction of the orbit distance
	dollyPerNotch    = 0.9
)

// --- Pointer state ---

type pointerState struct {
	down     bool
	startX   float64
	startY   float64
	lastX    float64
	lastY    float64
	dragging bool
	button   MouseButton // button captured at press time
}

// --- Handler registry ---

type clickHandler struct {
	id uint32
	fn func(ClickResult)
}

type idHandler struct {
	id uint32
	fn func(string)
}

type feedHandler struct {
	id uint32
	fn func(status string, err error)
}

type handlerRegistry struct {
	click    []clickHandler
	follow   []idHandler
	unfollow []idHandler
	removed  []idHandler
	feed     []feedHandler
	nextID   uint32
}

// CallbackHandle allows removing a registered scene-level callback.
type CallbackHandle struct {
	id    uint32
	reg   *handlerRegistry
	event EventType
}

// Remove unregisters this callback so it no longer fires.
func (h CallbackHandle) Remove() {
	if h.reg == nil {
		return
	}
	switch h.event {
	case EventClick:
		h.reg.click = removeHandler(h.reg.click, h.id, func(c clickHandler) uint32 { return c.id })
	case EventFollow:
		h.reg.follow = removeHandler(h.reg.follow, h.id, func(c idHandler) uint32 { return c.id })
	case EventUnfollow:
		h.reg.unfollow = removeHandler(h.reg.unfollow, h.id, func(c idHandler) uint32 { return c.id })
	case EventEntityRemoved:
		h.reg.removed = removeHandler(h.reg.removed, h.id, func(c idHandler) uint32 { return c.id })
	case EventFeedStatus:
		h.reg.feed = removeHandler(h.reg.feed, h.id, func(c feedHandler) uint32 { return c.id })
	}
}

func removeHandler[H any](s []H, id uint32, idOf func(H) uint32) []H {
	for i := range s {
		if idOf(s[i]) == id {
			copy(s[i:], s[i+1:])
			var zero H
			s[len(s)-1] = zero
			return s[:len(s)-1]
		}
	}
	return s
}

// --- Scene-level event registration ---

// OnClick registers a callback for resolved clicks.
func (s *Scene) OnClick(fn func(ClickResult)) CallbackHandle {
	s.handlers.nextID++
	s.handlers.click = append(s.handlers.click, clickHandler{id: s.handlers.nextID, fn: fn})
	return CallbackHandle{id: s.handlers.nextID, reg: &s.handlers, event: EventClick}
}

// OnFollow registers a callback fired when the camera starts following an
// agent.
func (s *Scene) OnFollow(fn func(id string)) CallbackHandle {
	s.handlers.nextID++
	s.handlers.follow = append(s.handlers.follow, idHandler{id: s.handlers.nextID, fn: fn})
	return CallbackHandle{id: s.handlers.nextID, reg: &s.handlers, event: EventFollow}
}

// OnUnfollow registers a callback fired when the camera returns to free
// orbit. The argument is always empty.
func (s *Scene) OnUnfollow(fn func(string)) CallbackHandle {
	s.handlers.nextID++
	s.handlers.unfollow = append(s.handlers.unfollow, idHandler{id: s.handlers.nextID, fn: fn})
	return CallbackHandle{id: s.handlers.nextID, reg: &s.handlers, event: EventUnfollow}
}

// OnEntityRemoved registers a callback fired after an agent leaves the scene.
func (s *Scene) OnEntityRemoved(fn func(id string)) CallbackHandle {
	s.handlers.nextID++
	s.handlers.removed = append(s.handlers.removed, idHandler{id: s.handlers.nextID, fn: fn})
	return CallbackHandle{id: s.handlers.nextID, reg: &s.handlers, event: EventEntityRemoved}
}

// OnFeedStatus registers a callback for feed lifecycle changes.
func (s *Scene) OnFeedStatus(fn func(status string, err error)) CallbackHandle {
	s.handlers.nextID++
	s.handlers.feed = append(s.handlers.feed, feedHandler{id: s.handlers.nextID, fn: fn})
	return CallbackHandle{id: s.handlers.nextID, reg: &s.handlers, event: EventFeedStatus}
}

// SetDragDeadZone sets the minimum movement in pixels before a drag starts.
func (s *Scene) SetDragDeadZone(pixels float64) {
	s.dragDeadZone = pixels
}

func (s *Scene) dispatch(e Event) {
	switch e.Type {
	case EventClick:
		for _, h := range s.handlers.click {
			h.fn(*e.Click)
		}
	case EventFollow:
		for _, h := range s.handlers.follow {
			h.fn(e.ID)
		}
	case EventUnfollow:
		for _, h := range s.handlers.unfollow {
			h.fn(e.ID)
		}
	case EventEntityRemoved:
		for _, h := range s.handlers.removed {
			h.fn(e.ID)
		}
	case EventFeedStatus:
		for _, h := range s.handlers.feed {
			h.fn(e.Status, e.Err)
		}
	}
}

// --- Input processing ---

// readModifiers reads the current keyboard modifier state.
func readModifiers() KeyModifiers {
	var mods KeyModifiers
	if ebiten.IsKeyPressed(ebiten.KeyShift) {
		mods |= ModShift
	}
	if ebiten.IsKeyPressed(ebiten.KeyControl) {
		mods |= ModCtrl
	}
	if ebiten.IsKeyPressed(ebiten.KeyAlt) {
		mods |= ModAlt
	}
	if ebiten.IsKeyPressed(ebiten.KeyMeta) {
		mods |= ModMeta
	}
	return mods
}

// processInput is called from Scene.Update to handle mouse input. Injected
// events take precedence over the real mouse.
func (s *Scene) processInput() {
	mods := readModifiers()
	if s.processInjectedInput(mods) {
		return
	}
	mx, my := ebiten.CursorPosition()

	var pressed bool
	var button MouseButton
	left := ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
	right := ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight)
	middle := ebiten.IsMouseButtonPressed(ebiten.MouseButtonMiddle)
	if left || right || middle {
		pressed = true
		if left {
			button = MouseButtonLeft
		} else if right {
			button = MouseButtonRight
		} else {
			button = MouseButtonMiddle
		}
	}
	s.processPointer(float64(mx), float64(my), pressed, button, mods)

	if _, wy := ebiten.Wheel(); wy != 0 {
		s.processWheel(wy)
	}
}

// processPointer runs the pointer state machine. A press and release
// without a drag is a click; a drag orbits (left) or pans (right, middle).
func (s *Scene) processPointer(x, y float64, pressed bool, button MouseButton, mods KeyModifiers) {
	ps := &s.pointer
	switch {
	case pressed && !ps.down:
		*ps = pointerState{down: true, startX: x, startY: y, lastX: x, lastY: y, button: button}
	case pressed && ps.down:
		if x == ps.lastX && y == ps.lastY {
			return
		}
		if !ps.dragging && math.Hypot(x-ps.startX, y-ps.startY) > s.dragDeadZone {
			ps.dragging = true
		}
		if ps.dragging {
			s.dragCamera(ps.button, x-ps.lastX, y-ps.lastY)
		}
		ps.lastX, ps.lastY = x, y
	case !pressed && ps.down:
		if !ps.dragging {
			s.Click(x, y, ps.button, mods)
		}
		*ps = pointerState{lastX: x, lastY: y}
	}
}

// dragCamera maps a pointer drag to camera controls. Controls are ignored
// while following.
func (s *Scene) dragCamera(button MouseButton, dx, dy float64) {
	c := s.camera
	if button == MouseButtonLeft {
		c.Orbit(-dx*orbitRadPerPixel, dy*orbitRadPerPixel)
		return
	}
	k := c.Distance * panPerPixel
	c.Pan(-dx*k, dy*k)
}

func (s *Scene) processWheel(notches float64) {
	s.camera.Dolly(math.Pow(dollyPerNotch, notches))
}
