package trafficview

// pointerEvent is a single injected pointer event in screen coordinates.
// A non-zero wheel value scrolls instead of moving the pointer.
type pointerEvent struct {
	x, y    float64
	pressed bool
	button  MouseButton
	wheel   float64
}

// InjectPress queues a left-button press at the given screen coordinates.
// The event is consumed on the next frame's processInput call.
func (s *Scene) InjectPress(x, y float64) {
	s.injectQueue = append(s.injectQueue, pointerEvent{x: x, y: y, pressed: true, button: MouseButtonLeft})
}

// InjectMove queues a pointer move with the button held down. Use this
// between InjectPress and InjectRelease to simulate a drag.
func (s *Scene) InjectMove(x, y float64) {
	s.injectQueue = append(s.injectQueue, pointerEvent{x: x, y: y, pressed: true, button: MouseButtonLeft})
}

// InjectRelease queues a pointer release at the given screen coordinates.
func (s *Scene) InjectRelease(x, y float64) {
	s.injectQueue = append(s.injectQueue, pointerEvent{x: x, y: y, button: MouseButtonLeft})
}

// InjectClick queues a press followed by a release at the same screen
// coordinates. Consumes two frames.
func (s *Scene) InjectClick(x, y float64) {
	s.InjectPress(x, y)
	s.InjectRelease(x, y)
}

// InjectDrag queues a full drag sequence: press at (fromX, fromY),
// linearly interpolated moves over frames-2 intermediate frames, and
// release at (toX, toY). Minimum frames is 2 (press + release).
func (s *Scene) InjectDrag(fromX, fromY, toX, toY float64, frames int) {
	if frames < 2 {
		frames = 2
	}
	s.InjectPress(fromX, fromY)
	steps := frames - 2
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps+1)
		s.InjectMove(fromX+(toX-fromX)*t, fromY+(toY-fromY)*t)
	}
	s.InjectRelease(toX, toY)
}

// InjectWheel queues a scroll of the given number of notches. Positive
// values zoom in.
func (s *Scene) InjectWheel(notches float64) {
	s.injectQueue = append(s.injectQueue, pointerEvent{wheel: notches})
}

// processInjectedInput pops one event from the inject queue and feeds it
// through the pointer state machine. Returns true if an event was consumed
// (real mouse input should be skipped).
func (s *Scene) processInjectedInput(mods KeyModifiers) bool {
	if len(s.injectQueue) == 0 {
		return false
	}
	evt := s.injectQueue[0]
	copy(s.injectQueue, s.injectQueue[1:])
	s.injectQueue = s.injectQueue[:len(s.injectQueue)-1]

	if evt.wheel != 0 {
		s.processWheel(evt.wheel)
		return true
	}
	s.processPointer(evt.x, evt.y, evt.pressed, evt.button, mods)
	return true
}
