package trafficview

import "testing"

// drain feeds every injected event through the pointer state machine.
func drain(s *Scene, mods KeyModifiers) int {
	n := 0
	for s.processInjectedInput(mods) {
		n++
	}
	return n
}

func TestInjectClick(t *testing.T) {
	s := newTestScene(t)
	var clicks []ClickResult
	s.OnClick(func(c ClickResult) { clicks = append(clicks, c) })

	s.InjectClick(640, 400)
	if n := drain(s, ModAlt); n != 2 {
		t.Errorf("consumed %d events, want press and release", n)
	}
	s.step(0)
	if len(clicks) != 1 {
		t.Fatalf("clicks = %d, want 1", len(clicks))
	}
	c := clicks[0]
	if c.Button != MouseButtonLeft || c.Modifiers != ModAlt || c.ScreenX != 640 {
		t.Errorf("click = %+v", c)
	}
	if len(c.Refs) == 0 || c.Refs[0].ID != "J1" || c.World == nil {
		t.Errorf("click refs = %v, world = %v", c.Refs, c.World)
	}
}

func TestInjectDragOrbits(t *testing.T) {
	s := newTestScene(t)
	clicked := false
	s.OnClick(func(ClickResult) { clicked = true })

	s.InjectDrag(640, 400, 740, 400, 5)
	drain(s, 0)
	s.step(0)

	// three moves of 25 px each; the release does not drag
	assertNear(t, "yaw", s.Camera().Yaw, -75*orbitRadPerPixel)
	if clicked {
		t.Error("a drag is not a click")
	}
}

func TestDragDeadZone(t *testing.T) {
	s := newTestScene(t)
	clicks := 0
	s.OnClick(func(ClickResult) { clicks++ })

	s.InjectPress(640, 400)
	s.InjectMove(642, 401)
	s.InjectRelease(642, 401)
	drain(s, 0)
	s.step(0)
	if clicks != 1 || s.Camera().Yaw != 0 {
		t.Errorf("small jitter should click: clicks=%d yaw=%v", clicks, s.Camera().Yaw)
	}

	s.SetDragDeadZone(0.5)
	s.InjectPress(640, 400)
	s.InjectMove(642, 400)
	s.InjectRelease(642, 400)
	drain(s, 0)
	s.step(0)
	if clicks != 1 {
		t.Error("movement past the dead zone should drag")
	}
}

func TestPointerPan(t *testing.T) {
	s := newTestScene(t)
	s.processPointer(100, 100, true, MouseButtonRight, 0)
	s.processPointer(150, 100, true, MouseButtonRight, 0)
	s.processPointer(150, 100, false, MouseButtonRight, 0)

	// dragging right moves the target left
	want := -50 * s.Camera().Distance * panPerPixel
	assertNear(t, "target x", s.Camera().Target[0], want)
	assertNear(t, "target z", s.Camera().Target[2], 0)
}

func TestInjectWheel(t *testing.T) {
	s := newTestScene(t)
	s.InjectWheel(1)
	s.InjectWheel(-2)
	s.processInjectedInput(0)
	assertNear(t, "distance", s.Camera().Distance, 200*dollyPerNotch)
	s.processInjectedInput(0)
	assertNear(t, "distance", s.Camera().Distance, 200/dollyPerNotch)
	if s.processInjectedInput(0) {
		t.Error("queue should be empty")
	}
}

func TestInputIgnoredWhileFollowing(t *testing.T) {
	s := newTestScene(t)
	s.ApplyUpdate(Update{Agents: map[string]AgentInfo{"v": vehicle("passenger", 50, 95.2, 90)}})
	s.Follow("v")
	eye := s.Camera().Eye()

	s.InjectDrag(640, 400, 800, 300, 4)
	s.InjectWheel(3)
	drain(s, 0)
	if s.Camera().Eye() != eye {
		t.Error("pointer controls should be ignored while following")
	}
}
