package trafficview

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func testCamera() *Camera {
	return newCamera(Rect{Width: 800, Height: 600})
}

func TestCameraDefaults(t *testing.T) {
	c := testCamera()
	if c.Mode() != CameraFreeOrbit || c.FollowedID() != "" {
		t.Errorf("mode = %v, followed %q", c.Mode(), c.FollowedID())
	}
	assertNear(t, "distance", c.Distance, 400)
	assertNear(t, "eye distance", c.Eye().Sub(c.Target).Len(), 400)
	if c.Eye()[1] <= 0 {
		t.Error("eye should be above ground")
	}
}

func TestCameraDollyClamped(t *testing.T) {
	c := testCamera()
	c.Dolly(0.5)
	assertNear(t, "distance", c.Distance, 200)
	c.Dolly(1e-6)
	assertNear(t, "min", c.Distance, c.MinDistance)
	c.Dolly(1e9)
	assertNear(t, "max", c.Distance, c.MaxDistance)
	c.Dolly(-1)
	assertNear(t, "negative factor ignored", c.Distance, c.MaxDistance)
}

func TestCameraOrbitClamped(t *testing.T) {
	c := testCamera()
	c.Orbit(0.5, 10)
	assertNear(t, "yaw", c.Yaw, 0.5)
	assertNear(t, "pitch", c.Pitch, c.MaxPitch)
	c.Orbit(0, -10)
	assertNear(t, "pitch", c.Pitch, c.MinPitch)
	assertNear(t, "eye distance", c.Eye().Sub(c.Target).Len(), c.Distance)
}

func TestCameraPanFollowsYaw(t *testing.T) {
	c := testCamera()
	c.Pan(10, 0)
	assertVec(t, "right at yaw 0", c.Target, mgl64.Vec3{10, 0, 0})
	c.Pan(0, 5)
	assertVec(t, "forward at yaw 0", c.Target, mgl64.Vec3{10, 0, -5})

	c.Target = mgl64.Vec3{}
	c.Yaw = math.Pi / 2
	c.Pan(0, 1)
	assertVec(t, "forward at yaw 90", c.Target, mgl64.Vec3{-1, 0, 0})
}

func TestCameraFlyTo(t *testing.T) {
	c := testCamera()
	c.FlyTo(mgl64.Vec3{100, 0, -50}, 80)
	if !c.Flying() {
		t.Fatal("FlyTo should start an animation")
	}
	c.update(0.5, nil)
	if !c.Flying() {
		t.Error("animation finished too early")
	}
	if c.Target[0] <= 0 || c.Target[0] >= 100 {
		t.Errorf("midway target = %v", c.Target)
	}
	c.update(2, nil)
	if c.Flying() {
		t.Error("animation should be done")
	}
	assertVec(t, "target", c.Target, mgl64.Vec3{100, 0, -50})
	assertNear(t, "distance", c.Distance, 80)

	// user orbit cancels a move in progress
	c.FlyTo(mgl64.Vec3{}, 0)
	c.Orbit(0.1, 0)
	if c.Flying() {
		t.Error("Orbit should cancel the fly")
	}
}

func TestCameraDollyCancelsFly(t *testing.T) {
	c := testCamera()
	c.FlyTo(mgl64.Vec3{100, 0, -50}, 80)
	c.update(0.25, nil)
	c.Dolly(0.5)
	if c.Flying() {
		t.Fatal("Dolly should cancel the fly")
	}
	want := c.Distance
	target := c.Target
	c.update(2, nil)
	assertNear(t, "distance after update", c.Distance, want)
	assertVec(t, "target after update", c.Target, target)
}

func TestCameraFlyToInstant(t *testing.T) {
	c := testCamera()
	c.FlyDuration = 0
	c.FlyTo(mgl64.Vec3{1, 2, 3}, 0)
	if c.Flying() {
		t.Error("zero duration should jump")
	}
	assertVec(t, "target", c.Target, mgl64.Vec3{1, 2, 3})
	assertNear(t, "distance kept", c.Distance, 400)
}

func followTarget(pos mgl64.Vec3, yaw float64) *Node {
	n := NewMeshNode("agent", boxMesh(mgl64.Vec3{2, 1.5, 4.5}))
	n.SetPosition(pos)
	n.SetYaw(yaw)
	n.refreshTransform()
	return n
}

func TestCameraFollowUnfollow(t *testing.T) {
	c := testCamera()
	var modes []CameraMode
	var ids []string
	c.onMode = func(m CameraMode, id string) {
		modes = append(modes, m)
		ids = append(ids, id)
	}
	n := followTarget(mgl64.Vec3{10, 0, 20}, 0)

	c.Follow("v1", n)
	if c.Mode() != CameraFollow || c.FollowedID() != "v1" {
		t.Fatalf("mode = %v, id %q", c.Mode(), c.FollowedID())
	}
	// behind (+Z for a model facing -Z) and above the agent
	assertVec(t, "eye", c.Eye(), mgl64.Vec3{10, c.FollowHeight, 20 + c.FollowDistance})
	assertVec(t, "target", c.Target, mgl64.Vec3{10, 0, 20})

	// free controls are detached
	yaw, dist := c.Yaw, c.Distance
	c.Orbit(1, 0)
	c.Dolly(0.5)
	if c.Yaw != yaw || c.Distance != dist {
		t.Error("orbit and dolly should be ignored while following")
	}

	// the eye tracks the agent each update
	n.SetPosition(mgl64.Vec3{10, 0, 0})
	n.refreshTransform()
	c.update(1.0/60, nil)
	assertVec(t, "tracked target", c.Target, mgl64.Vec3{10, 0, 0})

	c.Follow("v1", n)
	if len(modes) != 1 {
		t.Errorf("refollowing the same agent notified again: %v", modes)
	}

	c.Unfollow()
	if c.Mode() != CameraFreeOrbit || c.FollowedID() != "" {
		t.Fatalf("mode = %v after Unfollow", c.Mode())
	}
	assertNear(t, "eye height", c.Eye()[1], c.UnfollowHeight)
	assertNear(t, "eye x", c.Eye()[0], 10)
	if c.Target[2] >= 0 {
		t.Errorf("should look ahead along the agent heading, target %v", c.Target)
	}
	if len(modes) != 2 || modes[1] != CameraFreeOrbit || ids[0] != "v1" || ids[1] != "" {
		t.Errorf("notifications = %v %v", modes, ids)
	}

	c.Unfollow()
	if len(modes) != 2 {
		t.Error("Unfollow in free mode should be a no-op")
	}
}

func TestCameraUnfollowWhenNodeDisposed(t *testing.T) {
	c := testCamera()
	n := followTarget(mgl64.Vec3{}, 0)
	c.Follow("v1", n)
	n.Dispose()
	c.update(1.0/60, nil)
	if c.Mode() != CameraFreeOrbit {
		t.Error("camera should drop a disposed follow target")
	}
}

func TestCameraFollowNil(t *testing.T) {
	c := testCamera()
	c.Follow("ghost", nil)
	if c.Mode() != CameraFreeOrbit {
		t.Error("following a nil node should be ignored")
	}
}

// stubResolver answers queued moves from fixed tables.
type stubResolver struct {
	agents  map[string]*Node
	statics map[string]mgl64.Vec3
	signal  mgl64.Vec3
}

func (s stubResolver) agentNode(id string) (*Node, bool) {
	n, ok := s.agents[id]
	return n, ok
}

func (s stubResolver) randomAgentOfClass(VehicleClass) (string, bool) {
	for id := range s.agents {
		return id, true
	}
	return "", false
}

func (s stubResolver) randomSignal() (string, mgl64.Vec3, bool) {
	return "J1", s.signal, true
}

func (s stubResolver) staticCentroid(id string) (mgl64.Vec3, bool) {
	p, ok := s.statics[id]
	return p, ok
}

func TestCameraQueuedMoves(t *testing.T) {
	c := testCamera()
	c.FlyDuration = 0
	res := stubResolver{
		agents:  map[string]*Node{"v1": followTarget(mgl64.Vec3{5, 0, 5}, 0)},
		statics: map[string]mgl64.Vec3{"E1": {-55, 0, 3.2}},
		signal:  mgl64.Vec3{-11, 0, 2},
	}

	c.MoveTo(mgl64.Vec3{1, 0, 1})
	if c.Target != (mgl64.Vec3{}) {
		t.Error("moves wait for update")
	}
	c.update(0, res)
	assertVec(t, "coord", c.Target, mgl64.Vec3{1, 0, 1})

	c.MoveToEntity("E1")
	c.update(0, res)
	assertVec(t, "static", c.Target, mgl64.Vec3{-55, 0, 3.2})

	c.MoveToEntity("v1")
	c.update(0, res)
	assertVec(t, "agent", c.Target, mgl64.Vec3{5, 0, 5})
	if c.Mode() != CameraFreeOrbit {
		t.Error("moving to an agent in free mode should not follow")
	}

	c.Follow("v1", res.agents["v1"])
	c.MoveTo(mgl64.Vec3{99, 0, 99})
	c.update(0, res)
	if c.Mode() != CameraFollow {
		t.Error("MoveTo is ignored while following")
	}

	c.MoveToRandomSignal()
	c.update(0, res)
	if c.Mode() != CameraFreeOrbit {
		t.Error("a signal move leaves follow mode")
	}
	assertVec(t, "signal", c.Target, mgl64.Vec3{-11, 0, 2})

	c.MoveToEntity("nothing")
	c.update(0, res)
	assertVec(t, "unknown id keeps target", c.Target, mgl64.Vec3{-11, 0, 2})
}

func TestCameraProjection(t *testing.T) {
	c := testCamera()
	c.Target = mgl64.Vec3{20, 0, -10}
	c.updateOrbitEye()

	sx, sy, depth, ok := c.WorldToScreen(c.Target)
	if !ok {
		t.Fatal("target should be in front of the camera")
	}
	assertNear(t, "sx", sx, 400)
	assertNear(t, "sy", sy, 300)
	if depth <= -1 || depth >= 1 {
		t.Errorf("depth = %v, want inside the clip range", depth)
	}

	r := c.ScreenRay(400, 300)
	fwd := c.Target.Sub(c.Eye()).Normalize()
	assertVec(t, "ray dir", r.Dir, fwd)
	assertNear(t, "ray length", r.Dir.Len(), 1)

	// a point above the target projects above the screen center
	_, sy2, _, _ := c.WorldToScreen(c.Target.Add(mgl64.Vec3{0, 10, 0}))
	if sy2 >= sy {
		t.Errorf("higher point should be higher on screen: %v >= %v", sy2, sy)
	}

	if _, _, _, ok := c.WorldToScreen(c.Eye().Sub(fwd.Mul(10))); ok {
		t.Error("point behind the camera should not project")
	}
}
