package trafficview

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// CameraMode is the active control mode.
type CameraMode uint8

const (
	// CameraFreeOrbit is user-driven orbit, pan and dolly around Target.
	CameraFreeOrbit CameraMode = iota
	// CameraFollow tracks one agent every frame; user controls are detached.
	CameraFollow
)

func (m CameraMode) String() string {
	if m == CameraFollow {
		return "follow"
	}
	return "free"
}

// flyAnim holds the tweens of a programmatic camera move.
type flyAnim struct {
	tx, ty, tz, dist *gween.Tween
	done             [4]bool
}

type moveKind uint8

const (
	moveCoord moveKind = iota
	moveEntity
	moveRandomOfClass
	moveRandomSignal
)

// cameraMove is a programmatic move queued for the next update.
type cameraMove struct {
	kind  moveKind
	coord mgl64.Vec3
	id    string
	class VehicleClass
}

// moveResolver answers the questions queued moves ask about the scene.
type moveResolver interface {
	agentNode(id string) (*Node, bool)
	randomAgentOfClass(c VehicleClass) (string, bool)
	randomSignal() (string, mgl64.Vec3, bool)
	staticCentroid(id string) (mgl64.Vec3, bool)
}

// Camera owns the view: mode, orbit state, follow target and projection.
// Nothing else writes its state; commands are queued and applied in update.
type Camera struct {
	// Target is the focus point shared by orbit, pan and dolly.
	Target mgl64.Vec3
	// Distance from the eye to Target.
	Distance float64
	// Yaw in radians about +Y; 0 looks toward -Z (sim north).
	Yaw float64
	// Pitch in radians below the horizon.
	Pitch float64

	// FOV is the vertical field of view in radians.
	FOV       float64
	Near, Far float64
	Viewport  Rect

	MinDistance, MaxDistance float64
	MinPitch, MaxPitch       float64

	// FollowDistance and FollowHeight place the eye behind and above a
	// followed agent. FollowLerp of 1 snaps; lower values smooth.
	FollowDistance float64
	FollowHeight   float64
	FollowLerp     float64
	// UnfollowHeight is the eye height above the agent's last position when
	// leaving follow mode.
	UnfollowHeight float64
	// FlyDuration is the length of programmatic moves in seconds.
	FlyDuration float32

	mode       CameraMode
	followID   string
	followNode *Node

	eye mgl64.Vec3

	view, proj, viewProj, invViewProj mgl64.Mat4
	dirty                             bool

	fly     *flyAnim
	pending []cameraMove

	// onMode is called after every mode change with the followed id (empty
	// when returning to free orbit).
	onMode func(CameraMode, string)
}

// newCamera creates a camera in free orbit looking at the origin.
func newCamera(viewport Rect) *Camera {
	c := &Camera{
		Distance:       400,
		Pitch:          0.9,
		FOV:            math.Pi / 4,
		Near:           0.5,
		Far:            20000,
		Viewport:       viewport,
		MinDistance:    5,
		MaxDistance:    8000,
		MinPitch:       0.05,
		MaxPitch:       math.Pi/2 - 0.01,
		FollowDistance: 15,
		FollowHeight:   6,
		FollowLerp:     1,
		UnfollowHeight: 40,
		FlyDuration:    1.5,
		dirty:          true,
	}
	c.updateOrbitEye()
	return c
}

// Mode returns the active control mode.
func (c *Camera) Mode() CameraMode {
	return c.mode
}

// FollowedID returns the followed agent id, or "".
func (c *Camera) FollowedID() string {
	if c.mode != CameraFollow {
		return ""
	}
	return c.followID
}

// Eye returns the camera position.
func (c *Camera) Eye() mgl64.Vec3 {
	return c.eye
}

// --- Free orbit controls ---

// Orbit rotates around Target. Ignored while following.
func (c *Camera) Orbit(dYaw, dPitch float64) {
	if c.mode != CameraFreeOrbit {
		return
	}
	c.Yaw += dYaw
	c.Pitch = clamp(c.Pitch+dPitch, c.MinPitch, c.MaxPitch)
	c.fly = nil
	c.updateOrbitEye()
}

// Pan moves Target in the ground plane, relative to the view: dx to the
// right, dz forward. Ignored while following.
func (c *Camera) Pan(dx, dz float64) {
	if c.mode != CameraFreeOrbit {
		return
	}
	sin, cos := math.Sincos(c.Yaw)
	right := mgl64.Vec3{cos, 0, -sin}
	fwd := mgl64.Vec3{-sin, 0, -cos}
	c.Target = c.Target.Add(right.Mul(dx)).Add(fwd.Mul(dz))
	c.fly = nil
	c.updateOrbitEye()
}

// Dolly scales the distance to Target by factor. Ignored while following.
func (c *Camera) Dolly(factor float64) {
	if c.mode != CameraFreeOrbit || factor <= 0 {
		return
	}
	c.Distance = clamp(c.Distance*factor, c.MinDistance, c.MaxDistance)
	c.fly = nil
	c.updateOrbitEye()
}

// forward returns the unit look direction for the orbit angles.
func (c *Camera) forward() mgl64.Vec3 {
	sy, cy := math.Sincos(c.Yaw)
	sp, cp := math.Sincos(c.Pitch)
	return mgl64.Vec3{-sy * cp, -sp, -cy * cp}
}

func (c *Camera) updateOrbitEye() {
	c.eye = c.Target.Sub(c.forward().Mul(c.Distance))
	c.dirty = true
}

// FlyTo animates Target (and Distance when dist > 0) over FlyDuration.
func (c *Camera) FlyTo(target mgl64.Vec3, dist float64) {
	if dist <= 0 {
		dist = c.Distance
	}
	d := c.FlyDuration
	if d <= 0 {
		c.Target = target
		c.Distance = dist
		c.updateOrbitEye()
		return
	}
	c.fly = &flyAnim{
		tx:   gween.New(float32(c.Target[0]), float32(target[0]), d, ease.InOutCubic),
		ty:   gween.New(float32(c.Target[1]), float32(target[1]), d, ease.InOutCubic),
		tz:   gween.New(float32(c.Target[2]), float32(target[2]), d, ease.InOutCubic),
		dist: gween.New(float32(c.Distance), float32(dist), d, ease.InOutCubic),
	}
}

// Flying reports whether a programmatic move is in progress.
func (c *Camera) Flying() bool {
	return c.fly != nil
}

// --- Mode transitions ---

// Follow attaches the camera to an agent node. Free controls are detached
// until Unfollow.
func (c *Camera) Follow(id string, node *Node) {
	if node == nil {
		return
	}
	c.fly = nil
	changed := c.mode != CameraFollow || c.followID != id
	c.mode = CameraFollow
	c.followID = id
	c.followNode = node
	c.updateFollowEye(1)
	if changed && c.onMode != nil {
		c.onMode(CameraFollow, id)
	}
}

// Unfollow returns to free orbit. The eye is placed UnfollowHeight above
// the agent's last position, looking ahead toward the horizon.
func (c *Camera) Unfollow() {
	if c.mode != CameraFollow {
		return
	}
	last := c.Target
	heading := mgl64.Vec3{0, 0, -1}
	if c.followNode != nil && !c.followNode.IsDisposed() {
		last = c.followNode.WorldPosition()
		heading = nodeForward(c.followNode)
	}
	c.mode = CameraFreeOrbit
	c.followID = ""
	c.followNode = nil

	c.Yaw = math.Atan2(-heading[0], -heading[2])
	c.Pitch = c.MinPitch + 0.1
	c.Distance = clamp(c.UnfollowHeight/math.Sin(c.Pitch), c.MinDistance, c.MaxDistance)
	eye := last.Add(mgl64.Vec3{0, c.UnfollowHeight, 0})
	c.Target = eye.Add(c.forward().Mul(c.Distance))
	c.updateOrbitEye()
	if c.onMode != nil {
		c.onMode(CameraFreeOrbit, "")
	}
}

// nodeForward returns the horizontal world-space -Z axis of a node.
func nodeForward(n *Node) mgl64.Vec3 {
	f := n.WorldMatrix().Mul4x1(mgl64.Vec4{0, 0, -1, 0}).Vec3()
	f[1] = 0
	if f.Len() < 1e-9 {
		return mgl64.Vec3{0, 0, -1}
	}
	return f.Normalize()
}

func (c *Camera) updateFollowEye(lerp float64) {
	n := c.followNode
	pos := n.WorldPosition()
	fwd := nodeForward(n)
	wantEye := pos.Sub(fwd.Mul(c.FollowDistance)).Add(mgl64.Vec3{0, c.FollowHeight, 0})
	c.eye = c.eye.Add(wantEye.Sub(c.eye).Mul(lerp))
	c.Target = pos
	c.dirty = true
}

// --- Queued moves ---

// MoveTo queues a fly to a render-space point. Ignored while following.
func (c *Camera) MoveTo(p mgl64.Vec3) {
	c.pending = append(c.pending, cameraMove{kind: moveCoord, coord: p})
}

// MoveToEntity queues a move to an agent or a static object. While
// following, an agent id retargets the follow.
func (c *Camera) MoveToEntity(id string) {
	c.pending = append(c.pending, cameraMove{kind: moveEntity, id: id})
}

// MoveToRandomEntityOfType queues a move to a random visible agent of class.
func (c *Camera) MoveToRandomEntityOfType(class VehicleClass) {
	c.pending = append(c.pending, cameraMove{kind: moveRandomOfClass, class: class})
}

// MoveToRandomSignal queues a fly to a random traffic light. While
// following, this first returns to free orbit.
func (c *Camera) MoveToRandomSignal() {
	c.pending = append(c.pending, cameraMove{kind: moveRandomSignal})
}

func (c *Camera) applyMoves(res moveResolver) {
	moves := c.pending
	c.pending = nil
	for _, m := range moves {
		switch m.kind {
		case moveCoord:
			if c.mode == CameraFollow {
				continue
			}
			c.FlyTo(m.coord, 0)
		case moveEntity:
			if node, ok := res.agentNode(m.id); ok {
				c.toAgent(m.id, node)
				continue
			}
			if p, ok := res.staticCentroid(m.id); ok {
				c.Unfollow()
				c.FlyTo(p, 0)
			}
		case moveRandomOfClass:
			id, ok := res.randomAgentOfClass(m.class)
			if !ok {
				continue
			}
			if node, ok := res.agentNode(id); ok {
				c.toAgent(id, node)
			}
		case moveRandomSignal:
			_, p, ok := res.randomSignal()
			if !ok {
				continue
			}
			c.Unfollow()
			c.FlyTo(p, 0)
		}
	}
}

func (c *Camera) toAgent(id string, node *Node) {
	if c.mode == CameraFollow {
		c.Follow(id, node)
		return
	}
	c.FlyTo(node.WorldPosition(), 0)
}

// update applies queued moves and advances follow and fly animations.
func (c *Camera) update(dt float32, res moveResolver) {
	if res != nil {
		c.applyMoves(res)
	}
	if c.mode == CameraFollow {
		if c.followNode == nil || c.followNode.IsDisposed() {
			c.Unfollow()
		} else {
			c.updateFollowEye(c.FollowLerp)
		}
	}
	if c.fly != nil {
		vals := [4]*float64{&c.Target[0], &c.Target[1], &c.Target[2], &c.Distance}
		tws := [4]*gween.Tween{c.fly.tx, c.fly.ty, c.fly.tz, c.fly.dist}
		for i, tw := range tws {
			if c.fly.done[i] {
				continue
			}
			v, done := tw.Update(dt)
			*vals[i] = float64(v)
			c.fly.done[i] = done
		}
		if c.fly.done == [4]bool{true, true, true, true} {
			c.fly = nil
		}
		c.updateOrbitEye()
	}
}

// --- Projection ---

func (c *Camera) computeMatrices() {
	if !c.dirty {
		return
	}
	c.dirty = false
	up := mgl64.Vec3{0, 1, 0}
	look := c.Target.Sub(c.eye)
	if look.Len() < 1e-9 {
		look = c.forward()
	}
	if math.Abs(look.Normalize().Dot(up)) > 0.999 {
		up = mgl64.Vec3{0, 0, -1}
	}
	c.view = mgl64.LookAtV(c.eye, c.eye.Add(look), up)
	aspect := 1.0
	if c.Viewport.Height > 0 {
		aspect = c.Viewport.Width / c.Viewport.Height
	}
	c.proj = mgl64.Perspective(c.FOV, aspect, c.Near, c.Far)
	c.viewProj = c.proj.Mul4(c.view)
	c.invViewProj = c.viewProj.Inv()
}

// MarkDirty forces the matrices to be recomputed.
func (c *Camera) MarkDirty() {
	c.dirty = true
}

// ViewProjection returns proj * view.
func (c *Camera) ViewProjection() mgl64.Mat4 {
	c.computeMatrices()
	return c.viewProj
}

// ScreenRay returns the world-space ray through a screen pixel.
func (c *Camera) ScreenRay(sx, sy float64) Ray {
	c.computeMatrices()
	nx := 2*(sx-c.Viewport.X)/c.Viewport.Width - 1
	ny := 1 - 2*(sy-c.Viewport.Y)/c.Viewport.Height
	near := c.invViewProj.Mul4x1(mgl64.Vec4{nx, ny, -1, 1})
	far := c.invViewProj.Mul4x1(mgl64.Vec4{nx, ny, 1, 1})
	n := near.Vec3().Mul(1 / near[3])
	f := far.Vec3().Mul(1 / far[3])
	return Ray{Origin: n, Dir: f.Sub(n).Normalize()}
}

// WorldToScreen projects p to screen pixels. ok is false behind the camera.
func (c *Camera) WorldToScreen(p mgl64.Vec3) (sx, sy, depth float64, ok bool) {
	c.computeMatrices()
	clip := c.viewProj.Mul4x1(p.Vec4(1))
	if clip[3] <= 1e-9 {
		return 0, 0, 0, false
	}
	nx, ny, nz := clip[0]/clip[3], clip[1]/clip[3], clip[2]/clip[3]
	sx = c.Viewport.X + (nx+1)/2*c.Viewport.Width
	sy = c.Viewport.Y + (1-ny)/2*c.Viewport.Height
	return sx, sy, nz, true
}
