package trafficview

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// downRay is a vertical ray from high above a render-space point.
func downRay(x, z float64) Ray {
	return Ray{Origin: mgl64.Vec3{x, 100, z}, Dir: mgl64.Vec3{0, -1, 0}}
}

func TestPickLaneFromCamera(t *testing.T) {
	ss := buildTestStatic(t, nil)
	c := testCamera()
	c.Target = mgl64.Vec3{-55, 0, 4.8}
	c.Distance = 50
	c.Pitch = c.MaxPitch
	c.updateOrbitEye()

	hits := pickRay(c.ScreenRay(400, 300), ss.Root)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1: %v", len(hits), refsOf(hits))
	}
	h := hits[0]
	if h.Ref != (DomainRef{Kind: KindLane, ID: "E1_0", Parent: "E1"}) {
		t.Errorf("ref = %v", h.Ref)
	}
	if h.Node != ss.Lanes {
		t.Error("hit should report the lane node")
	}
	assertNear(t, "hit height", h.Point[1], liftLane)
}

func TestPickSky(t *testing.T) {
	ss := buildTestStatic(t, nil)
	up := Ray{Origin: mgl64.Vec3{0, 10, 0}, Dir: mgl64.Vec3{0, 1, 0}}
	if hits := pickRay(up, ss.Root); len(hits) != 0 {
		t.Errorf("sky hits = %v", refsOf(hits))
	}
	// empty ground
	if hits := pickRay(downRay(80, -80), ss.Root); len(hits) != 0 {
		t.Errorf("empty ground hits = %v", refsOf(hits))
	}
}

func TestPickSeamsSkipped(t *testing.T) {
	ss := buildTestStatic(t, nil)
	// straight down on the E1 lane divider: the seam is not pickable, the
	// lanes on either side are reached through it
	hits := pickRay(downRay(-55, 3.25), ss.Root)
	for _, h := range hits {
		if h.Node == ss.Seams {
			t.Error("seam node should never be hit")
		}
	}
	if len(hits) == 0 {
		t.Fatal("expected a lane under the divider")
	}
	if hits[0].Ref.Kind != KindLane {
		t.Errorf("ref = %v", hits[0].Ref)
	}
}

func TestPickNearestFirst(t *testing.T) {
	ss := buildTestStatic(t, &Auxiliary{Polygons: []Polygon{
		{ID: "tower", Type: "building", Params: map[string]string{"levels": "10"},
			Shape: []SimPoint{{X: 40, Y: 140}, {X: 60, Y: 140}, {X: 60, Y: 160}, {X: 40, Y: 160}}},
		{ID: "plaza", Type: "landuse",
			Shape: []SimPoint{{X: 30, Y: 130}, {X: 70, Y: 130}, {X: 70, Y: 170}, {X: 30, Y: 170}}},
	}})
	hits := pickRay(downRay(-50, -50), ss.Root)
	if len(hits) != 2 {
		t.Fatalf("hits = %v, want roof then plaza", refsOf(hits))
	}
	if hits[0].Ref.ID != "tower" || hits[1].Ref.ID != "plaza" {
		t.Errorf("order = %v", refsOf(hits))
	}
	assertNear(t, "roof distance", hits[0].Distance, 70)
	if hits[0].Distance > hits[1].Distance {
		t.Error("hits must be sorted by distance")
	}
}

func TestPickOneHitPerObject(t *testing.T) {
	ss := buildTestStatic(t, &Auxiliary{Polygons: []Polygon{
		{ID: "box", Type: "building",
			Shape: []SimPoint{{X: 40, Y: 140}, {X: 60, Y: 140}, {X: 60, Y: 160}, {X: 40, Y: 160}}},
	}})
	// a slanted ray crosses a wall and the roof of the same building
	r := Ray{Origin: mgl64.Vec3{-70, 2, -50}, Dir: mgl64.Vec3{1, 0.05, 0}.Normalize()}
	hits := pickRay(r, ss.Root)
	if len(hits) != 1 || hits[0].Ref.ID != "box" {
		t.Fatalf("hits = %v", refsOf(hits))
	}
}

func TestPickHiddenSkipped(t *testing.T) {
	ss := buildTestStatic(t, nil)
	g := ss.Lanes.Mesh.GroupByTag("E1_0")
	ss.Lanes.Mesh.Groups[g].Hidden = true
	if hits := pickRay(downRay(-55, 4.8), ss.Root); len(hits) != 0 {
		t.Errorf("hidden group hits = %v", refsOf(hits))
	}
	ss.Lanes.Mesh.Groups[g].Hidden = false
	ss.Root.Visible = false
	if hits := pickRay(downRay(-55, 4.8), ss.Root); len(hits) != 0 {
		t.Errorf("invisible subtree hits = %v", refsOf(hits))
	}
}

func TestPickNilRoot(t *testing.T) {
	if hits := pickRay(downRay(0, 0), nil); hits != nil {
		t.Errorf("hits = %v", hits)
	}
}
