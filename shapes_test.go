package trafficview

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// meshArea sums the XZ area of every triangle.
func meshArea(m *Mesh) float64 {
	var sum float64
	for tri := 0; tri < m.TriangleCount(); tri++ {
		a, b, c := m.Triangle(tri)
		sum += math.Abs(cross2(mgl64.Vec2{a[0], a[2]}, mgl64.Vec2{b[0], b[2]}, mgl64.Vec2{c[0], c[2]})) / 2
	}
	return sum
}

func TestExtrudeLineCounts(t *testing.T) {
	tests := []struct {
		name  string
		pts   []mgl64.Vec3
		verts int
		inds  int
	}{
		{"two points", []mgl64.Vec3{{0, 0, 0}, {10, 0, 0}}, 4, 6},
		{"polyline", []mgl64.Vec3{{0, 0, 0}, {10, 0, 0}, {10, 0, 10}, {20, 0, 10}}, 8, 18},
		{"duplicate dropped", []mgl64.Vec3{{0, 0, 0}, {0, 0, 0}, {10, 0, 0}}, 4, 6},
		{"single point", []mgl64.Vec3{{1, 0, 1}}, 0, 0},
	}
	for _, tt := range tests {
		m := extrudeLine(tt.pts, 3, 0)
		if len(m.Positions) != tt.verts || len(m.Indices) != tt.inds {
			t.Errorf("%s: %d verts, %d indices; want %d, %d",
				tt.name, len(m.Positions), len(m.Indices), tt.verts, tt.inds)
		}
	}
}

func TestExtrudeLineWidthAndLift(t *testing.T) {
	m := extrudeLine([]mgl64.Vec3{{0, 1, 0}, {10, 1, 0}}, 4, 0.5)
	b := m.Bounds()
	assertVec(t, "min", b.Min, mgl64.Vec3{0, 1.5, -2})
	assertVec(t, "max", b.Max, mgl64.Vec3{10, 1.5, 2})
	assertNear(t, "area", meshArea(m), 40)
}

func TestExtrudeLineMiterClamped(t *testing.T) {
	// a hairpin must not spike further than twice the half width
	m := extrudeLine([]mgl64.Vec3{{0, 0, 0}, {10, 0, 0}, {0, 0, 0.5}}, 2, 0)
	for _, p := range m.Positions {
		if p[0] > 10+2+1e-9 {
			t.Errorf("vertex %v spikes past the miter limit", p)
		}
	}
}

func TestTriangulate(t *testing.T) {
	tests := []struct {
		name string
		pts  []mgl64.Vec2
		tris int
		area float64
	}{
		{"ccw square", []mgl64.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}, 2, 1},
		{"cw square", []mgl64.Vec2{{0, 0}, {0, 1}, {1, 1}, {1, 0}}, 2, 1},
		{"closed ring", []mgl64.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}, 2, 1},
		{"concave L", []mgl64.Vec2{{0, 0}, {2, 0}, {2, 1}, {1, 1}, {1, 2}, {0, 2}}, 4, 3},
		{"collinear midpoint", []mgl64.Vec2{{0, 0}, {1, 0}, {2, 0}, {2, 2}, {0, 2}}, 3, 4},
	}
	for _, tt := range tests {
		inds, err := triangulate(tt.pts)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if len(inds) != tt.tris*3 {
			t.Errorf("%s: %d triangles, want %d", tt.name, len(inds)/3, tt.tris)
		}
		var area float64
		for i := 0; i < len(inds); i += 3 {
			area += math.Abs(cross2(tt.pts[inds[i]], tt.pts[inds[i+1]], tt.pts[inds[i+2]])) / 2
		}
		assertNear(t, tt.name+" area", area, tt.area)
	}
}

func TestTriangulateMalformed(t *testing.T) {
	tests := map[string][]mgl64.Vec2{
		"empty":     nil,
		"two":       {{0, 0}, {1, 1}},
		"closed 3":  {{0, 0}, {1, 1}, {0, 0}},
		"collinear": {{0, 0}, {1, 0}, {2, 0}},
	}
	for name, pts := range tests {
		if _, err := triangulate(pts); !errors.Is(err, ErrMalformedShape) {
			t.Errorf("%s: err = %v, want ErrMalformedShape", name, err)
		}
	}
}

func TestFlatPolygonKeepsHeight(t *testing.T) {
	m, err := flatPolygon([]mgl64.Vec3{{0, 2, 0}, {4, 2, 0}, {4, 2, 4}, {0, 2, 4}}, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range m.Positions {
		assertNear(t, "height", p[1], 2.1)
	}
	assertNear(t, "area", meshArea(m), 16)
}

func TestExtrudedPolygon(t *testing.T) {
	pts := []mgl64.Vec3{{0, 0, 0}, {4, 0, 0}, {4, 0, 2}, {0, 0, 2}, {0, 0, 0}}
	m, err := extrudedPolygon(pts, 1, 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Groups) != 2 {
		t.Fatalf("groups = %d, want walls and roof", len(m.Groups))
	}
	walls, roof := m.Groups[0], m.Groups[1]
	if walls.Material != 0 || roof.Material != 1 {
		t.Errorf("slots = %d, %d; want 0, 1", walls.Material, roof.Material)
	}
	if walls.Count != 4*6 || roof.Count != 2*3 {
		t.Errorf("counts = %d, %d; want 24, 6", walls.Count, roof.Count)
	}
	b := m.Bounds()
	assertNear(t, "base", b.Min[1], 1)
	assertNear(t, "top", b.Max[1], 10)

	if _, err := extrudedPolygon(pts[:2], 0, 3); !errors.Is(err, ErrMalformedShape) {
		t.Errorf("two point footprint: err = %v", err)
	}
}

func TestBoxMesh(t *testing.T) {
	m := boxMesh(mgl64.Vec3{2, 1, 4})
	if m.TriangleCount() != 12 {
		t.Errorf("TriangleCount = %d, want 12", m.TriangleCount())
	}
	b := m.Bounds()
	assertVec(t, "min", b.Min, mgl64.Vec3{-1, 0, -2})
	assertVec(t, "max", b.Max, mgl64.Vec3{1, 1, 2})
}

func TestArrowMesh(t *testing.T) {
	for _, d := range []Direction{DirStraight, DirLeft, DirRight, DirPartLeft, DirPartRight, DirTurnaround} {
		m, err := arrowMesh(d)
		if err != nil {
			t.Errorf("arrowMesh(%v): %v", d, err)
			continue
		}
		b := m.Bounds()
		if b.Size()[2] < 0.9 || b.Size()[2] > 1.1 {
			t.Errorf("arrowMesh(%v) length = %v, want about 1", d, b.Size()[2])
		}
	}
	left, _ := arrowMesh(DirLeft)
	partLeft, _ := arrowMesh(DirPartLeft)
	if left.TriangleCount() != partLeft.TriangleCount() {
		t.Error("partial left should reuse the left outline")
	}
	if _, err := arrowMesh(Direction(99)); !errors.Is(err, ErrMalformedShape) {
		t.Errorf("unknown direction: err = %v", err)
	}
}

func TestTreeMeshGroups(t *testing.T) {
	m := treeMesh()
	if len(m.Groups) != 2 {
		t.Fatalf("groups = %d, want trunk and canopy", len(m.Groups))
	}
	if m.Groups[0].Material != 0 || m.Groups[1].Material != 1 {
		t.Errorf("slots = %d, %d", m.Groups[0].Material, m.Groups[1].Material)
	}
	assertNear(t, "height", m.Bounds().Max[1], 6)
}
