package trafficview

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"
)

var (
	// ErrMalformedShape is returned for shapes with too few distinct points.
	ErrMalformedShape = errors.New("trafficview: malformed shape")
	// ErrTriangulation is returned when a polygon cannot be ear-clipped,
	// typically because it self-intersects.
	ErrTriangulation = errors.New("trafficview: polygon triangulation failed")
)

// --- Ribbons ---

// extrudeLine builds a flat ribbon of the given width along pts in the
// render XZ plane. Heights are taken from the points; lift raises the whole
// ribbon. For N points: 2N vertices, 6(N-1) indices.
//
// Interior joins are mitered and clamped to twice the half width so sharp
// corners do not spike.
func extrudeLine(pts []mgl64.Vec3, width, lift float64) *Mesh {
	pts = dedupe3(pts)
	n := len(pts)
	if n < 2 {
		return &Mesh{}
	}
	halfW := width / 2
	verts := make([]mgl64.Vec3, 0, n*2)
	for i := 0; i < n; i++ {
		var nx, nz float64
		switch i {
		case 0:
			nx, nz = leftPerp(pts[0], pts[1])
		case n - 1:
			nx, nz = leftPerp(pts[n-2], pts[n-1])
		default:
			nx0, nz0 := leftPerp(pts[i-1], pts[i])
			nx1, nz1 := leftPerp(pts[i], pts[i+1])
			nx, nz = nx0+nx1, nz0+nz1
			if ln := math.Hypot(nx, nz); ln > 1e-10 {
				nx /= ln
				nz /= ln
			}
			if dot := nx0*nx + nz0*nz; dot > 0.1 {
				nx *= math.Min(1/dot, 2)
				nz *= math.Min(1/dot, 2)
			}
		}
		p := pts[i]
		verts = append(verts,
			mgl64.Vec3{p[0] + nx*halfW, p[1] + lift, p[2] + nz*halfW},
			mgl64.Vec3{p[0] - nx*halfW, p[1] + lift, p[2] - nz*halfW},
		)
	}
	inds := make([]uint32, 0, (n-1)*6)
	for i := 0; i < n-1; i++ {
		v := uint32(i * 2)
		inds = append(inds, v, v+1, v+2, v+1, v+3, v+2)
	}
	return NewMesh(verts, inds)
}

// leftPerp returns the unit vector to the left of travel from a to b,
// seen from above (render +Y).
func leftPerp(a, b mgl64.Vec3) (float64, float64) {
	dx := b[0] - a[0]
	dz := b[2] - a[2]
	ln := math.Hypot(dx, dz)
	if ln < 1e-10 {
		return 0, 0
	}
	return dz / ln, -dx / ln
}

func dedupe3(pts []mgl64.Vec3) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, len(pts))
	for _, p := range pts {
		if len(out) > 0 {
			q := out[len(out)-1]
			if math.Abs(p[0]-q[0]) < 1e-9 && math.Abs(p[2]-q[2]) < 1e-9 {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// --- Polygons ---

// triangulate ear-clips a simple polygon given in 2D and returns indices
// into pts. Either winding is accepted; a trailing point equal to the first
// is ignored. Collinear vertices are dropped.
func triangulate(pts []mgl64.Vec2) ([]uint32, error) {
	n := len(pts)
	if n > 1 && pts[0].ApproxEqual(pts[n-1]) {
		n--
	}
	if n < 3 {
		return nil, ErrMalformedShape
	}
	ring := make(orb.Ring, n)
	for i := 0; i < n; i++ {
		ring[i] = orb.Point{pts[i][0], pts[i][1]}
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if ring.Orientation() == orb.CW {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			idx[i], idx[j] = idx[j], idx[i]
		}
	}

	out := make([]uint32, 0, (n-2)*3)
	for len(idx) > 3 {
		m := len(idx)
		clipped := false
		for i := 0; i < m; i++ {
			a, b, c := idx[(i+m-1)%m], idx[i], idx[(i+1)%m]
			cr := cross2(pts[a], pts[b], pts[c])
			if math.Abs(cr) < 1e-12 {
				idx = append(idx[:i], idx[i+1:]...)
				clipped = true
				break
			}
			if cr < 0 {
				continue
			}
			ear := true
			for _, k := range idx {
				if k == a || k == b || k == c {
					continue
				}
				if pointInTriangle(pts[k], pts[a], pts[b], pts[c]) {
					ear = false
					break
				}
			}
			if !ear {
				continue
			}
			out = append(out, uint32(a), uint32(b), uint32(c))
			idx = append(idx[:i], idx[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			return nil, ErrTriangulation
		}
	}
	if len(idx) == 3 && math.Abs(cross2(pts[idx[0]], pts[idx[1]], pts[idx[2]])) >= 1e-12 {
		out = append(out, uint32(idx[0]), uint32(idx[1]), uint32(idx[2]))
	}
	if len(out) == 0 {
		return nil, ErrMalformedShape
	}
	return out, nil
}

func cross2(a, b, c mgl64.Vec2) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func pointInTriangle(p, a, b, c mgl64.Vec2) bool {
	d1 := cross2(a, b, p)
	d2 := cross2(b, c, p)
	d3 := cross2(c, a, p)
	neg := d1 < 0 || d2 < 0 || d3 < 0
	pos := d1 > 0 || d2 > 0 || d3 > 0
	return !(neg && pos)
}

// xz drops the height of render-space points.
func xz(pts []mgl64.Vec3) []mgl64.Vec2 {
	out := make([]mgl64.Vec2, len(pts))
	for i, p := range pts {
		out[i] = mgl64.Vec2{p[0], p[2]}
	}
	return out
}

// flatPolygon triangulates a render-space outline in place. Each vertex
// keeps its own height plus lift.
func flatPolygon(pts []mgl64.Vec3, lift float64) (*Mesh, error) {
	inds, err := triangulate(xz(pts))
	if err != nil {
		return nil, err
	}
	verts := make([]mgl64.Vec3, len(pts))
	for i, p := range pts {
		verts[i] = mgl64.Vec3{p[0], p[1] + lift, p[2]}
	}
	return NewMesh(verts, inds), nil
}

// extrudedPolygon builds a prism over a footprint: walls in group 0 and a
// roof in group 1 (material slots 0 and 1).
func extrudedPolygon(pts []mgl64.Vec3, base, height float64) (*Mesh, error) {
	if n := len(pts); n > 1 && pts[0].ApproxEqual(pts[n-1]) {
		pts = pts[:n-1]
	}
	roofInds, err := triangulate(xz(pts))
	if err != nil {
		return nil, err
	}
	n := len(pts)
	m := &Mesh{boundsDirty: true}
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		v := uint32(len(m.Positions))
		m.Positions = append(m.Positions,
			mgl64.Vec3{a[0], base, a[2]},
			mgl64.Vec3{b[0], base, b[2]},
			mgl64.Vec3{b[0], base + height, b[2]},
			mgl64.Vec3{a[0], base + height, a[2]},
		)
		m.Indices = append(m.Indices, v, v+1, v+2, v, v+2, v+3)
	}
	m.Groups = append(m.Groups, MaterialGroup{Start: 0, Count: len(m.Indices), Material: 0})
	roofBase := uint32(len(m.Positions))
	for _, p := range pts {
		m.Positions = append(m.Positions, mgl64.Vec3{p[0], base + height, p[2]})
	}
	start := len(m.Indices)
	for _, i := range roofInds {
		m.Indices = append(m.Indices, roofBase+i)
	}
	m.Groups = append(m.Groups, MaterialGroup{Start: start, Count: len(roofInds), Material: 1})
	return m, nil
}

// --- Primitives ---

// boxMesh returns an axis-aligned box with the given size whose bottom face
// is centered on the origin.
func boxMesh(size mgl64.Vec3) *Mesh {
	hx, hz := size[0]/2, size[2]/2
	h := size[1]
	verts := []mgl64.Vec3{
		{-hx, 0, -hz}, {hx, 0, -hz}, {hx, 0, hz}, {-hx, 0, hz},
		{-hx, h, -hz}, {hx, h, -hz}, {hx, h, hz}, {-hx, h, hz},
	}
	inds := []uint32{
		0, 2, 1, 0, 3, 2, // bottom
		4, 5, 6, 4, 6, 7, // top
		0, 1, 5, 0, 5, 4, // north
		2, 3, 7, 2, 7, 6, // south
		1, 2, 6, 1, 6, 5, // east
		3, 0, 4, 3, 4, 7, // west
	}
	return NewMesh(verts, inds)
}

// translateMesh offsets every vertex of m in place.
func translateMesh(m *Mesh, d mgl64.Vec3) *Mesh {
	for i := range m.Positions {
		m.Positions[i] = m.Positions[i].Add(d)
	}
	m.InvalidateBounds()
	return m
}

// setMaterialSlot assigns one slot to every group of m.
func setMaterialSlot(m *Mesh, slot int) *Mesh {
	for g := range m.Groups {
		m.Groups[g].Material = slot
	}
	return m
}

// arrowOutlines are flat arrow footprints in local XZ, pointing local -Z,
// about one meter long.
var arrowOutlines = map[Direction][]mgl64.Vec2{
	DirStraight: {
		{-0.12, 0.5}, {0.12, 0.5}, {0.12, -0.1}, {0.3, -0.1}, {0, -0.5}, {-0.3, -0.1}, {-0.12, -0.1},
	},
	DirLeft: {
		{-0.12, 0.5}, {0.12, 0.5}, {0.12, -0.3}, {-0.2, -0.3}, {-0.2, -0.5}, {-0.55, -0.2},
		{-0.2, 0.1}, {-0.2, -0.06}, {-0.12, -0.06},
	},
	DirRight: {
		{0.12, 0.5}, {-0.12, 0.5}, {-0.12, -0.3}, {0.2, -0.3}, {0.2, -0.5}, {0.55, -0.2},
		{0.2, 0.1}, {0.2, -0.06}, {0.12, -0.06},
	},
	DirTurnaround: {
		{0.1, 0.5}, {0.3, 0.5}, {0.3, -0.5}, {-0.3, -0.5}, {-0.3, 0}, {-0.45, 0},
		{-0.2, 0.35}, {0.05, 0}, {-0.1, 0}, {-0.1, -0.3}, {0.1, -0.3},
	},
}

// arrowMesh returns the indicator arrow for a movement. Partial turns reuse
// the full turn outline.
func arrowMesh(d Direction) (*Mesh, error) {
	switch d {
	case DirPartLeft:
		d = DirLeft
	case DirPartRight:
		d = DirRight
	}
	outline, ok := arrowOutlines[d]
	if !ok {
		return nil, ErrMalformedShape
	}
	pts := make([]mgl64.Vec3, len(outline))
	for i, p := range outline {
		pts[i] = mgl64.Vec3{p[0], 0, p[1]}
	}
	return flatPolygon(pts, 0)
}

// treeMesh is the built-in decoration tree: a trunk (group 0) under a
// square canopy pyramid (group 1).
func treeMesh() *Mesh {
	trunk := boxMesh(mgl64.Vec3{0.3, 2, 0.3})
	verts := []mgl64.Vec3{
		{-1.5, 1.8, -1.5}, {1.5, 1.8, -1.5}, {1.5, 1.8, 1.5}, {-1.5, 1.8, 1.5}, {0, 6, 0},
	}
	inds := []uint32{0, 2, 1, 0, 3, 2, 0, 1, 4, 1, 2, 4, 2, 3, 4, 3, 0, 4}
	canopy := setMaterialSlot(NewMesh(verts, inds), 1)
	return MergeMeshes(trunk, canopy)
}
