package trafficview

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Box is an axis-aligned bounding box in render space.
type Box struct {
	Min, Max mgl64.Vec3
}

// EmptyBox returns a box that contains nothing; expanding it by a point
// yields a degenerate box around that point.
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: mgl64.Vec3{inf, inf, inf},
		Max: mgl64.Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether max < min on any axis.
func (b Box) IsEmpty() bool {
	return b.Max[0] < b.Min[0] || b.Max[1] < b.Min[1] || b.Max[2] < b.Min[2]
}

// ExpandPoint grows the box to include p.
func (b *Box) ExpandPoint(p mgl64.Vec3) {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
}

// ExpandBox grows the box to include o.
func (b *Box) ExpandBox(o Box) {
	if o.IsEmpty() {
		return
	}
	b.ExpandPoint(o.Min)
	b.ExpandPoint(o.Max)
}

// Center returns the midpoint of the box.
func (b Box) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the extent of the box on each axis.
func (b Box) Size() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

// Transform returns the world-space AABB of the 8 transformed corners.
func (b Box) Transform(m mgl64.Mat4) Box {
	if b.IsEmpty() {
		return b
	}
	out := EmptyBox()
	for i := 0; i < 8; i++ {
		c := mgl64.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			c[0] = b.Max[0]
		}
		if i&2 != 0 {
			c[1] = b.Max[1]
		}
		if i&4 != 0 {
			c[2] = b.Max[2]
		}
		out.ExpandPoint(transformPoint(m, c))
	}
	return out
}

// Ray is a half-line in render space. Dir is expected to be normalized.
type Ray struct {
	Origin mgl64.Vec3
	Dir    mgl64.Vec3
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// Transform maps the ray by m. The direction is not renormalized, so a
// parameter t on the result corresponds to the same point as t on r.
func (r Ray) Transform(m mgl64.Mat4) Ray {
	o := transformPoint(m, r.Origin)
	d := m.Mul4x1(r.Dir.Vec4(0)).Vec3()
	return Ray{Origin: o, Dir: d}
}

// IntersectBox returns the entry distance of the ray into b using the slab
// method. The second result is false when the ray misses.
func (r Ray) IntersectBox(b Box) (float64, bool) {
	if b.IsEmpty() {
		return 0, false
	}
	tmin, tmax := math.Inf(-1), math.Inf(1)
	for i := 0; i < 3; i++ {
		if math.Abs(r.Dir[i]) < 1e-12 {
			if r.Origin[i] < b.Min[i] || r.Origin[i] > b.Max[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / r.Dir[i]
		t1 := (b.Min[i] - r.Origin[i]) * inv
		t2 := (b.Max[i] - r.Origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	if tmax < 0 {
		return 0, false
	}
	if tmin < 0 {
		return 0, true
	}
	return tmin, true
}

// IntersectTriangle implements Möller–Trumbore. Both faces are hit; road
// surfaces are thin and must be pickable from below ground level too.
func (r Ray) IntersectTriangle(a, b, c mgl64.Vec3) (float64, bool) {
	const eps = 1e-12
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := r.Dir.Cross(e2)
	det := e1.Dot(p)
	if det > -eps && det < eps {
		return 0, false
	}
	inv := 1 / det
	s := r.Origin.Sub(a)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t < 0 {
		return 0, false
	}
	return t, true
}

// transformPoint applies an affine 4x4 matrix to a point.
func transformPoint(m mgl64.Mat4, p mgl64.Vec3) mgl64.Vec3 {
	return m.Mul4x1(p.Vec4(1)).Vec3()
}

// yawQuat returns the rotation about the render-space up axis.
func yawQuat(rad float64) mgl64.Quat {
	return mgl64.QuatRotate(rad, mgl64.Vec3{0, 1, 0})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
