package trafficview

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrNotAdjacent is returned when two lanes expected to touch have footprints
// that do not overlap, i.e. lane order does not match physical layout.
var ErrNotAdjacent = errors.New("trafficview: lanes are not adjacent")

// seamMargin enlarges each lane footprint on every side before intersecting,
// so that touching lanes overlap in a strip centered on their shared border.
const seamMargin = 0.25

// Seam is one straight piece of a divider line, in simulation space.
type Seam struct {
	A, B SimPoint
}

// laneQuad is a convex footprint of one lane segment, CCW in the sim plane.
type laneQuad struct {
	poly   []mgl64.Vec2
	origin mgl64.Vec2
	dir    mgl64.Vec2
	left   mgl64.Vec2
	length float64
	z      float64
}

// laneQuads returns one enlarged quad per segment of the lane shape.
func laneQuads(l *Lane) []laneQuad {
	h := l.EffectiveWidth()/2 + seamMargin
	var out []laneQuad
	for i := 1; i < len(l.Shape); i++ {
		a := mgl64.Vec2{l.Shape[i-1].X, l.Shape[i-1].Y}
		b := mgl64.Vec2{l.Shape[i].X, l.Shape[i].Y}
		seg := b.Sub(a)
		ln := seg.Len()
		if ln < 1e-9 {
			continue
		}
		d := seg.Mul(1 / ln)
		n := mgl64.Vec2{-d[1], d[0]}
		a0 := a.Sub(d.Mul(seamMargin))
		b0 := b.Add(d.Mul(seamMargin))
		out = append(out, laneQuad{
			poly: []mgl64.Vec2{
				a0.Sub(n.Mul(h)), b0.Sub(n.Mul(h)), b0.Add(n.Mul(h)), a0.Add(n.Mul(h)),
			},
			origin: a,
			dir:    d,
			left:   n,
			length: ln,
			z:      (l.Shape[i-1].Z + l.Shape[i].Z) / 2,
		})
	}
	return out
}

// clipConvex clips subject against a convex CCW clipper (Sutherland-Hodgman).
func clipConvex(subject, clipper []mgl64.Vec2) []mgl64.Vec2 {
	if len(subject) < 3 || len(clipper) < 3 {
		return nil
	}
	output := append([]mgl64.Vec2(nil), subject...)
	for i := range clipper {
		if len(output) == 0 {
			return nil
		}
		es, ee := clipper[i], clipper[(i+1)%len(clipper)]
		input := output
		output = make([]mgl64.Vec2, 0, len(input)+2)
		for j := range input {
			cur, next := input[j], input[(j+1)%len(input)]
			curIn := insideEdge(cur, es, ee)
			nextIn := insideEdge(next, es, ee)
			switch {
			case curIn && nextIn:
				output = append(output, next)
			case curIn && !nextIn:
				if ix, ok := lineIntersection(cur, next, es, ee); ok {
					output = append(output, ix)
				}
			case !curIn && nextIn:
				if ix, ok := lineIntersection(cur, next, es, ee); ok {
					output = append(output, ix)
				}
				output = append(output, next)
			}
		}
	}
	if len(output) < 3 {
		return nil
	}
	return output
}

func insideEdge(p, es, ee mgl64.Vec2) bool {
	return (ee[0]-es[0])*(p[1]-es[1])-(ee[1]-es[1])*(p[0]-es[0]) >= 0
}

func lineIntersection(p1, p2, p3, p4 mgl64.Vec2) (mgl64.Vec2, bool) {
	d := (p1[0]-p2[0])*(p3[1]-p4[1]) - (p1[1]-p2[1])*(p3[0]-p4[0])
	if math.Abs(d) < 1e-12 {
		return mgl64.Vec2{}, false
	}
	t := ((p1[0]-p3[0])*(p3[1]-p4[1]) - (p1[1]-p3[1])*(p3[0]-p4[0])) / d
	return p1.Add(p2.Sub(p1).Mul(t)), true
}

// polyCentroid returns the area centroid of a simple polygon.
func polyCentroid(poly []mgl64.Vec2) (mgl64.Vec2, float64) {
	ring := make(orb.Ring, 0, len(poly)+1)
	for _, p := range poly {
		ring = append(ring, orb.Point{p[0], p[1]})
	}
	ring = append(ring, ring[0])
	c, area := planar.CentroidArea(orb.Polygon{ring})
	return mgl64.Vec2{c[0], c[1]}, area
}

// seamsBetween intersects two sets of footprint quads. Each overlap strip
// becomes one seam piece running along the segment of a that produced it,
// at the strip centroid's lateral offset.
func seamsBetween(a, b []laneQuad) []Seam {
	var out []Seam
	for _, qa := range a {
		for _, qb := range b {
			piece := clipConvex(qb.poly, qa.poly)
			if piece == nil {
				continue
			}
			c, area := polyCentroid(piece)
			if area < 1e-6 {
				continue
			}
			tmin, tmax := math.Inf(1), math.Inf(-1)
			for _, p := range piece {
				t := p.Sub(qa.origin).Dot(qa.dir)
				tmin = math.Min(tmin, t)
				tmax = math.Max(tmax, t)
			}
			tmin = math.Max(tmin, 0)
			tmax = math.Min(tmax, qa.length)
			if tmax-tmin < 1e-3 {
				continue
			}
			off := c.Sub(qa.origin).Dot(qa.left)
			p0 := qa.origin.Add(qa.dir.Mul(tmin)).Add(qa.left.Mul(off))
			p1 := qa.origin.Add(qa.dir.Mul(tmax)).Add(qa.left.Mul(off))
			z := (qa.z + qb.z) / 2
			out = append(out, Seam{
				A: SimPoint{X: p0[0], Y: p0[1], Z: z},
				B: SimPoint{X: p1[0], Y: p1[1], Z: z},
			})
		}
	}
	return out
}

// LaneSeams returns the divider lines between consecutive lanes of e, taking
// lane array order as physical order. Pairs whose footprints do not overlap
// are reported through an error wrapping ErrNotAdjacent; seams for the other
// pairs are still returned.
func LaneSeams(e *Edge) ([]Seam, error) {
	var seams []Seam
	var bad []string
	for i := 1; i < len(e.Lanes); i++ {
		s := seamsBetween(laneQuads(&e.Lanes[i-1]), laneQuads(&e.Lanes[i]))
		if len(s) == 0 {
			bad = append(bad, e.Lanes[i-1].ID+"/"+e.Lanes[i].ID)
			continue
		}
		seams = append(seams, s...)
	}
	if len(bad) > 0 {
		return seams, fmt.Errorf("%w: %s", ErrNotAdjacent, strings.Join(bad, ", "))
	}
	return seams, nil
}

// CenterSeam returns the divider between the lane footprints of an edge and
// its opposite-direction twin. Every lane of each side takes part, so the
// result follows the border of the two unions wherever they touch.
func CenterSeam(fwd, back *Edge) ([]Seam, error) {
	var qa, qb []laneQuad
	for i := range fwd.Lanes {
		qa = append(qa, laneQuads(&fwd.Lanes[i])...)
	}
	for i := range back.Lanes {
		qb = append(qb, laneQuads(&back.Lanes[i])...)
	}
	s := seamsBetween(qa, qb)
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotAdjacent, fwd.ID, back.ID)
	}
	return s, nil
}

// oppositeID returns the id of the twin edge under the "E1" / "-E1" naming
// convention.
func oppositeID(id string) string {
	if strings.HasPrefix(id, "-") {
		return id[1:]
	}
	return "-" + id
}
