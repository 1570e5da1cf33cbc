package trafficview

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Hit is one resolved pick result.
type Hit struct {
	Ref      DomainRef
	Distance float64
	Point    mgl64.Vec3
	Node     *Node
	Triangle int
}

// pickRay intersects ray with every visible, pickable mesh under the given
// roots and returns the hits that resolve to a domain object, nearest
// first. Each object is reported once per node, at its nearest triangle.
//
// A hit resolves through the mesh's per-face refs when it has them, else
// through the node's Owner; anything else is decoration and dropped.
func pickRay(ray Ray, roots ...*Node) []Hit {
	var hits []Hit
	for _, root := range roots {
		if root == nil {
			continue
		}
		root.Walk(func(n *Node) bool {
			if !n.Visible {
				return false
			}
			if n.Type == NodeTypeMesh && n.Pickable && n.Mesh != nil {
				hits = append(hits, pickNode(ray, n)...)
			}
			return true
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	return hits
}

func pickNode(ray Ray, n *Node) []Hit {
	m := n.Mesh
	local := ray.Transform(n.WorldMatrix().Inv())
	if _, ok := local.IntersectBox(m.Bounds()); !ok {
		return nil
	}
	best := make(map[DomainRef]int)
	var out []Hit
	for _, g := range m.Groups {
		if g.Hidden {
			continue
		}
		for t := g.Start / 3; t < (g.Start+g.Count)/3; t++ {
			a, b, c := m.Triangle(t)
			dist, ok := local.IntersectTriangle(a, b, c)
			if !ok {
				continue
			}
			ref, ok := m.FaceRef(t)
			if !ok {
				ref = n.Owner
			}
			if ref.IsZero() {
				continue
			}
			h := Hit{Ref: ref, Distance: dist, Point: ray.At(dist), Node: n, Triangle: t}
			if i, seen := best[ref]; seen {
				if dist < out[i].Distance {
					out[i] = h
				}
				continue
			}
			best[ref] = len(out)
			out = append(out, h)
		}
	}
	return out
}

// refsOf strips hits down to their domain references.
func refsOf(hits []Hit) []DomainRef {
	out := make([]DomainRef, len(hits))
	for i, h := range hits {
		out[i] = h.Ref
	}
	return out
}
