package trafficview

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// MaterialGroup is a contiguous run of triangles drawn with one material slot.
// Start and Count are in indices (multiples of 3).
type MaterialGroup struct {
	Start    int
	Count    int
	Material int
	// Tag names the domain object the group was built from (a lane or
	// junction id). Tags survive MergeMeshes; material slots may not.
	Tag    string
	Hidden bool
}

// Mesh is indexed triangle geometry in local space.
//
// Per-face metadata is stored arena-style: FaceRefs[t] indexes Refs, or is -1
// when triangle t belongs to no domain object.
type Mesh struct {
	Positions []mgl64.Vec3
	Indices   []uint32
	Groups    []MaterialGroup

	FaceRefs []int32
	Refs     []DomainRef

	// refIndex maps Refs back to their positions; it is rebuilt whenever
	// Refs was changed from outside addRef.
	refIndex   map[DomainRef]int32
	refIndexed int

	bounds      Box
	boundsDirty bool
}

// NewMesh wraps positions and indices in a mesh with a single group on slot 0.
func NewMesh(positions []mgl64.Vec3, indices []uint32) *Mesh {
	m := &Mesh{Positions: positions, Indices: indices, boundsDirty: true}
	if len(indices) > 0 {
		m.Groups = []MaterialGroup{{Start: 0, Count: len(indices)}}
	}
	return m
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Triangle returns the three corner positions of triangle t.
func (m *Mesh) Triangle(t int) (a, b, c mgl64.Vec3) {
	i := t * 3
	return m.Positions[m.Indices[i]], m.Positions[m.Indices[i+1]], m.Positions[m.Indices[i+2]]
}

// InvalidateBounds marks the cached bounds as needing recomputation.
// Call this after modifying Positions.
func (m *Mesh) InvalidateBounds() {
	m.boundsDirty = true
}

// Bounds returns the local-space AABB.
func (m *Mesh) Bounds() Box {
	if m.boundsDirty || (m.bounds == Box{}) {
		m.bounds = EmptyBox()
		for _, p := range m.Positions {
			m.bounds.ExpandPoint(p)
		}
		m.boundsDirty = false
	}
	return m.bounds
}

// TagFaces attaches ref to every triangle currently in the mesh.
func (m *Mesh) TagFaces(ref DomainRef) {
	idx := m.addRef(ref)
	m.FaceRefs = make([]int32, m.TriangleCount())
	for i := range m.FaceRefs {
		m.FaceRefs[i] = idx
	}
}

func (m *Mesh) addRef(ref DomainRef) int32 {
	if m.refIndex == nil || m.refIndexed != len(m.Refs) {
		m.refIndex = make(map[DomainRef]int32, len(m.Refs))
		for i, r := range m.Refs {
			if _, ok := m.refIndex[r]; !ok {
				m.refIndex[r] = int32(i)
			}
		}
	}
	idx, ok := m.refIndex[ref]
	if !ok {
		m.Refs = append(m.Refs, ref)
		idx = int32(len(m.Refs) - 1)
		m.refIndex[ref] = idx
	}
	m.refIndexed = len(m.Refs)
	return idx
}

// FaceRef returns the domain reference of triangle t, if any.
func (m *Mesh) FaceRef(t int) (DomainRef, bool) {
	if t < 0 || t >= len(m.FaceRefs) {
		return DomainRef{}, false
	}
	idx := m.FaceRefs[t]
	if idx < 0 || int(idx) >= len(m.Refs) {
		return DomainRef{}, false
	}
	return m.Refs[idx], true
}

// GroupOfTriangle returns the group index containing triangle t, or -1.
func (m *Mesh) GroupOfTriangle(t int) int {
	i := t * 3
	for g, grp := range m.Groups {
		if i >= grp.Start && i < grp.Start+grp.Count {
			return g
		}
	}
	return -1
}

// TagIndex maps every tag to the first group carrying it. Prefer it over
// repeated GroupByTag calls when resolving many tags.
func (m *Mesh) TagIndex() map[string]int {
	idx := make(map[string]int, len(m.Groups))
	for g := range m.Groups {
		if _, ok := idx[m.Groups[g].Tag]; !ok {
			idx[m.Groups[g].Tag] = g
		}
	}
	return idx
}

// GroupByTag returns the index of the first group carrying tag, or -1.
func (m *Mesh) GroupByTag(tag string) int {
	for g := range m.Groups {
		if m.Groups[g].Tag == tag {
			return g
		}
	}
	return -1
}

// ExtractGroup copies the triangles of group g into a new single-group mesh.
// Face metadata is carried over. Vertices are not deduplicated.
func (m *Mesh) ExtractGroup(g int) *Mesh {
	grp := m.Groups[g]
	out := &Mesh{boundsDirty: true}
	out.Positions = make([]mgl64.Vec3, 0, grp.Count)
	out.Indices = make([]uint32, 0, grp.Count)
	for i := grp.Start; i < grp.Start+grp.Count; i++ {
		out.Positions = append(out.Positions, m.Positions[m.Indices[i]])
		out.Indices = append(out.Indices, uint32(len(out.Positions)-1))
	}
	if len(m.FaceRefs) > 0 {
		for t := grp.Start / 3; t < (grp.Start+grp.Count)/3; t++ {
			ref, ok := m.FaceRef(t)
			if !ok {
				out.FaceRefs = append(out.FaceRefs, -1)
				continue
			}
			out.FaceRefs = append(out.FaceRefs, out.addRef(ref))
		}
	}
	out.Groups = []MaterialGroup{{Start: 0, Count: len(out.Indices), Tag: grp.Tag}}
	return out
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Positions:   append([]mgl64.Vec3(nil), m.Positions...),
		Indices:     append([]uint32(nil), m.Indices...),
		Groups:      append([]MaterialGroup(nil), m.Groups...),
		FaceRefs:    append([]int32(nil), m.FaceRefs...),
		Refs:        append([]DomainRef(nil), m.Refs...),
		boundsDirty: true,
	}
	return out
}

// MergeMeshes concatenates parts into one mesh and reorders its groups by
// material slot so that runs sharing a material are contiguous. Group order,
// triangle offsets and material numbering of the result are therefore NOT
// those of the inputs; callers that need a stable slot per group must
// reassign Groups[i].Material by Tag afterwards (see RestoreSlots).
func MergeMeshes(parts ...*Mesh) *Mesh {
	type span struct {
		grp  MaterialGroup
		part *Mesh
		base uint32
	}
	var spans []span
	out := &Mesh{boundsDirty: true}
	for _, p := range parts {
		if p == nil {
			continue
		}
		base := uint32(len(out.Positions))
		out.Positions = append(out.Positions, p.Positions...)
		for _, g := range p.Groups {
			spans = append(spans, span{grp: g, part: p, base: base})
		}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].grp.Material < spans[j].grp.Material
	})

	tagged := false
	for _, p := range parts {
		if p != nil && len(p.FaceRefs) > 0 {
			tagged = true
			break
		}
	}

	for _, s := range spans {
		start := len(out.Indices)
		for i := s.grp.Start; i < s.grp.Start+s.grp.Count; i++ {
			out.Indices = append(out.Indices, s.part.Indices[i]+s.base)
		}
		if tagged {
			for t := s.grp.Start / 3; t < (s.grp.Start+s.grp.Count)/3; t++ {
				ref, ok := s.part.FaceRef(t)
				if !ok {
					out.FaceRefs = append(out.FaceRefs, -1)
					continue
				}
				out.FaceRefs = append(out.FaceRefs, out.addRef(ref))
			}
		}
		g := s.grp
		g.Start = start
		out.Groups = append(out.Groups, g)
	}
	return out
}

// RestoreSlots reassigns each group's material slot from its tag. Groups
// whose tag is not in slots keep their current slot.
func (m *Mesh) RestoreSlots(slots map[string]int) {
	for g := range m.Groups {
		if s, ok := slots[m.Groups[g].Tag]; ok {
			m.Groups[g].Material = s
		}
	}
}
