package trafficview

import (
	"errors"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"
)

// Surface heights above the terrain, in meters. Later layers sit higher so
// coplanar surfaces sort consistently.
const (
	liftWater     = -0.05
	liftJunction  = 0.0
	liftArea      = 0.01
	liftLane      = 0.02
	liftCrossing  = 0.03
	liftSeam      = 0.04
	liftBusStop   = 0.05
	seamWidth     = 0.15
	floorHeight   = 3.0
	minJunctionPt = 4
)

// DecorationModel is one kind of scattered scenery and its relative
// frequency among the samples.
type DecorationModel struct {
	Model  *Model
	Weight float64
}

// BuildOptions tunes static scene construction.
type BuildOptions struct {
	// DecorationSamples is the number of candidate positions tried.
	DecorationSamples int
	// Seed makes decoration placement reproducible.
	Seed int64
	// ShowDecorations sets the initial visibility of scattered scenery.
	ShowDecorations bool
}

// StaticScene is everything Build produces: the base scene graph, the
// registry resolving domain ids to geometry, and the per-lane material table.
type StaticScene struct {
	Root        *Node
	Lanes       *Node
	Junctions   *Node
	Seams       *Node
	Areas       *Node
	Water       *Node
	Decorations *Node

	Registry  *StaticMeshRegistry
	Dynamic   *DynamicMaterials
	Library   *MaterialLibrary
	Transform *CoordTransform
	Network   *Network
	Aux       *Auxiliary
}

// Build constructs the static scene once at startup. Malformed features are
// skipped with a warning; only a nil network is an error.
func Build(net *Network, aux *Auxiliary, decor []DecorationModel, opts BuildOptions) (*StaticScene, error) {
	if net == nil {
		return nil, errors.New("trafficview: build: nil network")
	}
	if aux == nil {
		aux = &Auxiliary{}
	}
	b := &builder{
		net: net,
		aux: aux,
		ss: &StaticScene{
			Root:      NewContainer("static"),
			Registry:  NewStaticMeshRegistry(),
			Dynamic:   newDynamicMaterials(),
			Library:   NewMaterialLibrary(),
			Transform: NewCoordTransform(net.Location),
			Network:   net,
			Aux:       aux,
		},
	}
	b.buildLanes()
	b.buildJunctions()
	b.buildSeams()
	b.buildAreas()
	b.buildBusStops()
	b.buildPOIs()
	b.buildWater()
	b.buildDecorations(decor, opts)

	b.ss.Root.refreshTransform()
	b.ss.Registry.Freeze()
	return b.ss, nil
}

type builder struct {
	net *Network
	aux *Auxiliary
	ss  *StaticScene

	// ground holds every surface placed so far, for decoration rejection.
	ground []*Node
}

func (b *builder) render(pts []SimPoint) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(pts))
	for i, p := range pts {
		out[i] = b.ss.Transform.ToRender(p)
	}
	return out
}

func (b *builder) centroidAlong(pts []SimPoint) *mgl64.Vec3 {
	if len(pts) == 0 {
		return nil
	}
	p, _ := pointAlong(pts, polylineLength(pts)/2)
	c := b.ss.Transform.ToRender(p)
	return &c
}

// buildLanes merges every non-internal lane into one mesh. Each lane gets
// its own material slot, restored by tag after the merge reorders groups.
func (b *builder) buildLanes() {
	var parts []*Mesh
	slots := make(map[string]int)
	type laneInfo struct {
		ref      DomainRef
		centroid *mgl64.Vec3
	}
	var lanes []laneInfo

	for ei := range b.net.Edges {
		e := &b.net.Edges[ei]
		if e.Function == EdgeInternal {
			continue
		}
		et := b.net.edgeType(e)
		lift := liftLane
		if e.Function == EdgeCrossing {
			lift = liftCrossing
		}
		for li := range e.Lanes {
			l := &e.Lanes[li]
			if len(l.Shape) < 2 {
				logger.WithFields(logrus.Fields{"lane": l.ID, "points": len(l.Shape)}).
					Warn("lane shape too short, skipped")
				continue
			}
			m := extrudeLine(b.render(l.Shape), l.EffectiveWidth(), lift)
			if m.TriangleCount() == 0 {
				logger.WithField("lane", l.ID).Warn("degenerate lane shape, skipped")
				continue
			}
			slot := b.ss.Dynamic.add(l.ID, b.ss.Library.Get(classifyLane(e, l, et)))
			slots[l.ID] = slot
			m.Groups[0].Material = slot
			m.Groups[0].Tag = l.ID
			ref := DomainRef{Kind: KindLane, ID: l.ID, Parent: e.ID}
			m.TagFaces(ref)
			parts = append(parts, m)
			lanes = append(lanes, laneInfo{ref: ref, centroid: b.centroidAlong(l.Shape)})
		}
	}
	if len(parts) == 0 {
		return
	}
	merged := MergeMeshes(parts...)
	merged.RestoreSlots(slots)

	node := NewMeshNode("lanes", merged, b.ss.Dynamic.Slots...)
	b.ss.Lanes = node
	b.ss.Root.AddChild(node)
	b.ground = append(b.ground, node)

	groups := merged.TagIndex()
	edgeSum := make(map[string]mgl64.Vec3)
	edgeN := make(map[string]int)
	for _, li := range lanes {
		g := groups[li.ref.ID]
		b.ss.Registry.Register(li.ref, MeshRegion{Node: node, Group: g, Centroid: li.centroid})
		if li.centroid != nil {
			edgeSum[li.ref.Parent] = edgeSum[li.ref.Parent].Add(*li.centroid)
			edgeN[li.ref.Parent]++
		}
	}
	for _, li := range lanes {
		g := groups[li.ref.ID]
		var c *mgl64.Vec3
		if n := edgeN[li.ref.Parent]; n > 0 {
			v := edgeSum[li.ref.Parent].Mul(1 / float64(n))
			c = &v
		}
		b.ss.Registry.Register(DomainRef{Kind: KindEdge, ID: li.ref.Parent}, MeshRegion{Node: node, Group: g, Centroid: c})
	}
}

// buildJunctions merges the surfaces of signalized and priority junctions.
func (b *builder) buildJunctions() {
	var parts []*Mesh
	type jInfo struct {
		ref      DomainRef
		centroid *mgl64.Vec3
	}
	var infos []jInfo
	for ji := range b.net.Junctions {
		j := &b.net.Junctions[ji]
		if !j.Type.Renders() {
			continue
		}
		if len(j.Shape) < minJunctionPt {
			logger.WithFields(logrus.Fields{"junction": j.ID, "points": len(j.Shape)}).
				Warn("junction shape has too few points, skipped")
			continue
		}
		shape := make([]SimPoint, len(j.Shape))
		for i, p := range j.Shape {
			if p.Z == 0 {
				p.Z = j.Z
			}
			shape[i] = p
		}
		m, err := flatPolygon(b.render(shape), liftJunction)
		if err != nil {
			logger.WithFields(logrus.Fields{"junction": j.ID}).WithError(err).
				Warn("junction shape skipped")
			continue
		}
		ref := DomainRef{Kind: KindJunction, ID: j.ID}
		m.Groups[0].Tag = j.ID
		m.TagFaces(ref)
		parts = append(parts, m)

		c2, _ := polyCentroid(simRing(shape))
		c := b.ss.Transform.ToRender(SimPoint{X: c2[0], Y: c2[1], Z: j.Z})
		infos = append(infos, jInfo{ref: ref, centroid: &c})
	}
	if len(parts) == 0 {
		return
	}
	merged := MergeMeshes(parts...)
	node := NewMeshNode("junctions", merged, b.ss.Library.Get(MaterialJunction))
	b.ss.Junctions = node
	b.ss.Root.AddChild(node)
	b.ground = append(b.ground, node)
	groups := merged.TagIndex()
	for _, ji := range infos {
		b.ss.Registry.Register(ji.ref, MeshRegion{Node: node, Group: groups[ji.ref.ID], Centroid: ji.centroid})
	}
}

func simRing(pts []SimPoint) []mgl64.Vec2 {
	out := make([]mgl64.Vec2, 0, len(pts))
	for _, p := range pts {
		out = append(out, mgl64.Vec2{p.X, p.Y})
	}
	if n := len(out); n > 1 && out[0].ApproxEqual(out[n-1]) {
		out = out[:n-1]
	}
	return out
}

// buildSeams draws lane dividers (slot 0) and center lines between
// opposite-direction twins (slot 1).
func (b *builder) buildSeams() {
	var parts []*Mesh
	add := func(seams []Seam, slot int) {
		for _, s := range seams {
			m := extrudeLine(b.render([]SimPoint{s.A, s.B}), seamWidth, liftSeam)
			if m.TriangleCount() > 0 {
				parts = append(parts, setMaterialSlot(m, slot))
			}
		}
	}
	for ei := range b.net.Edges {
		e := &b.net.Edges[ei]
		if e.Function != EdgeNormal {
			continue
		}
		if len(e.Lanes) > 1 {
			seams, err := LaneSeams(e)
			if err != nil {
				logger.WithField("edge", e.ID).WithError(err).Warn("lane order does not match lane layout")
			}
			add(seams, 0)
		}
		if len(e.ID) > 0 && e.ID[0] == '-' {
			continue
		}
		twin, ok := b.net.Edge(oppositeID(e.ID))
		if !ok || twin.Function != EdgeNormal {
			continue
		}
		seams, err := CenterSeam(e, twin)
		if err != nil {
			logger.WithField("edge", e.ID).WithError(err).Warn("opposite edges do not touch")
			continue
		}
		add(seams, 1)
	}
	if len(parts) == 0 {
		return
	}
	node := NewMeshNode("seams", MergeMeshes(parts...),
		b.ss.Library.Get(MaterialLaneSeam), b.ss.Library.Get(MaterialCenterSeam))
	node.Pickable = false
	b.ss.Seams = node
	b.ss.Root.AddChild(node)
}

// buildAreas extrudes building footprints by floor count and lays other
// polygons flat. Each polygon is its own node owned by its id.
func (b *builder) buildAreas() {
	if len(b.aux.Polygons) == 0 {
		return
	}
	b.ss.Areas = NewContainer("areas")
	b.ss.Root.AddChild(b.ss.Areas)
	for pi := range b.aux.Polygons {
		p := &b.aux.Polygons[pi]
		pts := b.render(p.Shape)
		c2, _ := polyCentroidSafe(simRing(p.Shape))
		if p.IsBuilding() {
			height := float64(p.Floors()) * floorHeight
			m, err := extrudedPolygon(pts, 0, height)
			if err != nil {
				logger.WithFields(logrus.Fields{"building": p.ID}).WithError(err).Warn("building skipped")
				continue
			}
			wall := b.ss.Library.Get(MaterialBuilding)
			if p.Color != nil {
				wall = wall.Clone()
				wall.Color = *p.Color
			}
			ref := DomainRef{Kind: KindBuilding, ID: p.ID}
			n := NewMeshNode("building:"+p.ID, m, wall, b.ss.Library.Get(MaterialRoof))
			n.Owner = ref
			b.ss.Areas.AddChild(n)
			b.ground = append(b.ground, n)
			c := b.ss.Transform.ToRender(SimPoint{X: c2[0], Y: c2[1], Z: height})
			b.ss.Registry.Register(ref, MeshRegion{Node: n, Group: -1, Centroid: &c})
			continue
		}
		m, err := flatPolygon(pts, liftArea)
		if err != nil {
			logger.WithFields(logrus.Fields{"polygon": p.ID}).WithError(err).Warn("polygon skipped")
			continue
		}
		mat := b.ss.Library.Get(MaterialPOI)
		if p.Color != nil {
			mat = mat.Clone()
			mat.Color = *p.Color
		}
		ref := DomainRef{Kind: KindPOI, ID: p.ID}
		n := NewMeshNode("polygon:"+p.ID, m, mat)
		n.Owner = ref
		b.ss.Areas.AddChild(n)
		b.ground = append(b.ground, n)
		c := b.ss.Transform.ToRender(SimPoint{X: c2[0], Y: c2[1]})
		b.ss.Registry.Register(ref, MeshRegion{Node: n, Group: -1, Centroid: &c})
	}
}

func polyCentroidSafe(ring []mgl64.Vec2) (mgl64.Vec2, bool) {
	if len(ring) < 3 {
		var s mgl64.Vec2
		for _, p := range ring {
			s = s.Add(p)
		}
		if len(ring) > 0 {
			s = s.Mul(1 / float64(len(ring)))
		}
		return s, false
	}
	c, area := polyCentroid(ring)
	return c, area > 0
}

// subPolyline returns the part of pts between two offsets.
func subPolyline(pts []SimPoint, from, to float64) []SimPoint {
	if to < from {
		from, to = to, from
	}
	start, _ := pointAlong(pts, from)
	out := []SimPoint{start}
	var acc float64
	for i := 1; i < len(pts); i++ {
		acc += dist2(pts[i-1], pts[i])
		if acc > from && acc < to {
			out = append(out, pts[i])
		}
	}
	end, _ := pointAlong(pts, to)
	return append(out, end)
}

// buildBusStops draws a platform strip beside the stop's lane.
func (b *builder) buildBusStops() {
	if len(b.aux.BusStops) == 0 {
		return
	}
	parent := NewContainer("busStops")
	b.ss.Root.AddChild(parent)
	for _, s := range b.aux.BusStops {
		lane, _, ok := b.net.Lane(s.Lane)
		if !ok || len(lane.Shape) < 2 {
			logger.WithFields(logrus.Fields{"busStop": s.ID, "lane": s.Lane}).Warn("bus stop lane not found, skipped")
			continue
		}
		seg := subPolyline(lane.Shape, s.StartPos, s.EndPos)
		pts := b.render(seg)
		m := extrudeLine(pts, lane.EffectiveWidth()*0.6, liftBusStop)
		if m.TriangleCount() == 0 {
			logger.WithField("busStop", s.ID).Warn("bus stop has zero length, skipped")
			continue
		}
		ref := DomainRef{Kind: KindBusStop, ID: s.ID, Parent: s.Lane}
		n := NewMeshNode("busStop:"+s.ID, m, b.ss.Library.Get(MaterialBusStop))
		n.Owner = ref
		parent.AddChild(n)
		b.ground = append(b.ground, n)
		b.ss.Registry.Register(ref, MeshRegion{Node: n, Group: -1, Centroid: b.centroidAlong(seg)})
	}
}

// buildPOIs places a marker post at each point of interest.
func (b *builder) buildPOIs() {
	if len(b.aux.POIs) == 0 {
		return
	}
	parent := NewContainer("pois")
	b.ss.Root.AddChild(parent)
	marker := boxMesh(mgl64.Vec3{1, 3, 1})
	for _, p := range b.aux.POIs {
		ref := DomainRef{Kind: KindPOI, ID: p.ID}
		n := NewMeshNode("poi:"+p.ID, marker, b.ss.Library.Get(MaterialPOI))
		n.Owner = ref
		n.SetPosition(b.ss.Transform.ToRender(p.Pos))
		parent.AddChild(n)
		b.ground = append(b.ground, n)
		c := b.ss.Transform.ToRender(p.Pos)
		b.ss.Registry.Register(ref, MeshRegion{Node: n, Group: -1, Centroid: &c})
	}
}

func (b *builder) buildWater() {
	if len(b.aux.Water) == 0 {
		return
	}
	node, err := buildWater(b.aux.Water, b.ss.Transform, b.ss.Library.Get(MaterialWater))
	if err != nil {
		logger.WithError(err).Warn("water skipped")
		return
	}
	node.Pickable = false
	b.ss.Water = node
	b.ss.Root.AddChild(node)
}

// buildDecorations scatters instanced scenery by uniform sampling inside the
// network bounds. A sample is rejected when a downward ray from above hits
// geometry placed earlier or it lands within an accepted instance's
// footprint. Placement is best effort, bounded by the sample count.
func (b *builder) buildDecorations(models []DecorationModel, opts BuildOptions) {
	var total float64
	for _, d := range models {
		if d.Model != nil && d.Weight > 0 {
			total += d.Weight
		}
	}
	if total == 0 || opts.DecorationSamples <= 0 {
		return
	}
	b.ss.Root.refreshTransform()
	grid := newGroundGrid(b.ground, 25)

	rng := rand.New(rand.NewSource(opts.Seed))
	minP, maxP := b.net.Bounds()
	instances := make([][]mgl64.Mat4, len(models))
	type disc struct{ x, z, r float64 }
	var placed []disc

	for i := 0; i < opts.DecorationSamples; i++ {
		x := minP.X + rng.Float64()*(maxP.X-minP.X)
		y := minP.Y + rng.Float64()*(maxP.Y-minP.Y)
		pick := rng.Float64() * total
		mi := 0
		for k, d := range models {
			if d.Model == nil || d.Weight <= 0 {
				continue
			}
			mi = k
			if pick < d.Weight {
				break
			}
			pick -= d.Weight
		}
		yaw := rng.Float64() * 2 * math.Pi
		scale := 0.8 + rng.Float64()*0.4

		p := b.ss.Transform.ToRender(SimPoint{X: x, Y: y})
		r := models[mi].Model.Footprint * scale
		if grid.hit(p[0], p[2], r) {
			continue
		}
		blocked := false
		for _, d := range placed {
			if math.Hypot(d.x-p[0], d.z-p[2]) < d.r+r {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		placed = append(placed, disc{p[0], p[2], r})
		m := mgl64.Translate3D(p[0], p[1], p[2]).
			Mul4(mgl64.HomogRotate3DY(yaw)).
			Mul4(mgl64.Scale3D(scale, scale, scale))
		instances[mi] = append(instances[mi], m)
	}

	b.ss.Decorations = NewContainer("decorations")
	b.ss.Decorations.Visible = opts.ShowDecorations
	b.ss.Root.AddChild(b.ss.Decorations)
	for k, d := range models {
		if len(instances[k]) == 0 {
			continue
		}
		n := NewInstancedNode("decoration:"+d.Model.Name, d.Model.Mesh, instances[k], d.Model.Materials...)
		b.ss.Decorations.AddChild(n)
	}
}

// groundGrid buckets the XZ footprints of triangles for vertical ray tests.
type groundGrid struct {
	cell  float64
	cells map[[2]int][][3]mgl64.Vec2
}

func newGroundGrid(nodes []*Node, cell float64) *groundGrid {
	g := &groundGrid{cell: cell, cells: make(map[[2]int][][3]mgl64.Vec2)}
	for _, n := range nodes {
		if n.Mesh == nil {
			continue
		}
		wm := n.WorldMatrix()
		for t := 0; t < n.Mesh.TriangleCount(); t++ {
			a, bb, c := n.Mesh.Triangle(t)
			a, bb, c = transformPoint(wm, a), transformPoint(wm, bb), transformPoint(wm, c)
			tri := [3]mgl64.Vec2{{a[0], a[2]}, {bb[0], bb[2]}, {c[0], c[2]}}
			x0 := math.Min(tri[0][0], math.Min(tri[1][0], tri[2][0]))
			x1 := math.Max(tri[0][0], math.Max(tri[1][0], tri[2][0]))
			z0 := math.Min(tri[0][1], math.Min(tri[1][1], tri[2][1]))
			z1 := math.Max(tri[0][1], math.Max(tri[1][1], tri[2][1]))
			for cx := g.key(x0); cx <= g.key(x1); cx++ {
				for cz := g.key(z0); cz <= g.key(z1); cz++ {
					k := [2]int{cx, cz}
					g.cells[k] = append(g.cells[k], tri)
				}
			}
		}
	}
	return g
}

func (g *groundGrid) key(v float64) int {
	return int(math.Floor(v / g.cell))
}

// hit reports whether a vertical ray at (x, z), or at any of four points at
// radius r around it, crosses a bucketed triangle.
func (g *groundGrid) hit(x, z, r float64) bool {
	probes := [5]mgl64.Vec2{{x, z}, {x + r, z}, {x - r, z}, {x, z + r}, {x, z - r}}
	for _, p := range probes {
		for _, tri := range g.cells[[2]int{g.key(p[0]), g.key(p[1])}] {
			if math.Abs(cross2(tri[0], tri[1], tri[2])) < 1e-12 {
				continue
			}
			if pointInTriangle(p, tri[0], tri[1], tri[2]) {
				return true
			}
		}
	}
	return false
}
