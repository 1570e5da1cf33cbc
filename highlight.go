package trafficview

import "github.com/go-gl/mathgl/mgl64"

type hideKey struct {
	node  *Node
	group int
}

type highlightRecord struct {
	regions []MeshRegion
	clones  []*Node
	// agent highlights recolor instead of cloning
	agent bool
}

// HighlightEngine draws highlighted objects as recolored clones on an
// overlay layer and hides the originals. It is the only writer of the
// hidden flags of static geometry.
type HighlightEngine struct {
	overlay  *Node
	registry *StaticMeshRegistry
	agents   *AgentRegistry
	material *Material

	records map[string]*highlightRecord
	order   []string
	hidden  map[hideKey]int
}

// NewHighlightEngine creates an engine with its own overlay root.
func NewHighlightEngine(reg *StaticMeshRegistry, agents *AgentRegistry, color Color) *HighlightEngine {
	mat := NewMaterial(MaterialHighlight)
	mat.Color = color
	return &HighlightEngine{
		overlay:  NewContainer("highlights"),
		registry: reg,
		agents:   agents,
		material: mat,
		records:  make(map[string]*highlightRecord),
		hidden:   make(map[hideKey]int),
	}
}

// Overlay returns the root of the clone layer.
func (h *HighlightEngine) Overlay() *Node {
	return h.overlay
}

// SetColor changes the highlight color of current and future highlights.
func (h *HighlightEngine) SetColor(c Color) {
	h.material.Color = c
	for id, rec := range h.records {
		if rec.agent {
			h.agents.SetHighlight(id, &c)
		}
	}
}

// Highlight highlights id and returns the focus point of its first region
// when one is known. Highlighting an already highlighted id changes
// nothing. The bool result is false when id names nothing. A static id
// shared by several kinds highlights its primary kind only.
func (h *HighlightEngine) Highlight(id string) (*mgl64.Vec3, bool) {
	if rec, ok := h.records[id]; ok {
		return h.focus(id, rec), true
	}
	if _, ok := h.agents.Get(id); ok {
		rec := &highlightRecord{agent: true}
		c := h.material.Color
		h.agents.SetHighlight(id, &c)
		h.add(id, rec)
		return h.focus(id, rec), true
	}
	regions := h.registry.Lookup(id)
	if len(regions) == 0 {
		return nil, false
	}
	rec := &highlightRecord{regions: regions}
	for _, r := range regions {
		clone := h.cloneRegion(r)
		if clone == nil {
			continue
		}
		h.overlay.AddChild(clone)
		rec.clones = append(rec.clones, clone)
		h.hide(r)
	}
	h.overlay.refreshTransform()
	h.add(id, rec)
	return h.focus(id, rec), true
}

func (h *HighlightEngine) add(id string, rec *highlightRecord) {
	h.records[id] = rec
	h.order = append(h.order, id)
}

func (h *HighlightEngine) focus(id string, rec *highlightRecord) *mgl64.Vec3 {
	if rec.agent {
		if a, ok := h.agents.Get(id); ok {
			p := a.Node.WorldPosition()
			return &p
		}
		return nil
	}
	for _, r := range rec.regions {
		if r.Centroid != nil {
			c := *r.Centroid
			return &c
		}
	}
	return nil
}

// cloneRegion copies the region's geometry into a node drawn with the
// highlight material, carrying the original's transform and owner.
func (h *HighlightEngine) cloneRegion(r MeshRegion) *Node {
	src := r.Node
	if src == nil || src.Mesh == nil {
		return nil
	}
	var mesh *Mesh
	if r.Group >= 0 {
		if r.Group >= len(src.Mesh.Groups) {
			return nil
		}
		mesh = src.Mesh.ExtractGroup(r.Group)
	} else {
		mesh = src.Mesh.Clone()
	}
	// one material for every group
	setMaterialSlot(mesh, 0)
	for g := range mesh.Groups {
		mesh.Groups[g].Hidden = false
	}
	n := NewMeshNode(src.Name+":highlight", mesh, h.material)
	n.Owner = src.Owner
	wm := src.WorldMatrix()
	n.Position = wm.Col(3).Vec3()
	n.Rotation = mgl64.Mat4ToQuat(normalizeAxes(wm))
	n.Scale = mgl64.Vec3{wm.Col(0).Vec3().Len(), wm.Col(1).Vec3().Len(), wm.Col(2).Vec3().Len()}
	n.MarkDirty()
	return n
}

func normalizeAxes(m mgl64.Mat4) mgl64.Mat4 {
	for c := 0; c < 3; c++ {
		col := m.Col(c).Vec3()
		if l := col.Len(); l > 0 {
			col = col.Mul(1 / l)
		}
		m.SetCol(c, col.Vec4(0))
	}
	return m
}

func (h *HighlightEngine) hide(r MeshRegion) {
	k := hideKey{r.Node, r.Group}
	h.hidden[k]++
	if h.hidden[k] == 1 {
		h.setHidden(r, true)
	}
}

func (h *HighlightEngine) show(r MeshRegion) {
	k := hideKey{r.Node, r.Group}
	if h.hidden[k] == 0 {
		return
	}
	h.hidden[k]--
	if h.hidden[k] == 0 {
		delete(h.hidden, k)
		h.setHidden(r, false)
	}
}

func (h *HighlightEngine) setHidden(r MeshRegion, hidden bool) {
	if r.Group >= 0 {
		if r.Node.Mesh != nil && r.Group < len(r.Node.Mesh.Groups) {
			r.Node.Mesh.Groups[r.Group].Hidden = hidden
		}
		return
	}
	r.Node.Visible = !hidden
}

// Unhighlight restores one id. Unknown ids are ignored.
func (h *HighlightEngine) Unhighlight(id string) {
	rec, ok := h.records[id]
	if !ok {
		return
	}
	h.restore(id, rec)
	delete(h.records, id)
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// UnhighlightAll restores every original and drops every clone. Calling it
// with nothing highlighted does nothing.
func (h *HighlightEngine) UnhighlightAll() {
	for _, id := range h.order {
		h.restore(id, h.records[id])
	}
	h.records = make(map[string]*highlightRecord)
	h.order = h.order[:0]
}

func (h *HighlightEngine) restore(id string, rec *highlightRecord) {
	if rec.agent {
		h.agents.SetHighlight(id, nil)
		return
	}
	for _, c := range rec.clones {
		c.Dispose()
	}
	for _, r := range rec.regions {
		h.show(r)
	}
}

// Highlighted returns the highlighted ids in highlight order.
func (h *HighlightEngine) Highlighted() []string {
	return append([]string(nil), h.order...)
}

// IsHighlighted reports whether id is highlighted.
func (h *HighlightEngine) IsHighlighted(id string) bool {
	_, ok := h.records[id]
	return ok
}

// forget drops the record of a removed agent without restoring its color.
func (h *HighlightEngine) forget(id string) {
	rec, ok := h.records[id]
	if !ok || !rec.agent {
		return
	}
	delete(h.records, id)
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}
