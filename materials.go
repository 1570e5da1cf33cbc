package trafficview

import "fmt"

// MaterialKind names a fixed surface appearance.
type MaterialKind uint8

const (
	MaterialRoad MaterialKind = iota
	MaterialWalkway
	MaterialCycleway
	MaterialRailway
	MaterialCrossing
	MaterialJunction
	MaterialLaneSeam
	MaterialCenterSeam
	MaterialBuilding
	MaterialRoof
	MaterialWater
	MaterialBusStop
	MaterialPOI
	MaterialTree
	MaterialFixture
	MaterialSignalRed
	MaterialSignalYellow
	MaterialSignalGreen
	MaterialSignalOff
	MaterialHighlight
	MaterialAgent
	numMaterialKinds
)

var materialKindNames = [numMaterialKinds]string{
	"road", "walkway", "cycleway", "railway", "crossing", "junction",
	"lane-seam", "center-seam", "building", "roof", "water", "bus-stop",
	"poi", "tree", "fixture", "signal-red", "signal-yellow", "signal-green",
	"signal-off", "highlight", "agent",
}

func (k MaterialKind) String() string {
	if k < numMaterialKinds {
		return materialKindNames[k]
	}
	return fmt.Sprintf("MaterialKind(%d)", k)
}

var defaultKindColors = [numMaterialKinds]Color{
	MaterialRoad:         {0.33, 0.33, 0.35, 1},
	MaterialWalkway:      {0.72, 0.70, 0.66, 1},
	MaterialCycleway:     {0.62, 0.30, 0.27, 1},
	MaterialRailway:      {0.42, 0.36, 0.30, 1},
	MaterialCrossing:     {0.92, 0.92, 0.92, 1},
	MaterialJunction:     {0.30, 0.30, 0.32, 1},
	MaterialLaneSeam:     {0.95, 0.95, 0.95, 1},
	MaterialCenterSeam:   {0.98, 0.82, 0.15, 1},
	MaterialBuilding:     {0.82, 0.79, 0.74, 1},
	MaterialRoof:         {0.55, 0.45, 0.40, 1},
	MaterialWater:        {0.25, 0.48, 0.75, 1},
	MaterialBusStop:      {0.20, 0.45, 0.85, 1},
	MaterialPOI:          {0.85, 0.35, 0.60, 1},
	MaterialTree:         {0.20, 0.50, 0.22, 1},
	MaterialFixture:      {0.15, 0.15, 0.15, 1},
	MaterialSignalRed:    {0.95, 0.10, 0.10, 1},
	MaterialSignalYellow: {0.98, 0.80, 0.05, 1},
	MaterialSignalGreen:  {0.10, 0.85, 0.25, 1},
	MaterialSignalOff:    {0.10, 0.10, 0.10, 1},
	MaterialHighlight:    {1.00, 0.40, 0.00, 1},
	MaterialAgent:        {0.80, 0.80, 0.80, 1},
}

// Material is a flat-shaded surface appearance. Dynamic materials are
// per-instance copies that may be recolored at runtime without affecting
// other users of the same kind.
type Material struct {
	Kind    MaterialKind
	Name    string
	Color   Color
	Dynamic bool
	// Unlit skips lambert shading (signal lamps, highlights).
	Unlit bool
}

// NewMaterial returns a material of kind k with its default color.
func NewMaterial(k MaterialKind) *Material {
	m := &Material{Kind: k, Name: k.String(), Color: defaultKindColors[k]}
	switch k {
	case MaterialSignalRed, MaterialSignalYellow, MaterialSignalGreen, MaterialHighlight:
		m.Unlit = true
	}
	return m
}

// Clone returns a dynamic copy of m.
func (m *Material) Clone() *Material {
	c := *m
	c.Dynamic = true
	return &c
}

// MaterialLibrary holds the one shared material per kind.
type MaterialLibrary struct {
	byKind [numMaterialKinds]*Material
}

// NewMaterialLibrary creates the shared materials with default colors.
func NewMaterialLibrary() *MaterialLibrary {
	lib := &MaterialLibrary{}
	for k := MaterialKind(0); k < numMaterialKinds; k++ {
		lib.byKind[k] = NewMaterial(k)
	}
	return lib
}

// Get returns the shared material of kind k.
func (l *MaterialLibrary) Get(k MaterialKind) *Material {
	return l.byKind[k]
}

// classifyLane picks a lane surface by priority: crossing edge, then
// explicit pedestrian permission (lane or type level), then bicycle, then
// rail without passenger traffic, else plain road.
func classifyLane(e *Edge, l *Lane, t EdgeType) MaterialKind {
	if e.Function == EdgeCrossing {
		return MaterialCrossing
	}
	if l.Allow.Has(ClassPedestrian) || t.Allow.Has(ClassPedestrian) {
		return MaterialWalkway
	}
	if l.Allow.Has(ClassBicycle) || t.Allow.Has(ClassBicycle) {
		return MaterialCycleway
	}
	allow := l.Allow
	if allow == 0 {
		allow = t.Allow
	}
	if allow.HasRail() && !allow.Has(ClassPassenger) {
		return MaterialRailway
	}
	return MaterialRoad
}

// DynamicMaterials is the per-lane material table of the merged lane mesh.
// Slot i of the merged mesh always draws Slots[i]; each lane owns exactly
// one slot for the lifetime of the scene.
type DynamicMaterials struct {
	Slots  []*Material
	byLane map[string]int
	base   []*Material
}

func newDynamicMaterials() *DynamicMaterials {
	return &DynamicMaterials{byLane: make(map[string]int)}
}

// add assigns the next slot to lane with a dynamic copy of base.
func (d *DynamicMaterials) add(lane string, base *Material) int {
	slot := len(d.Slots)
	d.Slots = append(d.Slots, base.Clone())
	d.base = append(d.base, base)
	d.byLane[lane] = slot
	return slot
}

// Slot returns the slot index owned by lane.
func (d *DynamicMaterials) Slot(lane string) (int, bool) {
	s, ok := d.byLane[lane]
	return s, ok
}

// Material returns the live material of lane.
func (d *DynamicMaterials) Material(lane string) (*Material, bool) {
	s, ok := d.byLane[lane]
	if !ok {
		return nil, false
	}
	return d.Slots[s], true
}

// SetLaneColor recolors one lane without touching any other lane.
func (d *DynamicMaterials) SetLaneColor(lane string, c Color) bool {
	m, ok := d.Material(lane)
	if !ok {
		return false
	}
	m.Color = c
	return true
}

// ResetLane restores the lane's material to its kind's shared appearance.
func (d *DynamicMaterials) ResetLane(lane string) bool {
	s, ok := d.byLane[lane]
	if !ok {
		return false
	}
	*d.Slots[s] = *d.base[s]
	d.Slots[s].Dynamic = true
	return true
}

// Len returns the number of lanes with a slot.
func (d *DynamicMaterials) Len() int {
	return len(d.Slots)
}
