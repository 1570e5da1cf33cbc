package trafficview

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// DomainKind is the type tag of a simulation object.
type DomainKind uint8

const (
	KindNone DomainKind = iota
	KindEdge
	KindLane
	KindJunction
	KindBuilding
	KindBusStop
	KindPOI
	KindVehicle
	KindTrafficLight
)

var domainKindNames = [...]string{
	"none", "edge", "lane", "junction", "building", "busStop", "poi", "vehicle", "trafficLight",
}

func (k DomainKind) String() string {
	if int(k) < len(domainKindNames) {
		return domainKindNames[k]
	}
	return fmt.Sprintf("DomainKind(%d)", k)
}

// DomainRef identifies a simulation object independently of how it is drawn.
// Parent names the containing object when there is one (a lane's edge).
type DomainRef struct {
	Kind   DomainKind
	ID     string
	Parent string
}

// IsZero reports whether r refers to nothing.
func (r DomainRef) IsZero() bool {
	return r.Kind == KindNone
}

func (r DomainRef) String() string {
	if r.Kind == KindNone {
		return "<none>"
	}
	return r.Kind.String() + ":" + r.ID
}

// MeshRegion locates a domain object's geometry: a node, optionally narrowed
// to one material group of its mesh.
type MeshRegion struct {
	Node *Node
	// Group is the mesh group index, or -1 for the whole node.
	Group int
	// Centroid is the world-space focus point, or nil when none is known.
	Centroid *mgl64.Vec3
}

type regionKey struct {
	kind DomainKind
	id   string
}

// StaticMeshRegistry maps domain references to the static geometry drawing
// them. Entries are added while the scene is built and never change
// afterwards.
//
// Entries are keyed by kind and id, so an edge and a junction sharing an id
// stay apart. Lookups by bare id resolve to the kind registered first under
// that id (its primary kind); LookupRef reaches the others.
type StaticMeshRegistry struct {
	entries map[regionKey][]MeshRegion
	kinds   map[string][]DomainKind
	frozen  bool
}

// NewStaticMeshRegistry creates an empty, writable registry.
func NewStaticMeshRegistry() *StaticMeshRegistry {
	return &StaticMeshRegistry{
		entries: make(map[regionKey][]MeshRegion),
		kinds:   make(map[string][]DomainKind),
	}
}

// Register appends a region for ref. Panics once the registry is frozen.
func (r *StaticMeshRegistry) Register(ref DomainRef, region MeshRegion) {
	if r.frozen {
		panic("trafficview: static mesh registry is frozen")
	}
	k := regionKey{ref.Kind, ref.ID}
	if _, ok := r.entries[k]; !ok {
		r.kinds[ref.ID] = append(r.kinds[ref.ID], ref.Kind)
	}
	r.entries[k] = append(r.entries[k], region)
}

// Freeze makes the registry read-only.
func (r *StaticMeshRegistry) Freeze() {
	r.frozen = true
}

// Lookup returns the regions of id's primary kind. The slice must not be
// modified.
func (r *StaticMeshRegistry) Lookup(id string) []MeshRegion {
	k, ok := r.Kind(id)
	if !ok {
		return nil
	}
	return r.entries[regionKey{k, id}]
}

// LookupRef returns the regions registered for one kind of id.
func (r *StaticMeshRegistry) LookupRef(kind DomainKind, id string) []MeshRegion {
	return r.entries[regionKey{kind, id}]
}

// Kind returns the primary kind registered under id.
func (r *StaticMeshRegistry) Kind(id string) (DomainKind, bool) {
	ks := r.kinds[id]
	if len(ks) == 0 {
		return KindNone, false
	}
	return ks[0], true
}

// Kinds returns every kind registered under id, in registration order.
func (r *StaticMeshRegistry) Kinds(id string) []DomainKind {
	return append([]DomainKind(nil), r.kinds[id]...)
}

// Centroid returns the focus point of the first region of id's primary kind
// that has one.
func (r *StaticMeshRegistry) Centroid(id string) (mgl64.Vec3, bool) {
	for _, reg := range r.Lookup(id) {
		if reg.Centroid != nil {
			return *reg.Centroid, true
		}
	}
	return mgl64.Vec3{}, false
}

// IDs returns every id registered with the given kind, in no particular
// order.
func (r *StaticMeshRegistry) IDs(kind DomainKind) []string {
	var out []string
	for k := range r.entries {
		if k.kind == kind {
			out = append(out, k.id)
		}
	}
	return out
}

// Len returns the number of registered references.
func (r *StaticMeshRegistry) Len() int {
	return len(r.entries)
}
