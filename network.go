package trafficview

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// SimPoint is a point in simulation space: X east, Y north, Z up (meters).
type SimPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Location describes how simulation coordinates relate to the original
// (possibly geographic) input coordinates.
type Location struct {
	// NetOffset was added to input coordinates to produce simulation ones.
	NetOffset SimPoint `json:"netOffset"`
	// ConvBoundary is the simulation-space bounding box: minX, minY, maxX, maxY.
	ConvBoundary [4]float64 `json:"convBoundary"`
	// OrigBoundary is the input-space bounding box (lng/lat when geographic).
	OrigBoundary [4]float64 `json:"origBoundary"`
	// ProjParameter is a proj4 string, or "!" when the input was not geographic.
	ProjParameter string `json:"projParameter"`
}

// --- Closed enumerations ---

// EdgeFunction classifies an edge.
type EdgeFunction uint8

const (
	EdgeNormal EdgeFunction = iota
	EdgeInternal
	EdgeCrossing
	EdgeWalkingArea
)

var edgeFunctionNames = [...]string{"normal", "internal", "crossing", "walkingarea"}

func (f EdgeFunction) String() string {
	if int(f) < len(edgeFunctionNames) {
		return edgeFunctionNames[f]
	}
	return fmt.Sprintf("EdgeFunction(%d)", f)
}

// ParseEdgeFunction maps a network function attribute to an EdgeFunction.
// The empty string is a normal edge.
func ParseEdgeFunction(s string) (EdgeFunction, error) {
	if s == "" {
		return EdgeNormal, nil
	}
	for i, n := range edgeFunctionNames {
		if n == s {
			return EdgeFunction(i), nil
		}
	}
	return 0, fmt.Errorf("trafficview: unknown edge function %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *EdgeFunction) UnmarshalText(b []byte) error {
	v, err := ParseEdgeFunction(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// JunctionType classifies a junction. Only TrafficLight and Priority render.
type JunctionType uint8

const (
	JunctionOther JunctionType = iota
	JunctionTrafficLight
	JunctionPriority
	JunctionInternal
	JunctionDeadEnd
)

func (t JunctionType) String() string {
	switch t {
	case JunctionTrafficLight:
		return "traffic_light"
	case JunctionPriority:
		return "priority"
	case JunctionInternal:
		return "internal"
	case JunctionDeadEnd:
		return "dead_end"
	}
	return "other"
}

// Renders reports whether junctions of this type get surface geometry.
func (t JunctionType) Renders() bool {
	return t == JunctionTrafficLight || t == JunctionPriority
}

// ParseJunctionType never fails; unrecognized types map to JunctionOther.
func ParseJunctionType(s string) JunctionType {
	switch s {
	case "traffic_light":
		return JunctionTrafficLight
	case "priority":
		return JunctionPriority
	case "internal":
		return JunctionInternal
	case "dead_end":
		return JunctionDeadEnd
	}
	return JunctionOther
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *JunctionType) UnmarshalText(b []byte) error {
	*t = ParseJunctionType(string(b))
	return nil
}

// Direction is a connection's turning movement.
type Direction uint8

const (
	DirStraight Direction = iota
	DirTurnaround
	DirLeft
	DirRight
	DirPartLeft
	DirPartRight
)

var directionCodes = [...]string{"s", "t", "l", "r", "L", "R"}

func (d Direction) String() string {
	if int(d) < len(directionCodes) {
		return directionCodes[d]
	}
	return "?"
}

// ParseDirection maps a connection dir code. Codes are case-sensitive:
// "l" is a left turn, "L" a partial left.
func ParseDirection(s string) (Direction, error) {
	for i, c := range directionCodes {
		if c == s {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("trafficview: unknown direction %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ErrUnknownVehicleClass is returned for a vehicle class name outside the
// supported set.
var ErrUnknownVehicleClass = errors.New("trafficview: unknown vehicle class")

// VehicleClass is the kind of a moving agent and the unit of lane permissions.
type VehicleClass uint8

const (
	ClassPassenger VehicleClass = iota
	ClassTaxi
	ClassBus
	ClassCoach
	ClassDelivery
	ClassTruck
	ClassTrailer
	ClassEmergency
	ClassMotorcycle
	ClassMoped
	ClassBicycle
	ClassPedestrian
	ClassTram
	ClassRailUrban
	ClassRail
	ClassRailElectric
	numVehicleClasses
)

var vehicleClassNames = [numVehicleClasses]string{
	"passenger", "taxi", "bus", "coach", "delivery", "truck", "trailer",
	"emergency", "motorcycle", "moped", "bicycle", "pedestrian", "tram",
	"rail_urban", "rail", "rail_electric",
}

func (c VehicleClass) String() string {
	if c < numVehicleClasses {
		return vehicleClassNames[c]
	}
	return fmt.Sprintf("VehicleClass(%d)", c)
}

// IsRail reports whether the class runs on rails.
func (c VehicleClass) IsRail() bool {
	switch c {
	case ClassTram, ClassRailUrban, ClassRail, ClassRailElectric:
		return true
	}
	return false
}

// ParseVehicleClass maps a class name. "car" is accepted as passenger.
func ParseVehicleClass(s string) (VehicleClass, error) {
	if s == "car" {
		return ClassPassenger, nil
	}
	for i, n := range vehicleClassNames {
		if n == s {
			return VehicleClass(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVehicleClass, s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *VehicleClass) UnmarshalText(b []byte) error {
	v, err := ParseVehicleClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (c VehicleClass) MarshalText() ([]byte, error) {
	if c >= numVehicleClasses {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVehicleClass, c)
	}
	return []byte(c.String()), nil
}

// ClassSet is a permission list of vehicle classes. The zero set means
// "not specified", which is different from "nothing allowed".
type ClassSet uint32

// NewClassSet builds a set from classes.
func NewClassSet(classes ...VehicleClass) ClassSet {
	var s ClassSet
	for _, c := range classes {
		s |= 1 << c
	}
	return s
}

// Has reports whether c is in the set.
func (s ClassSet) Has(c VehicleClass) bool {
	return s&(1<<c) != 0
}

// HasRail reports whether any rail class is in the set.
func (s ClassSet) HasRail() bool {
	return s.Has(ClassTram) || s.Has(ClassRailUrban) || s.Has(ClassRail) || s.Has(ClassRailElectric)
}

// UnmarshalText parses a space separated class list. "all" sets every class.
func (s *ClassSet) UnmarshalText(b []byte) error {
	var out ClassSet
	for _, f := range strings.Fields(string(b)) {
		if f == "all" {
			out = 1<<numVehicleClasses - 1
			continue
		}
		c, err := ParseVehicleClass(f)
		if err != nil {
			return err
		}
		out |= 1 << c
	}
	*s = out
	return nil
}

// --- Topology ---

// EdgeType carries type-level lane permissions shared by edges.
type EdgeType struct {
	ID       string   `json:"id"`
	Allow    ClassSet `json:"allow"`
	Disallow ClassSet `json:"disallow"`
}

// Lane is one lane of an edge.
type Lane struct {
	ID       string     `json:"id"`
	Index    int        `json:"index"`
	Speed    float64    `json:"speed"`
	Width    float64    `json:"width"`
	Shape    []SimPoint `json:"shape"`
	Allow    ClassSet   `json:"allow"`
	Disallow ClassSet   `json:"disallow"`
}

// DefaultLaneWidth applies to lanes that declare no width.
const DefaultLaneWidth = 3.2

// EffectiveWidth returns the lane width, falling back to DefaultLaneWidth.
func (l *Lane) EffectiveWidth() float64 {
	if l.Width > 0 {
		return l.Width
	}
	return DefaultLaneWidth
}

// Edge is a directed road segment. Lanes are ordered by index.
type Edge struct {
	ID       string       `json:"id"`
	Function EdgeFunction `json:"function"`
	Type     string       `json:"type"`
	From     string       `json:"from"`
	To       string       `json:"to"`
	Lanes    []Lane       `json:"lanes"`
}

// Junction is a node of the network graph.
type Junction struct {
	ID    string       `json:"id"`
	Type  JunctionType `json:"type"`
	Shape []SimPoint   `json:"shape"`
	Z     float64      `json:"z"`
}

// Connection is a lane-to-lane movement through a junction. TL and LinkIndex
// are set when a traffic light controls the movement.
type Connection struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	FromLane  int       `json:"fromLane"`
	ToLane    int       `json:"toLane"`
	Dir       Direction `json:"dir"`
	TL        string    `json:"tl,omitempty"`
	LinkIndex int       `json:"linkIndex"`
}

// Phase is one step of a signal program. State holds one character per
// controlled link.
type Phase struct {
	Duration float64 `json:"duration"`
	State    string  `json:"state"`
}

// TLLogic is one program of one traffic light.
type TLLogic struct {
	ID        string  `json:"id"`
	ProgramID string  `json:"programID"`
	Phases    []Phase `json:"phases"`
}

// Network is the immutable road topology consumed by Build.
type Network struct {
	Location    Location            `json:"location"`
	Types       map[string]EdgeType `json:"types"`
	Edges       []Edge              `json:"edges"`
	Junctions   []Junction          `json:"junctions"`
	Connections []Connection        `json:"connections"`
	Logics      []TLLogic           `json:"tlLogics"`

	edgeIdx map[string]int
	laneIdx map[string][2]int
}

// DecodeNetwork reads a network document in its JSON form.
func DecodeNetwork(r io.Reader) (*Network, error) {
	var n Network
	if err := json.NewDecoder(r).Decode(&n); err != nil {
		return nil, fmt.Errorf("trafficview: decode network: %w", err)
	}
	return &n, nil
}

func (n *Network) index() {
	if n.edgeIdx != nil {
		return
	}
	n.edgeIdx = make(map[string]int, len(n.Edges))
	n.laneIdx = make(map[string][2]int)
	for i := range n.Edges {
		n.edgeIdx[n.Edges[i].ID] = i
		for j := range n.Edges[i].Lanes {
			n.laneIdx[n.Edges[i].Lanes[j].ID] = [2]int{i, j}
		}
	}
}

// Edge returns the edge with the given id.
func (n *Network) Edge(id string) (*Edge, bool) {
	n.index()
	i, ok := n.edgeIdx[id]
	if !ok {
		return nil, false
	}
	return &n.Edges[i], true
}

// Lane returns the lane with the given id and its edge.
func (n *Network) Lane(id string) (*Lane, *Edge, bool) {
	n.index()
	ij, ok := n.laneIdx[id]
	if !ok {
		return nil, nil, false
	}
	e := &n.Edges[ij[0]]
	return &e.Lanes[ij[1]], e, true
}

// edgeType returns the type entry of e, or the zero EdgeType.
func (n *Network) edgeType(e *Edge) EdgeType {
	if n.Types == nil {
		return EdgeType{}
	}
	return n.Types[e.Type]
}

// Bounds returns the simulation-space boundary as min and max points.
func (n *Network) Bounds() (SimPoint, SimPoint) {
	b := n.Location.ConvBoundary
	return SimPoint{X: b[0], Y: b[1]}, SimPoint{X: b[2], Y: b[3]}
}

// --- Auxiliary overlay ---

// BusStop is a stop placed along a lane between StartPos and EndPos.
type BusStop struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Lane     string   `json:"lane"`
	StartPos float64  `json:"startPos"`
	EndPos   float64  `json:"endPos"`
	Lines    []string `json:"lines,omitempty"`
}

// Polygon is an additional shape: a building footprint, park, water body...
type Polygon struct {
	ID     string            `json:"id"`
	Type   string            `json:"type"`
	Shape  []SimPoint        `json:"shape"`
	Color  *Color            `json:"color,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// IsBuilding reports whether the polygon is a building footprint.
func (p *Polygon) IsBuilding() bool {
	return strings.HasPrefix(p.Type, "building")
}

// Floors returns the building level count from the polygon parameters, or 1.
func (p *Polygon) Floors() int {
	for _, k := range []string{"building:levels", "levels", "floors"} {
		if v, ok := p.Params[k]; ok {
			var n int
			if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

// POI is a point of interest.
type POI struct {
	ID     string            `json:"id"`
	Type   string            `json:"type"`
	Pos    SimPoint          `json:"pos"`
	Params map[string]string `json:"params,omitempty"`
}

// Auxiliary is the optional overlay data applied on top of the network.
type Auxiliary struct {
	BusStops []BusStop `json:"busStops,omitempty"`
	Polygons []Polygon `json:"polygons,omitempty"`
	POIs     []POI     `json:"pois,omitempty"`
	// Logics are extra signal programs merged over the network's own.
	Logics []TLLogic `json:"tlLogics,omitempty"`
	// Water is a GeoJSON FeatureCollection in WGS84.
	Water json.RawMessage `json:"water,omitempty"`
}

// DecodeAuxiliary reads an auxiliary overlay document.
func DecodeAuxiliary(r io.Reader) (*Auxiliary, error) {
	var a Auxiliary
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("trafficview: decode auxiliary: %w", err)
	}
	return &a, nil
}

// --- Polyline helpers ---

func dist2(a, b SimPoint) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// polylineLength returns the planar length of pts.
func polylineLength(pts []SimPoint) float64 {
	var l float64
	for i := 1; i < len(pts); i++ {
		l += dist2(pts[i-1], pts[i])
	}
	return l
}

// pointAlong returns the point at offset meters along pts and the heading of
// the segment it lies on (radians, counter-clockwise from east). Offsets are
// clamped to the polyline.
func pointAlong(pts []SimPoint, offset float64) (SimPoint, float64) {
	if len(pts) == 0 {
		return SimPoint{}, 0
	}
	if len(pts) == 1 {
		return pts[0], 0
	}
	if offset < 0 {
		offset = 0
	}
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		seg := dist2(a, b)
		heading := math.Atan2(b.Y-a.Y, b.X-a.X)
		if offset <= seg || i == len(pts)-1 {
			t := 1.0
			if seg > 0 {
				t = math.Min(offset/seg, 1)
			}
			return SimPoint{
				X: a.X + (b.X-a.X)*t,
				Y: a.Y + (b.Y-a.Y)*t,
				Z: a.Z + (b.Z-a.Z)*t,
			}, heading
		}
		offset -= seg
	}
	return pts[len(pts)-1], 0
}
