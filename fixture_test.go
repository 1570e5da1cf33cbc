package trafficview

import (
	"context"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const epsilon = 1e-9

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func assertNear(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func assertVec(t *testing.T, name string, got, want mgl64.Vec3) {
	t.Helper()
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("%s = %v, want %v", name, got, want)
			return
		}
	}
}

func ptr[T any](v T) *T { return &v }

// straightLane returns a lane running from (x0, y) to (x1, y).
func straightLane(id string, index int, x0, x1, y float64) Lane {
	return Lane{
		ID:    id,
		Index: index,
		Speed: 13.9,
		Width: 3.2,
		Shape: []SimPoint{{X: x0, Y: y}, {X: x1, Y: y}},
	}
}

// testNetwork is a 200x200 m network centered on (100, 100):
//
//   - E1 runs east along y=100 from x=0 to x=90 with two lanes south of the
//     center line, -E1 is its westbound twin north of it.
//   - J1 is a signalized junction covering x 90..110 controlling three
//     movements out of E1.
//   - E2 continues east with one lane, :J1_0 is an internal edge.
func testNetwork() *Network {
	return &Network{
		Location: Location{
			NetOffset:     SimPoint{X: -400000, Y: -5500000},
			ConvBoundary:  [4]float64{0, 0, 200, 200},
			ProjParameter: "+proj=utm +zone=33 +ellps=WGS84 +datum=WGS84 +units=m +no_defs",
		},
		Edges: []Edge{
			{ID: "E1", From: "J0", To: "J1", Lanes: []Lane{
				straightLane("E1_0", 0, 0, 90, 95.2),
				straightLane("E1_1", 1, 0, 90, 98.4),
			}},
			{ID: "-E1", From: "J1", To: "J0", Lanes: []Lane{
				straightLane("-E1_0", 0, 90, 0, 104.8),
				straightLane("-E1_1", 1, 90, 0, 101.6),
			}},
			{ID: "E2", From: "J1", To: "J2", Lanes: []Lane{
				straightLane("E2_0", 0, 110, 200, 98.4),
			}},
			{ID: ":J1_0", Function: EdgeInternal, Lanes: []Lane{
				straightLane(":J1_0_0", 0, 90, 110, 98.4),
			}},
		},
		Junctions: []Junction{
			{ID: "J1", Type: JunctionTrafficLight, Shape: []SimPoint{
				{X: 90, Y: 90}, {X: 110, Y: 90}, {X: 110, Y: 110}, {X: 90, Y: 110},
			}},
			{ID: "J0", Type: JunctionDeadEnd},
		},
		Connections: []Connection{
			{From: "E1", To: "E2", FromLane: 0, ToLane: 0, Dir: DirRight, TL: "J1", LinkIndex: 0},
			{From: "E1", To: "E2", FromLane: 1, ToLane: 0, Dir: DirStraight, TL: "J1", LinkIndex: 1},
			{From: "E1", To: "-E1", FromLane: 1, ToLane: 1, Dir: DirLeft, TL: "J1", LinkIndex: 2},
			{From: "E2", To: "-E1", FromLane: 0, ToLane: 0, Dir: DirTurnaround},
		},
		Logics: []TLLogic{
			{ID: "J1", ProgramID: "0", Phases: []Phase{
				{Duration: 30, State: "GGr"},
				{Duration: 3, State: "yyr"},
				{Duration: 30, State: "rrG"},
				{Duration: 5, State: "g"},
			}},
		},
	}
}

func buildTestStatic(t *testing.T, aux *Auxiliary) *StaticScene {
	t.Helper()
	ss, err := Build(testNetwork(), aux, nil, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ss
}

func loadTestModels(t *testing.T) *ModelLibrary {
	t.Helper()
	lib, err := LoadModels(context.Background(), BuiltinLoader{}, DefaultModelSpecs())
	if err != nil {
		t.Fatalf("LoadModels: %v", err)
	}
	return lib
}

func newTestScene(t *testing.T) *Scene {
	t.Helper()
	s := NewScene(buildTestStatic(t, nil), loadTestModels(t), nil)
	t.Cleanup(s.Close)
	return s
}

// vehicle builds an agent update at a simulation position.
func vehicle(class string, x, y, angle float64) AgentInfo {
	return AgentInfo{Type: ptr(class), X: ptr(x), Y: ptr(y), Angle: ptr(angle), Speed: ptr(10.0)}
}
