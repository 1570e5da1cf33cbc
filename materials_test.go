package trafficview

import "testing"

func TestClassifyLane(t *testing.T) {
	walk := NewClassSet(ClassPedestrian)
	bike := NewClassSet(ClassBicycle)
	rail := NewClassSet(ClassRail, ClassRailElectric)
	tram := NewClassSet(ClassTram, ClassPassenger)

	tests := []struct {
		name string
		fn   EdgeFunction
		lane ClassSet
		typ  ClassSet
		want MaterialKind
	}{
		{"plain", EdgeNormal, 0, 0, MaterialRoad},
		{"crossing wins", EdgeCrossing, walk, 0, MaterialCrossing},
		{"lane walkway", EdgeNormal, walk, 0, MaterialWalkway},
		{"type walkway", EdgeNormal, 0, walk, MaterialWalkway},
		{"pedestrian before bicycle", EdgeNormal, walk | bike, 0, MaterialWalkway},
		{"cycleway", EdgeNormal, bike, 0, MaterialCycleway},
		{"railway", EdgeNormal, rail, 0, MaterialRailway},
		{"type railway", EdgeNormal, 0, rail, MaterialRailway},
		{"shared tram road", EdgeNormal, tram, 0, MaterialRoad},
		{"lane overrides type", EdgeNormal, NewClassSet(ClassBus), rail, MaterialRoad},
	}
	for _, tt := range tests {
		e := &Edge{Function: tt.fn}
		l := &Lane{Allow: tt.lane}
		if got := classifyLane(e, l, EdgeType{Allow: tt.typ}); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewMaterialUnlit(t *testing.T) {
	for k := MaterialKind(0); k < numMaterialKinds; k++ {
		m := NewMaterial(k)
		want := k == MaterialSignalRed || k == MaterialSignalYellow ||
			k == MaterialSignalGreen || k == MaterialHighlight
		if m.Unlit != want {
			t.Errorf("%v: Unlit = %v, want %v", k, m.Unlit, want)
		}
		if m.Dynamic {
			t.Errorf("%v: shared material should not be dynamic", k)
		}
	}
}

func TestMaterialLibraryShared(t *testing.T) {
	lib := NewMaterialLibrary()
	if lib.Get(MaterialRoad) != lib.Get(MaterialRoad) {
		t.Error("Get should return the same shared material")
	}
	if lib.Get(MaterialRoad).Name != "road" {
		t.Errorf("Name = %q", lib.Get(MaterialRoad).Name)
	}
}

func TestDynamicMaterialsIsolation(t *testing.T) {
	lib := NewMaterialLibrary()
	d := newDynamicMaterials()
	s0 := d.add("E1_0", lib.Get(MaterialRoad))
	s1 := d.add("E1_1", lib.Get(MaterialRoad))
	if s0 != 0 || s1 != 1 || d.Len() != 2 {
		t.Fatalf("slots = %d, %d; len %d", s0, s1, d.Len())
	}

	red := Color{1, 0, 0, 1}
	if !d.SetLaneColor("E1_0", red) {
		t.Fatal("SetLaneColor failed")
	}
	m0, _ := d.Material("E1_0")
	m1, _ := d.Material("E1_1")
	if m0.Color != red {
		t.Errorf("E1_0 color = %v", m0.Color)
	}
	if m1.Color == red || lib.Get(MaterialRoad).Color == red {
		t.Error("recoloring one lane leaked into another material")
	}
	if !m0.Dynamic {
		t.Error("lane materials should be dynamic")
	}

	if !d.ResetLane("E1_0") {
		t.Fatal("ResetLane failed")
	}
	m0, _ = d.Material("E1_0")
	if m0.Color != lib.Get(MaterialRoad).Color || !m0.Dynamic {
		t.Errorf("after reset: %+v", m0)
	}
	if d.Slots[s0] != m0 {
		t.Error("reset should keep the slot pointer")
	}

	if d.SetLaneColor("nope", red) || d.ResetLane("nope") {
		t.Error("unknown lane should report false")
	}
	if _, ok := d.Slot("nope"); ok {
		t.Error("unknown lane has no slot")
	}
}
