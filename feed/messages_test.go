package feed

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/phanxgames/trafficview"
)

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

const sampleSnapshot = `{
  "type": "snapshot",
  "time": "12500.0",
  "vehicles": {
    "creations": {
      "v1": {"x": 10.5, "y": 20, "z": 0, "speed": 10, "angle": "90", "type": "passenger2a",
             "length": 4.5, "width": 1.8, "signals": 8, "vClass": "passenger"},
      "p1": {"x": 1, "y": 2, "speed": 1.2, "angle": 0, "type": "ped", "vClass": "pedestrian", "person": "bus_3"}
    },
    "updates": {
      "v2": {"speed": 15},
      "p2": {"person": null}
    },
    "removals": ["v9"]
  },
  "lights": {
    "creations": {},
    "updates": {"J1": {"phase": 2}, "J2": {"phase": 0, "programID": "off"}},
    "removals": []
  },
  "vehicle_counts": {"passenger": 2, "pedestrian": 2}
}`

func TestDecodeBase(t *testing.T) {
	b, err := DecodeBase([]byte(sampleSnapshot))
	if err != nil {
		t.Fatal(err)
	}
	if b.Type != TypeSnapshot {
		t.Errorf("Type = %q, want %q", b.Type, TypeSnapshot)
	}
	if _, err := DecodeBase([]byte("{not json")); err == nil {
		t.Error("expected error for malformed message")
	}
}

func TestNumberAcceptsStrings(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{`1.5`, 1.5},
		{`"1.5"`, 1.5},
		{`"-3"`, -3},
		{`0`, 0},
	}
	for _, tt := range tests {
		var n Number
		if err := json.Unmarshal([]byte(tt.in), &n); err != nil {
			t.Errorf("%s: %v", tt.in, err)
			continue
		}
		if float64(n) != tt.want {
			t.Errorf("%s = %v, want %v", tt.in, n, tt.want)
		}
	}
	var n Number
	if err := json.Unmarshal([]byte(`"fast"`), &n); err == nil {
		t.Error("expected error for non-numeric string")
	}
}

func TestSnapshotUpdate(t *testing.T) {
	var s Snapshot
	if err := json.Unmarshal([]byte(sampleSnapshot), &s); err != nil {
		t.Fatal(err)
	}
	u := s.Update()

	if !approxEqual(u.Time, 12.5, 1e-9) {
		t.Errorf("Time = %v, want 12.5 s", u.Time)
	}
	if len(u.Agents) != 4 {
		t.Fatalf("agents = %d, want 4", len(u.Agents))
	}

	v1 := u.Agents["v1"]
	if v1.Class == nil || *v1.Class != trafficview.ClassPassenger {
		t.Errorf("v1 class = %v", v1.Class)
	}
	if v1.Angle == nil || *v1.Angle != 90 {
		t.Errorf("v1 angle = %v, want 90", v1.Angle)
	}
	if v1.Signals == nil || *v1.Signals != trafficview.SignalBrakeLight {
		t.Errorf("v1 signals = %v", v1.Signals)
	}
	if v1.Contained != nil {
		t.Error("v1 carries no person field, Contained should be nil")
	}

	v2 := u.Agents["v2"]
	if v2.Speed == nil || *v2.Speed != 15 {
		t.Errorf("v2 speed = %v", v2.Speed)
	}
	if v2.X != nil || v2.Class != nil {
		t.Error("partial update should only carry speed")
	}

	if p1 := u.Agents["p1"]; p1.Contained == nil || !*p1.Contained {
		t.Error("p1 rides bus_3 and should be contained")
	}
	if p2 := u.Agents["p2"]; p2.Contained == nil || *p2.Contained {
		t.Error("p2 person:null should clear containment")
	}

	if len(u.Removed) != 1 || u.Removed[0] != "v9" {
		t.Errorf("Removed = %v", u.Removed)
	}
	if j1 := u.Lights["J1"]; j1.Phase == nil || *j1.Phase != 2 || j1.ProgramID != nil {
		t.Errorf("J1 = %+v", j1)
	}
	if j2 := u.Lights["J2"]; j2.ProgramID == nil || *j2.ProgramID != "off" {
		t.Errorf("J2 = %+v", j2)
	}
	if u.VehicleCounts["pedestrian"] != 2 {
		t.Errorf("VehicleCounts = %v", u.VehicleCounts)
	}
}

func TestSnapshotUpdateMergesCreationAndUpdate(t *testing.T) {
	x, speed := Number(1), Number(3)
	cls := "bus"
	s := Snapshot{
		Vehicles: Delta[Vehicle]{
			Creations: map[string]Vehicle{"b": {X: &x, VClass: &cls}},
			Updates:   map[string]Vehicle{"b": {Speed: &speed}},
		},
	}
	info := s.Update().Agents["b"]
	if info.X == nil || *info.X != 1 || info.Speed == nil || *info.Speed != 3 {
		t.Errorf("merged info = %+v", info)
	}
	if info.Class == nil || *info.Class != trafficview.ClassBus {
		t.Errorf("class = %v", info.Class)
	}
}

func TestSnapshotUpdateSkipsUnknownClass(t *testing.T) {
	bad := "hovercraft"
	s := Snapshot{
		Vehicles: Delta[Vehicle]{
			Creations: map[string]Vehicle{"h": {VClass: &bad}, "ok": {}},
		},
	}
	u := s.Update()
	if _, ok := u.Agents["h"]; ok {
		t.Error("unknown class should be skipped")
	}
	if _, ok := u.Agents["ok"]; !ok {
		t.Error("other vehicles should be unaffected")
	}
}

func TestVehicleColor(t *testing.T) {
	c := "#ff0000"
	info, err := Vehicle{Color: &c}.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Color == nil || info.Color.R != 1 || info.Color.G != 0 {
		t.Errorf("Color = %v", info.Color)
	}
	bad := "red"
	if _, err := (Vehicle{Color: &bad}).Info(); err == nil {
		t.Error("expected error for bad color")
	}
}

func TestOptionalOmitted(t *testing.T) {
	b, err := json.Marshal(Vehicle{})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "{}" {
		t.Errorf("empty vehicle = %s, want {}", b)
	}
	b, err = json.Marshal(Vehicle{Person: Optional{Set: true}})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"person":null}` {
		t.Errorf("cleared person = %s", b)
	}
}
