// Package feed connects a trafficview scene to a simulation server: the
// snapshot wire format, a websocket client with the server's control
// actions, and a zstd-compressed recorder and replayer for snapshot
// streams.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/phanxgames/trafficview"
)

// Message types.
const (
	TypeSnapshot = "snapshot"
	TypeAction   = "action"
	TypeState    = "state"
)

// Control actions understood by the server.
const (
	ActionStart       = "start"
	ActionPause       = "pause"
	ActionResume      = "resume"
	ActionCancel      = "cancel"
	ActionChangeDelay = "changeDelay"
)

// Simulation status values reported in State.
const (
	SimOff     = "off"
	SimRunning = "running"
	SimPaused  = "paused"
)

// Base is the envelope every message shares.
type Base struct {
	Type string `json:"type"`
}

// DecodeBase reads only the message type.
func DecodeBase(data []byte) (Base, error) {
	var b Base
	if err := json.Unmarshal(data, &b); err != nil {
		return Base{}, fmt.Errorf("feed: decode message: %w", err)
	}
	return b, nil
}

// Number is a float that also accepts a quoted decimal, as recorded runs
// send some values as strings.
type Number float64

// UnmarshalJSON accepts 1.5 and "1.5".
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("feed: bad number %q", b)
	}
	*n = Number(v)
	return nil
}

func (n *Number) float() *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}

// Optional is a string field where an explicit null differs from absence.
type Optional struct {
	Set   bool
	Value string
}

// UnmarshalJSON marks the field present; null leaves Value empty.
func (o *Optional) UnmarshalJSON(b []byte) error {
	o.Set = true
	o.Value = ""
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// MarshalJSON writes null for an empty value.
func (o Optional) MarshalJSON() ([]byte, error) {
	if o.Value == "" {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// IsZero reports absence, so that omitzero drops unset fields.
func (o Optional) IsZero() bool {
	return !o.Set
}

// Vehicle is a vehicle or person as sent by the server. In updates only the
// changed fields are present.
type Vehicle struct {
	X       *Number `json:"x,omitempty"`
	Y       *Number `json:"y,omitempty"`
	Z       *Number `json:"z,omitempty"`
	Speed   *Number `json:"speed,omitempty"`
	Angle   *Number `json:"angle,omitempty"`
	Length  *Number `json:"length,omitempty"`
	Width   *Number `json:"width,omitempty"`
	Type    *string `json:"type,omitempty"`
	VClass  *string `json:"vClass,omitempty"`
	Signals *int    `json:"signals,omitempty"`
	// Person is the vehicle a person rides in; null when walking.
	Person Optional `json:"person,omitzero"`
	// Color is an optional "#rrggbb" display override.
	Color *string `json:"color,omitempty"`
}

// Light is a traffic light's current program and phase.
type Light struct {
	Phase     *int    `json:"phase,omitempty"`
	ProgramID *string `json:"programID,omitempty"`
}

// Delta is the change set of one entity kind between two snapshots.
type Delta[T any] struct {
	Creations map[string]T `json:"creations"`
	Updates   map[string]T `json:"updates"`
	Removals  []string     `json:"removals"`
}

// Snapshot is one simulation step.
type Snapshot struct {
	Type string `json:"type"`
	// Time is the simulation time in milliseconds.
	Time Number `json:"time"`
	// Full marks a keyframe carrying every live entity as a creation.
	Full          bool           `json:"full,omitempty"`
	Vehicles      Delta[Vehicle] `json:"vehicles"`
	Lights        Delta[Light]   `json:"lights"`
	VehicleCounts map[string]int `json:"vehicle_counts,omitempty"`
	SimulateSecs  float64        `json:"simulate_secs,omitempty"`
	SnapshotSecs  float64        `json:"snapshot_secs,omitempty"`
}

// Action is a control message sent to the server.
type Action struct {
	Type          string `json:"type"`
	Action        string `json:"action"`
	DelayLengthMs int    `json:"delayLengthMs"`
}

// State is the server's reply to every action.
type State struct {
	Type             string `json:"type"`
	DelayMs          int    `json:"delayMs"`
	Scenario         string `json:"scenario"`
	SimulationStatus string `json:"simulationStatus"`
}

// Info converts a wire vehicle into a partial agent update. A vClass the
// viewer does not know is an error.
func (v Vehicle) Info() (trafficview.AgentInfo, error) {
	info := trafficview.AgentInfo{
		Type:    v.Type,
		X:       v.X.float(),
		Y:       v.Y.float(),
		Z:       v.Z.float(),
		Angle:   v.Angle.float(),
		Speed:   v.Speed.float(),
		Length:  v.Length.float(),
		Width:   v.Width.float(),
		Signals: v.Signals,
	}
	if v.VClass != nil {
		c, err := trafficview.ParseVehicleClass(*v.VClass)
		if err != nil {
			return info, err
		}
		info.Class = &c
	}
	if v.Person.Set {
		contained := v.Person.Value != ""
		info.Contained = &contained
	}
	if v.Color != nil {
		c, err := trafficview.ParseHexColor(*v.Color)
		if err != nil {
			return info, err
		}
		info.Color = &c
	}
	return info, nil
}

// merge overlays the fields present in o onto v.
func (v *Vehicle) merge(o Vehicle) {
	setNum := func(dst **Number, src *Number) {
		if src != nil {
			*dst = src
		}
	}
	setNum(&v.X, o.X)
	setNum(&v.Y, o.Y)
	setNum(&v.Z, o.Z)
	setNum(&v.Speed, o.Speed)
	setNum(&v.Angle, o.Angle)
	setNum(&v.Length, o.Length)
	setNum(&v.Width, o.Width)
	if o.Type != nil {
		v.Type = o.Type
	}
	if o.VClass != nil {
		v.VClass = o.VClass
	}
	if o.Signals != nil {
		v.Signals = o.Signals
	}
	if o.Person.Set {
		v.Person = o.Person
	}
	if o.Color != nil {
		v.Color = o.Color
	}
}

// Update converts the snapshot into a scene update. Creations and updates
// are both upserts; a vehicle in both has its update applied over its
// creation. Vehicles that cannot be converted are logged and skipped.
func (s *Snapshot) Update() trafficview.Update {
	u := trafficview.Update{
		Time:          float64(s.Time) / 1000,
		Full:          s.Full,
		Agents:        make(map[string]trafficview.AgentInfo, len(s.Vehicles.Creations)+len(s.Vehicles.Updates)),
		Removed:       s.Vehicles.Removals,
		VehicleCounts: s.VehicleCounts,
	}
	merged := make(map[string]Vehicle, len(u.Agents))
	for id, v := range s.Vehicles.Creations {
		merged[id] = v
	}
	for id, v := range s.Vehicles.Updates {
		m := merged[id]
		m.merge(v)
		merged[id] = m
	}
	for id, v := range merged {
		info, err := v.Info()
		if err != nil {
			logger.WithField("vehicle", id).WithError(err).Warn("vehicle skipped")
			continue
		}
		u.Agents[id] = info
	}

	if n := len(s.Lights.Creations) + len(s.Lights.Updates); n > 0 {
		u.Lights = make(map[string]trafficview.LightInfo, n)
		for _, set := range []map[string]Light{s.Lights.Creations, s.Lights.Updates} {
			for id, l := range set {
				li := u.Lights[id]
				if l.ProgramID != nil {
					li.ProgramID = l.ProgramID
				}
				if l.Phase != nil {
					li.Phase = l.Phase
				}
				u.Lights[id] = li
			}
		}
	}
	return u
}
