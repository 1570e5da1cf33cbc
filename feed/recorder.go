package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DefaultKeyframeEvery is the number of snapshots between keyframes.
const DefaultKeyframeEvery = 300

// Recorder appends snapshots to a zstd-compressed JSON-lines file. Every
// KeyframeEvery snapshots it also writes a keyframe: a Full snapshot
// carrying every live vehicle and light as a creation, so that replay can
// start from the middle of a recording.
type Recorder struct {
	KeyframeEvery int

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer

	count    int
	vehicles map[string]Vehicle
	lights   map[string]Light
}

// CreateRecorder creates (or truncates) path.
func CreateRecorder(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("feed: create recording: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("feed: create recording: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("feed: create recording: %w", err)
	}
	return &Recorder{
		KeyframeEvery: DefaultKeyframeEvery,
		f:             f,
		enc:           enc,
		w:             bufio.NewWriterSize(enc, 128*1024),
		vehicles:      make(map[string]Vehicle),
		lights:        make(map[string]Light),
	}, nil
}

// Write records s and, when due, a keyframe after it.
func (r *Recorder) Write(s *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("feed: recorder closed")
	}
	r.track(s)
	if err := r.writeLocked(s); err != nil {
		return err
	}
	r.count++
	if r.KeyframeEvery > 0 && r.count%r.KeyframeEvery == 0 {
		if err := r.writeLocked(r.keyframe(s)); err != nil {
			return err
		}
	}
	return r.w.Flush()
}

// track folds a delta into the live state used for keyframes.
func (r *Recorder) track(s *Snapshot) {
	if s.Full {
		clear(r.vehicles)
		clear(r.lights)
	}
	for id, v := range s.Vehicles.Creations {
		r.vehicles[id] = v
	}
	for id, v := range s.Vehicles.Updates {
		cur := r.vehicles[id]
		cur.merge(v)
		r.vehicles[id] = cur
	}
	for _, id := range s.Vehicles.Removals {
		delete(r.vehicles, id)
	}
	for _, set := range []map[string]Light{s.Lights.Creations, s.Lights.Updates} {
		for id, l := range set {
			cur := r.lights[id]
			if l.Phase != nil {
				cur.Phase = l.Phase
			}
			if l.ProgramID != nil {
				cur.ProgramID = l.ProgramID
			}
			r.lights[id] = cur
		}
	}
	for _, id := range s.Lights.Removals {
		delete(r.lights, id)
	}
}

func (r *Recorder) keyframe(s *Snapshot) *Snapshot {
	k := &Snapshot{
		Type:          TypeSnapshot,
		Time:          s.Time,
		Full:          true,
		VehicleCounts: s.VehicleCounts,
		Vehicles:      Delta[Vehicle]{Creations: make(map[string]Vehicle, len(r.vehicles))},
		Lights:        Delta[Light]{Creations: make(map[string]Light, len(r.lights))},
	}
	for id, v := range r.vehicles {
		k.Vehicles.Creations[id] = v
	}
	for id, l := range r.lights {
		k.Lights.Creations[id] = l
	}
	return k
}

func (r *Recorder) writeLocked(s *Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("feed: encode snapshot: %w", err)
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	return r.w.WriteByte('\n')
}

// Close flushes and closes the file. Safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	var firstErr error
	if err := r.w.Flush(); err != nil {
		firstErr = err
	}
	if err := r.enc.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	r.w, r.enc, r.f = nil, nil, nil
	return firstErr
}
