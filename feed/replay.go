package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/phanxgames/trafficview"
)

var errCancelled = errors.New("feed: replay cancelled")

// Replayer streams a recording made by Recorder back as scene updates, one
// snapshot per delay. It answers the same control actions as the server.
type Replayer struct {
	path string
	// StartAt skips ahead to the first keyframe at or after this many
	// simulation seconds.
	StartAt float64

	delay   time.Duration
	updates chan trafficview.Update
	life    chan Lifecycle
	actions chan Action
}

// NewReplayer prepares a replay of path. Nothing is read until Run.
func NewReplayer(path string, delay time.Duration) *Replayer {
	return &Replayer{
		path:    path,
		delay:   delay,
		updates: make(chan trafficview.Update, 16),
		life:    make(chan Lifecycle, 4),
		actions: make(chan Action, 8),
	}
}

// Updates returns the stream of replayed snapshots.
func (r *Replayer) Updates() <-chan trafficview.Update { return r.updates }

// Lifecycle returns replay state changes. A missing or unreadable file is
// reported as StatusFailed; the end of the recording as
// StatusDisconnected.
func (r *Replayer) Lifecycle() <-chan Lifecycle { return r.life }

// Run plays the recording until it ends, is cancelled or ctx is done.
func (r *Replayer) Run(ctx context.Context) error {
	f, err := os.Open(r.path)
	if err != nil {
		err = fmt.Errorf("feed: open replay: %w", err)
		emitLifecycle(r.life, Lifecycle{Status: StatusFailed, Err: err})
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		err = fmt.Errorf("feed: open replay: %w", err)
		emitLifecycle(r.life, Lifecycle{Status: StatusFailed, Err: err})
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	emitLifecycle(r.life, Lifecycle{Status: StatusConnected})

	paused := false
	seeking := r.StartAt > 0
	line := 0
	for sc.Scan() {
		line++
		var s Snapshot
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			logger.WithField("line", line).WithError(err).Warn("replay line skipped")
			continue
		}
		if seeking {
			if !s.Full || float64(s.Time)/1000 < r.StartAt {
				continue
			}
			seeking = false
		}
		if err := r.wait(ctx, &paused); err != nil {
			emitLifecycle(r.life, Lifecycle{Status: StatusDisconnected})
			if errors.Is(err, errCancelled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case r.updates <- s.Update():
		case <-ctx.Done():
			emitLifecycle(r.life, Lifecycle{Status: StatusDisconnected})
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		err = fmt.Errorf("feed: read replay: %w", err)
		emitLifecycle(r.life, Lifecycle{Status: StatusDisconnected, Err: err})
		return err
	}
	emitLifecycle(r.life, Lifecycle{Status: StatusDisconnected})
	return nil
}

// wait sleeps for the current delay, applying control actions meanwhile.
// While paused it waits for a resume.
func (r *Replayer) wait(ctx context.Context, paused *bool) error {
	var timer <-chan time.Time
	if !*paused {
		timer = time.After(r.delay)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-r.actions:
			switch a.Action {
			case ActionPause:
				*paused = true
				timer = nil
			case ActionStart, ActionResume:
				if *paused {
					*paused = false
					timer = time.After(r.delay)
				}
			case ActionChangeDelay:
				r.delay = time.Duration(a.DelayLengthMs) * time.Millisecond
				if !*paused {
					timer = time.After(r.delay)
				}
			case ActionCancel:
				return errCancelled
			}
		case <-timer:
			return nil
		}
	}
}

func (r *Replayer) send(a Action) error {
	a.Type = TypeAction
	select {
	case r.actions <- a:
		return nil
	default:
		return fmt.Errorf("feed: replay control queue full, %s dropped", a.Action)
	}
}

// Start resumes playback; a replay starts playing on its own.
func (r *Replayer) Start() error { return r.send(Action{Action: ActionStart}) }

// Pause pauses playback.
func (r *Replayer) Pause() error { return r.send(Action{Action: ActionPause}) }

// Resume resumes playback.
func (r *Replayer) Resume() error { return r.send(Action{Action: ActionResume}) }

// Cancel ends the replay.
func (r *Replayer) Cancel() error { return r.send(Action{Action: ActionCancel}) }

// ChangeDelay sets the delay between snapshots.
func (r *Replayer) ChangeDelay(ms int) error {
	return r.send(Action{Action: ActionChangeDelay, DelayLengthMs: ms})
}
