package feed

import (
	"github.com/phanxgames/trafficview"
)

// Status is a feed connection state.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusFailed       Status = "failed"
)

// Lifecycle is a connection state change. Err is set when the change was
// caused by an error.
type Lifecycle struct {
	Status Status
	Err    error
}

// Source is a stream of scene updates: a live Client or a Replayer.
type Source interface {
	Updates() <-chan trafficview.Update
	Lifecycle() <-chan Lifecycle
}

// Controller drives the simulation behind a Source.
type Controller interface {
	Start() error
	Pause() error
	Resume() error
	Cancel() error
	ChangeDelay(ms int) error
}

// maxUpdatesPerPump bounds the work done in one frame when the feed runs
// ahead of rendering.
const maxUpdatesPerPump = 64

// Pump applies the updates and lifecycle changes that are ready, without
// blocking, and returns the number of updates applied. Call it from the
// game loop so that every mutation happens on the render goroutine.
func Pump(scene *trafficview.Scene, src Source) int {
drain:
	for {
		select {
		case l := <-src.Lifecycle():
			scene.ReportFeedStatus(string(l.Status), l.Err)
		default:
			break drain
		}
	}
	n := 0
	for n < maxUpdatesPerPump {
		select {
		case u, ok := <-src.Updates():
			if !ok {
				return n
			}
			scene.ApplyUpdate(u)
			n++
		default:
			return n
		}
	}
	return n
}

// emitLifecycle delivers l without blocking; a full channel drops the
// oldest pending change.
func emitLifecycle(ch chan Lifecycle, l Lifecycle) {
	for {
		select {
		case ch <- l:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

var (
	_ Source     = (*Client)(nil)
	_ Source     = (*Replayer)(nil)
	_ Controller = (*Client)(nil)
	_ Controller = (*Replayer)(nil)
)
