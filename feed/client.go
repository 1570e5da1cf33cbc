package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phanxgames/trafficview"
)

// ClientOptions configures Dial. The zero value is usable.
type ClientOptions struct {
	Dialer *websocket.Dialer
	Header http.Header
	// Recorder, when set, receives every snapshot.
	Recorder *Recorder
	// Buffer is the number of decoded updates queued ahead of the game
	// loop. Default 256.
	Buffer int
}

// Client is a live connection to a simulation server. Run reads snapshots
// on its own goroutine; the game loop consumes them through Pump.
type Client struct {
	conn *websocket.Conn
	rec  *Recorder

	writeMu sync.Mutex
	updates chan trafficview.Update
	states  chan State
	life    chan Lifecycle

	closeOnce sync.Once
}

// Dial connects to url. A failed dial returns an error; the caller reports
// it (StatusFailed). The client never reconnects on its own.
func Dial(ctx context.Context, url string, opts ClientOptions) (*Client, error) {
	d := opts.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	conn, _, err := d.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("feed: dial %s: %w", url, err)
	}
	buf := opts.Buffer
	if buf <= 0 {
		buf = 256
	}
	c := &Client{
		conn:    conn,
		rec:     opts.Recorder,
		updates: make(chan trafficview.Update, buf),
		states:  make(chan State, 1),
		life:    make(chan Lifecycle, 4),
	}
	emitLifecycle(c.life, Lifecycle{Status: StatusConnected})
	return c, nil
}

// Updates returns the stream of decoded snapshots.
func (c *Client) Updates() <-chan trafficview.Update { return c.updates }

// Lifecycle returns connection state changes.
func (c *Client) Lifecycle() <-chan Lifecycle { return c.life }

// States returns the server's replies to control actions. Only the newest
// unread state is kept.
func (c *Client) States() <-chan State { return c.states }

// Run reads messages until the connection drops or ctx is done. It returns
// nil on cancellation and the read error otherwise; either way a
// StatusDisconnected change is emitted.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				emitLifecycle(c.life, Lifecycle{Status: StatusDisconnected})
				return nil
			}
			emitLifecycle(c.life, Lifecycle{Status: StatusDisconnected, Err: err})
			return fmt.Errorf("feed: read: %w", err)
		}
		if err := c.handle(ctx, data); err != nil {
			if errors.Is(err, context.Canceled) {
				emitLifecycle(c.life, Lifecycle{Status: StatusDisconnected})
				return nil
			}
			logger.WithError(err).Warn("feed message dropped")
		}
	}
}

func (c *Client) handle(ctx context.Context, data []byte) error {
	base, err := DecodeBase(data)
	if err != nil {
		return err
	}
	switch base.Type {
	case TypeSnapshot:
		var s Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("feed: decode snapshot: %w", err)
		}
		if c.rec != nil {
			if err := c.rec.Write(&s); err != nil {
				logger.WithError(err).Warn("recording failed")
			}
		}
		select {
		case c.updates <- s.Update():
		case <-ctx.Done():
			return ctx.Err()
		}
	case TypeState:
		var st State
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("feed: decode state: %w", err)
		}
		select {
		case <-c.states:
		default:
		}
		c.states <- st
	default:
		logger.WithField("type", base.Type).Debug("unknown feed message")
	}
	return nil
}

func (c *Client) send(a Action) error {
	a.Type = TypeAction
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return fmt.Errorf("feed: send %s: %w", a.Action, err)
	}
	if err := c.conn.WriteJSON(a); err != nil {
		return fmt.Errorf("feed: send %s: %w", a.Action, err)
	}
	return nil
}

// Start asks the server to start the simulation.
func (c *Client) Start() error { return c.send(Action{Action: ActionStart}) }

// Pause pauses the simulation.
func (c *Client) Pause() error { return c.send(Action{Action: ActionPause}) }

// Resume resumes a paused simulation.
func (c *Client) Resume() error { return c.send(Action{Action: ActionResume}) }

// Cancel stops the simulation.
func (c *Client) Cancel() error { return c.send(Action{Action: ActionCancel}) }

// ChangeDelay sets the delay between snapshots.
func (c *Client) ChangeDelay(ms int) error {
	return c.send(Action{Action: ActionChangeDelay, DelayLengthMs: ms})
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		if c.rec != nil {
			if rerr := c.rec.Close(); err == nil {
				err = rerr
			}
		}
	})
	return err
}
