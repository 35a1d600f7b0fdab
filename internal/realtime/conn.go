// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package realtime is a Socket.IO client speaking Engine.IO v4 over a
// WebSocket. One Conn carries every subscription; inbound events are
// decoded into wire variants and published on a bus.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/sosync/internal/bus"
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/metrics"
	platformnet "github.com/ManuGH/sosync/internal/platform/net"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultPublishTimeout = 2 * time.Second
	defaultMinBackoff     = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultEmitRate       = rate.Limit(10)
	defaultEmitBurst      = 5
)

var (
	// ErrNotConnected is returned by Emit while the socket is down.
	ErrNotConnected = fmt.Errorf("%w: socket not connected", model.ErrTransportUnavailable)
	ErrClosed       = errors.New("realtime: connection closed")
	errServerClosed = errors.New("realtime: server closed the connection")
)

// Options configures a Conn.
type Options struct {
	Endpoint       string // host:port or URL of the socket server
	Path           string // Socket.IO path, default /socket.io/
	EmitRate       rate.Limit
	EmitBurst      int
	DialTimeout    time.Duration
	PublishTimeout time.Duration
	Reconnect      bool
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.EmitRate <= 0 {
		o.EmitRate = defaultEmitRate
	}
	if o.EmitBurst <= 0 {
		o.EmitBurst = defaultEmitBurst
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = defaultMinBackoff
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = defaultMaxBackoff
	}
	return o
}

// Conn is a single multiplexed Socket.IO connection.
type Conn struct {
	opts    Options
	url     string
	origin  string
	bus     bus.Bus
	limiter *rate.Limiter
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	ws     *websocket.Conn
	sid    string
	joins  []wire.Command
	closed bool

	writeMu   sync.Mutex
	connected atomic.Bool
}

// Dial connects and completes the Socket.IO handshake. The returned Conn
// reads until Close; with Options.Reconnect it redials on loss and replays
// room joins.
func Dial(ctx context.Context, opts Options, b bus.Bus) (*Conn, error) {
	opts = opts.withDefaults()
	u, err := platformnet.SocketURL(opts.Endpoint, opts.Path)
	if err != nil {
		return nil, err
	}
	origin, err := originFor(u)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		opts:    opts,
		url:     u,
		origin:  origin,
		bus:     b,
		limiter: rate.NewLimiter(opts.EmitRate, opts.EmitBurst),
		logger:  xglog.WithComponent("realtime").With().Str(xglog.FieldEndpoint, platformnet.SanitizeURL(u)).Logger(),
		ctx:     runCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	ws, hs, sid, err := c.handshake(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	c.attach(ws, sid)
	go c.run(ws, hs)
	return c, nil
}

// Connected reports whether the socket is currently usable.
func (c *Conn) Connected() bool { return c.connected.Load() }

// SID returns the Socket.IO session id of the current connection.
func (c *Conn) SID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid
}

// Subscribe returns a subscription to a bus topic fed by this connection.
func (c *Conn) Subscribe(ctx context.Context, topic string) (bus.Subscriber, error) {
	return c.bus.Subscribe(ctx, topic)
}

// Emit sends a command. Room joins are remembered and replayed after a
// reconnect.
func (c *Conn) Emit(ctx context.Context, cmd wire.Command) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	name, payload, err := wire.Encode(cmd)
	if err != nil {
		return err
	}
	pkt, err := EventPacket(name, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	if err := c.write(ws, pkt.Encode()); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	metrics.RecordRealtimeEvent("out", name)
	if isJoin(cmd) {
		c.remember(cmd)
	}
	return nil
}

// Close disconnects and waits for the reader to exit. It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws != nil {
		disconnect := Packet{EIO: eioMessage, SIO: sioDisconnect, AckID: -1}
		_ = c.write(ws, disconnect.Encode())
		_ = ws.Close()
	}
	<-c.done
	return nil
}

// Done is closed once the connection has stopped for good.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) attach(ws *websocket.Conn, sid string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return false
	}
	c.ws, c.sid = ws, sid
	c.mu.Unlock()
	c.connected.Store(true)
	metrics.SetRealtimeConnected(true)
	c.logger.Info().Str(xglog.FieldEvent, "realtime.connected").Str("sid", sid).Msg("socket connected")
	c.publish(wire.Connected{SID: sid})
	return true
}

func (c *Conn) detach(reason string) {
	c.connected.Store(false)
	metrics.SetRealtimeConnected(false)
	c.publish(wire.Disconnected{Reason: reason})
}

func (c *Conn) run(ws *websocket.Conn, hs handshake) {
	defer close(c.done)
	for {
		err := c.readLoop(ws, hs)
		_ = ws.Close()
		reason := "client_closed"
		if c.ctx.Err() == nil {
			reason = err.Error()
			c.logger.Warn().Err(err).Str(xglog.FieldEvent, "realtime.disconnected").Msg("socket lost")
		}
		c.detach(reason)
		if c.ctx.Err() != nil || !c.opts.Reconnect {
			return
		}

		var sid string
		ws, hs, sid, err = c.redial()
		if err != nil {
			return
		}
		if !c.attach(ws, sid) {
			return
		}
		c.replayJoins(ws)
	}
}

func (c *Conn) redial() (*websocket.Conn, handshake, string, error) {
	backoff := c.opts.MinBackoff
	for attempt := 1; ; attempt++ {
		jitter := time.Duration(rand.Int64N(int64(backoff)/2 + 1))
		select {
		case <-c.ctx.Done():
			return nil, handshake{}, "", ErrClosed
		case <-time.After(backoff + jitter):
		}

		ws, hs, sid, err := c.handshake(c.ctx)
		if err == nil {
			return ws, hs, sid, nil
		}
		c.logger.Debug().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("reconnect failed")
		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
}

func (c *Conn) replayJoins(ws *websocket.Conn) {
	c.mu.Lock()
	joins := append([]wire.Command(nil), c.joins...)
	c.mu.Unlock()
	for _, cmd := range joins {
		name, payload, err := wire.Encode(cmd)
		if err != nil {
			continue
		}
		pkt, err := EventPacket(name, payload)
		if err != nil {
			continue
		}
		if err := c.write(ws, pkt.Encode()); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldEvent, name).Msg("failed to replay room join")
			return
		}
	}
}

func (c *Conn) remember(cmd wire.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range c.joins {
		if j == cmd {
			return
		}
	}
	c.joins = append(c.joins, cmd)
}

// Forget drops a remembered join so it is no longer replayed after a
// reconnect. The server-side room membership lasts until the socket closes.
func (c *Conn) Forget(cmd wire.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins = slices.DeleteFunc(c.joins, func(j wire.Command) bool { return j == cmd })
}

func isJoin(cmd wire.Command) bool {
	switch cmd.(type) {
	case wire.JoinSOSChannel, wire.JoinSOSRoom, wire.JoinOfficerRoom, wire.JoinOfficerUpdate:
		return true
	}
	return false
}

func (c *Conn) handshake(ctx context.Context) (*websocket.Conn, handshake, string, error) {
	var hs handshake
	cfg, err := websocket.NewConfig(c.url, c.origin)
	if err != nil {
		return nil, hs, "", fmt.Errorf("realtime: config: %w", err)
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	ws, err := cfg.DialContext(dialCtx)
	if err != nil {
		return nil, hs, "", fmt.Errorf("%w: dial: %v", model.ErrTransportUnavailable, err)
	}
	fail := func(err error) (*websocket.Conn, handshake, string, error) {
		_ = ws.Close()
		return nil, hs, "", fmt.Errorf("%w: handshake: %v", model.ErrTransportUnavailable, err)
	}
	deadline, _ := dialCtx.Deadline()
	_ = ws.SetDeadline(deadline)

	open, err := receive(ws)
	if err != nil {
		return fail(err)
	}
	if open.EIO != eioOpen {
		return fail(fmt.Errorf("expected open packet, got %q", open.EIO))
	}
	if err := json.Unmarshal(open.Data, &hs); err != nil {
		return fail(fmt.Errorf("open payload: %w", err))
	}

	connect := Packet{EIO: eioMessage, SIO: sioConnect, AckID: -1}
	if err := websocket.Message.Send(ws, connect.Encode()); err != nil {
		return fail(err)
	}
	for {
		p, err := receive(ws)
		if err != nil {
			return fail(err)
		}
		switch {
		case p.EIO == eioPing:
			if err := websocket.Message.Send(ws, string(eioPong)); err != nil {
				return fail(err)
			}
		case p.EIO == eioMessage && p.SIO == sioConnect:
			var body connectBody
			_ = json.Unmarshal(p.Data, &body)
			_ = ws.SetDeadline(time.Time{})
			return ws, hs, body.SID, nil
		case p.EIO == eioMessage && p.SIO == sioConnectError:
			var body connectBody
			_ = json.Unmarshal(p.Data, &body)
			c.publish(wire.ConnectError{Message: body.Message})
			return fail(fmt.Errorf("connect refused: %s", body.Message))
		}
	}
}

func (c *Conn) readLoop(ws *websocket.Conn, hs handshake) error {
	for {
		_ = ws.SetReadDeadline(time.Now().Add(hs.deadline()))
		p, err := receive(ws)
		if err != nil {
			if errors.Is(err, ErrBadPacket) {
				c.logger.Debug().Err(err).Msg("dropping malformed frame")
				continue
			}
			return err
		}
		switch p.EIO {
		case eioPing:
			if err := c.write(ws, string(eioPong)); err != nil {
				return err
			}
		case eioClose:
			return errServerClosed
		case eioMessage:
			if err := c.handleMessage(p); err != nil {
				return err
			}
		}
	}
}

func (c *Conn) handleMessage(p Packet) error {
	switch p.SIO {
	case sioDisconnect:
		return errServerClosed
	case sioConnectError:
		var body connectBody
		_ = json.Unmarshal(p.Data, &body)
		c.publish(wire.ConnectError{Message: body.Message})
		return fmt.Errorf("realtime: connect error: %s", body.Message)
	case sioEvent:
	default:
		return nil
	}

	name, payload, err := p.EventArgs()
	if err != nil {
		c.logger.Debug().Err(err).Msg("dropping malformed event")
		return nil
	}
	ev, err := wire.Decode(name, payload)
	if err != nil {
		metrics.RecordRealtimeEvent("in", "unknown")
		c.logger.Debug().Err(err).Str(xglog.FieldEvent, name).Msg("dropping undecodable event")
		return nil
	}
	metrics.RecordRealtimeEvent("in", name)
	c.publish(ev)
	return nil
}

func (c *Conn) publish(ev wire.Event) {
	for _, r := range Route(ev) {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.PublishTimeout)
		err := c.bus.Publish(ctx, r.Topic, r.Event)
		cancel()
		if err != nil {
			c.logger.Debug().Err(err).Str(xglog.FieldTopic, r.Topic).Msg("slow subscriber dropped event")
		}
	}
}

func (c *Conn) write(ws *websocket.Conn, frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return websocket.Message.Send(ws, frame)
}

func receive(ws *websocket.Conn) (Packet, error) {
	var frame string
	if err := websocket.Message.Receive(ws, &frame); err != nil {
		return Packet{}, err
	}
	return ParsePacket(frame)
}

func originFor(socketURL string) (string, error) {
	u, err := url.Parse(socketURL)
	if err != nil {
		return "", err
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}
