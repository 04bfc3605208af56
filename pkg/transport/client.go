// ABOUTME: Source-side websocket client for one remote sink
// ABOUTME: Correlates calls with replies, routes signals, and ships data frames
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Resonate-Protocol/resonate-stream/internal/logging"
	"github.com/Resonate-Protocol/resonate-stream/internal/version"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
	"github.com/Resonate-Protocol/resonate-stream/pkg/player"
	"github.com/Resonate-Protocol/resonate-stream/pkg/protocol"
)

// ClientConfig holds client settings
type ClientConfig struct {
	ClientID     string        // stable identity used for stream ownership
	Name         string        // human readable source name
	CallTimeout  time.Duration // per call when the context has no deadline (default 5s)
	HelloTimeout time.Duration // wait for the hello reply (default 5s)
	PingInterval time.Duration // keepalive (default 30s)
	WriteTimeout time.Duration // per frame (default 10s)
	Logger       *zerolog.Logger
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Name == "" {
		c.Name = "source"
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// Client is a session with one sink. It implements player.SinkConn.
type Client struct {
	config  ClientConfig
	conn    *websocket.Conn
	signals player.Signals
	hello   protocol.HelloReply
	log     zerolog.Logger

	wmu sync.Mutex // serializes writes on conn

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan protocol.Message
	closed  bool

	done     chan struct{}
	lostOnce sync.Once
	wg       sync.WaitGroup
}

var _ player.SinkConn = (*Client)(nil)

// Dial connects to the sink at url and performs the hello handshake
func Dial(ctx context.Context, url string, config ClientConfig, signals player.Signals) (*Client, error) {
	config = config.withDefaults()
	if config.ClientID == "" {
		return nil, fmt.Errorf("client id required")
	}
	log := logging.Or(config.Logger, "transport").With().Str("url", url).Logger()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Client{
		config:  config,
		conn:    conn,
		signals: signals,
		log:     log,
		pending: make(map[uint64]chan protocol.Message),
		done:    make(chan struct{}),
	}

	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	c.log = c.log.With().Str("sink", c.hello.Name).Logger()
	c.log.Debug().Str("session", c.hello.SessionID).Msg("handshake complete")

	c.wg.Add(2)
	go c.readMessages()
	go c.keepalive()

	return c, nil
}

func (c *Client) handshake() error {
	hello := protocol.Hello{
		ClientID: c.config.ClientID,
		Name:     c.config.Name,
		Version:  version.Interfaces,
	}
	msg, err := protocol.NewMessage(protocol.KindHello, "", 0, hello)
	if err != nil {
		return err
	}
	if err := c.write(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to send hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.config.HelloTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read hello reply: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var reply protocol.Message
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("failed to parse hello reply: %w", err)
	}
	if reply.Kind != protocol.KindHello {
		return fmt.Errorf("expected hello, got %s", reply.Kind)
	}
	return reply.Decode(&c.hello)
}

// HelloReply returns what the sink reported about itself
func (c *Client) HelloReply() protocol.HelloReply {
	return c.hello
}

// write sends one frame. v is a protocol.Message or raw binary data.
func (c *Client) write(kind int, v interface{}) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if kind == websocket.TextMessage {
		return c.conn.WriteJSON(v)
	}
	return c.conn.WriteMessage(kind, v.([]byte))
}

func (c *Client) keepalive() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.wmu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			c.wmu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readMessages() {
	defer c.wg.Done()

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed message")
			continue
		}

		switch msg.Kind {
		case protocol.KindReply:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case protocol.KindSignal:
			c.handleSignal(msg)
		default:
			c.log.Debug().Str("kind", msg.Kind).Msg("ignoring message")
		}
	}
}

func (c *Client) handleSignal(msg protocol.Message) {
	s := c.signals

	switch msg.Name {
	case protocol.SignalFifoPositionChanged:
		if s.FifoPositionChanged != nil {
			s.FifoPositionChanged()
		}
	case protocol.SignalVolumeChanged:
		var p protocol.VolumeParams
		if err := msg.Decode(&p); err == nil && s.VolumeChanged != nil {
			s.VolumeChanged(p.Volume)
		}
	case protocol.SignalMuteChanged:
		var p protocol.MuteParams
		if err := msg.Decode(&p); err == nil && s.MuteChanged != nil {
			s.MuteChanged(p.Mute)
		}
	case protocol.SignalOwnershipLost:
		var p protocol.OwnershipLost
		if err := msg.Decode(&p); err != nil {
			return
		}
		// reopening our own stream takes it from ourselves
		if p.NewOwner == c.config.ClientID {
			return
		}
		if s.OwnershipLost != nil {
			s.OwnershipLost(p.NewOwner)
		}
	case protocol.SignalPlayStateChanged:
		var p protocol.PlayStateChanged
		if err := msg.Decode(&p); err == nil {
			c.log.Debug().Uint8("old", p.Old).Uint8("new", p.New).Msg("sink play state changed")
		}
	default:
		c.log.Debug().Str("signal", msg.Name).Msg("unknown signal")
	}
}

// shutdown fails pending calls and reports an unexpected loss once
func (c *Client) shutdown(err error) {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint64]chan protocol.Message)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	c.lostOnce.Do(func() {
		close(c.done)
		if wasClosed {
			return
		}
		c.log.Warn().Err(err).Msg("sink session lost")
		if c.signals.Lost != nil {
			c.signals.Lost(err)
		}
	})
}

// Close ends the session. Lost is not called.
func (c *Client) Close() error {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	if !wasClosed {
		c.wmu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
	}

	c.conn.Close()
	c.wg.Wait()
	return nil
}

// call sends a method call and decodes the reply into result
func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan protocol.Message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	msg, err := protocol.NewMessage(protocol.KindCall, method, id, params)
	if err != nil {
		forget()
		return err
	}
	if err := c.write(websocket.TextMessage, msg); err != nil {
		forget()
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if reply.Error != "" {
			return remoteError(reply.Code, reply.Error)
		}
		if result != nil {
			return reply.Decode(result)
		}
		return nil
	case <-ctx.Done():
		forget()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w: %w", method, ErrTimeout, context.DeadlineExceeded)
		}
		return ctx.Err()
	}
}

// SendData ships one encoded chunk
func (c *Client) SendData(ctx context.Context, timestamp uint64, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.write(websocket.BinaryMessage, protocol.EncodeData(timestamp, payload))
}

func (c *Client) OpenStream(ctx context.Context) error {
	return c.call(ctx, protocol.MethodOpen, nil, nil)
}

func (c *Client) CloseStream(ctx context.Context) error {
	return c.call(ctx, protocol.MethodClose, nil, nil)
}

func (c *Client) SetTime(ctx context.Context, t uint64) error {
	return c.call(ctx, protocol.MethodSetTime, protocol.SetTimeParams{Time: t}, nil)
}

func (c *Client) AdjustTime(ctx context.Context, delta int64) error {
	return c.call(ctx, protocol.MethodAdjustTime, protocol.AdjustTimeParams{Delta: delta}, nil)
}

func (c *Client) Capabilities(ctx context.Context) ([]capability.Capability, error) {
	var caps []capability.Capability
	err := c.call(ctx, protocol.MethodCapabilities, nil, &caps)
	return caps, err
}

func (c *Client) Connect(ctx context.Context, host, path string, config capability.Capability) error {
	return c.call(ctx, protocol.MethodConnect, protocol.ConnectParams{Host: host, Path: path, Configuration: config}, nil)
}

func (c *Client) FifoSize(ctx context.Context) (int, error) {
	var r protocol.SizeResult
	err := c.call(ctx, protocol.MethodFifoSize, nil, &r)
	return r.Bytes, err
}

func (c *Client) FifoPosition(ctx context.Context) (int, error) {
	var r protocol.SizeResult
	err := c.call(ctx, protocol.MethodFifoPosition, nil, &r)
	return r.Bytes, err
}

// Delay returns the sink's fifo fill and the frames queued in its device
func (c *Client) Delay(ctx context.Context) (fifoPosition, deviceFrames int, err error) {
	var r protocol.DelayResult
	err = c.call(ctx, protocol.MethodDelay, nil, &r)
	return r.FifoPosition, r.DeviceFrames, err
}

func (c *Client) Play(ctx context.Context) error {
	return c.call(ctx, protocol.MethodPlay, nil, nil)
}

func (c *Client) Pause(ctx context.Context, at uint64) error {
	return c.call(ctx, protocol.MethodPause, protocol.TimeParams{At: at}, nil)
}

func (c *Client) Flush(ctx context.Context, at uint64) (int, error) {
	var r protocol.SizeResult
	err := c.call(ctx, protocol.MethodFlush, protocol.TimeParams{At: at}, &r)
	return r.Bytes, err
}

func (c *Client) Volume(ctx context.Context) (int16, error) {
	var r protocol.VolumeParams
	err := c.call(ctx, protocol.MethodVolume, nil, &r)
	return r.Volume, err
}

func (c *Client) SetVolume(ctx context.Context, volume int16) error {
	return c.call(ctx, protocol.MethodSetVolume, protocol.VolumeParams{Volume: volume}, nil)
}

// AdjustVolume changes the volume by delta, clamped to the range
func (c *Client) AdjustVolume(ctx context.Context, delta int16) error {
	return c.call(ctx, protocol.MethodAdjustVolume, protocol.VolumeParams{Volume: delta}, nil)
}

// AdjustVolumePercent changes the volume by a fraction of the range
func (c *Client) AdjustVolumePercent(ctx context.Context, change float64) error {
	return c.call(ctx, protocol.MethodAdjustVolumePercent, protocol.PercentParams{Change: change}, nil)
}

func (c *Client) VolumeRange(ctx context.Context) (low, high, step int16, err error) {
	var r protocol.VolumeRange
	err = c.call(ctx, protocol.MethodVolumeRange, nil, &r)
	return r.Low, r.High, r.Step, err
}

func (c *Client) Mute(ctx context.Context) (bool, error) {
	var r protocol.MuteParams
	err := c.call(ctx, protocol.MethodMute, nil, &r)
	return r.Mute, err
}

func (c *Client) SetMute(ctx context.Context, mute bool) error {
	return c.call(ctx, protocol.MethodSetMute, protocol.MuteParams{Mute: mute}, nil)
}

func (c *Client) Enabled(ctx context.Context) (bool, error) {
	var r protocol.EnabledResult
	err := c.call(ctx, protocol.MethodEnabled, nil, &r)
	return r.Enabled, err
}
