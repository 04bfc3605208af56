// ABOUTME: One source session on the sink side
// ABOUTME: Reader dispatches calls and data, writer drains the queue and pings
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

	"github.com/Resonate-Protocol/resonate-stream/internal/observer"
	"github.com/Resonate-Protocol/resonate-stream/pkg/protocol"
	"github.com/Resonate-Protocol/resonate-stream/pkg/sink"
)

type outbound struct {
	kind int
	data []byte
}

type session struct {
	server *Server
	conn   *websocket.Conn
	id     string
	owner  string // source identity used for stream ownership
	log    zerolog.Logger

	send   chan outbound
	ctx    context.Context
	cancel context.CancelFunc
	calls  sync.WaitGroup
	once   sync.Once

	handle observer.Handle
}

func newSession(s *Server, conn *websocket.Conn, id string, hello protocol.Hello) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		server: s,
		conn:   conn,
		id:     id,
		owner:  hello.ClientID,
		log: s.log.With().
			Str("session", id).
			Str("source", hello.Name).
			Logger(),
		send:   make(chan outbound, s.config.SendQueue),
		ctx:    ctx,
		cancel: cancel,
	}
}

// run serves the session until the connection drops
func (sess *session) run() {
	sk := sess.server.sink
	sess.handle = sk.AddListener(sess.forward)
	sess.log.Info().Str("owner", sess.owner).Msg("session started")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sess.writer()
	}()

	sess.reader()

	sess.close()
	sk.RemoveListener(sess.handle)
	sess.calls.Wait()
	<-writerDone

	// a source that vanishes without closing its stream gives it up
	if sk.Owner() == sess.owner {
		sk.Release(sess.owner)
	}
	sess.log.Info().Msg("session ended")
}

func (sess *session) close() {
	sess.once.Do(func() {
		sess.cancel()
		sess.conn.Close()
	})
}

func (sess *session) reader() {
	for {
		kind, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && sess.ctx.Err() == nil {
				sess.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			sess.handleData(data)
		case websocket.TextMessage:
			sess.handleText(data)
		}
	}
}

func (sess *session) handleData(frame []byte) {
	ts, payload, err := protocol.DecodeData(frame)
	if err != nil {
		sess.log.Warn().Err(err).Msg("dropping bad data frame")
		return
	}
	if sess.server.sink.Owner() != sess.owner {
		sess.log.Debug().Msg("dropping data from a source that does not own the stream")
		return
	}
	sess.server.sink.HandleData(ts, payload)
}

func (sess *session) handleText(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		sess.log.Warn().Err(err).Msg("dropping malformed message")
		return
	}
	if msg.Kind != protocol.KindCall {
		sess.log.Debug().Str("kind", msg.Kind).Msg("ignoring message")
		return
	}

	// calls may block (flush waits for its time) so data keeps flowing
	sess.calls.Add(1)
	go func() {
		defer sess.calls.Done()
		sess.reply(msg)
	}()
}

func (sess *session) reply(call protocol.Message) {
	result, err := sess.dispatch(call)

	var reply protocol.Message
	if err != nil {
		sess.log.Debug().Err(err).Str("method", call.Name).Msg("call failed")
		reply = protocol.Message{Kind: protocol.KindReply, ID: call.ID, Name: call.Name, Error: err.Error(), Code: errorCode(err)}
	} else {
		reply, err = protocol.NewMessage(protocol.KindReply, call.Name, call.ID, result)
		if err != nil {
			reply = protocol.Message{Kind: protocol.KindReply, ID: call.ID, Name: call.Name, Error: err.Error(), Code: errorCode(err)}
		}
	}
	if err := sess.enqueueJSON(reply); err != nil {
		sess.log.Warn().Err(err).Str("method", call.Name).Msg("failed to queue reply")
	}
}

// owned fails unless this session's source owns the stream
func (sess *session) owned() error {
	switch sess.server.sink.Owner() {
	case "":
		return sink.ErrNotOpen
	case sess.owner:
		return nil
	default:
		return sink.ErrNotOwner
	}
}

func decode(call protocol.Message, v interface{}) error {
	if err := call.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func (sess *session) dispatch(call protocol.Message) (interface{}, error) {
	sk := sess.server.sink

	switch call.Name {
	case protocol.MethodOpen:
		return nil, sk.Open(sess.owner)
	case protocol.MethodClose:
		return nil, sk.Close(sess.owner)

	case protocol.MethodSetTime:
		var p protocol.SetTimeParams
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		if err := sess.owned(); err != nil {
			return nil, err
		}
		sk.SetTime(p.Time)
		return nil, nil
	case protocol.MethodAdjustTime:
		var p protocol.AdjustTimeParams
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		if err := sess.owned(); err != nil {
			return nil, err
		}
		sk.AdjustTime(p.Delta)
		return nil, nil

	case protocol.MethodCapabilities:
		return sk.Capabilities(), nil
	case protocol.MethodConnect:
		var p protocol.ConnectParams
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		if err := sess.owned(); err != nil {
			return nil, err
		}
		return nil, sk.Connect(p.Host, p.Path, p.Configuration)

	case protocol.MethodFifoSize:
		return protocol.SizeResult{Bytes: sk.FifoSize()}, nil
	case protocol.MethodFifoPosition:
		return protocol.SizeResult{Bytes: sk.FifoPosition()}, nil
	case protocol.MethodDelay:
		pos, frames := sk.Delay()
		return protocol.DelayResult{FifoPosition: pos, DeviceFrames: frames}, nil

	case protocol.MethodPlay:
		if err := sess.owned(); err != nil {
			return nil, err
		}
		return nil, sk.Play()
	case protocol.MethodPause:
		var p protocol.TimeParams
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		if err := sess.owned(); err != nil {
			return nil, err
		}
		return nil, sk.Pause(p.At)
	case protocol.MethodFlush:
		var p protocol.TimeParams
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		if err := sess.owned(); err != nil {
			return nil, err
		}
		n, err := sk.Flush(sess.ctx, p.At)
		return protocol.SizeResult{Bytes: n}, err

	case protocol.MethodVolume:
		v, err := sk.Volume()
		return protocol.VolumeParams{Volume: v}, err
	case protocol.MethodSetVolume:
		var p protocol.VolumeParams
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		return nil, sk.SetVolume(p.Volume)
	case protocol.MethodAdjustVolume:
		var p protocol.VolumeParams
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		return nil, sk.AdjustVolume(p.Volume)
	case protocol.MethodAdjustVolumePercent:
		var p protocol.PercentParams
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		return nil, sk.AdjustVolumePercent(p.Change)
	case protocol.MethodVolumeRange:
		low, high, step := sk.VolumeRange()
		return protocol.VolumeRange{Low: low, High: high, Step: step}, nil
	case protocol.MethodMute:
		m, err := sk.Mute()
		return protocol.MuteParams{Mute: m}, err
	case protocol.MethodSetMute:
		var p protocol.MuteParams
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		return nil, sk.SetMute(p.Mute)
	case protocol.MethodEnabled:
		return protocol.EnabledResult{Enabled: sk.Enabled()}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, call.Name)
	}
}

// forward turns sink events into signals. Low-water notices only go to the
// stream owner.
func (sess *session) forward(e sink.Event) {
	var payload interface{}
	switch ev := e.(type) {
	case sink.FifoPositionChanged:
		if sess.server.sink.Owner() != sess.owner {
			return
		}
	case sink.PlayStateChanged:
		payload = protocol.PlayStateChanged{Old: uint8(ev.Old), New: uint8(ev.New)}
	case sink.VolumeChanged:
		payload = protocol.VolumeParams{Volume: ev.Volume}
	case sink.MuteChanged:
		payload = protocol.MuteParams{Mute: ev.Mute}
	case sink.OwnershipLost:
		payload = protocol.OwnershipLost{NewOwner: ev.NewOwner}
	default:
		return
	}

	msg, err := protocol.NewMessage(protocol.KindSignal, e.Name(), 0, payload)
	if err != nil {
		sess.log.Warn().Err(err).Str("signal", e.Name()).Msg("failed to build signal")
		return
	}
	if err := sess.enqueueJSON(msg); err != nil {
		sess.log.Warn().Err(err).Str("signal", e.Name()).Msg("dropping signal")
	}
}

// enqueueJSON queues msg without blocking
func (sess *session) enqueueJSON(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", msg.Name, err)
	}
	if sess.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case sess.send <- outbound{kind: websocket.TextMessage, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// writeJSON writes directly; only used before the writer starts
func (sess *session) writeJSON(msg protocol.Message) error {
	sess.conn.SetWriteDeadline(time.Now().Add(sess.server.config.WriteTimeout))
	return sess.conn.WriteJSON(msg)
}

func (sess *session) writer() {
	ticker := time.NewTicker(sess.server.config.PingInterval)
	defer ticker.Stop()
	timeout := sess.server.config.WriteTimeout

	for {
		select {
		case out := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := sess.conn.WriteMessage(out.kind, out.data); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) && sess.ctx.Err() == nil {
					sess.log.Warn().Err(err).Msg("websocket write error")
				}
				sess.close()
				return
			}
		case <-ticker.C:
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout)); err != nil {
				sess.close()
				return
			}
		case <-sess.ctx.Done():
			return
		}
	}
}
