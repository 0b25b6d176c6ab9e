// Package takeover implements the Takeover Server (C5): it accepts a single
// exclusive WebSocket client, forwards its binary frames verbatim to the
// Serial Session, and pauses/resumes local rendering around the client's
// lifetime.
package takeover

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// rawFrame carries a received frame's payload together with its type, so
// the takeover server can tell binary command frames from text frames —
// the stock websocket.Message codec discards that distinction.
type rawFrame struct {
	payloadType byte
	data        []byte
}

var frameCodec = websocket.Codec{
	Marshal: nil,
	Unmarshal: func(data []byte, payloadType byte, v interface{}) error {
		f, ok := v.(*rawFrame)
		if !ok {
			return websocket.ErrNotSupported
		}
		f.payloadType = payloadType
		f.data = append([]byte(nil), data...)
		return nil
	},
}

// ErrorCode enumerates the JSON error codes sent to an evicted, rejected,
// or timed-out WebSocket client.
type ErrorCode string

const (
	CodeEvicted     ErrorCode = "EVICTED"
	CodeServerBusy  ErrorCode = "SERVER_BUSY"
	CodeIdleTimeout ErrorCode = "IDLE_TIMEOUT"
	CodeSerialError ErrorCode = "SERIAL_ERROR"
	CodeShutdown    ErrorCode = "SHUTDOWN"
)

// ErrorMsg is the JSON error envelope sent to WebSocket clients.
type ErrorMsg struct {
	Error      string    `json:"error"`
	Code       ErrorCode `json:"code"`
	Timestamp  string    `json:"timestamp"`
	RetryAfter int       `json:"retryAfter,omitempty"`
	Details    string    `json:"details,omitempty"`
}

// Engine is the render.Engine surface the takeover server drives.
type Engine interface {
	Pause() error
	Resume()
}

// Writer forwards raw client bytes to the device.
type Writer interface {
	RawWrite(b []byte) error
}

// Server is the C5 exclusive-access WebSocket takeover server.
type Server struct {
	engine      Engine
	writer      Writer
	evictionAge time.Duration
	idleTimeout time.Duration

	mu     sync.Mutex
	active *activeClient
}

type activeClient struct {
	conn       *websocket.Conn
	connectAt  time.Time
	idleTimer  *time.Timer
	closed     chan struct{}
	closeOnce  sync.Once
}

// New constructs a takeover Server. evictionAge bounds how long an existing
// client holds exclusive access before a new connection may evict it;
// idleTimeout closes a connected client that sends nothing for that long.
func New(engine Engine, writer Writer, evictionAge, idleTimeout time.Duration) *Server {
	return &Server{engine: engine, writer: writer, evictionAge: evictionAge, idleTimeout: idleTimeout}
}

// Handler returns the net/http handler to mount at "/ws".
func (s *Server) Handler() http.Handler {
	return websocket.Handler(s.handle)
}

// Shutdown evicts any active client with a SHUTDOWN error.
func (s *Server) Shutdown() {
	s.mu.Lock()
	ac := s.active
	s.mu.Unlock()
	if ac != nil {
		s.closeClient(ac, CodeShutdown, "server shutting down", 0)
	}
}

func (s *Server) handle(ws *websocket.Conn) {
	now := time.Now()

	s.mu.Lock()
	if s.active != nil {
		age := now.Sub(s.active.connectAt)
		if age >= s.evictionAge {
			evicted := s.active
			s.mu.Unlock()
			s.closeClient(evicted, CodeEvicted, "evicted by a new connection", 0)
			s.mu.Lock()
		} else {
			retryAfter := int(math.Ceil((s.evictionAge - age).Seconds()))
			s.mu.Unlock()
			sendError(ws, ErrorMsg{
				Error:      "another client is already in control",
				Code:       CodeServerBusy,
				Timestamp:  now.UTC().Format(time.RFC3339),
				RetryAfter: retryAfter,
			})
			ws.Close()
			return
		}
	}

	ac := &activeClient{conn: ws, connectAt: time.Now(), closed: make(chan struct{})}
	s.active = ac
	s.mu.Unlock()

	if err := s.engine.Pause(); err != nil {
		log.Printf("takeover: pause failed: %v", err)
	}
	defer func() {
		s.mu.Lock()
		if s.active == ac {
			s.active = nil
		}
		s.mu.Unlock()
		s.engine.Resume()
	}()

	ac.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		s.closeClient(ac, CodeIdleTimeout, "no activity within idle timeout", 0)
	})
	defer ac.idleTimer.Stop()

	s.readLoop(ac)
}

func (s *Server) readLoop(ac *activeClient) {
	for {
		var f rawFrame
		if err := frameCodec.Receive(ac.conn, &f); err != nil {
			return
		}
		select {
		case <-ac.closed:
			return
		default:
		}
		if f.payloadType == websocket.TextFrame {
			log.Printf("takeover: ignoring text frame from client")
			continue
		}
		ac.idleTimer.Reset(s.idleTimeout)
		if err := s.writer.RawWrite(f.data); err != nil {
			s.closeClient(ac, CodeSerialError, "failed writing to device", 0)
			return
		}
	}
}

func (s *Server) closeClient(ac *activeClient, code ErrorCode, reason string, retryAfter int) {
	ac.closeOnce.Do(func() {
		sendError(ac.conn, ErrorMsg{
			Error:      reason,
			Code:       code,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			RetryAfter: retryAfter,
		})
		close(ac.closed)
		ac.conn.Close()
	})
}

func sendError(ws *websocket.Conn, msg ErrorMsg) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Printf("takeover: marshal error message: %v", err)
		return
	}
	if err := websocket.Message.Send(ws, string(b)); err != nil {
		log.Printf("takeover: send error message: %v", err)
	}
}
