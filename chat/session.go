// Package chat implements the realtime group chat core: per-connection
// sessions with buffered write pumps, a room registry for fan-out, and the
// persistent message store behind the replay-on-connect behavior.
package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeDeadline = 10 * time.Second
	readDeadlineS = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Frame is the wire format of one chat message pushed to clients.
// Username carries the sender's first name, matching what clients render.
type Frame struct {
	Message  string `json:"message"`
	Username string `json:"username"`
	LastName string `json:"lastname"`
}

// Inbound is the wire format clients send.
type Inbound struct {
	Message string `json:"message"`
}

// Session represents one connected chat client. A profile may hold several
// sessions at once (one per device); each gets its own write pump.
type Session struct {
	ProfileID int64
	FirstName string
	LastName  string
	Room      string

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}
	TraceID  string

	closeOnce sync.Once
	logger    *zap.Logger
}

// NewSession creates a Session with its write goroutine started.
func NewSession(profileID int64, firstName, lastName, room string, conn *websocket.Conn, sendBuf int, logger *zap.Logger) *Session {
	if sendBuf <= 0 {
		sendBuf = 256
	}
	s := &Session{
		ProfileID: profileID,
		FirstName: firstName,
		LastName:  lastName,
		Room:      room,
		Conn:      conn,
		SendChan:  make(chan []byte, sendBuf),
		Done:      make(chan struct{}),
		logger:    logger,
	}
	go s.writePump()
	return s
}

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data, ok := <-s.SendChan:
			if !ok {
				return
			}
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Int64("profile_id", s.ProfileID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes the frame and sends it non-blocking. Drops if the buffer is
// full or the session closed.
func (s *Session) Send(f *Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	s.SendRaw(data)
}

// SendRaw sends pre-encoded bytes non-blocking. Drops if full or closed.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping frame",
				zap.Int64("profile_id", s.ProfileID),
				zap.String("room", s.Room))
		}
	}
}

// Close signals the write pump to shut down.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.Done) })
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline resets the WebSocket read deadline to 60 s from now.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadlineS))
}
