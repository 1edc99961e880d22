package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/runtime"
	"realtime-core/sink"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 64 << 10
)

// Session drives one admitted websocket connection: a read pump
// dispatching inbound envelopes in order (FIFO per sender) and a write
// pump draining the connection's buffered sink.
type Session struct {
	log        *slog.Logger
	ws         *websocket.Conn
	sink       *sink.Buffered
	conn       domain.Connection
	router     *Router
	gatekeeper *runtime.Gatekeeper
}

func NewSession(
	log *slog.Logger,
	ws *websocket.Conn,
	buffered *sink.Buffered,
	conn domain.Connection,
	router *Router,
	gatekeeper *runtime.Gatekeeper,
) *Session {
	return &Session{
		log:        log.With("identity", conn.Identity, "connection", conn.ID),
		ws:         ws,
		sink:       buffered,
		conn:       conn,
		router:     router,
		gatekeeper: gatekeeper,
	}
}

// Connection returns the bound connection handle.
func (s *Session) Connection() domain.Connection { return s.conn }

// Sink returns the session's event sink, the delivery target other
// components route to.
func (s *Session) Sink() contract.EventSink { return s.sink }

// Push emits an event directly to this session.
func (s *Session) Push(ctx context.Context, e event.Event) error {
	return s.sink.Consume(ctx, e)
}

// Run blocks until the peer disconnects or the context is canceled,
// then retires the connection. Retirement is idempotent, so an explicit
// logout racing the low-level disconnect is harmless.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.gatekeeper.Retire(context.WithoutCancel(ctx), s.conn)

	go s.writePump(ctx, cancel)
	s.readPump(ctx)
}

// readPump processes inbound frames sequentially, which is what gives
// the per-sender FIFO ordering guarantee.
func (s *Session) readPump(ctx context.Context) {
	s.ws.SetReadLimit(maxFrameSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("connection closed unexpectedly", "error", err)
			}
			return
		}

		env, err := DecodeEnvelope(raw)
		if err != nil {
			s.log.Debug("dropping malformed frame", "error", err)
			continue
		}
		s.router.Dispatch(ctx, s, env)
	}
}

func (s *Session) writePump(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer cancel()
	defer s.ws.Close()

	for {
		select {
		case <-ctx.Done():
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.ws.WriteMessage(websocket.CloseMessage, nil)
			return
		case e := <-s.sink.Events():
			frame, err := EncodeEvent(e)
			if err != nil {
				s.log.Error("dropping unencodable event", "event", e.Name(), "error", err)
				continue
			}
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug("write failed, closing session", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
