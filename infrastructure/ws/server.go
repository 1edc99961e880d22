package ws

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"realtime-core/ratelimit"
	"realtime-core/runtime"
	"realtime-core/sink"
)

// Server upgrades HTTP requests to admitted websocket sessions. The
// bearer credential must be presented in the handshake (Authorization
// header or token query parameter); a rejected credential closes the
// request with 401 before a single session event is accepted.
type Server struct {
	log        *slog.Logger
	gatekeeper *runtime.Gatekeeper
	router     *Router
	admission  *ratelimit.MapLimiter

	bufferSize      int
	deliveryTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewServer(
	log *slog.Logger,
	gatekeeper *runtime.Gatekeeper,
	router *Router,
	admission *ratelimit.MapLimiter,
	bufferSize int,
	deliveryTimeout time.Duration,
) *Server {
	return &Server{
		log:             log,
		gatekeeper:      gatekeeper,
		router:          router,
		admission:       admission,
		bufferSize:      bufferSize,
		deliveryTimeout: deliveryTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients authenticate with the bearer token, not
			// the Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes mounts the session endpoint next to health and metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleSession)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if !s.admission.Allow(remoteHost(r), time.Now()) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	buffered := sink.NewBuffered(s.log, s.bufferSize, s.deliveryTimeout)
	conn, err := s.gatekeeper.Admit(r.Context(), bearerCredential(r), buffered)
	if err != nil {
		s.log.Info("admission refused", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error; undo the registration.
		s.gatekeeper.Retire(r.Context(), conn)
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	// The request context dies when this handler returns; the session
	// outlives it on the hijacked connection.
	session := NewSession(s.log, wsConn, buffered, conn, s.router, s.gatekeeper)
	session.Run(context.Background())
}

func bearerCredentialFromHeader(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

func bearerCredential(r *http.Request) string {
	if token := bearerCredentialFromHeader(r); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
