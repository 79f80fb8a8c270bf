package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"cardchat/internal/domain"
	"cardchat/internal/infra/config"
)

const (
	maxFrameBytes   = 256 * 1024
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server is the WebSocket gateway. Each connection is authenticated at
// upgrade time; frames are dispatched to the chat handler and live
// fragment updates are pushed back as event frames.
type Server struct {
	addr    string
	auth    Authenticator
	handler *ChatHandler
	logger  *slog.Logger

	limitCfg config.GatewayConfig

	mu      sync.Mutex
	clients map[*client]struct{}

	httpSrv *http.Server
}

// client is one connected WebSocket peer. Writes are serialized through
// sendCh by a single writer goroutine.
type client struct {
	conn    *websocket.Conn
	session *domain.UserSession
	sendCh  chan Frame
	limiter *rateLimiter
	closed  chan struct{}
	once    sync.Once
}

// NewServer creates a gateway bound to cfg.Addr.
func NewServer(cfg config.GatewayConfig, auth Authenticator, handler *ChatHandler, logger *slog.Logger) *Server {
	return &Server{
		addr:     cfg.Addr,
		auth:     auth,
		handler:  handler,
		logger:   logger,
		limitCfg: cfg,
		clients:  make(map[*client]struct{}),
	}
}

// Start begins serving. It blocks until ctx is canceled, then drains
// connections and shuts the listener down.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpSrv = &http.Server{
		Addr:    s.addr,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.mu.Lock()
	for c := range s.clients {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
	s.mu.Unlock()

	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	session, err := s.auth.Authenticate(token)
	if err != nil {
		s.logger.Warn("gateway auth failed", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	c := &client{
		conn:    conn,
		session: session,
		sendCh:  make(chan Frame, 64),
		limiter: newRateLimiter(s.limitCfg.RateLimit, s.limitCfg.RateWindow.Std()),
		closed:  make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("client connected", "user_id", session.UserID)

	ctx := domain.ContextWithSession(r.Context(), session)
	go s.writeLoop(ctx, c)
	s.readLoop(ctx, c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	s.logger.Info("client disconnected", "user_id", session.UserID)
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	defer c.close(websocket.StatusNormalClosure, "")

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debug("read loop ended", "user_id", c.session.UserID, "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.send(errorFrame("", CodeInvalidPayload, "malformed frame"))
			continue
		}
		if frame.Type != FrameRequest {
			continue
		}

		// Handle each request on its own goroutine so a slow turn does
		// not block subsequent frames from the same client.
		go s.dispatch(ctx, c, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, frame Frame) {
	if frame.Method == MethodSubmit && !c.limiter.allow() {
		c.send(errorFrame(frame.ID, CodeRateLimited, "too many submissions, slow down"))
		return
	}

	resp := s.handler.Handle(ctx, c, frame)
	c.send(resp)
}

func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case frame := <-c.sendCh:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := writeJSON(writeCtx, c.conn, frame)
			cancel()
			if err != nil {
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// send queues a frame for the writer loop. Frames to a closed or
// backlogged client are dropped.
func (c *client) send(frame Frame) {
	select {
	case c.sendCh <- frame:
	case <-c.closed:
	default:
	}
}

func (c *client) close(status websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close(status, reason)
	})
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// bearerToken extracts the token from the Authorization header, falling
// back to the access_token query parameter for browser clients that
// cannot set headers on WebSocket upgrade.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}
