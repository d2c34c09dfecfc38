package signal

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"paircall/internal/core/domain"
	"paircall/internal/core/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Metrics is the slice of instrumentation the signal server reports.
type Metrics interface {
	ClientConnected()
	ClientDisconnected()
	MessageRelayed(kind string)
}

type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes; coordinator fan-out is concurrent
}

func (c *clientConn) writeJSON(v interface{}, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(v)
}

// WebSocketServer owns the signaling connections. Each connection gets a
// generated ID at upgrade time and is handed to the coordinator on join;
// the server implements ports.Messenger so the coordinator can push to
// any member.
type WebSocketServer struct {
	coordinator *services.Coordinator

	connections map[domain.ConnID]*clientConn
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	limiters   map[string]*rate.Limiter
	limiterMu  sync.Mutex
	connLimit  rate.Limit
	connBurst  int
	limiting   bool

	metrics Metrics
	logger  *zap.SugaredLogger
}

func NewWebSocketServer(logger *zap.SugaredLogger) *WebSocketServer {
	return &WebSocketServer{
		connections:  make(map[domain.ConnID]*clientConn),
		limiters:     make(map[string]*rate.Limiter),
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// SetCoordinator wires the coordinator after construction; the
// coordinator needs the server as its Messenger, so the two are linked
// in two steps.
func (s *WebSocketServer) SetCoordinator(c *services.Coordinator) {
	s.coordinator = c
}

// SetMetrics attaches an instrumentation sink.
func (s *WebSocketServer) SetMetrics(m Metrics) {
	s.metrics = m
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
}

// SetWriteTimeout sets the per-message write deadline.
func (s *WebSocketServer) SetWriteTimeout(timeout time.Duration) {
	s.writeTimeout = timeout
}

// SetConnRateLimit enables a per-IP upgrade limiter.
func (s *WebSocketServer) SetConnRateLimit(perMinute float64, burst int) {
	s.limiting = true
	s.connLimit = rate.Limit(perMinute / 60.0)
	s.connBurst = burst
}

func (s *WebSocketServer) allowUpgrade(remoteAddr string) bool {
	if !s.limiting {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	s.limiterMu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(s.connLimit, s.connBurst)
		s.limiters[host] = limiter
	}
	s.limiterMu.Unlock()

	return limiter.Allow()
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.allowUpgrade(r.RemoteAddr) {
		s.logger.Warnw("websocket upgrade rate limited", "remote", r.RemoteAddr)
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := domain.ConnID(uuid.New().String())
	client := &clientConn{conn: conn}

	s.mu.Lock()
	s.connections[connID] = client
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ClientConnected()
	}
	s.logger.Infow("client connected", "conn_id", connID, "remote", r.RemoteAddr)

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan SignalMessage, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
			messageChan <- msg
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if err := s.handleMessage(r.Context(), connID, msg); err != nil {
				s.logger.Infow("error handling message", "conn_id", connID, "type", msg.Type, "error", err)
				s.sendError(client, err.Error())
			}

		case <-pingTicker.C:
			client.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			client.mu.Unlock()
			if err != nil {
				s.logger.Infow("error sending ping", "conn_id", connID, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message", "conn_id", connID, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	s.mu.Lock()
	delete(s.connections, connID)
	s.mu.Unlock()

	// A vanished connection is a leave; the coordinator treats a
	// never-joined connection as a no-op.
	if err := s.coordinator.Leave(context.Background(), connID); err != nil {
		s.logger.Warnw("error leaving room on disconnect", "conn_id", connID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.ClientDisconnected()
	}
	s.logger.Infow("client disconnected", "conn_id", connID)
}

func (s *WebSocketServer) handleMessage(ctx context.Context, connID domain.ConnID, msg SignalMessage) error {
	switch {
	case msg.Type == services.MsgJoinRoom:
		return s.coordinator.Join(ctx, connID, msg.Room, msg.Name)

	case msg.Type == services.MsgLeft:
		return s.coordinator.Leave(ctx, connID)

	case services.RelayKinds[msg.Type]:
		if s.metrics != nil {
			s.metrics.MessageRelayed(msg.Type)
		}
		return s.coordinator.Relay(ctx, connID, msg.Type, msg.Room, msg.Payload)

	default:
		s.logger.Warnw("dropping unknown message type", "conn_id", connID, "type", msg.Type)
		return nil
	}
}

// Send implements ports.Messenger: it pushes one coordinator-originated
// message to a connection. Unknown IDs are reported back so the
// coordinator can log them.
func (s *WebSocketServer) Send(id domain.ConnID, msgType string, payload interface{}) error {
	s.mu.RLock()
	client, exists := s.connections[id]
	s.mu.RUnlock()

	if !exists {
		return domain.ErrConnNotFound
	}

	msg, err := EncodeOutbound(msgType, payload)
	if err != nil {
		return err
	}
	return client.writeJSON(msg, s.writeTimeout)
}

func (s *WebSocketServer) sendError(client *clientConn, message string) {
	msg, err := EncodeOutbound(services.MsgError, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	if err := client.writeJSON(msg, s.writeTimeout); err != nil {
		s.logger.Debugw("failed to send error", "error", err)
	}
}

// ConnectionCount reports the number of live signaling connections.
func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// HealthCheck serves a plain status document with the live connection
// count, mountable next to the websocket endpoint.
func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": s.ConnectionCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
