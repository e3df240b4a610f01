// Package web streams batch progress over a websocket and serves the batch
// status and Prometheus metrics over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/guidoenr/beatchaos/internal/pipeline"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type Server struct {
	mu        sync.RWMutex
	clients   map[*websocketClient]bool
	broadcast chan []byte
	upgrader  websocket.Upgrader
	gatherer  prometheus.Gatherer
	log       *zap.Logger
	status    Status
}

type websocketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// Status summarises the current batch.
type Status struct {
	Track     string         `json:"track"`
	Running   bool           `json:"running"`
	Total     int            `json:"total"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Rows      int            `json:"rows"`
	Failures  map[string]int `json:"failures,omitempty"`
	Started   time.Time      `json:"started"`
	Finished  *time.Time     `json:"finished,omitempty"`
}

// Event is broadcast once per finished record.
type Event struct {
	Record    string         `json:"record"`
	Rows      int            `json:"rows"`
	Failure   string         `json:"failure,omitempty"`
	Error     string         `json:"error,omitempty"`
	Rejected  map[string]int `json:"rejected,omitempty"`
	ElapsedMS float64        `json:"elapsedMs"`
	Processed int            `json:"processed"`
	Total     int            `json:"total"`
}

// NewServer exposes gatherer on /metrics. gatherer and log may be nil.
func NewServer(gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		clients:   make(map[*websocketClient]bool),
		broadcast: make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		gatherer: gatherer,
		log:      log.Named("web"),
	}
}

// Handler routes /api/status, /ws and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves Handler on addr and fans out events until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("server starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Begin resets the status for a batch of total records.
func (s *Server) Begin(total int, track pipeline.Track) {
	s.mu.Lock()
	s.status = Status{
		Track:    string(track),
		Running:  true,
		Total:    total,
		Failures: make(map[string]int),
		Started:  time.Now(),
	}
	s.mu.Unlock()
}

// Publish records a finished record and queues its event for every client.
// It never blocks; events are dropped when the queue is full.
func (s *Server) Publish(res pipeline.Result) {
	s.mu.Lock()
	s.status.Processed++
	s.status.Rows += len(res.Rows)
	if !res.OK() {
		s.status.Failed++
		if s.status.Failures == nil {
			s.status.Failures = make(map[string]int)
		}
		s.status.Failures[string(res.Failure)]++
	}
	ev := Event{
		Record:    res.RecordID,
		Rows:      len(res.Rows),
		Failure:   string(res.Failure),
		ElapsedMS: float64(res.Elapsed) / float64(time.Millisecond),
		Processed: s.status.Processed,
		Total:     s.status.Total,
	}
	s.mu.Unlock()

	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	if len(res.Rejected) > 0 {
		ev.Rejected = make(map[string]int, len(res.Rejected))
		for reason, n := range res.Rejected {
			ev.Rejected[string(reason)] = n
		}
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("encode event", zap.Error(err))
		return
	}
	select {
	case s.broadcast <- data:
	default:
		// drop if channel full (non-blocking)
	}
}

// Finish marks the batch as done.
func (s *Server) Finish() {
	now := time.Now()
	s.mu.Lock()
	s.status.Running = false
	s.status.Finished = &now
	s.mu.Unlock()
}

// Status returns a copy of the current summary.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if s.status.Failures != nil {
		st.Failures = make(map[string]int, len(s.status.Failures))
		for k, v := range s.status.Failures {
			st.Failures[k] = v
		}
	}
	return st
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Status())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := &websocketClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

// Run fans queued events out to clients until ctx is cancelled, then closes
// every connection.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case message := <-s.broadcast:
			s.mu.Lock()
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					s.dropLocked(client)
				}
			}
			s.mu.Unlock()
		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				s.dropLocked(client)
			}
			s.mu.Unlock()
			return
		}
	}
}

// dropLocked unregisters c and closes its send queue, which makes writePump
// send a close frame. s.mu must be held.
func (s *Server) dropLocked(c *websocketClient) {
	if !s.clients[c] {
		return
	}
	delete(s.clients, c)
	close(c.send)
}

func (c *websocketClient) readPump() {
	defer func() {
		c.server.mu.Lock()
		c.server.dropLocked(c)
		c.server.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// batch whatever queued up behind this message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
