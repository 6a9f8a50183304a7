package progress

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/rescale/docbatch/internal/events"
	"github.com/rescale/docbatch/internal/logging"
	"github.com/rescale/docbatch/internal/version"
)

const wsWriteTimeout = 5 * time.Second

// WSBridge serves the event bus to browser panels: GET /ws upgrades to a
// websocket that receives every event as JSON, GET /healthz reports status.
type WSBridge struct {
	bus      *events.EventBus
	router   *chi.Mux
	upgrader websocket.Upgrader
	log      *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	sub    <-chan events.Event
	done   chan struct{}
	server *nethttp.Server
}

// wsClient serializes writes; gorilla connections allow one writer at a time.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

type helloMessage struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// NewWSBridge builds the router. Call Start to begin forwarding events.
func NewWSBridge(bus *events.EventBus, logger *logging.Logger) *WSBridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &WSBridge{
		bus:     bus,
		router:  chi.NewRouter(),
		log:     logger,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Panels are served from other local origins.
			CheckOrigin: func(r *nethttp.Request) bool { return true },
		},
	}

	b.router.Use(middleware.RequestID)
	b.router.Use(middleware.Recoverer)
	b.router.Get("/ws", b.serveWS)
	b.router.Get("/healthz", b.health)
	return b
}

// Handler returns the bridge's HTTP handler.
func (b *WSBridge) Handler() nethttp.Handler {
	return b.router
}

// Start subscribes to the bus and forwards events until Close.
func (b *WSBridge) Start() {
	b.sub = b.bus.SubscribeAll()
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		for ev := range b.sub {
			b.broadcast(ev)
		}
	}()
}

// ListenAndServe starts the bridge on addr in the background and returns the
// bound address.
func (b *WSBridge) ListenAndServe(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	b.server = &nethttp.Server{
		Handler:           b.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := b.server.Serve(ln); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			b.log.Error().Err(err).Msg("websocket bridge stopped")
		}
	}()
	b.log.Info().Str("addr", ln.Addr().String()).Msg("websocket bridge listening")
	return ln.Addr(), nil
}

// Close stops forwarding, disconnects clients and shuts the server down.
func (b *WSBridge) Close(ctx context.Context) error {
	if b.sub != nil {
		b.bus.UnsubscribeAll(b.sub)
		<-b.done
		b.sub = nil
	}

	b.mu.Lock()
	for c := range b.clients {
		_ = c.conn.Close()
		delete(b.clients, c)
	}
	b.mu.Unlock()

	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

// Clients returns the number of connected websocket clients.
func (b *WSBridge) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *WSBridge) health(w nethttp.ResponseWriter, r *nethttp.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(nethttp.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": b.Clients(),
		"version": version.Version,
	})
}

func (b *WSBridge) serveWS(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsClient{conn: conn}

	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	b.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	_ = c.send(helloMessage{Type: "hello", Version: version.Version, Time: time.Now().Format(time.RFC3339)})

	// Panels never send; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.remove(c)
}

func (b *WSBridge) remove(c *wsClient) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	_ = c.conn.Close()
}

func (b *WSBridge) broadcast(ev events.Event) {
	b.mu.RLock()
	clients := make([]*wsClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(ev); err != nil {
			b.log.Debug().Err(err).Msg("dropping websocket client")
			b.remove(c)
		}
	}
}
