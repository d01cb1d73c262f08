package uibridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vaultpilot/vaultpilot/internal/metrics"
	"github.com/vaultpilot/vaultpilot/pkg/tracker"
)

// Bridge is the websocket server the host UI connects to. It pushes
// tool-call snapshots and turn events out, and carries approval and
// rate-limit prompts in the other direction. Prompts that get no answer
// fail closed.
type Bridge struct {
	host          string
	port          int
	promptTimeout time.Duration
	metricsOn     bool

	server   *http.Server
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	addr string

	connMu sync.Mutex
	conns  map[*websocket.Conn]bool

	pendingMu sync.Mutex
	pending   map[string]chan ResponseMessage

	handlerMu sync.RWMutex
	onMessage func(text string)
	onCancel  func()

	seq atomic.Int64
}

// Config holds bridge configuration.
type Config struct {
	Host          string
	Port          int
	PromptTimeout time.Duration
	ServeMetrics  bool
	Logger        zerolog.Logger
}

// New creates a bridge server. Port 0 binds an ephemeral port; Addr reports
// the bound address after Start.
func New(cfg Config) (*Bridge, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = 2 * time.Minute
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	return &Bridge{
		host:          cfg.Host,
		port:          cfg.Port,
		promptTimeout: cfg.PromptTimeout,
		metricsOn:     cfg.ServeMetrics,
		logger:        cfg.Logger,
		conns:         make(map[*websocket.Conn]bool),
		pending:       make(map[string]chan ResponseMessage),
		upgrader: websocket.Upgrader{
			// The bridge binds to loopback; the desktop UI is the only
			// expected client.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Start begins serving. It returns once the listener is bound.
func (b *Bridge) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if b.metricsOn {
		mux.Handle("/metrics", metrics.Handler())
	}

	addr := net.JoinHostPort(b.host, fmt.Sprintf("%d", b.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind ui bridge: %w", err)
	}

	b.server = &http.Server{Handler: mux}
	b.addr = listener.Addr().String()
	b.logger.Info().Str("addr", b.addr).Msg("UI bridge listening")

	go func() {
		if err := b.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			b.logger.Error().Err(err).Msg("UI bridge server error")
		}
	}()

	return nil
}

// Shutdown stops the server and disconnects every client.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.connMu.Lock()
	for conn := range b.conns {
		conn.Close()
	}
	b.conns = make(map[*websocket.Conn]bool)
	b.connMu.Unlock()

	if b.server == nil {
		return nil
	}
	return b.server.Shutdown(ctx)
}

// Addr returns the bound listen address after Start.
func (b *Bridge) Addr() string {
	return b.addr
}

// ClientCount returns the number of connected UI clients.
func (b *Bridge) ClientCount() int {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return len(b.conns)
}

func (b *Bridge) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	b.connMu.Lock()
	b.conns[conn] = true
	b.connMu.Unlock()
	b.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("UI client connected")

	defer func() {
		b.connMu.Lock()
		delete(b.conns, conn)
		b.connMu.Unlock()
		conn.Close()
		b.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("UI client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.logger.Warn().Err(err).Msg("Malformed bridge message dropped")
			continue
		}

		switch msg.Type {
		case "response":
			if msg.ID == "" {
				continue
			}
			b.resolve(ResponseMessage{Type: msg.Type, ID: msg.ID, Action: msg.Action, Choice: msg.Choice})

		case "message":
			b.handlerMu.RLock()
			handler := b.onMessage
			b.handlerMu.RUnlock()
			if handler != nil && msg.Text != "" {
				go handler(msg.Text)
			}

		case "cancel":
			b.handlerMu.RLock()
			handler := b.onCancel
			b.handlerMu.RUnlock()
			if handler != nil {
				handler()
			}

		default:
			b.logger.Debug().Str("type", msg.Type).Msg("Unknown bridge frame dropped")
		}
	}
}

// OnMessage sets the handler for user prompts submitted through the bridge.
// The handler runs on its own goroutine per message.
func (b *Bridge) OnMessage(handler func(text string)) {
	b.handlerMu.Lock()
	b.onMessage = handler
	b.handlerMu.Unlock()
}

// OnCancel sets the handler for cancel frames.
func (b *Bridge) OnCancel(handler func()) {
	b.handlerMu.Lock()
	b.onCancel = handler
	b.handlerMu.Unlock()
}

func (b *Bridge) resolve(msg ResponseMessage) {
	b.pendingMu.Lock()
	ch, ok := b.pending[msg.ID]
	if ok {
		delete(b.pending, msg.ID)
	}
	b.pendingMu.Unlock()

	if !ok {
		b.logger.Warn().Str("prompt_id", msg.ID).Msg("Response for unknown prompt dropped")
		return
	}
	ch <- msg
}

// BroadcastToolCalls pushes a tool-call snapshot to every client.
func (b *Bridge) BroadcastToolCalls(calls []tracker.ToolCall) {
	b.broadcast(EventMessage{
		Type:      "event",
		Event:     "turn.tool_calls",
		Data:      calls,
		Seq:       b.seq.Add(1),
		Timestamp: time.Now().UnixMilli(),
	})
}

// BroadcastEvent pushes a named event to every client.
func (b *Bridge) BroadcastEvent(event string, data interface{}) {
	b.broadcast(EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Seq:       b.seq.Add(1),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (b *Bridge) broadcast(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal bridge frame")
		return
	}

	b.connMu.Lock()
	defer b.connMu.Unlock()
	for conn := range b.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to push frame to client")
		}
	}
}
