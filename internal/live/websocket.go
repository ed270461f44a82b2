package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/debate-panel/internal/domain"
	"github.com/ashureev/debate-panel/internal/identity"
)

const (
	DefaultPingInterval = 20 * time.Second
	writeTimeout        = 10 * time.Second
)

var tabIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// SnapshotSource is the read side of the conversation controller.
type SnapshotSource interface {
	Snapshot() domain.Session
	Subscribe(ctx context.Context) (<-chan domain.Session, string)
}

// WebSocketHandler streams session snapshots to panel clients.
type WebSocketHandler struct {
	source        SnapshotSource
	cm            *ConnManager
	allowedOrigin string
	isDev         bool
	pingInterval  time.Duration
	logger        *slog.Logger
}

// Config holds WebSocket handler settings.
type Config struct {
	AllowedOrigin string
	IsDev         bool
	PingInterval  time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(source SnapshotSource, cm *ConnManager, cfg Config, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	return &WebSocketHandler{
		source:        source,
		cm:            cm,
		allowedOrigin: cfg.AllowedOrigin,
		isDev:         cfg.IsDev,
		pingInterval:  cfg.PingInterval,
		logger:        logger.With("component", "live"),
	}
}

// wsMessage is a client-to-server frame.
type wsMessage struct {
	Type string `json:"type"`
}

// snapshotMessage is the server-to-client session frame.
type snapshotMessage struct {
	Type    string         `json:"type"`
	Session domain.Session `json:"session"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	operatorID := identity.OperatorIDFromContext(r.Context())
	tabID := tabIDFromRequest(r)
	h.logger.Info("Panel connection request", "operator_id", operatorID, "tab_id", tabID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "operator_id", operatorID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "panel closed"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "operator_id", operatorID)
		}
	}()

	h.cm.Register(operatorID, tabID, ws)
	defer h.cm.Unregister(operatorID, tabID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, _ := h.source.Subscribe(ctx)
	if err := h.writeSnapshot(ctx, ws, h.source.Snapshot()); err != nil {
		h.logger.Debug("Failed to send initial snapshot", "error", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, operatorID)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, updates)
	}()

	wg.Wait()
	h.logger.Info("Panel connection ended", "operator_id", operatorID, "tab_id", tabID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, operatorID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				h.logger.Debug("WebSocket closed", "operator_id", operatorID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "operator_id", operatorID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Debug("Ignoring malformed frame", "operator_id", operatorID)
			continue
		}

		switch msg.Type {
		case "ping":
			if err := h.writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				h.logger.Debug("Failed to send pong", "error", err)
			}
		case "refresh":
			if err := h.writeSnapshot(ctx, ws, h.source.Snapshot()); err != nil {
				h.logger.Debug("Failed to send snapshot", "error", err)
				return
			}
		}
	}
}

func (h *WebSocketHandler) outputLoop(ctx context.Context, ws *websocket.Conn, updates <-chan domain.Session) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := h.writeSnapshot(ctx, ws, snap); err != nil {
				h.logger.Debug("Failed to push snapshot", "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				h.logger.Debug("Panel ping failed", "error", err)
				return
			}
		}
	}
}

func (h *WebSocketHandler) writeSnapshot(ctx context.Context, ws *websocket.Conn, snap domain.Session) error {
	return h.writeJSON(ctx, ws, snapshotMessage{Type: "snapshot", Session: snap})
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}

func tabIDFromRequest(r *http.Request) string {
	id := strings.TrimSpace(r.URL.Query().Get("tab"))
	if id == "" || !tabIDPattern.MatchString(id) {
		return uuid.NewString()
	}
	return id
}
