package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Handler contains HTTP request handlers
type Handler struct {
	service       *Service
	upgrader      *websocket.Upgrader
	watchInterval time.Duration
}

// NewHandler creates a new handler
func NewHandler(service *Service, watchInterval time.Duration) *Handler {
	if watchInterval <= 0 {
		watchInterval = DefaultWatchInterval
	}
	return &Handler{
		service:       service,
		watchInterval: watchInterval,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func symbolParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if name == "" {
		WriteError(w, NewInvalidRequestError("symbol name is required"))
		return "", false
	}
	return name, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, NewInvalidRequestError("invalid JSON body"))
		return false
	}
	return true
}

// HandleReadSymbol handles GET /api/v1/symbols/{name}/value
func (h *Handler) HandleReadSymbol(w http.ResponseWriter, r *http.Request) {
	name, ok := symbolParam(w, r)
	if !ok {
		return
	}
	result, err := h.service.ReadSymbol(name)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleWriteSymbol handles POST /api/v1/symbols/{name}/value
func (h *Handler) HandleWriteSymbol(w http.ResponseWriter, r *http.Request) {
	name, ok := symbolParam(w, r)
	if !ok {
		return
	}
	var req WriteSymbolRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Value == nil {
		WriteError(w, NewInvalidRequestError("value is required"))
		return
	}

	result, err := h.service.WriteSymbol(name, req.Value)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleBatchRead handles POST /api/v1/symbols/read
func (h *Handler) HandleBatchRead(w http.ResponseWriter, r *http.Request) {
	var req BatchReadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Symbols) == 0 {
		WriteError(w, NewInvalidRequestError("symbols array cannot be empty"))
		return
	}

	result, err := h.service.BatchRead(req.Symbols)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleBatchWrite handles POST /api/v1/symbols/write
func (h *Handler) HandleBatchWrite(w http.ResponseWriter, r *http.Request) {
	var req BatchWriteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Writes) == 0 {
		WriteError(w, NewInvalidRequestError("writes map cannot be empty"))
		return
	}

	result, err := h.service.BatchWrite(req.Writes)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleGetSymbolTable handles GET /api/v1/symbols
func (h *Handler) HandleGetSymbolTable(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.Symbols(r.URL.Query().Get("q")))
}

// HandleGetSymbolInfo handles GET /api/v1/symbols/{name}
func (h *Handler) HandleGetSymbolInfo(w http.ResponseWriter, r *http.Request) {
	name, ok := symbolParam(w, r)
	if !ok {
		return
	}
	result, err := h.service.SymbolInfo(name)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleGetAreas handles GET /api/v1/areas
func (h *Handler) HandleGetAreas(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.Areas())
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.Health())
}

// HandleInfo handles GET /api/v1/info
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.Info())
}

// HandleGetState handles GET /api/v1/state
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.State())
}

// HandleSetState handles PUT /api/v1/state
func (h *Handler) HandleSetState(w http.ResponseWriter, r *http.Request) {
	var req SetStateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.State == "" {
		WriteError(w, NewInvalidRequestError("state is required"))
		return
	}

	result, err := h.service.SetState(req)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleControl handles POST /api/v1/control
func (h *Handler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Command == "" {
		WriteError(w, NewInvalidRequestError("command is required"))
		return
	}

	result, err := h.service.Control(req.Command)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleGetSessions handles GET /api/v1/sessions
func (h *Handler) HandleGetSessions(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.Sessions())
}

// HandleGetMetrics handles GET /api/v1/metrics
func (h *Handler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Metrics()
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleWebSocket handles GET /ws/watch
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.service.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.serveWatches(&wsConn{Conn: conn})
}

func (h *Handler) serveWatches(conn *wsConn) {
	defer conn.Close()
	watches := h.service.Watches()
	defer watches.unwatchConn(conn)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.service.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case "watch":
			if len(msg.Symbols) == 0 {
				sendWebSocketError(conn, msg.RequestID, "no symbols specified")
				continue
			}
			interval := time.Duration(msg.Interval) * time.Millisecond
			if interval < minWatchInterval {
				interval = h.watchInterval
			}
			if err := watches.Watch(conn, msg.RequestID, msg.Symbols, interval); err != nil {
				sendWebSocketError(conn, msg.RequestID, err.Error())
			}

		case "unwatch":
			if err := watches.Unwatch(msg.RequestID); err != nil {
				sendWebSocketError(conn, msg.RequestID, err.Error())
				continue
			}
			conn.send(WebSocketMessage{
				Type:      "unwatched",
				RequestID: msg.RequestID,
				Timestamp: time.Now(),
			})

		default:
			sendWebSocketError(conn, msg.RequestID, "unknown message type")
		}
	}
}

func sendWebSocketError(conn *wsConn, requestID, message string) {
	conn.send(WebSocketMessage{
		Type:      "error",
		RequestID: requestID,
		Error:     message,
		Timestamp: time.Now(),
	})
}
