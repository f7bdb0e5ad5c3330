package api

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrpasztoradam/goadsdev"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
	"github.com/mrpasztoradam/goadsdev/internal/tasks"
)

// WatchManager polls watched symbols and pushes changed values to websocket
// clients.
type WatchManager struct {
	db      *symbols.Database
	logger  goadsdev.Logger
	maxSubs int
	polls   *tasks.Group

	mu      sync.Mutex
	watches map[string]*Watch
}

// Watch is one active watch request of a websocket client.
type Watch struct {
	ID          string
	SymbolNames []string
	Interval    time.Duration

	conn       *wsConn
	task       *tasks.Task
	ready      chan struct{}
	lastImages map[string][]byte
}

// WebSocketMessage represents messages sent over WebSocket
type WebSocketMessage struct {
	Type      string         `json:"type"` // "watch", "unwatch", "data", "error", "watching", "unwatched"
	RequestID string         `json:"request_id,omitempty"`
	Symbols   []string       `json:"symbols,omitempty"`
	Interval  int            `json:"interval,omitempty"` // milliseconds
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// wsConn serializes writes from the poll tasks and the read loop.
type wsConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) send(msg WebSocketMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

// NewWatchManager creates a watch manager over db.
func NewWatchManager(db *symbols.Database, maxWatches int, logger goadsdev.Logger) *WatchManager {
	if logger == nil {
		logger = goadsdev.DefaultLogger
	}
	return &WatchManager{
		db:      db,
		logger:  logger,
		maxSubs: maxWatches,
		polls:   tasks.NewGroup(context.Background()),
		watches: make(map[string]*Watch),
	}
}

// Watch starts polling symbolNames for conn. Unknown symbols are rejected
// up front. The "watching" acknowledgement is sent before the first data
// message.
func (wm *WatchManager) Watch(conn *wsConn, requestID string, symbolNames []string, interval time.Duration) error {
	for _, name := range symbolNames {
		if _, err := wm.db.ResolveByName(name); err != nil {
			return NewSymbolNotFoundError(name)
		}
	}

	wm.mu.Lock()
	if wm.maxSubs > 0 && len(wm.watches) >= wm.maxSubs {
		wm.mu.Unlock()
		return NewHTTPError(http.StatusTooManyRequests, ErrCodeWatchLimit, "maximum watch limit reached", nil)
	}
	if _, exists := wm.watches[requestID]; exists {
		wm.mu.Unlock()
		return NewInvalidRequestError("watch ID already exists")
	}

	w := &Watch{
		ID:          requestID,
		SymbolNames: symbolNames,
		Interval:    interval,
		conn:        conn,
		ready:       make(chan struct{}),
		lastImages:  make(map[string][]byte),
	}
	wm.watches[requestID] = w
	w.task = wm.polls.Go(func(ctx context.Context) error {
		wm.poll(ctx, w)
		return nil
	})
	wm.mu.Unlock()

	err := conn.send(WebSocketMessage{
		Type:      "watching",
		RequestID: requestID,
		Symbols:   symbolNames,
		Timestamp: time.Now(),
	})
	close(w.ready)
	return err
}

// Unwatch removes a watch
func (wm *WatchManager) Unwatch(requestID string) error {
	wm.mu.Lock()
	w, exists := wm.watches[requestID]
	if exists {
		delete(wm.watches, requestID)
	}
	wm.mu.Unlock()

	if !exists {
		return NewNotFoundError("watch not found")
	}
	return wm.polls.Cancel(w.task)
}

// unwatchConn removes all watches of a connection
func (wm *WatchManager) unwatchConn(conn *wsConn) {
	wm.mu.Lock()
	var stopped []*Watch
	for id, w := range wm.watches {
		if w.conn == conn {
			stopped = append(stopped, w)
			delete(wm.watches, id)
		}
	}
	wm.mu.Unlock()

	for _, w := range stopped {
		wm.polls.Cancel(w.task)
	}
}

// Close stops every watch.
func (wm *WatchManager) Close() {
	wm.mu.Lock()
	clear(wm.watches)
	wm.mu.Unlock()
	wm.polls.CancelAll(true)
}

// Count returns the number of active watches
func (wm *WatchManager) Count() int {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	return len(wm.watches)
}

func (wm *WatchManager) poll(ctx context.Context, w *Watch) {
	select {
	case <-w.ready:
	case <-ctx.Done():
		return
	}
	// The first round reports every value.
	wm.readAndSend(w)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wm.readAndSend(w)
		}
	}
}

// readAndSend sends the values whose memory image changed since the last
// round.
func (wm *WatchManager) readAndSend(w *Watch) {
	data := make(map[string]any)

	for _, name := range w.SymbolNames {
		sym, err := wm.db.ResolveByName(name)
		if err != nil {
			continue
		}
		image, err := sym.ReadBytes()
		if err != nil {
			wm.logger.Warn("watch read failed", "watch", w.ID, "symbol", name, "error", err)
			continue
		}
		if last, ok := w.lastImages[name]; ok && bytes.Equal(last, image) {
			continue
		}
		value, err := readValue(sym)
		if err != nil {
			continue
		}
		w.lastImages[name] = image
		data[name] = value
	}

	if len(data) == 0 {
		return
	}
	msg := WebSocketMessage{
		Type:      "data",
		RequestID: w.ID,
		Data:      data,
		Timestamp: time.Now(),
	}
	if err := w.conn.send(msg); err != nil {
		wm.logger.Debug("websocket send failed", "watch", w.ID, "error", err)
	}
}
