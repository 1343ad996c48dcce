package results

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"tradesim/src/datamodels"
	"tradesim/src/utils/errors"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketResultsWriter serves a websocket endpoint and pushes each run's
// per-period stats to every connected client as they are written.
type WebSocketResultsWriter struct {
	server  *http.Server
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

func NewWebSocketResultsWriter(port int) (*WebSocketResultsWriter, error) {
	w := &WebSocketResultsWriter{
		clients: make(map[*websocket.Conn]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/results", w.handleResults)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.Wrapf(err, "listening on port %d", port)
	}
	w.server = &http.Server{Handler: mux}
	go func() {
		if err := w.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("results websocket server stopped", "error", err)
		}
	}()
	slog.Info("results websocket server listening", "addr", listener.Addr().String())
	return w, nil
}

func (w *WebSocketResultsWriter) handleResults(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	w.AddClient(conn)
}

// AddClient adds a new client connection
func (w *WebSocketResultsWriter) AddClient(conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clients[conn] = true
}

// RemoveClient removes a client connection
func (w *WebSocketResultsWriter) RemoveClient(conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.clients, conn)
}

func (w *WebSocketResultsWriter) Write(ctx context.Context, params datamodels.RunParams, stats []datamodels.PeriodStats) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for client := range w.clients {
		for _, stat := range stats {
			if err := client.WriteJSON(stat); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *WebSocketResultsWriter) Close() error {
	w.mu.Lock()
	for client := range w.clients {
		client.Close()
	}
	w.mu.Unlock()
	return w.server.Shutdown(context.Background())
}
