package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultHTTPPort is the default loopback port for metrics exposition.
const DefaultHTTPPort = 8765

// Server exposes the live snapshot and the last persisted snapshot over
// loopback HTTP. Disabled by default; the bind address is always 127.0.0.1.
type Server struct {
	collector    *Collector
	snapshotPath string
	httpServer   *http.Server
}

// NewServer creates the metrics HTTP server on the given loopback port.
func NewServer(collector *Collector, snapshotPath string, port int) *Server {
	if port <= 0 {
		port = DefaultHTTPPort
	}
	s := &Server{collector: collector, snapshotPath: snapshotPath}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleLive)
	mux.HandleFunc("/metrics/file", s.handleFile)
	mux.HandleFunc("/", s.handleNotFound)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	slog.Info("metrics.Server.Start: listening", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics.Server: serve failed", "error", err)
		}
	}()
}

// Stop shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	snap := s.collector.Collect()
	snap.Source = "live"
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "metrics file not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	var snap map[string]any
	if err := json.Unmarshal(data, &snap); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	snap["source"] = "file"
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("metrics: write response failed", "error", err)
	}
}
