package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestServer(t *testing.T, snapshotPath string) *Server {
	t.Helper()
	collector := newTestCollector(&fakeQueueRepo{}, &fakeProbe{online: true}, &fakeStatus{db: true})
	return NewServer(collector, snapshotPath, DefaultHTTPPort)
}

func TestHandleLive(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), SnapshotFileName))

	rec := httptest.NewRecorder()
	s.handleLive(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body["source"] != "live" {
		t.Errorf("source = %v, want live", body["source"])
	}
	if body["internet_ok"] != true {
		t.Errorf("internet_ok = %v, want true", body["internet_ok"])
	}
}

func TestHandleLiveRejectsPost(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), SnapshotFileName))

	rec := httptest.NewRecorder()
	s.handleLive(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /metrics status = %d, want 405", rec.Code)
	}
}

func TestHandleFileMissing(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), SnapshotFileName))

	rec := httptest.NewRecorder()
	s.handleFile(rec, httptest.NewRequest(http.MethodGet, "/metrics/file", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /metrics/file status = %d, want 404 when absent", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body["error"] != "metrics file not found" {
		t.Errorf("error = %q, want %q", body["error"], "metrics file not found")
	}
}

func TestHandleFileServesPersistedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), SnapshotFileName)
	if err := os.WriteFile(path, []byte(`{"pending_ops":3}`), 0644); err != nil {
		t.Fatalf("write snapshot fixture: %v", err)
	}
	s := newTestServer(t, path)

	rec := httptest.NewRecorder()
	s.handleFile(rec, httptest.NewRequest(http.MethodGet, "/metrics/file", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics/file status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body["source"] != "file" {
		t.Errorf("source = %v, want file", body["source"])
	}
	if body["pending_ops"] != float64(3) {
		t.Errorf("pending_ops = %v, want 3", body["pending_ops"])
	}
}

func TestHandleNotFound(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), SnapshotFileName))

	rec := httptest.NewRecorder()
	s.handleNotFound(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /other status = %d, want 404", rec.Code)
	}
}

func TestServerBindsLoopbackOnly(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), SnapshotFileName))
	if s.httpServer.Addr != "127.0.0.1:8765" {
		t.Errorf("Addr = %q, want loopback bind 127.0.0.1:8765", s.httpServer.Addr)
	}
}
