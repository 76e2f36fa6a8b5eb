// Package testutil provides helpers for bridge integration tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
)

// ArrowMIME is the content type the fake dataframe endpoint serves.
const ArrowMIME = "application/vnd.apache.arrow"

// RecordedRequest captures one request the fake view server saw.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	CacheControl  string
}

// FakeViewServer stands in for the inspect view/scan server behind the
// bridge. It records every request and serves canned log and scan data.
type FakeViewServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest

	// Canned data, settable per test.
	Logs      []string
	Scans     map[string]string // file -> body
	Dataframe []byte
}

// NewFakeViewServer starts the fake backend on a random loopback port.
func NewFakeViewServer() *FakeViewServer {
	f := &FakeViewServer{
		Logs:      []string{"logs/run-1.eval"},
		Scans:     map[string]string{"scan-1.json": `{"scanners":["secrets"]}`},
		Dataframe: []byte{0x41, 0x52, 0x52, 0x4F, 0x57, 0x31, 0x00, 0xFF},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/logs", f.handleLogs)
	mux.HandleFunc("/api/scans", f.handleScans)
	mux.HandleFunc("/api/scan", f.handleScan)
	mux.HandleFunc("/api/df", f.handleDataframe)

	f.srv = httptest.NewServer(f.record(mux))
	return f
}

// Port returns the backend's TCP port.
func (f *FakeViewServer) Port() int {
	u, _ := url.Parse(f.srv.URL)
	port, _ := strconv.Atoi(u.Port())
	return port
}

// Close shuts the backend down.
func (f *FakeViewServer) Close() {
	f.srv.Close()
}

// Requests returns a copy of everything the backend saw.
func (f *FakeViewServer) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *FakeViewServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
			CacheControl:  r.Header.Get("Cache-Control"),
		})
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeViewServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	logs := append([]string{}, f.Logs...)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"files": logs})
}

func (f *FakeViewServer) handleScans(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	names := make([]string, 0, len(f.Scans))
	for name := range f.Scans {
		names = append(names, name)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(names)
}

func (f *FakeViewServer) handleScan(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")

	f.mu.Lock()
	body, ok := f.Scans[file]
	f.mu.Unlock()

	if !ok {
		http.Error(w, "no such scan", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (f *FakeViewServer) handleDataframe(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	df := append([]byte{}, f.Dataframe...)
	f.mu.Unlock()

	w.Header().Set("Content-Type", ArrowMIME)
	w.Write(df)
}
