package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"
)

// MockFlow simulates a promptflow endpoint returning a single JSON object.
type MockFlow struct {
	Server *httptest.Server

	// Response is returned as the flow result unless Delay exceeds the
	// caller's timeout.
	Response map[string]any
	Delay    time.Duration

	// LastRequest captures the most recent request body parsed.
	LastRequest map[string]any
}

// NewMockFlow creates and starts a mock promptflow server.
func NewMockFlow(response map[string]any) *MockFlow {
	m := &MockFlow{Response: response}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockFlow) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockFlow) URL() string {
	return m.Server.URL
}

func (m *MockFlow) handle(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.LastRequest = body

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Response)
}
