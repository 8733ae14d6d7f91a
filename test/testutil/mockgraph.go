package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
)

// MockGraph simulates the directory transitive-membership listing with
// @odata.nextLink pagination. Each element of Pages is one page of group ids.
type MockGraph struct {
	Server *httptest.Server
	Pages  [][]string

	// LastToken captures the bearer token of the most recent request.
	LastToken string
}

// NewMockGraph creates and starts a mock directory server.
func NewMockGraph(pages [][]string) *MockGraph {
	m := &MockGraph{Pages: pages}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockGraph) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockGraph) URL() string {
	return m.Server.URL
}

func (m *MockGraph) handle(w http.ResponseWriter, r *http.Request) {
	m.LastToken = r.Header.Get("Authorization")

	index, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if index >= len(m.Pages) {
		http.NotFound(w, r)
		return
	}

	value := make([]map[string]string, 0, len(m.Pages[index]))
	for _, id := range m.Pages[index] {
		value = append(value, map[string]string{"id": id})
	}
	body := map[string]any{"value": value}
	if index+1 < len(m.Pages) {
		body["@odata.nextLink"] = fmt.Sprintf("%s/?page=%d", m.Server.URL, index+1)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
