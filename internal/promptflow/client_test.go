package promptflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["q"] != "hello" {
			t.Errorf("query = %v", body["q"])
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "run-1", "reply": "hi"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1", 5*time.Second)
	result, err := c.Invoke(context.Background(), map[string]any{"q": "hello"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result["id"] != "run-1" || result["reply"] != "hi" {
		t.Errorf("result = %v", result)
	}
}

func TestInvokeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such flow", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	if _, err := c.Invoke(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestInvokeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 20*time.Millisecond)
	_, err := c.Invoke(context.Background(), map[string]any{})
	if !errors.Is(err, ErrFlowTimeout) {
		t.Fatalf("expected ErrFlowTimeout, got %v", err)
	}
}
