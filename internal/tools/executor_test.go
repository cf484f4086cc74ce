package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestWebhookExecutorSuccess(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"confirmed":true}`))
	}))
	defer srv.Close()

	e := NewWebhookExecutor(srv.URL, zerolog.New(&bytes.Buffer{}))
	result, err := e.Execute(context.Background(), "T1", "bookAppointment", map[string]any{"when": "tomorrow"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotPath != "/T1/bookAppointment" {
		t.Errorf("expected path /T1/bookAppointment, got %s", gotPath)
	}
	if gotBody["when"] != "tomorrow" {
		t.Errorf("expected params forwarded, got %v", gotBody)
	}

	var parsed map[string]bool
	if err := json.Unmarshal(result, &parsed); err != nil || !parsed["confirmed"] {
		t.Errorf("unexpected result %s", result)
	}
}

func TestWebhookExecutorNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewWebhookExecutor(srv.URL, zerolog.New(&bytes.Buffer{}))
	if _, err := e.Execute(context.Background(), "T1", "takeMessage", nil); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestWebhookExecutorUnreachable(t *testing.T) {
	e := NewWebhookExecutor("http://127.0.0.1:1", zerolog.New(&bytes.Buffer{}))
	if _, err := e.Execute(context.Background(), "T1", "takeMessage", nil); err == nil {
		t.Fatal("expected error for unreachable webhook")
	}
}
