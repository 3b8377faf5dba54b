package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaGenerate(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotPrompt = req.Prompt
		if req.Stream {
			t.Error("expected stream=false")
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "  30 days.\n"})
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL, "llama3", time.Second)
	answer, err := g.Generate(context.Background(), "What is the refund policy?", []string{"Refunds within 30 days."})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer != "30 days." {
		t.Errorf("answer = %q, want trimmed %q", answer, "30 days.")
	}
	if !strings.Contains(gotPrompt, "Refunds within 30 days.") {
		t.Errorf("prompt missing context: %q", gotPrompt)
	}
	if !strings.Contains(gotPrompt, "What is the refund policy?") {
		t.Errorf("prompt missing question: %q", gotPrompt)
	}
}

func TestOllamaGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}},
		{"api error field", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(generateResponse{Error: "out of memory"})
		}},
		{"empty answer", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(generateResponse{Response: "   "})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			g := NewOllamaGenerator(srv.URL, "llama3", time.Second)
			if _, err := g.Generate(context.Background(), "q", nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
