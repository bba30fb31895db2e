package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllama_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("Expected no Authorization header for Ollama")
		}
		body := decodeBody(t, r)
		if body["model"] != ollamaModel || body["stream"] != false {
			t.Errorf("body = %v", body)
		}
		if body["system"] != "ctx\n\nsys" || body["prompt"] != "review" {
			t.Errorf("prompts = %v / %v", body["system"], body["prompt"])
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: "local", PromptEvalCount: 12, EvalCount: 3})
	}))
	defer server.Close()

	o, err := NewOllama(Settings{Endpoint: server.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := o.Complete(context.Background(), Request{SharedContext: "ctx", SystemPrompt: "sys", UserPrompt: "review"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Content != "local" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.Input != 12 || resp.Usage.Output != 3 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestNewOllama_Endpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		env      string
		want     string
	}{
		{"default", "", "", "http://localhost:11434/api/generate"},
		{"env", "", "http://gpu-box:11434/", "http://gpu-box:11434/api/generate"},
		{"settings win", "http://a:1/api/generate", "http://b:2", "http://a:1/api/generate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OLLAMA_HOST", tt.env)
			o, err := NewOllama(Settings{Endpoint: tt.endpoint})
			if err != nil {
				t.Fatal(err)
			}
			if o.url != tt.want {
				t.Errorf("url = %q, want %q", o.url, tt.want)
			}
		})
	}
}
