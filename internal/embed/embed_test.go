package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/config"
)

func TestResolveDisabled(t *testing.T) {
	cfg := config.EmbeddingConfig{Enabled: false}
	if p := Resolve(context.Background(), cfg, zerolog.Nop()); p != nil {
		t.Fatalf("disabled config resolved %s", p.ID())
	}
	cfg = config.EmbeddingConfig{Enabled: true, Provider: "none"}
	if p := Resolve(context.Background(), cfg, zerolog.Nop()); p != nil {
		t.Fatalf("provider none resolved %s", p.ID())
	}
}

func TestResolveUnreachableChainIsNil(t *testing.T) {
	cfg := config.EmbeddingConfig{
		Enabled:      true,
		Provider:     "ollama",
		Fallback:     []string{"openai"},
		OllamaURL:    "http://127.0.0.1:1", // nothing listens here
		OllamaModel:  "nomic-embed-text",
		OpenAIKeyEnv: "EVLOG_TEST_MISSING_KEY",
	}
	if p := Resolve(context.Background(), cfg, zerolog.Nop()); p != nil {
		t.Fatalf("unreachable chain resolved %s", p.ID())
	}
}

func TestOllamaEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		// Probe requests send a single string, real calls send an array.
		var raw map[string]json.RawMessage
		body := json.NewDecoder(r.Body)
		if err := body.Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal(raw["input"], &req.Input); err != nil {
			req.Input = []string{"probe"}
		}
		out := make([][]float32, len(req.Input))
		for i := range out {
			out[i] = []float32{1, 2, 3}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	defer srv.Close()

	if !ProbeOllama(srv.URL, "test-model") {
		t.Fatal("probe should succeed against the fake server")
	}

	p := NewOllama(srv.URL, "test-model", 5)
	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedDocuments: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 3 {
		t.Fatalf("got %d vectors of dim %d", len(vecs), len(vecs[0]))
	}

	vec, err := p.EmbedQuery(context.Background(), "query")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("query vector dim = %d", len(vec))
	}
}

func TestOllamaEmbedErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, "missing", 5)
	if _, err := p.EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestMockDeterministic(t *testing.T) {
	m := &Mock{Dims: 8}
	a, err := m.EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	b, _ := m.EmbedQuery(context.Background(), "hello")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("identical inputs must embed identically")
		}
	}
	c, _ := m.EmbedQuery(context.Background(), "different")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Fatal("distinct inputs should differ")
	}
	if m.Calls != 3 {
		t.Fatalf("Calls = %d, want 3", m.Calls)
	}
}
