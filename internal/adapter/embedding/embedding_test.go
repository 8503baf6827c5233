package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"codeflow/config"
)

type fakeEmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// newEmbeddingServer answers /embeddings with vectors [len(text), 1, 0, ...]
// in reverse index order to check that results are reassembled by index.
func newEmbeddingServer(t *testing.T, dim int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}

		var req fakeEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, dim)
			v[0] = float32(len(req.Input[i]))
			v[1] = 1
			data = append(data, item{Object: "embedding", Embedding: v, Index: i})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
}

func TestOpenAIEmbedderOrderAndBatching(t *testing.T) {
	var calls int32
	server := newEmbeddingServer(t, 4, &calls)
	defer server.Close()

	e := NewOpenAICompatibleEmbedder(Options{
		Model:     "all-minilm",
		BaseURL:   server.URL + "/v1",
		APIKey:    "test",
		BatchSize: 2,
	})

	texts := []string{"a", "bbb", "cc", "dddd", "e"}
	vectors, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 batched requests, got %d", got)
	}

	for i, v := range vectors {
		// before normalisation v = [len, 1, 0, 0]
		n := float64(len(texts[i]))
		want := n / math.Sqrt(n*n+1)
		if math.Abs(float64(v[0])-want) > 1e-6 {
			t.Errorf("vector %d: expected v[0]=%f, got %f", i, want, v[0])
		}
	}

	if e.Dimension() != 4 {
		t.Errorf("expected learned dimension 4, got %d", e.Dimension())
	}
}

func TestOpenAIEmbedderDimensionMismatch(t *testing.T) {
	server := newEmbeddingServer(t, 4, nil)
	defer server.Close()

	e := NewOpenAICompatibleEmbedder(Options{
		Model:     "all-minilm",
		BaseURL:   server.URL,
		Dimension: 384,
	})

	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestOpenAIEmbedderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"model not loaded","type":"server_error"}}`))
	}))
	defer server.Close()

	e := NewOpenAICompatibleEmbedder(Options{Model: "all-minilm", BaseURL: server.URL})
	_, err := e.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error from failing server")
	}
	if !strings.Contains(err.Error(), "embedding request failed") {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestOpenAIEmbedderEmptyInput(t *testing.T) {
	e := NewOpenAICompatibleEmbedder(Options{Model: "all-minilm", BaseURL: "http://127.0.0.1:1"})
	vectors, err := e.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Errorf("expected nil, nil for empty input, got %v, %v", vectors, err)
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)

	a, err := e.Embed(context.Background(), []string{"func main() { fmt.Println(1) }", "other text"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(context.Background(), []string{"func main() { fmt.Println(1) }"})
	if err != nil {
		t.Fatal(err)
	}

	if len(a[0]) != 64 {
		t.Fatalf("expected dimension 64, got %d", len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("expected identical vectors for identical text, differ at %d", i)
		}
	}

	var norm float64
	for _, x := range a[0] {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit vector, got squared norm %f", norm)
	}

	same := true
	for i := range a[0] {
		if a[0][i] != a[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different text to produce a different vector")
	}
}

func TestHashEmbedderEmptyText(t *testing.T) {
	e := NewHashEmbedder(8)
	vectors, err := e.Embed(context.Background(), []string{""})
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range vectors[0] {
		if x != 0 {
			t.Fatalf("expected zero vector for empty text, got %v", vectors[0])
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Embedding

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ModelName() != "all-minilm" || e.Dimension() != 384 {
		t.Errorf("unexpected embedder %s/%d", e.ModelName(), e.Dimension())
	}

	cfg.Provider = "hash"
	cfg.Dimension = 32
	e, err = New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*HashEmbedder); !ok {
		t.Errorf("expected HashEmbedder, got %T", e)
	}

	cfg.Provider = "openai"
	cfg.APIKeyEnv = "CODEFLOW_TEST_MISSING_KEY"
	t.Setenv("CODEFLOW_TEST_MISSING_KEY", "")
	if _, err := New(cfg); err == nil {
		t.Error("expected error when the API key is missing")
	}

	cfg.Provider = "bert"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}
