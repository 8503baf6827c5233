package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeflow/config"
	"codeflow/internal/adapter/chunker"
	"codeflow/internal/adapter/embedding"
	"codeflow/internal/adapter/fs"
	"codeflow/internal/adapter/retriever"
	"codeflow/internal/port"
	"codeflow/internal/usecase"
)

type cannedLLM struct {
	content string
}

func (c *cannedLLM) Chat(ctx context.Context, req port.ChatRequest) (port.ChatResponse, error) {
	return port.ChatResponse{Content: c.content, Model: "canned"}, nil
}

func (c *cannedLLM) ModelName() string    { return "canned" }
func (c *cannedLLM) ProviderName() string { return "DeepSeek" }

func newPipelineHandler(t *testing.T, base, answer string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig()

	collector := fs.NewCollector(fs.Options{
		IgnoreDirs:      cfg.Repository.IgnoreDirs,
		Extensions:      cfg.Repository.Extensions,
		ArtifactMarkers: cfg.Repository.ArtifactMarkers,
	}, logger)
	splitter, err := chunker.NewRecursiveChunker(cfg.Chunk.Size, cfg.Chunk.Overlap, cfg.Chunk.Separators)
	if err != nil {
		t.Fatal(err)
	}
	embedder := embedding.NewHashEmbedder(64)
	generator := usecase.NewGenerator(&cannedLLM{content: answer}, usecase.GeneratorOptions{
		SystemPrompt: cfg.Analysis.SystemPrompt,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
	}, logger)

	uc := usecase.NewAnalyzeUseCase(
		collector,
		splitter,
		embedder,
		nil,
		generator,
		usecase.NewValidator(nil),
		nil,
		usecase.AnalyzeOptions{
			BasePath: base,
			Query:    cfg.Analysis.Query,
			TopK:     cfg.Retrieve.TopK,
			Policy:   retriever.DefaultPolicy(),
		},
		logger,
	)
	return New(uc, nil, nil, cfg.Server, logger).Handler()
}

func writeRepoFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyzeEndpoint_Pipeline(t *testing.T) {
	report := `{"Summary":"demo","Redundancy":[],"LogicalErrors":[],"SyntaxErrors":[],"Improvements":[]}`

	base := t.TempDir()
	for _, name := range []string{"a.py", "b.py", "c.py"} {
		writeRepoFile(t, filepath.Join(base, "demo", "src", name), strings.Repeat("y", 400))
	}
	if err := os.MkdirAll(filepath.Join(base, "empty", "node_modules"), 0755); err != nil {
		t.Fatal(err)
	}
	writeRepoFile(t, filepath.Join(base, "empty", "logo.png"), "png")

	tests := []struct {
		name       string
		answer     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid report",
			answer:     report,
			path:       "/analyze/demo",
			wantStatus: http.StatusOK,
			wantBody:   report,
		},
		{
			name:       "missing repository",
			answer:     report,
			path:       "/analyze/ghost",
			wantStatus: http.StatusNotFound,
			wantBody:   `{"detail":"Repository not found on ` + filepath.Join(base, "ghost") + `"}` + "\n",
		},
		{
			name:       "no usable files",
			answer:     report,
			path:       "/analyze/empty",
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"detail":"No valid files found in the repository"}` + "\n",
		},
		{
			name:       "answer is not json",
			answer:     "not json",
			path:       "/analyze/demo",
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"detail":"Invalid response format: JSON decode error: `,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newPipelineHandler(t, base, tt.answer)

			w := get(t, h, tt.path)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if !strings.HasPrefix(w.Body.String(), tt.wantBody) {
				t.Errorf("expected body to start with %q, got %q", tt.wantBody, w.Body.String())
			}
		})
	}
}
