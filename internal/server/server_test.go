package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codeflow/config"
	"codeflow/internal/domain"
)

type fakeAnalyzer struct {
	analysis *domain.Analysis
	err      error
	panics   bool
	gotRepo  string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, repoName string) (*domain.Analysis, error) {
	f.gotRepo = repoName
	if f.panics {
		panic("boom")
	}
	return f.analysis, f.err
}

type fakeHistory struct {
	records   []domain.AnalysisRecord
	gotLimit  int
	listError error
}

func (f *fakeHistory) Append(rec domain.AnalysisRecord) (domain.AnalysisRecord, error) {
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeHistory) List(repo string, limit int) ([]domain.AnalysisRecord, error) {
	f.gotLimit = limit
	return f.records, f.listError
}

func (f *fakeHistory) Get(repo string, id uint64) (domain.AnalysisRecord, error) {
	for _, rec := range f.records {
		if rec.Repo == repo && rec.ID == id {
			return rec, nil
		}
	}
	return domain.AnalysisRecord{}, fmt.Errorf("%w: %d", domain.ErrAnalysisNotFound, id)
}

func (f *fakeHistory) Repos() ([]string, error) { return []string{"demo"}, nil }
func (f *fakeHistory) Close() error             { return nil }

func newTestServer(analyzer Analyzer, history *fakeHistory) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig().Server
	if history == nil {
		return New(analyzer, nil, nil, cfg, logger)
	}
	return New(analyzer, history, nil, cfg, logger)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", w.Body.String(), err)
	}
	return body.Detail
}

func TestHandleAnalyze_Success(t *testing.T) {
	raw := `{"Summary":"ok","Redundancy":[],"LogicalErrors":[],"SyntaxErrors":[],"Improvements":[]}`
	analyzer := &fakeAnalyzer{analysis: &domain.Analysis{Raw: json.RawMessage(raw)}}
	h := newTestServer(analyzer, nil).Handler()

	w := get(t, h, "/analyze/demo")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != raw {
		t.Errorf("expected raw analysis body, got %s", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
	if analyzer.gotRepo != "demo" {
		t.Errorf("expected repo demo, got %s", analyzer.gotRepo)
	}
}

func TestHandleAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{
			name:       "not found",
			err:        &domain.RepositoryNotFoundError{Path: "repo/missing"},
			wantStatus: http.StatusNotFound,
			wantDetail: "Repository not found on repo/missing",
		},
		{
			name:       "no content",
			err:        domain.ErrNoContent,
			wantStatus: http.StatusBadRequest,
			wantDetail: "No valid files found in the repository",
		},
		{
			name:       "wrapped no content",
			err:        errors.Join(errors.New("collect"), domain.ErrNoContent),
			wantStatus: http.StatusBadRequest,
			wantDetail: "No valid files found in the repository",
		},
		{
			name:       "bad json",
			err:        &domain.ResponseFormatError{Detail: "JSON decode error: invalid character 'o'"},
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Invalid response format: JSON decode error: invalid character 'o'",
		},
		{
			name: "provider failure",
			err: &domain.ResponseFormatError{
				Detail: "Error calling DeepSeek API: timeout",
				Err:    &domain.ProviderError{Provider: "DeepSeek", Err: errors.New("timeout")},
			},
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Invalid response format: Error calling DeepSeek API: timeout",
		},
		{
			name:       "unexpected",
			err:        errors.New("failed to embed chunks: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Internal error: failed to embed chunks: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeAnalyzer{err: tt.err}, nil).Handler()

			w := get(t, h, "/analyze/demo")
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if got := decodeDetail(t, w); got != tt.wantDetail {
				t.Errorf("expected detail %q, got %q", tt.wantDetail, got)
			}
		})
	}
}

func TestHandleAnalyze_MethodNotAllowed(t *testing.T) {
	h := newTestServer(&fakeAnalyzer{}, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/analyze/demo", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestHandleAnalyze_Panic(t *testing.T) {
	h := newTestServer(&fakeAnalyzer{panics: true}, nil).Handler()

	w := get(t, h, "/analyze/demo")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := decodeDetail(t, w); !strings.Contains(got, "boom") {
		t.Errorf("expected panic detail, got %q", got)
	}
}

func TestHandleHistory(t *testing.T) {
	history := &fakeHistory{records: []domain.AnalysisRecord{{ID: 2, Repo: "demo"}, {ID: 1, Repo: "demo"}}}
	h := newTestServer(&fakeAnalyzer{}, history).Handler()

	w := get(t, h, "/analyses/demo?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if history.gotLimit != 5 {
		t.Errorf("expected limit 5, got %d", history.gotLimit)
	}

	var records []domain.AnalysisRecord
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].ID != 2 {
		t.Errorf("unexpected records %+v", records)
	}

	if w := get(t, h, "/analyses/demo?limit=abc"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}

	w = get(t, h, "/analyses")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"demo"`) {
		t.Errorf("unexpected repos response %d %s", w.Code, w.Body.String())
	}
}

func TestHandleRecord(t *testing.T) {
	history := &fakeHistory{records: []domain.AnalysisRecord{{ID: 7, Repo: "demo", Model: "deepseek-reasoner"}}}
	h := newTestServer(&fakeAnalyzer{}, history).Handler()

	w := get(t, h, "/analyses/demo/7")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rec domain.AnalysisRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID != 7 || rec.Model != "deepseek-reasoner" {
		t.Errorf("unexpected record %+v", rec)
	}

	w = get(t, h, "/analyses/demo/8")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing record, got %d", w.Code)
	}
	if got := decodeDetail(t, w); got != "Analysis 8 not found for demo" {
		t.Errorf("unexpected detail %q", got)
	}

	if w := get(t, h, "/analyses/demo/latest"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", w.Code)
	}
}

func TestHandleHistory_Disabled(t *testing.T) {
	h := newTestServer(&fakeAnalyzer{}, nil).Handler()

	if w := get(t, h, "/analyses/demo"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	health := NewHealth("1.0.0")
	health.RegisterCheck("llm", LLMCheck("DeepSeek", "deepseek-reasoner"))
	health.RegisterCheck("repos", DirectoryCheck(func() error { return errors.New("missing") }))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(&fakeAnalyzer{}, nil, health, config.DefaultConfig().Server, logger).Handler()

	w := get(t, h, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Version != "1.0.0" || len(resp.Checks) != 2 {
		t.Errorf("unexpected health response %+v", resp)
	}
	if resp.Checks[0].Name != "llm" || resp.Checks[1].Status != HealthStatusUnhealthy {
		t.Errorf("expected sorted checks with unhealthy repos, got %+v", resp.Checks)
	}

	if w := get(t, h, "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected not ready before start, got %d", w.Code)
	}
	health.SetReady(true)
	if w := get(t, h, "/ready"); w.Code != http.StatusOK {
		t.Errorf("expected ready, got %d", w.Code)
	}

	if w := get(t, h, "/live"); w.Code != http.StatusOK {
		t.Errorf("expected live, got %d", w.Code)
	}
	health.SetLive(false)
	if w := get(t, h, "/live"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected not live, got %d", w.Code)
	}
}

func TestStart_ListenFailureMarksNotLive(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	defer taken.Close()

	cfg := config.DefaultConfig().Server
	cfg.Addr = taken.Addr().String()
	health := NewHealth("")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err = New(&fakeAnalyzer{}, nil, health, cfg, logger).Start(context.Background())
	if err == nil {
		t.Fatal("expected error when the address is in use")
	}

	mux := http.NewServeMux()
	health.register(mux)
	if w := get(t, mux, "/live"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected /live to fail after listener error, got %d", w.Code)
	}
	if w := get(t, mux, "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected /ready to fail after listener error, got %d", w.Code)
	}
}
