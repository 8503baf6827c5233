package domain

import (
	"encoding/json"
	"time"
)

type RepositoryFile struct {
	Path    string
	RelPath string
	Content string
}

type Chunk struct {
	ID         string
	SourcePath string
	RelPath    string
	Seq        int
	Text       string
}

type EmbeddedChunk struct {
	Chunk  Chunk
	Vector []float32
}

type ScoredChunk struct {
	Chunk    Chunk
	Distance float64
	Rank     int
	Primary  bool
}

// Generation is the outcome of one chat completion. A failed call still
// carries Text, the provider error rendered as if it were the answer.
type Generation struct {
	Text  string
	Model string
	Err   error
}

func (g Generation) Failed() bool {
	return g.Err != nil
}

type Report struct {
	Summary       string        `json:"Summary"`
	Redundancy    []FileFinding `json:"Redundancy"`
	LogicalErrors []Finding     `json:"LogicalErrors"`
	SyntaxErrors  []FileFinding `json:"SyntaxErrors"`
	Improvements  []Improvement `json:"Improvements"`
}

type FileFinding struct {
	Description string   `json:"Description"`
	Files       []string `json:"Files"`
}

type Finding struct {
	Description string `json:"Description"`
	File        string `json:"File"`
}

type Improvement struct {
	Description string `json:"Description"`
	Suggestion  string `json:"Suggestion"`
}

// RequiredReportKeys are the top-level keys every analysis must carry.
var RequiredReportKeys = []string{"Summary", "Redundancy", "LogicalErrors", "SyntaxErrors", "Improvements"}

type RunStats struct {
	Files     int           `json:"files"`
	Chunks    int           `json:"chunks"`
	Retrieved int           `json:"retrieved"`
	Dimension int           `json:"dimension"`
	Duration  time.Duration `json:"duration_ns"`
}

type Analysis struct {
	Repo   string
	Raw    json.RawMessage
	Report *Report
	Model  string
	Stats  RunStats
}

type AnalysisRecord struct {
	ID        uint64          `json:"id"`
	Repo      string          `json:"repo"`
	CreatedAt time.Time       `json:"created_at"`
	Model     string          `json:"model"`
	Stats     RunStats        `json:"stats"`
	Result    json.RawMessage `json:"result"`
}
