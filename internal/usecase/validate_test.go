package usecase

import (
	"errors"
	"strings"
	"testing"

	"codeflow/config"
	"codeflow/internal/domain"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantErr    bool
		wantDetail string
	}{
		{
			name: "valid report",
			text: validReport,
		},
		{
			name: "extra keys and surrounding whitespace",
			text: "\n  " + `{"Summary": "", "Redundancy": [], "LogicalErrors": [], "SyntaxErrors": [], "Improvements": [], "Extra": 1}` + "\n",
		},
		{
			name:       "plain text",
			text:       "not json",
			wantErr:    true,
			wantDetail: "JSON decode error",
		},
		{
			name:       "trailing text",
			text:       `{"Summary": ""} and more`,
			wantErr:    true,
			wantDetail: "JSON decode error",
		},
		{
			name:       "array",
			text:       `[1, 2]`,
			wantErr:    true,
			wantDetail: "expected a JSON object, got array",
		},
		{
			name:       "missing keys",
			text:       `{"Summary": "x", "Redundancy": [], "LogicalErrors": []}`,
			wantErr:    true,
			wantDetail: "missing required keys: Improvements, SyntaxErrors",
		},
	}

	v := NewValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, err := v.Validate(domain.Generation{Text: tt.text, Model: "m"})
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if analysis.Model != "m" {
					t.Errorf("expected model m, got %s", analysis.Model)
				}
				if strings.TrimSpace(tt.text) != string(analysis.Raw) {
					t.Errorf("expected trimmed raw text, got %s", analysis.Raw)
				}
				return
			}

			if !errors.Is(err, domain.ErrResponseFormat) {
				t.Fatalf("expected response format error, got %v", err)
			}
			var formatErr *domain.ResponseFormatError
			errors.As(err, &formatErr)
			if !strings.HasPrefix(formatErr.Detail, tt.wantDetail) {
				t.Errorf("expected detail %q, got %q", tt.wantDetail, formatErr.Detail)
			}
		})
	}
}

func TestValidate_LooseNestedShape(t *testing.T) {
	v := NewValidator(nil)
	text := `{"Summary": 42, "Redundancy": "none", "LogicalErrors": null, "SyntaxErrors": {}, "Improvements": []}`

	analysis, err := v.Validate(domain.Generation{Text: text})
	if err != nil {
		t.Fatalf("expected only top-level keys to be checked, got %v", err)
	}
	if analysis.Report != nil {
		t.Error("expected typed report to be absent when the shape does not match")
	}
	if string(analysis.Raw) != text {
		t.Error("expected raw response to be kept")
	}
}

func TestBuildUserPrompt(t *testing.T) {
	chunks := []domain.ScoredChunk{
		{Chunk: domain.Chunk{SourcePath: "repo/demo/src/a.py", Text: "print(1)"}},
		{Chunk: domain.Chunk{SourcePath: "repo/demo/b.md", Text: "# title"}},
	}

	context := BuildContext(chunks)
	if context != "File: repo/demo/src/a.py\nprint(1)\n\nFile: repo/demo/b.md\n# title" {
		t.Errorf("unexpected context %q", context)
	}

	prompt := BuildUserPrompt(context, "What is wrong?")
	want := "\nHere are relevant chunks from the codebase:\n\n" + context +
		"\n\nBased on these code excerpts, please answer the following question:\n\nWhat is wrong?\n"
	if prompt != want {
		t.Errorf("unexpected prompt %q", prompt)
	}
}

func TestBuildUserPrompt_DefaultQuery(t *testing.T) {
	prompt := BuildUserPrompt("ctx", config.DefaultQuery)

	if !strings.Contains(prompt, "question:\n\nWhat is the purpose of the code?\n") {
		t.Errorf("expected a blank line between the instruction and the query, got %q", prompt[:120])
	}
	if !strings.HasSuffix(prompt, "Do not Hallucinate\n\n") {
		t.Errorf("expected prompt to end after the query, got %q", prompt[len(prompt)-40:])
	}
}
