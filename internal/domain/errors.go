package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrNoContent          = errors.New("no valid files found in the repository")
	ErrResponseFormat     = errors.New("invalid response format")
	ErrAnalysisNotFound   = errors.New("analysis not found")
)

// RepositoryNotFoundError reports the path that was looked up.
type RepositoryNotFoundError struct {
	Path string
}

func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("repository not found on %s", e.Path)
}

func (e *RepositoryNotFoundError) Is(target error) bool {
	return target == ErrRepositoryNotFound
}

// ProviderError is a failed call to the remote LLM.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API call failed: %v", e.Provider, e.Err)
}

// SoftText renders the failure the way it is reported in place of an answer.
func (e *ProviderError) SoftText() string {
	return fmt.Sprintf("Error calling %s API: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ResponseFormatError reports an LLM answer that is not a valid analysis.
type ResponseFormatError struct {
	Detail string
	Err    error
}

func (e *ResponseFormatError) Error() string {
	return "invalid response format: " + e.Detail
}

func (e *ResponseFormatError) Is(target error) bool {
	return target == ErrResponseFormat
}

func (e *ResponseFormatError) Unwrap() error {
	return e.Err
}
