package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"codeflow/internal/domain"
)

// Validator checks that a generation is a JSON object carrying every
// required report key. Nested values are not inspected.
type Validator struct {
	required []string
}

func NewValidator(required []string) *Validator {
	if len(required) == 0 {
		required = domain.RequiredReportKeys
	}
	return &Validator{required: required}
}

func (v *Validator) Validate(gen domain.Generation) (*domain.Analysis, error) {
	if gen.Err != nil {
		return nil, &domain.ResponseFormatError{Detail: gen.Text, Err: gen.Err}
	}

	raw := bytes.TrimSpace([]byte(gen.Text))

	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, &domain.ResponseFormatError{Detail: "JSON decode error: " + err.Error(), Err: err}
	}

	object, ok := value.(map[string]interface{})
	if !ok {
		return nil, &domain.ResponseFormatError{
			Detail: fmt.Sprintf("expected a JSON object, got %s", jsonKind(value)),
			Err:    errors.New("response is not an object"),
		}
	}

	var missing []string
	for _, key := range v.required {
		if _, ok := object[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &domain.ResponseFormatError{
			Detail: "missing required keys: " + strings.Join(missing, ", "),
		}
	}

	analysis := &domain.Analysis{
		Raw:   json.RawMessage(raw),
		Model: gen.Model,
	}

	var report domain.Report
	if err := json.Unmarshal(raw, &report); err == nil {
		analysis.Report = &report
	}
	return analysis, nil
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
