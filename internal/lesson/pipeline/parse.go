package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/blackboard-backend/internal/domain"
)

var (
	ErrMalformedResponse = errors.New("malformed lesson response")
	ErrMissingSteps      = errors.New("lesson response has no steps array")
)

// Parse decodes a generation response into raw steps. Markdown code fences are
// stripped and the outermost {...} object is decoded, so surrounding prose is
// tolerated. An empty steps array is not an error.
func Parse(raw string) ([]domain.RawStep, error) {
	obj, ok := extractObject(stripFences(raw))
	if !ok {
		return nil, ErrMalformedResponse
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	rawSteps, ok := doc["steps"]
	if !ok {
		return nil, ErrMissingSteps
	}
	trimmed := strings.TrimSpace(string(rawSteps))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, ErrMissingSteps
	}
	var steps []domain.RawStep
	if err := json.Unmarshal(rawSteps, &steps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if steps == nil {
		steps = []domain.RawStep{}
	}
	return steps, nil
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	return strings.ReplaceAll(s, "```", "")
}

func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
