package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeFenceRE = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

// StripCodeFences returns the body of the first fenced block, or the
// trimmed input when there is none.
func StripCodeFences(text string) string {
	if m := codeFenceRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ExtractJSON pulls the JSON object or array out of model output that may
// have fences or prose around it. Input with no brace or bracket comes back
// as-is and fails at decode time instead.
func ExtractJSON(text string) string {
	s := StripCodeFences(text)
	startObj := strings.Index(s, "{")
	startArr := strings.Index(s, "[")
	if startObj == -1 && startArr == -1 {
		return s
	}
	start := startObj
	if start == -1 || (startArr != -1 && startArr < start) {
		start = startArr
	}
	end := strings.LastIndex(s, "}")
	if e := strings.LastIndex(s, "]"); e > end {
		end = e
	}
	if end >= start {
		return strings.TrimSpace(s[start : end+1])
	}
	return strings.TrimSpace(s[start:])
}

// DecodeJSON extracts the JSON payload from model output and unmarshals it
// into v.
func DecodeJSON(text string, v any) error {
	if err := json.Unmarshal([]byte(ExtractJSON(text)), v); err != nil {
		return fmt.Errorf("llm: decode json: %w", err)
	}
	return nil
}
