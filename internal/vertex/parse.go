package vertex

import (
	"encoding/json"
	"fmt"

	"github.com/tranhaiminh/docvault/internal/document"
)

// extractJSON returns the first balanced brace-delimited substring of s,
// skipping braces inside JSON string literals. Model responses routinely
// surround the JSON payload with prose or markdown fences.
func extractJSON(s string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("no balanced JSON object found in response")
}

// parseAnalysis extracts and decodes the analysis object embedded in a model
// response. A missing or malformed object is an error for the caller to
// treat as an enrichment failure, not a crash.
func parseAnalysis(response string) (*document.Analysis, error) {
	raw, err := extractJSON(response)
	if err != nil {
		return nil, err
	}
	var analysis document.Analysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("decoding analysis JSON: %w", err)
	}
	return &analysis, nil
}
