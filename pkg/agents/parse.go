package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONOrExtract parses model output as strict JSON into v. Markdown
// code fences are trimmed first. On parse failure a recovery pass extracts
// the first balanced {...} block and retries. The returned error is the
// strict-parse error when recovery also fails.
func ParseJSONOrExtract(text string, v any) error {
	cleaned := TrimFences(text)
	strictErr := json.Unmarshal([]byte(cleaned), v)
	if strictErr == nil {
		return nil
	}
	block, ok := extractJSONBlock(cleaned)
	if !ok {
		return fmt.Errorf("no JSON object found in model output: %w", strictErr)
	}
	if err := json.Unmarshal([]byte(block), v); err != nil {
		return fmt.Errorf("extracted JSON block is invalid: %w", err)
	}
	return nil
}

// TrimFences strips an enclosing markdown code fence (``` or ```json) and
// surrounding whitespace. Text without fences is returned trimmed.
func TrimFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// extractJSONBlock returns the first balanced top-level {...} substring.
// Braces inside JSON strings are skipped.
func extractJSONBlock(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}
