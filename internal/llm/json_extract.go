package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/agentive-ai/fleet/internal/types"
)

var fencedBlock = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n```")

// ExtractJSON pulls a JSON object or array out of a model response that may
// wrap it in prose or markdown fences. Fenced ```json blocks are preferred;
// otherwise the first balanced object or array in the text is used.
func ExtractJSON(response string) (string, error) {
	for _, match := range fencedBlock.FindAllStringSubmatch(response, -1) {
		lang := strings.ToLower(match[1])
		if lang != "" && lang != "json" {
			continue
		}
		content := strings.TrimSpace(match[2])
		if json.Valid([]byte(content)) {
			return content, nil
		}
	}

	if raw, ok := firstBalancedJSON(response); ok {
		return raw, nil
	}

	return "", types.NewError(types.LLM_RESPONSE_INVALID, "no valid JSON found in model response")
}

// ExtractInto extracts JSON from a model response and unmarshals it into v.
func ExtractInto(response string, v any) error {
	raw, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return types.WrapError(types.LLM_RESPONSE_INVALID, "model response JSON did not match expected shape", err)
	}
	return nil
}

// firstBalancedJSON scans for the first '{' or '[' and returns the balanced
// region it opens, if that region parses as JSON.
func firstBalancedJSON(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	open := s[start]
	var closing byte = '}'
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}
