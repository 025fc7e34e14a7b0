package agents

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Shared input parsing for agents. Task inputs arrive as loosely typed maps:
// values declared in the pipeline definition plus dependency results injected
// under "{taskID}_result" keys.

// requireString extracts a mandatory non-empty string input.
func requireString(inputs map[string]interface{}, key string) (string, error) {
	value, ok := inputs[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%s is required and must be a non-empty string", key)
	}
	return value, nil
}

// optionalString extracts a string input, returning empty when absent.
func optionalString(inputs map[string]interface{}, key string) string {
	value, _ := inputs[key].(string)
	return value
}

// clampInt extracts an integer input and clamps it to [min, max]. TOML
// decoding yields int64, JSON decoding float64, and hand-built inputs int;
// all three are accepted.
func clampInt(inputs map[string]interface{}, key string, def, min, max int) int {
	result := def
	if raw, exists := inputs[key]; exists {
		switch v := raw.(type) {
		case int:
			result = v
		case int64:
			result = int(v)
		case float64:
			result = int(v)
		case string:
			if parsed, err := strconv.Atoi(v); err == nil {
				result = parsed
			}
		}
	}
	if result < min {
		result = min
	} else if result > max {
		result = max
	}
	return result
}

// contentFromInputs resolves the document text an agent should operate on.
// Resolution order: an explicit "content" input, then the "content" field of
// any dependency result map (the ocr_extraction agent emits one).
func contentFromInputs(inputs map[string]interface{}) (string, bool) {
	if content, ok := inputs["content"].(string); ok && content != "" {
		return content, true
	}
	for key, raw := range inputs {
		if !strings.HasSuffix(key, "_result") {
			continue
		}
		if result, ok := raw.(map[string]interface{}); ok {
			if content, ok := result["content"].(string); ok && content != "" {
				return content, true
			}
		}
	}
	return "", false
}

var fencedBlockRe = regexp.MustCompile("(?s)```([a-zA-Z]*)\\s*\\n(.*?)```")

// extractFencedBlock returns the body of the first fenced code block matching
// lang. Unlabeled fences match any lang, and when no fence is present the raw
// text is returned, since models sometimes omit the requested fencing.
func extractFencedBlock(text, lang string) string {
	for _, match := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		if lang == "" || match[1] == "" || strings.EqualFold(match[1], lang) {
			return strings.TrimSpace(match[2])
		}
	}
	return strings.TrimSpace(text)
}

// extractJSONBlock pulls a JSON object out of a model response that may wrap
// it in prose or a code fence.
func extractJSONBlock(text string) string {
	candidate := extractFencedBlock(text, "json")
	if strings.HasPrefix(candidate, "{") {
		return candidate
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}
