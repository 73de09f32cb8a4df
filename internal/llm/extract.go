package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var reFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractJSON recovers a JSON object from raw model output, which may be
// wrapped in a markdown code fence, surrounded by prose, or truncated
// mid-structure. Recovery attempts run in order; the first parseable object
// wins. Fence stripping runs before brace scanning so braces inside
// explanatory prose cannot shadow the fenced payload.
func ExtractJSON(raw string) (map[string]any, error) {
	candidate := strings.TrimSpace(raw)
	if m := reFence.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}

	if obj, err := parseObject(candidate); err == nil {
		return obj, nil
	}

	// Second attempt: first '{' through last '}' inclusive.
	if start, end := strings.Index(candidate, "{"), strings.LastIndex(candidate, "}"); start >= 0 && end > start {
		if obj, err := parseObject(candidate[start : end+1]); err == nil {
			return obj, nil
		}
	}

	// Third attempt: close brackets left open by truncation.
	if start := strings.Index(candidate, "{"); start >= 0 {
		if repaired, ok := repairTruncated(candidate[start:]); ok {
			if obj, err := parseObject(repaired); err == nil {
				return obj, nil
			}
		}
	}

	return nil, newMalformedOutputError(raw)
}

func parseObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// repairTruncated appends the closing brackets a truncated document is
// missing, innermost first. String literals are skipped so braces inside
// values do not miscount. Returns ok=false when the text is balanced already
// (nothing to repair) or closes brackets it never opened.
func repairTruncated(s string) (string, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			open := stack[len(stack)-1]
			if (c == '}' && open != '{') || (c == ']' && open != '[') {
				return "", false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) == 0 && !inString {
		return "", false
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), true
}
