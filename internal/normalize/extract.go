package normalize

import (
	"encoding/json"
	"strings"
)

var wrapperKeys = []string{"questions", "flashcards", "cards", "items"}

// ExtractJSON pulls the JSON payload out of free-form model text: a fenced block
// first, then the first balanced top-level array, then the trimmed text itself.
func ExtractJSON(raw string) (string, bool) {
	if s, ok := fencedBlock(raw); ok {
		return s, true
	}
	if s, ok := firstArray(raw); ok {
		return s, true
	}
	s := strings.TrimSpace(raw)
	return s, s != ""
}

// ParseItems decodes the payload into a list of JSON objects. Anything that does
// not decode yields nil.
func ParseItems(raw string) []map[string]interface{} {
	for _, candidate := range candidates(raw) {
		if items, ok := decodeItems(candidate); ok {
			return items
		}
	}
	return nil
}

func candidates(raw string) []string {
	out := make([]string, 0, 3)
	if s, ok := fencedBlock(raw); ok {
		out = append(out, s)
	}
	if s, ok := firstArray(raw); ok {
		out = append(out, s)
	}
	if s := strings.TrimSpace(raw); s != "" {
		out = append(out, s)
	}
	return out
}

func decodeItems(s string) ([]map[string]interface{}, bool) {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case []interface{}:
		return objects(t), true
	case map[string]interface{}:
		for _, key := range wrapperKeys {
			if arr, ok := t[key].([]interface{}); ok {
				return objects(arr), true
			}
		}
		return []map[string]interface{}{t}, true
	}
	return nil, false
}

func objects(arr []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func fencedBlock(raw string) (string, bool) {
	open := strings.Index(raw, "```")
	if open < 0 {
		return "", false
	}
	body := raw[open+3:]
	// skip the language tag
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag == "" || isLangTag(tag) {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	body = strings.TrimSpace(body)
	return body, body != ""
}

func isLangTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// firstArray returns the first '[' ... ']' span whose brackets balance outside
// of JSON strings.
func firstArray(raw string) (string, bool) {
	for start := strings.IndexByte(raw, '['); start >= 0; {
		if end, ok := matchBracket(raw, start); ok {
			return raw[start : end+1], true
		}
		next := strings.IndexByte(raw[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBracket(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
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
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
