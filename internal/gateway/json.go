package gateway

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject finds the first balanced JSON object substring in s and
// unmarshals it. Models often wrap structured output in code fences or
// leading prose; everything outside the first balanced object is ignored.
// Returns false if no balanced object exists or it does not parse.
func ExtractJSONObject(s string) (map[string]any, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, false
	}

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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var obj map[string]any
				if err := json.Unmarshal([]byte(s[start:i+1]), &obj); err != nil {
					return nil, false
				}
				return obj, true
			}
		}
	}
	return nil, false
}
