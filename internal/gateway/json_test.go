package gateway

import "testing"

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
		key  string
	}{
		{"bare object", `{"a":1}`, true, "a"},
		{"fenced", "```json\n{\"a\":1}\n```", true, "a"},
		{"prose around", `Here you go: {"a":1}. Anything else?`, true, "a"},
		{"nested braces", `{"a":{"b":2}}`, true, "a"},
		{"braces in string", `{"a":"value with } brace"}`, true, "a"},
		{"escaped quote in string", `{"a":"quote \" and } brace"}`, true, "a"},
		{"no object", "plain text only", false, ""},
		{"unbalanced", `{"a": 1`, false, ""},
		{"empty", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, ok := ExtractJSONObject(tt.in)
			if ok != tt.want {
				t.Fatalf("ExtractJSONObject(%q) ok = %v, want %v", tt.in, ok, tt.want)
			}
			if ok {
				if _, present := obj[tt.key]; !present {
					t.Errorf("key %q missing from %v", tt.key, obj)
				}
			}
		})
	}
}
