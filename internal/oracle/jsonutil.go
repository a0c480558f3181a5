package oracle

import (
	"encoding/json"
	"strings"
)

// DecodeJSON unmarshals generated text into v. Models sometimes wrap JSON in a
// markdown fence or add prose around it, so on failure the outermost object is retried.
func DecodeJSON(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	err := json.Unmarshal([]byte(trimmed), v)
	if err == nil {
		return nil
	}
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end <= start {
		return err
	}
	if err2 := json.Unmarshal([]byte(trimmed[start:end+1]), v); err2 != nil {
		return err
	}
	return nil
}

// Lines splits free-text output into trimmed, non-empty lines.
func Lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(strings.TrimSuffix(l, "\r"))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
