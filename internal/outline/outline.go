// Package outline parses numbered outline text such as "2.1. Title".
package outline

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var headerRe = regexp.MustCompile(`^\s*(\d+(\.\d+)*)\.?\s*(.*)`)

// Header is one numbered line of an outline.
type Header struct {
	Number string // without trailing dot, e.g. "2.1"
	Title  string
}

// Depth is the nesting level: dot count + 1.
func (h Header) Depth() int { return Depth(h.Number) }

// Parse returns the numbered headers of outline in text order.
func Parse(text string) []Header {
	var out []Header
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := headerRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, Header{Number: m[1], Title: strings.TrimSpace(m[3])})
	}
	return out
}

// Normalize strips surrounding whitespace and trailing dots from a section number ("2.1." -> "2.1").
func Normalize(section string) string {
	return strings.TrimRight(strings.TrimSpace(section), ".")
}

// Theme returns the title of section as written in the current outline.
// The first header carrying the number wins; an empty title counts as missing.
func Theme(text, section string) (string, bool) {
	want := Normalize(section)
	if want == "" {
		return "", false
	}
	for _, h := range Parse(text) {
		if h.Number == want {
			return h.Title, h.Title != ""
		}
	}
	return "", false
}

// Depth returns dot count + 1 of a section number, ignoring a trailing dot.
func Depth(section string) int {
	return strings.Count(Normalize(section), ".") + 1
}

// Key splits a section number into integers for hierarchical sorting.
// Non-numeric numbers sort last.
func Key(section string) []int {
	n := Normalize(section)
	if n == "" {
		return []int{math.MaxInt}
	}
	parts := strings.Split(n, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return []int{math.MaxInt}
		}
		out[i] = v
	}
	return out
}

// Less orders section numbers by their numeric hierarchy ("2" < "2.1" < "10").
func Less(a, b string) bool {
	ka, kb := Key(a), Key(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if ka[i] != kb[i] {
			return ka[i] < kb[i]
		}
	}
	if len(ka) != len(kb) {
		return len(ka) < len(kb)
	}
	return a < b
}
