// Package report renders a relevance map as a markdown research report.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"versefinder/internal/domain"
	"versefinder/internal/outline"
	"versefinder/internal/ranking"
)

// DefaultFooter is appended after the sections when no footer is configured and
// the renderer is asked to include one.
const DefaultFooter = `FURTHER INSTRUCTIONS:
Write an in-depth teaching of about 5000 words within the given topic. Use nuanced language and make sure the theological conclusions are logical and rest only on the material provided. Do not bring in new verses or outside doctrinal systems. Use the user's preferred style if one is given. Quote only the scripture verses in this material, word for word, without any modification.`

// Renderer writes reports. The zero value renders without a footer using default thresholds.
type Renderer struct {
	Thresholds ranking.Thresholds
	Footer     string
}

// Render writes the report for rm with the default renderer.
func Render(w io.Writer, outlineText string, rm *domain.RelevanceMap) error {
	return (&Renderer{}).Render(w, outlineText, rm)
}

// Render writes one heading per section, ordered by section number. Heading level is
// the section depth + 1; the title comes from the current outline.
func (r *Renderer) Render(w io.Writer, outlineText string, rm *domain.RelevanceMap) error {
	th := r.Thresholds
	if th == (ranking.Thresholds{}) {
		th = ranking.DefaultThresholds
	}
	bw := bufio.NewWriter(w)
	sections := append([]string(nil), rm.Order...)
	sort.SliceStable(sections, func(i, j int) bool { return outline.Less(sections[i], sections[j]) })

	for _, sec := range sections {
		b := rm.Buckets[sec]
		title, ok := outline.Theme(outlineText, sec)
		num := outline.Normalize(sec)
		if !ok {
			title = "Section " + num
		}
		fmt.Fprintf(bw, "%s %s. %s\n\n", strings.Repeat("#", outline.Depth(sec)+1), num, title)
		if b.Empty() {
			bw.WriteString("*No verses for this section.*\n\n")
			continue
		}
		writeList(bw, fmt.Sprintf("Most relevant verses (score %d-10):", th.High), b.High)
		writeList(bw, fmt.Sprintf("Less relevant verses (score %d-%d):", th.Medium, th.High-1), b.Medium)
	}
	if f := strings.TrimSpace(r.Footer); f != "" {
		fmt.Fprintf(bw, "---\n\n%s\n", f)
	}
	return bw.Flush()
}

func writeList(w *bufio.Writer, label string, verses []string) {
	if len(verses) == 0 {
		return
	}
	fmt.Fprintf(w, "**%s**\n", label)
	for _, v := range verses {
		fmt.Fprintf(w, "- %s\n", v)
	}
	w.WriteString("\n")
}
