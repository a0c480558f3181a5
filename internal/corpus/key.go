package corpus

import (
	"math"
	"regexp"
	"sort"
	"strconv"
)

// Key orders verses by book ordinal, chapter and verse.
type Key struct {
	Book    int
	Chapter int
	Verse   int
}

// Sentinel is the key of an unparseable citation; it sorts after everything else.
var Sentinel = Key{Book: math.MaxInt, Chapter: math.MaxInt, Verse: math.MaxInt}

var citationRe = regexp.MustCompile(`^(.*?)\s+(\d+):(\d+)`)

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	if k.Book != o.Book {
		return k.Book < o.Book
	}
	if k.Chapter != o.Chapter {
		return k.Chapter < o.Chapter
	}
	return k.Verse < o.Verse
}

// Key derives the canonical key of a citation, with or without its " - text" suffix.
// An unknown book keeps its chapter and verse but takes the sentinel book ordinal.
func (ix *Index) Key(citation string) Key {
	m := citationRe.FindStringSubmatch(citation)
	if m == nil {
		return Sentinel
	}
	chapter, err := strconv.Atoi(m[2])
	if err != nil {
		return Sentinel
	}
	verse, err := strconv.Atoi(m[3])
	if err != nil {
		return Sentinel
	}
	ordinal := Sentinel.Book
	if b, ok := ix.BookByName(m[1]); ok {
		ordinal = b.Ordinal
	}
	return Key{Book: ordinal, Chapter: chapter, Verse: verse}
}

// Less orders two citations canonically, breaking key ties by string so the order is total.
func (ix *Index) Less(a, b string) bool {
	ka, kb := ix.Key(a), ix.Key(b)
	if ka != kb {
		return ka.Less(kb)
	}
	return a < b
}

// SortCitations sorts citations in place into canonical order.
func (ix *Index) SortCitations(citations []string) {
	sort.SliceStable(citations, func(i, j int) bool { return ix.Less(citations[i], citations[j]) })
}
