// Package corpus loads a book → chapter → verse scripture file into immutable lookup structures.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrCorpus marks any failure to read or parse the corpus. Callers must stop on it.
var ErrCorpus = errors.New("corpus unavailable")

// Verse is a single verse; Text is kept byte-exact.
type Verse struct {
	Number int
	Text   string
}

// Chapter holds verses in ascending number order.
type Chapter struct {
	Number   int
	Verses   []Verse
	byNumber map[int]int
}

// Verse returns the verse with the given number, if present.
func (c *Chapter) Verse(n int) (Verse, bool) {
	i, ok := c.byNumber[n]
	if !ok {
		return Verse{}, false
	}
	return c.Verses[i], true
}

// Book is one corpus book. Ordinal is its 1-based position in ascending id order.
type Book struct {
	ID       int
	Name     string
	Ordinal  int
	Aliases  []string
	Chapters []*Chapter
}

// Index is the loaded corpus. It is read-only after construction.
type Index struct {
	books      []*Book
	byID       map[int]*Book
	byName     map[string]*Book
	aliases    map[string]*Book
	aliasOrder []string
}

type rawCorpus struct {
	Book map[string]rawBook `json:"book"`
}

type rawBook struct {
	Info    rawInfo               `json:"info"`
	Chapter map[string]rawChapter `json:"chapter"`
}

type rawInfo struct {
	Name      string   `json:"name"`
	Shortname string   `json:"shortname"`
	Abbr      []string `json:"abbr"`
}

type rawChapter struct {
	Verse map[string]rawVerse `json:"verse"`
}

type rawVerse struct {
	Text string `json:"text"`
}

// Load reads and indexes the corpus file at path.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpus, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse indexes a corpus from r.
func Parse(r io.Reader) (*Index, error) {
	var raw rawCorpus
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCorpus, err)
	}
	if len(raw.Book) == 0 {
		return nil, fmt.Errorf("%w: no books", ErrCorpus)
	}

	ids := make([]int, 0, len(raw.Book))
	keys := make(map[int]string, len(raw.Book))
	for k := range raw.Book {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("%w: book id %q is not numeric", ErrCorpus, k)
		}
		ids = append(ids, id)
		keys[id] = k
	}
	sort.Ints(ids)

	ix := &Index{
		byID:    make(map[int]*Book, len(ids)),
		byName:  make(map[string]*Book, len(ids)),
		aliases: make(map[string]*Book),
	}
	for i, id := range ids {
		rb := raw.Book[keys[id]]
		book := &Book{ID: id, Ordinal: i + 1, Name: strings.TrimSpace(rb.Info.Name)}
		if book.Name == "" {
			book.Name = fmt.Sprintf("Book %d", id)
		}
		chapters, err := parseChapters(rb.Chapter)
		if err != nil {
			return nil, fmt.Errorf("%w: book %d: %v", ErrCorpus, id, err)
		}
		book.Chapters = chapters

		names := append([]string{rb.Info.Name, rb.Info.Shortname}, rb.Info.Abbr...)
		for _, name := range names {
			key := NormalizeAlias(name)
			if key == "" {
				continue
			}
			if prev, ok := ix.aliases[key]; ok && prev != book {
				slog.Warn("alias collision, later book wins", "alias", key, "previous", prev.Name, "book", book.Name)
			}
			ix.aliases[key] = book
			book.Aliases = append(book.Aliases, key)
		}
		ix.books = append(ix.books, book)
		ix.byID[id] = book
		ix.byName[book.Name] = book
	}

	ix.aliasOrder = make([]string, 0, len(ix.aliases))
	for a := range ix.aliases {
		ix.aliasOrder = append(ix.aliasOrder, a)
	}
	sort.Slice(ix.aliasOrder, func(i, j int) bool {
		a, b := ix.aliasOrder[i], ix.aliasOrder[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return ix, nil
}

func parseChapters(raw map[string]rawChapter) ([]*Chapter, error) {
	chapters := make([]*Chapter, 0, len(raw))
	for k, rc := range raw {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("chapter %q is not numeric", k)
		}
		ch := &Chapter{Number: n, byNumber: make(map[int]int, len(rc.Verse))}
		for vk, rv := range rc.Verse {
			vn, err := strconv.Atoi(strings.TrimSpace(vk))
			if err != nil {
				return nil, fmt.Errorf("chapter %d: verse %q is not numeric", n, vk)
			}
			ch.Verses = append(ch.Verses, Verse{Number: vn, Text: rv.Text})
		}
		sort.Slice(ch.Verses, func(i, j int) bool { return ch.Verses[i].Number < ch.Verses[j].Number })
		for i, v := range ch.Verses {
			ch.byNumber[v.Number] = i
		}
		chapters = append(chapters, ch)
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Number < chapters[j].Number })
	return chapters, nil
}

// NormalizeAlias lowercases a book name and strips spaces and periods.
func NormalizeAlias(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, " ", "")
}

// Books returns the books in canonical order.
func (ix *Index) Books() []*Book { return ix.books }

// Book returns the book with the given numeric id.
func (ix *Index) Book(id int) (*Book, bool) {
	b, ok := ix.byID[id]
	return b, ok
}

// BookByName resolves a display name, falling back to the alias map.
func (ix *Index) BookByName(name string) (*Book, bool) {
	name = strings.TrimSpace(name)
	if b, ok := ix.byName[name]; ok {
		return b, true
	}
	return ix.Lookup(name)
}

// Lookup resolves any known alias (full name, short name or abbreviation).
func (ix *Index) Lookup(alias string) (*Book, bool) {
	b, ok := ix.aliases[NormalizeAlias(alias)]
	return b, ok
}

// Aliases returns every normalized alias, longest first.
func (ix *Index) Aliases() []string {
	return append([]string(nil), ix.aliasOrder...)
}

// VerseCount returns the total number of verses in the corpus.
func (ix *Index) VerseCount() int {
	n := 0
	for _, b := range ix.books {
		for _, c := range b.Chapters {
			n += len(c.Verses)
		}
	}
	return n
}

// Cite renders the text-bearing citation "<Book> <chapter>:<verse> - <text>".
func Cite(book *Book, chapter int, v Verse) string {
	return fmt.Sprintf("%s %d:%d - %s", book.Name, chapter, v.Number, v.Text)
}
