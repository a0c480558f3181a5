package keywords

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"versefinder/internal/corpus"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Dictionary is the set of lowercase word forms attested in a corpus.
type Dictionary struct {
	lang  language.Tag
	words map[string]struct{}
}

// BuildDictionary tokenizes every verse of ix.
func BuildDictionary(ix *corpus.Index, lang language.Tag) *Dictionary {
	d := &Dictionary{lang: lang, words: make(map[string]struct{})}
	lower := cases.Lower(lang)
	for _, b := range ix.Books() {
		for _, ch := range b.Chapters {
			for _, v := range ch.Verses {
				for _, w := range wordRe.FindAllString(lower.String(v.Text), -1) {
					d.words[w] = struct{}{}
				}
			}
		}
	}
	return d
}

// NewDictionary builds a dictionary from an explicit word list.
func NewDictionary(lang language.Tag, words ...string) *Dictionary {
	d := &Dictionary{lang: lang, words: make(map[string]struct{}, len(words))}
	lower := cases.Lower(lang)
	for _, w := range words {
		d.words[lower.String(w)] = struct{}{}
	}
	return d
}

// LoadDictionary reads a JSON array of words as written by Save.
func LoadDictionary(path string, lang language.Tag) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		return nil, fmt.Errorf("parse dictionary %s: %w", path, err)
	}
	return NewDictionary(lang, words...), nil
}

func (d *Dictionary) Has(word string) bool {
	_, ok := d.words[word]
	return ok
}

func (d *Dictionary) Len() int { return len(d.words) }

// Words returns the attested forms sorted.
func (d *Dictionary) Words() []string {
	out := make([]string, 0, len(d.words))
	for w := range d.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Save writes the sorted word list as an indented JSON array.
func (d *Dictionary) Save(path string) error {
	data, err := json.MarshalIndent(d.Words(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
