// Package wordstudy aggregates original-language word occurrences across the
// canonical books and loads the reference data behind it.
package wordstudy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mrwolf/bible-research/internal/canon"
)

// Reference data file names inside the data directory.
const (
	GreekFile       = "greek_words.json"
	HebrewFile      = "hebrew_words.json"
	OccurrencesFile = "word_occurrences.json"
)

// ErrUnknownHeadword is returned when an English headword has no occurrence data.
var ErrUnknownHeadword = errors.New("unknown headword")

// Language is the original language of a word entry.
type Language string

const (
	Hebrew Language = "hebrew"
	Greek  Language = "greek"
)

// WordEntry is metadata for one original-language word.
type WordEntry struct {
	Word         string   `json:"word"`
	Strong       string   `json:"strong"`
	Meaning      string   `json:"meaning"`
	EnglishWords []string `json:"english_words"`
	Language     Language `json:"language"`
}

// Translates reports whether the entry lists headword among its English words.
func (e WordEntry) Translates(headword string) bool {
	for _, w := range e.EnglishWords {
		if w == headword {
			return true
		}
	}
	return false
}

// rawEntry matches the on-disk word metadata format.
type rawEntry struct {
	Strong       string   `json:"strong"`
	Meaning      string   `json:"meaning"`
	EnglishWords []string `json:"english_words"`
}

// Dataset is an immutable snapshot of the word study reference data.
type Dataset struct {
	greek       map[string]WordEntry
	hebrew      map[string]WordEntry
	occurrences map[string]OccurrenceTable
	missing     []string
}

// NewDataset builds a dataset from in-memory values.
func NewDataset(hebrew, greek []WordEntry, occurrences map[string]OccurrenceTable) *Dataset {
	d := &Dataset{
		greek:       make(map[string]WordEntry, len(greek)),
		hebrew:      make(map[string]WordEntry, len(hebrew)),
		occurrences: make(map[string]OccurrenceTable, len(occurrences)),
	}
	for _, e := range hebrew {
		e.Language = Hebrew
		d.hebrew[e.Word] = e
	}
	for _, e := range greek {
		e.Language = Greek
		d.greek[e.Word] = e
	}
	for k, v := range occurrences {
		d.occurrences[k] = v
	}
	return d
}

// LoadDataset reads the three reference files from dir. Missing files are not
// an error: the dataset reports them through Missing and Available returns
// false when no occurrence data could be read.
func LoadDataset(dir string) (*Dataset, error) {
	d := &Dataset{
		greek:       map[string]WordEntry{},
		hebrew:      map[string]WordEntry{},
		occurrences: map[string]OccurrenceTable{},
	}

	greek, err := loadEntries(filepath.Join(dir, GreekFile), Greek)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err != nil {
		d.missing = append(d.missing, GreekFile)
	} else {
		d.greek = greek
	}

	hebrew, err := loadEntries(filepath.Join(dir, HebrewFile), Hebrew)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err != nil {
		d.missing = append(d.missing, HebrewFile)
	} else {
		d.hebrew = hebrew
	}

	occ, err := loadOccurrences(filepath.Join(dir, OccurrencesFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err != nil {
		d.missing = append(d.missing, OccurrencesFile)
	} else {
		d.occurrences = occ
	}

	return d, nil
}

func loadEntries(path string, lang Language) (map[string]WordEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw map[string]rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	out := make(map[string]WordEntry, len(raw))
	for word, r := range raw {
		out[word] = WordEntry{
			Word:         word,
			Strong:       r.Strong,
			Meaning:      r.Meaning,
			EnglishWords: r.EnglishWords,
			Language:     lang,
		}
	}
	return out, nil
}

func loadOccurrences(path string) (map[string]OccurrenceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var out map[string]OccurrenceTable
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if out == nil {
		out = map[string]OccurrenceTable{}
	}
	return out, nil
}

// Available reports whether any occurrence data was loaded.
func (d *Dataset) Available() bool {
	return d != nil && len(d.occurrences) > 0
}

// Missing lists reference files that were not found at load time.
func (d *Dataset) Missing() []string {
	return append([]string(nil), d.missing...)
}

// Headwords returns the English headwords with occurrence data, sorted.
func (d *Dataset) Headwords() []string {
	words := make([]string, 0, len(d.occurrences))
	for w := range d.occurrences {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// Table returns the occurrence table for an English headword.
func (d *Dataset) Table(headword string) (OccurrenceTable, bool) {
	t, ok := d.occurrences[headword]
	return t, ok
}

// Variant is an original-language word offered for selection.
type Variant struct {
	WordEntry
	Occurrences int `json:"occurrences"`
}

// Variants returns the Hebrew then Greek words that translate headword and
// have occurrence data under it. Each group is sorted by word.
func (d *Dataset) Variants(headword string) ([]Variant, error) {
	table, ok := d.occurrences[headword]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHeadword, headword)
	}

	out := make([]Variant, 0)
	for _, group := range []map[string]WordEntry{d.hebrew, d.greek} {
		var words []string
		for word, e := range group {
			if _, has := table[word]; has && e.Translates(headword) {
				words = append(words, word)
			}
		}
		sort.Strings(words)
		for _, word := range words {
			out = append(out, Variant{
				WordEntry:   group[word],
				Occurrences: sumCanonical(table[word]),
			})
		}
	}
	return out, nil
}

func sumCanonical(counts map[string]int) int {
	total := 0
	for book, n := range counts {
		if canon.IsCanonical(book) && n > 0 {
			total += n
		}
	}
	return total
}

// Study is the full result of a word distribution request.
type Study struct {
	Headword  string      `json:"headword"`
	Selected  []string    `json:"selected"`
	Tally     BookTally   `json:"-"`
	Chart     []BookCount `json:"chart"`
	Breakdown []BookCount `json:"breakdown"`
	Report    Report      `json:"report"`
}

// WordsAnalyzed is the number of words that contributed to the tally.
func (s *Study) WordsAnalyzed() int {
	return len(s.Selected)
}

// Study tallies the selected variants of headword. A nil selection selects
// every variant offered by Variants. topN <= 0 uses DefaultTopN.
func (d *Dataset) Study(headword string, selection Selection, topN int) (*Study, error) {
	table, ok := d.occurrences[headword]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHeadword, headword)
	}

	if selection == nil {
		selection = d.defaultSelection(headword, table)
	}

	books := canon.Names()
	tally, err := ComputeBookTally(table, selection, books)
	if err != nil {
		return nil, err
	}

	selected := effectiveWords(table, selection)
	if selected == nil {
		selected = []string{}
	}

	return &Study{
		Headword:  headword,
		Selected:  selected,
		Tally:     tally,
		Chart:     tally.NonZero(),
		Breakdown: RankBooks(tally, books),
		Report:    ComputeAggregateReport(tally, books, canon.OldTestament(), topN),
	}, nil
}

// defaultSelection selects the offered variants. A dataset without any word
// metadata offers none, so every word in the table is selected instead.
func (d *Dataset) defaultSelection(headword string, table OccurrenceTable) Selection {
	selection := Selection{}
	if len(d.hebrew) == 0 && len(d.greek) == 0 {
		for word := range table {
			selection[word] = true
		}
		return selection
	}
	variants, _ := d.Variants(headword)
	for _, v := range variants {
		selection[v.Word] = true
	}
	return selection
}

// Validate checks every headword's occurrence table for integrity violations.
func (d *Dataset) Validate() error {
	for _, hw := range d.Headwords() {
		if err := d.occurrences[hw].Validate(); err != nil {
			return fmt.Errorf("headword %q: %w", hw, err)
		}
	}
	return nil
}
