package wordstudy

import (
	"fmt"
	"sort"

	"github.com/mrwolf/bible-research/internal/canon"
)

// DefaultTopN is the number of books kept in Report.TopBooks when the caller
// does not ask for a specific limit.
const DefaultTopN = 5

// OccurrenceTable maps an original-language word to its per-book counts.
type OccurrenceTable map[string]map[string]int

// Selection marks which original-language words to include in a tally.
type Selection map[string]bool

// DataIntegrityError reports a negative occurrence count in reference data.
type DataIntegrityError struct {
	Word  string
	Book  string
	Count int
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %q in %s has negative count %d", e.Word, e.Book, e.Count)
}

// BookCount is a single book's summed occurrences.
type BookCount struct {
	Book  string `json:"book"`
	Order int    `json:"order"`
	Count int    `json:"count"`
}

// BookTally holds one entry per book, in book-list order.
type BookTally []BookCount

// Count returns the tally for book, or 0 if the book is not in the tally.
func (t BookTally) Count(book string) int {
	for _, bc := range t {
		if bc.Book == book {
			return bc.Count
		}
	}
	return 0
}

// NonZero returns the books with a positive tally, in book-list order.
// This is the bar chart series.
func (t BookTally) NonZero() []BookCount {
	out := make([]BookCount, 0)
	for _, bc := range t {
		if bc.Count > 0 {
			out = append(out, bc)
		}
	}
	return out
}

// Total returns the sum of all entries.
func (t BookTally) Total() int {
	total := 0
	for _, bc := range t {
		total += bc.Count
	}
	return total
}

// Report summarizes a BookTally.
type Report struct {
	GrandTotal        int         `json:"grand_total"`
	BooksWithWord     int         `json:"books_with_word"`
	BookCount         int         `json:"book_count"`
	AvgPerBook        float64     `json:"avg_per_book"`
	OldTestamentTotal int         `json:"old_testament_total"`
	NewTestamentTotal int         `json:"new_testament_total"`
	OldTestamentShare float64     `json:"old_testament_share"`
	NewTestamentShare float64     `json:"new_testament_share"`
	Ratio             *float64    `json:"ot_nt_ratio"`
	TopBooks          []BookCount `json:"top_books"`
	NoData            bool        `json:"no_data"`
}

// RatioAvailable reports whether both testaments had occurrences.
func (r Report) RatioAvailable() bool {
	return r.Ratio != nil
}

// ComputeBookTally sums per-book counts for every word that is selected and
// present in table. Selected words missing from table contribute nothing,
// and so do book keys that are not in books, whatever their count.
func ComputeBookTally(table OccurrenceTable, selection Selection, books []string) (BookTally, error) {
	tally := make(BookTally, len(books))
	counted := make(bookSet, len(books))
	for i, name := range books {
		tally[i] = BookCount{Book: name, Order: i + 1}
		counted[name] = true
	}

	for _, word := range effectiveWords(table, selection) {
		counts := table[word]
		if err := checkCounts(word, counts, counted.has); err != nil {
			return nil, err
		}
		for i := range tally {
			tally[i].Count += counts[tally[i].Book]
		}
	}

	return tally, nil
}

// ComputeAggregateReport derives summary statistics from a tally.
// oldTestament is the set of Old Testament book names; every other book is
// counted as New Testament. topN <= 0 selects DefaultTopN.
func ComputeAggregateReport(tally BookTally, books []string, oldTestament map[string]bool, topN int) Report {
	if topN <= 0 {
		topN = DefaultTopN
	}

	r := Report{
		BookCount: len(books),
		TopBooks:  []BookCount{},
	}

	for _, bc := range tally {
		r.GrandTotal += bc.Count
		if bc.Count > 0 {
			r.BooksWithWord++
		}
		if oldTestament[bc.Book] {
			r.OldTestamentTotal += bc.Count
		}
	}
	r.NewTestamentTotal = r.GrandTotal - r.OldTestamentTotal

	if r.GrandTotal == 0 {
		r.NoData = true
		return r
	}

	r.AvgPerBook = float64(r.GrandTotal) / float64(r.BooksWithWord)
	r.OldTestamentShare = float64(r.OldTestamentTotal) / float64(r.GrandTotal) * 100
	r.NewTestamentShare = float64(r.NewTestamentTotal) / float64(r.GrandTotal) * 100

	if r.OldTestamentTotal > 0 && r.NewTestamentTotal > 0 {
		ratio := float64(r.OldTestamentTotal) / float64(r.NewTestamentTotal)
		r.Ratio = &ratio
	}

	ranked := RankBooks(tally, books)
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	r.TopBooks = ranked

	return r
}

// RankBooks returns every book with a positive tally, highest first. Equal
// counts keep their order in books.
func RankBooks(tally BookTally, books []string) []BookCount {
	position := make(map[string]int, len(books))
	for i, name := range books {
		position[name] = i
	}

	ranked := tally.NonZero()
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return positionOf(position, ranked[i].Book) < positionOf(position, ranked[j].Book)
	})
	return ranked
}

func positionOf(position map[string]int, book string) int {
	if p, ok := position[book]; ok {
		return p
	}
	return len(position)
}

// effectiveWords returns selected ∩ available, sorted.
func effectiveWords(table OccurrenceTable, selection Selection) []string {
	var words []string
	for word, selected := range selection {
		if !selected {
			continue
		}
		if _, ok := table[word]; ok {
			words = append(words, word)
		}
	}
	sort.Strings(words)
	return words
}

type bookSet map[string]bool

func (s bookSet) has(book string) bool { return s[book] }

// checkCounts rejects negative counts for the books counted reports, scanning
// in sorted order so the reported pair does not depend on map iteration.
func checkCounts(word string, counts map[string]int, counted func(string) bool) error {
	var bad []string
	for book, n := range counts {
		if n < 0 && counted(book) {
			bad = append(bad, book)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return &DataIntegrityError{Word: word, Book: bad[0], Count: counts[bad[0]]}
}

// Validate scans the whole table for negative counts in canonical books.
// Non-canonical book keys are never tallied and are not checked.
func (t OccurrenceTable) Validate() error {
	words := make([]string, 0, len(t))
	for word := range t {
		words = append(words, word)
	}
	sort.Strings(words)

	for _, word := range words {
		if err := checkCounts(word, t[word], canon.IsCanonical); err != nil {
			return err
		}
	}
	return nil
}

// Words returns the table's words in sorted order.
func (t OccurrenceTable) Words() []string {
	words := make([]string, 0, len(t))
	for word := range t {
		words = append(words, word)
	}
	sort.Strings(words)
	return words
}
