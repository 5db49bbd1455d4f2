package wordstudy

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/mrwolf/bible-research/internal/canon"
)

func exampleTable() OccurrenceTable {
	return OccurrenceTable{
		"agape": {"John": 7, "Romans": 3, "Matthew": 0},
		"hesed": {"Psalms": 12},
	}
}

func TestWorkedExample(t *testing.T) {
	books := canon.Names()
	tally, err := ComputeBookTally(exampleTable(), Selection{"agape": true, "hesed": true}, books)
	if err != nil {
		t.Fatalf("ComputeBookTally: %v", err)
	}

	for book, want := range map[string]int{"John": 7, "Romans": 3, "Psalms": 12, "Matthew": 0, "Genesis": 0} {
		if got := tally.Count(book); got != want {
			t.Errorf("tally[%s] = %d, want %d", book, got, want)
		}
	}

	r := ComputeAggregateReport(tally, books, canon.OldTestament(), 0)

	if r.GrandTotal != 22 {
		t.Errorf("GrandTotal = %d, want 22", r.GrandTotal)
	}
	if r.BooksWithWord != 3 {
		t.Errorf("BooksWithWord = %d, want 3", r.BooksWithWord)
	}
	if r.BookCount != 66 {
		t.Errorf("BookCount = %d, want 66", r.BookCount)
	}
	if math.Abs(r.AvgPerBook-22.0/3.0) > 1e-9 {
		t.Errorf("AvgPerBook = %f, want %f", r.AvgPerBook, 22.0/3.0)
	}
	if r.OldTestamentTotal != 12 || r.NewTestamentTotal != 10 {
		t.Errorf("OT/NT = %d/%d, want 12/10", r.OldTestamentTotal, r.NewTestamentTotal)
	}
	if !r.RatioAvailable() || math.Abs(*r.Ratio-1.2) > 1e-9 {
		t.Errorf("Ratio = %v, want 1.2", r.Ratio)
	}
	if r.NoData {
		t.Error("NoData should be false")
	}

	want := []BookCount{
		{Book: "Psalms", Order: 19, Count: 12},
		{Book: "John", Order: 43, Count: 7},
		{Book: "Romans", Order: 45, Count: 3},
	}
	if !reflect.DeepEqual(r.TopBooks, want) {
		t.Errorf("TopBooks = %+v, want %+v", r.TopBooks, want)
	}
}

func TestTallyCompleteness(t *testing.T) {
	books := canon.Names()
	selections := []Selection{
		nil,
		{},
		{"agape": true},
		{"missing": true},
		{"agape": false, "hesed": true},
	}

	for _, sel := range selections {
		tally, err := ComputeBookTally(exampleTable(), sel, books)
		if err != nil {
			t.Fatalf("ComputeBookTally(%v): %v", sel, err)
		}
		if len(tally) != 66 {
			t.Fatalf("len(tally) = %d, want 66", len(tally))
		}
		for i, bc := range tally {
			if bc.Book != books[i] {
				t.Errorf("tally[%d] = %s, want %s", i, bc.Book, books[i])
			}
		}
	}
}

func TestTallyAdditivity(t *testing.T) {
	books := canon.Names()
	table := OccurrenceTable{
		"agape":  {"John": 7, "Romans": 3, "1 John": 18},
		"phileo": {"John": 13, "Matthew": 5},
		"hesed":  {"Psalms": 12, "Ruth": 3},
		"ahavah": {"Song of Songs": 11, "Psalms": 1},
	}

	a := Selection{"agape": true, "hesed": true}
	b := Selection{"phileo": true, "ahavah": true}
	union := Selection{"agape": true, "hesed": true, "phileo": true, "ahavah": true}

	ta, err := ComputeBookTally(table, a, books)
	if err != nil {
		t.Fatal(err)
	}
	tb, err := ComputeBookTally(table, b, books)
	if err != nil {
		t.Fatal(err)
	}
	tu, err := ComputeBookTally(table, union, books)
	if err != nil {
		t.Fatal(err)
	}

	for i := range tu {
		if tu[i].Count != ta[i].Count+tb[i].Count {
			t.Errorf("%s: union %d != %d + %d", tu[i].Book, tu[i].Count, ta[i].Count, tb[i].Count)
		}
	}
}

func TestZeroSelectionIdentity(t *testing.T) {
	books := canon.Names()
	for name, sel := range map[string]Selection{
		"empty":      {},
		"absent":     {"eros": true},
		"deselected": {"agape": false, "hesed": false},
	} {
		t.Run(name, func(t *testing.T) {
			tally, err := ComputeBookTally(exampleTable(), sel, books)
			if err != nil {
				t.Fatalf("ComputeBookTally: %v", err)
			}
			if tally.Total() != 0 {
				t.Errorf("tally total = %d, want 0", tally.Total())
			}

			r := ComputeAggregateReport(tally, books, canon.OldTestament(), 5)
			if r.GrandTotal != 0 || r.BooksWithWord != 0 || r.AvgPerBook != 0 {
				t.Errorf("report = %+v, want zeros", r)
			}
			if r.TopBooks == nil || len(r.TopBooks) != 0 {
				t.Errorf("TopBooks = %v, want empty non-nil slice", r.TopBooks)
			}
			if !r.NoData {
				t.Error("NoData should be true")
			}
			if r.RatioAvailable() {
				t.Error("ratio should be unavailable")
			}
		})
	}
}

func TestTestamentSplitConsistency(t *testing.T) {
	books := canon.Names()
	table := OccurrenceTable{
		"logos": {"John": 40, "Acts": 65, "Genesis": 0},
		"dabar": {"Genesis": 20, "Jeremiah": 200, "Psalms": 70},
		"stray": {"Tobit": 9, "Revelation": 2},
	}

	for _, sel := range []Selection{
		{"logos": true},
		{"dabar": true},
		{"logos": true, "dabar": true, "stray": true},
	} {
		tally, err := ComputeBookTally(table, sel, books)
		if err != nil {
			t.Fatal(err)
		}
		r := ComputeAggregateReport(tally, books, canon.OldTestament(), 5)
		if r.OldTestamentTotal+r.NewTestamentTotal != r.GrandTotal {
			t.Errorf("OT %d + NT %d != total %d", r.OldTestamentTotal, r.NewTestamentTotal, r.GrandTotal)
		}
	}
}

func TestOnlyOneTestamentHasNoRatio(t *testing.T) {
	books := canon.Names()
	tally, err := ComputeBookTally(exampleTable(), Selection{"agape": true}, books)
	if err != nil {
		t.Fatal(err)
	}
	r := ComputeAggregateReport(tally, books, canon.OldTestament(), 5)
	if r.RatioAvailable() {
		t.Errorf("Ratio = %v, want unavailable", *r.Ratio)
	}
	if r.OldTestamentShare != 0 || r.NewTestamentShare != 100 {
		t.Errorf("shares = %f/%f, want 0/100", r.OldTestamentShare, r.NewTestamentShare)
	}
}

func TestIdempotence(t *testing.T) {
	books := canon.Names()
	sel := Selection{"agape": true, "hesed": true}

	t1, err := ComputeBookTally(exampleTable(), sel, books)
	if err != nil {
		t.Fatal(err)
	}
	t2, err := ComputeBookTally(exampleTable(), sel, books)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(t1, t2) {
		t.Error("tallies differ between identical calls")
	}

	r1 := ComputeAggregateReport(t1, books, canon.OldTestament(), 5)
	r2 := ComputeAggregateReport(t2, books, canon.OldTestament(), 5)
	if !reflect.DeepEqual(r1, r2) {
		t.Error("reports differ between identical calls")
	}
}

func TestNegativeCountRejected(t *testing.T) {
	table := OccurrenceTable{
		"agape": {"John": 7, "Romans": -3, "Acts": -1},
	}

	_, err := ComputeBookTally(table, Selection{"agape": true}, canon.Names())
	var integrity *DataIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("err = %v, want *DataIntegrityError", err)
	}
	if integrity.Word != "agape" || integrity.Book != "Acts" || integrity.Count != -1 {
		t.Errorf("integrity error = %+v, want agape/Acts/-1", integrity)
	}
}

func TestNegativeCountInUnknownBookIgnored(t *testing.T) {
	table := OccurrenceTable{
		"agape": {"John": 7, "Gospel of Thomas": -1},
	}

	tally, err := ComputeBookTally(table, Selection{"agape": true}, canon.Names())
	if err != nil {
		t.Fatalf("ComputeBookTally() error = %v, want nil", err)
	}
	if tally.Total() != 7 || tally.Count("John") != 7 {
		t.Errorf("tally total = %d, John = %d; want 7, 7", tally.Total(), tally.Count("John"))
	}
	if err := table.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestNegativeCountInUnselectedWordIgnored(t *testing.T) {
	table := OccurrenceTable{
		"agape": {"John": 7},
		"bad":   {"John": -5},
	}
	tally, err := ComputeBookTally(table, Selection{"agape": true, "bad": false}, canon.Names())
	if err != nil {
		t.Fatalf("ComputeBookTally: %v", err)
	}
	if tally.Count("John") != 7 {
		t.Errorf("John = %d, want 7", tally.Count("John"))
	}
}

func TestUnknownBooksIgnored(t *testing.T) {
	table := OccurrenceTable{
		"agape": {"John": 2, "Sirach": 40, "john": 9},
	}
	tally, err := ComputeBookTally(table, Selection{"agape": true}, canon.Names())
	if err != nil {
		t.Fatalf("ComputeBookTally: %v", err)
	}
	if tally.Total() != 2 {
		t.Errorf("total = %d, want 2", tally.Total())
	}
}

func TestTieBreakUsesCanonicalOrder(t *testing.T) {
	books := canon.Names()
	table := OccurrenceTable{
		"pistis": {"Revelation": 4, "Hebrews": 4, "Romans": 4, "Genesis": 4, "Acts": 9, "Jude": 1},
	}
	tally, err := ComputeBookTally(table, Selection{"pistis": true}, books)
	if err != nil {
		t.Fatal(err)
	}

	r := ComputeAggregateReport(tally, books, canon.OldTestament(), 5)
	var got []string
	for _, bc := range r.TopBooks {
		got = append(got, bc.Book)
	}
	want := []string{"Acts", "Genesis", "Romans", "Hebrews", "Revelation"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopBooks = %v, want %v", got, want)
	}
}

func TestTopNLimit(t *testing.T) {
	books := canon.Names()
	table := OccurrenceTable{"w": {}}
	for i, b := range books[:10] {
		table["w"][b] = i + 1
	}
	tally, err := ComputeBookTally(table, Selection{"w": true}, books)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		topN int
		want int
	}{
		{0, DefaultTopN},
		{-1, DefaultTopN},
		{3, 3},
		{20, 10},
	}
	for _, tt := range tests {
		r := ComputeAggregateReport(tally, books, canon.OldTestament(), tt.topN)
		if len(r.TopBooks) != tt.want {
			t.Errorf("topN=%d: len(TopBooks) = %d, want %d", tt.topN, len(r.TopBooks), tt.want)
		}
	}

	if got := len(RankBooks(tally, books)); got != 10 {
		t.Errorf("len(RankBooks) = %d, want 10", got)
	}
}

func TestNonZeroSeries(t *testing.T) {
	tally, err := ComputeBookTally(exampleTable(), Selection{"agape": true, "hesed": true}, canon.Names())
	if err != nil {
		t.Fatal(err)
	}
	series := tally.NonZero()
	var got []string
	for _, bc := range series {
		got = append(got, bc.Book)
	}
	want := []string{"Psalms", "John", "Romans"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NonZero = %v, want %v", got, want)
	}
}

func TestTableValidate(t *testing.T) {
	if err := exampleTable().Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	bad := OccurrenceTable{
		"zeta":  {"John": -1},
		"alpha": {"Mark": 1, "Luke": -2},
	}
	err := bad.Validate()
	var integrity *DataIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("Validate() = %v, want *DataIntegrityError", err)
	}
	if integrity.Word != "alpha" || integrity.Book != "Luke" {
		t.Errorf("first violation = %s/%s, want alpha/Luke", integrity.Word, integrity.Book)
	}
}
