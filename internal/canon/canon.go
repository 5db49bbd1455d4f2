// Package canon holds the fixed 66-book Protestant canon used to order and
// partition word-occurrence data.
package canon

// Testament identifies which half of the canon a book belongs to.
type Testament string

const (
	TestamentOld Testament = "old"
	TestamentNew Testament = "new"
)

// Book holds metadata for a single canonical book.
type Book struct {
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	Testament Testament `json:"testament"`
}

// oldTestamentCount is the number of leading books in canonical order that
// belong to the Old Testament.
const oldTestamentCount = 39

// names lists all 66 books in canonical order.
var names = []string{
	// Old Testament
	"Genesis", "Exodus", "Leviticus", "Numbers", "Deuteronomy",
	"Joshua", "Judges", "Ruth", "1 Samuel", "2 Samuel", "1 Kings", "2 Kings",
	"1 Chronicles", "2 Chronicles", "Ezra", "Nehemiah", "Esther",
	"Job", "Psalms", "Proverbs", "Ecclesiastes", "Song of Songs",
	"Isaiah", "Jeremiah", "Lamentations", "Ezekiel", "Daniel",
	"Hosea", "Joel", "Amos", "Obadiah", "Jonah", "Micah", "Nahum",
	"Habakkuk", "Zephaniah", "Haggai", "Zechariah", "Malachi",
	// New Testament
	"Matthew", "Mark", "Luke", "John", "Acts",
	"Romans", "1 Corinthians", "2 Corinthians", "Galatians", "Ephesians",
	"Philippians", "Colossians", "1 Thessalonians", "2 Thessalonians",
	"1 Timothy", "2 Timothy", "Titus", "Philemon",
	"Hebrews", "James", "1 Peter", "2 Peter", "1 John", "2 John", "3 John",
	"Jude", "Revelation",
}

var (
	books    = buildBooks()
	byName   = buildIndex()
	otByName = buildOldTestament()
)

func buildBooks() []Book {
	out := make([]Book, len(names))
	for i, name := range names {
		t := TestamentNew
		if i < oldTestamentCount {
			t = TestamentOld
		}
		out[i] = Book{Name: name, Order: i + 1, Testament: t}
	}
	return out
}

func buildIndex() map[string]int {
	m := make(map[string]int, len(names))
	for i, name := range names {
		m[name] = i
	}
	return m
}

func buildOldTestament() map[string]bool {
	m := make(map[string]bool, oldTestamentCount)
	for _, name := range names[:oldTestamentCount] {
		m[name] = true
	}
	return m
}

// Books returns a copy of the canonical book list.
func Books() []Book {
	out := make([]Book, len(books))
	copy(out, books)
	return out
}

// Names returns the canonical book names in order.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// OldTestament returns the set of Old Testament book names.
// The returned map is a fresh copy and may be modified by the caller.
func OldTestament() map[string]bool {
	m := make(map[string]bool, len(otByName))
	for k := range otByName {
		m[k] = true
	}
	return m
}

// Count is the number of books in the canon.
func Count() int {
	return len(names)
}

// IsCanonical reports whether name is one of the 66 canonical book names.
func IsCanonical(name string) bool {
	_, ok := byName[name]
	return ok
}

// Index returns the zero-based canonical position of name, or -1.
func Index(name string) int {
	if i, ok := byName[name]; ok {
		return i
	}
	return -1
}

// TestamentOf returns the testament of a canonical book.
func TestamentOf(name string) (Testament, bool) {
	i, ok := byName[name]
	if !ok {
		return "", false
	}
	return books[i].Testament, true
}
