package wordstudy

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Library holds the current reference data snapshot. Readers always see a
// complete dataset; Reload swaps in a new one without touching the old.
type Library struct {
	mu      sync.Mutex // serializes reloads
	dir     string
	current atomic.Pointer[Dataset]
}

// NewLibrary loads dir and returns a library serving it. A load error leaves
// the library with an empty dataset so callers can still report "no data".
func NewLibrary(dir string) (*Library, error) {
	l := &Library{dir: dir}
	l.current.Store(NewDataset(nil, nil, nil))
	if err := l.Reload(dir); err != nil {
		return l, err
	}
	return l, nil
}

// Dataset returns the current snapshot.
func (l *Library) Dataset() *Dataset {
	return l.current.Load()
}

// Dir returns the directory of the current snapshot.
func (l *Library) Dir() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dir
}

// Reload reads dir and replaces the current snapshot on success.
func (l *Library) Reload(dir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := LoadDataset(dir)
	if err != nil {
		return fmt.Errorf("loading word data from %s: %w", dir, err)
	}

	if missing := d.Missing(); len(missing) > 0 {
		log.Printf("Word data in %s is missing %v", dir, missing)
	}
	if err := d.Validate(); err != nil {
		log.Printf("WARNING: word data in %s failed validation: %v", dir, err)
	}

	l.dir = dir
	l.current.Store(d)
	log.Printf("Loaded word data from %s (%d headwords)", dir, len(d.Headwords()))
	return nil
}
