// Package archive keeps a file copy of research results: a JSONL log plus one
// markdown document per result.
package archive

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrwolf/bible-research/internal/models"
)

const (
	logFile     = "research.jsonl"
	logDir      = "log"
	researchDir = "research"
)

// Archive writes research results under a base directory
type Archive struct {
	basePath string
	logLock  sync.Mutex // serializes JSONL appends
}

// New creates an archive rooted at basePath
func New(basePath string) *Archive {
	return &Archive{basePath: basePath}
}

// BasePath returns the archive root
func (a *Archive) BasePath() string {
	return a.basePath
}

// LogEntry is one line of the research log
type LogEntry struct {
	ID           string `json:"id"`
	TS           string `json:"ts"`
	SessionID    string `json:"session"`
	ParentID     string `json:"parent,omitempty"`
	Kind         string `json:"kind"`
	Input        string `json:"input"`
	Depth        string `json:"depth"`
	Format       string `json:"format"`
	Sections     int    `json:"sections"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	File         string `json:"file"`
}

// LogResearch exports r as markdown and appends a summary line to the log
func (a *Archive) LogResearch(r *models.Research) error {
	relPath, err := a.ExportResearch(r)
	if err != nil {
		return err
	}

	entry := LogEntry{
		ID:           r.ID,
		TS:           r.CreatedAt.UTC().Format(time.RFC3339),
		SessionID:    r.SessionID,
		ParentID:     r.ParentID,
		Kind:         r.Kind,
		Input:        r.Input,
		Depth:        r.Depth,
		Format:       r.Format,
		Sections:     len(r.Sections),
		Model:        r.Model,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		File:         relPath,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling research log: %w", err)
	}

	a.logLock.Lock()
	defer a.logLock.Unlock()
	if err := AppendLine(filepath.Join(a.basePath, logDir, logFile), line); err != nil {
		return fmt.Errorf("appending research log: %w", err)
	}
	return nil
}

type frontmatter struct {
	ID               string `yaml:"id"`
	Created          string `yaml:"created"`
	Session          string `yaml:"session"`
	Parent           string `yaml:"parent,omitempty"`
	Kind             string `yaml:"kind"`
	Input            string `yaml:"input"`
	Depth            string `yaml:"depth"`
	OriginalLanguage bool   `yaml:"original_language"`
	Model            string `yaml:"model"`
	Tokens           struct {
		Input  int64 `yaml:"input"`
		Output int64 `yaml:"output"`
	} `yaml:"tokens"`
}

// ExportResearch writes r to research/YYYY-MM-DD-<kind>-<slug>-<id>.md and
// returns the path relative to the archive root
func (a *Archive) ExportResearch(r *models.Research) (string, error) {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	filename := fmt.Sprintf("%s-%s-%s-%s.md", r.CreatedAt.UTC().Format("2006-01-02"), slugify(r.Kind), slugify(r.Input), id)
	relPath := filepath.Join(researchDir, filename)

	content, err := buildDocument(r)
	if err != nil {
		return "", err
	}
	if err := WriteFileAtomic(filepath.Join(a.basePath, relPath), content); err != nil {
		return "", fmt.Errorf("writing research document: %w", err)
	}
	return relPath, nil
}

func buildDocument(r *models.Research) ([]byte, error) {
	fm := frontmatter{
		ID:               r.ID,
		Created:          r.CreatedAt.UTC().Format(time.RFC3339),
		Session:          r.SessionID,
		Parent:           r.ParentID,
		Kind:             r.Kind,
		Input:            r.Input,
		Depth:            r.Depth,
		OriginalLanguage: r.OriginalLanguage,
		Model:            r.Model,
	}
	fm.Tokens.Input = r.InputTokens
	fm.Tokens.Output = r.OutputTokens

	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(header)
	sb.WriteString("---\n\n")

	title := r.Title
	if title == "" {
		title = r.Input
	}
	sb.WriteString(fmt.Sprintf("# %s\n", title))

	for _, sec := range r.Sections {
		sb.WriteString("\n")
		if sec.Heading != "" {
			sb.WriteString(fmt.Sprintf("## %s\n\n", sec.Heading))
		}
		sb.WriteString(sec.Content)
		sb.WriteString("\n")
	}

	return []byte(sb.String()), nil
}

var (
	nonSlug     = regexp.MustCompile(`[^a-z0-9-]`)
	multiHyphen = regexp.MustCompile(`-+`)
)

// slugify converts text to a filename-safe slug
func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ":", "-")
	s = nonSlug.ReplaceAllString(s, "")
	s = multiHyphen.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > 40 {
		s = strings.TrimRight(s[:40], "-")
	}
	if s == "" {
		s = "research"
	}
	return s
}
