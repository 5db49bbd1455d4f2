package research

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mrwolf/bible-research/internal/models"
)

// Section kinds assigned from the section heading.
const (
	KindVerses           = "verses"
	KindContext          = "context"
	KindConnections      = "connections"
	KindReflection       = "reflection"
	KindApplication      = "application"
	KindAdditional       = "additional"
	KindOriginalLanguage = "original_language"
	KindTheological      = "theological"
	KindPrayer           = "prayer"
	KindGeneral          = "general"
)

const responseSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["sections"],
  "properties": {
    "title": {"type": "string"},
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["heading", "content"],
        "properties": {
          "heading": {"type": "string", "minLength": 1},
          "content": {"type": "string"}
        }
      }
    }
  }
}`

var responseSchema = jsonschema.MustCompileString("research-response.json", responseSchemaJSON)

// Parsed is a model answer split into sections.
type Parsed struct {
	Title    string
	Sections []models.Section
	Format   Format // format actually parsed; JSON answers may fall back to text
}

// ParseResponse splits a model answer into typed sections. A JSON answer
// that cannot be recovered or fails validation is parsed as text.
func ParseResponse(text string, format Format) Parsed {
	if format == FormatJSON {
		p, err := parseJSON(text)
		if err == nil {
			return p
		}
		log.Printf("Falling back to text parsing: %v", err)
	}
	return Parsed{Sections: parseText(text), Format: FormatText}
}

type jsonResponse struct {
	Title    string `json:"title"`
	Sections []struct {
		Heading string `json:"heading"`
		Content string `json:"content"`
	} `json:"sections"`
}

func parseJSON(text string) (Parsed, error) {
	doc, raw, err := decodeJSON(text)
	if err != nil {
		return Parsed{}, err
	}
	if err := responseSchema.Validate(doc); err != nil {
		return Parsed{}, fmt.Errorf("response does not match schema: %w", err)
	}

	var resp jsonResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Parsed{}, fmt.Errorf("decoding response: %w", err)
	}

	sections := make([]models.Section, 0, len(resp.Sections))
	for _, s := range resp.Sections {
		heading := cleanHeading(s.Heading)
		sections = append(sections, models.Section{
			Heading: heading,
			Kind:    ClassifyHeading(heading),
			Content: strings.TrimSpace(s.Content),
		})
	}
	return Parsed{Title: strings.TrimSpace(resp.Title), Sections: sections, Format: FormatJSON}, nil
}

// decodeJSON tries the answer as-is, without code fences, then the outermost
// object embedded in surrounding prose.
func decodeJSON(text string) (any, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", fmt.Errorf("empty response")
	}

	candidates := []string{text}
	if stripped := stripCodeFences(text); stripped != "" {
		candidates = append(candidates, stripped)
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	for _, c := range candidates {
		var doc any
		if err := json.Unmarshal([]byte(c), &doc); err == nil {
			return doc, c, nil
		}
	}
	return nil, "", fmt.Errorf("no JSON object in response")
}

func stripCodeFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// parseText starts a new section at every ALL-CAPS line containing a colon.
// Text before the first header becomes an untitled section.
func parseText(text string) []models.Section {
	sections := []models.Section{}
	var heading string
	var body []string

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if heading == "" && content == "" {
			return
		}
		sections = append(sections, models.Section{
			Heading: heading,
			Kind:    ClassifyHeading(heading),
			Content: content,
		})
	}

	for _, line := range strings.Split(text, "\n") {
		if isHeaderLine(line) {
			flush()
			heading = cleanHeading(line)
			body = nil
			continue
		}
		body = append(body, line)
	}
	flush()

	return sections
}

func isHeaderLine(line string) bool {
	line = strings.TrimSpace(line)
	return line != "" && strings.Contains(line, ":") && isUpper(line)
}

// isUpper reports whether s has at least one cased letter and no lowercase ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

func cleanHeading(h string) string {
	h = strings.ReplaceAll(h, ":", "")
	return strings.Trim(h, " \t#*_")
}

// ClassifyHeading maps a section heading to a section kind.
func ClassifyHeading(heading string) string {
	h := strings.ToLower(heading)
	switch {
	case strings.Contains(h, "key bible verses"), strings.Contains(h, "verse in context"), strings.Contains(h, "main verse"):
		return KindVerses
	case strings.Contains(h, "context"), strings.Contains(h, "historical"):
		return KindContext
	case strings.Contains(h, "connections"), strings.Contains(h, "cross-references"):
		return KindConnections
	case strings.Contains(h, "reflection"), strings.Contains(h, "questions"):
		return KindReflection
	case strings.Contains(h, "application"):
		return KindApplication
	case strings.Contains(h, "additional"):
		return KindAdditional
	case strings.Contains(h, "greek"), strings.Contains(h, "hebrew"):
		return KindOriginalLanguage
	case strings.Contains(h, "theological"):
		return KindTheological
	case strings.Contains(h, "prayer"):
		return KindPrayer
	default:
		return KindGeneral
	}
}
