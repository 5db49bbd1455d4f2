// Package research builds study prompts, parses model answers into typed
// sections and runs research requests against a Generator.
package research

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// ErrInvalidRequest is returned for unknown kinds, depths, formats or empty input.
var ErrInvalidRequest = errors.New("invalid research request")

// Kind identifies a research template.
type Kind string

const (
	Topical        Kind = "topical"
	Verse          Kind = "verse"
	StudyGuide     Kind = "study_guide"
	CrossReference Kind = "cross_reference"
)

// Depth controls how technical the answer should be.
type Depth string

const (
	Basic        Depth = "basic"
	Intermediate Depth = "intermediate"
	Deep         Depth = "deep"
)

// Format is the answer format requested from the model.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SystemPrompt frames every request.
const SystemPrompt = `You are a biblical research assistant working within a conservative, doctrinally sound theological framework.

GUIDELINES:
- Keep answers grounded in Scripture and well-established theological resources
- Facilitate study rather than hand over complete conclusions
- Include relevant cross-references and connections
- Suggest sources for further study where possible
- Ask thought-provoking questions that encourage personal study
- Use the English Standard Version (ESV) as the primary translation

AVOID:
- Single pastor perspectives or influencer theology
- Divisive denominational issues and political commentary
- Speculative or non-biblical content`

// Section is one requested part of a research answer.
type Section struct {
	Name  string
	Guide string
}

// Template describes one research kind.
type Template struct {
	Kind       Kind
	Title      string
	InputLabel string
	Lead       string
	Intro      string
	Sections   []Section
	Closing    string
}

// SectionNames returns the headers the template asks for.
func (t Template) SectionNames() []string {
	names := make([]string, len(t.Sections))
	for i, s := range t.Sections {
		names[i] = s.Name
	}
	return names
}

var templates = []Template{
	{
		Kind:       Topical,
		Title:      "Topical Study",
		InputLabel: "Topic",
		Lead:       "Conduct a topical Bible study on",
		Intro:      "Please provide:",
		Sections: []Section{
			{"KEY BIBLE VERSES", "List relevant verses with full text (ESV)"},
			{"CONTEXT", "Brief context for each key verse"},
			{"CONNECTIONS", "How these verses connect to each other thematically"},
			{"REFLECTION QUESTIONS", `Thoughtful questions with specific verse references for further study (format: "Question? (See [verse reference] for insights)")`},
			{"PRACTICAL APPLICATION", "Concrete application points with supporting verses"},
			{"ADDITIONAL VERSES FOR STUDY", "Suggested verses for deeper exploration"},
		},
		Closing: "For reflection questions, always include specific Bible verse references that help answer each question.",
	},
	{
		Kind:       Verse,
		Title:      "Verse Analysis",
		InputLabel: "Verse or passage",
		Lead:       "Provide a detailed analysis of",
		Intro:      "Please include:",
		Sections: []Section{
			{"VERSE IN CONTEXT", "The verse(s) with surrounding context (ESV)"},
			{"HISTORICAL BACKGROUND", "Historical and cultural background"},
			{"THEOLOGICAL THEMES", "Key theological themes and doctrines"},
			{"CROSS-REFERENCES", "Related passages with explanations"},
			{"REFLECTION QUESTIONS", `Personal study questions with specific verse references (format: "Question? (See [verse reference] for insights)")`},
			{"APPLICATION PRINCIPLES", "How to apply this passage today"},
		},
		Closing: "Help the reader understand both the immediate context and broader biblical connections. Include specific verse references with all reflection questions.",
	},
	{
		Kind:       StudyGuide,
		Title:      "Study Guide Builder",
		InputLabel: "Passage or topic",
		Lead:       "Create a study guide for",
		Intro:      "Structure the guide with:",
		Sections: []Section{
			{"OPENING QUESTIONS", "Questions to engage with the text initially"},
			{"OBSERVATION QUESTIONS", "What does the text say? (Include verse references for answers)"},
			{"INTERPRETATION QUESTIONS", "What does it mean? (Include verse references for insights)"},
			{"APPLICATION QUESTIONS", "How should I respond? (Include verse references for guidance)"},
			{"CROSS-REFERENCE PASSAGES", "Related passages to explore with explanations"},
			{"DISCUSSION QUESTIONS", "Questions for group study with supporting verses"},
			{"PRAYER POINTS", "Prayer topics based on the passage"},
		},
		Closing: `Make it suitable for both individual and group Bible study. Format questions as: "Question? (See [verse reference] for insights)"`,
	},
	{
		Kind:       CrossReference,
		Title:      "Cross-Reference Explorer",
		InputLabel: "Verse",
		Lead:       "Explore cross-references for",
		Intro:      "Please provide:",
		Sections: []Section{
			{"MAIN VERSE", "The verse in context (ESV)"},
			{"KEY CROSS-REFERENCES", "5-7 key cross-references with brief explanations"},
			{"THEMATIC CONNECTIONS", "How these passages relate thematically"},
			{"REFLECTION QUESTIONS", "Questions about connections with verse references for deeper study"},
			{"SUGGESTED STUDY PATH", "Recommended order for studying the references"},
			{"THEOLOGICAL THEMES", "Key themes that emerge across the passages"},
		},
		Closing: "Help the reader see the interconnected nature of Scripture. Include verse references with all reflection questions.",
	},
}

var depthInstructions = map[Depth]string{
	Basic:        "Provide clear, accessible insights suitable for general Bible study.",
	Intermediate: "Include moderate theological depth with some technical terms explained.",
	Deep:         "Provide thorough theological analysis with detailed cross-references and doctrinal implications.",
}

const originalLanguageAddon = `IMPORTANT: Include a dedicated "GREEK/HEBREW INSIGHTS:" section with:
- Key original language words with transliterations (e.g., Greek: agape, Hebrew: hesed)
- Meaning and nuance of original words that may be lost in translation
- How these words are used in other significant passages
- Theological significance of the original language choices
- Suggestions for further word study using Strong's numbers`

const jsonInstruction = `Respond with a single JSON object and nothing else, shaped as:
{"title": "short title", "sections": [{"heading": "SECTION NAME", "content": "section text"}]}
Use the section names above as headings.`

const textInstruction = "Format your response with clear section headers using ALL CAPS for section names, each followed by a colon."

// Templates returns the research kinds in display order.
func Templates() []Template {
	return append([]Template(nil), templates...)
}

// Lookup returns the template for kind.
func Lookup(kind Kind) (Template, bool) {
	for _, t := range templates {
		if t.Kind == kind {
			return t, true
		}
	}
	return Template{}, false
}

// Depths returns the supported depth levels.
func Depths() []Depth {
	return []Depth{Basic, Intermediate, Deep}
}

// Formats returns the supported answer formats.
func Formats() []Format {
	return []Format{FormatText, FormatJSON}
}

// Request is a normalized research request.
type Request struct {
	Kind             Kind
	Input            string
	Depth            Depth
	OriginalLanguage bool
	Format           Format
}

// Normalize fills defaults and validates the request.
func (r Request) Normalize() (Request, error) {
	r.Input = strings.TrimSpace(r.Input)
	if r.Input == "" {
		return r, fmt.Errorf("%w: input is required", ErrInvalidRequest)
	}
	if _, ok := Lookup(r.Kind); !ok {
		return r, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
	if r.Depth == "" {
		r.Depth = Basic
	}
	if _, ok := depthInstructions[r.Depth]; !ok {
		return r, fmt.Errorf("%w: unknown depth %q", ErrInvalidRequest, r.Depth)
	}
	if r.Format == "" {
		r.Format = FormatText
	}
	if r.Format != FormatText && r.Format != FormatJSON {
		return r, fmt.Errorf("%w: unknown format %q", ErrInvalidRequest, r.Format)
	}
	return r, nil
}

var promptTmpl = template.Must(template.New("research").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`{{.T.Lead}}: {{.Input}}

{{.T.Intro}}
{{range $i, $s := .T.Sections}}{{inc $i}}. {{$s.Name}}: {{$s.Guide}}
{{end}}{{if .OriginalLanguage}}
{{.Addon}}
{{end}}
{{.DepthInstruction}}

{{.T.Closing}}
{{.FormatInstruction}}
`))

// BuildPrompt renders the prompt for a research request.
func BuildPrompt(req Request) (string, error) {
	req, err := req.Normalize()
	if err != nil {
		return "", err
	}
	t, _ := Lookup(req.Kind)

	formatInstruction := textInstruction
	if req.Format == FormatJSON {
		formatInstruction = jsonInstruction
	}

	var b strings.Builder
	err = promptTmpl.Execute(&b, struct {
		T                 Template
		Input             string
		OriginalLanguage  bool
		Addon             string
		DepthInstruction  string
		FormatInstruction string
	}{
		T:                 t,
		Input:             req.Input,
		OriginalLanguage:  req.OriginalLanguage,
		Addon:             originalLanguageAddon,
		DepthInstruction:  depthInstructions[req.Depth],
		FormatInstruction: formatInstruction,
	})
	if err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", req.Kind, err)
	}
	return b.String(), nil
}

// refineContextLimit is how much of the earlier answer a follow-up carries.
const refineContextLimit = 500

// RefinePrompt asks the model to expand on one aspect of an earlier answer.
func RefinePrompt(previous, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", ErrInvalidRequest)
	}
	return fmt.Sprintf(`Based on the previous research, please expand on this specific aspect:
%s

Previous research context:
%s...

%s
`, question, truncateRunes(previous, refineContextLimit), textInstruction), nil
}

// EnhancePrompt asks the model to add verse references to questions that lack them.
func EnhancePrompt(content, researchContext string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: nothing to enhance", ErrInvalidRequest)
	}
	return fmt.Sprintf(`Please enhance the following study content by adding specific, relevant Bible verse references to any questions that don't already have them.

INSTRUCTIONS:
- Add verse references in this format: "Question? (See [verse references] for insights)"
- Only suggest verses that directly help answer the question
- Don't change questions that already have verse references
- Prefer well-known, clear passages on the question's topic
- Keep the existing ALL CAPS section headers

RESEARCH CONTEXT: %s

CONTENT TO ENHANCE:
%s
`, researchContext, content), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
