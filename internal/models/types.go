package models

import (
	"time"

	"github.com/mrwolf/bible-research/internal/wordstudy"
)

// ResearchRequest is submitted to start a new study
type ResearchRequest struct {
	Kind             string `json:"kind"`  // "topical", "verse", "study_guide", "cross_reference"
	Input            string `json:"input"` // topic, verse or passage
	Depth            string `json:"depth,omitempty"`
	OriginalLanguage bool   `json:"original_language,omitempty"`
	Format           string `json:"format,omitempty"` // "text" or "json"
}

// RefineRequest asks a follow-up question about an earlier result
type RefineRequest struct {
	Question string `json:"question"`
}

// EnhanceRequest asks the model to add verse references to a result's questions
type EnhanceRequest struct {
	Context string `json:"context,omitempty"`
}

// Section is one typed panel of a research result
type Section struct {
	Heading string `json:"heading"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// Research is a stored research result
type Research struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	ParentID         string    `json:"parent_id,omitempty"`
	Kind             string    `json:"kind"`
	Input            string    `json:"input"`
	Depth            string    `json:"depth"`
	OriginalLanguage bool      `json:"original_language"`
	Format           string    `json:"format"`
	Prompt           string    `json:"-"`
	Raw              string    `json:"raw"`
	Title            string    `json:"title,omitempty"`
	Sections         []Section `json:"sections"`
	Model            string    `json:"model"`
	InputTokens      int64     `json:"input_tokens"`
	OutputTokens     int64     `json:"output_tokens"`
	CreatedAt        time.Time `json:"created_at"`
}

// Usage is the running request and token tally for a session
type Usage struct {
	SessionID    string    `json:"session_id"`
	Requests     int64     `json:"requests"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResearchResponse is returned after a research, refine or enhance call
type ResearchResponse struct {
	Research *Research `json:"research"`
	Usage    Usage     `json:"usage"`
}

// HistoryResponse is returned by the session research endpoint
type HistoryResponse struct {
	Research []Research `json:"research"`
}

// KindInfo describes an available research kind
type KindInfo struct {
	Kind       string   `json:"kind"`
	Title      string   `json:"title"`
	InputLabel string   `json:"input_label"`
	Sections   []string `json:"sections"`
}

// KindsResponse lists research kinds and the supported depths and formats
type KindsResponse struct {
	Kinds   []KindInfo `json:"kinds"`
	Depths  []string   `json:"depths"`
	Formats []string   `json:"formats"`
}

// DistributionRequest selects original-language words for a headword.
// A nil Selection selects every variant.
type DistributionRequest struct {
	Selection map[string]bool `json:"selection"`
	Top       int             `json:"top,omitempty"`
}

// WordsResponse lists the headwords with occurrence data
type WordsResponse struct {
	Available bool     `json:"available"`
	Missing   []string `json:"missing,omitempty"`
	Headwords []string `json:"headwords"`
}

// VariantsResponse lists the original-language words offered for a headword
type VariantsResponse struct {
	Headword string              `json:"headword"`
	Variants []wordstudy.Variant `json:"variants"`
}

// DistributionResponse is the chart data, breakdown and summary for a selection
type DistributionResponse struct {
	*wordstudy.Study
	WordsAnalyzed int `json:"words_analyzed"`
}

// WordStudiesResponse is returned by the session word study endpoint
type WordStudiesResponse struct {
	WordStudies []WordStudyLog `json:"word_studies"`
}

// WordStudyLog is a recorded distribution request
type WordStudyLog struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Headword   string    `json:"headword"`
	Selected   []string  `json:"selected"`
	GrandTotal int       `json:"grand_total"`
	CreatedAt  time.Time `json:"created_at"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status  string `json:"status"`
	LLM     string `json:"llm"`
	Model   string `json:"model"`
	Data    string `json:"data"`
	Version string `json:"version"`
}

// Format constants
const (
	FormatText = "text"
	FormatJSON = "json"
)
