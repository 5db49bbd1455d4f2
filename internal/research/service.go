package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mrwolf/bible-research/internal/llm"
	"github.com/mrwolf/bible-research/internal/models"
)

// ErrGeneration wraps failures from the model client.
var ErrGeneration = errors.New("generating")

// Store persists research results and per-session usage.
type Store interface {
	SaveResearch(r *models.Research) error
	GetResearch(id string) (*models.Research, error)
	ListResearch(sessionID string, limit int) ([]models.Research, error)
	RecordUsage(sessionID string, inputTokens, outputTokens int64) (models.Usage, error)
}

// Archive receives a copy of every stored result.
type Archive interface {
	LogResearch(r *models.Research) error
}

// Service runs research requests end to end.
type Service struct {
	mu      sync.RWMutex
	gen     llm.Generator
	store   Store
	archive Archive
	clock   clockwork.Clock
}

// NewService creates a research service. archive may be nil.
func NewService(gen llm.Generator, store Store, archive Archive, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{gen: gen, store: store, archive: archive, clock: clock}
}

// SetGenerator swaps the model client, e.g. after a config reload.
func (s *Service) SetGenerator(gen llm.Generator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen = gen
}

// Generator returns the current model client.
func (s *Service) Generator() llm.Generator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Run builds the prompt for req, asks the model and stores the parsed result.
func (s *Service) Run(ctx context.Context, sessionID string, req Request) (*models.Research, models.Usage, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, models.Usage{}, err
	}
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, models.Usage{}, err
	}

	r := &models.Research{
		SessionID:        sessionID,
		Kind:             string(req.Kind),
		Input:            req.Input,
		Depth:            string(req.Depth),
		OriginalLanguage: req.OriginalLanguage,
	}
	return s.complete(ctx, r, prompt, req.Format)
}

// Refine expands on one aspect of an earlier result.
func (s *Service) Refine(ctx context.Context, sessionID, parentID, question string) (*models.Research, models.Usage, error) {
	parent, err := s.store.GetResearch(parentID)
	if err != nil {
		return nil, models.Usage{}, err
	}
	prompt, err := RefinePrompt(parent.Raw, question)
	if err != nil {
		return nil, models.Usage{}, err
	}

	r := &models.Research{
		SessionID:        sessionID,
		ParentID:         parent.ID,
		Kind:             parent.Kind,
		Input:            strings.TrimSpace(question),
		Depth:            parent.Depth,
		OriginalLanguage: parent.OriginalLanguage,
	}
	return s.complete(ctx, r, prompt, FormatText)
}

// Enhance asks the model to add verse references to an earlier result's questions.
// An empty researchContext describes the parent request.
func (s *Service) Enhance(ctx context.Context, sessionID, parentID, researchContext string) (*models.Research, models.Usage, error) {
	parent, err := s.store.GetResearch(parentID)
	if err != nil {
		return nil, models.Usage{}, err
	}
	if strings.TrimSpace(researchContext) == "" {
		researchContext = describe(parent)
	}
	prompt, err := EnhancePrompt(SectionsText(parent.Sections), researchContext)
	if err != nil {
		return nil, models.Usage{}, err
	}

	r := &models.Research{
		SessionID:        sessionID,
		ParentID:         parent.ID,
		Kind:             parent.Kind,
		Input:            parent.Input,
		Depth:            parent.Depth,
		OriginalLanguage: parent.OriginalLanguage,
	}
	return s.complete(ctx, r, prompt, FormatText)
}

func (s *Service) complete(ctx context.Context, r *models.Research, prompt string, format Format) (*models.Research, models.Usage, error) {
	completion, err := s.Generator().Generate(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, models.Usage{}, fmt.Errorf("%w: %s research: %w", ErrGeneration, r.Kind, err)
	}

	parsed := ParseResponse(completion.Text, format)

	r.ID = uuid.NewString()
	r.Format = string(parsed.Format)
	r.Prompt = prompt
	r.Raw = completion.Text
	r.Title = parsed.Title
	r.Sections = parsed.Sections
	r.Model = completion.Model
	r.InputTokens = completion.InputTokens
	r.OutputTokens = completion.OutputTokens
	r.CreatedAt = s.clock.Now().UTC()

	if err := s.store.SaveResearch(r); err != nil {
		return nil, models.Usage{}, fmt.Errorf("saving research: %w", err)
	}
	usage, err := s.store.RecordUsage(r.SessionID, completion.InputTokens, completion.OutputTokens)
	if err != nil {
		return nil, models.Usage{}, fmt.Errorf("recording usage: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.LogResearch(r); err != nil {
			log.Printf("Failed to archive research %s: %v", r.ID, err)
		}
	}

	log.Printf("Research %s (%s) for session %s: %d sections, %d/%d tokens",
		r.ID, r.Kind, r.SessionID, len(r.Sections), r.InputTokens, r.OutputTokens)
	return r, usage, nil
}

// Get returns a stored result.
func (s *Service) Get(id string) (*models.Research, error) {
	return s.store.GetResearch(id)
}

// History returns a session's results, newest first.
func (s *Service) History(sessionID string, limit int) ([]models.Research, error) {
	return s.store.ListResearch(sessionID, limit)
}

func describe(r *models.Research) string {
	title := r.Kind
	if t, ok := Lookup(Kind(r.Kind)); ok {
		title = t.Title
	}
	return fmt.Sprintf("%s: %s", title, r.Input)
}

// SectionsText renders sections back into headed plain text.
func SectionsText(sections []models.Section) string {
	var b strings.Builder
	for i, sec := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if sec.Heading != "" {
			b.WriteString(strings.ToUpper(sec.Heading))
			b.WriteString(":\n")
		}
		b.WriteString(sec.Content)
	}
	return b.String()
}
