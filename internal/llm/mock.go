package llm

import (
	"context"
	"strings"
	"sync"
)

// MockModel is reported as the model name by MockGenerator.
const MockModel = "mock"

const mockText = `KEY BIBLE VERSES:
John 3:16 - For God so loved the world, that he gave his only begotten Son.
1 John 4:8 - He that loveth not knoweth not God; for God is love.

HISTORICAL CONTEXT:
The passage was written to a community wrestling with what it means to abide in God.

THEOLOGICAL THEMES:
Love is presented as the character of God and the mark of those who know Him.

PRACTICAL APPLICATION:
Look for one concrete way to serve someone this week.

REFLECTION QUESTIONS:
1. Where have you seen sacrificial love in your own life?
2. What keeps you from loving others freely?`

// MockGenerator returns canned research text. It is used when no API key is
// configured and in tests.
type MockGenerator struct {
	mu      sync.Mutex
	Text    string
	Err     error
	prompts []string
}

// NewMockGenerator creates a mock that answers with a fixed sample study.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Text: mockText}
}

// Generate records the prompt and returns the canned text.
func (m *MockGenerator) Generate(ctx context.Context, system, prompt string) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	text, err := m.Text, m.Err
	m.mu.Unlock()

	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Text:         text,
		Model:        MockModel,
		InputTokens:  int64(len(strings.Fields(system + " " + prompt))),
		OutputTokens: int64(len(strings.Fields(text))),
	}, nil
}

// HealthCheck returns Err, so a failing mock also reports as unreachable.
func (m *MockGenerator) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

// SetErr sets the error returned by Generate and HealthCheck.
func (m *MockGenerator) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *MockGenerator) Model() string {
	return MockModel
}

// Prompts returns the prompts seen so far.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
