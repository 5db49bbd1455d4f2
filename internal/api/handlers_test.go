package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mrwolf/bible-research/internal/config"
	"github.com/mrwolf/bible-research/internal/db"
	"github.com/mrwolf/bible-research/internal/llm"
	"github.com/mrwolf/bible-research/internal/models"
	"github.com/mrwolf/bible-research/internal/research"
	"github.com/mrwolf/bible-research/internal/wordstudy"
)

const testToken = "test_token"

const testOccurrences = `{
  "love": {
    "agape":  {"John": 7, "Romans": 3},
    "phileo": {"John": 13},
    "hesed":  {"Psalms": 12}
  },
  "broken": {
    "bad": {"John": -1}
  }
}`

type testServer struct {
	*httptest.Server
	db  *db.DB
	gen *llm.MockGenerator
	cfg *atomic.Pointer[config.Config]
}

// reload swaps in a modified copy of the config, as the config manager
// does when the file changes.
func (s *testServer) reload(edit func(*config.Config)) {
	next := *s.cfg.Load()
	edit(&next)
	s.cfg.Store(&next)
}

func setupTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	tmpDir := t.TempDir()

	dataDir := filepath.Join(tmpDir, "data")
	os.MkdirAll(dataDir, 0o755)
	files := map[string]string{
		wordstudy.GreekFile:       `{"agape": {"strong": "G26", "meaning": "love", "english_words": ["love"]}, "phileo": {"strong": "G5368", "meaning": "affection", "english_words": ["love"]}}`,
		wordstudy.HebrewFile:      `{"hesed": {"strong": "H2617", "meaning": "lovingkindness", "english_words": ["love"]}}`,
		wordstudy.OccurrencesFile: testOccurrences,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.Port = "0"
	cfg.DBPath = filepath.Join(tmpDir, "test.db")
	cfg.DataDir = dataDir
	cfg.Timezone = "UTC"
	if cfg.TopBooks == 0 {
		cfg.TopBooks = 5
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}

	library, err := wordstudy.NewLibrary(dataDir)
	if err != nil {
		t.Fatalf("loading library: %v", err)
	}

	gen := llm.NewMockGenerator()
	svc := research.NewService(gen, database, nil, nil)

	current := &atomic.Pointer[config.Config]{}
	current.Store(cfg)

	server := httptest.NewServer(NewRouter(current.Load, database, library, svc))
	t.Cleanup(func() {
		server.Close()
		database.Close()
	})

	return &testServer{Server: server, db: database, gen: gen, cfg: current}
}

func (s *testServer) do(t *testing.T, method, path, session, body string) *http.Response {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(t, nil)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	var body models.HealthResponse
	decode(t, resp, &body)

	if body.Status != "ok" {
		t.Errorf("expected status ok, got %v", body.Status)
	}
	if body.LLM != "connected" || body.Model != llm.MockModel {
		t.Errorf("llm = %q model = %q", body.LLM, body.Model)
	}
	if body.Data != "loaded" {
		t.Errorf("data = %q", body.Data)
	}
}

func TestHealthModelUnreachable(t *testing.T) {
	server := setupTestServer(t, nil)
	server.gen.SetErr(&testError{"connection refused"})

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body models.HealthResponse
	decode(t, resp, &body)
	if body.LLM != "error: connection refused" {
		t.Errorf("llm = %q, want error", body.LLM)
	}
}

func TestRequiresAuthWhenTokenSet(t *testing.T) {
	server := setupTestServer(t, &config.Config{APIToken: testToken})

	resp, err := http.Get(server.URL + "/api/v1/words")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401 without auth, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("GET", server.URL+"/api/v1/words", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401 with invalid token, got %d", resp2.StatusCode)
	}

	resp3 := server.do(t, "GET", "/api/v1/words", "", "")
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("expected status 200 with token, got %d", resp3.StatusCode)
	}
}

func TestAuthDisabled(t *testing.T) {
	server := setupTestServer(t, nil)

	resp, err := http.Get(server.URL + "/api/v1/research/kinds")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200 with auth disabled, got %d", resp.StatusCode)
	}
}

func TestSessionHeader(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "GET", "/api/v1/words", "abc", "")
	if got := resp.Header.Get(SessionHeader); got != "abc" {
		t.Errorf("session header = %q, want abc", got)
	}

	resp = server.do(t, "GET", "/api/v1/words", "", "")
	if got := resp.Header.Get(SessionHeader); got == "" {
		t.Error("expected generated session id")
	}
}

func TestKinds(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "GET", "/api/v1/research/kinds", "", "")
	var body models.KindsResponse
	decode(t, resp, &body)

	if len(body.Kinds) != 4 {
		t.Errorf("expected 4 kinds, got %d", len(body.Kinds))
	}
	if len(body.Depths) != 3 || len(body.Formats) != 2 {
		t.Errorf("depths = %v formats = %v", body.Depths, body.Formats)
	}
}

func TestCreateResearch(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "POST", "/api/v1/research", "s1", `{"kind":"topical","input":"grace","depth":"deep"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}

	var body models.ResearchResponse
	decode(t, resp, &body)

	if body.Research == nil || body.Research.ID == "" {
		t.Fatalf("research = %+v", body.Research)
	}
	if body.Research.SessionID != "s1" || body.Research.Depth != "deep" {
		t.Errorf("research = %+v", body.Research)
	}
	if len(body.Research.Sections) == 0 {
		t.Error("expected parsed sections")
	}
	if body.Usage.Requests != 1 || body.Usage.InputTokens == 0 {
		t.Errorf("usage = %+v", body.Usage)
	}

	get := server.do(t, "GET", "/api/v1/research/"+body.Research.ID, "s1", "")
	if get.StatusCode != http.StatusOK {
		t.Errorf("GET research: expected 200, got %d", get.StatusCode)
	}

	history := server.do(t, "GET", "/api/v1/sessions/s1/research", "s1", "")
	var list models.HistoryResponse
	decode(t, history, &list)
	if len(list.Research) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(list.Research))
	}
}

func TestCreateResearchInvalid(t *testing.T) {
	server := setupTestServer(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown kind", `{"kind":"sermon","input":"x"}`, http.StatusBadRequest},
		{"empty input", `{"kind":"verse","input":"  "}`, http.StatusBadRequest},
		{"bad depth", `{"kind":"verse","input":"John 3:16","depth":"extreme"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := server.do(t, "POST", "/api/v1/research", "s1", tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
	if len(server.gen.Prompts()) != 0 {
		t.Error("invalid requests should not reach the model")
	}
}

func TestCreateResearchModelFailure(t *testing.T) {
	server := setupTestServer(t, nil)
	server.gen.SetErr(&testError{"upstream down"})

	resp := server.do(t, "POST", "/api/v1/research", "s1", `{"kind":"verse","input":"John 3:16"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", resp.StatusCode)
	}
	var body ErrorResponse
	decode(t, resp, &body)
	if body.Code != "LLM_ERROR" {
		t.Errorf("code = %q", body.Code)
	}
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestGetResearchNotFound(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "GET", "/api/v1/research/missing", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.StatusCode)
	}
}

func TestRefineAndEnhance(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "POST", "/api/v1/research", "s1", `{"kind":"study_guide","input":"Ephesians 2"}`)
	var created models.ResearchResponse
	decode(t, resp, &created)
	id := created.Research.ID

	refine := server.do(t, "POST", "/api/v1/research/"+id+"/refine", "s1", `{"question":"What does grace mean here?"}`)
	if refine.StatusCode != http.StatusCreated {
		t.Fatalf("refine: expected 201, got %d", refine.StatusCode)
	}
	var refined models.ResearchResponse
	decode(t, refine, &refined)
	if refined.Research.ParentID != id {
		t.Errorf("refined parent = %q, want %q", refined.Research.ParentID, id)
	}

	emptyQ := server.do(t, "POST", "/api/v1/research/"+id+"/refine", "s1", `{"question":""}`)
	if emptyQ.StatusCode != http.StatusBadRequest {
		t.Errorf("empty question: expected 400, got %d", emptyQ.StatusCode)
	}

	enhance := server.do(t, "POST", "/api/v1/research/"+id+"/enhance", "s1", "")
	if enhance.StatusCode != http.StatusCreated {
		t.Fatalf("enhance: expected 201, got %d", enhance.StatusCode)
	}
	var enhanced models.ResearchResponse
	decode(t, enhance, &enhanced)
	if enhanced.Usage.Requests != 3 {
		t.Errorf("usage requests = %d, want 3", enhanced.Usage.Requests)
	}

	missing := server.do(t, "POST", "/api/v1/research/nope/enhance", "s1", "")
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("enhance missing: expected 404, got %d", missing.StatusCode)
	}
}

func TestUsageEndpoints(t *testing.T) {
	server := setupTestServer(t, nil)

	server.do(t, "POST", "/api/v1/research", "s2", `{"kind":"verse","input":"Romans 8:28"}`)

	resp := server.do(t, "GET", "/api/v1/sessions/s2/usage", "s2", "")
	var usage models.Usage
	decode(t, resp, &usage)
	if usage.Requests != 1 {
		t.Errorf("requests = %d, want 1", usage.Requests)
	}

	reset := server.do(t, "DELETE", "/api/v1/sessions/s2/usage", "s2", "")
	var cleared models.Usage
	decode(t, reset, &cleared)
	if cleared.Requests != 0 || cleared.InputTokens != 0 || cleared.OutputTokens != 0 {
		t.Errorf("usage after reset = %+v", cleared)
	}
}

func TestSessionResearchInvalidLimit(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "GET", "/api/v1/sessions/s1/research?limit=zero", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", resp.StatusCode)
	}
}

func TestWordsAndVariants(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "GET", "/api/v1/words", "", "")
	var words models.WordsResponse
	decode(t, resp, &words)
	if !words.Available || len(words.Headwords) != 2 {
		t.Errorf("words = %+v", words)
	}

	resp = server.do(t, "GET", "/api/v1/words/love", "", "")
	var variants models.VariantsResponse
	decode(t, resp, &variants)
	if len(variants.Variants) != 3 {
		t.Fatalf("expected 3 variants, got %d", len(variants.Variants))
	}
	// Hebrew first.
	if variants.Variants[0].Word != "hesed" {
		t.Errorf("first variant = %q, want hesed", variants.Variants[0].Word)
	}

	missing := server.do(t, "GET", "/api/v1/words/faith", "", "")
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("unknown headword: expected 404, got %d", missing.StatusCode)
	}
}

func TestDistribution(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "POST", "/api/v1/words/love/distribution", "s3", `{"selection":{"agape":true,"phileo":true,"hesed":false}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var body struct {
		Headword      string                `json:"headword"`
		Selected      []string              `json:"selected"`
		Chart         []wordstudy.BookCount `json:"chart"`
		Report        wordstudy.Report      `json:"report"`
		WordsAnalyzed int                   `json:"words_analyzed"`
	}
	decode(t, resp, &body)

	if body.Report.GrandTotal != 23 {
		t.Errorf("grand total = %d, want 23", body.Report.GrandTotal)
	}
	if body.Report.OldTestamentTotal != 0 || body.Report.NewTestamentTotal != 23 {
		t.Errorf("testament totals = %d/%d", body.Report.OldTestamentTotal, body.Report.NewTestamentTotal)
	}
	if body.Report.Ratio != nil {
		t.Errorf("ratio = %v, want null without Old Testament occurrences", *body.Report.Ratio)
	}
	if body.WordsAnalyzed != 2 || len(body.Chart) != 2 {
		t.Errorf("words analyzed = %d chart = %v", body.WordsAnalyzed, body.Chart)
	}

	logs, err := server.db.ListWordStudies("s3", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].GrandTotal != 23 {
		t.Errorf("word study log = %+v", logs)
	}

	history := server.do(t, "GET", "/api/v1/sessions/s3/words", "s3", "")
	var studies models.WordStudiesResponse
	decode(t, history, &studies)
	if len(studies.WordStudies) != 1 {
		t.Errorf("expected 1 word study, got %d", len(studies.WordStudies))
	}
}

func TestDistributionAllVariants(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "POST", "/api/v1/words/love/distribution", "", "")
	var body struct {
		Report        wordstudy.Report `json:"report"`
		WordsAnalyzed int              `json:"words_analyzed"`
	}
	decode(t, resp, &body)

	if body.Report.GrandTotal != 35 || body.WordsAnalyzed != 3 {
		t.Errorf("report = %+v analyzed = %d", body.Report, body.WordsAnalyzed)
	}
	if body.Report.OldTestamentTotal != 12 {
		t.Errorf("old testament total = %d, want 12", body.Report.OldTestamentTotal)
	}
}

func TestDistributionEmptySelection(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "POST", "/api/v1/words/love/distribution", "", `{"selection":{}}`)
	var body struct {
		Chart  []wordstudy.BookCount `json:"chart"`
		Report wordstudy.Report      `json:"report"`
	}
	decode(t, resp, &body)

	if !body.Report.NoData || body.Report.GrandTotal != 0 {
		t.Errorf("report = %+v", body.Report)
	}
	if body.Report.RatioAvailable() {
		t.Errorf("ratio = %v, want null", *body.Report.Ratio)
	}
	if len(body.Chart) != 0 {
		t.Errorf("chart = %v, want empty", body.Chart)
	}
}

func TestDistributionIntegrityError(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "POST", "/api/v1/words/broken/distribution", "", `{"selection":{"bad":true}}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", resp.StatusCode)
	}
	var body ErrorResponse
	decode(t, resp, &body)
	if body.Code != "DATA_INTEGRITY" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestDistributionNegativeTop(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "POST", "/api/v1/words/love/distribution", "", `{"top":-1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", resp.StatusCode)
	}
}

func TestRateLimiter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(2, time.Minute, clock)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should be allowed")
	}
	if rl.Allow("a") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Error("other clients are limited separately")
	}

	clock.Advance(61 * time.Second)
	if !rl.Allow("a") {
		t.Error("request after the window should be allowed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	server := setupTestServer(t, &config.Config{RateLimit: 1})

	first := server.do(t, "GET", "/api/v1/words", "", "")
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", first.StatusCode)
	}
	second := server.do(t, "GET", "/api/v1/words", "", "")
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", second.StatusCode)
	}
}

func TestConfigReloadAppliesToRequests(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, "GET", "/api/v1/words", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 before reload, got %d", resp.StatusCode)
	}

	server.reload(func(c *config.Config) {
		c.APIToken = "rotated"
		c.TopBooks = 1
		c.RateLimit = 1
	})

	resp = server.do(t, "GET", "/api/v1/words", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with the old token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("POST", server.URL+"/api/v1/words/love/distribution", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer rotated")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with the new token, got %d", resp.StatusCode)
	}
	var body models.DistributionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Report.TopBooks) != 1 {
		t.Errorf("expected 1 top book after reload, got %d", len(body.Report.TopBooks))
	}

	req, _ = http.NewRequest("GET", server.URL+"/api/v1/words", nil)
	req.Header.Set("Authorization", "Bearer rotated")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429 once the reloaded limit is reached, got %d", resp.StatusCode)
	}
}
