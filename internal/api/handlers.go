package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mrwolf/bible-research/internal/db"
	"github.com/mrwolf/bible-research/internal/models"
	"github.com/mrwolf/bible-research/internal/research"
	"github.com/mrwolf/bible-research/internal/wordstudy"
)

// Version is reported by the health endpoint. Overridden at build time.
var Version = "dev"

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxBodyBytes        = 1 << 20
	researchTimeout     = 3 * time.Minute
)

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeErrorDetails(w, status, message, code, "")
}

func writeErrorDetails(w http.ResponseWriter, status int, message, code, details string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

type Handlers struct {
	cfg      ConfigSource
	db       *db.DB
	library  *wordstudy.Library
	research *research.Service
}

func NewHandlers(cfg ConfigSource, database *db.DB, library *wordstudy.Library, svc *research.Service) *Handlers {
	return &Handlers{
		cfg:      cfg,
		db:       database,
		library:  library,
		research: svc,
	}
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	gen := h.research.Generator()
	resp := models.HealthResponse{
		Status:  "ok",
		LLM:     h.checkLLM(r.Context()),
		Model:   gen.Model(),
		Data:    h.checkData(),
		Version: Version,
	}
	if err := h.db.Ping(); err != nil {
		resp.Status = "degraded"
		log.Printf("Health check: database unreachable: %v", err)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) checkLLM(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.research.Generator().HealthCheck(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

func (h *Handlers) checkData() string {
	d := h.library.Dataset()
	if !d.Available() {
		return "unavailable"
	}
	if missing := d.Missing(); len(missing) > 0 {
		return "partial: missing " + strings.Join(missing, ", ")
	}
	return "loaded"
}

// Kinds handles GET /research/kinds
func (h *Handlers) Kinds(w http.ResponseWriter, r *http.Request) {
	resp := models.KindsResponse{}
	for _, t := range research.Templates() {
		resp.Kinds = append(resp.Kinds, models.KindInfo{
			Kind:       string(t.Kind),
			Title:      t.Title,
			InputLabel: t.InputLabel,
			Sections:   t.SectionNames(),
		})
	}
	for _, d := range research.Depths() {
		resp.Depths = append(resp.Depths, string(d))
	}
	for _, f := range research.Formats() {
		resp.Formats = append(resp.Formats, string(f))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateResearch handles POST /research
func (h *Handlers) CreateResearch(w http.ResponseWriter, r *http.Request) {
	var req models.ResearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), researchTimeout)
	defer cancel()

	result, usage, err := h.research.Run(ctx, GetSession(r), research.Request{
		Kind:             research.Kind(req.Kind),
		Input:            req.Input,
		Depth:            research.Depth(req.Depth),
		OriginalLanguage: req.OriginalLanguage,
		Format:           research.Format(req.Format),
	})
	if err != nil {
		h.researchError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.ResearchResponse{Research: result, Usage: usage})
}

// GetResearch handles GET /research/{id}
func (h *Handlers) GetResearch(w http.ResponseWriter, r *http.Request) {
	result, err := h.research.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.researchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Refine handles POST /research/{id}/refine
func (h *Handlers) Refine(w http.ResponseWriter, r *http.Request) {
	var req models.RefineRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), researchTimeout)
	defer cancel()

	result, usage, err := h.research.Refine(ctx, GetSession(r), chi.URLParam(r, "id"), req.Question)
	if err != nil {
		h.researchError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.ResearchResponse{Research: result, Usage: usage})
}

// Enhance handles POST /research/{id}/enhance
func (h *Handlers) Enhance(w http.ResponseWriter, r *http.Request) {
	var req models.EnhanceRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), researchTimeout)
	defer cancel()

	result, usage, err := h.research.Enhance(ctx, GetSession(r), chi.URLParam(r, "id"), req.Context)
	if err != nil {
		h.researchError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.ResearchResponse{Research: result, Usage: usage})
}

func (h *Handlers) researchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, research.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "research not found", "NOT_FOUND")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "model request timed out", "LLM_TIMEOUT")
	case errors.Is(err, research.ErrGeneration):
		log.Printf("Model request failed: %v", err)
		writeErrorDetails(w, http.StatusBadGateway, "model request failed", "LLM_ERROR", err.Error())
	default:
		log.Printf("Research request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}

// SessionResearch handles GET /sessions/{id}/research
func (h *Handlers) SessionResearch(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	list, err := h.research.History(chi.URLParam(r, "id"), limit)
	if err != nil {
		log.Printf("Failed to list research: %v", err)
		writeError(w, http.StatusInternalServerError, "database error", "DB_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, models.HistoryResponse{Research: list})
}

// SessionWordStudies handles GET /sessions/{id}/words
func (h *Handlers) SessionWordStudies(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	list, err := h.db.ListWordStudies(chi.URLParam(r, "id"), limit)
	if err != nil {
		log.Printf("Failed to list word studies: %v", err)
		writeError(w, http.StatusInternalServerError, "database error", "DB_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, models.WordStudiesResponse{WordStudies: list})
}

// GetUsage handles GET /sessions/{id}/usage
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.db.GetUsage(chi.URLParam(r, "id"))
	if err != nil {
		log.Printf("Failed to read usage: %v", err)
		writeError(w, http.StatusInternalServerError, "database error", "DB_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// ResetUsage handles DELETE /sessions/{id}/usage
func (h *Handlers) ResetUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.db.ResetUsage(chi.URLParam(r, "id"))
	if err != nil {
		log.Printf("Failed to reset usage: %v", err)
		writeError(w, http.StatusInternalServerError, "database error", "DB_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// Words handles GET /words
func (h *Handlers) Words(w http.ResponseWriter, r *http.Request) {
	d := h.library.Dataset()
	resp := models.WordsResponse{
		Available: d.Available(),
		Missing:   d.Missing(),
		Headwords: d.Headwords(),
	}
	if resp.Headwords == nil {
		resp.Headwords = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Variants handles GET /words/{headword}
func (h *Handlers) Variants(w http.ResponseWriter, r *http.Request) {
	headword := chi.URLParam(r, "headword")
	variants, err := h.library.Dataset().Variants(headword)
	if err != nil {
		h.wordError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.VariantsResponse{Headword: headword, Variants: variants})
}

// Distribution handles POST /words/{headword}/distribution
func (h *Handlers) Distribution(w http.ResponseWriter, r *http.Request) {
	var req models.DistributionRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if req.Top < 0 {
		writeError(w, http.StatusBadRequest, "top must not be negative", "INVALID_REQUEST")
		return
	}
	top := req.Top
	if top == 0 {
		top = h.cfg().TopBooks
	}

	headword := chi.URLParam(r, "headword")
	// A missing selection selects every variant.
	study, err := h.library.Dataset().Study(headword, wordstudy.Selection(req.Selection), top)
	if err != nil {
		h.wordError(w, err)
		return
	}

	if err := h.db.LogWordStudy(GetSession(r), headword, study.Selected, study.Report.GrandTotal); err != nil {
		log.Printf("Failed to log word study for %s: %v", headword, err)
	}

	writeJSON(w, http.StatusOK, models.DistributionResponse{Study: study, WordsAnalyzed: study.WordsAnalyzed()})
}

func (h *Handlers) wordError(w http.ResponseWriter, err error) {
	var integrity *wordstudy.DataIntegrityError
	switch {
	case errors.Is(err, wordstudy.ErrUnknownHeadword):
		writeError(w, http.StatusNotFound, err.Error(), "UNKNOWN_HEADWORD")
	case errors.As(err, &integrity):
		log.Printf("Word data integrity violation: %v", err)
		writeErrorDetails(w, http.StatusUnprocessableEntity, "word data failed validation", "DATA_INTEGRITY", err.Error())
	default:
		log.Printf("Word study failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer", "INVALID_LIMIT")
		return 0, false
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, true
}
