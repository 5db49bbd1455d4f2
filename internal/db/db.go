package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mrwolf/bible-research/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const schema = `
-- Per-session request and token counters
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    requests INTEGER NOT NULL DEFAULT 0,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Research history
CREATE TABLE IF NOT EXISTS research (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    parent_id TEXT,
    kind TEXT NOT NULL,
    input TEXT NOT NULL,
    depth TEXT NOT NULL,
    original_language INTEGER NOT NULL DEFAULT 0,
    format TEXT NOT NULL,
    prompt TEXT NOT NULL,
    raw TEXT NOT NULL,
    title TEXT,
    sections TEXT NOT NULL, -- JSON array of sections
    model TEXT NOT NULL,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

-- Word distribution requests
CREATE TABLE IF NOT EXISTS word_studies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    headword TEXT NOT NULL,
    selected TEXT NOT NULL, -- JSON array of words
    grand_total INTEGER NOT NULL,
    created_at TEXT NOT NULL
);

-- Scheduler job tracking
CREATE TABLE IF NOT EXISTS scheduler_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_name TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_research_session ON research(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_research_created ON research(created_at);
CREATE INDEX IF NOT EXISTS idx_word_studies_created ON word_studies(created_at);
CREATE INDEX IF NOT EXISTS idx_scheduler_job ON scheduler_runs(job_name);
`

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database connection
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// SaveResearch stores a research result
func (db *DB) SaveResearch(r *models.Research) error {
	sections, err := json.Marshal(r.Sections)
	if err != nil {
		return fmt.Errorf("encoding sections: %w", err)
	}
	originalLanguage := 0
	if r.OriginalLanguage {
		originalLanguage = 1
	}

	_, err = db.conn.Exec(`
		INSERT INTO research (id, session_id, parent_id, kind, input, depth, original_language, format,
			prompt, raw, title, sections, model, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.SessionID, r.ParentID, r.Kind, r.Input, r.Depth, originalLanguage, r.Format,
		r.Prompt, r.Raw, r.Title, string(sections), r.Model, r.InputTokens, r.OutputTokens, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting research %s: %w", r.ID, err)
	}
	return nil
}

const researchColumns = `id, session_id, parent_id, kind, input, depth, original_language, format,
	prompt, raw, title, sections, model, input_tokens, output_tokens, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResearch(row rowScanner) (*models.Research, error) {
	var r models.Research
	var parentID, title sql.NullString
	var originalLanguage int
	var sections, createdStr string
	if err := row.Scan(&r.ID, &r.SessionID, &parentID, &r.Kind, &r.Input, &r.Depth, &originalLanguage, &r.Format,
		&r.Prompt, &r.Raw, &title, &sections, &r.Model, &r.InputTokens, &r.OutputTokens, &createdStr); err != nil {
		return nil, err
	}
	r.ParentID = parentID.String
	r.Title = title.String
	r.OriginalLanguage = originalLanguage == 1
	r.CreatedAt = parseTime(createdStr)
	if err := json.Unmarshal([]byte(sections), &r.Sections); err != nil {
		return nil, fmt.Errorf("decoding sections of %s: %w", r.ID, err)
	}
	return &r, nil
}

// GetResearch returns a research result by ID
func (db *DB) GetResearch(id string) (*models.Research, error) {
	row := db.conn.QueryRow(`SELECT `+researchColumns+` FROM research WHERE id = ?`, id)
	r, err := scanResearch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("research %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListResearch returns a session's research, newest first
func (db *DB) ListResearch(sessionID string, limit int) ([]models.Research, error) {
	query := `SELECT ` + researchColumns + ` FROM research WHERE session_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Research{}
	for rows.Next() {
		r, err := scanResearch(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *r)
	}
	return list, rows.Err()
}

// PruneResearch deletes research and word study records created before the cutoff
func (db *DB) PruneResearch(before time.Time) (int64, error) {
	cutoff := formatTime(before)

	result, err := db.conn.Exec(`DELETE FROM research WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning research: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := db.conn.Exec(`DELETE FROM word_studies WHERE created_at < ?`, cutoff); err != nil {
		return n, fmt.Errorf("pruning word studies: %w", err)
	}
	return n, nil
}

// RecordUsage adds one request and its tokens to a session and returns the new totals
func (db *DB) RecordUsage(sessionID string, inputTokens, outputTokens int64) (models.Usage, error) {
	now := formatTime(time.Now())
	_, err := db.conn.Exec(`
		INSERT INTO sessions (session_id, requests, input_tokens, output_tokens, created_at, updated_at)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			requests = requests + 1,
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			updated_at = excluded.updated_at
	`, sessionID, inputTokens, outputTokens, now, now)
	if err != nil {
		return models.Usage{}, fmt.Errorf("recording usage for %s: %w", sessionID, err)
	}
	return db.GetUsage(sessionID)
}

// GetUsage returns a session's counters. Unknown sessions report zero usage.
func (db *DB) GetUsage(sessionID string) (models.Usage, error) {
	u := models.Usage{SessionID: sessionID}
	var updatedStr string
	err := db.conn.QueryRow(`
		SELECT requests, input_tokens, output_tokens, updated_at
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&u.Requests, &u.InputTokens, &u.OutputTokens, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return models.Usage{}, err
	}
	u.UpdatedAt = parseTime(updatedStr)
	return u, nil
}

// ResetUsage zeroes a session's counters
func (db *DB) ResetUsage(sessionID string) (models.Usage, error) {
	_, err := db.conn.Exec(`
		UPDATE sessions SET requests = 0, input_tokens = 0, output_tokens = 0, updated_at = ?
		WHERE session_id = ?
	`, formatTime(time.Now()), sessionID)
	if err != nil {
		return models.Usage{}, fmt.Errorf("resetting usage for %s: %w", sessionID, err)
	}
	return db.GetUsage(sessionID)
}

// LogWordStudy records a distribution request
func (db *DB) LogWordStudy(sessionID, headword string, selected []string, grandTotal int) error {
	words, err := json.Marshal(selected)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`
		INSERT INTO word_studies (session_id, headword, selected, grand_total, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, headword, string(words), grandTotal, formatTime(time.Now()))
	return err
}

// ListWordStudies returns a session's distribution requests, newest first
func (db *DB) ListWordStudies(sessionID string, limit int) ([]models.WordStudyLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, session_id, headword, selected, grand_total, created_at
		FROM word_studies
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.WordStudyLog{}
	for rows.Next() {
		var l models.WordStudyLog
		var selected, createdStr string
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Headword, &selected, &l.GrandTotal, &createdStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(selected), &l.Selected); err != nil {
			return nil, fmt.Errorf("decoding selection of word study %d: %w", l.ID, err)
		}
		l.CreatedAt = parseTime(createdStr)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// SchedulerRun tracks a scheduler job execution
type SchedulerRun struct {
	ID           int64
	JobName      string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// StartSchedulerRun records the start of a scheduler job
func (db *DB) StartSchedulerRun(jobName string) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO scheduler_runs (job_name, status, started_at)
		VALUES (?, 'running', ?)
	`, jobName, formatTime(time.Now()))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteSchedulerRun marks a scheduler job as completed
func (db *DB) CompleteSchedulerRun(runID int64, errMsg string) error {
	status := "completed"
	if errMsg != "" {
		status = "failed"
	}
	_, err := db.conn.Exec(`
		UPDATE scheduler_runs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`, status, formatTime(time.Now()), errMsg, runID)
	return err
}

// GetLastSchedulerRun returns the last run of a job, or nil if it never ran
func (db *DB) GetLastSchedulerRun(jobName string) (*SchedulerRun, error) {
	var run SchedulerRun
	var startedStr string
	var completedStr, errMsg sql.NullString
	err := db.conn.QueryRow(`
		SELECT id, job_name, status, started_at, completed_at, error_message
		FROM scheduler_runs
		WHERE job_name = ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`, jobName).Scan(&run.ID, &run.JobName, &run.Status, &startedStr, &completedStr, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(startedStr)
	if completedStr.Valid {
		t := parseTime(completedStr.String)
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}
	return &run, nil
}
