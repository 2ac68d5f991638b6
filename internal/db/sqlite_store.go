package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/searchlab/studyflow/internal/api"
)

// SQLiteStore persists the participant state that must survive a server
// restart: sessions, conditions, timers, cached answers and the submission
// journal. Time values are stored as RFC3339 text.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		log.Printf("sqlite store: %s: %v", prefix, err)
	}
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func (s *SQLiteStore) AddSession(sess *api.Session) {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO sessions (participant_id, has_participated, created_at) VALUES (?, ?, ?)`,
		sess.ParticipantID, boolToInt64(sess.HasParticipated), formatTime(sess.CreatedAt),
	)
	s.logErr("add session", err)
}

func (s *SQLiteStore) GetSession(id string) *api.Session {
	row := s.db.QueryRow(`SELECT participant_id, has_participated, created_at FROM sessions WHERE participant_id = ?`, id)
	var (
		sess         api.Session
		participated int64
		createdAt    string
	)
	if err := row.Scan(&sess.ParticipantID, &participated, &createdAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logErr("get session", err)
		}
		return nil
	}
	sess.HasParticipated = participated != 0
	sess.CreatedAt = parseTime(createdAt)
	return &sess
}

func (s *SQLiteStore) SetParticipated(id string) bool {
	res, err := s.db.Exec(`UPDATE sessions SET has_participated = 1 WHERE participant_id = ?`, id)
	if err != nil {
		s.logErr("set participated", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteStore) SetCondition(c *api.Condition) {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO conditions (participant_id, system_type, scenario_id, scenario_text, task_text, assigned_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ParticipantID, c.SystemType, c.ScenarioID, c.ScenarioText, c.TaskText, formatTime(c.AssignedAt),
	)
	s.logErr("set condition", err)
}

func (s *SQLiteStore) GetCondition(pid string) *api.Condition {
	row := s.db.QueryRow(
		`SELECT participant_id, system_type, scenario_id, scenario_text, task_text, assigned_at FROM conditions WHERE participant_id = ?`, pid)
	var (
		c          api.Condition
		assignedAt string
	)
	if err := row.Scan(&c.ParticipantID, &c.SystemType, &c.ScenarioID, &c.ScenarioText, &c.TaskText, &assignedAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logErr("get condition", err)
		}
		return nil
	}
	c.AssignedAt = parseTime(assignedAt)
	return &c
}

func (s *SQLiteStore) CacheGet(pid, key string) (string, bool) {
	row := s.db.QueryRow(`SELECT value FROM cache_entries WHERE participant_id = ? AND key = ?`, pid, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logErr("cache get", err)
		}
		return "", false
	}
	return value, true
}

func (s *SQLiteStore) CacheSet(pid, key, value string) {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (participant_id, key, value) VALUES (?, ?, ?)`, pid, key, value)
	s.logErr("cache set", err)
}

func (s *SQLiteStore) CacheRemove(pid, key string) {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE participant_id = ? AND key = ?`, pid, key)
	s.logErr("cache remove", err)
}

func (s *SQLiteStore) IsPageComplete(pid, page string) bool {
	row := s.db.QueryRow(`SELECT 1 FROM page_completions WHERE participant_id = ? AND page = ?`, pid, page)
	var one int
	if err := row.Scan(&one); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logErr("is page complete", err)
		}
		return false
	}
	return true
}

func (s *SQLiteStore) MarkPageComplete(pid, page string) {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO page_completions (participant_id, page) VALUES (?, ?)`, pid, page)
	s.logErr("mark page complete", err)
}

func (s *SQLiteStore) GetTaskStart(pid string) (time.Time, bool) {
	row := s.db.QueryRow(`SELECT started_at FROM task_starts WHERE participant_id = ?`, pid)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logErr("get task start", err)
		}
		return time.Time{}, false
	}
	return parseTime(raw), true
}

func (s *SQLiteStore) SetTaskStart(pid string, at time.Time) {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO task_starts (participant_id, started_at) VALUES (?, ?)`, pid, formatTime(at))
	s.logErr("set task start", err)
}

func (s *SQLiteStore) AddChatTurn(pid string, t api.ChatTurn) {
	_, err := s.db.Exec(
		`INSERT INTO chat_turns (participant_id, query, text, created_at) VALUES (?, ?, ?, ?)`,
		pid, t.Query, t.Text, formatTime(t.CreatedAt),
	)
	s.logErr("add chat turn", err)
}

func (s *SQLiteStore) ListChatTurns(pid string) []api.ChatTurn {
	rows, err := s.db.Query(
		`SELECT query, text, created_at FROM chat_turns WHERE participant_id = ? ORDER BY id`, pid)
	if err != nil {
		s.logErr("list chat turns", err)
		return nil
	}
	defer func() { _ = rows.Close() }()
	var out []api.ChatTurn
	for rows.Next() {
		var (
			t         api.ChatTurn
			createdAt string
		)
		if err := rows.Scan(&t.Query, &t.Text, &createdAt); err != nil {
			s.logErr("scan chat turn", err)
			continue
		}
		t.CreatedAt = parseTime(createdAt)
		out = append(out, t)
	}
	s.logErr("list chat turns", rows.Err())
	return out
}

func (s *SQLiteStore) AddScrap(pid string, sc api.Scrap) {
	_, err := s.db.Exec(
		`INSERT INTO scraps (scrap_id, participant_id, title, snippet, link, display_link, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, pid, sc.Title, sc.Snippet, sc.Link, sc.DisplayLink, sc.Comment, formatTime(sc.CreatedAt),
	)
	s.logErr("add scrap", err)
}

func (s *SQLiteStore) ListScraps(pid string) []api.Scrap {
	rows, err := s.db.Query(
		`SELECT scrap_id, title, snippet, link, display_link, comment, created_at FROM scraps WHERE participant_id = ? ORDER BY id`, pid)
	if err != nil {
		s.logErr("list scraps", err)
		return nil
	}
	defer func() { _ = rows.Close() }()
	var out []api.Scrap
	for rows.Next() {
		var (
			sc        api.Scrap
			createdAt string
		)
		if err := rows.Scan(&sc.ID, &sc.Title, &sc.Snippet, &sc.Link, &sc.DisplayLink, &sc.Comment, &createdAt); err != nil {
			s.logErr("scan scrap", err)
			continue
		}
		sc.CreatedAt = parseTime(createdAt)
		out = append(out, sc)
	}
	s.logErr("list scraps", rows.Err())
	return out
}

func (s *SQLiteStore) SetScrapComment(pid, scrapID, comment string) bool {
	res, err := s.db.Exec(
		`UPDATE scraps SET comment = ? WHERE participant_id = ? AND scrap_id = ?`, comment, pid, scrapID)
	if err != nil {
		s.logErr("set scrap comment", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteStore) RemoveScrap(pid, scrapID string) {
	_, err := s.db.Exec(`DELETE FROM scraps WHERE participant_id = ? AND scrap_id = ?`, pid, scrapID)
	s.logErr("remove scrap", err)
}

func (s *SQLiteStore) AddSubmission(rec *api.SubmissionRecord) {
	_, err := s.db.Exec(
		`INSERT INTO submissions (id, participant_id, table_name, fields_json, status, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ParticipantID, rec.Table, rec.FieldsJSON, rec.Status, formatTime(rec.SubmittedAt),
	)
	s.logErr("add submission", err)
}

func (s *SQLiteStore) scanSubmissions(rows *sql.Rows) []*api.SubmissionRecord {
	defer func() { _ = rows.Close() }()
	var out []*api.SubmissionRecord
	for rows.Next() {
		var (
			rec         api.SubmissionRecord
			submittedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.ParticipantID, &rec.Table, &rec.FieldsJSON, &rec.Status, &submittedAt); err != nil {
			s.logErr("scan submission", err)
			continue
		}
		rec.SubmittedAt = parseTime(submittedAt)
		out = append(out, &rec)
	}
	s.logErr("list submissions", rows.Err())
	return out
}

func (s *SQLiteStore) ListSubmissions() []*api.SubmissionRecord {
	rows, err := s.db.Query(
		`SELECT id, participant_id, table_name, fields_json, status, submitted_at FROM submissions ORDER BY submitted_at`)
	if err != nil {
		s.logErr("list submissions", err)
		return nil
	}
	return s.scanSubmissions(rows)
}

func (s *SQLiteStore) ListSubmissionsByParticipant(pid string) []*api.SubmissionRecord {
	rows, err := s.db.Query(
		`SELECT id, participant_id, table_name, fields_json, status, submitted_at FROM submissions WHERE participant_id = ? ORDER BY submitted_at`, pid)
	if err != nil {
		s.logErr("list submissions by participant", err)
		return nil
	}
	return s.scanSubmissions(rows)
}

func (s *SQLiteStore) AddResearcher(r *api.Researcher) {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO researchers (id, email, pass_hash, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Email, r.PassHash, formatTime(r.CreatedAt),
	)
	s.logErr("add researcher", err)
}

func (s *SQLiteStore) FindResearcherByEmail(email string) *api.Researcher {
	row := s.db.QueryRow(`SELECT id, email, pass_hash, created_at FROM researchers WHERE email = ?`, email)
	var (
		r         api.Researcher
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.Email, &r.PassHash, &createdAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logErr("find researcher", err)
		}
		return nil
	}
	r.CreatedAt = parseTime(createdAt)
	return &r
}

func (s *SQLiteStore) DeleteParticipantData(pid string) bool {
	had := false
	for _, stmt := range []string{
		`DELETE FROM conditions WHERE participant_id = ?`,
		`DELETE FROM cache_entries WHERE participant_id = ?`,
		`DELETE FROM page_completions WHERE participant_id = ?`,
		`DELETE FROM task_starts WHERE participant_id = ?`,
		`DELETE FROM chat_turns WHERE participant_id = ?`,
		`DELETE FROM scraps WHERE participant_id = ?`,
		`DELETE FROM submissions WHERE participant_id = ?`,
		`DELETE FROM sessions WHERE participant_id = ?`,
	} {
		res, err := s.db.Exec(stmt, pid)
		if err != nil {
			s.logErr("delete participant data", err)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			had = true
		}
	}
	return had
}

func (s *SQLiteStore) AddAudit(e api.AuditEntry) {
	_, err := s.db.Exec(
		`INSERT INTO audit (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		formatTime(e.Time), e.Actor, e.Action, e.Target, e.Note,
	)
	s.logErr("add audit", err)
}

func (s *SQLiteStore) ListAudit() []api.AuditEntry {
	rows, err := s.db.Query(`SELECT time, actor, action, target, note FROM audit ORDER BY id`)
	if err != nil {
		s.logErr("list audit", err)
		return nil
	}
	defer func() { _ = rows.Close() }()
	var out []api.AuditEntry
	for rows.Next() {
		var (
			e   api.AuditEntry
			raw string
		)
		if err := rows.Scan(&raw, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			s.logErr("scan audit", err)
			continue
		}
		e.Time = parseTime(raw)
		out = append(out, e)
	}
	s.logErr("list audit", rows.Err())
	return out
}

var _ api.Store = (*SQLiteStore)(nil)
