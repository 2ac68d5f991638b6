package api

import (
	"sync"
	"time"
)

type Session struct {
	ParticipantID   string    `json:"participant_id"`
	HasParticipated bool      `json:"has_participated"`
	CreatedAt       time.Time `json:"created_at"`
}

type Condition struct {
	ParticipantID string    `json:"participant_id"`
	SystemType    string    `json:"system_type"`
	ScenarioID    string    `json:"scenario_id"`
	ScenarioText  string    `json:"scenario_text"`
	TaskText      string    `json:"task_text"`
	AssignedAt    time.Time `json:"assigned_at"`
}

type ChatTurn struct {
	Query     string    `json:"query"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Scrap struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Link        string    `json:"link,omitempty"`
	DisplayLink string    `json:"display_link,omitempty"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}

type SubmissionRecord struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Table         string    `json:"table"`
	FieldsJSON    string    `json:"fields_json"`
	Status        string    `json:"status"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

type Researcher struct {
	ID        string
	Email     string
	PassHash  []byte
	CreatedAt time.Time
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}

type memoryStore struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	conditions    map[string]*Condition
	cache         map[string]map[string]string
	completions   map[string]map[string]bool
	taskStarts    map[string]time.Time
	chatTurns     map[string][]ChatTurn
	scraps        map[string][]Scrap
	submissions   []*SubmissionRecord
	researchersBy map[string]*Researcher
	audit         []AuditEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions:      map[string]*Session{},
		conditions:    map[string]*Condition{},
		cache:         map[string]map[string]string{},
		completions:   map[string]map[string]bool{},
		taskStarts:    map[string]time.Time{},
		chatTurns:     map[string][]ChatTurn{},
		scraps:        map[string][]Scrap{},
		submissions:   []*SubmissionRecord{},
		researchersBy: map[string]*Researcher{},
		audit:         []AuditEntry{},
	}
}

func (s *memoryStore) AddSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ParticipantID] = sess
}

func (s *memoryStore) GetSession(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[id]; ok {
		cp := *sess
		return &cp
	}
	return nil
}

func (s *memoryStore) SetParticipated(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.HasParticipated = true
	return true
}

func (s *memoryStore) SetCondition(c *Condition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conditions[c.ParticipantID] = c
}

func (s *memoryStore) GetCondition(pid string) *Condition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.conditions[pid]; ok {
		cp := *c
		return &cp
	}
	return nil
}

func (s *memoryStore) CacheGet(pid, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[pid][key]
	return v, ok
}

func (s *memoryStore) CacheSet(pid, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache[pid] == nil {
		s.cache[pid] = map[string]string{}
	}
	s.cache[pid][key] = value
}

func (s *memoryStore) CacheRemove(pid, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache[pid], key)
}

func (s *memoryStore) IsPageComplete(pid, page string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completions[pid][page]
}

func (s *memoryStore) MarkPageComplete(pid, page string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completions[pid] == nil {
		s.completions[pid] = map[string]bool{}
	}
	s.completions[pid][page] = true
}

func (s *memoryStore) GetTaskStart(pid string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.taskStarts[pid]
	return at, ok
}

func (s *memoryStore) SetTaskStart(pid string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskStarts[pid] = at
}

func (s *memoryStore) AddChatTurn(pid string, t ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatTurns[pid] = append(s.chatTurns[pid], t)
}

func (s *memoryStore) ListChatTurns(pid string) []ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChatTurn(nil), s.chatTurns[pid]...)
}

func (s *memoryStore) AddScrap(pid string, sc Scrap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scraps[pid] = append(s.scraps[pid], sc)
}

func (s *memoryStore) ListScraps(pid string) []Scrap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Scrap(nil), s.scraps[pid]...)
}

func (s *memoryStore) SetScrapComment(pid, scrapID, comment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.scraps[pid] {
		if s.scraps[pid][i].ID == scrapID {
			s.scraps[pid][i].Comment = comment
			return true
		}
	}
	return false
}

func (s *memoryStore) RemoveScrap(pid, scrapID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.scraps[pid][:0]
	for _, sc := range s.scraps[pid] {
		if sc.ID != scrapID {
			kept = append(kept, sc)
		}
	}
	s.scraps[pid] = kept
}

func (s *memoryStore) AddSubmission(rec *SubmissionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, rec)
}

func (s *memoryStore) ListSubmissions() []*SubmissionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*SubmissionRecord(nil), s.submissions...)
}

func (s *memoryStore) ListSubmissionsByParticipant(pid string) []*SubmissionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*SubmissionRecord{}
	for _, rec := range s.submissions {
		if rec.ParticipantID == pid {
			out = append(out, rec)
		}
	}
	return out
}

func (s *memoryStore) AddResearcher(r *Researcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.researchersBy[r.Email] = r
}

func (s *memoryStore) FindResearcherByEmail(email string) *Researcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.researchersBy[email]
}

func (s *memoryStore) DeleteParticipantData(pid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, had := s.sessions[pid]
	delete(s.sessions, pid)
	delete(s.conditions, pid)
	delete(s.cache, pid)
	delete(s.completions, pid)
	delete(s.taskStarts, pid)
	delete(s.chatTurns, pid)
	delete(s.scraps, pid)
	kept := s.submissions[:0]
	for _, rec := range s.submissions {
		if rec.ParticipantID != pid {
			kept = append(kept, rec)
		} else {
			had = true
		}
	}
	s.submissions = kept
	return had
}

func (s *memoryStore) AddAudit(e AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
}

func (s *memoryStore) ListAudit() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuditEntry(nil), s.audit...)
}

// NewMemoryStore returns the in-process Store used when no database path
// is configured.
func NewMemoryStore() Store { return newMemoryStore() }
