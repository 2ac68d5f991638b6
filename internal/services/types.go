package services

import "time"

// Session is one browser's run through the study.
type Session struct {
	ParticipantID   string    `json:"participant_id"`
	HasParticipated bool      `json:"has_participated"`
	CreatedAt       time.Time `json:"created_at"`
}

// Assigned task interfaces.
const (
	SystemSearch = "search"
	SystemGenAI  = "genai"
)

// Condition is the randomized treatment pinned to a session.
type Condition struct {
	ParticipantID string    `json:"participant_id"`
	SystemType    string    `json:"system_type"`
	ScenarioID    string    `json:"scenario_id"`
	ScenarioText  string    `json:"scenario_text"`
	TaskText      string    `json:"task_text"`
	AssignedAt    time.Time `json:"assigned_at"`
}

// SearchResult is the uniform result shape both task interfaces produce.
type SearchResult struct {
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Link        string `json:"link"`
	DisplayLink string `json:"display_link,omitempty"`
}

// ChatTurn is one query/completion pair in the genai transcript.
type ChatTurn struct {
	Query     string    `json:"query"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Scrap is a result the participant collected into the scrapbook, with notes.
// Generated answers carry no link, so scraps are keyed by a generated ID.
type Scrap struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Link        string    `json:"link,omitempty"`
	DisplayLink string    `json:"display_link,omitempty"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}

// Submission statuses recorded in the local journal.
const (
	SubmissionCreated   = "created"
	SubmissionDuplicate = "duplicate"
	SubmissionFailed    = "failed"
)

// SubmissionRecord mirrors one outbound record-store write.
type SubmissionRecord struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Table         string    `json:"table"`
	FieldsJSON    string    `json:"fields_json"`
	Status        string    `json:"status"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Researcher is a study-team account allowed to export collected data.
type Researcher struct {
	ID        string
	Email     string
	PassHash  []byte
	CreatedAt time.Time
}

type AuditEntry struct {
	Time   time.Time
	Actor  string
	Action string
	Target string
	Note   string
}

// Cache is the participant-scoped key/value storage port. Values are opaque
// strings; callers serialize structured values themselves.
type Cache interface {
	CacheGet(participantID, key string) (string, bool, error)
	CacheSet(participantID, key, value string) error
	CacheRemove(participantID, key string) error
}
