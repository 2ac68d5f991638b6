package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SearchClient is the web-search port for the search condition.
type SearchClient interface {
	Search(ctx context.Context, query string, start int) ([]SearchResult, string, error)
}

// TextGenerator is the response-generation port for the genai condition.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type TaskStore interface {
	GetCondition(participantID string) (*Condition, error)
	GetTaskStart(participantID string) (time.Time, bool, error)
	SetTaskStart(participantID string, at time.Time) error
	AddChatTurn(participantID string, turn ChatTurn) error
	ListChatTurns(participantID string) ([]ChatTurn, error)
	AddScrap(participantID string, scrap Scrap) error
	ListScraps(participantID string) ([]Scrap, error)
	SetScrapComment(participantID, scrapID, comment string) error
	RemoveScrap(participantID, scrapID string) error
}

// TaskService runs the assigned information task: the search condition
// queries the web-search port page by page, the genai condition holds an
// append-only chat transcript, and both share the dwell timer and the
// scrapbook.
type TaskService struct {
	store  TaskStore
	search SearchClient
	gen    TextGenerator
	dwell  time.Duration
	now    func() time.Time
	idGen  func() string

	// querying holds one in-flight query per participant. A second query
	// while one is running is rejected rather than queued.
	mu       sync.Mutex
	querying map[string]bool
}

func NewTaskService(store TaskStore, search SearchClient, gen TextGenerator, minDwellSeconds int) *TaskService {
	return &TaskService{
		store:    store,
		search:   search,
		gen:      gen,
		dwell:    time.Duration(minDwellSeconds) * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
		querying: map[string]bool{},
	}
}

// TaskView is what the task page needs to render.
type TaskView struct {
	SystemType   string    `json:"system_type"`
	ScenarioID   string    `json:"scenario_id"`
	ScenarioText string    `json:"scenario_text"`
	TaskText     string    `json:"task_text"`
	StartedAt    time.Time `json:"started_at"`
	DwellSeconds int       `json:"dwell_seconds"`
}

// Start opens the task for a participant. The first call pins the dwell
// timer's start; later calls return the same view with the original start,
// so a reload never resets the clock.
func (s *TaskService) Start(participantID string) (*TaskView, error) {
	cond, err := s.store.GetCondition(participantID)
	if err != nil {
		return nil, err
	}
	if cond == nil {
		return nil, NewNotFoundError("no condition assigned")
	}
	startedAt, ok, err := s.store.GetTaskStart(participantID)
	if err != nil {
		return nil, err
	}
	if !ok {
		startedAt = s.now()
		if err := s.store.SetTaskStart(participantID, startedAt); err != nil {
			return nil, err
		}
	}
	return &TaskView{
		SystemType:   cond.SystemType,
		ScenarioID:   cond.ScenarioID,
		ScenarioText: cond.ScenarioText,
		TaskText:     cond.TaskText,
		StartedAt:    startedAt,
		DwellSeconds: int(s.dwell / time.Second),
	}, nil
}

// TaskStatus reports the dwell timer.
type TaskStatus struct {
	ElapsedSeconds   int  `json:"elapsed_seconds"`
	RemainingSeconds int  `json:"remaining_seconds"`
	CanProceed       bool `json:"can_proceed"`
}

// Status computes elapsed time against the persisted start. CanProceed
// flips once the full dwell has passed; before Start it is always false.
func (s *TaskService) Status(participantID string) (*TaskStatus, error) {
	startedAt, ok, err := s.store.GetTaskStart(participantID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &TaskStatus{RemainingSeconds: int(s.dwell / time.Second)}, nil
	}
	elapsed := s.now().Sub(startedAt)
	remaining := s.dwell - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return &TaskStatus{
		ElapsedSeconds:   int(elapsed / time.Second),
		RemainingSeconds: int((remaining + time.Second - 1) / time.Second),
		CanProceed:       elapsed >= s.dwell,
	}, nil
}

// GateExit rejects leaving the task page before the dwell has elapsed.
func (s *TaskService) GateExit(participantID string) error {
	st, err := s.Status(participantID)
	if err != nil {
		return err
	}
	if !st.CanProceed {
		return NewForbiddenError(fmt.Sprintf("task time not met: %d seconds remaining", st.RemainingSeconds))
	}
	return nil
}

// QueryResult carries the outcome for whichever condition ran.
type QueryResult struct {
	Mode         string         `json:"mode"`
	Results      []SearchResult `json:"results,omitempty"`
	TotalResults string         `json:"total_results,omitempty"`
	Start        int            `json:"start,omitempty"`
	Transcript   []ChatTurn     `json:"transcript,omitempty"`
}

// Query runs one query under the participant's condition. While a query is
// in flight, further queries for the same participant are rejected with a
// conflict instead of being queued behind it.
func (s *TaskService) Query(ctx context.Context, participantID, query string, start int) (*QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, NewInvalidError("query required")
	}
	cond, err := s.store.GetCondition(participantID)
	if err != nil {
		return nil, err
	}
	if cond == nil {
		return nil, NewNotFoundError("no condition assigned")
	}

	s.mu.Lock()
	if s.querying[participantID] {
		s.mu.Unlock()
		return nil, NewConflictError("a query is already running")
	}
	s.querying[participantID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.querying, participantID)
		s.mu.Unlock()
	}()

	switch cond.SystemType {
	case SystemSearch:
		if start < 1 {
			start = 1
		}
		results, total, err := s.search.Search(ctx, query, start)
		if err != nil {
			return nil, err
		}
		return &QueryResult{Mode: SystemSearch, Results: results, TotalResults: total, Start: start}, nil
	case SystemGenAI:
		prompt := composePrompt(cond.ScenarioText, cond.TaskText, query)
		text, err := s.gen.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		turn := ChatTurn{Query: query, Text: text, CreatedAt: s.now()}
		if err := s.store.AddChatTurn(participantID, turn); err != nil {
			return nil, err
		}
		transcript, err := s.store.ListChatTurns(participantID)
		if err != nil {
			return nil, err
		}
		return &QueryResult{Mode: SystemGenAI, Transcript: transcript}, nil
	default:
		return nil, NewInvalidError("unknown system type: " + cond.SystemType)
	}
}

// composePrompt frames every user query with the assigned scenario and task
// so the generator answers in context.
func composePrompt(scenario, task, query string) string {
	return fmt.Sprintf("Scenario:\n%s\n\nTask:\n%s\n\nUser query:\n%s", scenario, task, query)
}

// Transcript returns the accumulated chat turns.
func (s *TaskService) Transcript(participantID string) ([]ChatTurn, error) {
	return s.store.ListChatTurns(participantID)
}

// SaveScrap adds one collected item to the scrapbook under a generated ID.
// A linked result saved twice is a no-op; generated answers have no link
// and every save collects a new entry.
func (s *TaskService) SaveScrap(participantID string, scrap Scrap) ([]Scrap, error) {
	if strings.TrimSpace(scrap.Title) == "" && strings.TrimSpace(scrap.Snippet) == "" {
		return nil, NewInvalidError("scrap content required")
	}
	existing, err := s.store.ListScraps(participantID)
	if err != nil {
		return nil, err
	}
	if scrap.Link != "" {
		for _, sc := range existing {
			if sc.Link == scrap.Link {
				return existing, nil
			}
		}
	}
	scrap.ID = s.idGen()
	scrap.CreatedAt = s.now()
	if err := s.store.AddScrap(participantID, scrap); err != nil {
		return nil, err
	}
	return s.store.ListScraps(participantID)
}

// AnnotateScrap sets or replaces the participant's note on a saved item.
func (s *TaskService) AnnotateScrap(participantID, scrapID, comment string) ([]Scrap, error) {
	if strings.TrimSpace(scrapID) == "" {
		return nil, NewInvalidError("scrap id required")
	}
	if err := s.store.SetScrapComment(participantID, scrapID, comment); err != nil {
		return nil, err
	}
	return s.store.ListScraps(participantID)
}

// RemoveScrap drops a saved item from the scrapbook.
func (s *TaskService) RemoveScrap(participantID, scrapID string) ([]Scrap, error) {
	if err := s.store.RemoveScrap(participantID, scrapID); err != nil {
		return nil, err
	}
	return s.store.ListScraps(participantID)
}

// Scrapbook lists the saved items in save order.
func (s *TaskService) Scrapbook(participantID string) ([]Scrap, error) {
	return s.store.ListScraps(participantID)
}
