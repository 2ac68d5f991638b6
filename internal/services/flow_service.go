package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/searchlab/studyflow/internal/study"
)

type FlowStore interface {
	GetSession(participantID string) (*Session, error)
	GetCondition(participantID string) (*Condition, error)
	IsPageComplete(participantID, page string) (bool, error)
	MarkPageComplete(participantID, page string) error
	AddSubmission(rec *SubmissionRecord) error
	AddAudit(entry AuditEntry)
}

// FlowService enforces the fixed linear page order with entry guards,
// required-field validation on exit, and exactly-one-write submission.
type FlowService struct {
	store  FlowStore
	forms  *FormStateService
	writer RecordWriter
	def    *study.Definition
	now    func() time.Time
	idGen  func() string

	// submitting guards against double submission per participant+page.
	// Held only for the in-flight request; cleared on every exit.
	mu         sync.Mutex
	submitting map[string]bool
}

func NewFlowService(store FlowStore, forms *FormStateService, writer RecordWriter, def *study.Definition) *FlowService {
	return &FlowService{
		store:      store,
		forms:      forms,
		writer:     writer,
		def:        def,
		now:        func() time.Time { return time.Now().UTC() },
		idGen:      func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
		submitting: map[string]bool{},
	}
}

// EnterResult tells the client whether the page may render or where to go
// instead.
type EnterResult struct {
	OK         bool   `json:"ok"`
	RedirectTo string `json:"redirect_to,omitempty"`
	Progress   int    `json:"progress"`
}

// Enter verifies the page's preconditions: a known session, a pinned
// condition for pages past the assignment step, and completion of every
// earlier submitting page. Violations redirect to the earliest page that
// can re-establish the missing state.
func (s *FlowService) Enter(participantID, page string) (*EnterResult, error) {
	idx := s.def.PageIndex(page)
	if idx < 0 {
		return nil, NewNotFoundError("unknown page: " + page)
	}
	redirect := func(to string) *EnterResult {
		return &EnterResult{RedirectTo: to, Progress: s.def.ProgressFor(to)}
	}

	if s.def.Pages[idx].Name == "check" {
		return &EnterResult{OK: true, Progress: s.def.ProgressFor(page)}, nil
	}

	sess, err := s.store.GetSession(participantID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return redirect("check"), nil
	}

	// The earliest unmet prerequisite wins: an unsubmitted earlier page
	// first, then the condition requirement for pages past the task.
	for i := 0; i < idx; i++ {
		prior := s.def.Pages[i]
		if prior.Table == "" {
			continue
		}
		done, err := s.store.IsPageComplete(participantID, prior.Name)
		if err != nil {
			return nil, err
		}
		if !done {
			return redirect(prior.Name), nil
		}
	}

	taskIdx := s.def.PageIndex("task")
	if taskIdx >= 0 && idx > taskIdx {
		cond, err := s.store.GetCondition(participantID)
		if err != nil {
			return nil, err
		}
		if cond == nil {
			return redirect("task"), nil
		}
	}
	return &EnterResult{OK: true, Progress: s.def.ProgressFor(page)}, nil
}

// SubmitResult is the outcome of an exit attempt.
type SubmitResult struct {
	Status      string   `json:"status"` // "advanced", "incomplete", "declined"
	NextPage    string   `json:"next_page,omitempty"`
	Progress    int      `json:"progress"`
	MissingKeys []string `json:"missing_keys,omitempty"`
	// Duplicate is set when the duplicate-guarded insert found an existing
	// record and performed no write.
	Duplicate bool `json:"duplicate,omitempty"`
}

const (
	SubmitAdvanced   = "advanced"
	SubmitIncomplete = "incomplete"
	SubmitDeclined   = "declined"
)

// Submit validates required fields and, unless the client asked to proceed
// with a partial answer set, reports the unanswered keys without writing.
// A confirmed exit performs exactly one remote write; on failure the page
// stays current and the latch is cleared so a manual retry is possible.
func (s *FlowService) Submit(ctx context.Context, participantID, page string, answers map[string]any, confirmPartial bool) (*SubmitResult, error) {
	pg := s.def.Page(page)
	if pg == nil {
		return nil, NewNotFoundError("unknown page: " + page)
	}
	sess, err := s.store.GetSession(participantID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	if answers == nil {
		answers = map[string]any{}
	}

	if missing := MissingKeys(pg.RequiredKeys(), answers); len(missing) > 0 && !confirmPartial {
		return &SubmitResult{Status: SubmitIncomplete, MissingKeys: missing, Progress: s.def.ProgressFor(page)}, nil
	}

	if pg.Table == "" {
		// Pages without a table advance without a remote write.
		return s.advance(participantID, pg, false)
	}

	latch := participantID + "|" + pg.Name
	s.mu.Lock()
	if s.submitting[latch] {
		s.mu.Unlock()
		return nil, NewConflictError("submission already in progress")
	}
	s.submitting[latch] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.submitting, latch)
		s.mu.Unlock()
	}()

	fields, err := s.buildFields(participantID, pg, answers)
	if err != nil {
		return nil, err
	}

	duplicate := false
	if pg.UniqueKey != "" {
		keyValue, _ := fields[pg.UniqueKey].(string)
		err = s.writer.CreateUnique(ctx, pg.Table, pg.UniqueKey, keyValue, fields)
		if errors.Is(err, ErrDuplicateRecord) {
			duplicate = true
			err = nil
		}
	} else {
		err = s.writer.Create(ctx, pg.Table, fields)
	}

	status := SubmissionCreated
	if duplicate {
		status = SubmissionDuplicate
	}
	if err != nil {
		status = SubmissionFailed
	}
	s.journal(participantID, pg.Table, fields, status)

	if err != nil {
		return nil, err
	}

	if err := s.forms.Clear(participantID, pg.Name); err != nil {
		// The submission already succeeded; a stale cache entry only means a
		// revisit restores old values.
		s.store.AddAudit(AuditEntry{Time: s.now(), Actor: "system", Action: "cache_clear_failed", Target: participantID, Note: pg.Name})
	}

	res, err := s.advance(participantID, pg, answersDecline(pg, answers))
	if err != nil {
		return nil, err
	}
	res.Duplicate = duplicate
	return res, nil
}

// answersDecline reports whether a consent page's answers withhold consent.
func answersDecline(pg *study.Page, answers map[string]any) bool {
	if pg.Name != "consent" {
		return false
	}
	v, _ := answers["consent"].(string)
	return strings.EqualFold(v, "no")
}

func (s *FlowService) advance(participantID string, pg *study.Page, declined bool) (*SubmitResult, error) {
	if declined {
		// A declined consent is recorded but the flow jumps to the terminal
		// page without marking consent complete, so the task guard holds.
		return &SubmitResult{Status: SubmitDeclined, NextPage: "thankyou", Progress: s.def.ProgressFor("thankyou")}, nil
	}
	if pg.Table != "" {
		if err := s.store.MarkPageComplete(participantID, pg.Name); err != nil {
			return nil, err
		}
	}
	next := s.def.NextPage(pg.Name)
	progress := s.def.ProgressFor(pg.Name)
	if next != "" {
		progress = s.def.ProgressFor(next)
	}
	return &SubmitResult{Status: SubmitAdvanced, NextPage: next, Progress: progress}, nil
}

// buildFields maps a page's answers into the record-store field shape:
// scalar keys copied as-is, sections serialized to JSON text, plus the
// participant and condition columns each table expects.
func (s *FlowService) buildFields(participantID string, pg *study.Page, answers map[string]any) (map[string]any, error) {
	fields := map[string]any{"participant_id": participantID}

	var cond *Condition
	if len(pg.Sections) > 0 || pg.Name == "demographic" || pg.Name == "experiment" {
		var err error
		cond, err = s.store.GetCondition(participantID)
		if err != nil {
			return nil, err
		}
	}

	for _, key := range pg.Fields {
		if v, ok := answers[key]; ok {
			fields[key] = v
		}
	}

	for _, sec := range pg.Sections {
		section := map[string]any{}
		topic := ""
		if cond != nil {
			topic = cond.ScenarioID
		}
		for _, q := range sec.Questions {
			key := study.Interpolate(q, topic)
			if v, ok := answers[key]; ok && Answered(v) {
				section[key] = v
			} else if v, ok := answers[q]; ok && Answered(v) {
				// Uninterpolated key, as cached before the condition was known.
				section[key] = v
			}
		}
		raw, err := json.Marshal(section)
		if err != nil {
			return nil, NewInvalidError("answers not serializable: " + err.Error())
		}
		fields[sec.Field] = string(raw)
	}

	switch pg.Name {
	case "presurvey", "postsurvey":
		taskType := "unknown"
		if cond != nil && cond.ScenarioID != "" {
			taskType = cond.ScenarioID
		}
		fields["Task_type"] = taskType
	case "demographic":
		if cond != nil {
			fields["scenario"] = cond.ScenarioID
		}
	case "experiment":
		if cond != nil {
			fields["condition"] = cond.SystemType
		}
		// The task page persists its collected material as one JSON blob.
		blob, err := json.Marshal(answers)
		if err != nil {
			return nil, NewInvalidError("answers not serializable: " + err.Error())
		}
		fields["response_json"] = string(blob)
	}
	return fields, nil
}

func (s *FlowService) journal(participantID, table string, fields map[string]any, status string) {
	raw, err := json.Marshal(ScalarizeFields(fields))
	if err != nil {
		raw = []byte("{}")
	}
	rec := &SubmissionRecord{
		ID:            s.idGen(),
		ParticipantID: participantID,
		Table:         table,
		FieldsJSON:    string(raw),
		Status:        status,
		SubmittedAt:   s.now(),
	}
	if err := s.store.AddSubmission(rec); err != nil {
		s.store.AddAudit(AuditEntry{Time: s.now(), Actor: "system", Action: "journal_failed", Target: participantID, Note: table})
	}
}

// Pages describes the sequence for clients: names and progress values.
func (s *FlowService) Pages() []map[string]any {
	out := make([]map[string]any, 0, len(s.def.Pages))
	for _, p := range s.def.Pages {
		out = append(out, map[string]any{
			"name":     p.Name,
			"progress": s.def.ProgressFor(p.Name),
		})
	}
	return out
}
