package services

import (
	"math/rand"
	"strings"
	"time"

	"github.com/searchlab/studyflow/internal/study"
)

type ConditionStore interface {
	GetSession(participantID string) (*Session, error)
	GetCondition(participantID string) (*Condition, error)
	SetCondition(c *Condition) error
	AddAudit(entry AuditEntry)
}

// ConditionService assigns the experimental condition: a uniform coin flip
// between the two task interfaces and a uniform draw over the scenario set.
// Assignment happens once and is persisted before it is returned, so a
// reload never re-rolls.
type ConditionService struct {
	store     ConditionStore
	def       *study.Definition
	now       func() time.Time
	randFloat func() float64
	randIndex func(n int) int
}

func NewConditionService(store ConditionStore, def *study.Definition) *ConditionService {
	return &ConditionService{
		store:     store,
		def:       def,
		now:       func() time.Time { return time.Now().UTC() },
		randFloat: rand.Float64,
		randIndex: rand.Intn,
	}
}

// GetOrAssign returns the persisted condition when present, otherwise draws
// and persists a new one. Idempotent.
func (s *ConditionService) GetOrAssign(participantID string) (*Condition, error) {
	if strings.TrimSpace(participantID) == "" {
		return nil, NewInvalidError("participant_id required")
	}
	sess, err := s.store.GetSession(participantID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	existing, err := s.store.GetCondition(participantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	systemType := SystemSearch
	if s.randFloat() >= 0.5 {
		systemType = SystemGenAI
	}
	sc := s.def.Scenarios[s.randIndex(len(s.def.Scenarios))]
	cond := &Condition{
		ParticipantID: participantID,
		SystemType:    systemType,
		ScenarioID:    sc.ID,
		ScenarioText:  sc.Case,
		TaskText:      sc.Task,
		AssignedAt:    s.now(),
	}
	if err := s.store.SetCondition(cond); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: "system", Action: "condition_assign", Target: participantID, Note: systemType + "/" + sc.ID})
	return cond, nil
}
