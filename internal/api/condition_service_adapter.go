package api

import "github.com/searchlab/studyflow/internal/services"

type conditionStoreAdapter struct {
	store Store
}

func newConditionStoreAdapter(store Store) services.ConditionStore {
	return &conditionStoreAdapter{store: store}
}

func toServiceCondition(c *Condition) *services.Condition {
	if c == nil {
		return nil
	}
	return &services.Condition{
		ParticipantID: c.ParticipantID,
		SystemType:    c.SystemType,
		ScenarioID:    c.ScenarioID,
		ScenarioText:  c.ScenarioText,
		TaskText:      c.TaskText,
		AssignedAt:    c.AssignedAt,
	}
}

func (a *conditionStoreAdapter) GetSession(id string) (*services.Session, error) {
	return toServiceSession(a.store.GetSession(id)), nil
}

func (a *conditionStoreAdapter) GetCondition(pid string) (*services.Condition, error) {
	return toServiceCondition(a.store.GetCondition(pid)), nil
}

func (a *conditionStoreAdapter) SetCondition(c *services.Condition) error {
	if c == nil {
		return services.NewInvalidError("condition required")
	}
	a.store.SetCondition(&Condition{
		ParticipantID: c.ParticipantID,
		SystemType:    c.SystemType,
		ScenarioID:    c.ScenarioID,
		ScenarioText:  c.ScenarioText,
		TaskText:      c.TaskText,
		AssignedAt:    c.AssignedAt,
	})
	return nil
}

func (a *conditionStoreAdapter) AddAudit(e services.AuditEntry) {
	a.store.AddAudit(AuditEntry{Time: e.Time, Actor: e.Actor, Action: e.Action, Target: e.Target, Note: e.Note})
}

var _ services.ConditionStore = (*conditionStoreAdapter)(nil)
