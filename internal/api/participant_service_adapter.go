package api

import "github.com/searchlab/studyflow/internal/services"

type participantStoreAdapter struct {
	store Store
	task  services.TaskStore
}

func newParticipantStoreAdapter(store Store) services.ParticipantStore {
	return &participantStoreAdapter{store: store, task: newTaskStoreAdapter(store)}
}

func (a *participantStoreAdapter) GetSession(pid string) (*services.Session, error) {
	return toServiceSession(a.store.GetSession(pid)), nil
}

func (a *participantStoreAdapter) GetCondition(pid string) (*services.Condition, error) {
	return toServiceCondition(a.store.GetCondition(pid)), nil
}

func (a *participantStoreAdapter) ListSubmissionsByParticipant(pid string) ([]*services.SubmissionRecord, error) {
	recs := a.store.ListSubmissionsByParticipant(pid)
	out := make([]*services.SubmissionRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceSubmission(rec))
	}
	return out, nil
}

func (a *participantStoreAdapter) ListChatTurns(pid string) ([]services.ChatTurn, error) {
	return a.task.ListChatTurns(pid)
}

func (a *participantStoreAdapter) ListScraps(pid string) ([]services.Scrap, error) {
	return a.task.ListScraps(pid)
}

func (a *participantStoreAdapter) DeleteParticipantData(pid string) (bool, error) {
	return a.store.DeleteParticipantData(pid), nil
}

func (a *participantStoreAdapter) AddAudit(e services.AuditEntry) {
	a.store.AddAudit(AuditEntry{Time: e.Time, Actor: e.Actor, Action: e.Action, Target: e.Target, Note: e.Note})
}

var _ services.ParticipantStore = (*participantStoreAdapter)(nil)
