package api

import "github.com/searchlab/studyflow/internal/services"

type sessionStoreAdapter struct {
	store Store
}

func newSessionStoreAdapter(store Store) services.SessionStore {
	return &sessionStoreAdapter{store: store}
}

func toServiceSession(s *Session) *services.Session {
	if s == nil {
		return nil
	}
	return &services.Session{ParticipantID: s.ParticipantID, HasParticipated: s.HasParticipated, CreatedAt: s.CreatedAt}
}

func (a *sessionStoreAdapter) GetSession(id string) (*services.Session, error) {
	return toServiceSession(a.store.GetSession(id)), nil
}

func (a *sessionStoreAdapter) AddSession(s *services.Session) error {
	if s == nil {
		return services.NewInvalidError("session required")
	}
	a.store.AddSession(&Session{ParticipantID: s.ParticipantID, HasParticipated: s.HasParticipated, CreatedAt: s.CreatedAt})
	return nil
}

func (a *sessionStoreAdapter) SetParticipated(id string) (bool, error) {
	return a.store.SetParticipated(id), nil
}

func (a *sessionStoreAdapter) AddAudit(e services.AuditEntry) {
	a.store.AddAudit(AuditEntry{Time: e.Time, Actor: e.Actor, Action: e.Action, Target: e.Target, Note: e.Note})
}

var _ services.SessionStore = (*sessionStoreAdapter)(nil)
