package api

import "github.com/searchlab/studyflow/internal/services"

type flowStoreAdapter struct {
	store Store
}

func newFlowStoreAdapter(store Store) services.FlowStore {
	return &flowStoreAdapter{store: store}
}

func (a *flowStoreAdapter) GetSession(id string) (*services.Session, error) {
	return toServiceSession(a.store.GetSession(id)), nil
}

func (a *flowStoreAdapter) GetCondition(pid string) (*services.Condition, error) {
	return toServiceCondition(a.store.GetCondition(pid)), nil
}

func (a *flowStoreAdapter) IsPageComplete(pid, page string) (bool, error) {
	return a.store.IsPageComplete(pid, page), nil
}

func (a *flowStoreAdapter) MarkPageComplete(pid, page string) error {
	a.store.MarkPageComplete(pid, page)
	return nil
}

func (a *flowStoreAdapter) AddSubmission(rec *services.SubmissionRecord) error {
	if rec == nil {
		return services.NewInvalidError("submission required")
	}
	a.store.AddSubmission(&SubmissionRecord{
		ID:            rec.ID,
		ParticipantID: rec.ParticipantID,
		Table:         rec.Table,
		FieldsJSON:    rec.FieldsJSON,
		Status:        rec.Status,
		SubmittedAt:   rec.SubmittedAt,
	})
	return nil
}

func (a *flowStoreAdapter) AddAudit(e services.AuditEntry) {
	a.store.AddAudit(AuditEntry{Time: e.Time, Actor: e.Actor, Action: e.Action, Target: e.Target, Note: e.Note})
}

var _ services.FlowStore = (*flowStoreAdapter)(nil)

// cacheAdapter exposes the store's participant-scoped key/value entries as
// the services cache port.
type cacheAdapter struct {
	store Store
}

func newCacheAdapter(store Store) services.Cache {
	return &cacheAdapter{store: store}
}

func (a *cacheAdapter) CacheGet(pid, key string) (string, bool, error) {
	v, ok := a.store.CacheGet(pid, key)
	return v, ok, nil
}

func (a *cacheAdapter) CacheSet(pid, key, value string) error {
	a.store.CacheSet(pid, key, value)
	return nil
}

func (a *cacheAdapter) CacheRemove(pid, key string) error {
	a.store.CacheRemove(pid, key)
	return nil
}

var _ services.Cache = (*cacheAdapter)(nil)
