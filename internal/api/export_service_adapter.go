package api

import "github.com/searchlab/studyflow/internal/services"

type exportStoreAdapter struct {
	store Store
}

func newExportStoreAdapter(store Store) services.ExportStore {
	return &exportStoreAdapter{store: store}
}

func toServiceSubmission(rec *SubmissionRecord) *services.SubmissionRecord {
	return &services.SubmissionRecord{
		ID:            rec.ID,
		ParticipantID: rec.ParticipantID,
		Table:         rec.Table,
		FieldsJSON:    rec.FieldsJSON,
		Status:        rec.Status,
		SubmittedAt:   rec.SubmittedAt,
	}
}

func (a *exportStoreAdapter) ListSubmissions() ([]*services.SubmissionRecord, error) {
	recs := a.store.ListSubmissions()
	out := make([]*services.SubmissionRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceSubmission(rec))
	}
	return out, nil
}

var _ services.ExportStore = (*exportStoreAdapter)(nil)
