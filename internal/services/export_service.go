package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/searchlab/studyflow/internal/study"
)

type ExportStore interface {
	ListSubmissions() ([]*SubmissionRecord, error)
}

// ExportService renders the local submission journal for analysis. The
// record store remains the primary copy; these exports are the audit view.
type ExportService struct {
	store ExportStore
	def   *study.Definition
}

func NewExportService(store ExportStore, def *study.Definition) *ExportService {
	return &ExportService{store: store, def: def}
}

// SubmissionsCSV is the long export: every write attempt, including
// duplicates and failures.
func (s *ExportService) SubmissionsCSV() ([]byte, error) {
	subs, err := s.store.ListSubmissions()
	if err != nil {
		return nil, err
	}
	rows := make([]SubmissionRow, 0, len(subs))
	for _, rec := range subs {
		rows = append(rows, SubmissionRow{
			ParticipantID: rec.ParticipantID,
			Table:         rec.Table,
			Status:        rec.Status,
			SubmittedAt:   rec.SubmittedAt.Format(time.RFC3339),
			Fields:        rec.FieldsJSON,
		})
	}
	return ExportSubmissionsCSV(rows)
}

// TableCSV is the wide export for one table: a row per participant with a
// column per field, taking each participant's latest successful write.
func (s *ExportService) TableCSV(table string) ([]byte, error) {
	subs, err := s.store.ListSubmissions()
	if err != nil {
		return nil, err
	}
	latest := map[string]*SubmissionRecord{}
	for _, rec := range subs {
		if rec.Table != table || rec.Status == SubmissionFailed {
			continue
		}
		prev, ok := latest[rec.ParticipantID]
		if !ok || rec.SubmittedAt.After(prev.SubmittedAt) {
			latest[rec.ParticipantID] = rec
		}
	}
	inputs := map[string]map[string]string{}
	for pid, rec := range latest {
		var fields map[string]any
		if err := json.Unmarshal([]byte(rec.FieldsJSON), &fields); err != nil {
			continue
		}
		row := map[string]string{}
		for k, v := range fields {
			if k == "participant_id" {
				continue
			}
			row[k] = fmt.Sprintf("%v", v)
		}
		inputs[pid] = row
	}
	return ExportWideCSV(inputs)
}

// SectionScoreCSV sums one survey section per participant, applying
// reverse scoring to the items the study marks reversed.
func (s *ExportService) SectionScoreCSV(pageName, sectionKey string) ([]byte, error) {
	pg := s.def.Page(pageName)
	if pg == nil {
		return nil, NewNotFoundError("unknown page: " + pageName)
	}
	var sec *study.Section
	for i := range pg.Sections {
		if pg.Sections[i].Key == sectionKey {
			sec = &pg.Sections[i]
			break
		}
	}
	if sec == nil {
		return nil, NewNotFoundError("unknown section: " + sectionKey)
	}
	reversed := map[int]bool{}
	for _, idx := range sec.Reverse {
		reversed[idx] = true
	}

	subs, err := s.store.ListSubmissions()
	if err != nil {
		return nil, err
	}
	scores := map[string][]int{}
	for _, rec := range subs {
		if rec.Table != pg.Table || rec.Status == SubmissionFailed {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(rec.FieldsJSON), &fields); err != nil {
			continue
		}
		raw, _ := fields[sec.Field].(string)
		var answers map[string]any
		if json.Unmarshal([]byte(raw), &answers) != nil {
			continue
		}
		topic, _ := fields["Task_type"].(string)

		vals := make([]int, 0, len(sec.Questions))
		for i, q := range sec.Questions {
			v, ok := answers[study.Interpolate(q, topic)].(float64)
			if !ok {
				continue
			}
			score := int(v)
			if reversed[i+1] {
				score = ReverseScore(score, sec.Points)
			}
			vals = append(vals, score)
		}
		scores[rec.ParticipantID] = vals
	}
	return ExportScoreCSV(scores)
}
