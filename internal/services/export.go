package services

import (
	"bytes"
	"encoding/csv"
	"sort"
)

// SubmissionRow is one journal entry flattened for the long export.
type SubmissionRow struct {
	ParticipantID string
	Table         string
	Status        string
	SubmittedAt   string // ISO8601
	Fields        string // JSON as written to the record store
}

// ExportSubmissionsCSV renders the submission journal in long format, one
// row per write attempt.
func ExportSubmissionsCSV(rows []SubmissionRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"participant_id", "table", "status", "submitted_at", "fields"})
	for _, r := range rows {
		rec := []string{r.ParticipantID, r.Table, r.Status, r.SubmittedAt, r.Fields}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExportWideCSV renders a participant-per-row CSV with one column per
// field. inputs is a map[participantID]map[fieldHeader]value. Column and
// row order are sorted for stable output.
func ExportWideCSV(inputs map[string]map[string]string) ([]byte, error) {
	colSet := map[string]struct{}{}
	for _, m := range inputs {
		for col := range m {
			colSet[col] = struct{}{}
		}
	}
	cols := sortedKeys(colSet)
	pids := sortedKeys(inputs)

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(append([]string{"participant_id"}, cols...))
	for _, pid := range pids {
		row := make([]string, 0, 1+len(cols))
		row = append(row, pid)
		for _, col := range cols {
			row = append(row, inputs[pid][col])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportScoreCSV renders summed section scores per participant.
func ExportScoreCSV(inputs map[string][]int) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"participant_id", "total_score"})
	for _, pid := range sortedKeys(inputs) {
		sum := 0
		for _, v := range inputs[pid] {
			sum += v
		}
		if err := w.Write([]string{pid, itoa(sum)}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := false
	if i < 0 {
		neg = true
		i = -i
	}
	var b [20]byte
	bp := len(b)
	for i > 0 {
		bp--
		b[bp] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		bp--
		b[bp] = '-'
	}
	return string(b[bp:])
}
