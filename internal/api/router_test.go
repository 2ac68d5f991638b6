package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/searchlab/studyflow/internal/middleware"
	"github.com/searchlab/studyflow/internal/services"
	"github.com/searchlab/studyflow/internal/study"
)

type journalWriter struct {
	mu     sync.Mutex
	tables []string
}

func (w *journalWriter) Create(_ context.Context, table string, _ map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tables = append(w.tables, table)
	return nil
}

func (w *journalWriter) CreateUnique(ctx context.Context, table, _, _ string, fields map[string]any) error {
	return w.Create(ctx, table, fields)
}

type fixedSearch struct{}

func (fixedSearch) Search(context.Context, string, int) ([]services.SearchResult, string, error) {
	return []services.SearchResult{{Title: "Result", Link: "https://r", Snippet: "snip", DisplayLink: "r"}}, "42", nil
}

type fixedGen struct{}

func (fixedGen) Generate(context.Context, string) (string, error) { return "generated answer", nil }

func newTestServer(t *testing.T) (*httptest.Server, *journalWriter) {
	t.Helper()
	def, err := study.Load("")
	if err != nil {
		t.Fatalf("study.Load error: %v", err)
	}
	def.MinDwellSeconds = 0 // no waiting in tests

	writer := &journalWriter{}
	mux := http.NewServeMux()
	NewRouter(NewMemoryStore(), def, writer, fixedSearch{}, fixedGen{}, middleware.SignToken).Register(mux)
	srv := httptest.NewServer(middleware.WithAuth(mux))
	t.Cleanup(srv.Close)
	return srv, writer
}

func doJSON(t *testing.T, method, url, token string, body any, out any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, url, err, raw)
		}
	}
	return resp
}

func TestParticipantJourney(t *testing.T) {
	srv, writer := newTestServer(t)
	base := srv.URL

	var sess struct {
		ParticipantID string `json:"participant_id"`
		Created       bool   `json:"created"`
	}
	doJSON(t, http.MethodPost, base+"/api/session", "", map[string]any{}, &sess)
	if sess.ParticipantID == "" || !sess.Created {
		t.Fatalf("unexpected session: %+v", sess)
	}
	pid := sess.ParticipantID

	// Deep link past consent bounces back to it.
	var enter struct {
		OK         bool   `json:"ok"`
		RedirectTo string `json:"redirect_to"`
	}
	doJSON(t, http.MethodPost, base+"/api/flow/enter", "", map[string]any{"participant_id": pid, "page": "presurvey"}, &enter)
	if enter.OK || enter.RedirectTo != "consent" {
		t.Fatalf("expected redirect to consent, got %+v", enter)
	}

	// Form state round trip on the consent page.
	doJSON(t, http.MethodPost, base+"/api/state", "", map[string]any{
		"participant_id": pid, "page": "consent", "key": "name", "value": "A Participant",
	}, nil)
	state := map[string]any{}
	doJSON(t, http.MethodGet, base+"/api/state?participant_id="+pid+"&page=consent", "", nil, &state)
	if state["name"] != "A Participant" {
		t.Fatalf("state not restored: %+v", state)
	}

	var submit struct {
		Status   string `json:"status"`
		NextPage string `json:"next_page"`
	}
	doJSON(t, http.MethodPost, base+"/api/flow/submit", "", map[string]any{
		"participant_id": pid,
		"page":           "consent",
		"answers":        map[string]any{"consent": "yes", "name": "A Participant", "date": "2026-03-01"},
	}, &submit)
	if submit.Status != "advanced" || submit.NextPage != "task" {
		t.Fatalf("consent submit: %+v", submit)
	}

	var cond struct {
		SystemType string `json:"system_type"`
		ScenarioID string `json:"scenario_id"`
	}
	doJSON(t, http.MethodGet, base+"/api/condition?participant_id="+pid, "", nil, &cond)
	if cond.SystemType != "search" && cond.SystemType != "genai" {
		t.Fatalf("unexpected condition: %+v", cond)
	}
	// The assignment is pinned; a second fetch returns the same draw.
	var cond2 struct {
		SystemType string `json:"system_type"`
		ScenarioID string `json:"scenario_id"`
	}
	doJSON(t, http.MethodGet, base+"/api/condition?participant_id="+pid, "", nil, &cond2)
	if cond2.SystemType != cond.SystemType || cond2.ScenarioID != cond.ScenarioID {
		t.Fatalf("condition re-rolled: %+v vs %+v", cond, cond2)
	}

	doJSON(t, http.MethodPost, base+"/api/flow/submit", "", map[string]any{
		"participant_id": pid, "page": "task",
	}, &submit)
	if submit.NextPage != "presurvey" {
		t.Fatalf("task submit: %+v", submit)
	}

	def, _ := study.Load("")
	answers := map[string]any{}
	for _, key := range def.Page("presurvey").RequiredKeys() {
		answers[key] = 4
	}
	doJSON(t, http.MethodPost, base+"/api/flow/submit", "", map[string]any{
		"participant_id": pid, "page": "presurvey", "answers": answers,
	}, &submit)
	if submit.NextPage != "experiment" {
		t.Fatalf("presurvey submit: %+v", submit)
	}

	var view struct {
		SystemType string `json:"system_type"`
	}
	doJSON(t, http.MethodPost, base+"/api/task/start", "", map[string]any{"participant_id": pid}, &view)
	if view.SystemType != cond.SystemType {
		t.Fatalf("task view mismatches condition: %+v", view)
	}

	var query struct {
		Mode       string           `json:"mode"`
		Results    []map[string]any `json:"results"`
		Transcript []map[string]any `json:"transcript"`
	}
	doJSON(t, http.MethodPost, base+"/api/task/query", "", map[string]any{
		"participant_id": pid, "query": "evidence",
	}, &query)
	switch query.Mode {
	case "search":
		if len(query.Results) != 1 {
			t.Fatalf("search query: %+v", query)
		}
	case "genai":
		if len(query.Transcript) != 1 {
			t.Fatalf("genai query: %+v", query)
		}
	default:
		t.Fatalf("unknown mode %q", query.Mode)
	}

	var scraps []map[string]any
	doJSON(t, http.MethodPost, base+"/api/scrapbook", "", map[string]any{
		"participant_id": pid,
		"scrap":          map[string]any{"title": "Result", "link": "https://r", "snippet": "snip"},
	}, &scraps)
	if len(scraps) != 1 {
		t.Fatalf("scrapbook save: %+v", scraps)
	}
	scrapID, _ := scraps[0]["id"].(string)
	if scrapID == "" {
		t.Fatalf("scrapbook save must assign an id: %+v", scraps)
	}
	doJSON(t, http.MethodPost, base+"/api/scrapbook/comment", "", map[string]any{
		"participant_id": pid, "id": scrapID, "comment": "keep this",
	}, &scraps)
	if scraps[0]["comment"] != "keep this" {
		t.Fatalf("scrapbook comment: %+v", scraps)
	}

	var status struct {
		CanProceed bool `json:"can_proceed"`
	}
	doJSON(t, http.MethodGet, base+"/api/task/status?participant_id="+pid, "", nil, &status)
	if !status.CanProceed {
		t.Fatalf("zero dwell must allow proceeding: %+v", status)
	}

	doJSON(t, http.MethodPost, base+"/api/flow/submit", "", map[string]any{
		"participant_id": pid, "page": "experiment",
		"answers": map[string]any{"scrapbook": scraps},
	}, &submit)
	if submit.NextPage != "postsurvey" {
		t.Fatalf("experiment submit: %+v", submit)
	}

	doJSON(t, http.MethodPost, base+"/api/flow/submit", "", map[string]any{
		"participant_id": pid, "page": "postsurvey", "confirm_partial": true,
	}, &submit)
	if submit.NextPage != "demographic" {
		t.Fatalf("postsurvey submit: %+v", submit)
	}

	doJSON(t, http.MethodPost, base+"/api/flow/submit", "", map[string]any{
		"participant_id": pid, "page": "demographic",
		"answers": map[string]any{"age": 33, "gender": "woman", "education": "bachelor", "race": []string{"White"}, "hispanic": "no"},
	}, &submit)
	if submit.NextPage != "thankyou" {
		t.Fatalf("demographic submit: %+v", submit)
	}

	var done struct {
		AlreadyParticipated bool   `json:"already_participated"`
		CompletionCode      string `json:"completion_code"`
	}
	doJSON(t, http.MethodPost, base+"/api/session/participated", "", map[string]any{"participant_id": pid}, &done)
	if done.AlreadyParticipated || done.CompletionCode == "" {
		t.Fatalf("first completion: %+v", done)
	}
	doJSON(t, http.MethodPost, base+"/api/session/participated", "", map[string]any{"participant_id": pid}, &done)
	if !done.AlreadyParticipated {
		t.Fatalf("re-entry must be flagged: %+v", done)
	}

	// One remote write per submitting page.
	writer.mu.Lock()
	tables := append([]string(nil), writer.tables...)
	writer.mu.Unlock()
	want := []string{"consent", "pre_survey", "Participants", "post_survey", "Demographic"}
	if len(tables) != len(want) {
		t.Fatalf("expected writes %v, got %v", want, tables)
	}
	for i, table := range want {
		if tables[i] != table {
			t.Fatalf("write order: expected %v, got %v", want, tables)
		}
	}
}

func TestExportRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/export", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("export without a token must be rejected, got %d", resp.StatusCode)
	}

	var reg struct {
		Token string `json:"token"`
	}
	doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", "", map[string]any{
		"email": "lab@example.edu", "password": "s3cret-pw",
	}, &reg)
	if reg.Token == "" {
		t.Fatalf("register did not return a token")
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/export", reg.Token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export with a token failed: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type: %s", ct)
	}
}

func TestParticipantDataEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL

	var sess struct {
		ParticipantID string `json:"participant_id"`
	}
	doJSON(t, http.MethodPost, base+"/api/session", "", map[string]any{}, &sess)

	var reg struct {
		Token string `json:"token"`
	}
	doJSON(t, http.MethodPost, base+"/api/auth/register", "", map[string]any{
		"email": "lab@example.edu", "password": "s3cret-pw",
	}, &reg)

	var export struct {
		Session map[string]any `json:"session"`
	}
	doJSON(t, http.MethodGet, base+"/api/participant/export?participant_id="+sess.ParticipantID, reg.Token, nil, &export)
	if export.Session["participant_id"] != sess.ParticipantID {
		t.Fatalf("participant export: %+v", export)
	}

	resp := doJSON(t, http.MethodDelete, base+"/api/participant?participant_id="+sess.ParticipantID, reg.Token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("participant delete failed: %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, base+"/api/participant/export?participant_id="+sess.ParticipantID, reg.Token, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted participant must be gone, got %d", resp.StatusCode)
	}
}
