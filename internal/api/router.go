package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/searchlab/studyflow/internal/middleware"
	"github.com/searchlab/studyflow/internal/services"
	"github.com/searchlab/studyflow/internal/study"
)

type Router struct {
	store        Store
	def          *study.Definition
	sessions     *services.SessionService
	conditions   *services.ConditionService
	forms        *services.FormStateService
	flow         *services.FlowService
	tasks        *services.TaskService
	auth         *services.AuthService
	exports      *services.ExportService
	participants *services.ParticipantDataService
}

// NewRouter wires the services over one Store plus the outbound ports.
func NewRouter(store Store, def *study.Definition, writer services.RecordWriter, search services.SearchClient, gen services.TextGenerator, signer services.TokenSigner) *Router {
	forms := services.NewFormStateService(newCacheAdapter(store))
	return &Router{
		store:        store,
		def:          def,
		sessions:     services.NewSessionService(newSessionStoreAdapter(store)),
		conditions:   services.NewConditionService(newConditionStoreAdapter(store), def),
		forms:        forms,
		flow:         services.NewFlowService(newFlowStoreAdapter(store), forms, writer, def),
		tasks:        services.NewTaskService(newTaskStoreAdapter(store), search, gen, def.MinDwellSeconds),
		auth:         services.NewAuthService(newAuthStoreAdapter(store), signer),
		exports:      services.NewExportService(newExportStoreAdapter(store), def),
		participants: services.NewParticipantDataService(newParticipantStoreAdapter(store)),
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/session", rt.handleSession)                   // POST
	mux.HandleFunc("/api/session/participated", rt.handleParticipated) // POST
	mux.HandleFunc("/api/condition", rt.handleCondition)               // GET
	mux.HandleFunc("/api/flow/pages", rt.handlePages)                  // GET
	mux.HandleFunc("/api/flow/enter", rt.handleEnter)                  // POST
	mux.HandleFunc("/api/flow/submit", rt.handleSubmit)                // POST
	mux.HandleFunc("/api/state", rt.handleState)                       // GET/POST
	mux.HandleFunc("/api/task/start", rt.handleTaskStart)              // POST
	mux.HandleFunc("/api/task/status", rt.handleTaskStatus)            // GET
	mux.HandleFunc("/api/task/query", rt.handleTaskQuery)              // POST
	mux.HandleFunc("/api/task/transcript", rt.handleTranscript)        // GET
	mux.HandleFunc("/api/scrapbook", rt.handleScrapbook)               // GET/POST/DELETE
	mux.HandleFunc("/api/scrapbook/comment", rt.handleScrapComment)    // POST
	mux.HandleFunc("/api/auth/register", rt.handleRegister)            // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)                  // POST
	mux.Handle("/api/export", middleware.RequireAuth(http.HandlerFunc(rt.handleExport)))                      // GET
	mux.Handle("/api/participant/export", middleware.RequireAuth(http.HandlerFunc(rt.handleParticipantData))) // GET
	mux.Handle("/api/participant", middleware.RequireAuth(http.HandlerFunc(rt.handleParticipantDelete)))      // DELETE
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	msg := err.Error()
	if se, ok := services.AsServiceError(err); ok {
		code = string(se.Code)
		msg = se.Message
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		case services.ErrorBadGateway:
			status = http.StatusBadGateway
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code, "message": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, services.NewInvalidError("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// POST /api/session — ensure a durable participant identifier.
func (rt *Router) handleSession(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var in struct {
		ParticipantID string `json:"participant_id"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := rt.sessions.Ensure(in.ParticipantID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"participant_id":   res.Session.ParticipantID,
		"has_participated": res.Session.HasParticipated,
		"created":          res.Created,
	})
}

// POST /api/session/participated — flip the re-entry flag, returning the
// completion code for the terminal page.
func (rt *Router) handleParticipated(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var in struct {
		ParticipantID string `json:"participant_id"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	already, err := rt.sessions.MarkParticipated(in.ParticipantID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"already_participated": already,
		"completion_code":      rt.def.CompletionCode,
		"completion_url":       rt.def.CompletionURL,
	})
}

// GET /api/condition?participant_id= — idempotent draw of the condition.
func (rt *Router) handleCondition(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	cond, err := rt.conditions.GetOrAssign(r.URL.Query().Get("participant_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, cond)
}

// GET /api/flow/pages — the page sequence with progress values.
func (rt *Router) handlePages(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, rt.flow.Pages())
}

// POST /api/flow/enter — entry guards for one page.
func (rt *Router) handleEnter(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var in struct {
		ParticipantID string `json:"participant_id"`
		Page          string `json:"page"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := rt.flow.Enter(in.ParticipantID, in.Page)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, res)
}

// POST /api/flow/submit — validate, write, advance. Leaving the task page
// additionally requires the dwell timer to have elapsed.
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var in struct {
		ParticipantID  string         `json:"participant_id"`
		Page           string         `json:"page"`
		Answers        map[string]any `json:"answers"`
		ConfirmPartial bool           `json:"confirm_partial"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Page == "experiment" {
		if err := rt.tasks.GateExit(in.ParticipantID); err != nil {
			writeErr(w, err)
			return
		}
	}
	res, err := rt.flow.Submit(r.Context(), in.ParticipantID, in.Page, in.Answers, in.ConfirmPartial)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, res)
}

// GET /api/state?participant_id=&page= — cached answers for a page.
// POST /api/state — write one answer through.
func (rt *Router) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		state, err := rt.forms.Get(r.URL.Query().Get("participant_id"), r.URL.Query().Get("page"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, state)
	case http.MethodPost:
		var in struct {
			ParticipantID string `json:"participant_id"`
			Page          string `json:"page"`
			Key           string `json:"key"`
			Value         any    `json:"value"`
		}
		if !decodeBody(w, r, &in) {
			return
		}
		state, err := rt.forms.SetValue(in.ParticipantID, in.Page, in.Key, in.Value)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, state)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/task/start — open the task and pin the dwell timer.
func (rt *Router) handleTaskStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var in struct {
		ParticipantID string `json:"participant_id"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	view, err := rt.tasks.Start(in.ParticipantID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, view)
}

// GET /api/task/status?participant_id= — the dwell timer.
func (rt *Router) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	st, err := rt.tasks.Status(r.URL.Query().Get("participant_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, st)
}

// POST /api/task/query — one search or generation under the condition.
func (rt *Router) handleTaskQuery(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var in struct {
		ParticipantID string `json:"participant_id"`
		Query         string `json:"query"`
		Start         int    `json:"start"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := rt.tasks.Query(r.Context(), in.ParticipantID, in.Query, in.Start)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, res)
}

// GET /api/task/transcript?participant_id=
func (rt *Router) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	turns, err := rt.tasks.Transcript(r.URL.Query().Get("participant_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, turns)
}

// GET/POST/DELETE /api/scrapbook — list, save, remove collected items.
func (rt *Router) handleScrapbook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		scraps, err := rt.tasks.Scrapbook(r.URL.Query().Get("participant_id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, scraps)
	case http.MethodPost:
		var in struct {
			ParticipantID string         `json:"participant_id"`
			Scrap         services.Scrap `json:"scrap"`
		}
		if !decodeBody(w, r, &in) {
			return
		}
		scraps, err := rt.tasks.SaveScrap(in.ParticipantID, in.Scrap)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, scraps)
	case http.MethodDelete:
		scraps, err := rt.tasks.RemoveScrap(r.URL.Query().Get("participant_id"), r.URL.Query().Get("id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, scraps)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/scrapbook/comment — annotate a saved item.
func (rt *Router) handleScrapComment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var in struct {
		ParticipantID string `json:"participant_id"`
		ID            string `json:"id"`
		Comment       string `json:"comment"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	scraps, err := rt.tasks.AnnotateScrap(in.ParticipantID, in.ID, in.Comment)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, scraps)
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := rt.auth.Register(in.Email, in.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": res.Token, "researcher_id": res.ResearcherID})
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := rt.auth.Login(in.Email, in.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": res.Token, "researcher_id": res.ResearcherID})
}

// GET /api/export?format=long|wide|score&table=&page=&section=
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	var (
		out []byte
		err error
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "long":
		out, err = rt.exports.SubmissionsCSV()
	case "wide":
		table := r.URL.Query().Get("table")
		if strings.TrimSpace(table) == "" {
			writeErr(w, services.NewInvalidError("table required for wide export"))
			return
		}
		out, err = rt.exports.TableCSV(table)
	case "score":
		out, err = rt.exports.SectionScoreCSV(r.URL.Query().Get("page"), r.URL.Query().Get("section"))
	default:
		writeErr(w, services.NewInvalidError("unknown format: "+format))
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="export.csv"`)
	_, _ = w.Write(out)
}

// GET /api/participant/export?participant_id=
func (rt *Router) handleParticipantData(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	actor, _ := middleware.ResearcherIDFromContext(r.Context())
	out, err := rt.participants.Export(r.URL.Query().Get("participant_id"), actor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, out)
}

// DELETE /api/participant?participant_id=
func (rt *Router) handleParticipantDelete(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	actor, _ := middleware.ResearcherIDFromContext(r.Context())
	if err := rt.participants.Delete(r.URL.Query().Get("participant_id"), actor); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}
