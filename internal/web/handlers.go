package web

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/pronounguard/internal/config"
	"github.com/hpungsan/pronounguard/internal/db"
	"github.com/hpungsan/pronounguard/internal/engine"
	"github.com/hpungsan/pronounguard/internal/errors"
)

// Handlers contains HTTP route handlers for the JSON API.
type Handlers struct {
	engine  *engine.Engine
	db      *sql.DB
	cfg     *config.Config
	version string
	log     *zap.Logger
}

// DirectoryPutRequest is the body of PUT /v1/directory/{id}.
type DirectoryPutRequest struct {
	Pronouns string  `json:"pronouns"`
	Note     *string `json:"note,omitempty"`
}

// DirectoryListResult is the response for GET /v1/directory.
type DirectoryListResult struct {
	Items  []db.Entry `json:"items"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": h.version,
	}
	if h.cfg != nil {
		body["sources"] = h.cfg.Sources
	}
	renderJSON(w, http.StatusOK, body)
}

// HandleAnalyze handles POST /v1/analyze.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	result, err := h.engine.Analyze(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if wantsHTML(r) {
		renderMessage(w, http.StatusOK, result.Preview.Text, "", len(result.Preview.Edits) > 0)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleCorrect handles POST /v1/correct. With Accept: text/html the
// corrected message is returned as rendered markdown.
func (h *Handlers) HandleCorrect(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	result, err := h.engine.Correct(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if wantsHTML(r) {
		renderMessage(w, http.StatusOK, result.Text, result.Summary, result.Changed)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleCheck handles POST /v1/check. A blocked message is answered
// with 409 so callers can gate on the status alone.
func (h *Handlers) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	result, err := h.engine.Check(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Proceed {
		status = http.StatusConflict
	}
	renderJSON(w, status, result)
}

// HandleResolve handles GET /v1/resolve/{id}.
func (h *Handlers) HandleResolve(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleStats handles GET /v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.engine.Stats(engine.StatsInput{
		Person:  r.URL.Query().Get("person"),
		Context: r.URL.Query().Get("context"),
	}))
}

// HandleClear handles DELETE /v1/records.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.engine.Clear(engine.ClearInput{
		Scope:   engine.ClearScope(q.Get("scope")),
		Person:  q.Get("person"),
		Context: q.Get("context"),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleDirectoryList handles GET /v1/directory.
func (h *Handlers) HandleDirectoryList(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	if limit == 0 || limit > 500 {
		limit = 50
	}
	offset := parseIntParam(r, "offset", 0)

	items, total, err := db.List(r.Context(), h.db, limit, offset)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, DirectoryListResult{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// HandleDirectoryGet handles GET /v1/directory/{id}.
func (h *Handlers) HandleDirectoryGet(w http.ResponseWriter, r *http.Request) {
	entry, err := db.Get(r.Context(), h.db, r.PathValue("id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, entry)
}

// HandleDirectoryPut handles PUT /v1/directory/{id}.
func (h *Handlers) HandleDirectoryPut(w http.ResponseWriter, r *http.Request) {
	var req DirectoryPutRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if _, err := h.engine.ValidateLabel(req.Pronouns); err != nil {
		renderError(w, r, err)
		return
	}

	entry, err := db.Upsert(r.Context(), h.db, r.PathValue("id"), req.Pronouns, req.Note)
	if err != nil {
		renderError(w, r, err)
		return
	}
	h.engine.Directory().Invalidate(entry.PersonID)
	h.log.Info("directory entry stored", zap.String("person_id", entry.PersonID))

	renderJSON(w, http.StatusOK, entry)
}

// HandleDirectoryDelete handles DELETE /v1/directory/{id}.
func (h *Handlers) HandleDirectoryDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		renderError(w, r, errors.NewInvalidRequest("person ID is required"))
		return
	}

	if err := db.Delete(r.Context(), h.db, id); err != nil {
		renderError(w, r, err)
		return
	}
	h.engine.Directory().Invalidate(id)

	renderJSON(w, http.StatusOK, map[string]any{
		"deleted":   true,
		"person_id": id,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
