package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/pronounguard/internal/config"
	"github.com/hpungsan/pronounguard/internal/db"
	"github.com/hpungsan/pronounguard/internal/engine"
	"github.com/hpungsan/pronounguard/internal/errors"
	"github.com/hpungsan/pronounguard/internal/pronoun"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	engine *engine.Engine
	db     *sql.DB
	cfg    *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(eng *engine.Engine, db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{engine: eng, db: db, cfg: cfg}
}

// Request types for each tool

// MessageRequest represents the arguments for analyze, correct and check.
type MessageRequest struct {
	Context string            `json:"context,omitempty"`
	Text    string            `json:"text"`
	People  []engine.Person   `json:"people"`
	Labels  map[string]string `json:"labels,omitempty"`
}

func (r MessageRequest) toEngine() engine.Request {
	return engine.Request{
		Context: r.Context,
		Text:    r.Text,
		People:  r.People,
		Labels:  r.Labels,
	}
}

// ResolveRequest represents the arguments for resolve.
type ResolveRequest struct {
	PersonID string `json:"person_id"`
}

// StatsRequest represents the arguments for stats.
type StatsRequest struct {
	Person  string `json:"person,omitempty"`
	Context string `json:"context,omitempty"`
}

// ClearRequest represents the arguments for clear.
type ClearRequest struct {
	Scope   string `json:"scope,omitempty"`
	Person  string `json:"person,omitempty"`
	Context string `json:"context,omitempty"`
}

// DirectorySetRequest represents the arguments for directory_set.
type DirectorySetRequest struct {
	PersonID string  `json:"person_id"`
	Pronouns string  `json:"pronouns"`
	Note     *string `json:"note,omitempty"`
}

// DirectorySetResult is the response for directory_set.
type DirectorySetResult struct {
	*db.Entry
	Normalized string `json:"normalized"`
}

// Handler implementations

// HandleAnalyze handles the analyze tool call.
func (h *Handlers) HandleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MessageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.Analyze(ctx, input.toEngine())
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCorrect handles the correct tool call.
func (h *Handlers) HandleCorrect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MessageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.Correct(ctx, input.toEngine())
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCheck handles the check tool call.
func (h *Handlers) HandleCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MessageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.Check(ctx, input.toEngine())
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleResolve handles the resolve tool call.
func (h *Handlers) HandleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ResolveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.Resolve(ctx, input.PersonID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStats handles the stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StatsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return successResult(h.engine.Stats(engine.StatsInput{
		Person:  input.Person,
		Context: input.Context,
	}))
}

// HandleClear handles the clear tool call.
func (h *Handlers) HandleClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClearRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.Clear(engine.ClearInput{
		Scope:   engine.ClearScope(input.Scope),
		Person:  input.Person,
		Context: input.Context,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDirectorySet handles the directory_set tool call.
func (h *Handlers) HandleDirectorySet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DirectorySetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.db == nil {
		return errorResult(errors.NewInvalidRequest("local directory is not available")), nil
	}
	if _, err := h.engine.ValidateLabel(input.Pronouns); err != nil {
		return errorResult(err), nil
	}

	entry, err := db.Upsert(ctx, h.db, input.PersonID, input.Pronouns, input.Note)
	if err != nil {
		return errorResult(err), nil
	}
	h.engine.Directory().Invalidate(entry.PersonID)

	return successResult(DirectorySetResult{
		Entry:      entry,
		Normalized: pronoun.Normalize(entry.Pronouns),
	})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var gErr *errors.GuardError
	if stderrors.As(err, &gErr) {
		msg := gErr.Message
		if err != error(gErr) {
			// Keep wrapper context ("people[2]: ...") around the message.
			msg = strings.Replace(err.Error(), gErr.Error(), gErr.Message, 1)
		}
		errorObj := map[string]any{
			"code":    gErr.Code,
			"message": msg,
			"status":  gErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if gErr.Code != errors.ErrInternal && gErr.Details != nil {
			errorObj["details"] = gErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
