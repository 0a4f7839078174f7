package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/pronounguard/internal/config"
	"github.com/hpungsan/pronounguard/internal/db"
	"github.com/hpungsan/pronounguard/internal/dedupe"
	"github.com/hpungsan/pronounguard/internal/directory"
	"github.com/hpungsan/pronounguard/internal/engine"
	"github.com/hpungsan/pronounguard/internal/errors"
)

// testSetup creates a temporary database, engine and config for testing.
// The local directory is consulted before the static overrides.
func testSetup(t *testing.T) (*engine.Engine, *sql.DB, *config.Config, func()) {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Overrides = map[string]string{"alice": "she/her", "alex": "they/them"}

	dir := directory.New(directory.Options{},
		directory.NewLocalSource(database),
		directory.NewStaticSource(cfg.Overrides),
	)
	eng := engine.New(engine.Options{
		Directory: dir,
		Tracker:   dedupe.New(dedupe.Options{MaxPerWindow: cfg.MaxPerWindow}),
	})

	cleanup := func() {
		database.Close()
	}

	return eng, database, cfg, cleanup
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func person(id string) []any {
	return []any{map[string]any{"id": id}}
}

// TestHandleCorrect tests the correct handler.
func TestHandleCorrect(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(eng, database, cfg)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
		wantText  string
	}{
		{
			name: "corrects subject pronoun",
			args: map[string]any{
				"context": "chan-1",
				"text":    "He is really good at coding @alice",
				"people":  person("alice"),
			},
			wantText: "She is really good at coding @alice",
		},
		{
			name: "request label wins over directory",
			args: map[string]any{
				"context": "chan-2",
				"text":    "She is really good at coding @alice",
				"people":  person("alice"),
				"labels":  map[string]any{"alice": "he/him"},
			},
			wantText: "He is really good at coding @alice",
		},
		{
			name: "missing text",
			args: map[string]any{
				"people": person("alice"),
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "empty person id",
			args: map[string]any{
				"text":   "He is here",
				"people": []any{map[string]any{"id": " "}},
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "people has wrong type",
			args: map[string]any{
				"text":   "He is here",
				"people": "alice",
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleCorrect(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
				return
			}

			output := parseOutput(t, result)
			if output["text"] != tt.wantText {
				t.Errorf("text = %q, want %q", output["text"], tt.wantText)
			}
		})
	}
}

func TestHandleCorrect_SuppressesRepeats(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(eng, database, cfg)
	args := map[string]any{
		"context": "chan",
		"text":    "He is really good at coding @alice",
		"people":  person("alice"),
	}

	for i := 0; i < cfg.MaxPerWindow; i++ {
		output := parseOutput(t, mustCall(t, h.HandleCorrect, args))
		if output["changed"] != true {
			t.Fatalf("attempt %d: changed = %v, want true", i+1, output["changed"])
		}
	}

	output := parseOutput(t, mustCall(t, h.HandleCorrect, args))
	if output["changed"] != false {
		t.Errorf("changed = %v, want false after quota", output["changed"])
	}
	outcomes := output["outcomes"].([]any)
	first := outcomes[0].(map[string]any)
	if first["kind"] != string(engine.KindSuppressed) {
		t.Errorf("kind = %v, want %s", first["kind"], engine.KindSuppressed)
	}
}

func TestHandleAnalyze(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(eng, database, cfg)
	args := map[string]any{
		"context": "chan",
		"text":    "Him and his team did great work @alex",
		"people":  person("alex"),
	}

	output := parseOutput(t, mustCall(t, h.HandleAnalyze, args))

	preview := output["preview"].(map[string]any)
	if preview["text"] != "Them and their team did great work @alex" {
		t.Errorf("preview.text = %q", preview["text"])
	}
	if output["window"] != "proximity" {
		t.Errorf("window = %v, want proximity", output["window"])
	}

	// Analyzing twice must not consume the duplicate quota.
	parseOutput(t, mustCall(t, h.HandleAnalyze, args))
	stats := parseOutput(t, mustCall(t, h.HandleStats, map[string]any{}))
	tracker := stats["tracker"].(map[string]any)
	if tracker["records"] != float64(0) {
		t.Errorf("tracker.records = %v, want 0", tracker["records"])
	}
}

func TestHandleCheck(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(eng, database, cfg)

	tests := []struct {
		name        string
		text        string
		wantProceed bool
	}{
		{name: "mismatch blocks", text: "He is really good at coding @alice", wantProceed: false},
		{name: "clean text proceeds", text: "She is really good at coding @alice", wantProceed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := parseOutput(t, mustCall(t, h.HandleCheck, map[string]any{
				"context": tt.name,
				"text":    tt.text,
				"people":  person("alice"),
			}))
			if output["proceed"] != tt.wantProceed {
				t.Errorf("proceed = %v, want %v (summary %v)", output["proceed"], tt.wantProceed, output["summary"])
			}
		})
	}
}

func TestHandleResolve(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(eng, database, cfg)

	tests := []struct {
		name       string
		args       map[string]any
		wantError  bool
		errorCode  string
		wantLabel  string
		wantSource string
	}{
		{
			name:       "static override",
			args:       map[string]any{"person_id": "alex"},
			wantLabel:  "they/them",
			wantSource: directory.StaticSourceName,
		},
		{
			name:      "unknown person",
			args:      map[string]any{"person_id": "nobody"},
			wantLabel: "unspecified",
		},
		{
			name:      "missing person_id",
			args:      map[string]any{},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleResolve(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}

			output := parseOutput(t, result)
			if output["label"] != tt.wantLabel {
				t.Errorf("label = %v, want %v", output["label"], tt.wantLabel)
			}
			if tt.wantSource != "" && output["source"] != tt.wantSource {
				t.Errorf("source = %v, want %v", output["source"], tt.wantSource)
			}
		})
	}
}

func TestHandleDirectorySet(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(eng, database, cfg)

	// Warm the cache with the static override first.
	parseOutput(t, mustCall(t, h.HandleResolve, map[string]any{"person_id": "alice"}))

	output := parseOutput(t, mustCall(t, h.HandleDirectorySet, map[string]any{
		"person_id": "alice",
		"pronouns":  "He/Him",
		"note":      "changed",
	}))
	if output["normalized"] != "he/him" {
		t.Errorf("normalized = %v, want he/him", output["normalized"])
	}

	// The cached static label was dropped, so the local entry wins now.
	resolved := parseOutput(t, mustCall(t, h.HandleResolve, map[string]any{"person_id": "alice"}))
	if resolved["label"] != "he/him" {
		t.Errorf("label = %v, want he/him", resolved["label"])
	}
	if resolved["source"] != directory.LocalSourceName {
		t.Errorf("source = %v, want %s", resolved["source"], directory.LocalSourceName)
	}

	result := mustCall(t, h.HandleDirectorySet, map[string]any{"person_id": "alice"})
	if !result.IsError {
		t.Fatal("expected error for missing pronouns")
	}
	assertErrorCode(t, result, "INVALID_REQUEST")

	result = mustCall(t, h.HandleDirectorySet, map[string]any{"person_id": "alice", "pronouns": "florp/zorp"})
	assertErrorCode(t, result, "UNPARSEABLE_LABEL")

	// The rejected label never reached the store.
	resolved = parseOutput(t, mustCall(t, h.HandleResolve, map[string]any{"person_id": "alice"}))
	if resolved["label"] != "he/him" {
		t.Errorf("label after rejected set = %v, want he/him", resolved["label"])
	}
}

func TestHandleDirectorySet_NoDatabase(t *testing.T) {
	eng, _, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(eng, nil, cfg)
	result := mustCall(t, h.HandleDirectorySet, map[string]any{"person_id": "a", "pronouns": "she/her"})
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleClear(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(eng, database, cfg)
	parseOutput(t, mustCall(t, h.HandleCorrect, map[string]any{
		"context": "chan",
		"text":    "He is really good at coding @alice",
		"people":  person("alice"),
	}))

	tests := []struct {
		name        string
		args        map[string]any
		wantError   bool
		wantRecords float64
	}{
		{name: "person scope without person", args: map[string]any{"scope": "person"}, wantError: true},
		{name: "unknown scope", args: map[string]any{"scope": "everything"}, wantError: true},
		{name: "context scope", args: map[string]any{"scope": "context", "context": "chan"}, wantRecords: 1},
		{name: "default scope on empty tracker", args: map[string]any{}, wantRecords: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mustCall(t, h.HandleClear, tt.args)
			if tt.wantError {
				assertErrorCode(t, result, "INVALID_REQUEST")
				return
			}
			output := parseOutput(t, result)
			if output["records"] != tt.wantRecords {
				t.Errorf("records = %v, want %v", output["records"], tt.wantRecords)
			}
		})
	}
}

func TestHandleStats_Scoped(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(eng, database, cfg)
	parseOutput(t, mustCall(t, h.HandleCorrect, map[string]any{
		"context": "chan",
		"text":    "He is really good at coding @alice",
		"people":  person("alice"),
	}))

	output := parseOutput(t, mustCall(t, h.HandleStats, map[string]any{"person": "alice", "context": "other"}))
	p := output["person"].(map[string]any)
	if p["records"] != float64(1) {
		t.Errorf("person.records = %v, want 1", p["records"])
	}
	c := output["context"].(map[string]any)
	if c["records"] != float64(0) {
		t.Errorf("context.records = %v, want 0", c["records"])
	}
}

func TestServerRegistration(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	s := NewServer(eng, database, cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	for _, name := range AllToolNames() {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
	if len(tools) != len(toolRegistry) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry))
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTools = []string{"pronoun_clear", "pronoun_directory_set", "pronoun_clear"}
	s := NewServer(eng, database, cfg, "test")
	tools := s.ListTools()

	if len(tools) != 5 {
		t.Errorf("registered tool count = %d, want 5", len(tools))
	}
	for _, name := range []string{"pronoun_clear", "pronoun_directory_set"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	for _, name := range []string{"pronoun_correct", "pronoun_check", "pronoun_analyze"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q should still be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	eng, database, cfg, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTools = AllToolNames()
	s := NewServer(eng, database, cfg, "test")

	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{
			name:    "all valid",
			input:   []string{"pronoun_clear", "pronoun_check"},
			wantLen: 0,
		},
		{
			name:    "one unknown",
			input:   []string{"pronoun_clear", "capsule_store"},
			wantLen: 1,
		},
		{
			name:    "empty list",
			input:   []string{},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestToolDefinitionsMatchRegistry(t *testing.T) {
	for name, entry := range toolRegistry {
		if entry.def.Name != name {
			t.Errorf("registry key %q has tool name %q", name, entry.def.Name)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("people[2]: %w", errors.NewInvalidRequest("person id must not be empty"))

	errObj := errorObject(t, errorResult(wrappedErr))
	if errObj["code"] != string(errors.ErrInvalidRequest) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrInvalidRequest)
	}
	msg := errObj["message"].(string)
	if !strings.Contains(msg, "people[2]") {
		t.Errorf("message should contain wrapper context 'people[2]', got: %s", msg)
	}
	if strings.Contains(msg, "INVALID_REQUEST") {
		t.Errorf("message should not repeat the code, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound("abc")))
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != "INTERNAL" {
		t.Errorf("code=%v, want INTERNAL", errObj["code"])
	}
	if errObj["message"] == "boom" {
		t.Error("plain error message should not be exposed")
	}
}

// Helper functions

func mustCall(t *testing.T, handler ToolHandlerFunc, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := handler(context.Background(), makeRequest(args))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}

	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
