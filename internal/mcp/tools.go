package mcp

import "github.com/mark3labs/mcp-go/mcp"

var personItems = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id": map[string]any{
			"type":        "string",
			"description": "Stable person ID (e.g. a chat user ID)",
		},
		"names": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Display names that count as @name markers",
		},
	},
	"required": []string{"id"},
}

// messageOptions are the arguments shared by analyze, correct and check.
func messageOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Message text to inspect"),
		),
		mcp.WithArray("people",
			mcp.Required(),
			mcp.Description("People the message may refer to"),
			mcp.Items(personItems),
		),
		mcp.WithString("context",
			mcp.Description("Conversation or channel key that scopes duplicate tracking"),
		),
		mcp.WithObject("labels",
			mcp.Description("Optional person ID -> pronoun label overrides for this request (e.g. {\"42\": \"she/her\"})"),
		),
	}
}

var analyzeToolDef = mcp.NewTool("pronoun_analyze",
	append([]mcp.ToolOption{
		mcp.WithDescription("Scan a message and report every pronoun, mention, per-person outcome and a rewrite preview. Does not record anything."),
		mcp.WithReadOnlyHintAnnotation(true),
	}, messageOptions()...)...,
)

var correctToolDef = mcp.NewTool("pronoun_correct",
	append([]mcp.ToolOption{
		mcp.WithDescription("Rewrite pronouns that do not match the declared pronouns of the people referenced. Repeated corrections for the same person in the same context are suppressed."),
	}, messageOptions()...)...,
)

var checkToolDef = mcp.NewTool("pronoun_check",
	append([]mcp.ToolOption{
		mcp.WithDescription("Blocking check: proceed=false when a mismatch is found at the check confidence floor. Returns the suggested rewrite."),
	}, messageOptions()...)...,
)

var resolveToolDef = mcp.NewTool("pronoun_resolve",
	mcp.WithDescription("Look up one person's declared pronouns through the configured sources."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("person_id",
		mcp.Required(),
		mcp.Description("Person ID to resolve"),
	),
)

var statsToolDef = mcp.NewTool("pronoun_stats",
	mcp.WithDescription("Duplicate-tracker and directory-cache statistics."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("person",
		mcp.Description("Also report records for this person"),
	),
	mcp.WithString("context",
		mcp.Description("Also report records for this context"),
	),
)

var clearToolDef = mcp.NewTool("pronoun_clear",
	mcp.WithDescription("Remove duplicate records and cached labels."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("scope",
		mcp.Description("What to clear (default all)"),
		mcp.Enum("all", "person", "context", "key", "cache"),
	),
	mcp.WithString("person",
		mcp.Description("Person ID for scope person or key"),
	),
	mcp.WithString("context",
		mcp.Description("Context key for scope context or key"),
	),
)

var directorySetToolDef = mcp.NewTool("pronoun_directory_set",
	mcp.WithDescription("Store a person's declared pronouns in the local directory. Replaces any existing entry and drops the cached label."),
	mcp.WithString("person_id",
		mcp.Required(),
		mcp.Description("Person ID"),
	),
	mcp.WithString("pronouns",
		mcp.Required(),
		mcp.Description("Declared pronouns, e.g. \"she/her\", \"he/they\", \"any\""),
	),
	mcp.WithString("note",
		mcp.Description("Optional free-text note"),
	),
)
