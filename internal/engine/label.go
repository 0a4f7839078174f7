package engine

import (
	"strings"

	"github.com/hpungsan/pronounguard/internal/errors"
	"github.com/hpungsan/pronounguard/internal/pronoun"
)

// passThrough labels are stored as declared but never drive a correction.
var passThrough = map[string]bool{"other": true, "ask": true, "avoid": true}

// ValidateLabel normalizes raw and rejects it with UNPARSEABLE_LABEL unless
// it is a sentinel, a pass-through label, or expands against the engine's
// pronoun table.
func (e *Engine) ValidateLabel(raw string) (string, error) {
	label := pronoun.Normalize(raw)
	if pronoun.IsSentinel(label) || passThrough[label] {
		return label, nil
	}
	if _, ok := e.opts.Table.Parse(label); !ok {
		return "", errors.NewUnparseableLabel(strings.TrimSpace(raw))
	}
	return label, nil
}
