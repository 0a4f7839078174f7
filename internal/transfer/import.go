package transfer

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hpungsan/pronounguard/internal/config"
	"github.com/hpungsan/pronounguard/internal/db"
	"github.com/hpungsan/pronounguard/internal/errors"
)

// ImportMode controls what happens when an imported person already has an
// entry.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on collision, import nothing
	ImportModeReplace ImportMode = "replace" // overwrite the existing entry
	ImportModeSkip    ImportMode = "skip"    // keep the existing entry
)

// maxLineBytes bounds a single JSONL line.
const maxLineBytes = 1 << 20

// ImportInput contains parameters for Import.
type ImportInput struct {
	Path       string     // required
	Mode       ImportMode // default: error
	ExportsDir string     // required
}

// ImportOutput contains the result of Import.
type ImportOutput struct {
	Imported  int           `json:"imported"`
	Skipped   int           `json:"skipped"`
	Errors    []ImportError `json:"errors"`
	PersonIDs []string      `json:"person_ids"`
}

// ImportError describes one rejected line.
type ImportError struct {
	Line     int    `json:"line"`
	PersonID string `json:"person_id,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type record struct {
	Line  int
	Entry db.Entry
}

// Import reads a JSONL file written by Export into the local directory.
// All writes happen in one transaction. In error mode nothing is written
// when any line is malformed or collides with an existing entry.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	switch input.Mode {
	case ImportModeError, ImportModeReplace, ImportModeSkip:
	default:
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, skip")
	}
	if err := ValidatePath(input.Path, PathCheckRead, input.ExportsDir, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.GuardError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, parseErrors := parseFile(file)
	out := &ImportOutput{Errors: parseErrors, PersonIDs: []string{}}
	if out.Errors == nil {
		out.Errors = []ImportError{}
	}
	if input.Mode == ImportModeError && len(parseErrors) > 0 {
		return out, nil
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range records {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("import")
		}
		exists, err := db.Exists(ctx, tx, rec.Entry.PersonID)
		if err != nil {
			return nil, err
		}
		if exists {
			switch input.Mode {
			case ImportModeError:
				out.Errors = append(out.Errors, ImportError{
					Line:     rec.Line,
					PersonID: rec.Entry.PersonID,
					Code:     "COLLISION",
					Message:  fmt.Sprintf("entry for %q already exists", rec.Entry.PersonID),
				})
				return &ImportOutput{Errors: out.Errors, PersonIDs: []string{}}, nil
			case ImportModeSkip:
				out.Skipped++
				continue
			}
		}
		if err := db.PutEntry(ctx, tx, rec.Entry); err != nil {
			return nil, err
		}
		out.Imported++
		out.PersonIDs = append(out.PersonIDs, rec.Entry.PersonID)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// parseFile reads records, skipping the header and collecting per-line
// errors. Missing timestamps are filled with the current time.
func parseFile(r io.Reader) ([]record, []ImportError) {
	var records []record
	var parseErrors []ImportError
	now := time.Now().Unix()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var raw struct {
			db.Entry
			Export bool `json:"_pronounguard_export"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if raw.Export {
			continue
		}

		e := raw.Entry
		e.PersonID = strings.TrimSpace(e.PersonID)
		e.Pronouns = strings.TrimSpace(e.Pronouns)
		if e.PersonID == "" || e.Pronouns == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:     lineNum,
				PersonID: e.PersonID,
				Code:     "INVALID_RECORD",
				Message:  "person_id and pronouns are required",
			})
			continue
		}
		if e.CreatedAt == 0 {
			e.CreatedAt = now
		}
		if e.UpdatedAt == 0 {
			e.UpdatedAt = e.CreatedAt
		}
		records = append(records, record{Line: lineNum, Entry: e})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}
	return records, parseErrors
}
