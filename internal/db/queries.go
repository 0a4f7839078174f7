package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/pronounguard/internal/errors"
)

// Entry is one row of the local pronoun directory.
type Entry struct {
	PersonID  string  `json:"person_id"`
	Pronouns  string  `json:"pronouns"`
	Note      *string `json:"note,omitempty"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

// Upsert stores or replaces the pronouns declared for a person.
// created_at is preserved on replace.
func Upsert(ctx context.Context, db *sql.DB, personID, pronouns string, note *string) (*Entry, error) {
	personID = strings.TrimSpace(personID)
	pronouns = strings.TrimSpace(pronouns)
	if personID == "" {
		return nil, errors.NewInvalidRequest("person_id is required")
	}
	if pronouns == "" {
		return nil, errors.NewInvalidRequest("pronouns is required")
	}

	now := time.Now().Unix()
	query := `
		INSERT INTO person_pronouns (person_id, pronouns, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(person_id) DO UPDATE SET
			pronouns = excluded.pronouns,
			note = excluded.note,
			updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, personID, pronouns, toNullString(note), now, now); err != nil {
		return nil, errors.NewInternal(err)
	}

	return Get(ctx, db, personID)
}

// Get retrieves the directory entry for a person.
func Get(ctx context.Context, db *sql.DB, personID string) (*Entry, error) {
	query := `
		SELECT person_id, pronouns, note, created_at, updated_at
		FROM person_pronouns
		WHERE person_id = ?
	`
	e, err := scanEntry(db.QueryRowContext(ctx, query, personID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(personID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// Delete removes a person's entry. Returns NotFound if none existed.
func Delete(ctx context.Context, db *sql.DB, personID string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM person_pronouns WHERE person_id = ?", personID)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(personID)
	}
	return nil
}

// List returns entries ordered by most recent update, plus the total count.
func List(ctx context.Context, db *sql.DB, limit, offset int) ([]Entry, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM person_pronouns").Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT person_id, pronouns, note, created_at, updated_at
		FROM person_pronouns
		ORDER BY updated_at DESC, person_id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return entries, total, nil
}

// StreamAll returns rows of every entry ordered by person_id. The caller
// must close the rows and read each one with ScanEntryFromRows.
func StreamAll(ctx context.Context, db *sql.DB) (*sql.Rows, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT person_id, pronouns, note, created_at, updated_at
		FROM person_pronouns
		ORDER BY person_id ASC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// ScanEntryFromRows reads the current row of a StreamAll result.
func ScanEntryFromRows(rows *sql.Rows) (*Entry, error) {
	return scanEntry(rows)
}

// Exists reports whether q holds an entry for personID.
func Exists(ctx context.Context, q Querier, personID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM person_pronouns WHERE person_id = ?", personID).Scan(&n)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// PutEntry writes e as-is, timestamps included, replacing any existing row.
// Import uses it inside a transaction.
func PutEntry(ctx context.Context, q Querier, e Entry) error {
	query := `
		INSERT INTO person_pronouns (person_id, pronouns, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(person_id) DO UPDATE SET
			pronouns = excluded.pronouns,
			note = excluded.note,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, e.PersonID, e.Pronouns, toNullString(e.Note), e.CreatedAt, e.UpdatedAt); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var note sql.NullString
	if err := row.Scan(&e.PersonID, &e.Pronouns, &note, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if note.Valid {
		e.Note = &note.String
	}
	return &e, nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
