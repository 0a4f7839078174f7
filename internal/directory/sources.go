package directory

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hpungsan/pronounguard/internal/db"
	"github.com/hpungsan/pronounguard/internal/errors"
	"github.com/hpungsan/pronounguard/internal/pronoun"
)

// Source names
const (
	PronounDBSourceName = "pronoundb"
	CustomSourceName    = "custom"
	LocalSourceName     = "local"
	StaticSourceName    = "static"
)

// PronounDBTemplate is the public PronounDB v1 lookup endpoint.
const PronounDBTemplate = "https://pronoundb.org/api/v1/lookup?platform=discord&id={id}"

// maxBody caps how much of a source reply is read.
const maxBody = 64 << 10

// HTTPSource looks a person up through a URL template. The placeholder
// {id} (or {{id}}) is replaced with the person identifier verbatim.
type HTTPSource struct {
	name     string
	template string
	client   *http.Client
	decode   func([]byte) (string, error)
}

// NewPronounDBSource returns the PronounDB source.
func NewPronounDBSource(client *http.Client) *HTTPSource {
	return &HTTPSource{
		name:     PronounDBSourceName,
		template: PronounDBTemplate,
		client:   client,
		decode:   decodePronounDB,
	}
}

// NewCustomSource returns a source for a user-configured endpoint. The
// reply may be JSON ({"pronouns": "..."} or {"sets": {"en": [...]}}) or
// plain text.
func NewCustomSource(template string, client *http.Client) *HTTPSource {
	return &HTTPSource{
		name:     CustomSourceName,
		template: template,
		client:   client,
		decode:   decodeFlexible,
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return s.name }

// URL returns the lookup URL for personID.
func (s *HTTPSource) URL(personID string) string {
	u := strings.ReplaceAll(s.template, "{{id}}", personID)
	return strings.ReplaceAll(u, "{id}", personID)
}

// Lookup implements Source.
func (s *HTTPSource) Lookup(ctx context.Context, personID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(personID), nil)
	if err != nil {
		return "", errors.NewSourceFailed(s.name, personID, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json, text/plain")

	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.NewSourceFailed(s.name, personID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", errors.NewSourceFailed(s.name, personID, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", errors.NewSourceFailed(s.name, personID, fmt.Errorf("read body: %w", err))
	}
	label, err := s.decode(body)
	if err != nil {
		return "", errors.NewSourceFailed(s.name, personID, err)
	}
	return label, nil
}

// decodePronounDB parses {"pronouns": "hh"}.
func decodePronounDB(body []byte) (string, error) {
	var payload struct {
		Pronouns *string `json:"pronouns"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("malformed payload: %w", err)
	}
	if payload.Pronouns == nil {
		return pronoun.Unspecified, nil
	}
	return *payload.Pronouns, nil
}

// decodeFlexible accepts the PronounDB v1 shape, the v2 "sets" shape, or
// a short plain-text body.
func decodeFlexible(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return pronoun.Unspecified, nil
	}

	if trimmed[0] != '{' {
		s := string(trimmed)
		if len(s) > 64 || strings.ContainsAny(s, "<>\n") {
			return "", fmt.Errorf("malformed payload: unexpected text reply")
		}
		return s, nil
	}

	var payload struct {
		Pronouns *string             `json:"pronouns"`
		Sets     map[string][]string `json:"sets"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return "", fmt.Errorf("malformed payload: %w", err)
	}
	if payload.Pronouns != nil {
		return *payload.Pronouns, nil
	}
	if en := payload.Sets["en"]; len(en) > 0 {
		return strings.Join(en, "/"), nil
	}
	return pronoun.Unspecified, nil
}

// StaticSource answers from a fixed map, typically config overrides.
type StaticSource struct {
	labels map[string]string
}

// NewStaticSource copies labels into a new StaticSource.
func NewStaticSource(labels map[string]string) *StaticSource {
	m := make(map[string]string, len(labels))
	for k, v := range labels {
		m[k] = v
	}
	return &StaticSource{labels: m}
}

// Name implements Source.
func (s *StaticSource) Name() string { return StaticSourceName }

// Lookup implements Source.
func (s *StaticSource) Lookup(_ context.Context, personID string) (string, error) {
	if label, ok := s.labels[personID]; ok {
		return label, nil
	}
	return pronoun.Unspecified, nil
}

// LocalSource answers from the SQLite person_pronouns table.
type LocalSource struct {
	db *sql.DB
}

// NewLocalSource wraps an initialized directory database.
func NewLocalSource(database *sql.DB) *LocalSource {
	return &LocalSource{db: database}
}

// Name implements Source.
func (s *LocalSource) Name() string { return LocalSourceName }

// Lookup implements Source.
func (s *LocalSource) Lookup(ctx context.Context, personID string) (string, error) {
	e, err := db.Get(ctx, s.db, personID)
	if errors.Is(err, errors.ErrNotFound) {
		return pronoun.Unspecified, nil
	}
	if err != nil {
		return "", err
	}
	return e.Pronouns, nil
}
