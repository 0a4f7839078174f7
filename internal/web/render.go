package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/pronounguard/internal/errors"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// wantsHTML reports whether the client asked for an HTML fragment.
func wantsHTML(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true" || strings.Contains(r.Header.Get("Accept"), "text/html")
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if stderrors.Is(err, io.EOF) {
			return errors.NewInvalidRequest("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.NewInvalidRequest(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// renderError renders an error response with content negotiation.
// Internal details never leave the process.
func renderError(w http.ResponseWriter, req *http.Request, err error) {
	var gErr *errors.GuardError
	if !stderrors.As(err, &gErr) {
		gErr = errors.NewInternal(err)
	}

	status := gErr.Status
	message := gErr.Message

	// HTML fragment request
	if wantsHTML(req) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	errorObj := map[string]any{
		"code":    string(gErr.Code),
		"message": message,
		"status":  status,
	}
	if gErr.Code != errors.ErrInternal && gErr.Details != nil {
		errorObj["details"] = gErr.Details
	}
	renderJSON(w, status, map[string]any{"error": errorObj})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
// Raw HTML in the message is omitted by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

var fragment = template.Must(template.New("message").Parse(
	`<div class="message" data-changed="{{.Changed}}">{{.HTML}}</div>` +
		`{{if .Summary}}<p class="summary">{{.Summary}}</p>{{end}}`))

// messageFragment is the template data for a rendered message.
type messageFragment struct {
	HTML    template.HTML
	Changed bool
	Summary string
}

// renderMessage writes text as a rendered markdown fragment.
func renderMessage(w http.ResponseWriter, status int, text, summary string, changed bool) {
	var buf bytes.Buffer
	data := messageFragment{HTML: renderMarkdown(text), Changed: changed, Summary: summary}
	if err := fragment.Execute(&buf, data); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
