package notify

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/metrics"
)

// TemplateData is the data available to notification templates.
type TemplateData struct {
	Timestamp  time.Time
	Severity   alerts.Level
	Snapshot   metrics.Snapshot
	BatchCount int
}

// Rendered is the output of rendering a template.
type Rendered struct {
	Subject string
	Body    string
}

// UnknownTemplateError indicates a request referenced a template that is not
// registered. This is a configuration error, never retried.
type UnknownTemplateError struct {
	Name string
}

func (e *UnknownTemplateError) Error() string {
	return "unknown notification template: " + e.Name
}

// namedTemplate pairs a subject line with a parsed body template.
type namedTemplate struct {
	subject string
	body    *template.Template
}

// Templates is the registry of notification templates.
type Templates struct {
	mu        sync.RWMutex
	templates map[string]namedTemplate
}

const alertBody = `{{.Severity}} alert at {{.Timestamp.Format "2006-01-02 15:04:05"}}
{{- if gt .BatchCount 1}}
Combined report covering {{.BatchCount}} notifications (worst-case values shown).
{{- end}}

System:
{{- with lookup .Snapshot "system.memory.usedPercent"}}
  Memory used: {{printf "%.1f" (value .)}}%
{{- end}}
{{- with lookup .Snapshot "system.cpu.loadAvg.0"}}
  Load average: {{printf "%.2f" (value .)}}
{{- end}}
{{- with lookup .Snapshot "system.uptime"}}
  Uptime: {{printf "%.0f" (value .)}}s
{{- end}}
`

const dailySummaryBody = `Daily monitoring summary for {{.Timestamp.Format "2006-01-02"}}
{{- with lookup .Snapshot "system.memory.usedPercent"}}
Memory used: {{printf "%.1f" (value .)}}%
{{- end}}
{{- with lookup .Snapshot "system.cpu.loadAvg.0"}}
Load average: {{printf "%.2f" (value .)}}
{{- end}}

Tracked series: {{len .Snapshot.History}}
`

// NewTemplates creates the registry preloaded with the built-in templates.
func NewTemplates() *Templates {
	t := &Templates{
		templates: make(map[string]namedTemplate),
	}
	// Built-ins must parse; a failure here is a programming error.
	if err := t.Register("alert", "[{{severity}}] EyeNet monitoring alert", alertBody); err != nil {
		panic(err)
	}
	if err := t.Register("daily-summary", "EyeNet daily summary", dailySummaryBody); err != nil {
		panic(err)
	}
	return t
}

// funcs are the helper functions available inside templates. lookup resolves
// a dot-separated path against the snapshot; it returns nil only when the
// path is absent, so "with" guards skip missing metrics while a legitimate
// zero still renders. value dereferences a lookup result inside such a
// block.
func funcs() template.FuncMap {
	return template.FuncMap{
		"lookup": func(snap metrics.Snapshot, path string) *float64 {
			v, ok := snap.Lookup(path)
			if !ok {
				return nil
			}
			return &v
		},
		"value": func(p *float64) float64 {
			if p == nil {
				return 0
			}
			return *p
		},
	}
}

// Register parses and installs a template under the given name, replacing
// any prior registration.
func (t *Templates) Register(name, subject, body string) error {
	tmpl, err := template.New(name).Funcs(funcs()).Parse(body)
	if err != nil {
		return fmt.Errorf("parse template %q: %w", name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.templates[name] = namedTemplate{subject: subject, body: tmpl}
	return nil
}

// Has reports whether a template is registered.
func (t *Templates) Has(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.templates[name]
	return ok
}

// Render executes the named template against the data.
func (t *Templates) Render(name string, data TemplateData) (Rendered, error) {
	t.mu.RLock()
	tmpl, ok := t.templates[name]
	t.mu.RUnlock()
	if !ok {
		return Rendered{}, &UnknownTemplateError{Name: name}
	}

	var buf bytes.Buffer
	if err := tmpl.body.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("render template %q: %w", name, err)
	}

	// Subject supports a {{severity}} placeholder without the overhead of
	// a second template execution.
	subject := strings.ReplaceAll(tmpl.subject, "{{severity}}", data.Severity.String())

	return Rendered{Subject: subject, Body: buf.String()}, nil
}
