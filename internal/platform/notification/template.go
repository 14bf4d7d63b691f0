package notification

import (
	"fmt"
	"strings"
	"sync"
)

// TemplateSessionReminder is the built-in template used for session reminders.
const TemplateSessionReminder = "session-reminder"

// Template defines a reusable notification template. Placeholders use the
// {{key}} form.
type Template struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.RegisterTemplate(Template{
		ID:    TemplateSessionReminder,
		Name:  "Session Reminder",
		Title: "Session with {{patient_name}} at {{time}}",
		Body:  "Your session with {{patient_name}} starts at {{time}} on {{date}}.",
	})
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (title, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	title = t.Title
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return title, body, nil
}
