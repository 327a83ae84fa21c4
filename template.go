package runnotify

import (
	"fmt"
	"html/template"
	"strings"
	"sync"
	textTemplate "text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Template parts a message body is rendered into.
const (
	PartText = "text"
	PartHTML = "html"
)

const (
	defaultTextTemplate = `{{join .Lines "\n"}}`
	defaultHTMLTemplate = `<html><body>
{{- range .Lines}}
<div style="white-space: pre-wrap; font-family: monospace">{{.}}</div>
{{- end}}
</body></html>`
)

// TemplateData is what body templates are executed with.
type TemplateData struct {
	Kind    string
	Subject string
	Lines   []string
	Body    string
}

// TemplateError represents an error in template processing.
type TemplateError struct {
	// Template is the name of the template that caused the error.
	Template string

	// Operation is the operation that failed (parse or render).
	Operation string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error in %s during %s: %v", e.Template, e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// TemplateEngine renders messages into text and HTML bodies. Each kind uses the
// default layout unless a template was registered for it.
type TemplateEngine struct {
	htmlTemplates map[string]*template.Template
	textTemplates map[string]*textTemplate.Template
	mutex         sync.RWMutex
}

// NewTemplateEngine creates an engine with the default layouts.
func NewTemplateEngine() *TemplateEngine {
	te := &TemplateEngine{
		htmlTemplates: make(map[string]*template.Template),
		textTemplates: make(map[string]*textTemplate.Template),
	}
	te.textTemplates["default"] = textTemplate.Must(textTemplate.New("default").Funcs(textFuncs()).Parse(defaultTextTemplate))
	te.htmlTemplates["default"] = template.Must(template.New("default").Funcs(template.FuncMap(textFuncs())).Parse(defaultHTMLTemplate))
	return te
}

// RegisterTemplate overrides the text or HTML layout for one kind of message.
func (te *TemplateEngine) RegisterTemplate(kind Kind, part, content string) error {
	name := kind.String() + "." + part

	te.mutex.Lock()
	defer te.mutex.Unlock()

	switch part {
	case PartHTML:
		tmpl, err := template.New(name).Funcs(template.FuncMap(textFuncs())).Parse(content)
		if err != nil {
			return &TemplateError{Template: name, Operation: "parse", Cause: err}
		}
		te.htmlTemplates[kind.String()] = tmpl
	case PartText:
		tmpl, err := textTemplate.New(name).Funcs(textFuncs()).Parse(content)
		if err != nil {
			return &TemplateError{Template: name, Operation: "parse", Cause: err}
		}
		te.textTemplates[kind.String()] = tmpl
	default:
		return &TemplateError{Template: name, Operation: "parse", Cause: fmt.Errorf("unknown part %q", part)}
	}

	return nil
}

// Render returns the text and HTML bodies for msg.
func (te *TemplateEngine) Render(msg *Message) (text, html string, err error) {
	te.mutex.RLock()
	defer te.mutex.RUnlock()

	data := TemplateData{
		Kind:    msg.Kind.String(),
		Subject: msg.Subject,
		Lines:   msg.Lines,
		Body:    msg.Body(),
	}

	textTmpl, ok := te.textTemplates[data.Kind]
	if !ok {
		textTmpl = te.textTemplates["default"]
	}
	var tb strings.Builder
	if err := textTmpl.Execute(&tb, data); err != nil {
		return "", "", &TemplateError{Template: textTmpl.Name(), Operation: "render", Cause: err}
	}

	htmlTmpl, ok := te.htmlTemplates[data.Kind]
	if !ok {
		htmlTmpl = te.htmlTemplates["default"]
	}
	var hb strings.Builder
	if err := htmlTmpl.Execute(&hb, data); err != nil {
		return "", "", &TemplateError{Template: htmlTmpl.Name(), Operation: "render", Cause: err}
	}

	return tb.String(), hb.String(), nil
}

func textFuncs() textTemplate.FuncMap {
	return textTemplate.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		// Casers keep state, so each call gets its own.
		"title":    func(s string) string { return cases.Title(language.English).String(s) },
		"trim":     strings.TrimSpace,
		"join":     strings.Join,
		"replace":  strings.ReplaceAll,
		"contains": strings.Contains,
	}
}
