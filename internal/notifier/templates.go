package notifier

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *htmltemplate.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	AppName       string
	Title         string
	Message       string
	Category      string
	CategoryColor string
	Link          string
	RecipientName string
	Timestamp     string
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	htmlTmpl, err := htmltemplate.New("notification.html").Funcs(htmltemplate.FuncMap{
		"upper": strings.ToUpper,
		"lines": lines,
	}).ParseFS(templateFS, "templates/notification.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("notification.txt").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
	}).ParseFS(templateFS, "templates/notification.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

// categoryColor returns the accent color for a notification category.
func categoryColor(category string) string {
	switch category {
	case "alarm":
		return "#d32f2f" // red
	case "alert":
		return "#f57c00" // orange
	case "info":
		return "#1976d2" // blue
	default:
		return "#757575" // gray
	}
}

// EmailToTemplateData converts an email to template data.
func EmailToTemplateData(email Email, appName string, now time.Time) TemplateData {
	name := email.RecipientName
	if name == "" && len(email.To) == 1 {
		name = email.To[0]
	}
	return TemplateData{
		AppName:       appName,
		Title:         email.Title,
		Message:       email.Message,
		Category:      email.Category,
		CategoryColor: categoryColor(email.Category),
		Link:          email.Link,
		RecipientName: name,
		Timestamp:     now.Format("2006-01-02 15:04 MST"),
	}
}
