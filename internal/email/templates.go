package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var layout = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/layout.html"))

type layoutData struct {
	Subject    string
	Paragraphs []string
}

func renderLayout(subject, body string) (string, error) {
	paragraphs := make([]string, 0)
	for _, p := range strings.Split(body, "\n\n") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	var buf bytes.Buffer
	if err := layout.ExecuteTemplate(&buf, "layout.html", layoutData{Subject: subject, Paragraphs: paragraphs}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Personalize fills {{.FirstName}}-style placeholders in a stored step or
// task payload. Missing keys render as empty strings.
func Personalize(text string, data map[string]string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("payload").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse payload template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render payload template: %w", err)
	}
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
