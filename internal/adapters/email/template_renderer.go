package email

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	texttemplate "text/template"

	"github.com/cockroachdb/errors"
)

//go:embed templates/*
var templateFS embed.FS

const TemplateTicketConfirmation = "ticket_confirmation"

// TemplateRenderer renders the embedded email templates.
type TemplateRenderer struct{}

func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

// Render executes the named template (e.g. "ticket_confirmation") with data and returns subject, html, and text bodies.
func (r *TemplateRenderer) Render(templateName string, data interface{}) (subject, htmlBody, textBody string, err error) {
	subject, err = r.renderFile(templateName+"_subject.txt", data, false)
	if err != nil {
		return "", "", "", errors.Wrap(err, "render subject")
	}
	htmlBody, err = r.renderFile(templateName+".html", data, true)
	if err != nil {
		return "", "", "", errors.Wrap(err, "render html")
	}
	textBody, err = r.renderFile(templateName+".txt", data, false)
	if err != nil {
		return "", "", "", errors.Wrap(err, "render text")
	}
	return strings.TrimSpace(subject), htmlBody, textBody, nil
}

func (r *TemplateRenderer) renderFile(name string, data interface{}, html bool) (string, error) {
	raw, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if html {
		t, err := template.New(name).Parse(string(raw))
		if err != nil {
			return "", err
		}
		err = t.Execute(&buf, data)
		return buf.String(), err
	}
	t, err := texttemplate.New(name).Parse(string(raw))
	if err != nil {
		return "", err
	}
	err = t.Execute(&buf, data)
	return buf.String(), err
}
