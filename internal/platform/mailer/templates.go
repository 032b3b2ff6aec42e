package mailer

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

type rawTemplate struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiled struct {
	subject *texttemplate.Template
	body    *template.Template
}

// Catalog holds the parsed templates keyed by message then kind.
type Catalog struct {
	entries map[string]map[string]compiled
}

func DefaultCatalog() (*Catalog, error) { return ParseCatalog(defaultTemplates) }

func ParseCatalog(src []byte) (*Catalog, error) {
	var raw map[string]map[string]rawTemplate
	if err := yaml.Unmarshal(src, &raw); err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	c := &Catalog{entries: make(map[string]map[string]compiled, len(raw))}
	for msg, kinds := range raw {
		c.entries[msg] = make(map[string]compiled, len(kinds))
		for kind, t := range kinds {
			name := msg + "." + kind
			subject, err := texttemplate.New(name + ".subject").Parse(t.Subject)
			if err != nil {
				return nil, fmt.Errorf("template %s subject: %w", name, err)
			}
			body, err := template.New(name + ".body").Parse(t.Body)
			if err != nil {
				return nil, fmt.Errorf("template %s body: %w", name, err)
			}
			c.entries[msg][kind] = compiled{subject: subject, body: body}
		}
	}
	return c, nil
}

// Render returns subject and HTML body for message/kind.
func (c *Catalog) Render(message, kind string, data any) (string, string, error) {
	t, ok := c.entries[message][kind]
	if !ok {
		return "", "", fmt.Errorf("no mail template %s.%s", message, kind)
	}
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s.%s subject: %w", message, kind, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s.%s body: %w", message, kind, err)
	}
	return subject.String(), body.String(), nil
}
