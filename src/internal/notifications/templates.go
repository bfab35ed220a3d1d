package notifications

import (
	"bytes"
	"fmt"
	"text/template"
)

// Type identifies a notification
type Type string

const (
	TypeTransferInitiated Type = "transfer_initiated"
	TypeTransferCompleted Type = "transfer_completed"
	TypeTransferFailed    Type = "transfer_failed"
)

// Message is a rendered notification
type Message struct {
	Type    Type
	To      string
	ToName  string
	Subject string
	Body    string
}

// TemplateData is the data every template is rendered with
type TemplateData struct {
	AppName       string
	RecipientName string
	FromName      string
	ToName        string
	LandTitle     string
	PropertyID    string
	TransferType  string
	Price         string
	TxHash        string
	FailureReason string
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

var defaultTemplates = map[Type][2]string{
	TypeTransferInitiated: {
		"{{.AppName}}: {{.FromName}} wants to transfer {{.LandTitle}} to you",
		`Hello {{.RecipientName}},

{{.FromName}} has initiated a {{.TransferType}} of "{{.LandTitle}}" ({{.PropertyID}}) to you{{if .Price}} for {{.Price}}{{end}}.

The transfer completes once the owner executes it on the blockchain.
`,
	},
	TypeTransferCompleted: {
		"{{.AppName}}: transfer of {{.LandTitle}} completed",
		`Hello {{.RecipientName}},

The {{.TransferType}} of "{{.LandTitle}}" ({{.PropertyID}}) from {{.FromName}} to {{.ToName}} has completed.

Transaction: {{.TxHash}}
`,
	},
	TypeTransferFailed: {
		"{{.AppName}}: transfer of {{.LandTitle}} failed",
		`Hello {{.RecipientName}},

The {{.TransferType}} of "{{.LandTitle}}" ({{.PropertyID}}) from {{.FromName}} to {{.ToName}} could not be recorded on the blockchain.

Reason: {{.FailureReason}}

The owner may initiate a new transfer.
`,
	},
}

func loadTemplates() (map[Type]*messageTemplate, error) {
	templates := make(map[Type]*messageTemplate, len(defaultTemplates))
	for typ, src := range defaultTemplates {
		subject, err := template.New(string(typ) + "_subject").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse subject template for %s: %w", typ, err)
		}
		body, err := template.New(string(typ)).Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("failed to parse body template for %s: %w", typ, err)
		}
		templates[typ] = &messageTemplate{subject: subject, body: body}
	}
	return templates, nil
}

func (t *messageTemplate) render(data TemplateData) (string, string, error) {
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}
	return subject.String(), body.String(), nil
}
