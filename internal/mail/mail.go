// Package mail renders member emails and hands them to a delivery transport.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
)

// Message is one outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Validate checks the recipient address and subject.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("recipient address is empty")
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("subject is empty")
	}
	return nil
}

// Transport delivers messages.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

var bodyTemplate = template.Must(template.New("body").Parse(
	`<p>Hello {{.Name}},</p><p>{{.Message}}</p><p>Thank you!<br/>{{.SignOff}}</p>`))

// SignOff closes every member email.
const SignOff = "Hope Team"

// RenderHTML renders the fixed member email body. Name and message are
// escaped.
func RenderHTML(name, message string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, struct {
		Name    string
		Message string
		SignOff string
	}{name, message, SignOff})
	if err != nil {
		return "", fmt.Errorf("render email body: %w", err)
	}
	return buf.String(), nil
}
