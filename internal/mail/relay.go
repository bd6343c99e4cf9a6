package mail

import (
	"context"
	"fmt"

	"github.com/conthop/backend/internal/httputil"
)

// RelayTransport posts messages to an HTTP mail relay as JSON.
type RelayTransport struct {
	client *httputil.ServiceClient
	path   string
	from   string
}

// NewRelayTransport returns a relay transport posting to path on client.
func NewRelayTransport(client *httputil.ServiceClient, path, from string) *RelayTransport {
	if path == "" {
		path = "/send"
	}
	return &RelayTransport{client: client, path: path, from: from}
}

func (t *RelayTransport) Name() string { return "relay" }

type relayPayload struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (t *RelayTransport) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	resp, err := t.client.Post(ctx, t.path, relayPayload{From: t.from, To: msg.To, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return fmt.Errorf("mail relay: %w", err)
	}
	if err := httputil.DecodeResponse(resp, nil); err != nil {
		return fmt.Errorf("mail relay: %w", err)
	}
	return nil
}
