package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conthop/backend/internal/httputil"
	"github.com/conthop/backend/internal/logging"
)

func TestRenderHTML(t *testing.T) {
	body, err := RenderHTML("Ada", "Your withdrawal request of ₦50,000 has been approved.")
	require.NoError(t, err)
	assert.Contains(t, body, "<p>Hello Ada,</p>")
	assert.Contains(t, body, "₦50,000")
	assert.Contains(t, body, SignOff)
}

func TestRenderHTMLEscapes(t *testing.T) {
	body, err := RenderHTML("<b>Eve</b>", "<script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
	assert.NotContains(t, body, "<b>Eve</b>")
}

func TestRenderHTMLEmptyName(t *testing.T) {
	body, err := RenderHTML("  ", "hi")
	require.NoError(t, err)
	assert.Contains(t, body, "Hello there,")
}

func TestMessageValidate(t *testing.T) {
	assert.Error(t, Message{Subject: "s"}.Validate())
	assert.Error(t, Message{To: "not-an-address", Subject: "s"}.Validate())
	assert.Error(t, Message{To: "a@example.com"}.Validate())
	assert.NoError(t, Message{To: "a@example.com", Subject: "s"}.Validate())
}

func TestBuildMIMESanitizesSubject(t *testing.T) {
	raw := string(buildMIME("club@example.com", Message{
		To:      "a@example.com",
		Subject: "Hi\r\nBcc: evil@example.com",
		HTML:    "<p>x</p>",
	}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	assert.NotContains(t, raw, "\r\nBcc:")
	assert.Contains(t, raw, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\n<p>x</p>"))
}

func TestNewSMTPTransportValidation(t *testing.T) {
	_, err := NewSMTPTransport(SMTPConfig{})
	assert.Error(t, err)

	tr, err := NewSMTPTransport(SMTPConfig{Host: "smtp.example.com", Username: "club@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 587, tr.cfg.Port)
	assert.Equal(t, "club@example.com", tr.cfg.From)
}

func TestRelayTransportSend(t *testing.T) {
	var got relayPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/send", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := httputil.NewServiceClient(httputil.ServiceClientConfig{BaseURL: server.URL})
	tr := NewRelayTransport(client, "/v1/send", "club@example.com")

	err := tr.Send(context.Background(), Message{To: "a@example.com", Subject: "Withdrawal Approved", HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.To)
	assert.Equal(t, "club@example.com", got.From)
	assert.Equal(t, "Withdrawal Approved", got.Subject)
}

func TestRelayTransportSurfacesFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mailbox unavailable", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	tr := NewRelayTransport(httputil.NewServiceClient(httputil.ServiceClientConfig{BaseURL: server.URL}), "", "")
	err := tr.Send(context.Background(), Message{To: "a@example.com", Subject: "s", HTML: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox unavailable")
}

func TestLogTransport(t *testing.T) {
	var buf bytes.Buffer
	tr := NewLogTransport(logging.NewWithOutput("mail", "info", "json", &buf))

	require.NoError(t, tr.Send(context.Background(), Message{To: "a@example.com", Subject: "Hello", HTML: "x"}))
	assert.Contains(t, buf.String(), "a@example.com")
	assert.Error(t, tr.Send(context.Background(), Message{Subject: "Hello"}))
}
