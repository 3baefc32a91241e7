package email

import (
	"context"
	"testing"

	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTicketConfirmation(t *testing.T) {
	data := map[string]string{
		"BuyerName":  "Ada",
		"EventTitle": "Jazz <Night>",
		"OrderID":    "ev_buyer_1",
		"Amount":     "25.00 USD",
		"OrdersURL":  "https://eventsphere.test/profile",
	}
	subject, html, text, err := NewTemplateRenderer().Render(TemplateTicketConfirmation, data)
	require.NoError(t, err)
	assert.Equal(t, "Your ticket for Jazz <Night>", subject)
	assert.Contains(t, html, "Jazz &lt;Night&gt;")
	assert.Contains(t, text, "25.00 USD")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, _, err := NewTemplateRenderer().Render("missing", nil)
	assert.Error(t, err)
}

func TestNewMailerFallsBackToNoop(t *testing.T) {
	m := NewMailer(MailerConfig{Provider: "smtp"}, observability.NewNopLogger())
	_, ok := m.(*noopMailer)
	assert.True(t, ok)
	assert.NoError(t, m.Send(context.Background(), "a@b.c", "s", "", ""))

	assert.Equal(t, "Event Sphere <no-reply@example.com>", formatSource("Event Sphere", "no-reply@example.com"))
}
