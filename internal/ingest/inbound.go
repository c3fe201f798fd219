package ingest

import (
	"strings"
	"time"

	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/normalize"
)

// Sources recorded on stored rows.
const (
	SourceWebhook   = "Z-API-webhook"
	SourceWhatsmeow = "whatsmeow"
	SourceDashboard = "crmtui"
	SourceCLI       = "crmctl"
)

// defaultInboundName is stored when the provider did not say who wrote the message.
const defaultInboundName = "WhatsApp"

// Webhook payload synonyms, tried in order.
var (
	webhookPhoneFields = []string{"to", "phone", "numero", "recipient"}
	webhookTextFields  = []string{"message", "text", "body", "mensagem"}
	webhookNameFields  = []string{"fromName", "senderName"}
)

// Inbound is a message received from a provider, before it is stored.
type Inbound struct {
	ExternalID string
	Phone      string
	Name       string
	Text       string
	FromMe     bool
	Source     string
	At         time.Time
}

// FromWebhook extracts an Inbound from a provider payload. Missing phone or text is a
// validation error.
func FromWebhook(payload map[string]any) (Inbound, error) {
	in := Inbound{
		Phone:  firstString(payload, webhookPhoneFields),
		Text:   firstString(payload, webhookTextFields),
		Name:   firstString(payload, webhookNameFields),
		Source: SourceWebhook,
		At:     time.Now(),
	}
	if in.Phone == "" || in.Text == "" {
		return Inbound{}, crmerr.Errorf(crmerr.Validation, "webhook", "missing phone or message")
	}
	return in, nil
}

func firstString(payload map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := payload[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Outbound is an operator-authored message sent to the persistence endpoint.
type Outbound struct {
	ClientMessageID string `json:"clientMessageId"`
	ContactKey      string `json:"contactKey"`
	Text            string `json:"text"`
	AuthorName      string `json:"authorName"`
	Source          string `json:"source"`
	FromMe          bool   `json:"fromMe"`
}

// Validate checks the fields every persisted outbound message needs.
func (o Outbound) Validate() error {
	switch {
	case strings.TrimSpace(o.ContactKey) == "":
		return crmerr.Errorf(crmerr.Validation, "persist message", "contactKey required")
	case strings.TrimSpace(o.Text) == "":
		return crmerr.Errorf(crmerr.Validation, "persist message", "text required")
	case o.ClientMessageID != "" && strings.HasPrefix(o.ClientMessageID, normalize.LocalIDPrefix):
		return crmerr.Errorf(crmerr.Validation, "persist message", "clientMessageId must not use the local id prefix")
	}
	return nil
}
