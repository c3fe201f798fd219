package wa

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/matheus3301/wppcrm/internal/ingest"
)

// LIDResolver maps hidden-user JIDs back to phone JIDs.
type LIDResolver interface {
	ResolveLID(ctx context.Context, jid types.JID) types.JID
}

// ParseLiveMessage converts a live whatsmeow message into an inbound row. ok is false for
// chats the CRM does not track (groups, broadcasts, status updates) and for empty messages.
func ParseLiveMessage(ctx context.Context, evt *events.Message, r LIDResolver) (in ingest.Inbound, ok bool) {
	return parseMessage(ctx, r, evt.Info.Chat, evt.Info.ID, evt.Info.PushName, evt.Info.IsFromMe, evt.Info.Timestamp, evt.Message)
}

func parseMessage(ctx context.Context, r LIDResolver, chat types.JID, id, pushName string, fromMe bool, at time.Time, msg *waE2E.Message) (ingest.Inbound, bool) {
	if chat.Server == types.GroupServer || chat.Server == types.BroadcastServer || chat.Server == types.NewsletterServer {
		return ingest.Inbound{}, false
	}
	if r != nil {
		chat = r.ResolveLID(ctx, chat)
	}
	phone := chat.ToNonAD().User
	text := extractTextBody(msg)
	if text == "" {
		text = mediaPlaceholder(detectMessageType(msg))
	}
	if phone == "" || text == "" {
		return ingest.Inbound{}, false
	}
	in := ingest.Inbound{
		ExternalID: id,
		Phone:      phone,
		Text:       text,
		FromMe:     fromMe,
		Source:     ingest.SourceWhatsmeow,
		At:         at,
	}
	if !fromMe {
		in.Name = pushName
	}
	return in, true
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil && img.GetCaption() != "" {
		return img.GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}

// mediaPlaceholder is the text stored for messages without a text body.
func mediaPlaceholder(kind string) string {
	switch kind {
	case "text", "unknown":
		return ""
	default:
		return "[" + kind + "]"
	}
}
