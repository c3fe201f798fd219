package normalize

// Candidate field names per canonical field, tried in order. The first present, non-null
// value wins. Integrations disagree on spelling, so every list is static configuration.
var (
	IDFields              = []string{"id", "ID", "pk", "message_id"}
	ClientMessageIDFields = []string{"client_message_id", "clientMessageId"}
	PhoneFields           = []string{"phone", "telefone", "numero", "to", "recipient"}
	ClientFields          = []string{"client_id", "cliente_id", "clientId", "client"}
	NameFields            = []string{"nome", "name", "nome_cliente", "client_name", "fromName", "senderName"}
	TextFields            = []string{"message", "mensagem", "text", "body"}
	TimeFields            = []string{"created_at", "inserted_at", "ts"}
	StatusFields          = []string{"status", "st", "state"}
	FromMeFields          = []string{"from_me", "fromMe"}
	SourceFields          = []string{"source", "origem"}
)

// Bot markers.
var (
	botStatusMarker = "bot"
	botTextPrefixes = []string{"[bot]", "🤖"}
)
