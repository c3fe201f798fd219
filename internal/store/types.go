package store

import "time"

// Conversation statuses.
const (
	StatusOpen    = "open"
	StatusPending = "pending"
	StatusClosed  = "closed"
)

// Message is one row of the messages table. The JSON shape is what the bulk fetch and the
// realtime feed deliver to clients.
type Message struct {
	ID              int64     `json:"id"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
	Phone           string    `json:"phone"`
	ClientID        string    `json:"client_id,omitempty"`
	Name            string    `json:"name,omitempty"`
	Body            string    `json:"message"`
	Status          string    `json:"status,omitempty"`
	FromMe          bool      `json:"from_me"`
	Source          string    `json:"source,omitempty"`
	AuthorName      string    `json:"author_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Conversation is the per-contact record operators act on.
type Conversation struct {
	ID         int64      `json:"id"`
	Phone      string     `json:"phone"`
	Name       string     `json:"name"`
	BotEnabled bool       `json:"bot_enabled"`
	AssignedTo string     `json:"assigned_to,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	Tags       []string   `json:"tags"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Contact holds operator-maintained metadata for a phone number.
type Contact struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Notes     string    `json:"notes"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactPatch carries the fields of an edit; nil fields are left untouched.
type ContactPatch struct {
	Name  *string
	Notes *string
	Tags  []string
}

// Note is an internal annotation on a conversation.
type Note struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Author         string    `json:"author"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// User is an operator account.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
}
