package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a conversation id does not exist.
var ErrNotFound = errors.New("conversation not found")

// Message roles. Only these two appear in stored history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a persistent dialogue thread.
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Source is a citation attached to an assistant message, pointing at the
// knowledge chunk that informed the answer.
type Source struct {
	Name       string  `json:"source"`
	Snippet    string  `json:"snippet"`
	Similarity float64 `json:"similarity"`
}

// Message is one turn in a conversation. Sequence numbers are dense and
// assigned by the store; ordering by Seq reproduces the dialogue exactly.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Sources        []Source  `json:"sources,omitempty"`
	Seq            int       `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}
