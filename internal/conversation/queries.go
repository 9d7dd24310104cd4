package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx a Queries value needs, satisfied by both
// *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries runs the conversation SQL against a pgx connection.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries bound to the given connection or pool.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const conversationColumns = `id, title, message_count, created_at, updated_at`

// CreateConversation inserts a new conversation row and returns it.
func (q *Queries) CreateConversation(ctx context.Context, id uuid.UUID, title string) (Conversation, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO conversations (id, title)
VALUES ($1, $2)
RETURNING `+conversationColumns, id, title)
	return scanConversation(row)
}

// GetConversation fetches one conversation, returning ErrNotFound when the
// id does not exist.
func (q *Queries) GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error) {
	row := q.db.QueryRow(ctx, `
SELECT `+conversationColumns+`
FROM conversations
WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return conv, err
}

// ListConversations returns conversations most recently updated first.
func (q *Queries) ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error) {
	rows, err := q.db.Query(ctx, `
SELECT `+conversationColumns+`
FROM conversations
ORDER BY updated_at DESC, id
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// DeleteConversation removes a conversation and, via CASCADE, its messages.
// Reports whether a row was actually deleted.
func (q *Queries) DeleteConversation(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// LockConversation takes a row lock so concurrent appends to the same
// conversation serialize. Returns ErrNotFound for unknown ids.
func (q *Queries) LockConversation(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := q.db.QueryRow(ctx, `
SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return err
}

// MaxSequenceNumber returns the highest assigned sequence number, 0 when the
// conversation has no messages yet.
func (q *Queries) MaxSequenceNumber(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var maxSeq int
	err := q.db.QueryRow(ctx, `
SELECT COALESCE(MAX(sequence_number), 0)
FROM conversation_messages
WHERE conversation_id = $1`, conversationID).Scan(&maxSeq)
	return maxSeq, err
}

// InsertMessageParams carries one message row.
type InsertMessageParams struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	Sources        []Source
	Seq            int
}

// InsertMessage appends one message row at the given sequence number.
func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) error {
	sources, err := json.Marshal(arg.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	_, err = q.db.Exec(ctx, `
INSERT INTO conversation_messages (id, conversation_id, role, content, sources, sequence_number)
VALUES ($1, $2, $3, $4, $5, $6)`,
		arg.ID, arg.ConversationID, arg.Role, arg.Content, sources, arg.Seq)
	return err
}

// GetMessages returns every message of a conversation in dialogue order.
func (q *Queries) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	rows, err := q.db.Query(ctx, `
SELECT id, conversation_id, role, content, sources, sequence_number, created_at
FROM conversation_messages
WHERE conversation_id = $1
ORDER BY sequence_number`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var sources []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &sources, &msg.Seq, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &msg.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal sources for %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// TouchConversation bumps updated_at and records the new message count.
func (q *Queries) TouchConversation(ctx context.Context, id uuid.UUID, messageCount int) error {
	_, err := q.db.Exec(ctx, `
UPDATE conversations
SET updated_at = now(), message_count = $2
WHERE id = $1`, id, messageCount)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (Conversation, error) {
	var conv Conversation
	err := row.Scan(&conv.ID, &conv.Title, &conv.MessageCount, &conv.CreatedAt, &conv.UpdatedAt)
	return conv, err
}
