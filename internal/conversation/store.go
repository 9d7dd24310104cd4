package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitcoach/fitcoach/internal/log"
)

// Querier defines the database operations Store needs. The interface lives
// with its consumer so tests can substitute an in-memory implementation.
type Querier interface {
	CreateConversation(ctx context.Context, id uuid.UUID, title string) (Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id uuid.UUID) (bool, error)
	LockConversation(ctx context.Context, id uuid.UUID) error
	MaxSequenceNumber(ctx context.Context, conversationID uuid.UUID) (int, error)
	InsertMessage(ctx context.Context, arg InsertMessageParams) error
	GetMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
	TouchConversation(ctx context.Context, id uuid.UUID, messageCount int) error
}

// Store manages conversation persistence on PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines. Appends to the
// same conversation serialize on a row lock so sequence numbers stay dense.
type Store struct {
	querier Querier
	pool    *pgxpool.Pool // nil in unit tests, appends then skip the transaction
	logger  log.Logger
}

// NewStore creates a Store. Pool may be nil for tests with a mock querier;
// production code must pass the real pool so Append runs transactionally.
func NewStore(querier Querier, pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		querier: querier,
		pool:    pool,
		logger:  logger,
	}
}

// Create starts a new conversation. An empty title gets a timestamp default
// so listings stay readable.
func (s *Store) Create(ctx context.Context, title string) (Conversation, error) {
	if title == "" {
		title = "Conversation " + time.Now().Format("2006-01-02 15:04")
	}
	conv, err := s.querier.CreateConversation(ctx, uuid.New(), title)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Debug("created conversation", "id", conv.ID, "title", conv.Title)
	return conv, nil
}

// Get fetches a conversation by id, returning ErrNotFound for unknown ids.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Conversation, error) {
	return s.querier.GetConversation(ctx, id)
}

// List returns conversations most recently updated first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	convs, err := s.querier.ListConversations(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// Delete removes a conversation and its messages. Deleting an unknown id is
// not an error; the bool reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted, err := s.querier.DeleteConversation(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete conversation %s: %w", id, err)
	}
	if deleted {
		s.logger.Debug("deleted conversation", "id", id)
	}
	return deleted, nil
}

// History returns the full message history in dialogue order. Unknown
// conversations yield ErrNotFound rather than an empty history.
func (s *Store) History(ctx context.Context, id uuid.UUID) ([]Message, error) {
	messages, err := s.querier.GetMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", id, err)
	}
	if len(messages) == 0 {
		if _, err := s.querier.GetConversation(ctx, id); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// Append adds messages to a conversation as one atomic unit: either every
// message lands with consecutive sequence numbers and the conversation
// metadata is updated, or nothing changes. Returns ErrNotFound when the
// conversation does not exist.
func (s *Store) Append(ctx context.Context, id uuid.UUID, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}

	if s.pool == nil {
		return s.appendWith(ctx, s.querier, id, messages)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(ctx)
	}()

	if err := s.appendWith(ctx, NewQueries(tx), id, messages); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append transaction: %w", err)
	}

	s.logger.Debug("appended messages", "conversation_id", id, "count", len(messages))
	return nil
}

func (s *Store) appendWith(ctx context.Context, q Querier, id uuid.UUID, messages []Message) error {
	// Row lock first so concurrent appends to one conversation serialize
	// and sequence numbers never collide.
	if err := q.LockConversation(ctx, id); err != nil {
		return err
	}

	maxSeq, err := q.MaxSequenceNumber(ctx, id)
	if err != nil {
		return fmt.Errorf("read sequence number for %s: %w", id, err)
	}

	for i, msg := range messages {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			return fmt.Errorf("message %d has invalid role %q", i, msg.Role)
		}
		err := q.InsertMessage(ctx, InsertMessageParams{
			ID:             uuid.New(),
			ConversationID: id,
			Role:           msg.Role,
			Content:        msg.Content,
			Sources:        msg.Sources,
			Seq:            maxSeq + i + 1,
		})
		if err != nil {
			return fmt.Errorf("insert message %d for %s: %w", i, id, err)
		}
	}

	if err := q.TouchConversation(ctx, id, maxSeq+len(messages)); err != nil {
		return fmt.Errorf("update conversation %s metadata: %w", id, err)
	}
	return nil
}
