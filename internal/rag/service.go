package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fitcoach/fitcoach/internal/conversation"
	"github.com/fitcoach/fitcoach/internal/log"
)

// State names the stages an answer moves through. A turn either reaches
// StateRecorded or stops in StateFailed; there is no partial outcome
// visible to the caller.
type State string

const (
	StateReceived   State = "received"
	StateRetrieving State = "retrieving"
	StateComposing  State = "composing"
	StateGenerating State = "generating"
	StateRecorded   State = "recorded"
	StateFailed     State = "failed"
)

// maxSources is how many citations an assistant message carries.
const maxSources = 3

// snippetLength bounds the citation excerpt shown to users.
const snippetLength = 120

// PassageRetriever produces ranked passages for a query.
type PassageRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Passage, error)
}

// Generator produces a completion from a system prompt and a composed
// request.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ConversationStore is the slice of the conversation layer the service
// needs.
type ConversationStore interface {
	History(ctx context.Context, id uuid.UUID) ([]conversation.Message, error)
	Append(ctx context.Context, id uuid.UUID, messages ...conversation.Message) error
}

// Reply is the outcome of one answered turn.
type Reply struct {
	Text string `json:"answer"`
	// Sources cites the passages behind the answer, at most maxSources,
	// highest similarity first. Empty when retrieval was skipped or
	// degraded.
	Sources []conversation.Source `json:"sources"`
	// Degraded marks answers generated without context after a
	// retrieval failure.
	Degraded bool `json:"degraded,omitempty"`
}

// Service orchestrates a coaching turn: retrieve context, compose the
// prompt, generate the answer and record both messages.
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	retriever     PassageRetriever
	composer      *Composer
	generator     Generator
	conversations ConversationStore
	ragEnabled    bool
	logger        log.Logger
}

// NewService wires the answer pipeline. ragEnabled false skips retrieval
// for every turn; individual turns can also opt out via WithoutRetrieval.
func NewService(retriever PassageRetriever, composer *Composer, generator Generator, conversations ConversationStore, ragEnabled bool, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	if composer == nil {
		composer = NewComposer(0)
	}
	return &Service{
		retriever:     retriever,
		composer:      composer,
		generator:     generator,
		conversations: conversations,
		ragEnabled:    ragEnabled,
		logger:        logger,
	}
}

// AnswerOption adjusts a single turn.
type AnswerOption func(*answerConfig)

type answerConfig struct {
	skipRetrieval bool
	topK          int
}

// WithoutRetrieval answers from the model alone for this turn. The reply
// carries no sources.
func WithoutRetrieval() AnswerOption {
	return func(c *answerConfig) { c.skipRetrieval = true }
}

// WithTopK overrides the retrieval depth for this turn.
func WithTopK(k int) AnswerOption {
	return func(c *answerConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// Answer runs one turn against an existing conversation. On success both
// the user message and the assistant reply are recorded atomically before
// the reply is returned. A retrieval failure degrades to answering without
// context; a generation failure returns ErrGeneration and records nothing.
func (s *Service) Answer(ctx context.Context, conversationID uuid.UUID, query string, opts ...AnswerOption) (Reply, error) {
	cfg := &answerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	state := StateReceived
	fail := func(err error) (Reply, error) {
		s.logger.Warn("turn failed", "conversation_id", conversationID, "state", state, "error", err)
		return Reply{}, err
	}

	// History doubles as the existence check: unknown conversations
	// surface conversation.ErrNotFound before any model call.
	history, err := s.conversations.History(ctx, conversationID)
	if err != nil {
		return fail(err)
	}

	state = StateRetrieving
	var passages []Passage
	degraded := false
	if s.ragEnabled && !cfg.skipRetrieval {
		passages, err = s.retriever.Retrieve(ctx, query, cfg.topK)
		if err != nil {
			// Retrieval failures are survivable: answer from the
			// model alone and say so in the reply.
			s.logger.Warn("retrieval failed, answering without context",
				"conversation_id", conversationID, "error", err)
			passages = nil
			degraded = true
		}
	}

	state = StateComposing
	prompt := s.composer.Compose(query, passages, history)

	state = StateGenerating
	answer, err := s.generator.Generate(ctx, SystemPrompt, prompt)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrGeneration, err))
	}

	state = StateRecorded
	sources := citations(passages)
	err = s.conversations.Append(ctx, conversationID,
		conversation.Message{Role: conversation.RoleUser, Content: query},
		conversation.Message{Role: conversation.RoleAssistant, Content: answer, Sources: sources},
	)
	if err != nil {
		return fail(fmt.Errorf("record turn: %w", err))
	}

	s.logger.Info("turn recorded",
		"conversation_id", conversationID,
		"passages", len(passages),
		"degraded", degraded,
		"answer_length", len(answer))
	return Reply{Text: answer, Sources: sources, Degraded: degraded}, nil
}

// Search exposes raw retrieval for inspection commands, bypassing
// generation and recording.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]Passage, error) {
	return s.retriever.Retrieve(ctx, query, topK)
}

// citations converts the best passages into stored source references.
func citations(passages []Passage) []conversation.Source {
	n := min(len(passages), maxSources)
	sources := make([]conversation.Source, 0, n)
	for _, p := range passages[:n] {
		sources = append(sources, conversation.Source{
			Name:       p.Source,
			Snippet:    snippet(p.Text),
			Similarity: p.Similarity,
		})
	}
	return sources
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}
