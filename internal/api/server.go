// Package api exposes the coaching service over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/fitcoach/fitcoach/internal/backend"
	"github.com/fitcoach/fitcoach/internal/conversation"
	"github.com/fitcoach/fitcoach/internal/knowledge"
	"github.com/fitcoach/fitcoach/internal/log"
	"github.com/fitcoach/fitcoach/internal/rag"
)

// ConversationStore is the conversation surface the API serves.
type ConversationStore interface {
	Create(ctx context.Context, title string) (conversation.Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	List(ctx context.Context, limit, offset int) ([]conversation.Conversation, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	History(ctx context.Context, id uuid.UUID) ([]conversation.Message, error)
}

// AnswerService runs coaching turns and raw retrieval.
type AnswerService interface {
	Answer(ctx context.Context, conversationID uuid.UUID, query string, opts ...rag.AnswerOption) (rag.Reply, error)
	Search(ctx context.Context, query string, topK int) ([]rag.Passage, error)
}

// KnowledgeManager exposes index maintenance.
type KnowledgeManager interface {
	Stats(ctx context.Context) (knowledge.Stats, error)
	Clear(ctx context.Context) error
}

// HealthChecker reports model runtime availability.
type HealthChecker interface {
	Health(ctx context.Context) backend.Status
}

// Pinger reports database connectivity, satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig contains everything needed to build the API server.
type ServerConfig struct {
	Logger        log.Logger
	Conversations ConversationStore // required
	RAG           AnswerService     // required
	Knowledge     KnowledgeManager  // required
	Health        HealthChecker     // optional, health reports degraded without it
	DB            Pinger            // optional, skips the db check when nil
	CORSOrigins   []string
}

// Server is the JSON API HTTP server.
type Server struct {
	handler http.Handler
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Conversations == nil || cfg.RAG == nil || cfg.Knowledge == nil {
		return nil, errors.New("conversations, rag and knowledge are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &conversationHandler{store: cfg.Conversations, logger: logger}
	th := &chatHandler{rag: cfg.RAG, conversations: cfg.Conversations, logger: logger}
	kh := &knowledgeHandler{knowledge: cfg.Knowledge, rag: cfg.RAG, logger: logger}
	hh := &healthHandler{backend: cfg.Health, db: cfg.DB, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/conversations", ch.list)
	mux.HandleFunc("POST /api/v1/conversations", ch.create)
	mux.HandleFunc("GET /api/v1/conversations/{id}", ch.get)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", ch.delete)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", ch.messages)

	mux.HandleFunc("POST /api/v1/chat", th.send)

	mux.HandleFunc("GET /api/v1/knowledge/stats", kh.stats)
	mux.HandleFunc("GET /api/v1/knowledge/search", kh.search)
	mux.HandleFunc("DELETE /api/v1/knowledge", kh.clear)

	mux.HandleFunc("GET /health", hh.check)

	// Middleware stack, outermost first: Recovery → Logging → CORS.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{handler: handler}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
