package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fitcoach/fitcoach/internal/conversation"
	"github.com/fitcoach/fitcoach/internal/log"
	"github.com/fitcoach/fitcoach/internal/rag"
)

// maxChatBodyBytes bounds chat request bodies.
const maxChatBodyBytes = 64 * 1024

type chatHandler struct {
	rag           AnswerService
	conversations ConversationStore
	logger        log.Logger
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	UseRAG         *bool  `json:"use_rag,omitempty"`
	TopK           int    `json:"top_k,omitempty"`
}

type chatResponse struct {
	ConversationID uuid.UUID             `json:"conversation_id"`
	Answer         string                `json:"answer"`
	Sources        []conversation.Source `json:"sources"`
	Degraded       bool                  `json:"degraded,omitempty"`
}

// send answers one chat turn. An empty conversation_id starts a new
// conversation titled after the first message.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required", h.logger)
		return
	}

	var convID uuid.UUID
	if req.ConversationID == "" {
		conv, err := h.conversations.Create(r.Context(), titleFromMessage(req.Message))
		if err != nil {
			h.logger.Error("creating conversation for chat", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not create conversation", h.logger)
			return
		}
		convID = conv.ID
	} else {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "conversation_id must be a UUID", h.logger)
			return
		}
		convID = id
	}

	var opts []rag.AnswerOption
	if req.UseRAG != nil && !*req.UseRAG {
		opts = append(opts, rag.WithoutRetrieval())
	}
	if req.TopK > 0 {
		opts = append(opts, rag.WithTopK(req.TopK))
	}

	reply, err := h.rag.Answer(r.Context(), convID, req.Message, opts...)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
		case errors.Is(err, rag.ErrGeneration):
			h.logger.Error("generation failed", "conversation_id", convID, "error", err)
			writeError(w, http.StatusBadGateway, "generation_failed", "the model could not produce an answer", h.logger)
		default:
			h.logger.Error("answering chat turn", "conversation_id", convID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not answer", h.logger)
		}
		return
	}

	sources := reply.Sources
	if sources == nil {
		sources = []conversation.Source{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: convID,
		Answer:         reply.Text,
		Sources:        sources,
		Degraded:       reply.Degraded,
	}, h.logger)
}

// titleFromMessage derives a short conversation title from the first user
// message.
func titleFromMessage(message string) string {
	const maxTitle = 60
	title := strings.Join(strings.Fields(message), " ")
	runes := []rune(title)
	if len(runes) > maxTitle {
		title = string(runes[:maxTitle]) + "..."
	}
	return title
}

// decodeJSON reads a bounded JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxChatBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
