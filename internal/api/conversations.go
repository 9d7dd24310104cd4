package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/fitcoach/fitcoach/internal/conversation"
	"github.com/fitcoach/fitcoach/internal/log"
)

type conversationHandler struct {
	store  ConversationStore
	logger log.Logger
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	conv, err := h.store.Create(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("creating conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not create conversation", h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, conv, h.logger)
}

func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	convs, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("listing conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list conversations", h.logger)
		return
	}
	if convs == nil {
		convs = []conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs}, h.logger)
}

func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, h.logger)
	if !ok {
		return
	}
	conv, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "could not load conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv, h.logger)
}

func (h *conversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, h.logger)
	if !ok {
		return
	}
	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "could not delete conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted}, h.logger)
}

func (h *conversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, h.logger)
	if !ok {
		return
	}
	history, err := h.store.History(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "could not load messages")
		return
	}
	if history == nil {
		history = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": history}, h.logger)
}

func (h *conversationHandler) writeStoreError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
		return
	}
	h.logger.Error("conversation store error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", fallback, h.logger)
}

// pathUUID parses the {id} path segment, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, logger log.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a UUID", logger)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
