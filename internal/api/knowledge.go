package api

import (
	"net/http"
	"strings"

	"github.com/fitcoach/fitcoach/internal/log"
	"github.com/fitcoach/fitcoach/internal/rag"
)

type knowledgeHandler struct {
	knowledge KnowledgeManager
	rag       AnswerService
	logger    log.Logger
}

func (h *knowledgeHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.knowledge.Stats(r.Context())
	if err != nil {
		h.logger.Error("reading knowledge stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not read stats", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, stats, h.logger)
}

func (h *knowledgeHandler) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query parameter q is required", h.logger)
		return
	}
	topK := queryInt(r, "top_k", 0)

	passages, err := h.rag.Search(r.Context(), query, topK)
	if err != nil {
		h.logger.Error("knowledge search", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed", h.logger)
		return
	}
	if passages == nil {
		passages = []rag.Passage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": passages}, h.logger)
}

func (h *knowledgeHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.knowledge.Clear(r.Context()); err != nil {
		h.logger.Error("clearing knowledge index", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not clear index", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true}, h.logger)
}
