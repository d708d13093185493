package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hjin-me/wechatmp/internal/token"
	"github.com/hjin-me/wechatmp/internal/wechat"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	wc    *wechat.Wechat
	redis *token.RedisStore
	log   zerolog.Logger
}

// NewHandler creates a new Handler around the protocol orchestrator. The
// redis store may be nil when the in-process token cache is used.
func NewHandler(wc *wechat.Wechat, redis *token.RedisStore, logger zerolog.Logger) *Handler {
	return &Handler{wc: wc, redis: redis, log: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
