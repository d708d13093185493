package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hjin-me/wechatmp/internal/cipher"
	"github.com/hjin-me/wechatmp/internal/signature"
	"github.com/hjin-me/wechatmp/internal/wechat"
	"github.com/hjin-me/wechatmp/internal/wire"
)

// Echo handles the platform's GET ownership probe. On success the echostr
// is returned verbatim (decrypted first in encrypted mode).
func (h *Handler) Echo(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	p := verificationParams(r)
	out, err := h.wc.HandleEcho(r.Context(), p, r.URL.Query().Get("echostr"), tenant)
	if err != nil {
		h.reject(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(out))
}

// Callback handles the platform's POST message delivery. An empty body in
// the 200 response tells the platform no reply is needed.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "unreadable body")
		return
	}

	p := verificationParams(r)
	out, err := h.wc.HandleCallback(r.Context(), p, string(body), tenant)
	if err != nil {
		h.reject(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write([]byte(out))
}

// tenant parses the {tenant} route parameter, writing a 404 on failure.
func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (wechat.Tenant, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "tenant"), 10, 64)
	if err != nil {
		h.Error(w, http.StatusNotFound, "unknown tenant")
		return 0, false
	}
	return wechat.Tenant(id), true
}

// reject maps orchestrator errors onto HTTP statuses. Verification and
// payload failures must stay distinguishable from internal ones.
func (h *Handler) reject(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wechat.ErrConfigUnavailable):
		h.Error(w, http.StatusNotFound, "unknown tenant")
	case errors.Is(err, signature.ErrInvalidSignature):
		h.Error(w, http.StatusForbidden, "signature verification failed")
	case errors.Is(err, cipher.ErrEncryption),
		errors.Is(err, cipher.ErrAppIDMismatch),
		errors.Is(err, wire.ErrDecode):
		h.Error(w, http.StatusBadRequest, "malformed message")
	default:
		h.log.Error().Err(err).Msg("callback processing failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// verificationParams collects the platform's query-string verification
// parameters. A missing or malformed timestamp is left zero and fails
// signature verification downstream.
func verificationParams(r *http.Request) wechat.Params {
	q := r.URL.Query()
	ts, _ := strconv.ParseInt(q.Get("timestamp"), 10, 64)
	return wechat.Params{
		Signature:    q.Get("signature"),
		Timestamp:    ts,
		Nonce:        q.Get("nonce"),
		MsgSignature: q.Get("msg_signature"),
		EncryptType:  q.Get("encrypt_type"),
	}
}
