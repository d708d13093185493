// Package wechat is the protocol orchestrator for the official-account
// webhook: it composes signature verification, the message cipher and the
// wire codec with a configurable handler chain to answer the platform's
// echo-verification and message-callback entry points, and owns access
// token acquisition for outbound API calls.
package wechat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hjin-me/wechatmp/internal/cipher"
	"github.com/hjin-me/wechatmp/internal/metrics"
	"github.com/hjin-me/wechatmp/internal/signature"
	"github.com/hjin-me/wechatmp/internal/token"
	"github.com/hjin-me/wechatmp/internal/wire"
)

// Params are the request verification parameters; see signature.Params.
type Params = signature.Params

// CallbackHandler processes one decoded callback message. Handlers run in
// registration order; each receives the previous handler's reply and
// returns the next one, so a handler may pass prev through, replace it, or
// clear it by returning nil.
type CallbackHandler interface {
	OnMessage(ctx context.Context, tenant Tenant, prev wire.Reply, msg wire.Inbound) (wire.Reply, error)
}

// HandlerFunc adapts a function to CallbackHandler.
type HandlerFunc func(ctx context.Context, tenant Tenant, prev wire.Reply, msg wire.Inbound) (wire.Reply, error)

// OnMessage calls f.
func (f HandlerFunc) OnMessage(ctx context.Context, tenant Tenant, prev wire.Reply, msg wire.Inbound) (wire.Reply, error) {
	return f(ctx, tenant, prev, msg)
}

// Wechat is the protocol orchestrator. All dependencies are passed in
// explicitly; there is no process-wide instance.
type Wechat struct {
	resolver ConfigResolver
	tokens   token.Store
	issuer   TokenIssuer
	log      zerolog.Logger

	mu       sync.RWMutex
	handlers []CallbackHandler
}

// New assembles an orchestrator.
func New(resolver ConfigResolver, tokens token.Store, issuer TokenIssuer, logger zerolog.Logger) *Wechat {
	return &Wechat{
		resolver: resolver,
		tokens:   tokens,
		issuer:   issuer,
		log:      logger,
	}
}

// Register appends a callback handler. Registration happens during startup;
// dispatch takes a read lock, so registering concurrently with traffic is
// safe but ordering is whatever registration order was.
func (w *Wechat) Register(h CallbackHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// HandleEcho answers the platform's ownership handshake: verify the header
// signature and round-trip the echo payload, decrypting it when the
// account runs in encrypted mode.
func (w *Wechat) HandleEcho(ctx context.Context, p Params, echostr string, tenant Tenant) (string, error) {
	metrics.EchoRequests.Inc()

	cfg, err := w.resolver.Resolve(ctx, tenant)
	if err != nil {
		return "", err
	}
	if err := signature.VerifyHeader(cfg.EchoToken, p); err != nil {
		w.log.Warn().Uint64("tenant", uint64(tenant)).Msg("echo header signature rejected")
		return "", err
	}
	if p.EncryptType == "" {
		return echostr, nil
	}
	if err := signature.VerifyPayload(cfg.EchoToken, p, echostr); err != nil {
		w.log.Warn().Uint64("tenant", uint64(tenant)).Msg("echo payload signature rejected")
		return "", err
	}
	if cfg.AESKey == nil {
		return echostr, nil
	}
	return cipher.Decrypt(cfg.AESKey, echostr, cfg.AppID)
}

// HandleCallback authenticates, decrypts and decodes one callback request,
// runs the handler chain, and returns the encoded reply markup. An empty
// string means "no reply needed"; the platform treats that as success.
func (w *Wechat) HandleCallback(ctx context.Context, p Params, body string, tenant Tenant) (string, error) {
	cfg, err := w.resolver.Resolve(ctx, tenant)
	if err != nil {
		metrics.CallbackRejections.WithLabelValues("config").Inc()
		return "", err
	}
	if err := signature.VerifyHeader(cfg.EchoToken, p); err != nil {
		metrics.CallbackRejections.WithLabelValues("signature").Inc()
		w.log.Warn().Uint64("tenant", uint64(tenant)).Msg("callback header signature rejected")
		return "", err
	}

	markup := body
	if p.EncryptType != "" {
		enc, err := wire.ExtractEncrypted(body)
		if err != nil {
			metrics.CallbackRejections.WithLabelValues("decode").Inc()
			return "", err
		}
		if err := signature.VerifyPayload(cfg.EchoToken, p, enc); err != nil {
			metrics.CallbackRejections.WithLabelValues("signature").Inc()
			w.log.Warn().Uint64("tenant", uint64(tenant)).Msg("callback payload signature rejected")
			return "", err
		}
		if cfg.AESKey != nil {
			// Payload is never logged here: the error path must not leak
			// ciphertext or partial plaintext.
			markup, err = cipher.Decrypt(cfg.AESKey, enc, cfg.AppID)
			if err != nil {
				metrics.CallbackRejections.WithLabelValues("cipher").Inc()
				w.log.Warn().Uint64("tenant", uint64(tenant)).Err(err).Msg("callback decrypt failed")
				return "", err
			}
		}
	}

	msg, err := wire.Decode(markup)
	if err != nil {
		metrics.CallbackRejections.WithLabelValues("decode").Inc()
		w.log.Warn().Uint64("tenant", uint64(tenant)).Err(err).Msg("callback decode failed")
		return "", err
	}
	metrics.CallbacksProcessed.Inc()

	w.mu.RLock()
	handlers := make([]CallbackHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	var reply wire.Reply
	for _, h := range handlers {
		reply, err = h.OnMessage(ctx, tenant, reply, msg)
		if err != nil {
			return "", err
		}
	}
	if reply == nil {
		return "", nil
	}

	// The reply travels the reverse direction of the inbound message.
	in := msg.Info()
	wire.Stamp(reply, in.To, in.From)
	return wire.Encode(reply), nil
}

// GetAccessToken returns the tenant's cached access credential, refreshing
// it under the tenant's refresh lock when absent or expired. Double-checked:
// after acquiring the lock the cache is read again, since another holder
// may have refreshed while this caller waited.
func (w *Wechat) GetAccessToken(ctx context.Context, tenant Tenant) (token.Credential, error) {
	cfg, err := w.resolver.Resolve(ctx, tenant)
	if err != nil {
		return token.Credential{}, err
	}

	if cred, err := w.tokens.Get(ctx, tenant); err != nil {
		return token.Credential{}, err
	} else if cred != nil {
		return *cred, nil
	}

	guard, err := w.tokens.Lock(ctx, tenant)
	if err != nil {
		if err == token.ErrLockTimeout {
			metrics.TokenLockTimeouts.Inc()
		}
		return token.Credential{}, err
	}
	defer guard.Release()

	if cred, err := w.tokens.Get(ctx, tenant); err != nil {
		return token.Credential{}, err
	} else if cred != nil {
		return *cred, nil
	}

	accessToken, expiresIn, err := w.issuer.Issue(ctx, cfg.AppID, cfg.AppSecret)
	if err != nil {
		return token.Credential{}, err
	}
	cred := token.NewCredential(accessToken, expiresIn)

	if err := w.tokens.Set(ctx, tenant, &cred); err != nil {
		return token.Credential{}, err
	}
	metrics.TokenRefreshes.Inc()
	w.log.Info().
		Uint64("tenant", uint64(tenant)).
		Time("expires_at", cred.ExpiresAt).
		Msg("access token refreshed")

	return cred, nil
}

// InvalidateAccessToken removes the cached credential, forcing the next
// GetAccessToken to refresh. Called when a downstream API call reports the
// token rejected.
func (w *Wechat) InvalidateAccessToken(ctx context.Context, tenant Tenant) error {
	return w.tokens.Set(ctx, tenant, nil)
}
