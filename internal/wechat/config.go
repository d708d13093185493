package wechat

import (
	"context"
	"errors"

	"github.com/hjin-me/wechatmp/internal/cipher"
	"github.com/hjin-me/wechatmp/internal/token"
)

// Tenant identifies one configured account; see token.Tenant.
type Tenant = token.Tenant

// ErrConfigUnavailable is returned when no configuration exists for a
// tenant. Fatal for the request that triggered the resolve.
var ErrConfigUnavailable = errors.New("tenant configuration unavailable")

// Config is a tenant's integration configuration as entered in the platform
// console. AESKey is nil when message encryption is not configured.
type Config struct {
	EchoToken        string
	AESKey           []byte
	AppID            string
	AppSecret        string
	OAuthRedirectURL string
}

// DecodeAESKey decodes the console's base64 key string; empty means no
// encryption.
func DecodeAESKey(s string) ([]byte, error) {
	return cipher.DecodeKey(s)
}

// ConfigResolver resolves a tenant's configuration. Multi-account
// deployments implement this against their config store; the protocol
// layer only borrows the result per request.
type ConfigResolver interface {
	Resolve(ctx context.Context, tenant Tenant) (*Config, error)
}

// ConstResolver serves one fixed configuration for every tenant; intended
// for single-account deployments.
type ConstResolver struct {
	config Config
}

// NewConstResolver wraps a single configuration.
func NewConstResolver(cfg Config) *ConstResolver {
	return &ConstResolver{config: cfg}
}

// Resolve returns the fixed configuration.
func (r *ConstResolver) Resolve(context.Context, Tenant) (*Config, error) {
	cfg := r.config
	return &cfg, nil
}
