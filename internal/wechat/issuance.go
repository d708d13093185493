package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrIssuance wraps failures of the outbound token issuance call. It is
// propagated to GetAccessToken callers and never cached.
var ErrIssuance = errors.New("credential issuance failed")

// TokenIssuer performs the outbound call that obtains a fresh access
// credential for an app id / secret pair, returning the bearer value and
// its relative TTL in seconds.
type TokenIssuer interface {
	Issue(ctx context.Context, appID, appSecret string) (accessToken string, expiresIn int64, err error)
}

const platformAPI = "https://api.weixin.qq.com"

// APIIssuer issues credentials against the platform's token endpoint.
type APIIssuer struct {
	BaseURL string
	Client  *http.Client
}

// NewAPIIssuer returns an issuer pointed at the production platform API.
func NewAPIIssuer() *APIIssuer {
	return &APIIssuer{
		BaseURL: platformAPI,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// issuanceResponse is the platform's token endpoint body. Errors share the
// envelope: a non-zero errcode plus errmsg instead of the token fields.
type issuanceResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

// Issue calls cgi-bin/token with client-credential grant.
func (i *APIIssuer) Issue(ctx context.Context, appID, appSecret string) (string, int64, error) {
	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", appID)
	q.Set("secret", appSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		i.BaseURL+"/cgi-bin/token?"+q.Encode(), nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrIssuance, err)
	}

	resp, err := i.Client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrIssuance, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrIssuance, err)
	}

	var parsed issuanceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, fmt.Errorf("%w: bad response: %v", ErrIssuance, err)
	}
	if parsed.ErrCode != 0 {
		return "", 0, fmt.Errorf("%w: code %d: %s", ErrIssuance, parsed.ErrCode, parsed.ErrMsg)
	}
	if parsed.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: empty token in response", ErrIssuance)
	}
	return parsed.AccessToken, parsed.ExpiresIn, nil
}
