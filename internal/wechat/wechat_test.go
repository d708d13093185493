package wechat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hjin-me/wechatmp/internal/cipher"
	"github.com/hjin-me/wechatmp/internal/signature"
	"github.com/hjin-me/wechatmp/internal/token"
	"github.com/hjin-me/wechatmp/internal/wire"
)

const (
	testEchoToken = "echo-token"
	testAppID     = "wx1234567890abcdef"
)

var testAESKey = bytes.Repeat([]byte{0x42}, 32)

type countingIssuer struct {
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (i *countingIssuer) Issue(context.Context, string, string) (string, int64, error) {
	i.calls.Add(1)
	if i.delay > 0 {
		time.Sleep(i.delay)
	}
	if i.err != nil {
		return "", 0, i.err
	}
	return "ACCESS_TOKEN", 7200, nil
}

func newTestWechat(issuer TokenIssuer, encrypted bool) (*Wechat, *token.MemoryStore) {
	cfg := Config{
		EchoToken: testEchoToken,
		AppID:     testAppID,
		AppSecret: "secret",
	}
	if encrypted {
		cfg.AESKey = testAESKey
	}
	store := token.NewMemoryStore()
	store.RetryInterval = 5 * time.Millisecond
	w := New(NewConstResolver(cfg), store, issuer, zerolog.Nop())
	return w, store
}

func headerParams(t *testing.T, ts int64, nonce string) Params {
	t.Helper()
	return Params{
		Signature: signature.Compute(testEchoToken, ts, nonce, ""),
		Timestamp: ts,
		Nonce:     nonce,
	}
}

const textCallback = `<xml>
  <ToUserName><![CDATA[toUser]]></ToUserName>
  <FromUserName><![CDATA[fromUser]]></FromUserName>
  <CreateTime>1348831860</CreateTime>
  <MsgType><![CDATA[text]]></MsgType>
  <Content><![CDATA[this is a test]]></Content>
  <MsgId>1234567890123456</MsgId>
</xml>`

func TestHandleEchoPlaintext(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, false)

	out, err := w.HandleEcho(context.Background(), headerParams(t, 1348831860, "nonce"), "random-echo", 1)
	require.NoError(t, err)
	assert.Equal(t, "random-echo", out)
}

func TestHandleEchoBadSignature(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, false)

	p := headerParams(t, 1348831860, "nonce")
	p.Signature = "deadbeef"
	_, err := w.HandleEcho(context.Background(), p, "random-echo", 1)
	assert.ErrorIs(t, err, signature.ErrInvalidSignature)
}

func TestHandleEchoEncrypted(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, true)

	enc, err := cipher.Encrypt(testAESKey, "echo-plaintext", testAppID)
	require.NoError(t, err)

	p := headerParams(t, 1348831860, "nonce")
	p.EncryptType = "aes"
	p.MsgSignature = signature.Compute(testEchoToken, p.Timestamp, p.Nonce, enc)

	out, err := w.HandleEcho(context.Background(), p, enc, 1)
	require.NoError(t, err)
	assert.Equal(t, "echo-plaintext", out)
}

func TestHandleEchoEncryptTypeWithoutKeyPassesThrough(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, false)

	p := headerParams(t, 1, "n")
	p.EncryptType = "aes"
	p.MsgSignature = signature.Compute(testEchoToken, 1, "n", "opaque")

	out, err := w.HandleEcho(context.Background(), p, "opaque", 1)
	require.NoError(t, err)
	assert.Equal(t, "opaque", out)
}

func TestHandleCallbackNoHandlersYieldsEmptyReply(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, false)

	out, err := w.HandleCallback(context.Background(), headerParams(t, 1348831860, "nonce"), textCallback, 1)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHandleCallbackPassThroughHandlerYieldsEmptyReply(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, false)
	w.Register(HandlerFunc(func(_ context.Context, _ Tenant, prev wire.Reply, _ wire.Inbound) (wire.Reply, error) {
		return prev, nil
	}))

	out, err := w.HandleCallback(context.Background(), headerParams(t, 1348831860, "nonce"), textCallback, 1)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHandleCallbackReplyIsStampedSwapped(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, false)
	w.Register(HandlerFunc(func(_ context.Context, _ Tenant, _ wire.Reply, msg wire.Inbound) (wire.Reply, error) {
		text, ok := msg.(*wire.Text)
		require.True(t, ok)
		assert.Equal(t, "this is a test", text.Content)
		return &wire.TextReply{
			Header:  wire.Header{CreateTime: 1348831861},
			Content: "roger",
		}, nil
	}))

	out, err := w.HandleCallback(context.Background(), headerParams(t, 1348831860, "nonce"), textCallback, 1)
	require.NoError(t, err)
	// Reply sender is the inbound recipient and vice versa.
	assert.Contains(t, out, "<ToUserName>fromUser</ToUserName>")
	assert.Contains(t, out, "<FromUserName>toUser</FromUserName>")
	assert.Contains(t, out, "<Content>roger</Content>")
}

func TestHandleCallbackChainOrderAndClearing(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, false)

	var order []string
	w.Register(HandlerFunc(func(_ context.Context, _ Tenant, prev wire.Reply, _ wire.Inbound) (wire.Reply, error) {
		order = append(order, "first")
		return &wire.TextReply{Content: "from-first"}, nil
	}))
	w.Register(HandlerFunc(func(_ context.Context, _ Tenant, prev wire.Reply, _ wire.Inbound) (wire.Reply, error) {
		order = append(order, "second")
		// Sees the first handler's reply and clears it.
		require.NotNil(t, prev)
		return nil, nil
	}))

	out, err := w.HandleCallback(context.Background(), headerParams(t, 1348831860, "nonce"), textCallback, 1)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestHandleCallbackHandlerErrorPropagates(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, false)
	boom := errors.New("handler boom")
	w.Register(HandlerFunc(func(context.Context, Tenant, wire.Reply, wire.Inbound) (wire.Reply, error) {
		return nil, boom
	}))

	_, err := w.HandleCallback(context.Background(), headerParams(t, 1348831860, "nonce"), textCallback, 1)
	assert.ErrorIs(t, err, boom)
}

func TestHandleCallbackEncryptedRoundTrip(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, true)
	w.Register(HandlerFunc(func(_ context.Context, _ Tenant, _ wire.Reply, msg wire.Inbound) (wire.Reply, error) {
		text := msg.(*wire.Text)
		return &wire.TextReply{
			Header:  wire.Header{CreateTime: text.CreateTime},
			Content: "got: " + text.Content,
		}, nil
	}))

	enc, err := cipher.Encrypt(testAESKey, textCallback, testAppID)
	require.NoError(t, err)
	body := fmt.Sprintf("<xml><Encrypt><![CDATA[%s]]></Encrypt></xml>", enc)

	p := headerParams(t, 1348831860, "nonce")
	p.EncryptType = "aes"
	p.MsgSignature = signature.Compute(testEchoToken, p.Timestamp, p.Nonce, enc)

	out, err := w.HandleCallback(context.Background(), p, body, 1)
	require.NoError(t, err)
	assert.Equal(t,
		"<xml><ToUserName>fromUser</ToUserName><FromUserName>toUser</FromUserName>"+
			"<CreateTime>1348831860</CreateTime><MsgType>text</MsgType>"+
			"<Content>got: this is a test</Content></xml>",
		out)
}

func TestHandleCallbackEncryptedTamperRejected(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, true)

	enc, err := cipher.Encrypt(testAESKey, textCallback, testAppID)
	require.NoError(t, err)
	body := fmt.Sprintf("<xml><Encrypt><![CDATA[%s]]></Encrypt></xml>", enc)

	p := headerParams(t, 1348831860, "nonce")
	p.EncryptType = "aes"
	p.MsgSignature = signature.Compute(testEchoToken, p.Timestamp, p.Nonce, enc+"tampered")

	_, err = w.HandleCallback(context.Background(), p, body, 1)
	assert.ErrorIs(t, err, signature.ErrInvalidSignature)
}

func TestHandleCallbackUnknownTypeRejected(t *testing.T) {
	w, _ := newTestWechat(&countingIssuer{}, false)

	body := `<xml>
  <ToUserName><![CDATA[toUser]]></ToUserName>
  <FromUserName><![CDATA[fromUser]]></FromUserName>
  <CreateTime>1</CreateTime>
  <MsgType><![CDATA[hologram]]></MsgType>
</xml>`
	_, err := w.HandleCallback(context.Background(), headerParams(t, 1, "n"), body, 1)
	assert.ErrorIs(t, err, wire.ErrDecode)
}

func TestGetAccessTokenCachesCredential(t *testing.T) {
	issuer := &countingIssuer{}
	w, _ := newTestWechat(issuer, false)
	ctx := context.Background()

	cred, err := w.GetAccessToken(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ACCESS_TOKEN", cred.Token)
	assert.False(t, cred.Expired())

	_, err = w.GetAccessToken(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), issuer.calls.Load(), "second call must hit the cache")
}

func TestGetAccessTokenSingleFlight(t *testing.T) {
	issuer := &countingIssuer{delay: 20 * time.Millisecond}
	w, _ := newTestWechat(issuer, false)

	const n = 12
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.GetAccessToken(context.Background(), 1)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int64(1), issuer.calls.Load(),
		"concurrent callers for one tenant must trigger at most one issuance per lock window")
}

func TestGetAccessTokenIssuanceFailureNotCached(t *testing.T) {
	issuer := &countingIssuer{err: fmt.Errorf("%w: code 40013: invalid appid", ErrIssuance)}
	w, store := newTestWechat(issuer, false)
	ctx := context.Background()

	_, err := w.GetAccessToken(ctx, 1)
	assert.ErrorIs(t, err, ErrIssuance)

	cred, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, cred, "a failed issuance must not populate the cache")

	// Next caller retries the issuance rather than seeing a cached failure.
	_, _ = w.GetAccessToken(ctx, 1)
	assert.Equal(t, int64(2), issuer.calls.Load())
}

func TestGetAccessTokenLockTimeout(t *testing.T) {
	issuer := &countingIssuer{}
	w, store := newTestWechat(issuer, false)
	store.RetryInterval = 2 * time.Millisecond
	store.MaxAttempts = 3

	// Hold the lock and never release it.
	_, err := store.Lock(context.Background(), 1)
	require.NoError(t, err)

	_, err = w.GetAccessToken(context.Background(), 1)
	assert.ErrorIs(t, err, token.ErrLockTimeout)
}

func TestInvalidateAccessToken(t *testing.T) {
	issuer := &countingIssuer{}
	w, _ := newTestWechat(issuer, false)
	ctx := context.Background()

	_, err := w.GetAccessToken(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, w.InvalidateAccessToken(ctx, 1))

	_, err = w.GetAccessToken(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), issuer.calls.Load(), "invalidation must force a refresh")
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, Tenant) (*Config, error) {
	return nil, fmt.Errorf("%w: tenant 42", ErrConfigUnavailable)
}

func TestUnknownTenantRejected(t *testing.T) {
	w := New(failingResolver{}, token.NewMemoryStore(), &countingIssuer{}, zerolog.Nop())

	_, err := w.HandleCallback(context.Background(), Params{}, textCallback, 42)
	assert.ErrorIs(t, err, ErrConfigUnavailable)

	_, err = w.HandleEcho(context.Background(), Params{}, "echo", 42)
	assert.ErrorIs(t, err, ErrConfigUnavailable)

	_, err = w.GetAccessToken(context.Background(), 42)
	assert.ErrorIs(t, err, ErrConfigUnavailable)
}
