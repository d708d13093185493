package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hjin-me/wechatmp/internal/signature"
	"github.com/hjin-me/wechatmp/internal/token"
	"github.com/hjin-me/wechatmp/internal/wechat"
)

const echoToken = "router-test-token"

func newTestRouter() http.Handler {
	wc := wechat.New(
		wechat.NewConstResolver(wechat.Config{EchoToken: echoToken, AppID: "appid", AppSecret: "secret"}),
		token.NewMemoryStore(),
		wechat.NewAPIIssuer(),
		zerolog.Nop(),
	)
	return NewRouter(zerolog.Nop(), wc, nil)
}

func signedQuery(ts int64, nonce string) string {
	q := "signature=" + signature.Compute(echoToken, ts, nonce, "")
	q += "&timestamp=" + strconv.FormatInt(ts, 10)
	q += "&nonce=" + nonce
	return q
}

func TestRouterHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestRouterMetricsExposed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterEcho(t *testing.T) {
	url := "/wechat/7?" + signedQuery(1348831860, "nonce") + "&echostr=ping"
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ping", rec.Body.String())
}

func TestRouterEchoBadSignatureForbidden(t *testing.T) {
	url := "/wechat/7?signature=deadbeef&timestamp=1&nonce=n&echostr=ping"
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouterCallbackNoReplyIsEmptySuccess(t *testing.T) {
	body := `<xml>
  <ToUserName><![CDATA[toUser]]></ToUserName>
  <FromUserName><![CDATA[fromUser]]></FromUserName>
  <CreateTime>1348831860</CreateTime>
  <MsgType><![CDATA[text]]></MsgType>
  <Content><![CDATA[hello]]></Content>
  <MsgId>1234567890123456</MsgId>
</xml>`
	url := "/wechat/7?" + signedQuery(1348831860, "nonce")
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, url, strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRouterCallbackMalformedBodyBadRequest(t *testing.T) {
	body := `<xml><MsgType>hologram</MsgType></xml>`
	url := "/wechat/7?" + signedQuery(1, "n")
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, url, strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterNonNumericTenantNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wechat/not-a-tenant?echostr=x", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
