package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dahamkakooza/agrogram-gateway/internal/alert"
	"github.com/dahamkakooza/agrogram-gateway/internal/command"
	"github.com/dahamkakooza/agrogram-gateway/internal/config"
	"github.com/dahamkakooza/agrogram-gateway/internal/data"
	"github.com/dahamkakooza/agrogram-gateway/internal/menu"
	"github.com/dahamkakooza/agrogram-gateway/internal/outbox"
	"github.com/dahamkakooza/agrogram-gateway/internal/session"
	"github.com/dahamkakooza/agrogram-gateway/internal/ussd"
)

type fakeGateway struct{}

func (fakeGateway) LatestPrice(ctx context.Context, crop, region string) (*data.PriceQuote, error) {
	return &data.PriceQuote{Crop: crop, Region: "Central", Price: 1200, Currency: "UGX", Unit: "kg"}, nil
}

func (fakeGateway) Weather(ctx context.Context, region string) (*data.WeatherReport, error) {
	return &data.WeatherReport{Region: region, Summary: "sunny", TempC: 28}, nil
}

func (fakeGateway) Tip(ctx context.Context, crop string) (*data.Tip, error) {
	return &data.Tip{Crop: crop, Text: "Plant early."}, nil
}

func (fakeGateway) Balance(ctx context.Context, phone string) (*data.Balance, error) {
	return &data.Balance{Phone: phone, Amount: 5000, Currency: "UGX"}, nil
}

func (fakeGateway) RecordCommand(ctx context.Context, rec data.CommandRecord) error { return nil }

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Gateway.Auth.Token = "secret"

	gw := fakeGateway{}
	sessions := session.NewStore(2 * time.Minute)
	handler := ussd.NewHandler(menu.Default(), sessions, gw, 300*time.Millisecond)

	subs := alert.NewStore(filepath.Join(t.TempDir(), "subs.json"))
	reg := command.NewRegistry(gw)
	command.RegisterBuiltins(reg, gw, subs)

	ob := outbox.NewStore(filepath.Join(t.TempDir(), "outbox.json"))

	srv := NewServer(cfg, handler, reg, sessions, ob, subs)
	return srv, srv.buildRouter()
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUSSDCallbackRoundTrip(t *testing.T) {
	_, router := newTestServer(t)

	w := postForm(router, "/ussd/callback", url.Values{
		"sessionId":   {"AT1"},
		"phoneNumber": {"+256700000001"},
		"text":        {""},
		"serviceCode": {"*384#"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "CON "))
	assert.Contains(t, w.Body.String(), "1. Prices")

	w = postForm(router, "/ussd/callback", url.Values{
		"sessionId":   {"AT1"},
		"phoneNumber": {"+256700000001"},
		"text":        {"1*MAIZE"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "END "))
	assert.Contains(t, w.Body.String(), "MAIZE: 1200 UGX/kg")
}

func TestUSSDCallbackRequiresIdentity(t *testing.T) {
	_, router := newTestServer(t)
	w := postForm(router, "/ussd/callback", url.Values{"text": {"1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSMSInboundAcksAndEnqueuesReply(t *testing.T) {
	srv, router := newTestServer(t)

	body := `{"from":"+256700000001","to":"6400","text":"PRICE MAIZE"}`
	req := httptest.NewRequest(http.MethodPost, "/sms/inbound", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	// The reply is produced asynchronously.
	require.Eventually(t, func() bool {
		return len(srv.Outbox.List()) == 1
	}, time.Second, 10*time.Millisecond)

	m := srv.Outbox.List()[0]
	assert.Equal(t, "+256700000001", m.To)
	assert.Contains(t, m.Body, "MAIZE: 1200 UGX/kg")
	assert.Equal(t, outbox.StatusPending, m.Status)
}

func TestSMSInboundRejectsInvalidBody(t *testing.T) {
	_, router := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/sms/inbound", strings.NewReader(`{"text":"no sender"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	_, router := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/outbox", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/outbox", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthIsPublic(t *testing.T) {
	_, router := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
