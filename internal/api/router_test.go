package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushbucket/pushbucket/internal/api"
	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/push"
	"github.com/pushbucket/pushbucket/internal/push/relay"
	"github.com/pushbucket/pushbucket/internal/settings"
)

// fakeAdapter records relayed deliveries.
type fakeAdapter struct {
	platform  device.Platform
	delivered []*relay.Envelope
	err       error
}

func (f *fakeAdapter) Platform() device.Platform { return f.platform }

func (f *fakeAdapter) Send(context.Context, *message.Message, *notification.Notification, *device.UserDevice, settings.DeviceSettings) error {
	return nil
}

func (f *fakeAdapter) ExternalPayload(*message.Message, *notification.Notification, *device.UserDevice) (*relay.Envelope, error) {
	return nil, errors.New("not used")
}

func (f *fakeAdapter) DeliverExternal(_ context.Context, env *relay.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, env)
	return nil
}

func newRouter(adapter *fakeAdapter) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Version:    "test",
		BuildTime:  "now",
		Logger:     zerolog.Nop(),
		RelayToken: "tok_relay",
		Adapters:   []push.Adapter{adapter},
	})
}

func postEnvelope(t *testing.T, router http.Handler, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/notifications/notify-external", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const validEnvelope = `{"platform":"IOS","payload":{"rawPayload":{"aps":{}},"priority":10},"deviceData":{"token":"tok_1"}}`

func TestNotifyExternal(t *testing.T) {
	adapter := &fakeAdapter{platform: device.PlatformIOS}
	router := newRouter(adapter)

	rec := postEnvelope(t, router, "tok_relay", validEnvelope)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Status   string `json:"status"`
		Platform string `json:"platform"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "delivered", result.Status)
	assert.Equal(t, "IOS", result.Platform)

	require.Len(t, adapter.delivered, 1)
	assert.Equal(t, "tok_1", adapter.delivered[0].DeviceData.Token)
}

func TestNotifyExternal_MissingToken(t *testing.T) {
	adapter := &fakeAdapter{platform: device.PlatformIOS}
	router := newRouter(adapter)

	rec := postEnvelope(t, router, "", validEnvelope)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, adapter.delivered)
}

func TestNotifyExternal_WrongToken(t *testing.T) {
	adapter := &fakeAdapter{platform: device.PlatformIOS}
	router := newRouter(adapter)

	rec := postEnvelope(t, router, "tok_wrong", validEnvelope)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, adapter.delivered)
}

func TestNotifyExternal_UnsupportedPlatform(t *testing.T) {
	adapter := &fakeAdapter{platform: device.PlatformIOS}
	router := newRouter(adapter)

	rec := postEnvelope(t, router, "tok_relay",
		`{"platform":"ANDROID","payload":{"x":1},"deviceData":{"token":"t"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Senders parse the "error" field out of the body.
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "unsupported platform")
}

func TestNotifyExternal_InvalidJSON(t *testing.T) {
	adapter := &fakeAdapter{platform: device.PlatformIOS}
	router := newRouter(adapter)

	rec := postEnvelope(t, router, "tok_relay", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifyExternal_MissingPayload(t *testing.T) {
	adapter := &fakeAdapter{platform: device.PlatformIOS}
	router := newRouter(adapter)

	rec := postEnvelope(t, router, "tok_relay", `{"platform":"IOS","deviceData":{"token":"t"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifyExternal_DeliveryFailure(t *testing.T) {
	adapter := &fakeAdapter{platform: device.PlatformIOS, err: errors.New("BadDeviceToken")}
	router := newRouter(adapter)

	rec := postEnvelope(t, router, "tok_relay", validEnvelope)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BadDeviceToken", body.Error)
}

func TestHealthEndpoint(t *testing.T) {
	router := newRouter(&fakeAdapter{platform: device.PlatformIOS})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestDispatchStats(t *testing.T) {
	adapter := &fakeAdapter{platform: device.PlatformIOS}
	router := newRouter(adapter)

	// One delivered, one rejected.
	postEnvelope(t, router, "tok_relay", validEnvelope)
	postEnvelope(t, router, "tok_relay", `{"platform":"XYZ","payload":{"x":1}}`)

	req := httptest.NewRequest(http.MethodGet, "/ops/dispatch", nil)
	req.Header.Set("Authorization", "Bearer tok_relay")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Delivered int64 `json:"delivered"`
		Rejected  int64 `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Equal(t, int64(1), stats.Rejected)
}
