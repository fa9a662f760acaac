package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushbucket/pushbucket/internal/push/relay"
)

func newClient() *relay.Client {
	return relay.NewClient(relay.ClientConfig{
		HTTPClient: http.DefaultClient,
		Logger:     zerolog.Nop(),
	})
}

func envelope() *relay.Envelope {
	return &relay.Envelope{
		Platform:   relay.PlatformIOS,
		Payload:    json.RawMessage(`{"rawPayload":{"aps":{}},"priority":10,"topic":"io.pushbucket.app"}`),
		DeviceData: relay.DeviceData{Token: "tok_device"},
	}
}

func TestClient_Send(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody relay.Envelope

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newClient().Send(context.Background(), server.URL, "secret-token", envelope())
	require.NoError(t, err)

	assert.Equal(t, "/notifications/notify-external", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, relay.PlatformIOS, gotBody.Platform)
	assert.Equal(t, "tok_device", gotBody.DeviceData.Token)
	assert.NotEmpty(t, gotBody.Payload)
}

func TestClient_Send_TrailingSlashServer(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newClient().Send(context.Background(), server.URL+"/", "t", envelope())
	require.NoError(t, err)
	assert.Equal(t, "/notifications/notify-external", gotPath)
}

func TestClient_Send_PeerErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unsupported platform XYZ"}`))
	}))
	defer server.Close()

	err := newClient().Send(context.Background(), server.URL, "t", envelope())
	require.Error(t, err)
	assert.Equal(t, "unsupported platform XYZ", err.Error())
}

func TestClient_Send_PeerMessageField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"provider rejected token"}`))
	}))
	defer server.Close()

	err := newClient().Send(context.Background(), server.URL, "t", envelope())
	require.Error(t, err)
	assert.Equal(t, "provider rejected token", err.Error())
}

func TestClient_Send_StatusFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	err := newClient().Send(context.Background(), server.URL, "t", envelope())
	require.Error(t, err)
	assert.Equal(t, "HTTP 500", err.Error())
}

func TestClient_Send_TransportError(t *testing.T) {
	// Nothing listens here.
	err := newClient().Send(context.Background(), "http://127.0.0.1:1", "t", envelope())
	require.Error(t, err)

	var relayErr *relay.Error
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, "passthrough server unreachable", relayErr.Message)
	assert.Error(t, relayErr.Err)
}
