package vast

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfycloud/lazymodels/pkg/logging"
)

func testLogger() logging.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logging.NewLogrusAdapter(l)
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	return c, srv
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}

func TestSearchOffers(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/bundles/", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"eq": "RTX_3090"}, body["gpu_name"])
		assert.Equal(t, map[string]interface{}{"eq": false}, body["rented"])
		assert.Equal(t, map[string]interface{}{"eq": true}, body["verified"])

		io.WriteString(w, `{"offers": [
			{"id": 1, "gpu_name": "RTX_3090", "dph_total": 0.40},
			{"id": 2, "gpu_name": "RTX_3090", "dph_total": 0.25},
			{"id": 3, "gpu_name": "RTX_3090", "dph_total": 0.80}
		]}`)
	}))

	offers, err := c.SearchOffers(context.Background(), OfferQuery{GPUName: "RTX_3090", MaxPrice: 0.5})
	require.NoError(t, err)

	// The over-budget offer is filtered and the rest come cheapest first.
	require.Len(t, offers, 2)
	assert.Equal(t, int64(2), offers[0].ID)
	assert.Equal(t, int64(1), offers[1].ID)
}

func TestSearchOffersNoPriceCap(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"offers": [{"id": 1, "dph_total": 99.0}]}`)
	}))

	offers, err := c.SearchOffers(context.Background(), OfferQuery{GPUName: "H100"})
	require.NoError(t, err)
	assert.Len(t, offers, 1)
}

func TestCreateInstance(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/asks/42/", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "me", body["client_id"])
		assert.Equal(t, "yanwk/comfyui-boot:latest", body["image"])
		assert.Equal(t, float64(20), body["disk"])

		io.WriteString(w, `{"success": true, "new_contract": 777}`)
	}))

	id, err := c.CreateInstance(context.Background(), 42, CreateRequest{
		Image:  "yanwk/comfyui-boot:latest",
		DiskGB: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(777), id)
}

func TestCreateInstanceRejected(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success": false}`)
	}))

	_, err := c.CreateInstance(context.Background(), 42, CreateRequest{})
	assert.Error(t, err)
}

func TestInstances(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/instances/", r.URL.Path)
		io.WriteString(w, `{"instances": [
			{"id": 777, "actual_status": "running", "gpu_name": "RTX_3090",
			 "ports": {"8188/tcp": [{"HostIp": "1.2.3.4", "HostPort": "40001"}]}}
		]}`)
	}))

	instances, err := c.Instances(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.True(t, instances[0].Running())
	assert.Equal(t, "http://1.2.3.4:40001", instances[0].URL(8188))
}

func TestInstanceNotFound(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"instances": []}`)
	}))

	_, err := c.Instance(context.Background(), 123)
	assert.Error(t, err)
}

func TestDestroyInstance(t *testing.T) {
	var method, path string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		io.WriteString(w, `{"success": true}`)
	}))

	require.NoError(t, c.DestroyInstance(context.Background(), 777))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/instances/777/", path)
}

func TestAPIError(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient credit", http.StatusPaymentRequired)
	}))

	_, err := c.Instances(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
	assert.Contains(t, err.Error(), "insufficient credit")
}
