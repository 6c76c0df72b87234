package iolink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(strings.TrimPrefix(srv.URL, "http://"), timeout, 1, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestFetchValue_SendsRequestBody(t *testing.T) {
	var gotBody string
	var gotContentType string
	var gotMethod string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotContentType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		w.Write([]byte(`{"cid":1,"data":{"value":"AH002"},"code":200}`))
	}, time.Second)

	value, err := client.FetchValue(context.Background(), ProductNameAddress(2))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, `{"code":"request","cid":1,"adr":"/iolinkmaster/port[2]/iolinkdevice/productname/getdata"}`, gotBody)
	assert.True(t, value.Present)
	assert.Equal(t, "AH002", value.Raw)
}

func TestFetchValue_MissingValue(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cid":1,"data":{},"code":200}`))
	}, time.Second)

	value, err := client.FetchValue(context.Background(), ProcessDataAddress(1))
	require.NoError(t, err)
	assert.False(t, value.Present)
	assert.Equal(t, "<null>", value.String())
}

func TestFetchValue_HTTPStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Device", "al1370")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}, time.Second)

	_, err := client.FetchValue(context.Background(), LivenessAddress)
	require.Error(t, err)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusInternalServerError, terr.StatusCode)
	assert.Equal(t, "boom", terr.Body)
	assert.Equal(t, "al1370", terr.Header.Get("X-Device"))
	assert.Equal(t, LivenessAddress, terr.Address)
}

func TestFetchValue_DiagnosticCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cid":1,"code":503}`))
	}, time.Second)

	_, err := client.FetchValue(context.Background(), ProcessDataAddress(3))

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 503, terr.DiagCode)
	assert.Contains(t, terr.Error(), "diagnostic code 503")
}

func TestFetchValue_InvalidEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cid":1,"data":{"value":42},"code":200}`))
	}, time.Second)

	_, err := client.FetchValue(context.Background(), ProcessDataAddress(1))

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Error(t, terr.Err)
}

func TestFetchValue_Timeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := client.FetchValue(context.Background(), LivenessAddress)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestFetchValue_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	client, err := NewClient(endpoint, time.Second, 1, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.FetchValue(context.Background(), LivenessAddress)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, endpoint, terr.Endpoint)
	assert.False(t, IsTimeout(err))
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient("192.168.1.10", 0, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
	assert.Equal(t, 1, client.cid)
	assert.Equal(t, "http://192.168.1.10", client.url)

	_, err = NewClient("", time.Second, 1, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRequestEncode(t *testing.T) {
	data, err := NewRequest(7, LivenessAddress).Encode()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "request", decoded["code"])
	assert.Equal(t, float64(7), decoded["cid"])
	assert.Equal(t, LivenessAddress, decoded["adr"])
}

func TestAddresses(t *testing.T) {
	assert.Equal(t, "/iolinkmaster/port[4]/iolinkdevice/productname/getdata", ProductNameAddress(4))
	assert.Equal(t, "/iolinkmaster/port[1]/iolinkdevice/pdin/getdata", ProcessDataAddress(1))
}
