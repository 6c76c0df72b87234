package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/IOLinkBridge/internal/config"
	"github.com/KevinKickass/IOLinkBridge/internal/interfaces"
	"github.com/KevinKickass/IOLinkBridge/internal/poller"
	"github.com/KevinKickass/IOLinkBridge/internal/sensors"
	"github.com/KevinKickass/IOLinkBridge/internal/state"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeLifecycle struct {
	cfg        *config.Config
	store      *state.MemoryStore
	catalog    *sensors.Catalog
	index      *sensors.Index
	assignment poller.PortAssignment
	last       *poller.CycleResult
	pollResult poller.CycleResult
	pollErr    error
	polls      int
	shutdowns  chan struct{}
}

func (f *fakeLifecycle) Config() *config.Config            { return f.cfg }
func (f *fakeLifecycle) States() *state.MemoryStore        { return f.store }
func (f *fakeLifecycle) Catalog() *sensors.Catalog         { return f.catalog }
func (f *fakeLifecycle) SensorIndex() *sensors.Index       { return f.index }
func (f *fakeLifecycle) Assignment() poller.PortAssignment { return f.assignment }

func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	alive := true
	return interfaces.SystemStatus{
		State:         "RUNNING",
		MasterHost:    f.cfg.Master.Host,
		PortCount:     f.cfg.Master.PortCount,
		PollerRunning: true,
		PollerPhase:   poller.PhaseSleep.String(),
		HostAlive:     &alive,
	}
}

func (f *fakeLifecycle) LastCycle() (poller.CycleResult, bool) {
	if f.last == nil {
		return poller.CycleResult{}, false
	}
	return *f.last, true
}

func (f *fakeLifecycle) TriggerPoll(ctx context.Context) (poller.CycleResult, error) {
	f.polls++
	return f.pollResult, f.pollErr
}

func (f *fakeLifecycle) Shutdown(ctx context.Context) error {
	close(f.shutdowns)
	return nil
}

func newFakeLifecycle(t *testing.T) *fakeLifecycle {
	t.Helper()

	catalog, err := sensors.NewCatalog(sensors.DefaultCatalog)
	require.NoError(t, err)

	store := state.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.DeclareObject(ctx, state.NumberMeta(sensors.KeyTemperatureFlow, sensors.KeyTemperatureFlow, sensors.UnitCelsius)))
	require.NoError(t, store.SetState(ctx, sensors.KeyTemperatureFlow, 25.0, true))
	require.NoError(t, store.DeclareObject(ctx, state.BooleanMeta(poller.KeyHostAlive, poller.KeyHostAlive)))
	require.NoError(t, store.SetState(ctx, poller.KeyHostAlive, true, true))
	require.NoError(t, store.DeclareObject(ctx, state.NumberMeta(sensors.KeyPressure, sensors.KeyPressure, sensors.UnitBar)))

	return &fakeLifecycle{
		cfg: &config.Config{
			Master: config.MasterConfig{Host: "192.168.0.10", PortCount: 4},
		},
		store:   store,
		catalog: catalog,
		index: &sensors.Index{
			Vendor:  "ifm",
			Website: "https://www.ifm.com",
			Sensors: []sensors.SensorRef{
				{ProductName: "AT001", Name: "Temperature transmitter", Tested: true},
			},
		},
		assignment: poller.PortAssignment{
			{Port: 1, ProductName: "AH002", Model: sensors.ModelAH002},
			{Port: 2, ProductName: "AT001", Model: sensors.ModelAT001},
		},
		shutdowns: make(chan struct{}),
	}
}

func newTestServer(t *testing.T, lm *fakeLifecycle) *Server {
	t.Helper()
	return NewServer(lm.cfg, lm, zaptest.NewLogger(t), nil)
}

func doRequest(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, newFakeLifecycle(t))

	rec, body := doRequest(t, s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, newFakeLifecycle(t))

	rec, _ := doRequest(t, s, http.MethodOptions, "/api/v1/states")

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGetSystemStatus(t *testing.T) {
	s := newTestServer(t, newFakeLifecycle(t))

	rec, body := doRequest(t, s, http.MethodGet, "/api/v1/system/status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RUNNING", body["state"])
	assert.Equal(t, "192.168.0.10", body["master_host"])
	assert.Equal(t, true, body["host_alive"])
	assert.Equal(t, "SLEEP", body["poller_phase"])
}

func TestListStates(t *testing.T) {
	s := newTestServer(t, newFakeLifecycle(t))

	rec, body := doRequest(t, s, http.MethodGet, "/api/v1/states")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	states := body["states"].([]interface{})
	require.Len(t, states, 2)
	assert.Equal(t, "isHostAlive", states[0].(map[string]interface{})["key"])

	second := states[1].(map[string]interface{})
	assert.Equal(t, sensors.KeyTemperatureFlow, second["key"])
	assert.EqualValues(t, 25.0, second["val"])
	assert.Equal(t, true, second["ack"])
	assert.Equal(t, "°C", second["unit"])
}

func TestListStates_Prefix(t *testing.T) {
	s := newTestServer(t, newFakeLifecycle(t))

	_, body := doRequest(t, s, http.MethodGet, "/api/v1/states?prefix=isHost")

	assert.EqualValues(t, 1, body["count"])
}

func TestGetState(t *testing.T) {
	s := newTestServer(t, newFakeLifecycle(t))

	rec, body := doRequest(t, s, http.MethodGet, "/api/v1/states/temperatureFlow")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 25.0, body["val"])
	object := body["object"].(map[string]interface{})
	assert.Equal(t, "value.temperatureFlow", object["role"])
}

func TestGetState_DeclaredButUnset(t *testing.T) {
	s := newTestServer(t, newFakeLifecycle(t))

	rec, body := doRequest(t, s, http.MethodGet, "/api/v1/states/pressure")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["val"])
}

func TestGetState_NotFound(t *testing.T) {
	s := newTestServer(t, newFakeLifecycle(t))

	rec, body := doRequest(t, s, http.MethodGet, "/api/v1/states/nope")

	require.Equal(t, http.StatusNotFound, rec.Code)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "STATE_404", errBody["code"])
}

func TestListPorts(t *testing.T) {
	lm := newFakeLifecycle(t)
	lm.last = &poller.CycleResult{ID: uuid.New(), Err: errors.New("boom")}
	s := newTestServer(t, lm)

	rec, body := doRequest(t, s, http.MethodGet, "/api/v1/ports")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["port_count"])
	assert.Equal(t, "boom", body["last_cycle_error"])

	ports := body["ports"].([]interface{})
	require.Len(t, ports, 2)
	second := ports[1].(map[string]interface{})
	assert.Equal(t, "AT001", second["product_name"])
	assert.Equal(t, "Temperature transmitter", second["name"])
}

func TestListSensors(t *testing.T) {
	s := newTestServer(t, newFakeLifecycle(t))

	rec, body := doRequest(t, s, http.MethodGet, "/api/v1/sensors")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["count"])
	assert.Equal(t, "ifm", body["vendor"])
}

func TestListSensors_NoIndex(t *testing.T) {
	lm := newFakeLifecycle(t)
	lm.index = nil
	s := newTestServer(t, lm)

	rec, body := doRequest(t, s, http.MethodGet, "/api/v1/sensors")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["count"])
	assert.NotContains(t, body, "vendor")
}

func TestTriggerPoll(t *testing.T) {
	lm := newFakeLifecycle(t)
	delta := 5.0
	lm.pollResult = poller.CycleResult{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		HostAlive: true,
		Readings: map[int]sensors.Reading{
			2: {Model: sensors.ModelAT001, ModelName: "AT001", Measurements: []sensors.Measurement{
				{Key: sensors.KeyTemperatureFlow, Value: 25},
			}},
		},
		Delta: &delta,
	}
	s := newTestServer(t, lm)

	rec, body := doRequest(t, s, http.MethodPost, "/api/v1/poll")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, lm.polls)
	cycle := body["cycle"].(map[string]interface{})
	assert.EqualValues(t, 5.0, cycle["temperature_delta"])
	readings := cycle["readings"].(map[string]interface{})
	assert.Contains(t, readings, "2")
}

func TestTriggerPoll_CycleFailed(t *testing.T) {
	lm := newFakeLifecycle(t)
	lm.pollResult = poller.CycleResult{ID: uuid.New(), Err: poller.ErrHostUnreachable, Fatal: true}
	s := newTestServer(t, lm)

	rec, body := doRequest(t, s, http.MethodPost, "/api/v1/poll")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "POLL_502", errBody["code"])
}

func TestTriggerPoll_NotRunning(t *testing.T) {
	lm := newFakeLifecycle(t)
	lm.pollErr = errors.New("cannot poll: system in state STOPPING")
	s := newTestServer(t, lm)

	rec, body := doRequest(t, s, http.MethodPost, "/api/v1/poll")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "POLL_503", errBody["code"])
}

func TestShutdownEndpoint(t *testing.T) {
	lm := newFakeLifecycle(t)
	s := newTestServer(t, lm)

	rec, _ := doRequest(t, s, http.MethodPost, "/api/v1/system/shutdown")
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-lm.shutdowns:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown was not triggered")
	}
}

func TestLiveRoutesNeedHub(t *testing.T) {
	s := newTestServer(t, newFakeLifecycle(t))

	rec, _ := doRequest(t, s, http.MethodGet, "/api/v1/ws/status")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
