package onvif_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/audit"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/auth"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/config"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/credential"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/metrics"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/device"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/media"
	"github.com/mooglejp/atomcam_tools/onvif-server/pkg/wsse"
)

const testConfig = `
device:
  name: atomcam
  manufacturer: ATOM tech
  model: ATOM Cam 2
auth:
  required: true
  users:
    - username: admin
      password: admin123
admin:
  username: root
  password: secret
metrics:
  enabled: true
profiles:
  - token: main
    name: Main
    width: 1920
    height: 1080
    rtsp_uri: rtsp://192.168.1.20:8554/main
`

const soapContentType = "application/soap+xml; charset=utf-8"

type testEnv struct {
	cfg    *config.Config
	server *onvif.Server
	http   *httptest.Server
	users  *credential.MemoryStore
	hub    *audit.Hub
}


func newTestEnv(t *testing.T, mutate func(*config.Config, *onvif.Services)) *testEnv {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	logger := zap.NewNop()
	users := credential.NewMemoryStore(cfg.Auth.MaxUsers)
	for _, u := range cfg.Auth.Users {
		require.NoError(t, users.Add(context.Background(), u.Username, u.Password))
	}

	gate := auth.NewGate(users, auth.NewNonceCache(cfg.Auth.NonceCacheSize), auth.GateOptions{
		RequireAuth:        cfg.Auth.Required,
		ExemptActions:      cfg.Auth.ExemptActions,
		TimestampTolerance: cfg.Auth.TimestampTolerance,
		Logger:             logger,
	})

	m := metrics.New(prometheus.NewRegistry())
	hub := audit.NewHub(logger)
	bus := audit.NewBus(64, logger, m.RecordAuditDropped, hub)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = bus.Run(ctx) }()

	deviceRegistry := onvif.NewRegistry()
	device.NewService(cfg.Device, cfg.Server.BaseURL).Register(deviceRegistry)
	mediaRegistry := onvif.NewRegistry()
	media.NewService(cfg.Profiles).Register(mediaRegistry)

	svc := onvif.Services{
		Device: onvif.NewDispatcher(onvif.DispatcherConfig{
			Service: "device", Gate: gate, Registry: deviceRegistry, Metrics: m, Events: bus, Logger: logger,
		}),
		Media: onvif.NewDispatcher(onvif.DispatcherConfig{
			Service: "media", Gate: gate, Registry: mediaRegistry, Metrics: m, Events: bus, Logger: logger,
		}),
		Gate:           gate,
		Users:          users,
		Hub:            hub,
		Metrics:        m,
		MetricsHandler: m.Handler(),
		Logger:         logger,
	}
	if mutate != nil {
		mutate(cfg, &svc)
	}

	srv := onvif.NewServer(cfg, svc)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		cancel()
	})
	return &testEnv{cfg: cfg, server: srv, http: ts, users: users, hub: hub}
}

func (e *testEnv) url(path string) string {
	return e.http.URL + path
}

func (e *testEnv) post(t *testing.T, client *http.Client, path, body string) (*http.Response, string) {
	t.Helper()
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Post(e.url(path), soapContentType, bytes.NewReader(wsse.Envelope(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func (e *testEnv) admin(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.url(path), r)
	require.NoError(t, err)
	req.SetBasicAuth("root", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func digestClient(username, password string) *http.Client {
	return &http.Client{Transport: wsse.NewTransport(username, password)}
}

func TestDigestAuthenticatedRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.post(t, digestClient("admin", "admin123"), onvif.DeviceServicePath, "<tds:GetDeviceInformation/>")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, soapContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "<tds:Model>ATOM Cam 2</tds:Model>")

	resp, body = env.post(t, digestClient("admin", "admin123"), onvif.MediaServicePath,
		"<trt:GetStreamUri><trt:ProfileToken>main</trt:ProfileToken></trt:GetStreamUri>")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "rtsp://192.168.1.20:8554/main")
}

func TestPlaintextAuthenticatedRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	tr := wsse.NewTransport("admin", "admin123")
	tr.PlainText = true

	resp, _ := env.post(t, &http.Client{Transport: tr}, onvif.MediaServicePath, "<trt:GetProfiles/>")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnauthenticatedRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.post(t, nil, onvif.DeviceServicePath, "<tds:GetDeviceInformation/>")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Authentication Failed")

	resp, body = env.post(t, digestClient("admin", "wrong"), onvif.DeviceServicePath, "<tds:GetDeviceInformation/>")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Authentication Failed")

	resp, _ = env.post(t, nil, onvif.DeviceServicePath, "<tds:GetSystemDateAndTime/>")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReplayedRequestRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	token, err := wsse.NewToken("admin", "admin123", time.Now())
	require.NoError(t, err)
	signed, err := token.Sign(wsse.Envelope("<tds:GetDeviceInformation/>"))
	require.NoError(t, err)

	send := func() int {
		resp, err := http.Post(env.url(onvif.DeviceServicePath), soapContentType, bytes.NewReader(signed))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusBadRequest, send())
}

func TestStaleTimestampRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	tr := wsse.NewTransport("admin", "admin123")
	tr.Now = func() time.Time { return time.Now().Add(-10 * time.Minute) }

	resp, _ := env.post(t, &http.Client{Transport: tr}, onvif.DeviceServicePath, "<tds:GetDeviceInformation/>")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransportLimits(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, _ *onvif.Services) {
		cfg.Server.MaxRequestBytes = 512
	})

	resp, err := http.Get(env.url(onvif.DeviceServicePath))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	big := "<tds:GetDeviceInformation>" + strings.Repeat("x", 1024) + "</tds:GetDeviceInformation>"
	resp, _ = env.post(t, nil, onvif.DeviceServicePath, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, err = http.Post(env.url(onvif.DeviceServicePath), soapContentType, strings.NewReader("<s:Envelope>"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, svc *onvif.Services) {
		l, err := onvif.NewRateLimiter(onvif.RateLimitConfig{
			RequestsPerMinute: 2,
			Store:             onvif.RateLimitStoreMemory,
		})
		require.NoError(t, err)
		svc.Limiter = l
	})

	for i := 0; i < 2; i++ {
		resp, _ := env.post(t, nil, onvif.DeviceServicePath, "<tds:GetSystemDateAndTime/>")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := env.post(t, nil, onvif.DeviceServicePath, "<tds:GetSystemDateAndTime/>")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, body, "Too many requests")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.post(t, nil, onvif.DeviceServicePath, "<tds:GetSystemDateAndTime/>")

	resp, err := http.Get(env.url("/metrics"))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `onvif_soap_requests_total{action="GetSystemDateAndTime",outcome="success",service="device"} 1`)
}

func TestAdminRequiresCredentials(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.url("/admin/users"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	req, _ := http.NewRequest(http.MethodGet, env.url("/admin/users"), nil)
	req.SetBasicAuth("root", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, _ *onvif.Services) {
		cfg.Admin.Password = ""
	})

	resp := env.admin(t, http.MethodGet, "/admin/users", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminUserLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	client := digestClient("viewer", "view-pass")

	resp := env.admin(t, http.MethodPost, "/admin/users", map[string]string{"username": "viewer", "password": "view-pass"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	soapResp, _ := env.post(t, client, onvif.MediaServicePath, "<trt:GetProfiles/>")
	assert.Equal(t, http.StatusOK, soapResp.StatusCode)

	resp = env.admin(t, http.MethodGet, "/admin/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "view-pass")
	var listed []credential.Credential
	require.NoError(t, json.Unmarshal(raw, &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, "viewer", listed[1].Username)
	assert.True(t, listed[1].Enabled)

	resp = env.admin(t, http.MethodPost, "/admin/users/viewer/disable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	soapResp, _ = env.post(t, client, onvif.MediaServicePath, "<trt:GetProfiles/>")
	assert.Equal(t, http.StatusBadRequest, soapResp.StatusCode)

	resp = env.admin(t, http.MethodPost, "/admin/users/viewer/enable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	soapResp, _ = env.post(t, client, onvif.MediaServicePath, "<trt:GetProfiles/>")
	assert.Equal(t, http.StatusOK, soapResp.StatusCode)

	resp = env.admin(t, http.MethodPost, "/admin/users/ghost/enable", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminAddUserValidation(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, svc *onvif.Services) {
		svc.Users = credential.NewMemoryStore(1)
	})

	resp := env.admin(t, http.MethodPost, "/admin/users", map[string]string{"username": "", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.admin(t, http.MethodPost, "/admin/users", map[string]string{"username": "a", "password": strings.Repeat("p", 65)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.admin(t, http.MethodPost, "/admin/users", map[string]string{"username": "a", "password": "b"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.admin(t, http.MethodPost, "/admin/users", map[string]string{"username": "c", "password": "d"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAdminAuthPolicy(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.post(t, nil, onvif.DeviceServicePath, "<tds:GetDeviceInformation/>")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	adminResp := env.admin(t, http.MethodPut, "/admin/auth", map[string]bool{"required": false})
	require.Equal(t, http.StatusOK, adminResp.StatusCode)

	resp, _ = env.post(t, nil, onvif.DeviceServicePath, "<tds:GetDeviceInformation/>")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	adminResp = env.admin(t, http.MethodGet, "/admin/auth", nil)
	var policy struct {
		Required bool `json:"required"`
	}
	require.NoError(t, json.NewDecoder(adminResp.Body).Decode(&policy))
	assert.False(t, policy.Required)
}

func TestAdminEventFeed(t *testing.T) {
	env := newTestEnv(t, nil)

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("root:secret")))
	wsURL := "ws" + strings.TrimPrefix(env.url("/admin/events"), "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	env.post(t, digestClient("admin", "nope"), onvif.DeviceServicePath, "<tds:GetDeviceInformation/>")

	var e audit.Event
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "device", e.Service)
	assert.Equal(t, "GetDeviceInformation", e.Action)
	assert.Equal(t, audit.OutcomeRejected, e.Outcome)
	assert.Equal(t, "bad_password", e.Reason)
	assert.Equal(t, "admin", e.Username)
	assert.Equal(t, "127.0.0.1", e.Remote)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + onvif.DeviceServicePath
	require.Eventually(t, func() bool {
		resp, err := http.Post(url, soapContentType, bytes.NewReader(wsse.Envelope("<tds:GetSystemDateAndTime/>")))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
