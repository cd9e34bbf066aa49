package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codecontext/internal/protocol"
	"github.com/dshills/codecontext/internal/session"
	"github.com/dshills/codecontext/internal/session/sessiontest"
	"github.com/dshills/codecontext/internal/vectorindex"
)

func setupServer(t *testing.T) (*Server, *session.Session, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sess, root := sessiontest.New(t, sessiontest.Workspace)
	return New(sess, Options{Version: "test"}), sess, root
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s, _, _ := setupServer(t)

	rec := doRequest(t, s.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.GreaterOrEqual(t, health.UptimeSeconds, 0.0)
	assert.False(t, health.Timestamp.IsZero())
}

func TestHealthDetailedCountsRequests(t *testing.T) {
	s, sess, _ := setupServer(t)
	h := s.Handler()

	doRequest(t, h, http.MethodGet, "/health", "")
	doRequest(t, h, http.MethodGet, "/missing", "")

	// a closed session fails every request with an internal error
	require.NoError(t, sess.Close(context.Background()))
	rec := doRequest(t, h, http.MethodPost, "/rpc", `{"type":"start_indexing"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/health/detailed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detailed := decode[DetailedHealthResponse](t, rec)
	assert.Equal(t, int64(4), detailed.RequestCount)
	assert.Equal(t, int64(1), detailed.ErrorCount)
	assert.Equal(t, "idle", detailed.Index["state"])
	assert.Contains(t, detailed.ProcessInfo, "pid")
	assert.Contains(t, detailed.ProcessInfo, "goroutines")
	assert.Contains(t, detailed.SystemInfo, "cpu_count")
	assert.Contains(t, detailed.SystemInfo, "platform")
}

func TestHealthDatabase(t *testing.T) {
	s, _, root := setupServer(t)

	rec := doRequest(t, s.Handler(), http.MethodGet, "/health/database", "")
	require.Equal(t, http.StatusOK, rec.Code)
	db := decode[DatabaseHealthResponse](t, rec)
	assert.True(t, db.IsHealthy)
	assert.Equal(t, vectorindex.CollectionName(root), db.ConnectionName)
	assert.Empty(t, db.ErrorMessage)
	assert.GreaterOrEqual(t, db.ResponseTimeMs, 0.0)
}

func TestInfo(t *testing.T) {
	s, _, root := setupServer(t)

	rec := doRequest(t, s.Handler(), http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[ServiceInfo](t, rec)
	assert.Equal(t, ServiceName, info.Name)
	assert.Equal(t, "test", info.Version)
	assert.Equal(t, root, info.Root)
	assert.Contains(t, info.Endpoints, "/rpc")
	assert.Contains(t, info.Capabilities, "graceful_shutdown")
	assert.Len(t, info.RequestTypes, len(protocol.Types))
	assert.Contains(t, info.RequestTypes, "search")
}

func TestRPC(t *testing.T) {
	s, _, _ := setupServer(t)
	h := s.Handler()

	rec := doRequest(t, h, http.MethodPost, "/rpc", `{"type":"start_indexing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var indexed struct {
		OK   bool `json:"ok"`
		Data struct {
			ProcessedFiles int `json:"processedFiles"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &indexed))
	assert.True(t, indexed.OK)
	assert.Equal(t, 2, indexed.Data.ProcessedFiles)

	rec = doRequest(t, h, http.MethodPost, "/rpc", `{"type":"search","payload":{"query":"Login user credentials","filters":{"maxResults":1}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var found struct {
		Data struct {
			Results []struct {
				Chunk struct {
					FilePath string
				} `json:"chunk"`
			} `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found.Data.Results, 1)
	assert.Equal(t, "auth/login.go", found.Data.Results[0].Chunk.FilePath)

	rec = doRequest(t, h, http.MethodPost, "/rpc", `{"type":"index_state"}`)
	assert.JSONEq(t, `{"type":"index_state","ok":true,"data":{"state":"idle"}}`, rec.Body.String())
}

func TestRPCErrors(t *testing.T) {
	s, _, _ := setupServer(t)
	h := s.Handler()

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "malformed", body: `{"type":`, status: http.StatusBadRequest, code: protocol.CodeInvalidRequest},
		{name: "unknown type", body: `{"type":"reboot"}`, status: http.StatusBadRequest, code: protocol.CodeInvalidRequest},
		{name: "empty query", body: `{"type":"search","payload":{"query":""}}`, status: http.StatusBadRequest, code: protocol.CodeInvalidRequest},
		{name: "outside root", body: `{"type":"file_preview","payload":{"path":"../../etc/passwd","line":1}}`, status: http.StatusBadRequest, code: protocol.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/rpc", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			resp := decode[protocol.Response](t, rec)
			assert.False(t, resp.OK)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, statusFor(protocol.Response{OK: true}))
	assert.Equal(t, http.StatusConflict, statusFor(protocol.Response{Code: protocol.CodeAlreadyRunning}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(protocol.Response{Code: protocol.CodeStoreUnavailable}))
	assert.Equal(t, http.StatusBadGateway, statusFor(protocol.Response{Code: protocol.CodeProvider}))
	assert.Equal(t, http.StatusRequestTimeout, statusFor(protocol.Response{Code: protocol.CodeCanceled}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(protocol.Response{Code: protocol.CodeInternal}))
}

func TestShutdownValidation(t *testing.T) {
	s, _, _ := setupServer(t)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/shutdown", `{"delay_seconds":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doRequest(t, s.Handler(), http.MethodPost, "/shutdown", `{"delay_seconds":"soon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeStopsOnShutdownRequest(t *testing.T) {
	s, _, _ := setupServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), ln) }()

	url := "http://" + ln.Addr().String()
	resp, err := http.Post(url+"/shutdown", "application/json", bytes.NewBufferString(`{"reason":"test"}`))
	require.NoError(t, err)
	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Shutdown initiated", body["message"])

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	s, _, _ := setupServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int64(Port(ln)), s.port.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
