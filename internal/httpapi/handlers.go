package httpapi

import (
	"errors"
	"io"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/logging"
	"github.com/dshills/codecontext/internal/protocol"
)

// maxRPCBody caps the size of one RPC envelope
const maxRPCBody = 1 << 20

var capabilities = []string{
	"health_monitoring",
	"dynamic_port_discovery",
	"graceful_shutdown",
	"system_metrics",
	"request_tracking",
	"vector_store_health",
	"indexing",
	"semantic_search",
}

var endpoints = []string{
	"/health",
	"/health/detailed",
	"/health/database",
	"/info",
	"/shutdown",
	"/rpc",
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

// DetailedHealthResponse is returned by GET /health/detailed
type DetailedHealthResponse struct {
	HealthResponse
	Port         int            `json:"port,omitempty"`
	ProcessInfo  map[string]any `json:"process_info"`
	SystemInfo   map[string]any `json:"system_info"`
	Index        map[string]any `json:"index"`
	RequestCount int64          `json:"request_count"`
	ErrorCount   int64          `json:"error_count"`
}

// DatabaseHealthResponse is returned by GET /health/database
type DatabaseHealthResponse struct {
	ConnectionName string    `json:"connection_name"`
	IsHealthy      bool      `json:"is_healthy"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	LastCheck      time.Time `json:"last_check"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Records        int       `json:"records"`
}

// ServiceInfo is returned by GET /info
type ServiceInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Root         string   `json:"root"`
	Capabilities []string `json:"capabilities"`
	Endpoints    []string `json:"endpoints"`
	RequestTypes []string `json:"request_types"`
}

// ShutdownRequest is the optional body of POST /shutdown
type ShutdownRequest struct {
	Reason       string `json:"reason"`
	DelaySeconds int    `json:"delay_seconds"`
}

func (s *Server) uptime() float64 {
	return time.Since(s.started).Seconds()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now(),
		UptimeSeconds: s.uptime(),
	})
}

func (s *Server) healthDetailed(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	index := map[string]any{"state": s.backend.IndexState()}
	if err := s.backend.LastIndexError(); err != nil {
		index["last_error"] = err.Error()
	}

	hostname, _ := os.Hostname()
	c.JSON(http.StatusOK, DetailedHealthResponse{
		HealthResponse: HealthResponse{
			Status:        "healthy",
			Timestamp:     time.Now(),
			UptimeSeconds: s.uptime(),
		},
		Port: int(s.port.Load()),
		ProcessInfo: map[string]any{
			"pid":             os.Getpid(),
			"goroutines":      runtime.NumGoroutine(),
			"memory_usage_mb": float64(mem.Alloc) / 1024 / 1024,
			"memory_sys_mb":   float64(mem.Sys) / 1024 / 1024,
			"gc_cycles":       mem.NumGC,
		},
		SystemInfo: map[string]any{
			"cpu_count":  runtime.NumCPU(),
			"platform":   runtime.GOOS,
			"arch":       runtime.GOARCH,
			"go_version": runtime.Version(),
			"hostname":   hostname,
		},
		Index:        index,
		RequestCount: s.requests.Load(),
		ErrorCount:   s.failures.Load(),
	})
}

func (s *Server) healthDatabase(c *gin.Context) {
	report := s.backend.StoreHealth(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, DatabaseHealthResponse{
		ConnectionName: report.Collection,
		IsHealthy:      report.Healthy,
		ResponseTimeMs: float64(report.ResponseTime.Microseconds()) / 1000,
		LastCheck:      time.Now(),
		ErrorMessage:   report.Error,
		Records:        report.Records,
	})
}

func (s *Server) info(c *gin.Context) {
	types := make([]string, 0, len(protocol.Types))
	for _, t := range protocol.Types {
		types = append(types, string(t))
	}
	c.JSON(http.StatusOK, ServiceInfo{
		Name:         ServiceName,
		Version:      s.version,
		Description:  "Semantic code search over a local workspace",
		Root:         s.backend.Root(),
		Capabilities: capabilities,
		Endpoints:    endpoints,
		RequestTypes: types,
	})
}

func (s *Server) requestShutdown(c *gin.Context) {
	req := ShutdownRequest{Reason: "Manual shutdown"}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DelaySeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delay_seconds must not be negative"})
		return
	}

	logger := logging.FromContext(c.Request.Context())
	logger.Info("shutdown requested", zap.String("reason", req.Reason), zap.Int("delay_seconds", req.DelaySeconds))
	time.AfterFunc(time.Duration(req.DelaySeconds)*time.Second, func() {
		s.triggerShutdown(req.Reason)
	})
	c.JSON(http.StatusOK, gin.H{"message": "Shutdown initiated", "delay_seconds": req.DelaySeconds})
}

// rpc runs one protocol envelope. Invalid requests answer 400, failures
// of the session map onto the closest HTTP status.
func (s *Server) rpc(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRPCBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body) > maxRPCBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	resp := s.dispatcher.Handle(c.Request.Context(), body)
	c.JSON(statusFor(resp), resp)
}

func statusFor(resp protocol.Response) int {
	if resp.OK {
		return http.StatusOK
	}
	switch resp.Code {
	case protocol.CodeInvalidRequest:
		return http.StatusBadRequest
	case protocol.CodeAlreadyRunning:
		return http.StatusConflict
	case protocol.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case protocol.CodeProvider:
		return http.StatusBadGateway
	case protocol.CodeCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
