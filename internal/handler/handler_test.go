// internal/handler/handler_test.go
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ql-service/internal/config"
	internalDriver "ql-service/internal/driver"
	"ql-service/internal/driver/brother"
	"ql-service/internal/model"
	"ql-service/internal/protocol"
	"ql-service/internal/repository"
	"ql-service/internal/service"
	"ql-service/pkg/driver"
)

// echoPrinter replies to status requests and reports every page as printed
type echoPrinter struct {
	mu      sync.Mutex
	errs    driver.ErrorBits
	pending [][]byte
	open    bool
}

func (p *echoPrinter) Open(ctx context.Context) error { p.open = true; return nil }
func (p *echoPrinter) Close() error                   { p.open = false; return nil }
func (p *echoPrinter) IsOpen() bool                   { return p.open }

func (p *echoPrinter) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := driver.NewStatus('5')
	s.MediaType = driver.MediaDieCutLabels
	s.MediaWidth = 29
	s.MediaLength = 90
	s.Error1 = uint8(p.errs)
	s.Error2 = uint8(p.errs >> 8)
	switch {
	case bytes.Equal(data, brother.QL_COMMANDS.STATUS_REQUEST):
		s.Type = driver.StatusReply
	case bytes.Equal(data, brother.QL_COMMANDS.PAGE_COMMIT):
		s.Type = driver.StatusPrintingDone
	default:
		return nil
	}
	frame, _ := s.MarshalBinary()
	p.pending = append(p.pending, frame)
	return nil
}

func (p *echoPrinter) ReadFrame(ctx context.Context, size int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil, fmt.Errorf("%w: nothing pending", driver.ErrProtocolTimeout)
	}
	frame := p.pending[0]
	p.pending = p.pending[1:]
	return frame, nil
}

func (p *echoPrinter) Address() string                       { return "/dev/usb/lp0" }
func (p *echoPrinter) GetProtocolType() model.ConnectionType { return model.ConnectionTypeCharDev }
func (p *echoPrinter) Stats() protocol.ProtocolStats         { return protocol.ProtocolStats{} }

type testServer struct {
	router  *gin.Engine
	printer *echoPrinter
	bus     *EventBus
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	devDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(devDir, "lp0"), nil, 0o600))

	cfg := &config.Config{
		App:     config.AppConfig{Name: "ql-service", Version: "test"},
		Server:  config.ServerConfig{MaxUploadMB: 1},
		Printer: config.PrinterConfig{Address: "/dev/usb/lp0", Threshold: 128},
		Discovery: config.DiscoveryConfig{
			CharDevGlob: filepath.Join(devDir, "lp*"),
			ScanTimeout: time.Second,
		},
	}

	printer := &echoPrinter{}
	registry := internalDriver.NewRegistryWithFactory(func(address string) (protocol.DeviceProtocol, error) {
		return printer, nil
	}, brother.Config{CompletionTimeout: 200 * time.Millisecond, PollInterval: time.Millisecond}, logger)

	bus := NewEventBus(logger)
	registry.SetEventHandler(NewDeviceEventHandler(bus, logger))

	printService := service.NewPrintService(repository.NewMemoryJobRepository(), registry, bus, cfg, logger)
	discoveryService := service.NewDiscoveryService(registry, cfg, logger)

	printerHandler := NewPrinterHandler(printService, cfg.Server.MaxUploadMB, cfg.Printer.Threshold, logger)
	jobHandler := NewJobHandler(printService, logger)
	discoveryHandler := NewDiscoveryHandler(discoveryService, logger)
	healthHandler := NewHealthHandler(nil, printService, cfg, logger)

	router := gin.New()
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	api := router.Group("/api/v1")
	api.GET("/printer/status", printerHandler.GetStatus)
	api.POST("/printer/print", printerHandler.Print)
	api.GET("/jobs", jobHandler.ListJobs)
	api.GET("/jobs/:id", jobHandler.GetJob)
	api.GET("/discovery/scan", discoveryHandler.ScanDevices)

	return &testServer{router: router, printer: printer, bus: bus}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func multipartPrint(t *testing.T, fields map[string]string, images ...string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, name := range images {
		img := image.NewGray(image.Rect(0, 0, 30, 200))
		for x := 0; x < 30; x++ {
			img.SetGray(x, x, color.Gray{Y: 0})
		}
		part, err := mw.CreateFormFile(imagesField, name)
		require.NoError(t, err)
		require.NoError(t, png.Encode(part, img))
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/printer/print", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/printer/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "QL-700", data["model"])
	assert.Equal(t, "die-cut-labels", data["media_type"])
	assert.Equal(t, float64(90), data["media_length_mm"])

	w, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/printer/status?device=lpd://x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrintEndpointAndJobHistory(t *testing.T) {
	s := newTestServer(t)
	events := s.bus.Subscribe(model.EventJobCompleted)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.bus.Start(ctx)

	w, body := s.do(t, multipartPrint(t, map[string]string{
		"copies":  "2",
		"autocut": "true",
		"margin":  "35",
	}, "a.png", "b.png"))
	require.Equal(t, http.StatusOK, w.Code, body)

	job := body["data"].(map[string]interface{})
	assert.Equal(t, "SUCCESS", job["status"])
	assert.Len(t, job["pages"], 4)
	options := job["options"].(map[string]interface{})
	assert.Equal(t, float64(2), options["auto_cut_every"])
	assert.Equal(t, float64(35), options["margin"])

	select {
	case event := <-events:
		assert.Equal(t, job["id"], event.Data["job_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("job completed event not published")
	}

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job["id"].(string), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job["id"], body["data"].(map[string]interface{})["id"])

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=SUCCESS", nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["jobs"], 1)
	assert.Equal(t, float64(1), data["pagination"].(map[string]interface{})["total"])
}

func TestPrintEndpointDeviceError(t *testing.T) {
	s := newTestServer(t)
	s.printer.errs = driver.ErrorBitCoverOpen

	w, body := s.do(t, multipartPrint(t, nil, "a.png"))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Printer reported error(s): cover-open", body["message"])
	assert.Equal(t, "FAILED", body["data"].(map[string]interface{})["status"])
}

func TestPrintEndpointValidation(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, multipartPrint(t, map[string]string{"device": "ignored"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := s.do(t, multipartPrint(t, map[string]string{"threshold": "300"}, "a.png"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"].(map[string]interface{})["details"], "threshold")

	w, _ = s.do(t, multipartPrint(t, map[string]string{"media_type": "glossy"}, "a.png"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobNotFound(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/6f1c0f4e-0000-4000-8000-000000000000", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=LOST&start_date=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiscoveryEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/discovery/scan?type=chardev", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["devices_found"])

	w, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/discovery/scan?type=bluetooth", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthWithoutDatabase(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "disabled", checks["database"].(map[string]interface{})["status"])

	w, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
