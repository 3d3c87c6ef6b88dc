// internal/utils/response_test.go
package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ql-service/pkg/driver"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"busy", fmt.Errorf("%w: /dev/usb/lp0", driver.ErrDeviceBusy), http.StatusConflict},
		{"too wide", &driver.PageError{Item: "a.png", Copy: 1, Err: driver.ErrImageTooWide}, http.StatusUnprocessableEntity},
		{"load failed", driver.ErrImageLoadFailed, http.StatusUnprocessableEntity},
		{"device reported", &driver.DeviceError{Conditions: []string{"cover-open"}}, http.StatusBadGateway},
		{"timeout", driver.ErrProtocolTimeout, http.StatusGatewayTimeout},
		{"unavailable", driver.ErrDeviceUnavailable, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorStatus(tt.err))
		})
	}
}

func TestErrorResponseCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("request_id", "req-1")

	ErrorResponse(c, http.StatusBadGateway, "Printer reported error(s)", errors.New("cover-open"))

	require.Equal(t, http.StatusBadGateway, w.Code)
	var body APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "req-1", body.RequestID)
	require.NotNil(t, body.Error)
	assert.Equal(t, "PRINTER_ERROR", body.Error.Code)
	assert.Equal(t, "cover-open", body.Error.Details)
}
