// internal/discovery/tcp/scanner_test.go
package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ql-service/internal/model"
)

func TestScanFindsListeningHost(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	// A closed port on loopback is refused immediately.
	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedAddr := closed.Addr().String()
	closed.Close()

	scanner := NewScanner(zaptest.NewLogger(t), &Config{
		Hosts:       []string{listener.Addr().String(), closedAddr},
		ConnTimeout: time.Second,
	})
	assert.True(t, scanner.IsAvailable())

	devices, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "tcp://"+listener.Addr().String(), devices[0].Address)
	assert.Equal(t, model.ConnectionTypeTCP, devices[0].ConnectionType)
}

func TestScannerWithoutHosts(t *testing.T) {
	scanner := NewScanner(zaptest.NewLogger(t), nil)
	assert.False(t, scanner.IsAvailable())
	assert.Equal(t, DefaultPort, scanner.config.Port)
}
