// internal/discovery/chardev/scanner_test.go
package chardev

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ql-service/internal/model"
)

func TestScannerListsMatchingNodes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"lp0", "lp1", "other"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "lp9"), 0o700))

	scanner := NewScanner(zaptest.NewLogger(t), filepath.Join(dir, "lp*"))
	assert.True(t, scanner.IsAvailable())
	assert.Equal(t, "chardev", scanner.GetScannerType())

	devices, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, filepath.Join(dir, "lp0"), devices[0].Address)
	assert.Equal(t, filepath.Join(dir, "lp1"), devices[1].Address)
	assert.Equal(t, model.ConnectionTypeCharDev, devices[0].ConnectionType)
	assert.Equal(t, false, devices[0].ConnectionInfo["char_device"])
}

func TestScannerBadPattern(t *testing.T) {
	scanner := NewScanner(zaptest.NewLogger(t), "[")
	assert.False(t, scanner.IsAvailable())

	_, err := scanner.Scan(context.Background())
	assert.Error(t, err)
}
