package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tcards.log")
	log, err := New(path, "info", false)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("card row patched", zap.Strings("added", []string{"Alice"}))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "card row patched")
	assert.Contains(t, string(data), `"added":["Alice"]`)
	assert.NotContains(t, string(data), "hidden")
}

func TestVerboseEnablesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcards.log")
	log, err := New(path, "warn", true)
	require.NoError(t, err)
	log.Debug("tick")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tick")
}

func TestBadLevel(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "x.log"), "loud", false)
	assert.Error(t, err)
}

func TestEmptyPathIsNop(t *testing.T) {
	log, err := New("", "info", false)
	require.NoError(t, err)
	log.Info("nowhere")
}
