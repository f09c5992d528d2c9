package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openFiles(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("no /proc/self/fd on this platform")
	}
	return len(entries)
}

func TestInitializeWritesFileCores(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() {
		log = zap.NewNop()
	})

	require.NoError(t, Initialize(Configuration{
		LogFile:   filepath.Join(dir, "oracle.log"),
		ErrorFile: filepath.Join(dir, "oracle.err"),
		Level:     "info",
	}))
	Info("scan finished")
	Error("scan failed")
	Sync()

	all, err := os.ReadFile(filepath.Join(dir, "oracle.log"))
	require.NoError(t, err)
	assert.Contains(t, string(all), "scan finished")
	assert.Contains(t, string(all), "scan failed")

	errorsOnly, err := os.ReadFile(filepath.Join(dir, "oracle.err"))
	require.NoError(t, err)
	assert.NotContains(t, string(errorsOnly), "scan finished")
	assert.Contains(t, string(errorsOnly), "scan failed")
}

func TestInitializeClosesLogFileWhenErrorFileFails(t *testing.T) {
	dir := t.TempDir()
	before := log
	files := openFiles(t)

	err := Initialize(Configuration{
		LogFile:   filepath.Join(dir, "oracle.log"),
		ErrorFile: filepath.Join(dir, "missing", "oracle.err"),
	})
	require.Error(t, err)
	assert.Same(t, before, log, "a failed initialization keeps the previous logger")
	assert.Equal(t, files, openFiles(t))
}
