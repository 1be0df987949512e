package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyOutputPathWritesNoFiles(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	Init("info", "json", "")
	Info("hello")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "logging without an output path must not touch the working directory")
}

func TestInit_OutputPathCreatesLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	Init("info", "json", dir)
	Info("hello")

	_, err := os.Stat(filepath.Join(dir, "app.log"))
	assert.NoError(t, err)
}
