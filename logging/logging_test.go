package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olablt/gio-worldmap/config"
)

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.log")
	var stderr bytes.Buffer
	l, closer, err := NewWithOutput(config.Log{Level: "debug", File: path, MaxSizeMB: 1}, &stderr)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	l.WithField("region", "1.2").Debug("tile ready")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tile ready")
	assert.Contains(t, string(data), "region=1.2")
	assert.Contains(t, stderr.String(), "tile ready")
}

func TestNewLevels(t *testing.T) {
	var stderr bytes.Buffer
	l, closer, err := NewWithOutput(config.Log{Level: "warn"}, &stderr)
	require.NoError(t, err)
	defer closer.Close()
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "shown")

	_, _, err = New(config.Log{Level: "chatty"})
	assert.Error(t, err)
}
