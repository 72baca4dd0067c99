package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	Configure(logger, Options{Level: "debug", Format: FormatJSON, Output: buf})

	logger.WithField("option", "awcf_settings").Debug("Settings loaded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Settings loaded", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "awcf_settings", entry["option"])
	assert.Contains(t, entry, "timestamp")
}

func TestConfigure_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	Configure(logger, Options{Level: "warn", Format: "TEXT", Output: buf})

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "level=warning")
	assert.Contains(t, out, "msg=kept")
}

func TestConfigure_Fallbacks(t *testing.T) {
	logger := logrus.New()
	Configure(logger, Options{Level: "loud", Format: "xml"})

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
	assert.False(t, logger.ReportCaller)
}

func TestConfigure_IncludeCaller(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	Configure(logger, Options{Level: "info", IncludeCaller: true, Output: buf})

	logger.Info("with caller")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry["file"], "logging_test.go")
}
