package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/hsprobe/internal/config"
)

func TestGetLoggerBeforeInit(t *testing.T) {
	require.NotNil(t, GetLogger())
	GetLogger().WithField("k", "v").Debug("usable before Init")
}

func TestInitStdoutOnly(t *testing.T) {
	err := Init(config.LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.True(t, GetLogger().IsInfoEnabled())
	assert.False(t, GetLogger().IsDebugEnabled())
}

func TestInitWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "probe.log")
	cfg := config.LogConfig{
		Level:  "debug",
		Format: "text",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled: true,
				Path:    logPath,
				Rotation: config.RotationConfig{
					MaxSizeMB:  10,
					MaxBackups: 3,
					MaxAgeDays: 7,
				},
			},
		},
	}
	require.NoError(t, Init(cfg))

	GetLogger().WithField("device", "eth0").Info("file output test")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file output test")
	assert.Contains(t, string(data), "device=eth0")
}

func TestInitInvalid(t *testing.T) {
	err := Init(config.LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	err = Init(config.LogConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported log format")

	err = Init(config.LogConfig{
		Level:   "info",
		Format:  "text",
		Outputs: config.LogOutputsConfig{File: config.FileOutputConfig{Enabled: true}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path")
}

func TestFormatterPattern(t *testing.T) {
	f := &formatter{pattern: "%time [%level] %msg %field", time: time.RFC3339}
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "flush failed",
		Data: logrus.Fields{
			"device": "eth0",
			"error":  errors.New("broken pipe"),
		},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T03:04:05Z [WARNING] flush failed device=eth0 error=broken pipe", string(out))
}

func TestLevelFiltering(t *testing.T) {
	l, err := newLogrus(config.LogConfig{Level: "warn", Format: "text"})
	require.NoError(t, err)

	var buf bytes.Buffer
	l.SetOutput(&buf)
	adapter := &logrusAdapter{entry: logrus.NewEntry(l)}

	adapter.Info("info message")
	adapter.Warn("warn message")
	adapter.Error("error message")

	out := buf.String()
	assert.False(t, strings.Contains(out, "info message"))
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}
