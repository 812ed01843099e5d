package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/axonlab/mirador/internal/common/config"
)

func TestGetLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"WARN":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"unknown": zapcore.InfoLevel, // default
		"":        zapcore.InfoLevel,
	}
	for in, exp := range cases {
		assert.Equal(t, exp, getLogLevel(in))
	}
}

func TestGetEncoder(t *testing.T) {
	assert.NotNil(t, getEncoder(&config.LoggerConfig{Format: "json"}))
	assert.NotNil(t, getEncoder(&config.LoggerConfig{Format: "console", Color: true}))
}

func TestNewLogger(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()

	lg, err := NewLogger(&cfg.Logger)
	assert.NoError(t, err)
	assert.NotNil(t, lg)

	// file output creates the log directory
	tmp := t.TempDir()
	fileCfg := cfg.Logger
	fileCfg.Output = "file"
	fileCfg.FilePath = filepath.Join(tmp, "logs", "mirador.log")
	lg, err = NewLogger(&fileCfg)
	assert.NoError(t, err)
	assert.NotNil(t, lg)
	_, err = os.Stat(filepath.Join(tmp, "logs"))
	assert.NoError(t, err)
}
