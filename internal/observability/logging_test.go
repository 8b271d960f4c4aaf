package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/chatbridge/internal/config"
)

func TestNewLogger_JSON(t *testing.T) {
	cfg := config.LoggingConfig{Level: "info", Format: "json"}
	logger, err := NewLogger(cfg, "chatbridge")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewLogger_Console(t *testing.T) {
	cfg := config.LoggingConfig{Level: "debug", Format: "console"}
	logger, err := NewLogger(cfg, "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1), "debug level should be enabled")
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := config.LoggingConfig{Level: "trace", Format: "json"}
	_, err := NewLogger(cfg, "chatbridge")
	assert.Error(t, err)
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	cfg := config.LoggingConfig{Level: "info", Format: "xml"}
	_, err := NewLogger(cfg, "chatbridge")
	assert.Error(t, err)
}

func TestSessionFields(t *testing.T) {
	fields := SessionFields("abc", "127.0.0.1:5000")
	require.Len(t, fields, 2)
	assert.Equal(t, "session", fields[0].Key)
	assert.Equal(t, "abc", fields[0].String)
	assert.Equal(t, "remote_addr", fields[1].Key)
}
