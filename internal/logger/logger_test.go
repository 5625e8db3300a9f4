package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultConfig(t *testing.T) {
	logger, err := New(NewDefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestNew_LevelParsing(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = "debug"
	logger, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = "chatty"
	logger, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
