package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.WarnLevel, false)

	logger.Info().Msg("hidden")
	logger.Warn().Str("dashboard", "CPU").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "dashboard=CPU")
	assert.Contains(t, out, "app=cfgsync")
}

func TestNewLeavesGlobalLoggerAlone(t *testing.T) {
	var global, local bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&global)
	t.Cleanup(func() { log.Logger = prev })

	New(&local, zerolog.InfoLevel, false)
	log.Info().Msg("global")

	assert.Contains(t, global.String(), "global")
	assert.Empty(t, local.String())
}
