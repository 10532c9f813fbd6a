package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterJSON(t *testing.T) {
	t.Setenv(EnvVar, "")
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "solver")
	l.Info().Int("nodes", 3).Msg("solved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "solver", entry["component"])
	assert.Equal(t, "solved", entry["message"])
	assert.Equal(t, float64(3), entry["nodes"])
	assert.Contains(t, entry, "time")
}

func TestNewWithWriterDev(t *testing.T) {
	t.Setenv(EnvVar, "dev")
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "cli")
	l.Warn().Msg("slow solve")

	out := buf.String()
	assert.True(t, strings.Contains(out, "slow solve"), out)
	assert.False(t, json.Valid(buf.Bytes()), "dev output should not be JSON")
}

func TestLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":      zerolog.InfoLevel,
		"debug": zerolog.DebugLevel,
		"WARN":  zerolog.WarnLevel,
		"bogus": zerolog.InfoLevel,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, Level(name))
		})
	}
}
