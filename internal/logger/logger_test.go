package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" info ":  zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "debug", Format: "json", Writer: &buf})

	log.Debug().Str("channel", "D1").Msg("pulse")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "debug", m["level"])
	assert.Equal(t, "D1", m["channel"])
	assert.Equal(t, "pulse", m["message"])
	assert.Contains(t, m, "time")
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Format: "json", Writer: &buf})

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "info", Format: "console", Writer: &buf})

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "console output is not JSON")
}

func TestNamedInheritsRootLevel(t *testing.T) {
	require.NotNil(t, Get())
	l := Named("trigger")
	assert.Equal(t, Get().GetLevel(), l.GetLevel())
	assert.Equal(t, Get().GetLevel(), Named("").GetLevel())
}
