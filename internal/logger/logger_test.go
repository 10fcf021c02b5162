package logger_test

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/co2mqtt/internal/errors"
	"codeberg.org/mutker/co2mqtt/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		level logger.LogLevel
		ok    bool
	}{
		{"debug", logger.DebugLevel, true},
		{"info", logger.InfoLevel, true},
		{"warning", logger.WarnLevel, true},
		{"warn", logger.WarnLevel, true},
		{"error", logger.ErrorLevel, true},
		{"verbose", logger.InfoLevel, false},
	}

	for _, tt := range tests {
		level, ok := logger.ParseLevel(tt.in)
		assert.Equal(t, tt.level, level, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestNewWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)

	log.Info().Int("co2", 410).Msg("Published CO2 average")

	entry := decode(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Published CO2 average", entry["message"])
	assert.InDelta(t, 410, entry["co2"], 0)
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)

	err := errors.New().Wrap(errors.ErrTimeout, stderrors.New("no reply"))
	log.ErrorWithCode(err).Msg("Sensor read failed")

	entry := decode(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, string(errors.ErrTimeout), entry["error_code"])
	assert.Equal(t, "no reply", entry["error"])
}

func TestNopDiscards(t *testing.T) {
	log := logger.Nop()
	assert.NotPanics(t, func() {
		log.Debug().Str("k", "v").Msg("ignored")
		log.ErrorWithCode(errors.New().New(errors.ErrInternal)).Msg("ignored")
	})
}
