package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	log := New()
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("statement parsed")

	assert.Contains(t, buf.String(), "statement parsed")
}

func TestNewWithLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := NewWithLevel(tt.level, "json")
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	assert.NotNil(t, ctx.Value(LoggerKey))

	log := FromContext(ctx)
	log.Info().Msg("from context")
	assert.Contains(t, buf.String(), "from context")
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"tenant_id": "acme",
		"job_id":    "job-1",
	})

	log.Info().Msg("processing")

	out := buf.String()
	assert.Contains(t, out, `"tenant_id":"acme"`)
	assert.Contains(t, out, `"job_id":"job-1"`)
}
