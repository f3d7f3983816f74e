package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewLogger(t *testing.T) {
	log := NewLogger("risk-engine", "debug")
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew(t *testing.T) {
	tests := []struct {
		environment string
		level       string
		debug       bool
	}{
		{"development", "warn", true},
		{"production", "warn", false},
		{"staging", "debug", true},
	}
	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			log := New("risk-engine", tt.environment, tt.level)
			assert.Equal(t, tt.debug, log.Core().Enabled(zapcore.DebugLevel))
		})
	}
}
