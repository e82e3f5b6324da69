package logger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope(t *testing.T) {
	tests := []struct {
		name  string
		scope string
		want  string
	}{
		{"basic scope", "batch", "batch"},
		{"nested scope", "store.http", "store.http"},
		{"empty scope", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := Scope(tt.scope)
			assert.Equal(t, "scope", attr.Key)
			assert.Equal(t, tt.want, attr.Value.String())
		})
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"simple error", errors.New("something went wrong")},
		{"nil error", nil},
		{"wrapped error", errors.Join(errors.New("outer"), errors.New("inner"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := Error(tt.err)
			assert.Equal(t, "error", attr.Key)
			assert.Equal(t, tt.err, attr.Value.Any())
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level    string
		enabled  slog.Level
		disabled *slog.Level
	}{
		{level: "", enabled: slog.LevelInfo, disabled: ptr(slog.LevelDebug)},
		{level: "debug", enabled: slog.LevelDebug},
		{level: "DeBuG", enabled: slog.LevelDebug},
		{level: "info", enabled: slog.LevelInfo, disabled: ptr(slog.LevelDebug)},
		{level: "warn", enabled: slog.LevelWarn, disabled: ptr(slog.LevelInfo)},
		{level: "warning", enabled: slog.LevelWarn, disabled: ptr(slog.LevelInfo)},
		{level: "error", enabled: slog.LevelError, disabled: ptr(slog.LevelWarn)},
		{level: "invalid", enabled: slog.LevelInfo, disabled: ptr(slog.LevelDebug)},
	}

	for _, tt := range tests {
		t.Run("LOG_LEVEL="+tt.level, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.level)
			t.Setenv("GO_ENV", "")

			log := NewLogger()
			require.NotNil(t, log)

			ctx := context.Background()
			assert.True(t, log.Enabled(ctx, tt.enabled))
			if tt.disabled != nil {
				assert.False(t, log.Enabled(ctx, *tt.disabled))
			}
		})
	}
}

func TestNewLogger_ProductionJSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("GO_ENV", "production")

	log := NewLogger()
	require.NotNil(t, log)
	assert.IsType(t, &slog.JSONHandler{}, log.Handler())
	assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}

func ptr(l slog.Level) *slog.Level { return &l }
