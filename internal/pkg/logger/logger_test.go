package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/qs3c/billing_go_server/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		enabled zapcore.Level
		wantErr bool
	}{
		{name: "default level", cfg: config.LogConfig{}, enabled: zapcore.InfoLevel},
		{name: "debug json", cfg: config.LogConfig{Level: "debug", Format: "json"}, enabled: zapcore.DebugLevel},
		{name: "warn console", cfg: config.LogConfig{Level: "WARN", Format: "console"}, enabled: zapcore.WarnLevel},
		{name: "invalid level", cfg: config.LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			if tt.enabled > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.enabled-1))
			}
		})
	}
}

func TestMust_FallsBackToNop(t *testing.T) {
	l := Must(config.LogConfig{Level: "loud"})
	assert.NotNil(t, l)
	assert.False(t, l.Core().Enabled(zapcore.ErrorLevel))
}
