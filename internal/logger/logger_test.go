package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		level       string
		development bool
		wantErr     bool
	}{
		{name: "debug production", level: "debug"},
		{name: "info production", level: "info"},
		{name: "warn development", level: "warn", development: true},
		{name: "error development", level: "error", development: true},
		{name: "invalid level", level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, err := NewLogger(tt.level, tt.development)
			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, l)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, l.SugaredLogger)
			require.Equal(t, tt.level, l.GetLevel())
		})
	}
}

func TestLogger_SetLevelPropagatesToChildren(t *testing.T) {
	t.Parallel()

	base, err := NewLogger("warn", false)
	require.NoError(t, err)

	scheduler := base.WithComponent("scheduler")
	chain := scheduler.WithFields("chain_id", 1)

	require.False(t, base.atomicLevel.Enabled(zapcore.InfoLevel))
	require.Equal(t, "scheduler", chain.GetComponent())

	require.NoError(t, base.SetLevel("debug"))
	require.Equal(t, "debug", scheduler.GetLevel())
	require.Equal(t, "debug", chain.GetLevel())
	require.True(t, chain.atomicLevel.Enabled(zapcore.DebugLevel))

	require.Error(t, chain.SetLevel("loud"))
	require.Equal(t, "debug", base.GetLevel())
}

type levelConfig struct {
	defaultLevel string
	levels       map[string]string
}

func (c *levelConfig) GetComponentLevel(component string) string {
	if level, ok := c.levels[component]; ok {
		return level
	}
	return c.defaultLevel
}

func (c *levelConfig) IsDevelopment() bool { return false }

func TestNewComponentLoggerFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &levelConfig{defaultLevel: "warn", levels: map[string]string{"effect-cache": "debug"}}

	tests := []struct {
		name      string
		component string
		cfg       LevelConfig
		expected  string
	}{
		{name: "component override", component: "effect-cache", cfg: cfg, expected: "debug"},
		{name: "default level", component: "scheduler", cfg: cfg, expected: "warn"},
		{name: "nil config", component: "api", cfg: nil, expected: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, err := NewComponentLoggerFromConfig(tt.component, tt.cfg)
			require.NoError(t, err)
			require.Equal(t, tt.component, l.GetComponent())
			require.Equal(t, tt.expected, l.GetLevel())
		})
	}

	_, err := NewComponentLoggerFromConfig("scheduler", &levelConfig{defaultLevel: "nope"})
	require.Error(t, err)
}

func TestNewNopLogger(t *testing.T) {
	t.Parallel()

	l := NewNopLogger()
	require.NotNil(t, l)

	l.Debug("test")
	l.Infow("test", "key", "value")
	l.Errorf("test %d", 1)
	require.NoError(t, l.SetLevel("error"))
}
