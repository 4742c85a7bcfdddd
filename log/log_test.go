package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "housing.log")
	require.NoError(t, SetLogger(Options{Path: path, MaxSize: 1}))
	Logger().Info("fitted pipeline")
	_ = Logger().Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fitted pipeline")
}

func TestSetLoggerLevel(t *testing.T) {
	require.NoError(t, SetLogger(Options{Level: "warn"}))
	assert.False(t, Logger().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Logger().Core().Enabled(zapcore.WarnLevel))

	require.NoError(t, SetLogger(Options{Level: "warn", Debug: true}))
	assert.True(t, Logger().Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, SetLogger(Options{Level: "loud"}))
}

func TestApplyFlags(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(flagSet)
	require.NoError(t, flagSet.Parse([]string{"--debug", "--log-path", "/tmp/x.log"}))

	opts := Options{MaxSize: 10, Path: "config.log"}
	ApplyFlags(flagSet, &opts)
	assert.True(t, opts.Debug)
	assert.Equal(t, "/tmp/x.log", opts.Path)
	assert.Equal(t, 10, opts.MaxSize)
}
