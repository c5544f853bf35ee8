package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, cats map[string]bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetBase(zap.New(core), cats)
	t.Cleanup(func() { SetBase(zap.NewNop(), nil) })
	return logs
}

func TestAllCategoriesLog(t *testing.T) {
	logs := observe(t, nil)
	for _, cat := range AllCategories {
		Get(cat).Info("hello from %s", cat)
	}
	require.Equal(t, len(AllCategories), logs.Len())
	for i, entry := range logs.All() {
		require.Equal(t, string(AllCategories[i]), entry.LoggerName)
		require.Equal(t, "hello from "+string(AllCategories[i]), entry.Message)
	}
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	logs := observe(t, map[string]bool{"engine": false, "loader": true})
	EngineDebug("dropped")
	LoaderDebug("kept %d", 1)
	require.False(t, IsCategoryEnabled(CategoryEngine))
	require.True(t, IsCategoryEnabled(CategoryLoader))
	require.True(t, IsCategoryEnabled(CategoryWatch))
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "kept 1", logs.All()[0].Message)
}

func TestWithAddsFields(t *testing.T) {
	logs := observe(t, nil)
	Get(CategoryHarness).With("unit", "a.js#one").Warn("slow")
	entry := logs.All()[0]
	require.Equal(t, zapcore.WarnLevel, entry.Level)
	require.Equal(t, "a.js#one", entry.ContextMap()["unit"])
}

func TestConfigureLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Configure(Options{Level: "warn", Output: &buf}))
	t.Cleanup(func() { SetBase(zap.NewNop(), nil) })

	Boot("info line")
	BootWarn("warn line")
	Sync()
	out := buf.String()
	require.NotContains(t, out, "info line")
	require.Contains(t, out, "warn line")
	require.Contains(t, out, "WARN")
}

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Configure(Options{Level: "debug", JSON: true, Output: &buf}))
	t.Cleanup(func() { SetBase(zap.NewNop(), nil) })

	ConfigDebug("loaded %s", "lessonrun.yaml")
	Sync()
	require.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
	require.Contains(t, buf.String(), `"logger":"config"`)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, nil)
	timer := StartTimer(CategoryHarness, "unit run")
	time.Sleep(2 * time.Millisecond)
	timer.StopWithThreshold(time.Nanosecond)
	require.Equal(t, 1, logs.Len())
	require.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	require.Contains(t, logs.All()[0].Message, "unit run took")
}
