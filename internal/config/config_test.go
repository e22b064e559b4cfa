package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 120.0, cfg.Scoring.Weights.HalfLifeDays)
	assert.Equal(t, 0.35, cfg.Scoring.Weights.MinConfidence)
	assert.Equal(t, 8.0, cfg.Scoring.Weights.VolumeCap)
	assert.Equal(t, 0.9, cfg.Scoring.Credibility.Pro)
	assert.Equal(t, 3, cfg.Ranking.BestValueWindow)
	assert.Equal(t, 70, cfg.Ranking.BestValueMinScore)
	assert.Equal(t, time.Hour, cfg.Schedule.ParseRefreshInterval())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"BESTPICK_DB_PATH", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "SERPER_API_KEY", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `database:
  path: /tmp/picks.db
schedule:
  refresh_interval: 30m
scoring:
  weights:
    half_life_days: 60
  forum_domains: [letsrun.com]
ranking:
  top_n: 5
watch:
  queries: ["best trail running shoes"]
  min_score: 80
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/picks.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Minute, cfg.Schedule.ParseRefreshInterval())
	assert.Equal(t, 60.0, cfg.Scoring.Weights.HalfLifeDays)
	assert.Equal(t, 1.0, cfg.Scoring.Weights.Base.Pro, "unset keys keep defaults")
	assert.Equal(t, []string{"letsrun.com"}, cfg.Scoring.ForumDomains)
	assert.Equal(t, 5, cfg.Ranking.Limit)
	assert.Equal(t, 3, cfg.Ranking.BestValueWindow)
	assert.Equal(t, []string{"best trail running shoes"}, cfg.Watch.Queries)
	assert.Equal(t, 80, cfg.Watch.MinScore)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BESTPICK_DB_PATH", "/data/bp.db")
	t.Setenv("SERPER_API_KEY", "serp")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "ant")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/data/bp.db", cfg.Database.Path)
	assert.True(t, cfg.Sources.Web.Enabled)
	assert.Equal(t, "serp", cfg.Sources.Web.APIKey)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("YOUTUBE_API_KEY", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("YOUTUBE_API_KEY=from-dotenv\n"), 0o600))
	// godotenv never overrides variables that are already set, even empty ones.
	require.NoError(t, os.Unsetenv("YOUTUBE_API_KEY"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Sources.YouTube.APIKey)
	assert.True(t, cfg.Sources.YouTube.Enabled)
	t.Cleanup(func() { os.Unsetenv("YOUTUBE_API_KEY") })
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBadDurationsFallBack(t *testing.T) {
	assert.Equal(t, time.Hour, ScheduleConfig{RefreshInterval: "soon"}.ParseRefreshInterval())
	assert.Equal(t, 10*time.Second, ExcerptConfig{Timeout: ""}.ParseTimeout())
	assert.Equal(t, time.Duration(0), RSSConfig{MaxAge: ""}.ParseMaxAge())
}
