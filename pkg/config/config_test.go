package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Sessions.WaitlistDefault)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.ClassCacheTTL)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, 200, cfg.Sweeper.BatchSize)
	assert.Equal(t, "class-sessions.events", cfg.Events.Channel)
	assert.Equal(t, 50, cfg.Events.RatePerSec)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 2*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, "class-session", cfg.Redis.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.Events.RelayInterval)
	assert.Equal(t, time.Minute, cfg.Events.RelayGrace)
	assert.Equal(t, 100, cfg.Events.RelayBatch)
	assert.Equal(t, 2*time.Minute, cfg.Sweeper.ReconcileGrace)
	assert.Equal(t, 10*time.Second, cfg.Sessions.CascadeDrain)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SWEEPER_INTERVAL", "15s")
	v.Set("SWEEPER_BATCH_SIZE", -4)
	v.Set("CLASS_CACHE_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)
	assert.Equal(t, 15*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, 200, cfg.Sweeper.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.ClassCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, time.Second, parseDuration("", time.Second))
	assert.Equal(t, time.Second, parseDuration("-5m", time.Second))
	assert.Equal(t, 2*time.Hour, parseDuration("2h", time.Second))
}
