package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 180, cfg.Scheduling.HorizonDays)
	assert.Equal(t, "08:30", cfg.Scheduling.DayOpens)
	assert.Equal(t, "21:00", cfg.Scheduling.DayCloses)
	assert.Equal(t, 1, cfg.Scheduling.MinSeats)
	assert.Equal(t, 40, cfg.Scheduling.MaxSeats)
	assert.Equal(t, time.Minute, cfg.Scheduling.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SESSION_HORIZON_DAYS", 90)
	v.Set("RECONCILE_SWEEP_INTERVAL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", " https://campus.example , ,https://admin.example")

	cfg := fromViper(v)
	assert.Equal(t, 90, cfg.Scheduling.HorizonDays)
	assert.Equal(t, time.Minute, cfg.Scheduling.SweepInterval)
	assert.Equal(t, []string{"https://campus.example", "https://admin.example"}, cfg.CORS.AllowedOrigins)
}
