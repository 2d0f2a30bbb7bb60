package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "Asia/Jakarta", cfg.Tenant.Timezone)
	assert.Equal(t, "5 0 * * *", cfg.Reconcile.Cron)
	assert.Equal(t, 15*time.Minute, cfg.Cache.ReportTTL)
	assert.True(t, cfg.GatePass.DailyThrottle)
	assert.Empty(t, cfg.Purposes.Defaults)
}

func TestLoadPurposeDefaultsFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PURPOSE_DEFAULT_STUDENT_ID", "12")
	t.Setenv("PURPOSE_DEFAULT_BUS_ID", "0")
	t.Setenv("GATEPASS_DAILY_THROTTLE", "false")
	t.Setenv("REPORT_CACHE_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	id, ok := cfg.Purposes.DefaultFor("STUDENT")
	require.True(t, ok)
	assert.Equal(t, int64(12), id)

	_, ok = cfg.Purposes.DefaultFor("bus")
	assert.False(t, ok)
	assert.False(t, cfg.GatePass.DailyThrottle)
	assert.Equal(t, 15*time.Minute, cfg.Cache.ReportTTL)
}

func TestLoadAllowedOrigins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ALLOWED_ORIGINS", " https://gate.example.sch.id, ,https://ops.example.sch.id ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://gate.example.sch.id", "https://ops.example.sch.id"}, cfg.CORS.AllowedOrigins)
}
