package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.False(t, cfg.Approvals.AutoApproveSubmitter)
	assert.Equal(t, 30*time.Second, cfg.Approvals.RollupCacheTTL)
	assert.Equal(t, 720*time.Hour, cfg.Approvals.DispatchLedgerTTL)
	assert.Equal(t, 2, cfg.Generation.Workers)
	assert.Equal(t, 256, cfg.Generation.QueueBuffer)
	assert.Equal(t, float64(2), cfg.Generation.RatePerSecond)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APPROVAL_AUTO_APPROVE_SUBMITTER", "true")
	t.Setenv("APPROVAL_ROLLUP_CACHE_TTL", "2m")
	t.Setenv("APPROVAL_DISPATCH_LEDGER_TTL", "not-a-duration")
	t.Setenv("GENERATION_BASE_URL", "http://generation:9000/")
	t.Setenv("GENERATION_RETRIES", "4")
	t.Setenv("ALLOWED_ORIGINS", "https://sma.sch.id, ,http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Approvals.AutoApproveSubmitter)
	assert.Equal(t, 2*time.Minute, cfg.Approvals.RollupCacheTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Approvals.DispatchLedgerTTL)
	assert.Equal(t, "http://generation:9000", cfg.Generation.BaseURL)
	assert.Equal(t, 4, cfg.Generation.Retries)
	assert.Equal(t, []string{"https://sma.sch.id", "http://localhost:3000"}, cfg.CORS.AllowedOrigins)
}
