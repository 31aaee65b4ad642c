package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

type cachedRollup struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

func TestCacheRepositorySetGetExpire(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewCacheRepository(client, nil)
	ctx := context.Background()

	var dest cachedRollup
	require.ErrorIs(t, repo.Get(ctx, "approval:rollup:EF06MA01:3:6:1", &dest), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "approval:rollup:EF06MA01:3:6:1", cachedRollup{Status: "pending", Count: 2}, 30*time.Second))
	require.NoError(t, repo.Get(ctx, "approval:rollup:EF06MA01:3:6:1", &dest))
	require.Equal(t, cachedRollup{Status: "pending", Count: 2}, dest)

	server.FastForward(31 * time.Second)
	require.ErrorIs(t, repo.Get(ctx, "approval:rollup:EF06MA01:3:6:1", &dest), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryVersionCounter(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewCacheRepository(client, nil)
	ctx := context.Background()

	version, err := repo.Version(ctx, "approval:rollup-version:EF06MA01:3:6:1")
	require.NoError(t, err)
	require.Zero(t, version)

	for want := int64(1); want <= 3; want++ {
		got, err := repo.Bump(ctx, "approval:rollup-version:EF06MA01:3:6:1")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	version, err = repo.Version(ctx, "approval:rollup-version:EF06MA01:3:6:1")
	require.NoError(t, err)
	require.Equal(t, int64(3), version)
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()
	var dest cachedRollup
	require.ErrorIs(t, repo.Get(ctx, "key", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(ctx, "key", dest, time.Second))
	version, err := repo.Bump(ctx, "key")
	require.NoError(t, err)
	require.Zero(t, version)
}
