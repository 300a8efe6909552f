package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeTier(t *testing.T) {
	ctx := context.Background()
	byID := FileLocator{Kind: LocatorByID, Value: "r1"}
	key := "alice-example/a.txt"

	t.Run("standard to glacier copies in place", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)

		res, err := f.uc.ChangeTier(ctx, alice, byID, "glacier")
		require.NoError(t, err)
		assert.Equal(t, TierChangeCompleted, res.Status)
		assert.Equal(t, TierGlacier, res.Tier)
		assert.Equal(t, "GLACIER", f.store.object(key).StorageClass)
		assert.Equal(t, "text/plain", f.store.object(key).ContentType)
		assert.Equal(t, TierGlacier, f.repo.get(alice.ID, key).Metadata.Tier)
		assert.Contains(t, f.cache.invalidated, alice.ID)
	})

	t.Run("glacier to standard requests a restore", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.store.objects[key].StorageClass = "GLACIER"

		res, err := f.uc.ChangeTier(ctx, alice, byID, "standard")
		require.NoError(t, err)
		assert.Equal(t, TierRestoreRequested, res.Status)
		assert.Equal(t, TierUnarchiving, res.Tier)
		assert.Equal(t, TierUnarchiving, f.repo.get(alice.ID, key).Metadata.Tier)
		assert.Equal(t, []string{alice.ID + "|" + key}, f.queue.items)
	})

	t.Run("restore already running is not an error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.store.objects[key].StorageClass = "GLACIER"
		f.store.restoreErr = ErrRestoreInProgress

		res, err := f.uc.ChangeTier(ctx, alice, byID, "standard")
		require.NoError(t, err)
		assert.Equal(t, TierRestoreRunning, res.Status)
		assert.Equal(t, TierUnarchiving, res.Tier)
		assert.Empty(t, f.queue.items)
	})

	t.Run("ongoing restore seen on head", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.store.objects[key].StorageClass = "GLACIER"
		f.store.objects[key].RestoreOngoing = true

		res, err := f.uc.ChangeTier(ctx, alice, byID, "standard")
		require.NoError(t, err)
		assert.Equal(t, TierRestoreRunning, res.Status)
		assert.Zero(t, f.store.called("Restore"))
	})

	t.Run("restored object is finalized", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.store.objects[key].StorageClass = "GLACIER"
		f.store.objects[key].RestoreExpiry = baseTime.Add(24 * time.Hour)

		res, err := f.uc.ChangeTier(ctx, alice, byID, "standard")
		require.NoError(t, err)
		assert.Equal(t, TierChangeCompleted, res.Status)
		assert.Equal(t, TierStandard, res.Tier)
		assert.Equal(t, "STANDARD", f.store.object(key).StorageClass)
		assert.Equal(t, TierStandard, f.repo.get(alice.ID, key).Metadata.Tier)
	})

	t.Run("unknown tier", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		_, err := f.uc.ChangeTier(ctx, alice, byID, "deep_archive")
		assert.ErrorIs(t, err, ErrInvalidTier)
		assert.Zero(t, f.repo.totalCalls())
	})

	t.Run("object gone", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		delete(f.store.objects, key)
		_, err := f.uc.ChangeTier(ctx, alice, byID, "glacier")
		assert.ErrorIs(t, err, ErrFileNotFound)
	})
}

func TestFinalizeRestore(t *testing.T) {
	ctx := context.Background()
	key := "alice-example/a.txt"

	f := newFixture(t, nil)
	f.addFile("r1", "a.txt", baseTime, 1)
	f.store.objects[key].StorageClass = "GLACIER"
	f.store.objects[key].RestoreOngoing = true

	done, err := f.uc.FinalizeRestore(ctx, alice.ID, key)
	require.NoError(t, err)
	assert.False(t, done)

	f.store.objects[key].RestoreOngoing = false
	f.store.objects[key].RestoreExpiry = baseTime.Add(time.Hour)

	done, err = f.uc.FinalizeRestore(ctx, alice.ID, key)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "STANDARD", f.store.object(key).StorageClass)
	assert.Equal(t, TierStandard, f.repo.get(alice.ID, key).Metadata.Tier)

	done, err = f.uc.FinalizeRestore(ctx, alice.ID, "alice-example/gone.txt")
	assert.True(t, done)
	assert.ErrorIs(t, err, ErrFileNotFound)
}
