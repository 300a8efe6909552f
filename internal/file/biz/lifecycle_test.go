package biz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadIntent(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending record with deterministic key", func(t *testing.T) {
		f := newFixture(t, nil)
		ticket, err := f.uc.UploadIntent(ctx, alice, "Quarterly Report é.pdf", 1024, "")
		require.NoError(t, err)

		assert.Equal(t, "alice-example/Quarterly_Report_e.pdf", ticket.Key)
		assert.Equal(t, "Quarterly_Report_e.pdf", ticket.FileName)
		assert.NotEmpty(t, ticket.ID)
		assert.Contains(t, ticket.URL, ticket.Key)
		assert.Contains(t, ticket.URL, "application/pdf")
		assert.Equal(t, baseTime.Add(time.Hour), ticket.ExpiresAt)

		rec := f.repo.get(alice.ID, ticket.Key)
		require.NotNil(t, rec)
		assert.Equal(t, StatusPending, rec.UploadStatus)
		assert.EqualValues(t, 1024, rec.Metadata.Size)
	})

	t.Run("size limit", func(t *testing.T) {
		f := newFixture(t, &Options{MaxUploadSize: 100})
		_, err := f.uc.UploadIntent(ctx, alice, "a.txt", 101, "text/plain")
		assert.ErrorIs(t, err, ErrFileTooLarge)

		_, err = f.uc.UploadIntent(ctx, alice, "a.txt", -1, "text/plain")
		assert.ErrorIs(t, err, ErrInvalidSize)
		assert.Zero(t, f.store.callCount())
	})

	t.Run("unusable name", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.uc.UploadIntent(ctx, alice, "../..", 1, "")
		assert.ErrorIs(t, err, ErrInvalidFileName)
	})

	t.Run("completed file with the same name conflicts", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		_, err := f.uc.UploadIntent(ctx, alice, "a.txt", 1, "")
		assert.ErrorIs(t, err, ErrFileConflict)
		assert.Zero(t, f.store.called("PresignPut"))
	})

	t.Run("pending upload is re-issued", func(t *testing.T) {
		f := newFixture(t, nil)
		first, err := f.uc.UploadIntent(ctx, alice, "a.txt", 1, "")
		require.NoError(t, err)
		second, err := f.uc.UploadIntent(ctx, alice, "a.txt", 2048, "text/markdown")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, f.repo.count("Create"))

		rec := f.repo.get(alice.ID, second.Key)
		require.NotNil(t, rec)
		assert.Equal(t, StatusPending, rec.UploadStatus)
		assert.EqualValues(t, 2048, rec.Metadata.Size)
		assert.Equal(t, "text/markdown", rec.Metadata.ContentType)
	})
}

func TestConfirmUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("pending becomes complete", func(t *testing.T) {
		f := newFixture(t, nil)
		ticket, err := f.uc.UploadIntent(ctx, alice, "a.txt", 3, "")
		require.NoError(t, err)
		f.store.put(ObjectInfo{Key: ticket.Key, Size: 5, StorageClass: "STANDARD", LastModified: baseTime})

		rec, err := f.uc.ConfirmUpload(ctx, alice, ticket.Key)
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, rec.UploadStatus)
		assert.EqualValues(t, 5, rec.Metadata.Size)
		assert.Contains(t, f.cache.invalidated, alice.ID)
	})

	t.Run("second confirm is not found", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		_, err := f.uc.ConfirmUpload(ctx, alice, "alice-example/a.txt")
		assert.ErrorIs(t, err, ErrPendingNotFound)
	})

	t.Run("unknown or foreign key", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.uc.ConfirmUpload(ctx, alice, "alice-example/missing.txt")
		assert.ErrorIs(t, err, ErrPendingNotFound)

		_, err = f.uc.ConfirmUpload(ctx, alice, "bob-example/a.txt")
		assert.ErrorIs(t, err, ErrPendingNotFound)
		assert.Zero(t, f.repo.count("MarkComplete"))
		assert.Zero(t, f.store.callCount())
	})

	t.Run("object not uploaded yet stays pending", func(t *testing.T) {
		f := newFixture(t, nil)
		ticket, err := f.uc.UploadIntent(ctx, alice, "a.txt", 3, "")
		require.NoError(t, err)

		_, err = f.uc.ConfirmUpload(ctx, alice, ticket.Key)
		assert.ErrorIs(t, err, ErrUploadNotReceived)
		assert.Zero(t, f.repo.count("MarkComplete"))
		assert.Equal(t, StatusPending, f.repo.get(alice.ID, ticket.Key).UploadStatus)

		f.store.put(ObjectInfo{Key: ticket.Key, Size: 3, StorageClass: "STANDARD", LastModified: baseTime})
		rec, err := f.uc.ConfirmUpload(ctx, alice, ticket.Key)
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, rec.UploadStatus)
	})

	t.Run("head failure does not block confirm", func(t *testing.T) {
		f := newFixture(t, nil)
		ticket, err := f.uc.UploadIntent(ctx, alice, "a.txt", 3, "")
		require.NoError(t, err)
		f.store.headErr[ticket.Key] = errBoom

		rec, err := f.uc.ConfirmUpload(ctx, alice, ticket.Key)
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, rec.UploadStatus)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes object then record", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.addFile("r1", "a.txt", baseTime, 1)

		err := f.uc.Delete(ctx, alice, FileLocator{Kind: LocatorByID, Value: "r1"})
		require.NoError(t, err)
		assert.Nil(t, f.store.object(rec.Key))
		assert.Nil(t, f.repo.get(alice.ID, rec.Key))
		assert.Contains(t, f.cache.invalidated, alice.ID)
	})

	t.Run("object delete failure leaves record untouched", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.addFile("r1", "a.txt", baseTime, 1)
		f.store.deleteErr[rec.Key] = errBoom

		err := f.uc.Delete(ctx, alice, FileLocator{Kind: LocatorByKey, Value: rec.Key})
		assert.ErrorIs(t, err, ErrStorageUnavailable)
		assert.NotNil(t, f.repo.get(alice.ID, rec.Key))
		assert.Zero(t, f.repo.count("Delete"))
	})

	t.Run("missing record after object removal is success", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.put(ObjectInfo{Key: "alice-example/orphan.bin", Size: 1})

		err := f.uc.Delete(ctx, alice, FileLocator{Kind: LocatorByKey, Value: "alice-example/orphan.bin"})
		require.NoError(t, err)
		assert.Nil(t, f.store.object("alice-example/orphan.bin"))
	})

	t.Run("unknown id", func(t *testing.T) {
		f := newFixture(t, nil)
		err := f.uc.Delete(ctx, alice, FileLocator{Kind: LocatorByID, Value: "nope"})
		assert.ErrorIs(t, err, ErrFileNotFound)
		assert.Zero(t, f.store.callCount())
	})

	t.Run("foreign key", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.put(ObjectInfo{Key: "bob-example/a.txt"})
		err := f.uc.Delete(ctx, alice, FileLocator{Kind: LocatorByKey, Value: "bob-example/a.txt"})
		assert.ErrorIs(t, err, ErrFileNotFound)
		assert.NotNil(t, f.store.object("bob-example/a.txt"))
	})

	t.Run("key held by another owner in the same namespace", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.addFile("r1", "secret.txt", baseTime, 1)
		other := Owner{ID: "u-other", Email: "alice@example.org", Namespace: alice.Namespace}

		err := f.uc.Delete(ctx, other, FileLocator{Kind: LocatorByKey, Value: rec.Key})
		assert.ErrorIs(t, err, ErrFileNotFound)
		assert.NotNil(t, f.store.object(rec.Key))
		assert.NotNil(t, f.repo.get(alice.ID, rec.Key))
		assert.Zero(t, f.store.called("Delete"))
	})
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	byID := FileLocator{Kind: LocatorByID, Value: "r1"}

	t.Run("moves object and record", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "old.txt", baseTime, 4)

		rec, err := f.uc.Rename(ctx, alice, byID, "new name.txt")
		require.NoError(t, err)
		assert.Equal(t, "alice-example/new_name.txt", rec.Key)
		assert.Equal(t, "new_name.txt", rec.DisplayName)

		assert.Nil(t, f.store.object("alice-example/old.txt"))
		assert.NotNil(t, f.store.object("alice-example/new_name.txt"))
		assert.Nil(t, f.repo.get(alice.ID, "alice-example/old.txt"))
		moved := f.repo.get(alice.ID, "alice-example/new_name.txt")
		require.NotNil(t, moved)
		assert.Equal(t, "r1", moved.ID)
	})

	t.Run("same name is a no-op", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		_, err := f.uc.Rename(ctx, alice, byID, "a.txt")
		require.NoError(t, err)
		assert.Zero(t, f.store.called("Copy"))
	})

	t.Run("existing object at destination conflicts", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.store.put(ObjectInfo{Key: "alice-example/b.txt"})

		_, err := f.uc.Rename(ctx, alice, byID, "b.txt")
		assert.ErrorIs(t, err, ErrFileConflict)
		assert.Zero(t, f.store.called("Copy"))
		assert.NotNil(t, f.store.object("alice-example/a.txt"))
	})

	t.Run("existing record at destination conflicts", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.repo.put(&FileRecord{ID: "r2", Key: "alice-example/b.txt", Owner: alice.ID, UploadStatus: StatusPending})

		_, err := f.uc.Rename(ctx, alice, byID, "b.txt")
		assert.ErrorIs(t, err, ErrFileConflict)
	})

	t.Run("old object delete failure removes the copy", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.store.deleteErr["alice-example/a.txt"] = errBoom

		_, err := f.uc.Rename(ctx, alice, byID, "b.txt")
		assert.ErrorIs(t, err, ErrStorageUnavailable)
		assert.Nil(t, f.store.object("alice-example/b.txt"))
		assert.NotNil(t, f.repo.get(alice.ID, "alice-example/a.txt"))
	})

	t.Run("record update failure moves the object back", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.repo.updateKeyErr = errBoom

		_, err := f.uc.Rename(ctx, alice, byID, "b.txt")
		assert.ErrorIs(t, err, ErrMetadataUnavailable)
		assert.NotNil(t, f.store.object("alice-example/a.txt"))
		assert.Nil(t, f.store.object("alice-example/b.txt"))
		assert.NotNil(t, f.repo.get(alice.ID, "alice-example/a.txt"))
	})

	t.Run("failed compensation is reported as inconsistent", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.repo.updateKeyErr = errBoom
		f.store.copyErr["alice-example/a.txt"] = errBoom

		_, err := f.uc.Rename(ctx, alice, byID, "b.txt")
		assert.ErrorIs(t, err, ErrInconsistent)
		assert.True(t, strings.Contains(err.Error(), "rename"))
	})

	t.Run("restored archive keeps its storage class", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		obj := f.store.objects["alice-example/a.txt"]
		obj.StorageClass = "GLACIER"
		obj.RestoreExpiry = baseTime.Add(time.Hour)

		_, err := f.uc.Rename(ctx, alice, byID, "b.txt")
		require.NoError(t, err)
		moved := f.store.object("alice-example/b.txt")
		require.NotNil(t, moved)
		assert.Equal(t, "GLACIER", moved.StorageClass)
		assert.Equal(t, "text/plain", moved.ContentType)
	})

	t.Run("standard object stays standard", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.store.objects["alice-example/a.txt"].StorageClass = ""

		_, err := f.uc.Rename(ctx, alice, byID, "b.txt")
		require.NoError(t, err)
		assert.Equal(t, "STANDARD", f.store.object("alice-example/b.txt").StorageClass)
	})

	t.Run("unrestored archive is rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		f.addFile("r1", "a.txt", baseTime, 1)
		f.store.objects["alice-example/a.txt"].StorageClass = "GLACIER"

		_, err := f.uc.Rename(ctx, alice, byID, "b.txt")
		assert.ErrorIs(t, err, ErrFileArchived)
		assert.Zero(t, f.store.called("Copy"))
		assert.NotNil(t, f.store.object("alice-example/a.txt"))
		assert.NotNil(t, f.repo.get(alice.ID, "alice-example/a.txt"))
	})

	t.Run("pending file cannot be renamed", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.put(&FileRecord{ID: "r1", Key: "alice-example/a.txt", Owner: alice.ID, UploadStatus: StatusPending})
		_, err := f.uc.Rename(ctx, alice, byID, "b.txt")
		assert.ErrorIs(t, err, ErrFileNotFound)
	})
}
