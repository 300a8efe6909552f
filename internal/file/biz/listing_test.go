package biz

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListFiles_OrdersNewestFirstAcrossPages(t *testing.T) {
	f := newFixture(t, nil)
	t1, t2, t3 := baseTime.Add(-3*time.Hour), baseTime.Add(-2*time.Hour), baseTime.Add(-time.Hour)
	f.addFile("r1", "one.txt", t1, 10)
	f.addFile("r2", "two.txt", t2, 20)
	f.addFile("r3", "three.txt", t3, 30)
	ctx := context.Background()

	page1, err := f.uc.ListFiles(ctx, alice, RawListParams{Page: "1", PerPage: "2", UseCache: "false"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/three.txt", "alice-example/two.txt"}, keysOf(page1.Files))
	assert.EqualValues(t, 3, page1.Total)
	assert.Equal(t, 2, page1.TotalPages)
	assert.Equal(t, 1, page1.Page)
	assert.Equal(t, 2, page1.PerPage)
	assert.NotEmpty(t, page1.NextCursor)

	page2, err := f.uc.ListFiles(ctx, alice, RawListParams{Page: "2", PerPage: "2", UseCache: "false"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/one.txt"}, keysOf(page2.Files))
	assert.EqualValues(t, 3, page2.Total)
	assert.Empty(t, page2.NextCursor)
}

func TestListFiles_InvalidParamsFailBeforeAnyStoreCall(t *testing.T) {
	cases := []RawListParams{
		{Page: "0"},
		{PerPage: "-5"},
		{Page: "abc"},
		{PerPage: "1001"},
		{UseCache: "maybe"},
		{Source: "disk"},
		{Cursor: "not-a-cursor"},
	}

	for _, raw := range cases {
		t.Run(fmt.Sprintf("%+v", raw), func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.uc.ListFiles(context.Background(), alice, raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPagination) || errors.Is(err, ErrInvalidCursor))
			assert.Zero(t, f.repo.totalCalls())
			assert.Zero(t, f.store.callCount())
			assert.Zero(t, f.cache.gets)
		})
	}
}

func TestListFiles_DanglingRecordDroppedButCounted(t *testing.T) {
	f := newFixture(t, nil)
	f.addFile("r1", "a.txt", baseTime.Add(-3*time.Hour), 1)
	gone := f.addFile("r2", "b.txt", baseTime.Add(-2*time.Hour), 1)
	f.addFile("r3", "c.txt", baseTime.Add(-time.Hour), 1)
	delete(f.store.objects, gone.Key)

	page, err := f.uc.ListFiles(context.Background(), alice, RawListParams{PerPage: "10", UseCache: "false"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/c.txt", "alice-example/a.txt"}, keysOf(page.Files))
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 1, page.TotalPages)

	// 悬空记录不会被删除
	assert.NotNil(t, f.repo.get(alice.ID, gone.Key))
}

func TestListFiles_TransportErrorDropsOnlyThatItem(t *testing.T) {
	f := newFixture(t, nil)
	f.addFile("r1", "a.txt", baseTime.Add(-2*time.Hour), 1)
	flaky := f.addFile("r2", "b.txt", baseTime.Add(-time.Hour), 1)
	f.store.headErr[flaky.Key] = errBoom

	page, err := f.uc.ListFiles(context.Background(), alice, RawListParams{UseCache: "false"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/a.txt"}, keysOf(page.Files))
	assert.EqualValues(t, 2, page.Total)
}

func TestListFiles_BackfillsShortPage(t *testing.T) {
	f := newFixture(t, nil)
	f.addFile("r1", "a.txt", baseTime.Add(-4*time.Hour), 1)
	f.addFile("r2", "b.txt", baseTime.Add(-3*time.Hour), 1)
	f.addFile("r3", "c.txt", baseTime.Add(-2*time.Hour), 1)
	gone := f.addFile("r4", "d.txt", baseTime.Add(-time.Hour), 1)
	delete(f.store.objects, gone.Key)

	page, err := f.uc.ListFiles(context.Background(), alice, RawListParams{PerPage: "2", UseCache: "false"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/c.txt", "alice-example/b.txt"}, keysOf(page.Files))
	assert.Equal(t, 2, f.repo.count("List"))
}

func TestListFiles_BackfillIsBounded(t *testing.T) {
	f := newFixture(t, &Options{BackfillRounds: 1})
	for i := 0; i < 6; i++ {
		rec := f.addFile(fmt.Sprintf("r%d", i), fmt.Sprintf("f%d.txt", i), baseTime.Add(-time.Duration(i+1)*time.Hour), 1)
		if i < 4 {
			delete(f.store.objects, rec.Key)
		}
	}

	page, err := f.uc.ListFiles(context.Background(), alice, RawListParams{PerPage: "2", UseCache: "false"})
	require.NoError(t, err)

	// 第一轮 r0,r1 都丢弃，补取的 r2,r3 也丢弃，达到上限后返回空页
	assert.Empty(t, page.Files)
	assert.Equal(t, 2, f.repo.count("List"))
	assert.EqualValues(t, 6, page.Total)
}

func TestListFiles_CursorMode(t *testing.T) {
	f := newFixture(t, nil)
	f.addFile("r1", "a.txt", baseTime.Add(-3*time.Hour), 1)
	f.addFile("r2", "b.txt", baseTime.Add(-2*time.Hour), 1)
	f.addFile("r3", "c.txt", baseTime.Add(-time.Hour), 1)
	ctx := context.Background()

	first, err := f.uc.ListFiles(ctx, alice, RawListParams{PerPage: "2"})
	require.NoError(t, err)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.uc.ListFiles(ctx, alice, RawListParams{PerPage: "2", Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/a.txt"}, keysOf(second.Files))
	assert.Empty(t, second.NextCursor)

	// 同一个游标重复请求得到同样的结果
	again, err := f.uc.ListFiles(ctx, alice, RawListParams{PerPage: "2", Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, keysOf(second.Files), keysOf(again.Files))

	// 新上传的文件不影响已发出的游标
	f.addFile("r4", "new.txt", baseTime, 1)
	afterInsert, err := f.uc.ListFiles(ctx, alice, RawListParams{PerPage: "2", Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, keysOf(second.Files), keysOf(afterInsert.Files))
}

func TestListFiles_TiesBrokenByRecordID(t *testing.T) {
	f := newFixture(t, nil)
	same := baseTime.Add(-time.Hour)
	f.addFile("r-a", "x.txt", same, 1)
	f.addFile("r-c", "y.txt", same, 1)
	f.addFile("r-b", "z.txt", same, 1)

	page, err := f.uc.ListFiles(context.Background(), alice, RawListParams{UseCache: "false"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/y.txt", "alice-example/z.txt", "alice-example/x.txt"}, keysOf(page.Files))
}

func TestListFiles_PendingRecordsExcluded(t *testing.T) {
	f := newFixture(t, nil)
	f.addFile("r1", "done.txt", baseTime.Add(-time.Hour), 1)
	f.repo.put(&FileRecord{
		ID:           "r2",
		Key:          "alice-example/pending.txt",
		Owner:        alice.ID,
		UploadStatus: StatusPending,
		LastModified: baseTime,
	})

	page, err := f.uc.ListFiles(context.Background(), alice, RawListParams{UseCache: "false"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/done.txt"}, keysOf(page.Files))
	assert.EqualValues(t, 1, page.Total)
}

func TestListFiles_OtherOwnersInvisible(t *testing.T) {
	f := newFixture(t, nil)
	f.addFile("r1", "mine.txt", baseTime.Add(-time.Hour), 1)
	f.repo.put(&FileRecord{
		ID:           "r2",
		Key:          "bob-example/theirs.txt",
		Owner:        "u-bob",
		UploadStatus: StatusComplete,
		LastModified: baseTime,
	})

	page, err := f.uc.ListFiles(context.Background(), alice, RawListParams{UseCache: "false"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/mine.txt"}, keysOf(page.Files))
}

func TestListFiles_ListCache(t *testing.T) {
	f := newFixture(t, nil)
	f.addFile("r1", "a.txt", baseTime.Add(-time.Hour), 1)
	ctx := context.Background()

	_, err := f.uc.ListFiles(ctx, alice, RawListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.sets)
	countCalls := f.repo.count("Count")

	cached, err := f.uc.ListFiles(ctx, alice, RawListParams{})
	require.NoError(t, err)
	assert.Len(t, cached.Files, 1)
	assert.Equal(t, countCalls, f.repo.count("Count"), "served from cache")

	_, err = f.uc.ListFiles(ctx, alice, RawListParams{UseCache: "false"})
	require.NoError(t, err)
	assert.Equal(t, countCalls+1, f.repo.count("Count"))
	assert.Equal(t, 1, f.cache.sets, "use_cache=false never writes the cache")
}

func TestListFiles_MetadataStoreDownIsServerError(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.countErr = errBoom

	_, err := f.uc.ListFiles(context.Background(), alice, RawListParams{UseCache: "false"})
	assert.ErrorIs(t, err, ErrMetadataUnavailable)

	f.repo.countErr = nil
	f.repo.listErr = errBoom
	_, err = f.uc.ListFiles(context.Background(), alice, RawListParams{UseCache: "false"})
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
}

func TestListFiles_FreshSnapshotTrustedAndWrittenBack(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.addFile("r1", "a.txt", baseTime.Add(-2*time.Hour), 1)
	cachedAt := baseTime.Add(-10 * time.Minute)
	stored := f.repo.records[repoKey(alice.ID, rec.Key)]
	stored.Metadata.CachedAt = &cachedAt

	// 对象在元数据库不知情的情况下变大
	obj := f.store.objects[rec.Key]
	obj.Size = 99

	page, err := f.uc.ListFiles(context.Background(), alice, RawListParams{UseCache: "true"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Files[0].Metadata.Size)
	assert.Zero(t, f.store.called("Head"))

	page, err = f.uc.ListFiles(context.Background(), alice, RawListParams{UseCache: "false"})
	require.NoError(t, err)
	assert.EqualValues(t, 99, page.Files[0].Metadata.Size)
	assert.Equal(t, 1, f.store.called("Head"))

	assert.Eventually(t, func() bool {
		got := f.repo.get(alice.ID, rec.Key)
		return got.Metadata.Size == 99 && got.Metadata.CachedAt != nil && got.Metadata.CachedAt.Equal(baseTime)
	}, time.Second, 10*time.Millisecond)
}

func TestListFiles_ConcurrencyDoesNotAffectOrder(t *testing.T) {
	pool, err := workerpool.New(&workerpool.Config{Workers: 16}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)

	f := newFixtureWithRunner(t, nil, pool)
	for i := 0; i < 30; i++ {
		// 每三个共享同一时间戳，依赖 id 打破平局
		lm := baseTime.Add(-time.Duration(i/3) * time.Minute)
		f.addFile(fmt.Sprintf("r%02d", i), fmt.Sprintf("f%02d.txt", i), lm, int64(i))
	}

	first, err := f.uc.ListFiles(context.Background(), alice, RawListParams{PerPage: "30", UseCache: "false"})
	require.NoError(t, err)
	require.Len(t, first.Files, 30)

	for run := 0; run < 5; run++ {
		page, err := f.uc.ListFiles(context.Background(), alice, RawListParams{PerPage: "30", UseCache: "false"})
		require.NoError(t, err)
		assert.Equal(t, keysOf(first.Files), keysOf(page.Files))
	}

	seen := map[string]bool{}
	for _, file := range first.Files {
		assert.False(t, seen[file.Key], "duplicate %s", file.Key)
		seen[file.Key] = true
	}
}

func TestListFiles_StorageSource(t *testing.T) {
	f := newFixture(t, &Options{PersistOrphans: true})
	f.addFile("r1", "a.txt", baseTime.Add(-3*time.Hour), 1)
	f.store.put(ObjectInfo{
		Key:          "alice-example/orphan.pdf",
		Size:         5,
		StorageClass: "GLACIER",
		LastModified: baseTime.Add(-time.Hour),
	})
	f.store.put(ObjectInfo{Key: "alice-example/pending.bin", Size: 7, LastModified: baseTime})
	f.repo.put(&FileRecord{ID: "r2", Key: "alice-example/pending.bin", Owner: alice.ID, UploadStatus: StatusPending})
	f.store.put(ObjectInfo{Key: "bob-example/other.txt", Size: 1, LastModified: baseTime})

	page, err := f.uc.ListFiles(context.Background(), alice, RawListParams{Source: "storage"})
	require.NoError(t, err)
	require.Len(t, page.Files, 2)

	orphan := page.Files[0]
	assert.Equal(t, "alice-example/orphan.pdf", orphan.Key)
	assert.False(t, orphan.ExistsInDB)
	assert.Equal(t, TierGlacier, orphan.Metadata.Tier)
	assert.Equal(t, "application/pdf", orphan.Metadata.ContentType)

	known := page.Files[1]
	assert.Equal(t, "alice-example/a.txt", known.Key)
	assert.True(t, known.ExistsInDB)
	assert.Equal(t, "text/plain", known.Metadata.ContentType)

	assert.Eventually(t, func() bool {
		return f.repo.get(alice.ID, "alice-example/orphan.pdf") != nil
	}, time.Second, 10*time.Millisecond)
}

func TestListFiles_StorageSourceCursor(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 3; i++ {
		f.addFile(fmt.Sprintf("r%d", i), fmt.Sprintf("f%d.txt", i), baseTime.Add(-time.Duration(i)*time.Hour), 1)
	}
	ctx := context.Background()

	first, err := f.uc.ListFiles(ctx, alice, RawListParams{Source: "storage", PerPage: "2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/f0.txt", "alice-example/f1.txt"}, keysOf(first.Files))
	require.NotEmpty(t, first.NextCursor)

	second, err := f.uc.ListFiles(ctx, alice, RawListParams{Source: "storage", PerPage: "2", Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice-example/f2.txt"}, keysOf(second.Files))
	assert.Empty(t, second.NextCursor)

	byOffset, err := f.uc.ListFiles(ctx, alice, RawListParams{Source: "storage", PerPage: "2", Page: "2"})
	require.NoError(t, err)
	assert.Equal(t, keysOf(second.Files), keysOf(byOffset.Files))

	// 元数据游标不能用于 storage 来源
	meta, err := f.uc.ListFiles(ctx, alice, RawListParams{PerPage: "2"})
	require.NoError(t, err)
	_, err = f.uc.ListFiles(ctx, alice, RawListParams{Source: "storage", Cursor: meta.NextCursor})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
