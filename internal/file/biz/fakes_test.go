package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
)

var (
	errBoom  = errors.New("boom")
	baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

// ---- FileRepo ----

type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*FileRecord // owner|key
	nextID  int
	calls   map[string]int

	countErr     error
	listErr      error
	getErr       error
	deleteErr    error
	updateKeyErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]*FileRecord{}, calls: map[string]int{}}
}

func repoKey(owner, key string) string { return owner + "|" + key }

func (r *fakeRepo) put(rec *FileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ExistsInDB = true
	if rec.StorageLocator == "" {
		rec.StorageLocator = rec.Key
	}
	if rec.DisplayName == "" {
		rec.DisplayName = DisplayNameFromKey(rec.Key)
	}
	r.records[repoKey(rec.Owner, rec.Key)] = rec
}

func (r *fakeRepo) get(owner, key string) *FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[repoKey(owner, key)]; ok {
		return rec.Clone()
	}
	return nil
}

func (r *fakeRepo) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *fakeRepo) totalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func (r *fakeRepo) track(op string) {
	r.calls[op]++
}

func (r *fakeRepo) Create(_ context.Context, rec *FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("Create")
	k := repoKey(rec.Owner, rec.Key)
	if _, ok := r.records[k]; ok {
		return ErrDuplicateKey
	}
	r.nextID++
	rec.ID = fmt.Sprintf("id-new-%d", r.nextID)
	rec.ExistsInDB = true
	r.records[k] = rec.Clone()
	return nil
}

func (r *fakeRepo) GetByKey(_ context.Context, owner, key string) (*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("GetByKey")
	if r.getErr != nil {
		return nil, r.getErr
	}
	if rec, ok := r.records[repoKey(owner, key)]; ok {
		return rec.Clone(), nil
	}
	return nil, ErrRecordNotFound
}

func (r *fakeRepo) GetByID(_ context.Context, owner, id string) (*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("GetByID")
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, rec := range r.records {
		if rec.Owner == owner && rec.ID == id {
			return rec.Clone(), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *fakeRepo) KeyOwner(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("KeyOwner")
	if r.getErr != nil {
		return "", r.getErr
	}
	for _, rec := range r.records {
		if rec.Key == key {
			return rec.Owner, nil
		}
	}
	return "", ErrRecordNotFound
}

func (r *fakeRepo) FindByKeys(_ context.Context, owner string, keys []string) (map[string]*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("FindByKeys")
	out := make(map[string]*FileRecord)
	for _, k := range keys {
		if rec, ok := r.records[repoKey(owner, k)]; ok {
			out[k] = rec.Clone()
		}
	}
	return out, nil
}

func (r *fakeRepo) matching(owner string, status UploadStatus) []*FileRecord {
	var out []*FileRecord
	for _, rec := range r.records {
		if rec.Owner == owner && rec.UploadStatus == status {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.After(out[j].LastModified)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *fakeRepo) Count(_ context.Context, owner string, status UploadStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("Count")
	if r.countErr != nil {
		return 0, r.countErr
	}
	return int64(len(r.matching(owner, status))), nil
}

func (r *fakeRepo) List(_ context.Context, q ListQuery) ([]*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("List")
	if r.listErr != nil {
		return nil, r.listErr
	}

	all := r.matching(q.Owner, q.Status)
	if q.After != nil {
		filtered := all[:0:0]
		for _, rec := range all {
			if rec.LastModified.Before(q.After.LastModified) ||
				(rec.LastModified.Equal(q.After.LastModified) && rec.ID < q.After.ID) {
				filtered = append(filtered, rec)
			}
		}
		all = filtered
	}
	if q.Skip >= int64(len(all)) {
		return []*FileRecord{}, nil
	}
	all = all[q.Skip:]
	if q.Limit > 0 && int64(len(all)) > q.Limit {
		all = all[:q.Limit]
	}

	out := make([]*FileRecord, 0, len(all))
	for _, rec := range all {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (r *fakeRepo) MarkComplete(_ context.Context, owner, key string, info *ObjectInfo, now time.Time) (*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("MarkComplete")
	rec, ok := r.records[repoKey(owner, key)]
	if !ok || rec.UploadStatus != StatusPending {
		return nil, ErrRecordNotFound
	}
	rec.UploadStatus = StatusComplete
	rec.LastModified = now
	if info != nil {
		rec.Metadata.Size = info.Size
		rec.Metadata.Tier = MapTier(info.StorageClass, info.RestoreOngoing)
		rec.Metadata.CachedAt = &now
		if !info.LastModified.IsZero() {
			rec.LastModified = info.LastModified
		}
	}
	return rec.Clone(), nil
}

func (r *fakeRepo) UpdatePending(_ context.Context, owner, key string, size int64, contentType string, now time.Time) (*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("UpdatePending")
	rec, ok := r.records[repoKey(owner, key)]
	if !ok || rec.UploadStatus != StatusPending {
		return nil, ErrRecordNotFound
	}
	rec.Metadata.Size = size
	rec.Metadata.ContentType = contentType
	rec.LastModified = now
	return rec.Clone(), nil
}

func (r *fakeRepo) UpdateSnapshot(_ context.Context, owner, key string, meta FileMetadata, lastModified time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("UpdateSnapshot")
	rec, ok := r.records[repoKey(owner, key)]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Metadata = meta
	rec.LastModified = lastModified
	return nil
}

func (r *fakeRepo) UpdateTier(_ context.Context, owner, key string, tier Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("UpdateTier")
	rec, ok := r.records[repoKey(owner, key)]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Metadata.Tier = tier
	return nil
}

func (r *fakeRepo) UpdateKey(_ context.Context, owner, oldKey, newKey, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("UpdateKey")
	if r.updateKeyErr != nil {
		return r.updateKeyErr
	}
	rec, ok := r.records[repoKey(owner, oldKey)]
	if !ok {
		return ErrRecordNotFound
	}
	if _, taken := r.records[repoKey(owner, newKey)]; taken {
		return ErrDuplicateKey
	}
	delete(r.records, repoKey(owner, oldKey))
	rec.Key = newKey
	rec.StorageLocator = newKey
	rec.DisplayName = displayName
	r.records[repoKey(owner, newKey)] = rec
	return nil
}

func (r *fakeRepo) UpsertOrphan(_ context.Context, rec *FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("UpsertOrphan")
	k := repoKey(rec.Owner, rec.Key)
	if _, ok := r.records[k]; ok {
		return nil
	}
	cp := rec.Clone()
	cp.ID = "orphan-" + rec.Key
	cp.ExistsInDB = true
	r.records[k] = cp
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, owner, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.track("Delete")
	if r.deleteErr != nil {
		return r.deleteErr
	}
	k := repoKey(owner, key)
	if _, ok := r.records[k]; !ok {
		return ErrRecordNotFound
	}
	delete(r.records, k)
	return nil
}

// ---- ObjectStore ----

type fakeStore struct {
	mu      sync.Mutex
	objects map[string]*ObjectInfo
	calls   []string

	headErr    map[string]error
	copyErr    map[string]error // 以 dst 为 key
	deleteErr  map[string]error
	restoreErr error
	listErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:   map[string]*ObjectInfo{},
		headErr:   map[string]error{},
		copyErr:   map[string]error{},
		deleteErr: map[string]error{},
	}
}

func (s *fakeStore) put(info ObjectInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := info
	s.objects[info.Key] = &cp
}

func (s *fakeStore) object(key string) *ObjectInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[key]; ok {
		cp := *o
		return &cp
	}
	return nil
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeStore) called(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, op+" ") {
			n++
		}
	}
	return n
}

func (s *fakeStore) Head(_ context.Context, key string) (*ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Head "+key)
	if err := s.headErr[key]; err != nil {
		return nil, err
	}
	o, ok := s.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) List(_ context.Context, prefix, token string, maxKeys int) (*ObjectPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "List "+prefix)
	if s.listErr != nil {
		return nil, s.listErr
	}

	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := &ObjectPage{}
	for i, k := range keys {
		if i == maxKeys {
			page.NextToken = keys[i-1]
			break
		}
		o := *s.objects[k]
		o.ContentType = ""
		page.Items = append(page.Items, o)
	}
	return page, nil
}

func (s *fakeStore) PresignPut(_ context.Context, key, contentType string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "PresignPut "+key)
	return "https://store.test/put/" + key + "?ct=" + contentType, nil
}

func (s *fakeStore) PresignGet(_ context.Context, key, fileName string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "PresignGet "+key)
	return "https://store.test/get/" + key + "?name=" + fileName, nil
}

func (s *fakeStore) Copy(_ context.Context, src, dst string, opts CopyOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Copy "+src+"->"+dst)
	if err := s.copyErr[dst]; err != nil {
		return err
	}
	o, ok := s.objects[src]
	if !ok {
		return ErrObjectNotFound
	}
	if IsArchived(o.StorageClass) && !o.Restored() {
		return fmt.Errorf("InvalidObjectState: %s", src)
	}
	cp := *o
	cp.Key = dst
	// 和 S3 一样，未指定存储类型时目标为 STANDARD
	cp.StorageClass = opts.StorageClass
	if cp.StorageClass == "" {
		cp.StorageClass = "STANDARD"
	}
	cp.RestoreOngoing = false
	cp.RestoreExpiry = time.Time{}
	if opts.ContentType != "" {
		cp.ContentType = opts.ContentType
	}
	s.objects[dst] = &cp
	return nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Delete "+key)
	if err := s.deleteErr[key]; err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) Restore(_ context.Context, key string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Restore "+key)
	if s.restoreErr != nil {
		return s.restoreErr
	}
	o, ok := s.objects[key]
	if !ok {
		return ErrObjectNotFound
	}
	o.RestoreOngoing = true
	return nil
}

// ---- ListCache / RestoreQueue / TaskRunner ----

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]*PagePayload
	gets, sets  int
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*PagePayload{}}
}

func cacheKey(owner string, page, perPage int) string {
	return fmt.Sprintf("%s:%d:%d", owner, page, perPage)
}

func (c *fakeCache) Get(_ context.Context, owner string, page, perPage int) (*PagePayload, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	p, ok := c.entries[cacheKey(owner, page, perPage)]
	return p, ok, nil
}

func (c *fakeCache) Set(_ context.Context, owner string, page, perPage int, payload *PagePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[cacheKey(owner, page, perPage)] = payload
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, owner)
	for k := range c.entries {
		if strings.HasPrefix(k, owner+":") {
			delete(c.entries, k)
		}
	}
	return nil
}

type fakeQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *fakeQueue) Enqueue(_ context.Context, owner, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, owner+"|"+key)
	return nil
}

// syncRunner 同步执行，方便断言回写结果
type syncRunner struct{}

func (syncRunner) Submit(task func()) error {
	task()
	return nil
}

func (syncRunner) Batch(ctx context.Context, n, _ int, fn func(ctx context.Context, i int)) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(ctx, i)
	}
	return nil
}

// ---- fixtures ----

var alice = Owner{ID: "u-alice", Email: "alice@example.com", Namespace: "alice-example"}

type fixture struct {
	repo  *fakeRepo
	store *fakeStore
	cache *fakeCache
	queue *fakeQueue
	uc    *FileUseCase
}

func newFixture(t *testing.T, opts *Options) *fixture {
	return newFixtureWithRunner(t, opts, syncRunner{})
}

func newFixtureWithRunner(t *testing.T, opts *Options, runner TaskRunner) *fixture {
	t.Helper()
	f := &fixture{
		repo:  newFakeRepo(),
		store: newFakeStore(),
		cache: newFakeCache(),
		queue: &fakeQueue{},
	}
	f.uc = NewFileUseCase(f.repo, f.store, f.cache, f.queue, runner, opts, logger.Nop())
	clock := func() time.Time { return baseTime }
	f.uc.now = clock
	f.uc.reconciler.now = clock
	return f
}

// addFile 同时写入记录和对象
func (f *fixture) addFile(id, name string, lastModified time.Time, size int64) *FileRecord {
	key := BuildKey(alice.Namespace, name)
	rec := &FileRecord{
		ID:           id,
		Key:          key,
		Owner:        alice.ID,
		Metadata:     FileMetadata{Tier: TierStandard, Size: size, ContentType: "text/plain"},
		UploadStatus: StatusComplete,
		CreatedAt:    lastModified,
		LastModified: lastModified,
	}
	f.repo.put(rec)
	f.store.put(ObjectInfo{
		Key:          key,
		Size:         size,
		ContentType:  "text/plain",
		StorageClass: "STANDARD",
		LastModified: lastModified,
	})
	return rec
}

func keysOf(files []FileView) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Key)
	}
	return out
}
