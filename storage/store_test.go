package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"MagicDJ/model"
	"MagicDJ/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, totalBytes int64) (*storage.AudioStore, *storage.MemoryBackend) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	store := storage.NewAudioStore(backend, storage.Options{
		TotalBytes:  totalBytes,
		InitBackoff: time.Millisecond,
	})
	require.NoError(t, store.Init(context.Background()))
	return store, backend
}

func TestSaveGetDelete(t *testing.T) {
	store, _ := newTestStore(t, 1024)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "t1", []byte("abcde"), "audio/mpeg"))

	data, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), data)

	// 缺失不是错误
	data, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Delete(ctx, "t1"))
	data, err = store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, data)

	// 删除是幂等的
	require.NoError(t, store.Delete(ctx, "t1"))
}

// 配额单调性：任意保存/删除序列之后，used 等于现存条目大小之和
func TestQuotaTracksEntrySizes(t *testing.T) {
	store, _ := newTestStore(t, 1024)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a", make([]byte, 100), ""))
	require.NoError(t, store.Save(ctx, "b", make([]byte, 200), ""))
	assert.Equal(t, int64(300), store.GetQuota(ctx).Used)

	// 覆盖写释放旧条目占用
	require.NoError(t, store.Save(ctx, "a", make([]byte, 50), ""))
	assert.Equal(t, int64(250), store.GetQuota(ctx).Used)

	require.NoError(t, store.Delete(ctx, "b"))
	assert.Equal(t, int64(50), store.GetQuota(ctx).Used)

	require.NoError(t, store.Delete(ctx, "a"))
	assert.Equal(t, int64(0), store.GetQuota(ctx).Used)
}

func TestSaveQuotaExceeded(t *testing.T) {
	store, _ := newTestStore(t, 100)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a", make([]byte, 80), ""))

	err := store.Save(ctx, "b", make([]byte, 30), "")
	var quotaErr *storage.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(30), quotaErr.Needed)
	assert.Equal(t, int64(20), quotaErr.Remaining)

	// 覆盖同一id时旧条目先计入剩余空间
	require.NoError(t, store.Save(ctx, "a", make([]byte, 90), ""))
}

func TestSaveWriteError(t *testing.T) {
	store, backend := newTestStore(t, 0)
	backend.FailPut = errors.New("disk on fire")

	err := store.Save(context.Background(), "a", []byte("x"), "")
	assert.ErrorIs(t, err, storage.ErrWrite)
}

func TestGetMultiplePartialResult(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a", []byte("1"), ""))
	require.NoError(t, store.Save(ctx, "c", []byte("3"), ""))

	result, err := store.GetMultiple(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Contains(t, result, "a")
	assert.NotContains(t, result, "b")
	assert.Contains(t, result, "c")
}

// getQuota 不抛错：底层失败时返回 Total=0 的空配额
func TestQuotaDegradesOnBackendFailure(t *testing.T) {
	store, backend := newTestStore(t, 1024)
	backend.FailList = errors.New("listing unavailable")

	quota := store.GetQuota(context.Background())
	assert.Equal(t, model.StorageQuota{}, quota)
}

func TestWarningLevels(t *testing.T) {
	store, _ := newTestStore(t, 0)

	tests := []struct {
		percentage float64
		want       model.WarningLevel
	}{
		{0, model.WarningLevelNormal},
		{69.9, model.WarningLevelNormal},
		{70, model.WarningLevelWarning},
		{84.9, model.WarningLevelWarning},
		{85, model.WarningLevelDanger},
		{94.9, model.WarningLevelDanger},
		{95, model.WarningLevelCritical},
		{120, model.WarningLevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, store.WarningLevel(tt.percentage), "percentage=%v", tt.percentage)
	}
}

func TestLeaseLifecycle(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a", []byte("bytes"), ""))

	url, err := store.AcquireURL(ctx, "a")
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Equal(t, 1, store.LeaseCount())

	// 覆盖写使旧引用失效
	require.NoError(t, store.Save(ctx, "a", []byte("newer"), ""))
	_, held := store.Lease("a")
	assert.False(t, held)

	// 删除同样回收引用
	_, err = store.AcquireURL(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "a"))
	assert.Equal(t, 0, store.LeaseCount())

	// 对缺失对象签发引用返回 ErrNotFound
	_, err = store.AcquireURL(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// 重新初始化会回收所有已签发的引用
func TestReinitRevokesLeases(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a", []byte("bytes"), ""))
	_, err := store.AcquireURL(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, store.LeaseCount())

	require.NoError(t, store.Init(ctx))
	assert.Equal(t, 0, store.LeaseCount())
}

type failingOpenBackend struct {
	*storage.MemoryBackend
	failures int
	calls    int
}

func (b *failingOpenBackend) Open(ctx context.Context) error {
	b.calls++
	if b.calls <= b.failures {
		return errors.New("store locked")
	}
	return nil
}

func TestInitRetriesWithBackoff(t *testing.T) {
	backend := &failingOpenBackend{MemoryBackend: storage.NewMemoryBackend(), failures: 2}
	store := storage.NewAudioStore(backend, storage.Options{
		InitRetries: 2,
		InitBackoff: time.Millisecond,
	})

	require.NoError(t, store.Init(context.Background()))
	assert.Equal(t, 3, backend.calls)
}

func TestInitExhaustsRetries(t *testing.T) {
	backend := &failingOpenBackend{MemoryBackend: storage.NewMemoryBackend(), failures: 10}
	store := storage.NewAudioStore(backend, storage.Options{
		InitRetries: 2,
		InitBackoff: time.Millisecond,
	})

	err := store.Init(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageUnavailable)
	// 初始化失败后其余操作全部拒绝
	assert.ErrorIs(t, store.Save(context.Background(), "a", nil, ""), storage.ErrStorageUnavailable)
}
