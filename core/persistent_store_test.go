package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormStoreUpsertOverwrites(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert("k", []byte(`"v1"`), now.Add(time.Minute), nil, now))
	require.NoError(t, store.Upsert("k", []byte(`"v2"`), now.Add(time.Minute), []string{"video", "notes"}, now))

	entry, err := store.Find("k", now)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, `"v2"`, string(entry.Payload))
	assert.True(t, entry.ExpiresAt.Equal(now.Add(time.Minute)), "Find must report the stored expiry")
	assert.Equal(t, []string{"video", "notes"}, entry.Tags)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "Upsert must not create duplicate rows")
}

func TestGormStoreFindDeletesExpired(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert("k", []byte(`1`), now.Add(time.Second), nil, now))

	// 过期条目查不到，而且会被顺手删掉
	entry, err := store.Find("k", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, entry)

	count, _ := store.Count()
	assert.Equal(t, int64(0), count)
}

func TestGormStoreDeleteByTags(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)

	require.NoError(t, store.Upsert("a", []byte(`1`), exp, []string{"video"}, now))
	require.NoError(t, store.Upsert("b", []byte(`2`), exp, []string{"video", "notes"}, now))
	require.NoError(t, store.Upsert("c", []byte(`3`), exp, []string{"notes"}, now))
	require.NoError(t, store.Upsert("d", []byte(`4`), exp, nil, now))

	n, err := store.DeleteByTags([]string{"video"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// "vid" 不能误删 "video"，标签匹配必须是整词
	n, err = store.DeleteByTags([]string{"vid"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	count, _ := store.Count()
	assert.Equal(t, int64(2), count)
}

func TestGormStoreClearPrefix(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)

	require.NoError(t, store.Upsert("video:a", []byte(`1`), exp, nil, now))
	require.NoError(t, store.Upsert("video:b", []byte(`2`), exp, nil, now))
	require.NoError(t, store.Upsert("search:c", []byte(`3`), exp, nil, now))

	n, err := store.Clear("video:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entry, err := store.Find("search:c", now)
	require.NoError(t, err)
	require.NotNil(t, entry)

	// 无前缀清空剩下的所有条目
	n, err = store.Clear("")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormStoreTouch(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert("k", []byte(`1`), now.Add(time.Hour), nil, now))
	require.NoError(t, store.Touch("k", now.Add(time.Minute)))

	// Touch 不存在的键也不报错（尽力而为的旁路写）
	assert.NoError(t, store.Touch("missing", now))
}

func TestGormStoreDeleteExpired(t *testing.T) {
	store := NewGormStore(newTestDB(t))
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert("old", []byte(`1`), now.Add(time.Second), nil, now))
	require.NoError(t, store.Upsert("new", []byte(`2`), now.Add(time.Hour), nil, now))

	n, err := store.DeleteExpired(now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
