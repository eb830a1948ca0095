package storage

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(nil)
	t.Cleanup(e.Shutdown)
	return e
}

func TestSetGetDel(t *testing.T) {
	e := newTestEngine(t)

	_, ok, err := e.Get("foo")
	require.NoError(t, err)
	assert.False(t, ok)

	e.Set("foo", StringValue("bar"))

	v, ok, err := e.Get("foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bar", v)

	assert.True(t, e.Del("foo"))
	assert.False(t, e.Del("foo"))

	_, ok, _ = e.Get("foo")
	assert.False(t, ok)
}

func TestIntegerValueCoercesToDecimalText(t *testing.T) {
	e := newTestEngine(t)

	e.Set("n", IntegerValue(42))
	v, ok, err := e.Get("n")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", v)
}

func TestSetNX(t *testing.T) {
	e := newTestEngine(t)

	assert.True(t, e.SetNX("k", StringValue("v1")))
	assert.False(t, e.SetNX("k", StringValue("v2")))

	v, _, _ := e.Get("k")
	assert.Equal(t, "v1", v)
}

func TestSetClearsExpiry(t *testing.T) {
	e := newTestEngine(t)

	e.SetEX("k", StringValue("v"), time.Hour)
	e.Set("k", StringValue("v2"))
	assert.Equal(t, int64(-1), e.TTL("k"))
}

func TestExpiryScenario(t *testing.T) {
	e := newTestEngine(t)

	e.SetEX("k", StringValue("v"), 30*time.Millisecond)
	assert.True(t, e.Exists("k"))

	time.Sleep(80 * time.Millisecond)

	assert.False(t, e.Exists("k"))
	assert.Equal(t, int64(-2), e.TTL("k"))
}

func TestExpireAndTTL(t *testing.T) {
	e := newTestEngine(t)

	assert.False(t, e.Expire("missing", 10*time.Second))

	e.Set("k", StringValue("v"))
	assert.True(t, e.Expire("k", 10*time.Second))

	ttl := e.TTL("k")
	assert.True(t, ttl >= 0 && ttl <= 10, "ttl=%d", ttl)
}

func TestTTLCodes(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, int64(-2), e.TTL("missing"))

	e.Set("k", StringValue("v"))
	assert.Equal(t, int64(-1), e.TTL("k"))
}

func TestPersist(t *testing.T) {
	e := newTestEngine(t)

	assert.False(t, e.Persist("missing"))

	e.Set("k", StringValue("v"))
	assert.False(t, e.Persist("k")) // no TTL to clear

	e.Expire("k", time.Minute)
	assert.True(t, e.Persist("k"))
	assert.Equal(t, int64(-1), e.TTL("k"))
}

func TestDBSizeAndFlushDB(t *testing.T) {
	e := newTestEngine(t)

	e.Set("a", StringValue("1"))
	e.Set("b", StringValue("2"))
	assert.Equal(t, int64(2), e.DBSize())

	e.FlushDB()
	assert.Equal(t, int64(0), e.DBSize())
	_, ok, _ := e.Get("a")
	assert.False(t, ok)
}

func TestOverwritingSortedSetDropsIt(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ZAdd("k", []ZAddPair{{Member: "a", Score: 1}})
	require.NoError(t, err)

	e.Set("k", StringValue("plain"))

	v, ok, err := e.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plain", v)

	// The old sorted set is gone; k is a string key now, so sorted-set
	// commands against it are WrongType.
	_, err = e.ZCard("k")
	var storageErr *Error
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, KindWrongType, storageErr.Kind)
}

func TestZSetCommandOnStringKeyIsWrongType(t *testing.T) {
	e := newTestEngine(t)
	e.Set("k", StringValue("v"))

	_, err := e.ZAdd("k", []ZAddPair{{Member: "a", Score: 1}})
	require.Error(t, err)
	var storageErr *Error
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, KindWrongType, storageErr.Kind)
}

func TestGetOnSortedSetKeyIsWrongType(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.ZAdd("z", []ZAddPair{{Member: "a", Score: 1}})
	require.NoError(t, err)

	_, _, err = e.Get("z")
	require.Error(t, err)
}

func TestZAddZRangeZRankScenario(t *testing.T) {
	e := newTestEngine(t)

	added, err := e.ZAdd("s", []ZAddPair{{"a", 1}, {"b", 2}, {"c", 3}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), added)

	all, err := e.ZRange("s", 0, -1)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Member)
	assert.Equal(t, "c", all[2].Member)

	byScore, err := e.ZRangeByScore("s", 2, 3)
	require.NoError(t, err)
	require.Len(t, byScore, 2)
	assert.Equal(t, "b", byScore[0].Member)

	rank, ok, err := e.ZRank("s", "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rank)
}

func TestZAddUpdateNotAdd(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ZAdd("s", []ZAddPair{{"a", 1}, {"b", 2}, {"c", 3}})
	require.NoError(t, err)

	added, err := e.ZAdd("s", []ZAddPair{{"a", 5}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), added)

	score, ok, err := e.ZScore("s", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5.0, score)

	rank, _, _ := e.ZRank("s", "a")
	assert.Equal(t, 2, rank)
}

func TestZAddRejectsNaNAndLeavesSetUnchanged(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ZAdd("s", []ZAddPair{{"a", 1}})
	require.NoError(t, err)

	_, err = e.ZAdd("s", []ZAddPair{{"x", math.NaN()}})
	require.Error(t, err)
	var storageErr *Error
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, KindSyntax, storageErr.Kind)

	card, _ := e.ZCard("s")
	assert.Equal(t, int64(1), card)
}

func TestMissingKeyZSetOpsReturnEmptyAnswers(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, int64(0), mustCard(t, e))
	rng, err := e.ZRange("missing", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, rng)

	_, ok, err := e.ZScore("missing", "m")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := e.ZRem("missing", []string{"m"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func mustCard(t *testing.T, e *Engine) int64 {
	t.Helper()
	card, err := e.ZCard("missing")
	require.NoError(t, err)
	return card
}

func TestBackgroundWorkerDeletesExpiredKey(t *testing.T) {
	e := newTestEngine(t)
	e.SetEX("k", StringValue("v"), 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.DBSize() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected background worker to purge expired key")
}
