package expiry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustInvariants(t *testing.T, s *Scheduler) {
	t.Helper()
	require.True(t, s.checkInvariants(), "heap/pos invariant violated")
}

func TestUpsertAndPeek(t *testing.T) {
	s := New()
	base := time.Now()

	s.Upsert("a", base.Add(3*time.Second))
	s.Upsert("b", base.Add(1*time.Second))
	s.Upsert("c", base.Add(2*time.Second))
	mustInvariants(t, s)

	peek, ok := s.Peek()
	require.True(t, ok)
	assert.True(t, peek.Equal(base.Add(1*time.Second)))
	assert.Equal(t, 3, s.Size())
}

func TestUpsertUpdatesExisting(t *testing.T) {
	s := New()
	base := time.Now()
	s.Upsert("a", base.Add(10*time.Second))
	s.Upsert("a", base.Add(1*time.Second))
	mustInvariants(t, s)
	assert.Equal(t, 1, s.Size())

	peek, _ := s.Peek()
	assert.True(t, peek.Equal(base.Add(1 * time.Second)))
}

func TestRemove(t *testing.T) {
	s := New()
	base := time.Now()
	s.Upsert("a", base.Add(1*time.Second))
	s.Upsert("b", base.Add(2*time.Second))
	s.Upsert("c", base.Add(3*time.Second))
	mustInvariants(t, s)

	assert.True(t, s.Remove("b"))
	mustInvariants(t, s)
	assert.False(t, s.Remove("b"))
	assert.Equal(t, 2, s.Size())
}

func TestDrainExpiredOrder(t *testing.T) {
	s := New()
	base := time.Now()
	s.Upsert("late", base.Add(3*time.Second))
	s.Upsert("earliest", base.Add(1*time.Second))
	s.Upsert("mid", base.Add(2*time.Second))
	s.Upsert("future", base.Add(10*time.Second))

	expired := s.DrainExpired(base.Add(3500 * time.Millisecond))
	assert.Equal(t, []string{"earliest", "mid", "late"}, expired)
	mustInvariants(t, s)

	remaining, ok := s.Peek()
	require.True(t, ok)
	assert.True(t, remaining.Equal(base.Add(10 * time.Second)))
}

func TestClearAndEmpty(t *testing.T) {
	s := New()
	assert.True(t, s.Empty())
	s.Upsert("a", time.Now())
	assert.False(t, s.Empty())
	s.Clear()
	assert.True(t, s.Empty())
	_, ok := s.Peek()
	assert.False(t, ok)
}

func TestRandomizedInvariantsHold(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := New()
	base := time.Now()
	keys := make([]string, 0, 200)

	for i := 0; i < 2000; i++ {
		switch {
		case len(keys) == 0 || rng.Intn(3) != 0:
			k := randomKey(rng)
			s.Upsert(k, base.Add(time.Duration(rng.Intn(100000))*time.Millisecond))
			keys = append(keys, k)
		default:
			k := keys[rng.Intn(len(keys))]
			s.Remove(k)
		}
		mustInvariants(t, s)
	}
}

func randomKey(rng *rand.Rand) string {
	const alphabet = "abcdefghij"
	return string(alphabet[rng.Intn(len(alphabet))])
}
