// Package zset implements the sorted-set contract: a dual-indexed ordered
// multiset of (member, score) pairs, ordered by score then member bytes,
// with O(log n) add/remove/rank and range-by-score / range-by-rank queries.
package zset

import (
	"errors"
	"math"
	"sync"

	"github.com/rvlan/duskstore/internal/avltree"
)

// ErrNaNScore is returned when an operation is asked to use a NaN score;
// scores must be totally ordered.
var ErrNaNScore = errors.New("zset: NaN score is not allowed")

// AddResult reports what Add did.
type AddResult int

const (
	Added AddResult = iota
	Updated
	Unchanged
)

// Pair is one (member, score) result from a range query.
type Pair struct {
	Member string
	Score  float64
}

// scoreKey is the Ordered Index's ordering key: score first, then member
// bytes, so ties in score are broken deterministically.
type scoreKey struct {
	score  float64
	member string
}

func less(a, b scoreKey) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.member < b.member
}

// Set is a sorted set. The zero value is not usable; use New.
type Set struct {
	mu     sync.Mutex
	index  *avltree.Tree[scoreKey, string]
	scores map[string]float64
}

// New creates an empty sorted set.
func New() *Set {
	return &Set{
		index:  avltree.New[scoreKey, string](less),
		scores: make(map[string]float64),
	}
}

// Add inserts or updates member's score. Invariant R1 (the index agrees
// with the score map) holds for any observer because both structures are
// mutated under the same critical section.
func (s *Set) Add(member string, score float64) (AddResult, error) {
	if math.IsNaN(score) {
		return Unchanged, ErrNaNScore
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.scores[member]
	if !exists {
		s.scores[member] = score
		s.index.Insert(scoreKey{score: score, member: member}, member)
		return Added, nil
	}
	if old == score {
		return Unchanged, nil
	}

	s.index.Remove(scoreKey{score: old, member: member})
	s.scores[member] = score
	s.index.Insert(scoreKey{score: score, member: member}, member)
	return Updated, nil
}

// Remove deletes member, reporting whether it was present.
func (s *Set) Remove(member string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.scores[member]
	if !ok {
		return false
	}
	delete(s.scores, member)
	s.index.Remove(scoreKey{score: score, member: member})
	return true
}

// Score returns member's score, if present.
func (s *Set) Score(member string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[member]
	return score, ok
}

// Rank returns member's zero-based position in ascending (score, member)
// order.
func (s *Set) Rank(member string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.scores[member]
	if !ok {
		return 0, false
	}
	return s.index.RankOf(scoreKey{score: score, member: member})
}

// Size returns the number of members.
func (s *Set) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scores)
}

// Clear removes every member.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = make(map[string]float64)
	s.index.Clear()
}

// RangeByRank returns members with rank in [start, stop], inclusive, in
// ascending order. Negative indices count from the end (-1 is the last
// element); start is clamped to [0, size) and stop to [start-1, size-1].
// An empty set, or start > stop after clamping, yields an empty result.
func (s *Set) RangeByRank(start, stop int) []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.scores)
	if n == 0 {
		return nil
	}

	start = normalizeIndex(start, n)
	stop = normalizeIndex(stop, n)

	if start < 0 {
		start = 0
	}
	if start >= n {
		return nil
	}
	if stop >= n {
		stop = n - 1
	}
	if stop < start {
		return nil
	}

	out := make([]Pair, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		entry, ok := s.index.Select(i)
		if !ok {
			break
		}
		out = append(out, Pair{Member: entry.Key.member, Score: entry.Key.score})
	}
	return out
}

func normalizeIndex(i, n int) int {
	if i < 0 {
		return n + i
	}
	return i
}

// RangeByScore returns every member with score in [min, max], inclusive,
// in ascending (score, member) order. If min > max, the result is empty.
func (s *Set) RangeByScore(min, max float64) []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()

	if min > max {
		return nil
	}

	entries := s.index.RangeMatch(func(k scoreKey) int {
		switch {
		case k.score < min:
			return -1
		case k.score > max:
			return 1
		default:
			return 0
		}
	})

	out := make([]Pair, len(entries))
	for i, e := range entries {
		out[i] = Pair{Member: e.Key.member, Score: e.Key.score}
	}
	return out
}
