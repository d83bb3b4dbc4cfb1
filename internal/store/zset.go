/*
file: goredis/internal/store/zset.go
*/
package store

import "sort"

// zsetFlipThreshold is the member count above which a sorted set's
// backing representation promotes from a sorted vector to a skip
// list. Once flipped, a record never flips back.
const zsetFlipThreshold = 128

type zmember struct {
	score  float64
	member string
}

// ZSetRecord is a sorted-set value: the Scores map is always
// authoritative; vec or sl holds the ordering index, never both.
type ZSetRecord struct {
	Scores     map[string]float64
	ExpireAtMs int64

	vec []zmember // nil once flipped to a skip list
	sl  *skipList // nil until flipped
}

func NewZSetRecord() *ZSetRecord {
	return &ZSetRecord{
		Scores:     make(map[string]float64),
		ExpireAtMs: -1,
	}
}

func (r *ZSetRecord) usingSkipList() bool { return r.sl != nil }

// flip promotes the vector representation to a skip list, built from
// the vector's current contents. The Scores map is untouched: it is
// never rebuilt on flip.
func (r *ZSetRecord) flip() {
	sl := newSkipList()
	for _, m := range r.vec {
		sl.insert(m.score, m.member)
	}
	r.sl = sl
	r.vec = nil
}

func (r *ZSetRecord) vecInsert(score float64, member string) {
	i := sort.Search(len(r.vec), func(i int) bool {
		return !zless(r.vec[i].score, r.vec[i].member, score, member)
	})
	r.vec = append(r.vec, zmember{})
	copy(r.vec[i+1:], r.vec[i:])
	r.vec[i] = zmember{score: score, member: member}
}

func (r *ZSetRecord) vecErase(score float64, member string) {
	for i, m := range r.vec {
		if m.score == score && m.member == member {
			r.vec = append(r.vec[:i], r.vec[i+1:]...)
			return
		}
	}
}

// Add inserts or updates member's score. Returns true when member is
// new to the set, false when an existing member's score was updated.
func (r *ZSetRecord) Add(member string, score float64) bool {
	if old, ok := r.Scores[member]; ok {
		if old != score {
			if r.usingSkipList() {
				r.sl.erase(old, member)
				r.sl.insert(score, member)
			} else {
				r.vecErase(old, member)
				r.vecInsert(score, member)
			}
			r.Scores[member] = score
		}
		return false
	}

	r.Scores[member] = score
	if r.usingSkipList() {
		r.sl.insert(score, member)
	} else {
		r.vecInsert(score, member)
		if len(r.vec) > zsetFlipThreshold {
			r.flip()
		}
	}
	return true
}

// Remove deletes member. Returns true if it was present.
func (r *ZSetRecord) Remove(member string) bool {
	score, ok := r.Scores[member]
	if !ok {
		return false
	}
	delete(r.Scores, member)
	if r.usingSkipList() {
		r.sl.erase(score, member)
	} else {
		r.vecErase(score, member)
	}
	return true
}

func (r *ZSetRecord) Len() int { return len(r.Scores) }

func (r *ZSetRecord) Score(member string) (float64, bool) {
	s, ok := r.Scores[member]
	return s, ok
}

// ordered returns the full (score, member) sequence in order.
func (r *ZSetRecord) ordered() []zmember {
	if r.usingSkipList() {
		return r.sl.toVector()
	}
	out := make([]zmember, len(r.vec))
	copy(out, r.vec)
	return out
}

// RangeByRank normalizes start/stop the way ZRANGE does (-1 = last
// element, clamp to [0, n-1]) and returns the members in that rank
// range, in (score, member) order.
func (r *ZSetRecord) RangeByRank(start, stop int64) []zmember {
	n := int64(r.Len())
	if n == 0 {
		return nil
	}
	start = normalizeIndex(start, n)
	stop = normalizeIndex(stop, n)
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil
	}

	if r.usingSkipList() {
		return r.sl.rangeByRank(int(start), int(stop))
	}
	return append([]zmember(nil), r.vec[start:stop+1]...)
}

func normalizeIndex(idx, n int64) int64 {
	if idx < 0 {
		idx = n + idx
	}
	return idx
}
