/*
file: goredis/internal/store/keyspace.go
*/

// Package store implements the in-memory data model: three typed
// maps (string, hash, sorted-set), a unified expiration index, and
// the active-expiration sampler. A single mutex guards all of it;
// every public operation takes it for its full duration and caches
// the clock once on entry.
package store

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// StringRecord is a plain string value with an optional deadline.
type StringRecord struct {
	Value      []byte
	ExpireAtMs int64 // -1 means no expiry
}

// HashRecord is a hash (field -> value) with an optional deadline on
// the record as a whole.
type HashRecord struct {
	Fields     map[string][]byte
	ExpireAtMs int64
}

// Keyspace holds the three typed maps plus the expiration index that
// indexes every key (of any type) carrying a finite deadline.
type Keyspace struct {
	mu sync.Mutex

	strings map[string]*StringRecord
	hashes  map[string]*HashRecord
	zsets   map[string]*ZSetRecord

	// expiration index: parallel slice+map so a random sample can be
	// taken in O(1) and removal is O(1) via swap-with-last, instead of
	// paying to enumerate the whole map every active-expire tick.
	expireAt  map[string]int64
	expireIdx map[string]int
	expireKey []string

	nowFn func() int64
}

func NewKeyspace() *Keyspace {
	return &Keyspace{
		strings:   make(map[string]*StringRecord),
		hashes:    make(map[string]*HashRecord),
		zsets:     make(map[string]*ZSetRecord),
		expireAt:  make(map[string]int64),
		expireIdx: make(map[string]int),
		nowFn:     func() int64 { return time.Now().UnixMilli() },
	}
}

// NowMs exposes the keyspace's clock source so other components
// (notably AOF rewrite, which must convert absolute deadlines back to
// relative EXPIRE seconds) compute "now" consistently with expiry
// checks on this keyspace.
func (ks *Keyspace) NowMs() int64 {
	return ks.nowFn()
}

func isLiveExpiry(expireAtMs, nowMs int64) bool {
	return expireAtMs >= 0 && nowMs >= expireAtMs
}

// --- expiration index bookkeeping (caller must hold mu) ---

func (ks *Keyspace) indexSet(key string, atMs int64) {
	if atMs < 0 {
		ks.indexClear(key)
		return
	}
	if _, ok := ks.expireIdx[key]; !ok {
		ks.expireIdx[key] = len(ks.expireKey)
		ks.expireKey = append(ks.expireKey, key)
	}
	ks.expireAt[key] = atMs
}

func (ks *Keyspace) indexClear(key string) {
	pos, ok := ks.expireIdx[key]
	if !ok {
		return
	}
	delete(ks.expireAt, key)
	delete(ks.expireIdx, key)
	last := len(ks.expireKey) - 1
	lastKey := ks.expireKey[last]
	ks.expireKey[pos] = lastKey
	ks.expireIdx[lastKey] = pos
	ks.expireKey = ks.expireKey[:last]
}

// deleteKeyEverywhere removes key from all three typed maps and the
// expiration index. This is the "remove all" policy used by the
// active-expiration sampler (see ExpireScanStep) even though a string,
// hash and sorted-set entry could legitimately coexist under the same
// name with different deadlines. It lives here as a single policy
// chokepoint rather than inlined at each call site.
func (ks *Keyspace) deleteKeyEverywhere(key string) {
	delete(ks.strings, key)
	delete(ks.hashes, key)
	delete(ks.zsets, key)
	ks.indexClear(key)
}

// --- strings ---

// Set unconditionally overwrites key. A nil ttlMs clears any existing
// expiry (SET without EX/PX always resets the deadline, even if the
// previous record had one).
func (ks *Keyspace) Set(key string, value []byte, ttlMs *int64) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := ks.nowFn()
	expireAt := int64(-1)
	if ttlMs != nil {
		expireAt = now + *ttlMs
	}
	ks.strings[key] = &StringRecord{Value: append([]byte(nil), value...), ExpireAtMs: expireAt}
	ks.indexSet(key, expireAt)
	return true
}

// SetWithExpireAtMs stores value with an absolute deadline taken
// as-is. Used by the RDB load path, which already carries the
// original wall-clock deadline rather than a relative TTL.
func (ks *Keyspace) SetWithExpireAtMs(key string, value []byte, absoluteMs int64) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.strings[key] = &StringRecord{Value: append([]byte(nil), value...), ExpireAtMs: absoluteMs}
	ks.indexSet(key, absoluteMs)
}

func (ks *Keyspace) Get(key string) ([]byte, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := ks.nowFn()
	rec, ok := ks.strings[key]
	if !ok {
		return nil, false
	}
	if isLiveExpiry(rec.ExpireAtMs, now) {
		delete(ks.strings, key)
		ks.indexClear(key)
		return nil, false
	}
	return append([]byte(nil), rec.Value...), true
}

// Del removes keys from the string map only; a hash or sorted set
// under the same name survives even though Exists reports it. Returns
// the count actually removed.
func (ks *Keyspace) Del(keys []string) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := ks.nowFn()
	removed := 0
	for _, key := range keys {
		rec, ok := ks.strings[key]
		if !ok {
			continue
		}
		if isLiveExpiry(rec.ExpireAtMs, now) {
			delete(ks.strings, key)
			ks.indexClear(key)
			continue
		}
		delete(ks.strings, key)
		ks.indexClear(key)
		removed++
	}
	return removed
}

// Exists is a union check over all three typed maps, lazily expiring
// whichever entry it finds along the way.
func (ks *Keyspace) Exists(key string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := ks.nowFn()
	if rec, ok := ks.strings[key]; ok {
		if isLiveExpiry(rec.ExpireAtMs, now) {
			delete(ks.strings, key)
			ks.indexClear(key)
		} else {
			return true
		}
	}
	if rec, ok := ks.hashes[key]; ok {
		if isLiveExpiry(rec.ExpireAtMs, now) {
			delete(ks.hashes, key)
			ks.indexClear(key)
		} else {
			return true
		}
	}
	if rec, ok := ks.zsets[key]; ok {
		if isLiveExpiry(rec.ExpireAtMs, now) {
			delete(ks.zsets, key)
			ks.indexClear(key)
		} else {
			return true
		}
	}
	return false
}

// Expire applies only to the string map entry; it never touches
// hash/zset records. A negative ttlSeconds clears the expiry instead
// of setting one. Returns whether the string key was present.
func (ks *Keyspace) Expire(key string, ttlSeconds int64) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := ks.nowFn()
	rec, ok := ks.strings[key]
	if !ok {
		return false
	}
	if isLiveExpiry(rec.ExpireAtMs, now) {
		delete(ks.strings, key)
		ks.indexClear(key)
		return false
	}

	if ttlSeconds < 0 {
		rec.ExpireAtMs = -1
		ks.indexClear(key)
		return true
	}
	rec.ExpireAtMs = now + ttlSeconds*1000
	ks.indexSet(key, rec.ExpireAtMs)
	return true
}

// TTL returns floored seconds remaining, -1 for no expiry, -2 if the
// string key is absent or already expired.
func (ks *Keyspace) TTL(key string) int64 {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := ks.nowFn()
	rec, ok := ks.strings[key]
	if !ok {
		return -2
	}
	if isLiveExpiry(rec.ExpireAtMs, now) {
		delete(ks.strings, key)
		ks.indexClear(key)
		return -2
	}
	if rec.ExpireAtMs < 0 {
		return -1
	}
	remainMs := rec.ExpireAtMs - now
	if remainMs < 0 {
		remainMs = 0
	}
	return remainMs / 1000
}

// ExpireScanStep samples up to maxSteps entries from the expiration
// index starting at a random position, and removes (from all three
// typed maps) every sampled key whose deadline has already passed.
// This is O(maxSteps), not a sweep of the whole keyspace. rng lets
// tests drive a deterministic sequence of samples.
func (ks *Keyspace) ExpireScanStep(maxSteps int, rng *rand.Rand) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	n := len(ks.expireKey)
	if n == 0 {
		return 0
	}
	steps := maxSteps
	if steps > n {
		steps = n
	}

	start := 0
	if n > 1 {
		start = rng.Intn(n)
	}

	candidates := make([]string, steps)
	for i := 0; i < steps; i++ {
		candidates[i] = ks.expireKey[(start+i)%n]
	}

	now := ks.nowFn()
	removed := 0
	for _, key := range candidates {
		atMs, ok := ks.expireAt[key]
		if !ok {
			continue // already cleaned by a previous candidate in this batch
		}
		if isLiveExpiry(atMs, now) {
			ks.deleteKeyEverywhere(key)
			removed++
		}
	}
	return removed
}

// --- hashes ---

func (ks *Keyspace) hashRecord(key string, now int64) (*HashRecord, bool) {
	rec, ok := ks.hashes[key]
	if !ok {
		return nil, false
	}
	if isLiveExpiry(rec.ExpireAtMs, now) {
		delete(ks.hashes, key)
		ks.indexClear(key)
		return nil, false
	}
	return rec, true
}

// HSet returns 1 if field was newly created, 0 if it overwrote an
// existing field.
func (ks *Keyspace) HSet(key, field string, value []byte) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := ks.nowFn()
	rec, ok := ks.hashRecord(key, now)
	if !ok {
		rec = &HashRecord{Fields: make(map[string][]byte), ExpireAtMs: -1}
		ks.hashes[key] = rec
	}
	_, existed := rec.Fields[field]
	rec.Fields[field] = append([]byte(nil), value...)
	if existed {
		return 0
	}
	return 1
}

func (ks *Keyspace) HGet(key, field string) ([]byte, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	rec, ok := ks.hashRecord(key, ks.nowFn())
	if !ok {
		return nil, false
	}
	v, ok := rec.Fields[field]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// HDel removes fields from the hash, eagerly removing the hash itself
// from the map once it has no fields left. Returns count removed.
func (ks *Keyspace) HDel(key string, fields []string) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	rec, ok := ks.hashRecord(key, ks.nowFn())
	if !ok {
		return 0
	}
	removed := 0
	for _, f := range fields {
		if _, ok := rec.Fields[f]; ok {
			delete(rec.Fields, f)
			removed++
		}
	}
	if len(rec.Fields) == 0 {
		delete(ks.hashes, key)
		ks.indexClear(key)
	}
	return removed
}

func (ks *Keyspace) HExists(key, field string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	rec, ok := ks.hashRecord(key, ks.nowFn())
	if !ok {
		return false
	}
	_, ok = rec.Fields[field]
	return ok
}

func (ks *Keyspace) HGetAll(key string) map[string][]byte {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	rec, ok := ks.hashRecord(key, ks.nowFn())
	if !ok {
		return nil
	}
	out := make(map[string][]byte, len(rec.Fields))
	for f, v := range rec.Fields {
		out[f] = append([]byte(nil), v...)
	}
	return out
}

func (ks *Keyspace) HLen(key string) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	rec, ok := ks.hashRecord(key, ks.nowFn())
	if !ok {
		return 0
	}
	return len(rec.Fields)
}

// RestoreHash installs a hash record exactly as read from an RDB
// snapshot, bypassing the HSet/lazy-expiry path.
func (ks *Keyspace) RestoreHash(key string, fields map[string][]byte, expireAtMs int64) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	cp := make(map[string][]byte, len(fields))
	for f, v := range fields {
		cp[f] = append([]byte(nil), v...)
	}
	ks.hashes[key] = &HashRecord{Fields: cp, ExpireAtMs: expireAtMs}
	ks.indexSet(key, expireAtMs)
}

// --- sorted sets ---

func (ks *Keyspace) zsetRecord(key string, now int64) (*ZSetRecord, bool) {
	rec, ok := ks.zsets[key]
	if !ok {
		return nil, false
	}
	if isLiveExpiry(rec.ExpireAtMs, now) {
		delete(ks.zsets, key)
		ks.indexClear(key)
		return nil, false
	}
	return rec, true
}

// ZAdd returns 1 for a newly inserted member, 0 for a score update.
func (ks *Keyspace) ZAdd(key string, score float64, member string) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := ks.nowFn()
	rec, ok := ks.zsetRecord(key, now)
	if !ok {
		rec = NewZSetRecord()
		ks.zsets[key] = rec
	}
	if rec.Add(member, score) {
		return 1
	}
	return 0
}

// ZRem removes members, deleting the key once it empties. Returns the
// count actually removed.
func (ks *Keyspace) ZRem(key string, members []string) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	rec, ok := ks.zsetRecord(key, ks.nowFn())
	if !ok {
		return 0
	}
	removed := 0
	for _, m := range members {
		if rec.Remove(m) {
			removed++
		}
	}
	if rec.Len() == 0 {
		delete(ks.zsets, key)
		ks.indexClear(key)
	}
	return removed
}

// ZMember is one (score, member) pair, in the order ZRANGE reports.
type ZMember struct {
	Score  float64
	Member string
}

func (ks *Keyspace) ZRange(key string, start, stop int64) []ZMember {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	rec, ok := ks.zsetRecord(key, ks.nowFn())
	if !ok {
		return nil
	}
	raw := rec.RangeByRank(start, stop)
	out := make([]ZMember, len(raw))
	for i, m := range raw {
		out[i] = ZMember{Score: m.score, Member: m.member}
	}
	return out
}

func (ks *Keyspace) ZScore(key, member string) (float64, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	rec, ok := ks.zsetRecord(key, ks.nowFn())
	if !ok {
		return 0, false
	}
	return rec.Score(member)
}

// RestoreZSet installs a sorted-set record exactly as read from an
// RDB snapshot.
func (ks *Keyspace) RestoreZSet(key string, members []ZMember, expireAtMs int64) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	rec := NewZSetRecord()
	rec.ExpireAtMs = expireAtMs
	for _, m := range members {
		rec.Add(m.Member, m.Score)
	}
	ks.zsets[key] = rec
	ks.indexSet(key, expireAtMs)
}

// --- snapshot / enumeration (exchange point with AOF rewrite and RDB save) ---

// SnapshotStrings returns owned copies of every live string record.
func (ks *Keyspace) SnapshotStrings() map[string]StringRecord {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := ks.nowFn()
	out := make(map[string]StringRecord, len(ks.strings))
	for k, rec := range ks.strings {
		if isLiveExpiry(rec.ExpireAtMs, now) {
			continue
		}
		out[k] = StringRecord{Value: append([]byte(nil), rec.Value...), ExpireAtMs: rec.ExpireAtMs}
	}
	return out
}

// SnapshotHash returns owned copies of every live hash record.
func (ks *Keyspace) SnapshotHash() map[string]HashRecord {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := ks.nowFn()
	out := make(map[string]HashRecord, len(ks.hashes))
	for k, rec := range ks.hashes {
		if isLiveExpiry(rec.ExpireAtMs, now) {
			continue
		}
		fields := make(map[string][]byte, len(rec.Fields))
		for f, v := range rec.Fields {
			fields[f] = append([]byte(nil), v...)
		}
		out[k] = HashRecord{Fields: fields, ExpireAtMs: rec.ExpireAtMs}
	}
	return out
}

// ZSetSnapshot is an owned, order-independent copy of a sorted set.
type ZSetSnapshot struct {
	Members    []ZMember
	ExpireAtMs int64
}

// SnapshotZSet returns owned copies of every live sorted-set record.
func (ks *Keyspace) SnapshotZSet() map[string]ZSetSnapshot {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := ks.nowFn()
	out := make(map[string]ZSetSnapshot, len(ks.zsets))
	for k, rec := range ks.zsets {
		if isLiveExpiry(rec.ExpireAtMs, now) {
			continue
		}
		raw := rec.ordered()
		members := make([]ZMember, len(raw))
		for i, m := range raw {
			members[i] = ZMember{Score: m.score, Member: m.member}
		}
		out[k] = ZSetSnapshot{Members: members, ExpireAtMs: rec.ExpireAtMs}
	}
	return out
}

// ListKeys returns the deduplicated sorted union of keys across all
// three typed maps.
func (ks *Keyspace) ListKeys() []string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := ks.nowFn()
	seen := make(map[string]struct{})
	for k, rec := range ks.strings {
		if !isLiveExpiry(rec.ExpireAtMs, now) {
			seen[k] = struct{}{}
		}
	}
	for k, rec := range ks.hashes {
		if !isLiveExpiry(rec.ExpireAtMs, now) {
			seen[k] = struct{}{}
		}
	}
	for k, rec := range ks.zsets {
		if !isLiveExpiry(rec.ExpireAtMs, now) {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FlushAll empties every typed map and the expiration index.
func (ks *Keyspace) FlushAll() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.strings = make(map[string]*StringRecord)
	ks.hashes = make(map[string]*HashRecord)
	ks.zsets = make(map[string]*ZSetRecord)
	ks.expireAt = make(map[string]int64)
	ks.expireIdx = make(map[string]int)
	ks.expireKey = nil
}
