// Package tt is a shared transposition table for game-tree search.
//
// The table is lock-free. Each way holds two words, the position hash XORed
// with the packed entry, and the packed entry itself. A probe only accepts a
// way whose words XOR back to the probed hash, so a write interleaved with a
// read shows up as a miss rather than as a half-written entry.
package tt

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/pbnjay/memory"
	"github.com/rs/zerolog/log"

	"github.com/domino14/kibitz/game"
)

type Bound uint8

const (
	// NoBound marks an empty way.
	NoBound Bound = iota
	Exact
	LowerBound
	UpperBound
)

func (b Bound) String() string {
	switch b {
	case Exact:
		return "exact"
	case LowerBound:
		return "lower"
	case UpperBound:
		return "upper"
	}
	return "none"
}

// Policy decides which way of a full bucket a store overwrites, and whether
// it overwrites at all.
type Policy int32

const (
	// AlwaysReplace overwrites the matching way, or a hash-chosen way of a
	// full bucket.
	AlwaysReplace Policy = iota
	// DepthPreferred never lets a shallower store displace a deeper entry
	// written in the same search. Entries from an earlier search (an older
	// age, see NewSearch) are replaceable by any store.
	DepthPreferred
	// AgeBased evicts the oldest way of a full bucket, shallowest first
	// among equally old ones.
	AgeBased
)

var ErrUnknownPolicy = errors.New("unknown replacement policy")

func (p Policy) String() string {
	switch p {
	case AlwaysReplace:
		return "always-replace"
	case DepthPreferred:
		return "depth-preferred"
	case AgeBased:
		return "age-based"
	}
	return fmt.Sprintf("policy(%d)", int32(p))
}

func ParsePolicy(s string) (Policy, error) {
	for _, p := range []Policy{AlwaysReplace, DepthPreferred, AgeBased} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

const (
	Ways = 4
	// wayBytes is the memory held by one way.
	wayBytes = 16

	MinEntries = 1 << 10
	maxDepth   = math.MaxUint8
	ageMask    = 1<<6 - 1
)

// Entry is what the search stores about a position.
type Entry struct {
	Hash  uint64
	Depth int
	Score int
	Bound Bound
	Move  game.Move
	Age   uint8
}

// Usable reports whether e settles a node searched to depth with the window
// (alpha, beta). Score adjustments for mates must already have been applied.
func (e Entry) Usable(depth, alpha, beta int) bool {
	if e.Bound == NoBound || e.Depth < depth {
		return false
	}
	switch e.Bound {
	case Exact:
		return true
	case LowerBound:
		return e.Score >= beta
	case UpperBound:
		return e.Score <= alpha
	}
	return false
}

// data layout, low bits first: move(32) score(16) depth(8) bound(2) age(6).
func pack(e Entry, age uint8) uint64 {
	depth := e.Depth
	if depth < 0 {
		depth = 0
	} else if depth > maxDepth {
		depth = maxDepth
	}
	return uint64(e.Move) |
		uint64(uint16(int16(e.Score)))<<32 |
		uint64(depth)<<48 |
		uint64(e.Bound&3)<<56 |
		uint64(age&ageMask)<<58
}

func unpack(hash, data uint64) Entry {
	return Entry{
		Hash:  hash,
		Move:  game.Move(uint32(data)),
		Score: int(int16(uint16(data >> 32))),
		Depth: int(uint8(data >> 48)),
		Bound: Bound(data >> 56 & 3),
		Age:   uint8(data >> 58 & ageMask),
	}
}

func dataBound(data uint64) Bound { return Bound(data >> 56 & 3) }
func dataDepth(data uint64) int   { return int(uint8(data >> 48)) }
func dataAge(data uint64) uint8   { return uint8(data >> 58 & ageMask) }
func dataMove(data uint64) game.Move {
	return game.Move(uint32(data))
}

type slot struct {
	key  atomic.Uint64
	data atomic.Uint64
}

func (s *slot) load() (hash, data uint64) {
	k := s.key.Load()
	d := s.data.Load()
	return k ^ d, d
}

func (s *slot) set(hash, data uint64) {
	s.data.Store(data)
	s.key.Store(hash ^ data)
}

// TableStats is a snapshot of the table's counters.
type TableStats struct {
	Created      uint64 `yaml:"created"`
	Lookups      uint64 `yaml:"lookups"`
	Hits         uint64 `yaml:"hits"`
	T2Collisions uint64 `yaml:"t2-collisions"`
	Rejected     uint64 `yaml:"rejected"`
	Used         uint64 `yaml:"used"`
	Capacity     uint64 `yaml:"capacity"`
}

type TranspositionTable struct {
	slots      []slot
	bucketMask uint64
	bucketLog2 int

	policy atomic.Int32
	age    atomic.Uint32

	created atomic.Uint64
	lookups atomic.Uint64
	hits    atomic.Uint64
	// "type 2" collisions: the bucket holds entries, none of them for the
	// probed hash.
	t2collisions atomic.Uint64
	rejected     atomic.Uint64
	used         atomic.Uint64
}

// NewTranspositionTable allocates room for at least MinEntries and at most
// entries entries, rounded down to a power of two.
func NewTranspositionTable(entries int, policy Policy) *TranspositionTable {
	t := &TranspositionTable{}
	t.policy.Store(int32(policy))
	t.allocate(entries)
	return t
}

// NewTranspositionTableForMemory sizes the table as a fraction of the
// machine's physical memory.
func NewTranspositionTableForMemory(fractionOfMemory float64, policy Policy) *TranspositionTable {
	return NewTranspositionTable(EntriesForMemory(fractionOfMemory), policy)
}

func EntriesForMemory(fractionOfMemory float64) int {
	totalMem := memory.TotalMemory()
	desired := fractionOfMemory * float64(totalMem) / wayBytes
	if desired > math.MaxInt32 {
		desired = math.MaxInt32
	}
	log.Debug().Uint64("total-system-memory-bytes", totalMem).
		Float64("desired-num-elems", desired).Msg("tt-sizing-by-memory")
	return int(desired)
}

func (t *TranspositionTable) allocate(entries int) {
	if entries < MinEntries {
		entries = MinEntries
	}
	buckets := entries / Ways
	t.bucketLog2 = bits.Len(uint(buckets)) - 1
	numBuckets := 1 << t.bucketLog2
	t.bucketMask = uint64(numBuckets - 1)
	t.slots = make([]slot, numBuckets*Ways)
	t.resetCounters()

	log.Info().Int("num-elems", len(t.slots)).
		Int("estimated-total-memory-bytes", len(t.slots)*wayBytes).
		Str("policy", t.Policy().String()).
		Msg("transposition-table-size")
}

func (t *TranspositionTable) resetCounters() {
	t.created.Store(0)
	t.lookups.Store(0)
	t.hits.Store(0)
	t.t2collisions.Store(0)
	t.rejected.Store(0)
	t.used.Store(0)
}

// Resize reallocates the table, dropping its contents. It must not run
// concurrently with probes or stores.
func (t *TranspositionTable) Resize(entries int) {
	t.allocate(entries)
}

// Clear empties every way. It must not run concurrently with probes or
// stores.
func (t *TranspositionTable) Clear() {
	for i := range t.slots {
		t.slots[i].key.Store(0)
		t.slots[i].data.Store(0)
	}
	t.resetCounters()
	t.age.Store(0)
}

// Size is the number of ways in use.
func (t *TranspositionTable) Size() int {
	return int(t.used.Load())
}

func (t *TranspositionTable) Capacity() int {
	return len(t.slots)
}

func (t *TranspositionTable) Policy() Policy {
	return Policy(t.policy.Load())
}

func (t *TranspositionTable) SetPolicy(p Policy) {
	t.policy.Store(int32(p))
}

// NewSearch advances the table's age. Entries written under older ages are
// the first to go under DepthPreferred and AgeBased.
func (t *TranspositionTable) NewSearch() {
	t.age.Store((t.age.Load() + 1) & ageMask)
}

func (t *TranspositionTable) Age() uint8 {
	return uint8(t.age.Load())
}

func (t *TranspositionTable) bucket(hash uint64) []slot {
	idx := (hash & t.bucketMask) * Ways
	return t.slots[idx : idx+Ways]
}

func (t *TranspositionTable) Probe(hash uint64) (Entry, bool) {
	t.lookups.Add(1)
	occupied := false
	b := t.bucket(hash)
	for i := range b {
		h, d := b[i].load()
		if dataBound(d) == NoBound {
			continue
		}
		if h == hash {
			t.hits.Add(1)
			return unpack(hash, d), true
		}
		occupied = true
	}
	if occupied {
		t.t2collisions.Add(1)
	}
	return Entry{}, false
}

// Store writes e under the table's current age, subject to the replacement
// policy. It reports whether the entry was written.
func (t *TranspositionTable) Store(e Entry) bool {
	if e.Bound == NoBound {
		return false
	}
	age := t.Age()
	return t.storeData(e.Hash, pack(e, age), age)
}

func (t *TranspositionTable) storeData(hash, data uint64, age uint8) bool {
	b := t.bucket(hash)
	same, empty := -1, -1
	var cur [Ways]uint64
	for i := range b {
		h, d := b[i].load()
		cur[i] = d
		if dataBound(d) == NoBound {
			if empty == -1 {
				empty = i
			}
			continue
		}
		if h == hash && same == -1 {
			same = i
		}
	}

	if same >= 0 {
		old := cur[same]
		if t.Policy() == DepthPreferred && dataAge(old) == age && dataDepth(data) < dataDepth(old) {
			t.rejected.Add(1)
			return false
		}
		if dataMove(data) == game.NoMove && dataMove(old) != game.NoMove {
			// keep the best move we already knew about
			data |= uint64(dataMove(old))
		}
		b[same].set(hash, data)
		t.created.Add(1)
		return true
	}

	if empty >= 0 {
		if b[empty].data.CompareAndSwap(0, data) {
			b[empty].key.Store(hash ^ data)
			t.used.Add(1)
		} else {
			b[empty].set(hash, data)
		}
		t.created.Add(1)
		return true
	}

	victim := t.victim(hash, data, cur, age)
	if victim < 0 {
		t.rejected.Add(1)
		return false
	}
	b[victim].set(hash, data)
	t.created.Add(1)
	return true
}

func ageDistance(now, then uint8) int {
	return int((now - then) & ageMask)
}

// victim picks the way of a full bucket to overwrite, or -1 to keep them all.
func (t *TranspositionTable) victim(hash, data uint64, cur [Ways]uint64, age uint8) int {
	switch t.Policy() {
	case AlwaysReplace:
		return int(hash >> 62)
	case DepthPreferred:
		best := -1
		for i, d := range cur {
			if best == -1 || worseForDepth(d, cur[best], age) {
				best = i
			}
		}
		old := cur[best]
		if dataAge(old) == age && dataDepth(old) > dataDepth(data) {
			return -1
		}
		return best
	case AgeBased:
		best := 0
		for i := 1; i < Ways; i++ {
			di, db := ageDistance(age, dataAge(cur[i])), ageDistance(age, dataAge(cur[best]))
			if di > db || (di == db && dataDepth(cur[i]) < dataDepth(cur[best])) {
				best = i
			}
		}
		return best
	}
	return 0
}

// worseForDepth orders ways for DepthPreferred eviction: stale entries
// first, then shallow ones.
func worseForDepth(a, b uint64, age uint8) bool {
	aStale, bStale := dataAge(a) != age, dataAge(b) != age
	if aStale != bStale {
		return aStale
	}
	return dataDepth(a) < dataDepth(b)
}

func (t *TranspositionTable) Stats() TableStats {
	return TableStats{
		Created:      t.created.Load(),
		Lookups:      t.lookups.Load(),
		Hits:         t.hits.Load(),
		T2Collisions: t.t2collisions.Load(),
		Rejected:     t.rejected.Load(),
		Used:         t.used.Load(),
		Capacity:     uint64(len(t.slots)),
	}
}
