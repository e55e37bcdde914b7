package ordering

import (
	"encoding/binary"

	"github.com/cespare/xxhash"

	"github.com/domino14/kibitz/game"
)

// ScoreCache is a direct-mapped memo of static move scores, keyed by
// (position, move). A colliding Put overwrites, so it never grows.
type ScoreCache struct {
	keys   []uint64
	vals   []int32
	mask   uint64
	hits   uint64
	misses uint64
	buf    [12]byte
}

// NewScoreCache makes a cache with capacity slots, which must be a power of
// two.
func NewScoreCache(capacity int) *ScoreCache {
	return &ScoreCache{
		keys: make([]uint64, capacity),
		vals: make([]int32, capacity),
		mask: uint64(capacity - 1),
	}
}

func (c *ScoreCache) key(hash uint64, m game.Move) uint64 {
	binary.LittleEndian.PutUint64(c.buf[:8], hash)
	binary.LittleEndian.PutUint32(c.buf[8:], uint32(m))
	k := xxhash.Sum64(c.buf[:])
	if k == 0 {
		// 0 marks an empty slot
		k = 1
	}
	return k
}

func (c *ScoreCache) Get(hash uint64, m game.Move) (int, bool) {
	k := c.key(hash, m)
	i := k & c.mask
	if c.keys[i] == k {
		c.hits++
		return int(c.vals[i]), true
	}
	c.misses++
	return 0, false
}

func (c *ScoreCache) Put(hash uint64, m game.Move, score int) {
	k := c.key(hash, m)
	i := k & c.mask
	c.keys[i] = k
	c.vals[i] = int32(score)
}

// Len counts occupied slots.
func (c *ScoreCache) Len() int {
	n := 0
	for _, k := range c.keys {
		if k != 0 {
			n++
		}
	}
	return n
}

func (c *ScoreCache) Capacity() int {
	return len(c.keys)
}

func (c *ScoreCache) Clear() {
	clear(c.keys)
	clear(c.vals)
	c.hits, c.misses = 0, 0
}

func (c *ScoreCache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}
