package db

import (
	"sort"

	"flsm"
	"github.com/spaolacci/murmur3"
)

// guardManager owns the per-level sets of guard keys. A key becomes a guard
// at the shallowest level L for which the low numBitsForLevel(L) bits of its
// MurmurHash3 hash are all set; once discovered it is recorded at every
// level from L through numLevels-1, which is what makes a guard "inherited
// by all deeper levels" (spec invariant: guard sets grow monotonically and
// never shrink).
//
// guardManager is not safe for concurrent use; callers hold db.mutex while
// touching it, same as versionSet.
type guardManager struct {
	ucmp ssdb.Comparator

	topBits   int
	decrement int
	seed      uint32

	// levels[l] is the sorted set of guard user keys known at level l,
	// including those inherited from shallower levels.
	levels [numLevels][][]byte
	// known deduplicates proposals across all levels.
	known map[string]int

	// pending holds guards discovered by observe() since the last
	// drainPending call: newly observed guards that haven't yet been
	// folded into a VersionEdit and so would not survive a restart
	// (spec §4.4 Recovery) until one is written.
	pending []intAndUserKey
}

func newGuardManager(ucmp ssdb.Comparator, topBits, decrement int, seed uint32) *guardManager {
	if topBits <= 0 {
		topBits = 10
	}
	if decrement <= 0 {
		decrement = 1
	}
	return &guardManager{
		ucmp:      ucmp,
		topBits:   topBits,
		decrement: decrement,
		seed:      seed,
		known:     make(map[string]int),
	}
}

// numBitsForLevel returns num_bits(L) = max(1, topBits - L*decrement).
func (g *guardManager) numBitsForLevel(level int) uint {
	n := g.topBits - level*g.decrement
	if n < 1 {
		n = 1
	}
	return uint(n)
}

func (g *guardManager) hash(userKey []byte) uint32 {
	h := murmur3.New32WithSeed(g.seed)
	_, _ = h.Write(userKey)
	return h.Sum32()
}

// isGuardAtLevel reports whether userKey's hash has its low numBitsForLevel
// bits all set, i.e. userKey qualifies as a guard at level.
func (g *guardManager) isGuardAtLevel(userKey []byte, level int) bool {
	bits := g.numBitsForLevel(level)
	mask := uint32(1)<<bits - 1
	return g.hash(userKey)&mask == mask
}

// shallowestGuardLevel returns the smallest level at which userKey
// qualifies as a guard, or -1 if it never does (guard density only grows
// with level, so once it stops qualifying at level it won't qualify at any
// shallower level either — but it may still qualify deeper).
func (g *guardManager) shallowestGuardLevel(userKey []byte) int {
	for l := 0; l < numLevels; l++ {
		if g.isGuardAtLevel(userKey, l) {
			return l
		}
	}
	return -1
}

// observe is called once per key as it is inserted into a memtable or
// replayed from the log (the "HandleGuard" step of the write-batch visitor,
// spec's dynamic-dispatch handler: Put, Delete, HandleGuard). It proposes a
// new guard when userKey newly qualifies, recording it at every level from
// the discovering level down through numLevels-1. Returns the discovering
// level and true if this call caused a new guard to be recorded.
func (g *guardManager) observe(userKey []byte) (level int, added bool) {
	if _, ok := g.known[string(userKey)]; ok {
		return 0, false
	}
	l := g.shallowestGuardLevel(userKey)
	if l < 0 {
		return 0, false
	}
	g.addGuard(l, userKey)
	g.pending = append(g.pending, intAndUserKey{l, append([]byte(nil), userKey...)})
	return l, true
}

// drainPending returns and clears the guards observed since the last
// drainPending call, for folding into the VersionEdit the caller is about
// to write (writeLevel0Table, or the edit produced by WAL recovery).
func (g *guardManager) drainPending() []intAndUserKey {
	p := g.pending
	g.pending = nil
	return p
}

// addGuard records userKey as a guard at level and every deeper level. It is
// idempotent and is also the path used to reconstruct guard state from a
// replayed VersionEdit (spec §4.4 Recovery).
func (g *guardManager) addGuard(level int, userKey []byte) {
	if _, ok := g.known[string(userKey)]; !ok {
		g.known[string(userKey)] = level
	} else if g.known[string(userKey)] < level {
		level = g.known[string(userKey)]
	}
	for l := level; l < numLevels; l++ {
		g.insertSorted(l, userKey)
	}
}

func (g *guardManager) insertSorted(level int, userKey []byte) {
	keys := g.levels[level]
	i := sort.Search(len(keys), func(i int) bool {
		return g.ucmp.Compare(keys[i], userKey) >= 0
	})
	if i < len(keys) && g.ucmp.Compare(keys[i], userKey) == 0 {
		return
	}
	keys = append(keys, nil)
	copy(keys[i+1:], keys[i:])
	k := make([]byte, len(userKey))
	copy(k, userKey)
	keys[i] = k
	g.levels[level] = keys
}

// guardsAtLevel returns the sorted guard key set for level. The returned
// slice must not be mutated by the caller.
func (g *guardManager) guardsAtLevel(level int) [][]byte {
	return g.levels[level]
}

// partitionOf returns the index into guardsAtLevel(level) of the largest
// guard <= userKey, or -1 if userKey falls below every guard on that level
// (the sentinel partition).
func (g *guardManager) partitionOf(level int, userKey []byte) int {
	keys := g.levels[level]
	i := sort.Search(len(keys), func(i int) bool {
		return g.ucmp.Compare(keys[i], userKey) > 0
	})
	return i - 1
}

// boundsOf returns the [lo, hi) user-key range covered by the partition
// userKey falls into at level: lo is the partition's guard (or nil for the
// sentinel partition), hi is the next guard (or nil if there is none, i.e.
// the partition extends to +infinity).
func (g *guardManager) boundsOf(level int, userKey []byte) (lo, hi []byte) {
	idx := g.partitionOf(level, userKey)
	keys := g.levels[level]
	if idx >= 0 {
		lo = keys[idx]
	}
	if idx+1 < len(keys) {
		hi = keys[idx+1]
	}
	return
}
