// Package topology implements the partition map (C3) and topology manager
// (C4): CRC32-based key routing, epoch+revision-ordered map updates, and
// bootstrap/steady-state cluster map maintenance.
//
// Grounded on the teacher's (twmb/kafka-go) topic-partition map in
// consumer.go/metadata.go, generalized from Kafka's (topic,partition)->
// leader mapping to Couchbase's single flat partition (vbucket) table, and
// on other_examples/b4e3761a_rodaine-franz-go__pkg-kgo-metadata.go for the
// steady-state poll-loop shape.
package topology

import (
	"hash/crc32"
	"sync"

	"github.com/klauspost/cpuid"
)

// crc32Table prefers the hardware-accelerated Castagnoli table when the
// CPU supports it (SSE4.2 CRC32 instructions), falling back to a
// software-computed table otherwise. This is the teacher's own
// klauspost/cpuid dependency, re-homed from general CPU-feature gating to
// partition-hash table selection (DESIGN.md).
var crc32Table = func() *crc32.Table {
	if cpuid.CPU.SSE42() {
		return crc32.MakeTable(crc32.Castagnoli)
	}
	return crc32.MakeTable(crc32.IEEE)
}()

// HashKey returns the CRC32 hash this client uses to route a key to a
// partition (§3 "Partition map").
func HashKey(key []byte) uint32 {
	return crc32.Checksum(key, crc32Table)
}

// PartitionEntry is one row of the partition table: the active node index
// and zero or more replica node indices, each indexing into the
// topology's node list (§3). An ActiveNodeIndex of -1 means "no active
// yet" (§3).
type PartitionEntry struct {
	ActiveNodeIndex   int32
	ReplicaNodeIndices []int32
}

// NoActiveNode is the sentinel used when a partition has no active node.
const NoActiveNode int32 = -1

// MapID orders partition maps: (epoch, revision), compared
// lexicographically (§3 "Partition map").
type MapID struct {
	Epoch    int64
	Revision int64
}

// Less reports whether id is strictly less than other, lexicographically
// on (epoch, revision).
func (id MapID) Less(other MapID) bool {
	if id.Epoch != other.Epoch {
		return id.Epoch < other.Epoch
	}
	return id.Revision < other.Revision
}

// PartitionMap is one bucket's partition table plus its ordering id.
type PartitionMap struct {
	ID         MapID
	Partitions []PartitionEntry
}

// PartitionCount returns the number of partitions in the map.
func (m *PartitionMap) PartitionCount() int { return len(m.Partitions) }

// ErrNoActivePartition is returned by Locate when a partition has no
// active node (§3, §4.3: "the dispatcher turns into a kv_not_my_vbucket
// retry reason").
type ErrNoActivePartition struct {
	PartitionID uint32
}

func (e *ErrNoActivePartition) Error() string {
	return "topology: partition has no active node"
}

// Location is the result of locating a key: which partition it hashes to,
// and the current active/replica node indices for that partition.
type Location struct {
	PartitionID        uint32
	NodeIndex          int32
	ReplicaNodeIndices []int32
}

// Locator holds the currently accepted partition map for one bucket and
// serializes updates/reads behind a RWMutex (§5 "single writer ... many
// readers").
type Locator struct {
	mu  sync.RWMutex
	cur *PartitionMap
}

// NewLocator returns an empty locator; Apply must be called with a first
// map before Locate will succeed.
func NewLocator() *Locator { return &Locator{} }

// Current returns the currently accepted map, or nil if none has been
// applied yet.
func (l *Locator) Current() *PartitionMap {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// Apply replaces the current map iff newMap's id is strictly greater than
// the held one; otherwise the update is silently ignored (§4.3 "apply",
// §8 invariant 1). Returns whether the map was accepted.
func (l *Locator) Apply(newMap *PartitionMap) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur != nil && !l.cur.ID.Less(newMap.ID) {
		return false
	}
	l.cur = newMap
	return true
}

// Locate computes CRC32(key) mod partition_count and returns the active
// and replica node indices for that partition (§4.3 "locate"). If the
// partition has no active node, it returns ErrNoActivePartition; the
// dispatcher maps this to retry.ReasonNotMyVBucket with a short backoff.
func (l *Locator) Locate(key []byte) (Location, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.cur == nil || len(l.cur.Partitions) == 0 {
		return Location{}, &ErrNoActivePartition{}
	}

	partitionID := HashKey(key) % uint32(len(l.cur.Partitions))
	entry := l.cur.Partitions[partitionID]
	loc := Location{
		PartitionID:        partitionID,
		NodeIndex:          entry.ActiveNodeIndex,
		ReplicaNodeIndices: entry.ReplicaNodeIndices,
	}
	if entry.ActiveNodeIndex == NoActiveNode {
		return loc, &ErrNoActivePartition{PartitionID: partitionID}
	}
	return loc, nil
}
