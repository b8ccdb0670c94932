package services

import (
	"hash/fnv"
	"sync"
)

// lockStripes is the number of mutexes node ids hash onto.
const lockStripes = 256

// nodeLocks serialises writes per node. Every step that writes to a node
// holds its lock for the read-modify-write. Node ids share a fixed set of
// stripes, so memory stays bounded however many nodes a city has; callers
// must never hold two node locks at once.
type nodeLocks struct {
	stripes [lockStripes]sync.Mutex
}

// acquire locks the node and returns the unlock function.
func (l *nodeLocks) acquire(nodeID string) func() {
	mu := &l.stripes[stripe(nodeID)]
	mu.Lock()
	return mu.Unlock
}

func stripe(nodeID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(nodeID))
	return h.Sum32() % lockStripes
}
