package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNodeLocks_SerialisesSameNode(t *testing.T) {
	locks := &nodeLocks{}
	counter := 0

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.acquire("node-1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestNodeLocks_DistinctStripesDoNotBlock(t *testing.T) {
	locks := &nodeLocks{}
	a := "node-a"
	b := ""
	for i := 0; b == ""; i++ {
		if id := fmt.Sprintf("node-%d", i); stripe(id) != stripe(a) {
			b = id
		}
	}

	unlockA := locks.acquire(a)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.acquire(b)
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different stripe blocked")
	}
}

func TestNodeLocks_IDsSpreadOverStripes(t *testing.T) {
	used := make(map[uint32]bool)
	for i := range 10_000 {
		s := stripe(fmt.Sprintf("node-%d", i))
		assert.Less(t, s, uint32(lockStripes))
		used[s] = true
	}
	assert.Equal(t, stripe("node-42"), stripe("node-42"))
	assert.Greater(t, len(used), lockStripes/2)
}
