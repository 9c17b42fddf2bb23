package tools

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexTryLock(t *testing.T) {
	km := NewKeyedMutex[int64]()

	assert.True(t, km.TryLock(1))
	assert.False(t, km.TryLock(1))
	assert.True(t, km.TryLock(2), "other keys are independent")

	km.Unlock(1)
	assert.True(t, km.TryLock(1))
	km.Unlock(1)
	km.Unlock(2)
	assert.Empty(t, km.held)
}

func TestKeyedMutexOneHolderPerKey(t *testing.T) {
	km := NewKeyedMutex[string]()
	var won int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if km.TryLock("campaign") {
				atomic.AddInt32(&won, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), won)
	km.Unlock("campaign")
	assert.Empty(t, km.held)
}

func TestUnlockOfUnlockedPanics(t *testing.T) {
	km := NewKeyedMutex[int]()
	assert.Panics(t, func() { km.Unlock(7) })
}
