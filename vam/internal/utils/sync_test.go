package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockSerializes(t *testing.T) {
	var lock Lock
	require.True(t, lock.Synchronized())

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				lock.Locked(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 8000, counter)
}

func TestUnsynchronizedLockIsReentrant(t *testing.T) {
	var lock Lock
	lock.Synchronize(false)
	require.False(t, lock.Synchronized())

	lock.Lock()
	lock.Lock()
	lock.RLock()
	lock.RUnlock()
	lock.Unlock()
	lock.Unlock()
}
