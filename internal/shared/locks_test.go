package shared

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	const workers = 50

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("user:u1")
			defer km.Unlock("user:u1")
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, workers, counter)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("a")

	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()
	<-done

	km.Unlock("a")
}

func TestKeyedMutexDropsIdleEntries(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("a")
	km.Unlock("a")
	require.Empty(t, km.locks)
}

func TestEntityLockKey(t *testing.T) {
	require.Equal(t, "authz:user:u1", EntityLockKey("user", "u1"))
}
