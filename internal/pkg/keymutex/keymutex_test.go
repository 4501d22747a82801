package keymutex

import (
	"sync"
	"testing"
)

func TestLockSerializesWritersOnSameKey(t *testing.T) {
	km := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("asset-widget")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("expected 100 increments, got %d", counter)
	}
}

func TestDifferentKeysDoNotBlockEachOther(t *testing.T) {
	km := New()

	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	default:
		// 给另一个 goroutine 一点运行机会
		<-done
	}
}

func TestReadersShareKey(t *testing.T) {
	km := New()

	unlock1 := km.RLock("a")
	unlock2 := km.RLock("a")
	unlock1()
	unlock2()
}
