package message

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.lock("msg-1")
			counter++
			km.unlock("msg-1")
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	// 所有持有者釋放後條目被回收
	if len(km.entries) != 0 {
		t.Errorf("entries leaked: %d", len(km.entries))
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	km.lock("a")
	done := make(chan struct{})
	go func() {
		// 不同鍵不被 a 的持有者阻塞
		km.lock("b")
		km.unlock("b")
		close(done)
	}()
	<-done
	km.unlock("a")
}
