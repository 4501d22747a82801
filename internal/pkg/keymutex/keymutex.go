// internal/pkg/keymutex/keymutex.go
package keymutex

import "sync"

// KeyMutex 提供按 key 的读写互斥：同一个 key 上的写操作彼此串行，
// 读操作可以并发但与写操作串行。这是实体级单写者约束在进程内的实现
// （每个订单、每个资产各是一个 key）。跨进程部署时再叠加 zookeeper 锁。
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func New() *KeyMutex {
	return &KeyMutex{locks: make(map[string]*sync.RWMutex)}
}

func (k *KeyMutex) get(key string) *sync.RWMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		k.locks[key] = l
	}
	return l
}

// Lock 获取 key 上的写锁，返回解锁函数。
func (k *KeyMutex) Lock(key string) func() {
	l := k.get(key)
	l.Lock()
	return l.Unlock
}

// RLock 获取 key 上的读锁，返回解锁函数。
func (k *KeyMutex) RLock(key string) func() {
	l := k.get(key)
	l.RLock()
	return l.RUnlock
}
