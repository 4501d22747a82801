package port

import "context"

// EntityLocker 是跨进程互斥的出站端口。进程内的串行化由
// keymutex 保证；多副本部署时再叠加一层分布式锁，
// 保证同一订单的 saga 不会在两个副本上同时跑。
type EntityLocker interface {
	// Lock 阻塞直到拿到 key 上的锁，返回释放函数。
	Lock(ctx context.Context, key string) (release func(), err error)
}
