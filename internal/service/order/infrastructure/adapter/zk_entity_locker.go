package adapter

import (
	"context"

	"bulkorder/internal/pkg/zookeeper"
)

// ZkEntityLocker 用 Zookeeper 临时顺序节点实现 port.EntityLocker。
type ZkEntityLocker struct {
	conn *zookeeper.Conn
	kind string
}

func NewZkEntityLocker(conn *zookeeper.Conn, entityKind string) *ZkEntityLocker {
	return &ZkEntityLocker{conn: conn, kind: entityKind}
}

func (l *ZkEntityLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := zookeeper.NewEntityLock(l.conn, l.kind, key)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	return func() { _ = lock.Unlock() }, nil
}
