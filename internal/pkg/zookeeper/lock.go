// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/bulkorder_locks"

// Conn 是 ZooKeeper 连接的薄封装。
type Conn struct {
	*zk.Conn
}

// Connect 建立到 ZooKeeper 集群的连接。
func Connect(servers []string) (*Conn, error) {
	conn, _, err := zk.Connect(servers, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	return &Conn{Conn: conn}, nil
}

// EntityLock 是一个按实体 key（订单 ID / 资产名）划分的分布式锁。
// 同一实体的写操作跨进程串行化：多实例部署时，它把进程内的
// keymutex 单写者约束扩展到整个集群。
type EntityLock struct {
	conn     *Conn
	path     string
	lockNode string
}

// NewEntityLock 为给定实体创建一个锁实例。entityKind 是 "order" 或
// "asset"，entityKey 是具体的 key。
func NewEntityLock(conn *Conn, entityKind, entityKey string) (*EntityLock, error) {
	if err := ensurePath(conn, lockRoot); err != nil {
		return nil, err
	}
	kindPath := lockRoot + "/" + entityKind
	if err := ensurePath(conn, kindPath); err != nil {
		return nil, err
	}
	lockPath := kindPath + "/" + entityKey
	if err := ensurePath(conn, lockPath); err != nil {
		return nil, err
	}
	return &EntityLock{conn: conn, path: lockPath}, nil
}

func ensurePath(conn *Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return fmt.Errorf("failed to check lock path %s: %w", path, err)
	}
	if exists {
		return nil
	}
	_, err = conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("failed to create lock path %s: %w", path, err)
	}
	return nil
}

// Lock 获取锁，获取不到则阻塞等待，最长等待 30 秒。
// 实现是经典的临时顺序节点方案：只 watch 前一个节点，避免惊群。
func (l *EntityLock) Lock() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children)

		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			return nil
		}

		// 找到排在自己前面的节点
		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			return errors.New("cannot find own node among children")
		}
		prevNodePath := l.path + "/" + children[prevNodeIndex]

		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			// 前一个节点在 watch 建立前刚好被删除，重新竞争
			continue
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(30 * time.Second):
			_ = l.Unlock()
			return errors.New("timeout waiting for lock")
		}
	}
}

// Unlock 释放锁。
func (l *EntityLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}
