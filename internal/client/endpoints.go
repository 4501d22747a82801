// internal/client/endpoints.go
package client

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"bulkorder/internal/pkg/config"
)

// Endpoint 是一个候选服务入口。
type Endpoint struct {
	Name    string
	Address string
}

// EndpointSelector 决定每次调用打到哪个入口。
// Next 返回当前入口；Failover 在传输层故障后被调用，
// 由实现决定是否切换。实现必须是并发安全的。
type EndpointSelector interface {
	Next() Endpoint
	Failover()
}

// NewSelector 按配置的策略名构建选择器。
func NewSelector(cfg config.ClientConfig) (EndpointSelector, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("no endpoints configured")
	}
	endpoints := make([]Endpoint, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		endpoints = append(endpoints, Endpoint{Name: e.Name, Address: e.Address})
	}

	switch cfg.Selection {
	case "", "sticky":
		return NewStickySelector(endpoints), nil
	case "sticky-by-name":
		return NewStickyByNameSelector(endpoints, cfg.Preferred)
	case "random-sticky":
		return NewRandomStickySelector(endpoints), nil
	case "random-switching":
		return NewRandomSelector(endpoints), nil
	default:
		return nil, errors.Errorf("unknown endpoint selection strategy %q", cfg.Selection)
	}
}

// StickySelector 固定使用一个入口，只在故障转移时换到下一个，
// 之后继续粘住新入口。
type StickySelector struct {
	mu        sync.Mutex
	endpoints []Endpoint
	idx       int
}

func NewStickySelector(endpoints []Endpoint) *StickySelector {
	return &StickySelector{endpoints: endpoints}
}

// NewRandomStickySelector 和 StickySelector 一样粘住入口，
// 但起点随机，用于把多个客户端摊开到不同入口上。
func NewRandomStickySelector(endpoints []Endpoint) *StickySelector {
	return &StickySelector{endpoints: endpoints, idx: rand.Intn(len(endpoints))}
}

// NewStickyByNameSelector 粘住指定名字的入口，故障转移行为同 StickySelector。
func NewStickyByNameSelector(endpoints []Endpoint, name string) (*StickySelector, error) {
	for i, e := range endpoints {
		if e.Name == name {
			return &StickySelector{endpoints: endpoints, idx: i}, nil
		}
	}
	return nil, errors.Errorf("no endpoint named %q", name)
}

func (s *StickySelector) Next() Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoints[s.idx]
}

func (s *StickySelector) Failover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.endpoints) > 1 {
		s.idx = (s.idx + 1) % len(s.endpoints)
	}
}

// RandomSelector 每次调用随机挑一个入口，故障转移不需要额外动作。
type RandomSelector struct {
	mu        sync.Mutex
	endpoints []Endpoint
}

func NewRandomSelector(endpoints []Endpoint) *RandomSelector {
	return &RandomSelector{endpoints: endpoints}
}

func (s *RandomSelector) Next() Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoints[rand.Intn(len(s.endpoints))]
}

func (s *RandomSelector) Failover() {}
