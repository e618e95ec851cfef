package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/signage-server/signage-gateway-pro/internal/verifier"
	"github.com/signage-server/signage-gateway-pro/pkg/protocol"
)

// Statistics 网关运行统计快照
type Statistics struct {
	Running               bool              `json:"running"`
	StartedAt             time.Time         `json:"startedAt"`
	UptimeSeconds         float64           `json:"uptimeSeconds"`
	ActiveConnections     int               `json:"activeConnections"`
	TotalConnections      uint64            `json:"totalConnections"`
	ConnectionsLastMinute int               `json:"connectionsLastMinute"`
	OverCapacityDropped   uint64            `json:"overCapacityDropped"`
	Admission             verifier.Snapshot `json:"admission"`
	MessagesByType        map[string]uint64 `json:"messagesByType"`
}

// statCounters 内部计数器，全部并发安全
type statCounters struct {
	total       atomic.Uint64
	overCap     atomic.Uint64
	byType      [protocol.MessageTypeFerry + 1]atomic.Uint64
	recentMu    sync.Mutex
	recentConns []time.Time
}

func (c *statCounters) connectionAccepted(now time.Time) {
	c.total.Add(1)

	c.recentMu.Lock()
	c.recentConns = append(c.recentConns, now)
	c.pruneLocked(now)
	c.recentMu.Unlock()
}

func (c *statCounters) messageProcessed(t protocol.MessageType) {
	if int(t) < len(c.byType) {
		c.byType[t].Add(1)
	}
}

// lastMinute 返回最近 60 秒内接受的连接数
func (c *statCounters) lastMinute(now time.Time) int {
	c.recentMu.Lock()
	defer c.recentMu.Unlock()
	c.pruneLocked(now)
	return len(c.recentConns)
}

func (c *statCounters) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for ; i < len(c.recentConns); i++ {
		if c.recentConns[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		c.recentConns = append(c.recentConns[:0], c.recentConns[i:]...)
	}
}

func (c *statCounters) typeSnapshot() map[string]uint64 {
	out := make(map[string]uint64)
	for i := range c.byType {
		if n := c.byType[i].Load(); n > 0 {
			out[protocol.MessageType(i).String()] = n
		}
	}
	return out
}
