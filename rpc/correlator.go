// Request/response correlation for the gateway RPC channel. Grown from the
// simple id->method map used for _sync.ble_query_dev matching.
package rpc

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrDuplicateID = errors.New("rpc: duplicate request id")
	ErrNotFound    = errors.New("rpc: unknown request id")
)

// Pending is an outstanding request waiting for the gateway. Owned by the
// Correlator, removed on matching response or timeout sweep.
type Pending struct {
	ID       int64
	Name     string // params.name expected on the response (read_done, write_ack)
	IssuedAt time.Time
	Deadline time.Time
}

type Correlator struct {
	mu      sync.Mutex
	pending map[int64]*Pending
}

func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[int64]*Pending)}
}

// Register tracks a forwarded request. Ids must be unique among concurrently
// outstanding requests, so an id already in flight is rejected locally.
func (c *Correlator) Register(id int64, name string, timeout time.Duration) (*Pending, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[id]; ok {
		return nil, ErrDuplicateID
	}
	p := &Pending{ID: id, Name: name, IssuedAt: now, Deadline: now.Add(timeout)}
	c.pending[id] = p
	return p, nil
}

// Resolve removes and returns the pending entry for id. Late and duplicate
// responses from the LAN are expected, so ErrNotFound is routine, not fatal.
func (c *Correlator) Resolve(id int64) (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(c.pending, id)
	return p, nil
}

// Sweep removes and returns entries whose deadline passed. The caller surfaces
// each as an advisory timeout to the original sender.
func (c *Correlator) Sweep(now time.Time) []*Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*Pending
	for id, p := range c.pending {
		if !p.Deadline.After(now) {
			expired = append(expired, p)
			delete(c.pending, id)
		}
	}
	return expired
}

func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
