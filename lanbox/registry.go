package lanbox

import (
	"sync"
)

// Edge: subscriber gateway pid receives forwarded events when rid on did changes.
type Edge struct {
	Pid string
	Did string
	Rid string
}

// Registry tracks LAN subscription edges and the interest allow-list. All state
// is in memory only - after restart remote gateways are expected to re-subscribe.
type Registry struct {
	mu       sync.RWMutex
	edges    map[Edge]struct{}
	interest map[string]struct{}
	onChange func()
}

func NewRegistry() *Registry {
	return &Registry{
		edges:    make(map[Edge]struct{}),
		interest: make(map[string]struct{}),
	}
}

// OnChange sets the hook called after every state-changing event. Must be set
// before the registry is shared between goroutines.
func (r *Registry) OnChange(fn func()) {
	r.onChange = fn
}

func (r *Registry) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}

// SyncSubscribe adds an edge per (did, rid) pair. Duplicate adds are no-ops, so
// redelivered events from the LAN cannot double-apply.
func (r *Registry) SyncSubscribe(pid string, items []SubscribeItem) {
	r.mu.Lock()
	for _, item := range items {
		for _, rid := range item.Rids {
			r.edges[Edge{Pid: pid, Did: item.Did, Rid: rid}] = struct{}{}
		}
	}
	r.mu.Unlock()
	r.notify()
}

// DelSubscribe removes the listed edges. Removing an absent edge is a no-op.
func (r *Registry) DelSubscribe(pid, did string, rids []string) {
	r.mu.Lock()
	for _, rid := range rids {
		delete(r.edges, Edge{Pid: pid, Did: did, Rid: rid})
	}
	r.mu.Unlock()
	r.notify()
}

// ResUnsubscribe models a remote-initiated teardown: the target gateway revoked
// all subscriptions to the listed dids, regardless of subscriber.
func (r *Registry) ResUnsubscribe(reslist []string) {
	targets := make(map[string]struct{}, len(reslist))
	for _, did := range reslist {
		targets[did] = struct{}{}
	}

	r.mu.Lock()
	for edge := range r.edges {
		if _, ok := targets[edge.Did]; ok {
			delete(r.edges, edge)
		}
	}
	r.mu.Unlock()
	r.notify()
}

// HubInterest replaces the interest set wholesale. Unlike subscribe edges the
// hublist is a snapshot, not a delta.
func (r *Registry) HubInterest(hublist []string) {
	interest := make(map[string]struct{}, len(hublist))
	for _, did := range hublist {
		interest[did] = struct{}{}
	}

	r.mu.Lock()
	r.interest = interest
	r.mu.Unlock()
	r.notify()
}

// Allowed reports whether cross-gateway control of did is permitted.
func (r *Registry) Allowed(did string) bool {
	r.mu.RLock()
	_, ok := r.interest[did]
	r.mu.RUnlock()
	return ok
}

func (r *Registry) Subscribed(pid, did, rid string) bool {
	r.mu.RLock()
	_, ok := r.edges[Edge{Pid: pid, Did: did, Rid: rid}]
	r.mu.RUnlock()
	return ok
}

func (r *Registry) Edges() []Edge {
	r.mu.RLock()
	edges := make([]Edge, 0, len(r.edges))
	for edge := range r.edges {
		edges = append(edges, edge)
	}
	r.mu.RUnlock()
	return edges
}

func (r *Registry) Interest() []string {
	r.mu.RLock()
	hubs := make([]string, 0, len(r.interest))
	for did := range r.interest {
		hubs = append(hubs, did)
	}
	r.mu.RUnlock()
	return hubs
}
