package heap

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Heap inspection
// ---------------------------------------------------------------------------

// GraphNode describes one live object in a heap snapshot.
type GraphNode struct {
	Addr     Addr
	Type     string // dynamic type name
	Storage  string // storage shape name
	Size     int
	Refcount int32  // meaningful under the counting strategies
	Ptrs     []Addr // outgoing strong references, declaration order
}

// Snapshot is a point-in-time copy of the heap's object graph, for
// debugging and tests. It shares no state with the live heap.
type Snapshot struct {
	Strategy StrategyKind
	Nodes    []GraphNode
	Roots    []Addr // tracing root set; empty under the counting strategies
}

// Snapshot captures the current object graph.
func (h *Heap) Snapshot() *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := &Snapshot{Strategy: h.strategy.Kind()}
	h.arena.ForEachLive(func(obj *Object) bool {
		node := GraphNode{
			Addr:     obj.addr,
			Type:     obj.TypeName(),
			Storage:  obj.box.name,
			Size:     obj.SizeBytes(),
			Refcount: obj.header.Refcount(),
		}
		obj.VisitRefs(func(child Addr) bool {
			node.Ptrs = append(node.Ptrs, child)
			return true
		})
		snap.Nodes = append(snap.Nodes, node)
		return true
	})

	if ts, ok := h.strategy.(*tracingStrategy); ok {
		for addr := range ts.roots {
			snap.Roots = append(snap.Roots, addr)
		}
		sort.Slice(snap.Roots, func(i, j int) bool { return snap.Roots[i] < snap.Roots[j] })
	}
	return snap
}

// Node returns the node at the given address, or nil.
func (s *Snapshot) Node(addr Addr) *GraphNode {
	for i := range s.Nodes {
		if s.Nodes[i].Addr == addr {
			return &s.Nodes[i]
		}
	}
	return nil
}

// Render formats the snapshot as a human-readable listing, one object per
// line in address order.
func (s *Snapshot) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "heap snapshot: strategy=%s live=%d\n", s.Strategy, len(s.Nodes))
	if len(s.Roots) > 0 {
		fmt.Fprintf(&b, "roots: %v\n", s.Roots)
	}
	for _, n := range s.Nodes {
		fmt.Fprintf(&b, "  @%d %s", n.Addr, n.Type)
		if n.Storage != n.Type {
			fmt.Fprintf(&b, " (storage %s)", n.Storage)
		}
		fmt.Fprintf(&b, " size=%d", n.Size)
		if s.Strategy != Tracing {
			fmt.Fprintf(&b, " rc=%d", n.Refcount)
		}
		if len(n.Ptrs) > 0 {
			fmt.Fprintf(&b, " -> %v", n.Ptrs)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
