// Package topology holds the immutable cluster-shape types shared by the
// router and the pipeline engine: Node, Shard and ShardMap. A ShardMap is
// a value — updates replace it wholesale, never mutate it in place.
package topology

import (
	"fmt"

	"github.com/imviv3kshukla/hedis/slot"
)

// Role distinguishes a shard's master from its replicas.
type Role int

const (
	Master Role = iota
	Replica
)

func (r Role) String() string {
	if r == Master {
		return "master"
	}
	return "replica"
}

// Node identifies one cluster member. Identity, equality and ordering all
// derive from ID alone — Host/Port/Role are attributes, not identity.
type Node struct {
	ID   string
	Role Role
	Host string
	Port int
}

// Equal reports whether two nodes have the same identity.
func (n Node) Equal(other Node) bool {
	return n.ID == other.ID
}

func (n Node) String() string {
	return fmt.Sprintf("%s(%s:%d,%s)", n.ID, n.Host, n.Port, n.Role)
}

// Shard is one master and its replicas. Invariant: Master.Role == Master
// and every entry in Replicas has Role == Replica.
type Shard struct {
	Master   Node
	Replicas []Node
}

// slotRange is a contiguous run of slots owned by the same Shard, the
// shape a CLUSTER SLOTS reply is naturally built from.
type slotRange struct {
	Start, End uint16 // inclusive
	Shard      *Shard
}

// ShardMap is an immutable total mapping from hash slot to Shard. Gaps
// (a slot no shard claims) are tolerated only as a transient
// reconfiguration state; LookupSlot reports the miss and callers are
// expected to trigger a refresh.
type ShardMap struct {
	slots  [slot.Count]*Shard
	shards []*Shard
}

// NewShardMap builds a ShardMap from a set of slot ranges. Ranges need not
// cover every slot; uncovered slots simply miss on lookup.
func NewShardMap(ranges []SlotAssignment) *ShardMap {
	m := &ShardMap{}
	seen := make(map[string]*Shard)
	for _, a := range ranges {
		sh, ok := seen[a.Shard.Master.ID]
		if !ok {
			shCopy := a.Shard
			sh = &shCopy
			seen[a.Shard.Master.ID] = sh
			m.shards = append(m.shards, sh)
		}
		for s := a.Start; ; s++ {
			if int(s) < len(m.slots) {
				m.slots[s] = sh
			}
			if s == a.End {
				break
			}
		}
	}
	return m
}

// SlotAssignment is the input shape for NewShardMap: one contiguous range
// of slots and the Shard that serves it.
type SlotAssignment struct {
	Start, End uint16
	Shard      Shard
}

// LookupSlot returns the Shard owning s, if any.
func (m *ShardMap) LookupSlot(s slot.Slot) (*Shard, bool) {
	if m == nil || int(s) >= len(m.slots) {
		return nil, false
	}
	sh := m.slots[s]
	return sh, sh != nil
}

// AllNodes returns every master and replica in m, each exactly once.
func (m *ShardMap) AllNodes() []Node {
	if m == nil {
		return nil
	}
	var out []Node
	seen := make(map[string]struct{})
	add := func(n Node) {
		if _, ok := seen[n.ID]; ok {
			return
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	for _, sh := range m.shards {
		add(sh.Master)
		for _, r := range sh.Replicas {
			add(r)
		}
	}
	return out
}

// Masters returns every shard's master node, in shard-registration order.
func (m *ShardMap) Masters() []Node {
	if m == nil {
		return nil
	}
	out := make([]Node, len(m.shards))
	for i, sh := range m.shards {
		out[i] = sh.Master
	}
	return out
}

// NodeWithHostPort finds a node by address. It is a linear scan — callers
// only use it on the ASK path, which is not hot.
func (m *ShardMap) NodeWithHostPort(host string, port int) (Node, bool) {
	if m == nil {
		return Node{}, false
	}
	for _, sh := range m.shards {
		if sh.Master.Host == host && sh.Master.Port == port {
			return sh.Master, true
		}
		for _, r := range sh.Replicas {
			if r.Host == host && r.Port == port {
				return r, true
			}
		}
	}
	return Node{}, false
}
