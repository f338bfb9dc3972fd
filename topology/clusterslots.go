package topology

import (
	"fmt"

	"github.com/imviv3kshukla/hedis/resp"
)

// ParseClusterSlots builds a ShardMap from a CLUSTER SLOTS reply: an array
// of [start, end, master-triple, replica-triple, ...] entries, each triple
// itself [ip, port, node-id, ...metadata]. Unknown trailing triple fields
// (link-id maps on newer servers) are ignored.
func ParseClusterSlots(reply resp.Reply) (*ShardMap, error) {
	if reply.Type != resp.TypeArray {
		return nil, fmt.Errorf("topology: CLUSTER SLOTS reply is not an array (%s)", reply)
	}

	var ranges []SlotAssignment
	for _, entry := range reply.Array {
		if entry.Type != resp.TypeArray || len(entry.Array) < 3 {
			return nil, fmt.Errorf("topology: malformed CLUSTER SLOTS entry %s", entry)
		}
		start, end := entry.Array[0], entry.Array[1]
		if start.Type != resp.TypeInteger || end.Type != resp.TypeInteger {
			return nil, fmt.Errorf("topology: CLUSTER SLOTS entry missing integer slot bounds")
		}

		master, err := nodeFromTriple(entry.Array[2], Master)
		if err != nil {
			return nil, err
		}

		var replicas []Node
		for _, t := range entry.Array[3:] {
			r, err := nodeFromTriple(t, Replica)
			if err != nil {
				return nil, err
			}
			replicas = append(replicas, r)
		}

		ranges = append(ranges, SlotAssignment{
			Start: uint16(start.Int),
			End:   uint16(end.Int),
			Shard: Shard{Master: master, Replicas: replicas},
		})
	}

	return NewShardMap(ranges), nil
}

func nodeFromTriple(t resp.Reply, role Role) (Node, error) {
	if t.Type != resp.TypeArray || len(t.Array) < 3 {
		return Node{}, fmt.Errorf("topology: malformed node triple %s", t)
	}
	ip, port, id := t.Array[0], t.Array[1], t.Array[2]
	if ip.Type != resp.TypeBulk || port.Type != resp.TypeInteger || id.Type != resp.TypeBulk {
		return Node{}, fmt.Errorf("topology: node triple has unexpected field types")
	}
	return Node{
		ID:   string(id.Str),
		Role: role,
		Host: string(ip.Str),
		Port: int(port.Int),
	}, nil
}
