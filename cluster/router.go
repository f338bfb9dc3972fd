package cluster

import (
	"strings"

	"github.com/imviv3kshukla/hedis/resp"
	"github.com/imviv3kshukla/hedis/slot"
	"github.com/imviv3kshukla/hedis/topology"
)

// CleanRequest strips the routing-only tail off a MULTI/EXEC request
// before it is sent to a node: MULTI <pin-key> becomes MULTI, EXEC
// <pin-key> becomes EXEC. Every other command passes through unchanged.
// CleanRequest is idempotent: CleanRequest(CleanRequest(r)) == CleanRequest(r).
func CleanRequest(req resp.Request) resp.Request {
	switch req.Name() {
	case "multi", "exec":
		if len(req.Args) <= 1 {
			return req
		}
		return resp.Request{Args: req.Args[:1]}
	default:
		return req
	}
}

// nodeLookup resolves a node's table entry. Routing is kept pure with
// respect to the connection table by taking this as a callback instead of
// reaching into Connection directly: route's output is then a
// deterministic function of (shardMap, table, readOnly, req) alone, as
// required by the routing-determinism invariant.
type nodeLookup func(id string) (*NodeConn, bool)

// route implements the router (C5): extract keys, map to slots and
// shards, and pick the node that should serve req.
func route(shardMap *topology.ShardMap, table CommandTable, readOnly bool, req resp.Request, lookup nodeLookup) (*NodeConn, error) {
	var keys [][]byte
	switch strings.ToUpper(req.Name()) {
	case "MULTI", "EXEC":
		if len(req.Args) < 2 {
			return nil, ErrUnsupportedCommand
		}
		keys = [][]byte{req.Args[1]}
	default:
		ks, ok := table.KeysForRequest(req)
		if !ok || len(ks) == 0 {
			return nil, ErrUnsupportedCommand
		}
		keys = ks
	}

	var shards []*topology.Shard
	seen := make(map[*topology.Shard]struct{}, 1)
	for _, k := range keys {
		sh, ok := shardMap.LookupSlot(slot.Key(k))
		if !ok {
			return nil, ErrMissingNode
		}
		if _, dup := seen[sh]; dup {
			continue
		}
		seen[sh] = struct{}{}
		shards = append(shards, sh)
	}

	switch len(shards) {
	case 0:
		return nil, ErrMissingNode
	case 1:
		target := pickNode(shards[0], readOnly, table.IsReadOnly(req))
		nc, ok := lookup(target.ID)
		if !ok {
			return nil, ErrMissingNode
		}
		return nc, nil
	default:
		return nil, ErrCrossSlot
	}
}

// pickNode applies the master-or-replica policy for a single resolved
// shard: a read-only client prefers the shard's first replica for a
// read-only command, but falls back to the master whenever there is no
// replica to use, or the client isn't in read-only mode, or the command
// itself isn't read-only. There is no round-robin — the first replica is
// always the one picked.
func pickNode(sh *topology.Shard, clientReadOnly, cmdReadOnly bool) topology.Node {
	if !clientReadOnly || len(sh.Replicas) == 0 || !cmdReadOnly {
		return sh.Master
	}
	return sh.Replicas[0]
}
