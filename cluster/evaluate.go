package cluster

import (
	"github.com/imviv3kshukla/hedis/resp"
	"github.com/imviv3kshukla/hedis/topology"
)

// evaluate is §4.5's evaluate(requests): route, dispatch, and run the
// moved/retry passes over one pipeline generation's worth of requests.
// pending is the generation's buffer, already in submission order with
// pending[i].idx == i (see RequestPipelined); the returned outcomes slice
// is indexed the same way, so outcomes[i] is the reply for the request
// submitted at index i.
func (c *Connection) evaluate(pending []pendingItem) []outcome {
	outcomes := make([]outcome, len(pending))
	shardMap := c.shardMapPtr()

	type groupedItem struct {
		pos int
		req resp.Request
	}
	groups := make(map[*NodeConn][]groupedItem)

	for _, pi := range pending {
		nc, err := c.route(shardMap, pi.req)
		if err != nil {
			outcomes[pi.idx] = outcome{err: err}
			continue
		}
		groups[nc] = append(groups[nc], groupedItem{pos: pi.idx, req: pi.req})
	}

	for nc, items := range groups {
		reqs := make([]resp.Request, len(items))
		for i, it := range items {
			reqs[i] = it.req
		}
		replies, err := nc.SendRequests(reqs, c.cfg.NodeRequestDeadline)
		if err != nil {
			c.cfg.Logger.Warn("node request failed, retrying once on an alternate node",
				"node", nc.Node(), "error", err)
			if alt := c.alternateNodeConn(nc); alt != nil {
				replies, err = alt.SendRequests(reqs, c.cfg.NodeRequestDeadline)
			}
		}
		if err != nil {
			c.cfg.Logger.Error("node request failed after retry", "node", nc.Node(), "error", err)
			for _, it := range items {
				outcomes[it.pos] = outcome{err: ErrNoNode}
			}
			continue
		}
		for i, it := range items {
			outcomes[it.pos] = outcome{reply: replies[i]}
		}
	}

	c.movedPass(outcomes)

	shardMap = c.shardMapPtr()
	for _, pi := range pending {
		outcomes[pi.idx] = c.retryOutcome(outcomes[pi.idx], pi.req, shardMap, 0)
	}

	return outcomes
}

// movedPass refreshes the shard map once if any outcome carries a MOVED
// reply. The refresh happens before the retry pass runs, so by the time
// retryOutcome re-routes a MOVED request the shard map cell already
// reflects the new topology (testable property 6).
func (c *Connection) movedPass(outcomes []outcome) {
	for _, o := range outcomes {
		if o.err == nil && o.reply.Type == resp.TypeError && o.reply.Prefix() == "MOVED" {
			c.refreshShardMapFromAny()
			return
		}
	}
}

// retryOutcome implements §4.5 step 6 for one CompletedRequest. A non-error
// reply, or a reply that isn't a redirection, passes through unchanged.
func (c *Connection) retryOutcome(o outcome, req resp.Request, shardMap *topology.ShardMap, retryCount int) outcome {
	if o.err != nil || o.reply.Type != resp.TypeError {
		return o
	}

	switch o.reply.Prefix() {
	case "MOVED":
		nc, err := c.route(shardMap, req)
		if err != nil {
			return outcome{err: err}
		}
		replies, err := nc.SendRequests([]resp.Request{req}, c.cfg.NodeRequestDeadline)
		if err != nil {
			return outcome{err: ErrNoNode}
		}
		return outcome{reply: replies[0]}

	case "ASK":
		host, port, ok := parseAskTarget(o.reply.Rest())
		if !ok {
			// Malformed ASK payload: not a redirection we understand,
			// propagate the error reply to the caller unchanged.
			return o
		}
		nc, found := c.lookupNodeConnByHostPort(shardMap, host, port)
		if !found {
			if retryCount == 0 {
				if err := c.refreshShardMapFromAny(); err != nil {
					return outcome{err: ErrMissingNode}
				}
				return c.retryOutcome(o, req, c.shardMapPtr(), retryCount+1)
			}
			return outcome{err: ErrMissingNode}
		}
		replies, err := nc.SendRequests([]resp.Request{resp.NewRequest("ASKING"), req}, c.cfg.NodeRequestDeadline)
		if err != nil {
			return outcome{err: ErrNoNode}
		}
		return outcome{reply: replies[1]}

	default:
		return o
	}
}
