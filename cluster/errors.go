package cluster

import "errors"

// Error kinds observable to callers of the cluster package. ServerError is
// deliberately not in this list: an unhandled RESP error frame is a Reply
// value, delivered through Force(), not a raised error — see resp.Reply.
var (
	// ErrUnsupportedCommand: the command name is not in the info registry
	// and no MULTI/EXEC routing override applies.
	ErrUnsupportedCommand = errors.New("hedis/cluster: unsupported command")

	// ErrCrossSlot: a single request's keys hash to more than one shard.
	ErrCrossSlot = errors.New("hedis/cluster: keys span multiple slots")

	// ErrMissingNode: routing resolved to no known node, or an ASK target
	// could not be located even after one shard-map refresh.
	ErrMissingNode = errors.New("hedis/cluster: no connection for target node")

	// ErrNoNode: no node connection could be established at Connect, or a
	// per-node I/O call exceeded its deadline.
	ErrNoNode = errors.New("hedis/cluster: no usable node connection")

	// ErrConnectionClosed: the RESP decoder reported a malformed frame or
	// EOF mid-frame.
	ErrConnectionClosed = errors.New("hedis/cluster: connection closed")
)
