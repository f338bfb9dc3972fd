package cluster

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/imviv3kshukla/hedis/resp"
	"github.com/imviv3kshukla/hedis/topology"
)

// Transport is the socket-level collaborator a NodeConn drives. Anything
// satisfying it — a *net.TCPConn, a TLS conn, a test fake — can back a
// node connection; raw connect/dial is the caller's concern (spec.md §1
// places socket management out of this core's scope).
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetDeadline(t time.Time) error
}

// OpenSocketFunc opens a Transport to host:port, itself responsible for
// honoring timeout as a dial deadline.
type OpenSocketFunc func(host string, port int, timeout time.Duration) (Transport, error)

// NodeConn is C4: a per-node socket wrapper with a streaming RESP decoder
// that carries the unparsed tail of the input across calls. One
// NodeConn is only ever driven by one goroutine at a time; the mutex below
// exists purely to make that serialization a load-bearing invariant rather
// than an accident of caller discipline.
type NodeConn struct {
	mu   sync.Mutex
	node topology.Node
	conn Transport
	dec  *resp.Decoder
}

func newNodeConn(node topology.Node, conn Transport) *NodeConn {
	return &NodeConn{
		node: node,
		conn: conn,
		dec:  resp.NewDecoder(conn),
	}
}

// Node returns the cluster node this connection targets.
func (nc *NodeConn) Node() topology.Node {
	return nc.node
}

// Close releases the underlying transport.
func (nc *NodeConn) Close() error {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.conn.Close()
}

// SendRequests implements request_node (§4.6): clean each request, write
// them all, then read exactly len(requests) reply frames. The whole call
// is bounded by deadline; a timeout or a hard parse failure both surface
// as errors the caller maps to NoNode/ConnectionClosed.
func (nc *NodeConn) SendRequests(requests []resp.Request, deadline time.Duration) ([]resp.Reply, error) {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	if deadline > 0 {
		if err := nc.conn.SetDeadline(time.Now().Add(deadline)); err != nil {
			return nil, fmt.Errorf("%w: set deadline: %v", ErrNoNode, err)
		}
		defer nc.conn.SetDeadline(time.Time{})
	}

	for _, req := range requests {
		cleaned := CleanRequest(req)
		if _, err := nc.conn.Write(cleaned.Encode()); err != nil {
			return nil, fmt.Errorf("%w: write to %s: %v", ErrNoNode, nc.node, err)
		}
	}

	replies := make([]resp.Reply, len(requests))
	for i := range requests {
		reply, err := nc.dec.ReadReply()
		if err != nil {
			if isTimeout(err) {
				return nil, fmt.Errorf("%w: read from %s: %v", ErrNoNode, nc.node, err)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrConnectionClosed, nc.node, err)
		}
		replies[i] = reply
	}
	return replies, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
