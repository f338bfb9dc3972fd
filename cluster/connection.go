// Package cluster implements the request-routing and implicit-pipelining
// core of a clustered client: given an opaque RESP command it determines
// which shard (master or replica) must serve it, coalesces concurrently
// submitted commands into per-node batches flushed on first result
// inspection, and recovers from MOVED/ASK redirection and transient
// connection failures.
package cluster

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/imviv3kshukla/hedis/resp"
	"github.com/imviv3kshukla/hedis/topology"
)

// RefreshShardMapFunc is C8, the topology refresher: an external
// collaborator invoked on redirection or connection failure that returns
// a fresh ShardMap, typically by issuing CLUSTER SLOTS against nc.
type RefreshShardMapFunc func(nc *NodeConn) (*topology.ShardMap, error)

// Config is the core's own configuration, per spec.md §6: no CLI flags,
// no environment variables, no on-disk state — just a struct passed to
// Connect. An outer binary (this repo's cmd/hedis-cli) is where flags get
// translated into one of these.
type Config struct {
	// ReadOnly routes read-only commands to a replica when the target
	// shard has one.
	ReadOnly bool

	// Timeout bounds each socket dial/op OpenSocketFunc performs. Zero
	// means no deadline.
	Timeout time.Duration

	// PipelineFlushThreshold is the largest a pending generation is
	// allowed to grow before a submission triggers an inline flush.
	// Defaults to 1000.
	PipelineFlushThreshold int

	// NodeRequestDeadline bounds one request_node call. Defaults to 1s —
	// spec.md §9 flags the source's "100ms" comment as unreliable and
	// directs implementations to treat the coded value (~1s) as
	// authoritative while keeping it configurable.
	NodeRequestDeadline time.Duration

	// Logger receives routing/retry/redirection diagnostics and the
	// deadlock watchdog's output. Defaults to a null logger.
	Logger hclog.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.PipelineFlushThreshold <= 0 {
		cfg.PipelineFlushThreshold = 1000
	}
	if cfg.NodeRequestDeadline <= 0 {
		cfg.NodeRequestDeadline = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return cfg
}

// Connection is C7: the top-level handle. It owns the node-connection
// table, the current pipeline generation, and the shared shard-map cell.
// Callers never see a NodeConn directly — only Reply values — which is
// what lets Disconnect close every socket deterministically.
type Connection struct {
	open    OpenSocketFunc
	table   CommandTable
	cfg     Config
	refresh RefreshShardMapFunc

	shardMap atomic.Pointer[topology.ShardMap]

	nodeConnsMu sync.RWMutex
	nodeConns   map[string]*NodeConn

	plCell *guardedMutex
	pl     *pipelineState
}

// Connect is C7's constructor: read the initial ShardMap, eagerly dial
// every unique node in it, and recover via one refresh pass if some (but
// not all) of those dials fail. Connect fails with ErrNoNode only if zero
// connections could be established.
func Connect(open OpenSocketFunc, records []CommandRecord, initial *topology.ShardMap, cfg Config, refresh RefreshShardMapFunc) (*Connection, error) {
	cfg = cfg.withDefaults()
	c := &Connection{
		open:      open,
		table:     NewCommandTable(records),
		cfg:       cfg,
		refresh:   refresh,
		nodeConns: make(map[string]*NodeConn),
	}
	c.plCell = newGuardedMutex("pipeline-cell", cfg.Logger)
	c.pl = newPipelineState(c)
	c.shardMap.Store(initial)

	if err := c.connectAll(initial); err != nil {
		return nil, err
	}
	return c, nil
}

// connectAll dials every node in m, and if some but not all dials
// succeeded, asks the refresher for a fresh map (using one of the
// successful connections) and makes one best-effort pass at dialing that
// map's node set too. Zero successful dials is a hard failure.
func (c *Connection) connectAll(m *topology.ShardMap) error {
	okAny, anyFailed := c.dialAll(m)
	if okAny == nil {
		return fmt.Errorf("%w: could not connect to any node in the initial shard map", ErrNoNode)
	}
	if anyFailed {
		newMap, err := c.refresh(okAny)
		if err != nil {
			c.cfg.Logger.Error("shard map refresh after partial connect failure failed", "error", err)
			return nil
		}
		c.shardMap.Store(newMap)
		c.dialAll(newMap)
	}
	return nil
}

func (c *Connection) dialAll(m *topology.ShardMap) (okAny *NodeConn, anyFailed bool) {
	for _, n := range m.AllNodes() {
		if nc, exists := c.lookupNodeConn(n.ID); exists {
			okAny = nc
			continue
		}
		nc, err := c.dial(n)
		if err != nil {
			c.cfg.Logger.Warn("failed to connect to node", "node", n, "error", err)
			anyFailed = true
			continue
		}
		c.setNodeConn(n.ID, nc)
		okAny = nc
	}
	return okAny, anyFailed
}

func (c *Connection) dial(n topology.Node) (*NodeConn, error) {
	t, err := c.open(n.Host, n.Port, c.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return newNodeConn(n, t), nil
}

// Disconnect closes every NodeConnection. Close errors are swallowed —
// the caller is discarding this Connection, there is nothing useful to do
// with a close failure at that point.
func (c *Connection) Disconnect() {
	c.nodeConnsMu.Lock()
	defer c.nodeConnsMu.Unlock()
	for _, nc := range c.nodeConns {
		_ = nc.Close()
	}
	c.nodeConns = make(map[string]*NodeConn)
}

func (c *Connection) lookupNodeConn(id string) (*NodeConn, bool) {
	c.nodeConnsMu.RLock()
	defer c.nodeConnsMu.RUnlock()
	nc, ok := c.nodeConns[id]
	return nc, ok
}

func (c *Connection) setNodeConn(id string, nc *NodeConn) {
	c.nodeConnsMu.Lock()
	defer c.nodeConnsMu.Unlock()
	c.nodeConns[id] = nc
}

// alternateNodeConn picks the first table entry that is not failed — or
// any entry at all if every other one happens to equal it — for the
// single retry §4.5 step 3 allows a failed group.
func (c *Connection) alternateNodeConn(failed *NodeConn) *NodeConn {
	c.nodeConnsMu.RLock()
	defer c.nodeConnsMu.RUnlock()
	failedID := failed.Node().ID
	var any *NodeConn
	for id, nc := range c.nodeConns {
		any = nc
		if id != failedID {
			return nc
		}
	}
	return any
}

func (c *Connection) anyNodeConn() *NodeConn {
	c.nodeConnsMu.RLock()
	defer c.nodeConnsMu.RUnlock()
	for _, nc := range c.nodeConns {
		return nc
	}
	return nil
}

func (c *Connection) lookupNodeConnByHostPort(m *topology.ShardMap, host string, port int) (*NodeConn, bool) {
	n, ok := m.NodeWithHostPort(host, port)
	if !ok {
		return nil, false
	}
	return c.lookupNodeConn(n.ID)
}

func (c *Connection) shardMapPtr() *topology.ShardMap {
	return c.shardMap.Load()
}

func (c *Connection) route(shardMap *topology.ShardMap, req resp.Request) (*NodeConn, error) {
	return route(shardMap, c.table, c.cfg.ReadOnly, req, c.lookupNodeConn)
}

// refreshShardMapFromAny invokes the topology refresher (C8) against any
// currently live node connection, atomically swaps the shard-map cell, and
// makes a best-effort pass at dialing any node the new map names that
// isn't already in the connection table — otherwise a MOVED/ASK target
// introduced only by this refresh could never be resolved to a
// NodeConnection by the router.
func (c *Connection) refreshShardMapFromAny() error {
	nc := c.anyNodeConn()
	if nc == nil {
		return ErrNoNode
	}
	newMap, err := c.refresh(nc)
	if err != nil {
		c.cfg.Logger.Error("shard map refresh failed", "error", err)
		return err
	}
	c.shardMap.Store(newMap)
	c.dialAll(newMap)
	return nil
}

// RequestMasterNodes fans a request out to every master in the current
// ShardMap and returns the concatenated replies, in master-registration
// order. Unlike RequestPipelined this is not deferred: it always performs
// the I/O immediately.
func (c *Connection) RequestMasterNodes(req resp.Request) ([]resp.Reply, error) {
	masters := c.shardMapPtr().Masters()
	replies := make([]resp.Reply, len(masters))
	errs := make([]error, len(masters))

	var wg sync.WaitGroup
	for i, n := range masters {
		wg.Add(1)
		go func(i int, n topology.Node) {
			defer wg.Done()
			nc, ok := c.lookupNodeConn(n.ID)
			if !ok {
				errs[i] = fmt.Errorf("%w: %s", ErrMissingNode, n)
				return
			}
			rs, err := nc.SendRequests([]resp.Request{req}, c.cfg.NodeRequestDeadline)
			if err != nil {
				errs[i] = err
				return
			}
			replies[i] = rs[0]
		}(i, n)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return replies, err
		}
	}
	return replies, nil
}

// Nodes lists every master and replica in m exactly once.
func Nodes(m *topology.ShardMap) []topology.Node {
	return m.AllNodes()
}
