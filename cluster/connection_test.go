package cluster

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imviv3kshukla/hedis/resp"
	"github.com/imviv3kshukla/hedis/slot"
	"github.com/imviv3kshukla/hedis/topology"
)

// transportRegistry backs Connection.open for tests: every node a test
// wants reachable is pre-registered under its "host:port" key, including
// nodes that only appear after a mid-test refresh — Connect dials the
// initial map's nodes and refreshShardMapFromAny dials the nodes a refreshed
// map adds, both through open, so pre-registering is enough.
type transportRegistry map[string]*fakeTransport

func (tr transportRegistry) open(host string, port int, _ time.Duration) (Transport, error) {
	key := fmt.Sprintf("%s:%d", host, port)
	t, ok := tr[key]
	if !ok {
		return nil, fmt.Errorf("no fake transport registered for %s", key)
	}
	return t, nil
}

func noopRefresh(*NodeConn) (*topology.ShardMap, error) {
	return nil, fmt.Errorf("refresh not expected in this test")
}

func singleMasterMap(n topology.Node) *topology.ShardMap {
	return topology.NewShardMap([]topology.SlotAssignment{
		{Start: 0, End: 16383, Shard: topology.Shard{Master: n}},
	})
}

func bulkValues(n int) []byte {
	return []byte(strings.Repeat("$1\r\nv\r\n", n))
}

// --- Scenario 1: a simple GET round-trips through the pipeline. ---

func TestConnectionSimpleGet(t *testing.T) {
	a := topology.Node{ID: "a", Role: topology.Master, Host: "nodeA", Port: 7000}
	reg := transportRegistry{
		"nodeA:7000": newFakeTransport([]byte("$5\r\nhello\r\n")),
	}

	conn, err := Connect(reg.open, DefaultCommandRecords, singleMasterMap(a), Config{}, noopRefresh)
	require.NoError(t, err)
	defer conn.Disconnect()

	lr := conn.RequestPipelined(resp.NewRequest("GET", "k"))
	reply, err := lr.Force()
	require.NoError(t, err)
	assert.Equal(t, resp.TypeBulk, reply.Type)
	assert.Equal(t, "hello", string(reply.Str))
}

// --- Scenario 2: requests landing on different shards within one
// generation are dispatched as separate per-node batches and their
// replies line up with submission order; a genuine cross-slot multi-key
// command still fails at Force time. ---

func TestConnectionTwoShardDispatchAndCrossSlot(t *testing.T) {
	a := topology.Node{ID: "a", Host: "nodeA", Port: 7000}
	b := topology.Node{ID: "b", Host: "nodeB", Port: 7001}
	m := topology.NewShardMap([]topology.SlotAssignment{
		{Start: 0, End: 8000, Shard: topology.Shard{Master: a}},
		{Start: 8001, End: 16383, Shard: topology.Shard{Master: b}},
	})
	reg := transportRegistry{
		"nodeA:7000": newFakeTransport([]byte("$3\r\nva1\r\n")),
		"nodeB:7001": newFakeTransport([]byte("$3\r\nvb1\r\n")),
	}

	conn, err := Connect(reg.open, DefaultCommandRecords, m, Config{}, noopRefresh)
	require.NoError(t, err)
	defer conn.Disconnect()

	// "a" -> slot 15495 (shard b), "sample" is irrelevant: pick two keys
	// whose slots are known (per spec.md scenario 2) to land on opposite
	// sides of the 8000/8001 split.
	lr1 := conn.RequestPipelined(resp.NewRequest("GET", "a")) // slot 15495 -> b
	lr2 := conn.RequestPipelined(resp.NewRequest("GET", "b")) // slot 3300  -> a

	r1, err1 := lr1.Force()
	require.NoError(t, err1)
	r2, err2 := lr2.Force()
	require.NoError(t, err2)
	assert.Equal(t, "vb1", string(r1.Str))
	assert.Equal(t, "va1", string(r2.Str))

	reg2 := transportRegistry{
		"nodeA:7000": newFakeTransport(),
		"nodeB:7001": newFakeTransport(),
	}
	conn2, err := Connect(reg2.open, []CommandRecord{{Name: "MSET", Keys: []int{1, 3}}}, m, Config{}, noopRefresh)
	require.NoError(t, err)
	defer conn2.Disconnect()

	lrX := conn2.RequestPipelined(resp.NewRequest("MSET", "a", "1", "b", "2"))
	_, err = lrX.Force()
	assert.ErrorIs(t, err, ErrCrossSlot)
}

// --- Scenario 3: MOVED triggers a shard-map refresh and a single
// re-dispatch to the node the refresh names. ---

func TestConnectionMovedRedirect(t *testing.T) {
	oldMaster := topology.Node{ID: "old", Role: topology.Master, Host: "nodeOld", Port: 7000}
	newMaster := topology.Node{ID: "new", Role: topology.Master, Host: "nodeNew", Port: 7001}

	reg := transportRegistry{
		"nodeOld:7000": newFakeTransport([]byte("-MOVED 7000 nodeNew:7001\r\n")),
		"nodeNew:7001": newFakeTransport([]byte("$5\r\nhello\r\n")),
	}
	refreshed := singleMasterMap(newMaster)
	refresh := func(*NodeConn) (*topology.ShardMap, error) { return refreshed, nil }

	conn, err := Connect(reg.open, DefaultCommandRecords, singleMasterMap(oldMaster), Config{}, refresh)
	require.NoError(t, err)
	defer conn.Disconnect()

	lr := conn.RequestPipelined(resp.NewRequest("GET", "k"))
	reply, err := lr.Force()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(reply.Str))
}

// --- Scenario 4: ASK redirect to a node already known to the shard map
// dispatches an ASKING+command mini-pipeline and returns the second
// reply. ---

func TestConnectionAskRedirectFound(t *testing.T) {
	a := topology.Node{ID: "a", Role: topology.Master, Host: "nodeA", Port: 7000}
	b := topology.Node{ID: "b", Role: topology.Master, Host: "nodeB", Port: 7001}
	m := topology.NewShardMap([]topology.SlotAssignment{
		{Start: 0, End: slotOf("k"), Shard: topology.Shard{Master: a}},
		{Start: slotOf("k") + 1, End: 16383, Shard: topology.Shard{Master: b}},
	})
	reg := transportRegistry{
		"nodeA:7000": newFakeTransport([]byte("-ASK 7000 nodeB:7001\r\n")),
		"nodeB:7001": newFakeTransport([]byte("+OK\r\n$5\r\nhello\r\n")),
	}

	conn, err := Connect(reg.open, DefaultCommandRecords, m, Config{}, noopRefresh)
	require.NoError(t, err)
	defer conn.Disconnect()

	lr := conn.RequestPipelined(resp.NewRequest("GET", "k"))
	reply, err := lr.Force()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(reply.Str))
}

// --- Scenario 5: ASK redirect to a node the current shard map doesn't
// know yet triggers one refresh, after which the target resolves and the
// ASKING+command mini-pipeline dispatches normally. ---

func TestConnectionAskRedirectNotFoundThenRefresh(t *testing.T) {
	a := topology.Node{ID: "a", Role: topology.Master, Host: "nodeA", Port: 7000}
	c := topology.Node{ID: "c", Role: topology.Master, Host: "nodeC", Port: 7002}

	reg := transportRegistry{
		"nodeA:7000": newFakeTransport([]byte("-ASK 7000 nodeC:7002\r\n")),
		"nodeC:7002": newFakeTransport([]byte("+OK\r\n$5\r\nhello\r\n")),
	}
	refreshedMap := singleMasterMap(c)
	refresh := func(*NodeConn) (*topology.ShardMap, error) { return refreshedMap, nil }

	conn, err := Connect(reg.open, DefaultCommandRecords, singleMasterMap(a), Config{}, refresh)
	require.NoError(t, err)
	defer conn.Disconnect()

	lr := conn.RequestPipelined(resp.NewRequest("GET", "k"))
	reply, err := lr.Force()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(reply.Str))
}

// --- Scenario 6: the 1001st submission against the default 1000-item
// threshold flushes the generation inline, synchronously, inside the
// RequestPipelined call itself. ---

func TestConnectionPipelineFlushThreshold(t *testing.T) {
	a := topology.Node{ID: "a", Role: topology.Master, Host: "nodeA", Port: 7000}
	reg := transportRegistry{
		"nodeA:7000": newFakeTransport(bulkValues(1001)),
	}

	conn, err := Connect(reg.open, DefaultCommandRecords, singleMasterMap(a), Config{}, noopRefresh)
	require.NoError(t, err)
	defer conn.Disconnect()

	var replies []*LazyReply
	for i := 0; i < 1000; i++ {
		replies = append(replies, conn.RequestPipelined(resp.NewRequest("GET", "k")))
	}
	require.False(t, conn.pl.executed, "generation should still be buffering at exactly the threshold")
	require.Len(t, conn.pl.pending, 1000)

	overflow := conn.RequestPipelined(resp.NewRequest("GET", "k"))
	// The inline flush rotates conn.pl to a fresh generation, so the flushed
	// generation is reached through the overflow reply's own state.
	assert.True(t, overflow.state.executed, "the 1001st submission must flush the generation inline")
	replies = append(replies, overflow)

	for i, lr := range replies {
		reply, err := lr.Force()
		require.NoErrorf(t, err, "reply %d", i)
		assert.Equal(t, resp.TypeBulk, reply.Type)
		assert.Equal(t, "v", string(reply.Str))
	}
}

// --- RequestMasterNodes fans a request out to every master and
// concatenates replies in master-registration order. ---

func TestRequestMasterNodesFanOut(t *testing.T) {
	a := topology.Node{ID: "a", Role: topology.Master, Host: "nodeA", Port: 7000}
	b := topology.Node{ID: "b", Role: topology.Master, Host: "nodeB", Port: 7001}
	m := topology.NewShardMap([]topology.SlotAssignment{
		{Start: 0, End: 8000, Shard: topology.Shard{Master: a}},
		{Start: 8001, End: 16383, Shard: topology.Shard{Master: b}},
	})
	reg := transportRegistry{
		"nodeA:7000": newFakeTransport([]byte("+PONG\r\n")),
		"nodeB:7001": newFakeTransport([]byte("+PONG\r\n")),
	}

	conn, err := Connect(reg.open, DefaultCommandRecords, m, Config{}, noopRefresh)
	require.NoError(t, err)
	defer conn.Disconnect()

	replies, err := conn.RequestMasterNodes(resp.NewRequest("PING"))
	require.NoError(t, err)
	require.Len(t, replies, 2)
	for _, r := range replies {
		assert.Equal(t, "PONG", string(r.Str))
	}
}

// --- Disconnect closes every node socket. ---

func TestDisconnectClosesEverySocket(t *testing.T) {
	a := topology.Node{ID: "a", Host: "nodeA", Port: 7000}
	ta := newFakeTransport()
	reg := transportRegistry{"nodeA:7000": ta}

	conn, err := Connect(reg.open, DefaultCommandRecords, singleMasterMap(a), Config{}, noopRefresh)
	require.NoError(t, err)

	conn.Disconnect()
	assert.True(t, ta.closed)
}

// slotOf resolves a key's hash slot so scenario 4's shard split can be
// constructed so that key "k" lands on node a and the ASK target lands on b.
func slotOf(key string) uint16 {
	return uint16(slot.Key([]byte(key)))
}
