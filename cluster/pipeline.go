package cluster

import (
	"github.com/imviv3kshukla/hedis/resp"
)

// pendingItem is a not-yet-dispatched request, tagged with the index its
// reply must land at once the generation is evaluated.
type pendingItem struct {
	idx int
	req resp.Request
}

// outcome is one CompletedRequest: either a Reply (which may itself be a
// ServerError frame) or a raised error.
type outcome struct {
	reply resp.Reply
	err   error
}

// pipelineState is one generation of the pipeline: Pending while requests
// are still buffering, Executed once evaluated. The transition is
// one-way and happens under inner, which is also what serializes
// "evaluate at most once per generation".
type pipelineState struct {
	inner *guardedMutex

	executed bool
	pending  []pendingItem // submission order, pending[i].idx == i, while !executed
	outcomes []outcome     // submission order, valid once executed

	conn *Connection
}

func newPipelineState(conn *Connection) *pipelineState {
	return &pipelineState{
		inner: newGuardedMutex("pipeline-state", conn.cfg.Logger),
		conn:  conn,
	}
}

// LazyReply is the deferred-value handle described in spec.md §9: a
// reference to a pipeline generation and the submission index within it.
// Force is idempotent and safe to call from any goroutine; the first
// caller to force any LazyReply belonging to an unevaluated generation
// performs the evaluation, and every other LazyReply for that generation
// simply observes the result.
type LazyReply struct {
	state *pipelineState
	idx   int
}

// Force realizes the reply: if the owning generation hasn't been
// evaluated yet, this call performs the evaluation (which may do real
// I/O against the cluster) and transitions the generation to Executed.
// Every other outstanding LazyReply for the same generation will, when
// forced, see Executed and just read its own slot.
func (l *LazyReply) Force() (resp.Reply, error) {
	l.state.inner.Lock()
	defer l.state.inner.Unlock()
	if !l.state.executed {
		l.state.outcomes = l.state.conn.evaluate(l.state.pending)
		l.state.executed = true
		l.state.pending = nil
	}
	o := l.state.outcomes[l.idx]
	return o.reply, o.err
}

// RequestPipelined is the submission path (spec.md §4.5): buffer req into
// the current pipeline generation, rotating to a fresh one if the current
// generation has already been evaluated, and flushing inline if the
// current generation has reached the flush threshold. Submission order
// within one caller's sequence of calls is always preserved in the index
// handed to the returned LazyReply.
func (c *Connection) RequestPipelined(req resp.Request) *LazyReply {
	c.plCell.Lock()

	st := c.pl
	st.inner.Lock()

	if st.executed {
		st.inner.Unlock()
		ns := newPipelineState(c)
		ns.pending = []pendingItem{{idx: 0, req: req}}
		c.pl = ns
		c.plCell.Unlock()
		return &LazyReply{state: ns, idx: 0}
	}

	idx := len(st.pending)
	if idx >= c.cfg.PipelineFlushThreshold {
		all := append(st.pending, pendingItem{idx: idx, req: req})
		st.pending = nil

		// Rotate to a fresh generation and release plCell before running
		// evaluate's network I/O: a producer that arrives mid-flush lands
		// on the new generation and never has to wait on st.inner. Only
		// the per-generation lock spans the I/O, per spec.md §5.
		ns := newPipelineState(c)
		c.pl = ns
		c.plCell.Unlock()

		st.outcomes = c.evaluate(all)
		st.executed = true
		st.inner.Unlock()
		return &LazyReply{state: st, idx: idx}
	}

	st.pending = append(st.pending, pendingItem{idx: idx, req: req})
	st.inner.Unlock()
	c.plCell.Unlock()
	return &LazyReply{state: st, idx: idx}
}
