// Package proxy adapts a cluster.Connection into a transparent Redis Cluster
// proxy: accept plain RESP connections from cluster-unaware clients, route
// each command through the cluster core, and hand the reply straight back.
// Unlike the single-backend "dumb" mode this grew out of, redirection,
// cross-slot rejection and node failures are the cluster core's problem —
// this package only speaks the client-facing half of the protocol.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/imviv3kshukla/hedis/cluster"
	"github.com/imviv3kshukla/hedis/resp"
)

// Server is the client-facing half of the proxy: one cluster.Connection
// shared across every accepted client.
type Server struct {
	conn   *cluster.Connection
	logger hclog.Logger
}

// New builds a Server over an already-Connected cluster core. A nil logger
// is replaced with a null sink.
func New(conn *cluster.Connection, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{conn: conn, logger: logger}
}

// Serve accepts connections off l until it returns an error (typically
// because the listener was closed), handling each client on its own
// goroutine.
func (s *Server) Serve(l net.Listener) error {
	for {
		c, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handle(c)
	}
}

func (s *Server) handle(c net.Conn) {
	defer c.Close()
	dec := resp.NewDecoder(c)

	// Every accepted connection gets a correlation ID so its log lines can
	// be told apart from other clients sharing the same cluster.Connection.
	log := s.logger.With("conn", uuid.NewString(), "remote", c.RemoteAddr())

	for {
		req, err := readRequest(dec)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("client connection closed on read error", "error", err)
			}
			return
		}

		reply, err := s.conn.RequestPipelined(req).Force()
		if err != nil {
			log.Warn("command failed", "command", req.Name(), "error", err)
			reply = errorReply(err)
		}

		if err := resp.WriteReply(c, reply); err != nil {
			log.Debug("client connection closed on write error", "error", err)
			return
		}
	}
}

// readRequest decodes one client command. On the wire a command and a
// reply array share the same framing (an array of bulk strings), so this
// reuses the reply decoder and reinterprets the result.
func readRequest(dec *resp.Decoder) (resp.Request, error) {
	r, err := dec.ReadReply()
	if err != nil {
		return resp.Request{}, err
	}
	if r.Type != resp.TypeArray {
		return resp.Request{}, fmt.Errorf("proxy: expected a command array, got %s", r)
	}
	args := make([][]byte, len(r.Array))
	for i, el := range r.Array {
		if el.Type != resp.TypeBulk {
			return resp.Request{}, fmt.Errorf("proxy: expected bulk string argument %d, got %s", i, el)
		}
		args[i] = el.Str
	}
	return resp.Request{Args: args}, nil
}

// errorReply turns a core error into the RESP error frame a client expects
// instead of a dropped connection, tagging it with the classification a
// cluster-aware client would look for.
func errorReply(err error) resp.Reply {
	switch {
	case errors.Is(err, cluster.ErrCrossSlot):
		return respErr("CROSSSLOT " + err.Error())
	case errors.Is(err, cluster.ErrUnsupportedCommand):
		return respErr("ERR unsupported command: " + err.Error())
	case errors.Is(err, cluster.ErrMissingNode), errors.Is(err, cluster.ErrNoNode):
		return respErr("CLUSTERDOWN " + err.Error())
	case errors.Is(err, cluster.ErrConnectionClosed):
		return respErr("ERR backend connection closed: " + err.Error())
	default:
		return respErr("ERR " + err.Error())
	}
}

func respErr(msg string) resp.Reply {
	return resp.Reply{Type: resp.TypeError, Str: []byte(msg)}
}
