package resp

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// ReplyType tags the variant held by a Reply.
type ReplyType int

const (
	TypeString ReplyType = iota
	TypeError
	TypeInteger
	TypeBulk
	TypeArray
)

// Reply is the tagged sum of RESP reply frames: {SimpleString, Error,
// Integer, Bulk, Array}. A nil Bulk.Str distinguishes a null bulk reply
// ($-1) from an empty one ($0).
type Reply struct {
	Type  ReplyType
	Str   []byte // String, Error, Bulk payload
	Int   int64  // Integer
	Array []Reply
}

// Prefix returns the first whitespace-delimited token of an Error reply's
// payload, which classifies the error (MOVED, ASK, WRONGTYPE, ...). It is a
// tight, bounded split on the first space rather than a general tokenizer
// or regular expression, per the protocol's redirection-parsing contract.
func (r Reply) Prefix() string {
	if r.Type != TypeError {
		return ""
	}
	i := bytes.IndexByte(r.Str, ' ')
	if i < 0 {
		return string(r.Str)
	}
	return string(r.Str[:i])
}

// Rest returns the Error payload with its leading classification token and
// one separating space removed.
func (r Reply) Rest() string {
	if r.Type != TypeError {
		return ""
	}
	i := bytes.IndexByte(r.Str, ' ')
	if i < 0 {
		return ""
	}
	return string(r.Str[i+1:])
}

func (r Reply) String() string {
	switch r.Type {
	case TypeString:
		return fmt.Sprintf("string(%q)", string(r.Str))
	case TypeError:
		return fmt.Sprintf("error(%q)", string(r.Str))
	case TypeInteger:
		return fmt.Sprintf("integer(%d)", r.Int)
	case TypeBulk:
		if r.Str == nil {
			return "bulk(nil)"
		}
		return fmt.Sprintf("bulk(%q)", string(r.Str))
	case TypeArray:
		return fmt.Sprintf("array(%d)", len(r.Array))
	}
	return "unknown"
}

// Request is a command: an array of bulk-string arguments, argument zero
// being the command name.
type Request struct {
	Args [][]byte
}

// NewRequest builds a Request from string arguments.
func NewRequest(args ...string) Request {
	a := make([][]byte, len(args))
	for i, s := range args {
		a[i] = []byte(s)
	}
	return Request{Args: a}
}

// Name returns the lowercased command name, or "" for an empty request.
func (r Request) Name() string {
	if len(r.Args) == 0 {
		return ""
	}
	return strings.ToLower(string(r.Args[0]))
}

// Clone returns a deep copy of r, safe to mutate independently.
func (r Request) Clone() Request {
	a := make([][]byte, len(r.Args))
	for i, arg := range r.Args {
		b := make([]byte, len(arg))
		copy(b, arg)
		a[i] = b
	}
	return Request{Args: a}
}

// Encode serializes r as a RESP array of bulk strings.
func (r Request) Encode() []byte {
	var buf bytes.Buffer
	header := item{typ: itemArray, i: int64(len(r.Args))}
	buf.Write(header.bytes())
	for _, arg := range r.Args {
		b := item{typ: itemBulk, val: arg}
		buf.Write(b.bytes())
	}
	return buf.Bytes()
}

// Decoder reads RESP reply frames from a stream, resuming from whatever
// bytes a prior Read left buffered (the "last_recv_buffer" carry-over of a
// streaming parser is bufio.Scanner's internal buffer here).
type Decoder struct {
	lr *lineReader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{lr: newLineReader(r)}
}

// ReadReply decodes one complete reply frame, recursing into nested arrays.
// A malformed frame or EOF mid-frame is surfaced to the caller, who is
// expected to translate it into a connection-closed condition.
func (d *Decoder) ReadReply() (Reply, error) {
	it, err := d.lr.read()
	if err != nil {
		return Reply{}, err
	}
	return d.fromItem(it)
}

func (d *Decoder) fromItem(it item) (Reply, error) {
	switch it.typ {
	case itemString:
		return Reply{Type: TypeString, Str: it.val}, nil
	case itemError:
		return Reply{Type: TypeError, Str: it.val}, nil
	case itemInteger:
		return Reply{Type: TypeInteger, Int: it.i}, nil
	case itemBulk:
		return Reply{Type: TypeBulk, Str: it.val}, nil
	case itemInline:
		// An inline line from a reply stream is treated as a simple string;
		// real servers only send these on errors before the handshake.
		return Reply{Type: TypeString, Str: it.val}, nil
	case itemArray:
		if it.i < 0 {
			return Reply{Type: TypeArray, Array: nil}, nil
		}
		elems := make([]Reply, it.i)
		for i := range elems {
			sub, err := d.ReadReply()
			if err != nil {
				return Reply{}, err
			}
			elems[i] = sub
		}
		return Reply{Type: TypeArray, Array: elems}, nil
	default:
		return Reply{}, errInvalid
	}
}

// WriteReply serializes a Reply back to the wire, for the proxy's
// client-facing side.
func WriteReply(w io.Writer, r Reply) error {
	_, err := w.Write(encodeReply(r))
	return err
}

func encodeReply(r Reply) []byte {
	switch r.Type {
	case TypeString:
		return item{typ: itemString, val: r.Str}.bytes()
	case TypeError:
		return item{typ: itemError, val: r.Str}.bytes()
	case TypeInteger:
		return item{typ: itemInteger, i: r.Int}.bytes()
	case TypeBulk:
		return item{typ: itemBulk, val: r.Str}.bytes()
	case TypeArray:
		if r.Array == nil {
			return item{typ: itemArray, i: -1}.bytes()
		}
		var buf bytes.Buffer
		buf.Write(item{typ: itemArray, i: int64(len(r.Array))}.bytes())
		for _, sub := range r.Array {
			buf.Write(encodeReply(sub))
		}
		return buf.Bytes()
	default:
		return nil
	}
}
