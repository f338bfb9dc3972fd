package cluster

import (
	"strings"

	"github.com/imviv3kshukla/hedis/resp"
)

// CommandRecord is one externally supplied piece of command metadata: the
// argument positions (counting the command name itself as position 0)
// that carry routing keys, and whether the command only reads data.
type CommandRecord struct {
	Name     string
	Keys     []int
	ReadOnly bool
}

// CommandTable is a read-only lookup by lowercased command name, built
// once from a list of CommandRecords.
type CommandTable map[string]CommandRecord

// NewCommandTable builds a CommandTable from externally supplied records.
// Later records with the same (lowercased) name overwrite earlier ones.
func NewCommandTable(records []CommandRecord) CommandTable {
	t := make(CommandTable, len(records))
	for _, r := range records {
		t[strings.ToLower(r.Name)] = r
	}
	return t
}

// KeysForRequest returns the routing keys of req, or ok=false if the
// command name is not in the table (the caller treats that as "cannot
// route").
func (t CommandTable) KeysForRequest(req resp.Request) (keys [][]byte, ok bool) {
	rec, found := t[req.Name()]
	if !found {
		return nil, false
	}
	keys = make([][]byte, 0, len(rec.Keys))
	for _, pos := range rec.Keys {
		if pos >= 0 && pos < len(req.Args) {
			keys = append(keys, req.Args[pos])
		}
	}
	return keys, true
}

// IsReadOnly reports whether req's command is marked read-only in the
// table. An unknown command defaults to false.
func (t CommandTable) IsReadOnly(req resp.Request) bool {
	rec, ok := t[req.Name()]
	return ok && rec.ReadOnly
}

// DefaultCommandRecords is a minimal but usable registry covering the
// commands a generic cluster client needs to route without any
// caller-supplied metadata. Callers with access to a full COMMAND INFO
// dump should build their own table with NewCommandTable instead.
var DefaultCommandRecords = []CommandRecord{
	{Name: "GET", Keys: []int{1}, ReadOnly: true},
	{Name: "STRLEN", Keys: []int{1}, ReadOnly: true},
	{Name: "MGET", Keys: []int{1, 2, 3, 4, 5, 6, 7, 8}, ReadOnly: true},
	{Name: "EXISTS", Keys: []int{1}, ReadOnly: true},
	{Name: "TTL", Keys: []int{1}, ReadOnly: true},
	{Name: "SET", Keys: []int{1}},
	{Name: "SETEX", Keys: []int{1}},
	{Name: "APPEND", Keys: []int{1}},
	{Name: "INCR", Keys: []int{1}},
	{Name: "DECR", Keys: []int{1}},
	{Name: "EXPIRE", Keys: []int{1}},
	{Name: "DEL", Keys: []int{1, 2, 3, 4, 5, 6, 7, 8}},
	{Name: "MSET", Keys: []int{1, 3, 5, 7, 9, 11, 13, 15}},
	{Name: "HGET", Keys: []int{1}, ReadOnly: true},
	{Name: "HGETALL", Keys: []int{1}, ReadOnly: true},
	{Name: "HSET", Keys: []int{1}},
	{Name: "HDEL", Keys: []int{1}},
	{Name: "LPUSH", Keys: []int{1}},
	{Name: "RPUSH", Keys: []int{1}},
	{Name: "LPOP", Keys: []int{1}},
	{Name: "RPOP", Keys: []int{1}},
	{Name: "LRANGE", Keys: []int{1}, ReadOnly: true},
	{Name: "SADD", Keys: []int{1}},
	{Name: "SREM", Keys: []int{1}},
	{Name: "SMEMBERS", Keys: []int{1}, ReadOnly: true},
	{Name: "ZADD", Keys: []int{1}},
	{Name: "ZRANGE", Keys: []int{1}, ReadOnly: true},
}

// PING and ASKING are intentionally absent here: neither is ever sent
// through route()'s info-map lookup. PING goes out via
// RequestMasterNodes, and ASKING is sent directly as the first half of
// the ASK retry mini-pipeline (evaluate.go). Both bypass CommandTable
// entirely, so listing them would only invite a caller to submit one
// through RequestPipelined, where an empty key list is UnsupportedCommand.
