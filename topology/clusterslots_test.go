package topology

import (
	"testing"

	"github.com/imviv3kshukla/hedis/resp"
)

func bulk(s string) resp.Reply   { return resp.Reply{Type: resp.TypeBulk, Str: []byte(s)} }
func integer(i int64) resp.Reply { return resp.Reply{Type: resp.TypeInteger, Int: i} }
func array(rs ...resp.Reply) resp.Reply {
	return resp.Reply{Type: resp.TypeArray, Array: rs}
}

func TestParseClusterSlots(t *testing.T) {
	reply := array(
		array(
			integer(0), integer(5460),
			array(bulk("10.0.0.1"), integer(6379), bulk("master1")),
			array(bulk("10.0.0.2"), integer(6379), bulk("replica1")),
		),
		array(
			integer(5461), integer(10922),
			array(bulk("10.0.0.3"), integer(6379), bulk("master2")),
		),
	)

	m, err := ParseClusterSlots(reply)
	if err != nil {
		t.Fatalf("ParseClusterSlots: %v", err)
	}

	sh, ok := m.LookupSlot(0)
	if !ok || sh.Master.ID != "master1" || len(sh.Replicas) != 1 || sh.Replicas[0].ID != "replica1" {
		t.Fatalf("slot 0 -> %+v", sh)
	}
	sh, ok = m.LookupSlot(5461)
	if !ok || sh.Master.ID != "master2" {
		t.Fatalf("slot 5461 -> %+v", sh)
	}
	if _, ok := m.LookupSlot(16000); ok {
		t.Fatalf("slot 16000 should be unassigned")
	}
}

func TestParseClusterSlotsRejectsMalformed(t *testing.T) {
	if _, err := ParseClusterSlots(bulk("not an array")); err == nil {
		t.Fatalf("expected error for non-array reply")
	}
	if _, err := ParseClusterSlots(array(array(integer(0)))); err == nil {
		t.Fatalf("expected error for short entry")
	}
}
