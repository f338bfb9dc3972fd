package cluster

import (
	"testing"

	"github.com/imviv3kshukla/hedis/resp"
)

func TestKeysForRequestUnknownCommand(t *testing.T) {
	table := NewCommandTable(DefaultCommandRecords)
	_, ok := table.KeysForRequest(resp.NewRequest("NOTACOMMAND", "x"))
	if ok {
		t.Fatalf("expected ok=false for unknown command")
	}
}

func TestKeysForRequestMultiKey(t *testing.T) {
	table := NewCommandTable([]CommandRecord{{Name: "MSET", Keys: []int{1, 3}}})
	keys, ok := table.KeysForRequest(resp.NewRequest("MSET", "k1", "v1", "k2", "v2"))
	if !ok || len(keys) != 2 || string(keys[0]) != "k1" || string(keys[1]) != "k2" {
		t.Fatalf("KeysForRequest = %v, %v", keys, ok)
	}
}

func TestIsReadOnlyDefaultsFalse(t *testing.T) {
	table := NewCommandTable(DefaultCommandRecords)
	if table.IsReadOnly(resp.NewRequest("UNKNOWN")) {
		t.Fatalf("unknown command should default to not read-only")
	}
	if !table.IsReadOnly(resp.NewRequest("GET", "k")) {
		t.Fatalf("GET should be marked read-only")
	}
	if table.IsReadOnly(resp.NewRequest("SET", "k", "v")) {
		t.Fatalf("SET should not be marked read-only")
	}
}

func TestCommandTableIsCaseInsensitive(t *testing.T) {
	table := NewCommandTable(DefaultCommandRecords)
	_, ok := table.KeysForRequest(resp.NewRequest("get", "k"))
	if !ok {
		t.Fatalf("expected lowercase command name to resolve")
	}
}
