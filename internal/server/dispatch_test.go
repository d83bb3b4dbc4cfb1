/*
file: goredis/internal/server/dispatch_test.go
*/
package server

import (
	"testing"

	"github.com/kvforge/goredis/internal/common"
	"github.com/kvforge/goredis/internal/engine"
	"github.com/kvforge/goredis/internal/protocol"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	dir := t.TempDir()
	cfg := common.NewConfig()
	cfg.Dir = dir
	cfg.RdbDir = dir
	cfg.AofDir = dir
	cfg.AofEnabled = false

	e, err := engine.New(cfg, common.NewLogger())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(e.Shutdown)
	return e
}

func cmd(parts ...string) protocol.Value {
	items := make([]protocol.Value, len(parts))
	for i, p := range parts {
		items[i] = protocol.BulkString(p)
	}
	return protocol.ArrayValue(items)
}

func TestSetGetTTLScenario(t *testing.T) {
	e := newTestEngine(t)

	reply, mutating := Dispatch(e, cmd("SET", "k", "hello", "EX", "2"))
	if reply.Type != protocol.SimpleString || reply.Str != "OK" || !mutating {
		t.Fatalf("SET reply = %+v mutating=%v", reply, mutating)
	}

	reply, _ = Dispatch(e, cmd("GET", "k"))
	if string(reply.Bulk) != "hello" {
		t.Fatalf("GET reply = %+v", reply)
	}

	reply, _ = Dispatch(e, cmd("TTL", "k"))
	if reply.Int != 2 {
		t.Fatalf("TTL reply = %+v, want 2", reply)
	}
}

func TestHashScenario(t *testing.T) {
	e := newTestEngine(t)

	if r, _ := Dispatch(e, cmd("HSET", "h", "f1", "v1")); r.Int != 1 {
		t.Fatalf("first HSET should report created, got %+v", r)
	}
	if r, _ := Dispatch(e, cmd("HSET", "h", "f1", "v2")); r.Int != 0 {
		t.Fatalf("second HSET should report overwrite, got %+v", r)
	}
	if r, _ := Dispatch(e, cmd("HGET", "h", "f1")); string(r.Bulk) != "v2" {
		t.Fatalf("HGET = %+v", r)
	}
	if r, _ := Dispatch(e, cmd("HLEN", "h")); r.Int != 1 {
		t.Fatalf("HLEN = %+v", r)
	}
	if r, _ := Dispatch(e, cmd("HDEL", "h", "f1")); r.Int != 1 {
		t.Fatalf("HDEL = %+v", r)
	}
	if r, _ := Dispatch(e, cmd("HEXISTS", "h", "f1")); r.Int != 0 {
		t.Fatalf("HEXISTS after delete = %+v", r)
	}
}

func TestSortedSetCrossingThreshold(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 200; i++ {
		member := zmemberName(i)
		Dispatch(e, cmd("ZADD", "z", itoaFloat(i), member))
	}

	r, _ := Dispatch(e, cmd("ZRANGE", "z", "0", "2"))
	if len(r.Array) != 3 {
		t.Fatalf("expected 3 members, got %d", len(r.Array))
	}
	want := []string{"m0", "m1", "m2"}
	for i, v := range r.Array {
		if string(v.Bulk) != want[i] {
			t.Fatalf("ZRANGE[%d] = %q, want %q", i, v.Bulk, want[i])
		}
	}

	r, _ = Dispatch(e, cmd("ZRANGE", "z", "-3", "-1"))
	wantTail := []string{"m197", "m198", "m199"}
	for i, v := range r.Array {
		if string(v.Bulk) != wantTail[i] {
			t.Fatalf("ZRANGE[-3:-1][%d] = %q, want %q", i, v.Bulk, wantTail[i])
		}
	}

	r, _ = Dispatch(e, cmd("ZSCORE", "z", "m150"))
	if string(r.Bulk) != "150.000000" {
		t.Fatalf("ZSCORE m150 = %q", r.Bulk)
	}
}

func zmemberName(i int) string {
	return "m" + itoaFloat(i)
}

func itoaFloat(i int) string {
	// small helper avoiding an extra strconv import across two tiny uses
	digits := []byte{}
	if i == 0 {
		return "0"
	}
	n := i
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestUnknownCommand(t *testing.T) {
	e := newTestEngine(t)
	r, mutating := Dispatch(e, cmd("NOSUCHCMD"))
	if r.Type != protocol.Error || mutating {
		t.Fatalf("expected unknown-command error, got %+v mutating=%v", r, mutating)
	}
}

func TestAdminCommands(t *testing.T) {
	e := newTestEngine(t)

	Dispatch(e, cmd("SET", "k", "v"))

	if r, _ := Dispatch(e, cmd("SAVE")); r.Str != "OK" {
		t.Fatalf("SAVE reply = %+v", r)
	}
	if r, _ := Dispatch(e, cmd("BGREWRITEAOF")); r.Type != protocol.Error {
		t.Fatalf("BGREWRITEAOF with aof disabled should error, got %+v", r)
	}
	if r, _ := Dispatch(e, cmd("PING")); r.Str != "PONG" {
		t.Fatalf("PING reply = %+v", r)
	}
	if r, _ := Dispatch(e, cmd("ECHO", "hi")); string(r.Bulk) != "hi" {
		t.Fatalf("ECHO reply = %+v", r)
	}
	if r, _ := Dispatch(e, cmd("CONFIG", "GET", "aof.mode")); len(r.Array) != 2 {
		t.Fatalf("CONFIG GET reply = %+v", r)
	}
	if r, _ := Dispatch(e, cmd("INFO")); r.Type != protocol.Bulk {
		t.Fatalf("INFO reply = %+v", r)
	}
	if r, mutating := Dispatch(e, cmd("FLUSHALL")); r.Str != "OK" || !mutating {
		t.Fatalf("FLUSHALL reply = %+v mutating=%v", r, mutating)
	}
	if r, _ := Dispatch(e, cmd("EXISTS", "k")); r.Int != 0 {
		t.Fatalf("expected key gone after FLUSHALL, got %+v", r)
	}
}
