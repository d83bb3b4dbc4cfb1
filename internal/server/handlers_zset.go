/*
file: goredis/internal/server/handlers_zset.go
*/
package server

import (
	"strconv"

	"github.com/kvforge/goredis/internal/engine"
	"github.com/kvforge/goredis/internal/protocol"
)

func cmdZAdd(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 3 {
		return errWrongArgs("ZADD"), false
	}
	key, _ := argString(args, 0)
	score, err := strconv.ParseFloat(string(args[1].Bulk), 64)
	if err != nil {
		return protocol.ErrorValue("ERR value is not a valid float"), false
	}
	member, _ := argString(args, 2)
	return protocol.IntegerValue(int64(e.Keyspace.ZAdd(key, score, member))), true
}

func cmdZRem(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) < 2 {
		return errWrongArgs("ZREM"), false
	}
	key, _ := argString(args, 0)
	members := make([]string, len(args)-1)
	for i, a := range args[1:] {
		members[i] = string(a.Bulk)
	}
	n := e.Keyspace.ZRem(key, members)
	return protocol.IntegerValue(int64(n)), n > 0
}

func cmdZRange(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 3 {
		return errWrongArgs("ZRANGE"), false
	}
	key, _ := argString(args, 0)
	start, err1 := strconv.ParseInt(string(args[1].Bulk), 10, 64)
	stop, err2 := strconv.ParseInt(string(args[2].Bulk), 10, 64)
	if err1 != nil || err2 != nil {
		return protocol.ErrorValue("ERR value is not an integer or out of range"), false
	}
	members := e.Keyspace.ZRange(key, start, stop)
	items := make([]protocol.Value, len(members))
	for i, m := range members {
		items[i] = protocol.BulkString(m.Member)
	}
	return protocol.ArrayValue(items), false
}

func cmdZScore(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 2 {
		return errWrongArgs("ZSCORE"), false
	}
	key, _ := argString(args, 0)
	member, _ := argString(args, 1)
	score, ok := e.Keyspace.ZScore(key, member)
	if !ok {
		return protocol.NullBulk(), false
	}
	return protocol.BulkString(strconv.FormatFloat(score, 'f', 6, 64)), false
}
