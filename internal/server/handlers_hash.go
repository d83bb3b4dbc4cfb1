/*
file: goredis/internal/server/handlers_hash.go
*/
package server

import (
	"github.com/kvforge/goredis/internal/engine"
	"github.com/kvforge/goredis/internal/protocol"
)

func cmdHSet(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 3 {
		return errWrongArgs("HSET"), false
	}
	key, _ := argString(args, 0)
	field, _ := argString(args, 1)
	return protocol.IntegerValue(int64(e.Keyspace.HSet(key, field, args[2].Bulk))), true
}

func cmdHGet(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 2 {
		return errWrongArgs("HGET"), false
	}
	key, _ := argString(args, 0)
	field, _ := argString(args, 1)
	v, ok := e.Keyspace.HGet(key, field)
	if !ok {
		return protocol.NullBulk(), false
	}
	return protocol.BulkValue(v), false
}

func cmdHDel(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) < 2 {
		return errWrongArgs("HDEL"), false
	}
	key, _ := argString(args, 0)
	fields := make([]string, len(args)-1)
	for i, a := range args[1:] {
		fields[i] = string(a.Bulk)
	}
	n := e.Keyspace.HDel(key, fields)
	return protocol.IntegerValue(int64(n)), n > 0
}

func cmdHExists(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 2 {
		return errWrongArgs("HEXISTS"), false
	}
	key, _ := argString(args, 0)
	field, _ := argString(args, 1)
	if e.Keyspace.HExists(key, field) {
		return protocol.IntegerValue(1), false
	}
	return protocol.IntegerValue(0), false
}

func cmdHGetAll(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 1 {
		return errWrongArgs("HGETALL"), false
	}
	key, _ := argString(args, 0)
	fields := e.Keyspace.HGetAll(key)
	items := make([]protocol.Value, 0, len(fields)*2)
	for f, v := range fields {
		items = append(items, protocol.BulkString(f), protocol.BulkValue(v))
	}
	return protocol.ArrayValue(items), false
}

func cmdHLen(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 1 {
		return errWrongArgs("HLEN"), false
	}
	key, _ := argString(args, 0)
	return protocol.IntegerValue(int64(e.Keyspace.HLen(key))), false
}
