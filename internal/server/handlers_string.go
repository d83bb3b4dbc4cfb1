/*
file: goredis/internal/server/handlers_string.go
*/
package server

import (
	"strconv"
	"strings"

	"github.com/kvforge/goredis/internal/engine"
	"github.com/kvforge/goredis/internal/protocol"
)

func cmdSet(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) < 2 {
		return errWrongArgs("SET"), false
	}
	key, _ := argString(args, 0)
	val := args[1].Bulk

	var ttlMs *int64
	if len(args) == 4 {
		opt := strings.ToUpper(string(args[2].Bulk))
		n, err := strconv.ParseInt(string(args[3].Bulk), 10, 64)
		if err != nil {
			return protocol.ErrorValue("ERR value is not an integer or out of range"), false
		}
		switch opt {
		case "EX":
			if n <= 0 {
				return protocol.ErrorValue("ERR invalid expire time in SET"), false
			}
			ms := n * 1000
			ttlMs = &ms
		case "PX":
			if n <= 0 {
				return protocol.ErrorValue("ERR invalid expire time in SET"), false
			}
			ttlMs = &n
		default:
			return protocol.ErrorValue("ERR syntax error"), false
		}
	} else if len(args) != 2 {
		return errWrongArgs("SET"), false
	}

	e.Keyspace.Set(key, val, ttlMs)
	return protocol.StringValue("OK"), true
}

func cmdGet(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 1 {
		return errWrongArgs("GET"), false
	}
	key, _ := argString(args, 0)
	v, ok := e.Keyspace.Get(key)
	if !ok {
		return protocol.NullBulk(), false
	}
	return protocol.BulkValue(v), false
}

func cmdDel(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) == 0 {
		return errWrongArgs("DEL"), false
	}
	keys := make([]string, len(args))
	for i := range args {
		keys[i] = string(args[i].Bulk)
	}
	n := e.Keyspace.Del(keys)
	return protocol.IntegerValue(int64(n)), n > 0
}

func cmdExists(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 1 {
		return errWrongArgs("EXISTS"), false
	}
	key, _ := argString(args, 0)
	if e.Keyspace.Exists(key) {
		return protocol.IntegerValue(1), false
	}
	return protocol.IntegerValue(0), false
}

func cmdExpire(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 2 {
		return errWrongArgs("EXPIRE"), false
	}
	key, _ := argString(args, 0)
	seconds, err := strconv.ParseInt(string(args[1].Bulk), 10, 64)
	if err != nil {
		return protocol.ErrorValue("ERR value is not an integer or out of range"), false
	}
	if e.Keyspace.Expire(key, seconds) {
		return protocol.IntegerValue(1), true
	}
	return protocol.IntegerValue(0), false
}

func cmdTTL(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 1 {
		return errWrongArgs("TTL"), false
	}
	key, _ := argString(args, 0)
	return protocol.IntegerValue(e.Keyspace.TTL(key)), false
}
