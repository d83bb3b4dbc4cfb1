/*
file: goredis/internal/server/dispatch.go
*/

// Package server implements the command dispatch table and the
// connection event loop: the glue between the wire protocol and the
// engine's durable store.
package server

import (
	"strings"

	"github.com/kvforge/goredis/internal/engine"
	"github.com/kvforge/goredis/internal/protocol"
)

// Dispatch routes one parsed command array to its handler and reports
// whether the command actually mutated the keyspace (and so must be
// propagated). The mutated bool comes from the handler itself, not
// from the command's verb: a handler that rejects its arguments (bad
// arity, a malformed EX/PX option, a non-float ZADD score) reports
// false even though its verb is normally a write, since nothing was
// ever applied to Keyspace for Propagate to make durable.
func Dispatch(e *engine.Engine, v protocol.Value) (reply protocol.Value, mutating bool) {
	name := strings.ToUpper(v.CommandName())
	args := v.Args()

	h, ok := handlers[name]
	if !ok {
		return protocol.ErrorValue("ERR unknown command '" + v.CommandName() + "'"), false
	}
	return h(e, args)
}

type handlerFunc func(e *engine.Engine, args []protocol.Value) (protocol.Value, bool)

var handlers map[string]handlerFunc

func init() {
	handlers = map[string]handlerFunc{
		"PING": cmdPing,
		"ECHO": cmdEcho,

		"SET":    cmdSet,
		"GET":    cmdGet,
		"DEL":    cmdDel,
		"EXISTS": cmdExists,
		"EXPIRE": cmdExpire,
		"TTL":    cmdTTL,
		"KEYS":   cmdKeys,

		"HSET":    cmdHSet,
		"HGET":    cmdHGet,
		"HDEL":    cmdHDel,
		"HEXISTS": cmdHExists,
		"HGETALL": cmdHGetAll,
		"HLEN":    cmdHLen,

		"ZADD":   cmdZAdd,
		"ZREM":   cmdZRem,
		"ZRANGE": cmdZRange,
		"ZSCORE": cmdZScore,

		"FLUSHALL": cmdFlushAll,

		"SAVE":         cmdSave,
		"BGSAVE":       cmdBgSave,
		"BGREWRITEAOF": cmdBgRewriteAOF,

		"CONFIG": cmdConfig,
		"INFO":   cmdInfo,
	}
}

// IsReplHandshake reports whether name is SYNC/PSYNC, which the
// connection loop handles directly (they need the raw connection to
// register a replica session, not just a Value reply) rather than
// through the handlers table.
func IsReplHandshake(name string) bool {
	name = strings.ToUpper(name)
	return name == "SYNC" || name == "PSYNC"
}

func argString(args []protocol.Value, i int) (string, bool) {
	if i < 0 || i >= len(args) {
		return "", false
	}
	return string(args[i].Bulk), true
}

func errWrongArgs(cmd string) protocol.Value {
	return protocol.ErrorValue("ERR wrong number of arguments for '" + strings.ToLower(cmd) + "' command")
}
