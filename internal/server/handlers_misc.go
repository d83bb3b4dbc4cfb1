/*
file: goredis/internal/server/handlers_misc.go
*/
package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kvforge/goredis/internal/engine"
	"github.com/kvforge/goredis/internal/protocol"
	"github.com/shirou/gopsutil/v4/mem"
)

func cmdPing(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) == 0 {
		return protocol.StringValue("PONG"), false
	}
	return protocol.BulkValue(args[0].Bulk), false
}

func cmdEcho(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) != 1 {
		return errWrongArgs("ECHO"), false
	}
	return protocol.BulkValue(args[0].Bulk), false
}

func cmdKeys(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	pattern := "*"
	if len(args) == 1 {
		pattern, _ = argString(args, 0)
	}
	var keys []string
	if pattern == "*" {
		keys = e.Keyspace.ListKeys()
	}
	items := make([]protocol.Value, len(keys))
	for i, k := range keys {
		items[i] = protocol.BulkString(k)
	}
	return protocol.ArrayValue(items), false
}

func cmdFlushAll(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	e.Keyspace.FlushAll()
	return protocol.StringValue("OK"), true
}

func cmdSave(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if err := e.SaveRDB(); err != nil {
		return protocol.ErrorValue("ERR " + err.Error()), false
	}
	return protocol.StringValue("OK"), false
}

func cmdBgSave(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if err := e.SaveRDB(); err != nil {
		return protocol.ErrorValue("ERR " + err.Error()), false
	}
	return protocol.StringValue("OK"), false
}

func cmdBgRewriteAOF(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if err := e.RewriteAOF(); err != nil {
		return protocol.ErrorValue("ERR " + err.Error()), false
	}
	return protocol.StringValue("OK"), false
}

// cmdConfig implements CONFIG GET only; there is no CONFIG SET
// surface, settings come from the config file at startup.
func cmdConfig(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	if len(args) < 1 || strings.ToUpper(string(args[0].Bulk)) != "GET" {
		return protocol.ErrorValue("ERR CONFIG supports GET only"), false
	}
	pattern := "*"
	if len(args) >= 2 {
		pattern, _ = argString(args, 1)
	}
	all := map[string]string{
		"port":                 strconv.Itoa(e.Config.Port),
		"dir":                  e.Config.Dir,
		"aof.enabled":          fmt.Sprint(e.Config.AofEnabled),
		"aof.mode":             e.Config.AofMode,
		"aof.dir":              e.Config.AofDir,
		"aof.filename":         e.Config.AofFilename,
		"aof.batch_bytes":      strconv.Itoa(e.Config.AofBatchBytes),
		"aof.batch_wait_us":    strconv.Itoa(e.Config.AofBatchWaitUs),
		"aof.prealloc_bytes":   strconv.FormatInt(e.Config.AofPreallocBytes, 10),
		"aof.sync_interval_ms": strconv.Itoa(e.Config.AofSyncIntervalMs),
		"rdb.dir":              e.Config.RdbDir,
		"rdb.filename":         e.Config.RdbFilename,
		"replicaof":            e.Config.ReplicaOf,
	}
	var items []protocol.Value
	for k, v := range all {
		if pattern != "*" && k != pattern {
			continue
		}
		items = append(items, protocol.BulkString(k), protocol.BulkString(v))
	}
	return protocol.ArrayValue(items), false
}

// cmdInfo reports server/memory/persistence/general sections. The
// memory section reads total system memory via gopsutil.
func cmdInfo(e *engine.Engine, args []protocol.Value) (protocol.Value, bool) {
	var sb strings.Builder
	sb.WriteString("# Server\r\n")
	fmt.Fprintf(&sb, "tcp_port:%d\r\n", e.Config.Port)
	fmt.Fprintf(&sb, "uptime_in_seconds:%d\r\n", int64(e.Uptime()/time.Second))

	sb.WriteString("# Memory\r\n")
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(&sb, "total_system_memory:%d\r\n", vm.Total)
	}

	sb.WriteString("# Persistence\r\n")
	fmt.Fprintf(&sb, "aof_enabled:%v\r\n", e.Config.AofEnabled)
	fmt.Fprintf(&sb, "rdb_bgsave_in_progress:%v\r\n", e.IsBgsaving())
	fmt.Fprintf(&sb, "aof_rewrite_in_progress:%v\r\n", e.IsAofRewriting())

	sb.WriteString("# General\r\n")
	fmt.Fprintf(&sb, "connections_received:%d\r\n", e.ConnectionsReceived())
	fmt.Fprintf(&sb, "commands_executed:%d\r\n", e.CommandsExecuted())

	return protocol.BulkString(sb.String()), false
}
