/*
file: goredis/internal/aof/replay.go
*/
package aof

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kvforge/goredis/internal/common"
	"github.com/kvforge/goredis/internal/protocol"
	"github.com/kvforge/goredis/internal/store"
)

// Replay reads path in its entirety and replays the recognized
// mutating commands against ks. A missing file is not an error (empty
// log). A truncated final frame is silently tolerated; any other
// parse error aborts with an error, since that indicates on-disk
// corruption rather than an interrupted write.
func Replay(path string, ks *store.Keyspace) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("aof replay: read %s: %w", path, err)
	}

	p := protocol.NewParser()
	p.Feed(data)

	for {
		v, ok, err := p.TryParseOne()
		if err != nil {
			return fmt.Errorf("aof replay: %w", err)
		}
		if !ok {
			break // remaining bytes are an incomplete tail frame; tolerated
		}
		applyReplayed(ks, v)
	}
	return nil
}

func applyReplayed(ks *store.Keyspace, v protocol.Value) {
	args := v.Args()
	str := func(i int) string {
		if i >= len(args) {
			return ""
		}
		return string(args[i].Bulk)
	}

	switch v.CommandName() {
	case "SET":
		if len(args) < 2 {
			return
		}
		opts := make([]string, 0, len(args)-2)
		for i := 2; i < len(args); i++ {
			opts = append(opts, str(i))
		}
		ttlMs, ok := common.ParseSetTTL(opts)
		if !ok {
			return // a command the primary itself rejected must never land in the keyspace
		}
		ks.Set(str(0), args[1].Bulk, ttlMs)
	case "DEL":
		keys := make([]string, len(args))
		for i := range args {
			keys[i] = str(i)
		}
		ks.Del(keys)
	case "EXPIRE":
		if len(args) < 2 {
			return
		}
		seconds, err := strconv.ParseInt(str(1), 10, 64)
		if err != nil {
			return
		}
		ks.Expire(str(0), seconds)
	case "HSET":
		if len(args) < 3 {
			return
		}
		ks.HSet(str(0), str(1), args[2].Bulk)
	case "HDEL":
		if len(args) < 2 {
			return
		}
		fields := make([]string, len(args)-1)
		for i := 1; i < len(args); i++ {
			fields[i-1] = str(i)
		}
		ks.HDel(str(0), fields)
	case "ZADD":
		if len(args) < 3 {
			return
		}
		score, err := strconv.ParseFloat(str(1), 64)
		if err != nil {
			return
		}
		ks.ZAdd(str(0), score, str(2))
	case "ZREM":
		if len(args) < 2 {
			return
		}
		members := make([]string, len(args)-1)
		for i := 1; i < len(args); i++ {
			members[i-1] = str(i)
		}
		ks.ZRem(str(0), members)
	case "FLUSHALL":
		ks.FlushAll()
	default:
		// unknown commands are ignored for forward compatibility
	}
}
