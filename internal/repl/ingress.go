/*
file: goredis/internal/repl/ingress.go
*/
package repl

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kvforge/goredis/internal/common"
	"github.com/kvforge/goredis/internal/protocol"
	"github.com/kvforge/goredis/internal/rdb"
	"github.com/kvforge/goredis/internal/store"
)

// Ingress runs the replica side of the handshake against a primary:
// dial, send SYNC or PSYNC depending on the last known offset, load
// whatever RDB bulk arrives, then apply the command stream directly
// against the keyspace, bypassing the AOF entirely.
type Ingress struct {
	PrimaryAddr string
	RDBPath     string
	Keyspace    *store.Keyspace

	lastOffset int64 // atomic
	stopCh     chan struct{}

	connMu sync.Mutex
	conn   net.Conn
	closed bool
}

func NewIngress(primaryAddr, rdbPath string, ks *store.Keyspace) *Ingress {
	return &Ingress{
		PrimaryAddr: primaryAddr,
		RDBPath:     rdbPath,
		Keyspace:    ks,
		stopCh:      make(chan struct{}),
	}
}

func (in *Ingress) LastOffset() int64 { return atomic.LoadInt64(&in.lastOffset) }

// Stop ends the current and any future Run call. A Run blocked on a
// connection read is unblocked by closing that connection.
func (in *Ingress) Stop() {
	in.connMu.Lock()
	defer in.connMu.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	close(in.stopCh)
	if in.conn != nil {
		in.conn.Close()
	}
}

// Run connects once and streams until the connection drops or Stop is
// called. Callers typically loop Run with a backoff on error.
func (in *Ingress) Run() error {
	in.connMu.Lock()
	if in.closed {
		in.connMu.Unlock()
		return nil
	}
	in.connMu.Unlock()

	conn, err := net.Dial("tcp", in.PrimaryAddr)
	if err != nil {
		return fmt.Errorf("repl ingress: dial %s: %w", in.PrimaryAddr, err)
	}
	defer conn.Close()

	in.connMu.Lock()
	if in.closed {
		in.connMu.Unlock()
		return nil
	}
	in.conn = conn
	in.connMu.Unlock()

	last := in.LastOffset()
	if last > 0 {
		conn.Write(protocol.EncodeCommand("PSYNC", strconv.FormatInt(last, 10)))
	} else {
		conn.Write(protocol.EncodeCommand("SYNC"))
	}

	p := protocol.NewParser()
	buf := make([]byte, 64*1024)

	readValue := func() (protocol.Value, error) {
		for {
			v, ok, err := p.TryParseOne()
			if err != nil {
				return protocol.Value{}, err
			}
			if ok {
				return v, nil
			}
			n, err := conn.Read(buf)
			if err != nil {
				return protocol.Value{}, err
			}
			p.Feed(buf[:n])
		}
	}

	first, err := readValue()
	if err != nil {
		return fmt.Errorf("repl ingress: handshake: %w", err)
	}

	if first.Type == protocol.Bulk && !first.IsNull {
		// Full resync: the bulk is a complete RDB snapshot that
		// replaces whatever this replica held. Write it to the local
		// RDB file and load it the same way startup does.
		if err := writeFileAtomic(in.RDBPath, first.Bulk); err != nil {
			return fmt.Errorf("repl ingress: write rdb: %w", err)
		}
		in.Keyspace.FlushAll()
		if err := rdb.Load(in.RDBPath, in.Keyspace); err != nil {
			return fmt.Errorf("repl ingress: load rdb: %w", err)
		}
		// The OFFSET header announcing the post-snapshot tail follows.
		hdr, err := readValue()
		if err != nil {
			return fmt.Errorf("repl ingress: offset after rdb: %w", err)
		}
		if off, ok := parseOffsetHeader(hdr); ok {
			atomic.StoreInt64(&in.lastOffset, off)
		}
	} else if off, ok := parseOffsetHeader(first); ok {
		// Partial resync: the backlog slice starts immediately, already
		// framed the same way the live stream is.
		atomic.StoreInt64(&in.lastOffset, off)
	} else {
		return fmt.Errorf("repl ingress: unexpected handshake reply %+v", first)
	}

	for {
		hdr, err := readValue()
		if err != nil {
			select {
			case <-in.stopCh:
				return nil
			default:
				return fmt.Errorf("repl ingress: stream: %w", err)
			}
		}
		off, ok := parseOffsetHeader(hdr)
		if !ok {
			continue // forward-compatible: ignore anything that isn't an offset header
		}
		cmd, err := readValue()
		if err != nil {
			return fmt.Errorf("repl ingress: stream command: %w", err)
		}
		applyCommand(in.Keyspace, cmd)
		atomic.StoreInt64(&in.lastOffset, off)
	}
}

func parseOffsetHeader(v protocol.Value) (int64, bool) {
	if v.Type != protocol.SimpleString {
		return 0, false
	}
	rest, found := strings.CutPrefix(v.Str, "OFFSET ")
	if !found {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func applyCommand(ks *store.Keyspace, v protocol.Value) {
	args := v.Args()
	str := func(i int) string {
		if i >= len(args) {
			return ""
		}
		return string(args[i].Bulk)
	}
	switch v.CommandName() {
	case "SET":
		if len(args) >= 2 {
			opts := make([]string, 0, len(args)-2)
			for i := 2; i < len(args); i++ {
				opts = append(opts, str(i))
			}
			if ttlMs, ok := common.ParseSetTTL(opts); ok {
				ks.Set(str(0), args[1].Bulk, ttlMs)
			}
		}
	case "DEL":
		keys := make([]string, len(args))
		for i := range args {
			keys[i] = str(i)
		}
		ks.Del(keys)
	case "EXPIRE":
		if len(args) >= 2 {
			if seconds, err := strconv.ParseInt(str(1), 10, 64); err == nil {
				ks.Expire(str(0), seconds)
			}
		}
	case "HSET":
		if len(args) >= 3 {
			ks.HSet(str(0), str(1), args[2].Bulk)
		}
	case "HDEL":
		if len(args) >= 2 {
			fields := make([]string, len(args)-1)
			for i := 1; i < len(args); i++ {
				fields[i-1] = str(i)
			}
			ks.HDel(str(0), fields)
		}
	case "ZADD":
		if len(args) >= 3 {
			if score, err := strconv.ParseFloat(str(1), 64); err == nil {
				ks.ZAdd(str(0), score, str(2))
			}
		}
	case "ZREM":
		if len(args) >= 2 {
			members := make([]string, len(args)-1)
			for i := 1; i < len(args); i++ {
				members[i-1] = str(i)
			}
			ks.ZRem(str(0), members)
		}
	case "FLUSHALL":
		ks.FlushAll()
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".ingress.tmp"
	if err := writeFile(tmp, data); err != nil {
		return err
	}
	return renameFile(tmp, path)
}

// RetryLoop runs Run in a loop with a fixed backoff until Stop is
// called, the way a background replica-ingress task is expected to
// reconnect after the primary restarts.
func RetryLoop(in *Ingress, backoff time.Duration) {
	for {
		select {
		case <-in.stopCh:
			return
		default:
		}
		if err := in.Run(); err != nil {
			time.Sleep(backoff)
		}
	}
}
