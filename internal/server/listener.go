/*
file: goredis/internal/server/listener.go
*/
package server

import (
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/kvforge/goredis/internal/engine"
	"github.com/kvforge/goredis/internal/protocol"
)

// Active expiration runs on a 200ms tick, sampling up to 64 entries
// of the expiration index per sweep so a large keyspace never stalls
// command processing.
const expireTickInterval = 200 * time.Millisecond

const expireScanStepSize = 64

// Listen starts the TCP listener. The accept loop itself runs in
// Serve, one goroutine per accepted connection over blocking
// net.Conn reads. Per-connection reply ordering and AOF/backlog
// append ordering both hold because a command is dispatched,
// propagated and answered on the connection's own goroutine before
// its next read.
func Listen(e *engine.Engine) (net.Listener, error) {
	l, err := net.Listen("tcp", ":"+strconv.Itoa(e.Config.Port))
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Serve runs the accept loop on l. It returns once l is closed.
func Serve(e *engine.Engine, l net.Listener) {
	stop := make(chan struct{})
	defer close(stop)
	go runExpireTicker(e, stop)

	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		e.IncrConnectionsReceived()
		go serveConn(e, conn)
	}
}

func runExpireTicker(e *engine.Engine, stop <-chan struct{}) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(expireTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Keyspace.ExpireScanStep(expireScanStepSize, rng)
		case <-stop:
			return
		}
	}
}

// serveConn holds the per-connection state: the incremental parser,
// and the replica flag set by SYNC/PSYNC. There is no output chunk
// queue to cursor through; with a goroutine per connection, conn.Write
// already blocks until the reply is fully written.
func serveConn(e *engine.Engine, c net.Conn) {
	defer c.Close()

	parser := protocol.NewParser()
	buf := make([]byte, 64*1024)
	var session replicaSession
	defer func() {
		if session.active {
			e.Hub.RemoveSession(session.id)
		}
	}()

	for {
		v, raw, ok, perr := parser.TryParseOneWithRaw()
		if perr != nil {
			c.Write(protocol.EncodeBytes(protocol.ErrorValue("ERR protocol error")))
			return
		}
		if !ok {
			n, err := c.Read(buf)
			if err != nil {
				return
			}
			parser.Feed(buf[:n])
			continue
		}

		name := v.CommandName()
		if IsReplHandshake(name) {
			if !handleReplHandshake(e, c, v, &session) {
				return
			}
			continue
		}
		if session.active {
			// A promoted replica connection is never recycled as a
			// normal client; anything else it sends is dropped.
			continue
		}

		e.IncrCommandsExecuted()
		reply, mutating := Dispatch(e, v)
		if mutating {
			// Durability before visibility: in ModeAlways this blocks
			// until the AOF writer has fsynced the command, so the
			// client never observes a successful reply the primary
			// could still lose on crash.
			e.Propagate(raw)
		}
		if _, err := c.Write(protocol.EncodeBytes(reply)); err != nil {
			return
		}
	}
}

// replicaSession tracks whether this connection was promoted to a
// replica by SYNC/PSYNC, and the hub handle to unregister on close.
type replicaSession struct {
	active bool
	id     uint64
}
