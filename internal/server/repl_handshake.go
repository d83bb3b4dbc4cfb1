/*
file: goredis/internal/server/repl_handshake.go
*/
package server

import (
	"net"
	"os"
	"strconv"

	"github.com/kvforge/goredis/internal/engine"
	"github.com/kvforge/goredis/internal/protocol"
	"github.com/kvforge/goredis/internal/repl"
)

// handleReplHandshake services SYNC and PSYNC. A PSYNC whose offset is
// still covered by the backlog gets the tail offset plus the missed
// slice; anything else falls through to a full resync. Registration
// happens under the hub mutex (see repl.Hub), so no mutation can land
// between the bytes the replica was handed and the first streamed
// command. Returns false if the connection should be closed.
func handleReplHandshake(e *engine.Engine, c net.Conn, v protocol.Value, session *replicaSession) bool {
	if session.active {
		// Already promoted; a second handshake on the same connection
		// is a protocol misuse we just ignore.
		return true
	}

	if v.CommandName() == "PSYNC" {
		args := v.Args()
		if len(args) == 1 {
			offset, err := strconv.ParseInt(string(args[0].Bulk), 10, 64)
			if err == nil {
				s, serr := e.Hub.SyncPartial(c, offset, func(tail int64, slice []byte) error {
					out := protocol.EncodeBytes(protocol.StringValue("OFFSET " + strconv.FormatInt(tail, 10)))
					out = append(out, slice...)
					_, werr := c.Write(out)
					return werr
				})
				if serr == nil {
					session.active = true
					session.id = s.ID
					return true
				}
				if serr != repl.ErrOutsideBacklog {
					return false
				}
				// offset fell out of the backlog window: full resync.
			}
		}
	}

	return fullResync(e, c, session)
}

// fullResync takes a fresh snapshot, sends it as a bulk string
// followed by the current tail offset, and promotes the connection.
func fullResync(e *engine.Engine, c net.Conn, session *replicaSession) bool {
	s, err := e.Hub.SyncFull(c, func(tail int64) error {
		if serr := e.SaveRDB(); serr != nil {
			return serr
		}
		data, rerr := os.ReadFile(e.RDBPath())
		if rerr != nil {
			return rerr
		}
		out := protocol.EncodeBytes(protocol.BulkValue(data))
		out = append(out, protocol.EncodeBytes(protocol.StringValue("OFFSET "+strconv.FormatInt(tail, 10)))...)
		_, werr := c.Write(out)
		return werr
	})
	if err != nil {
		c.Write(protocol.EncodeBytes(protocol.ErrorValue("ERR " + err.Error())))
		return false
	}
	session.active = true
	session.id = s.ID
	return true
}
