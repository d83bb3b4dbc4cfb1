/*
file: goredis/internal/aof/rewrite.go
*/
package aof

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/kvforge/goredis/internal/protocol"
	"github.com/kvforge/goredis/internal/store"
)

var ErrRewriteInProgress = errors.New("aof: rewrite already in progress")

// Rewrite runs the three-phase background compaction: a consistent
// snapshot of the keyspace is written to a temp file while live
// writes keep landing in both the real log and an incremental
// buffer; then, under a short pause of the writer goroutine, the
// incremental buffer is appended to the temp file and swapped in for
// the old log. Only one rewrite can run at a time.
func (a *AOF) Rewrite(ks *store.Keyspace) error {
	if !atomic.CompareAndSwapInt32(&a.rewriting, 0, 1) {
		return ErrRewriteInProgress
	}
	defer atomic.StoreInt32(&a.rewriting, 0)

	tmpPath := a.path + ".rewrite.tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("aof rewrite: open temp: %w", err)
	}

	a.incrMu.Lock()
	a.incrCollect = true
	a.incrBuf = a.incrBuf[:0]
	a.incrMu.Unlock()

	if err := writeSnapshot(tmp, ks); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		a.incrMu.Lock()
		a.incrCollect = false
		a.incrMu.Unlock()
		return fmt.Errorf("aof rewrite: snapshot: %w", err)
	}

	// Swap phase: pause the writer goroutine so no concurrent write
	// lands on the old file descriptor while we swap it out.
	a.requestPause()

	a.incrMu.Lock()
	incr := a.incrBuf
	a.incrBuf = nil
	a.incrCollect = false
	a.incrMu.Unlock()

	for _, cmd := range incr {
		if _, err := tmp.Write(cmd); err != nil {
			tmp.Close()
			a.resume()
			return fmt.Errorf("aof rewrite: append incremental: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		a.resume()
		return fmt.Errorf("aof rewrite: sync temp: %w", err)
	}

	a.fileMu.Lock()
	_ = a.file.Close()
	if err := tmp.Close(); err != nil {
		a.fileMu.Unlock()
		a.resume()
		return fmt.Errorf("aof rewrite: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, a.path); err != nil {
		a.fileMu.Unlock()
		a.resume()
		return fmt.Errorf("aof rewrite: rename: %w", err)
	}
	newFile, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		a.fileMu.Unlock()
		a.resume()
		return fmt.Errorf("aof rewrite: reopen: %w", err)
	}
	a.file = newFile
	a.fileMu.Unlock()

	fsyncParentDir(a.path)

	a.resume()
	return nil
}

func writeSnapshot(f *os.File, ks *store.Keyspace) error {
	w := bufio.NewWriterSize(f, 64*1024)
	nowMs := ks.NowMs()

	for key, rec := range ks.SnapshotStrings() {
		writeCmd(w, "SET", key, string(rec.Value))
		if rec.ExpireAtMs >= 0 {
			writeCmd(w, "EXPIRE", key, strconv.FormatInt(relativeSeconds(rec.ExpireAtMs, nowMs), 10))
		}
	}
	for key, rec := range ks.SnapshotHash() {
		for field, value := range rec.Fields {
			writeCmd(w, "HSET", key, field, string(value))
		}
		if rec.ExpireAtMs >= 0 {
			writeCmd(w, "EXPIRE", key, strconv.FormatInt(relativeSeconds(rec.ExpireAtMs, nowMs), 10))
		}
	}
	for key, snap := range ks.SnapshotZSet() {
		for _, m := range snap.Members {
			writeCmd(w, "ZADD", key, strconv.FormatFloat(m.Score, 'f', -1, 64), m.Member)
		}
		if snap.ExpireAtMs >= 0 {
			writeCmd(w, "EXPIRE", key, strconv.FormatInt(relativeSeconds(snap.ExpireAtMs, nowMs), 10))
		}
	}
	return w.Flush()
}

// relativeSeconds converts an absolute millisecond deadline into the
// relative EXPIRE argument a replay at nowMs would need to reproduce
// it, rounded up and floored at 1 (EXPIRE never replays as a no-op
// deadline).
func relativeSeconds(expireAtMs, nowMs int64) int64 {
	remain := int64(math.Ceil(float64(expireAtMs-nowMs) / 1000.0))
	if remain < 1 {
		remain = 1
	}
	return remain
}

func writeCmd(w *bufio.Writer, parts ...string) {
	w.Write(protocol.EncodeCommand(parts...))
}
