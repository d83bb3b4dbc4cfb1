package aof

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kvforge/goredis/internal/protocol"
	"github.com/kvforge/goredis/internal/store"
)

func openTestAOF(t *testing.T, mode Mode) *AOF {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.Mode = mode
	cfg.BatchWaitUs = 2000
	a, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAppendRawAlwaysModeBlocksUntilSynced(t *testing.T) {
	a := openTestAOF(t, ModeAlways)
	raw := protocol.EncodeCommand("SET", "k", "v")

	seq := a.AppendRaw(raw)
	if seq == 0 {
		t.Fatalf("expected nonzero sequence")
	}
	if got := a.LastSyncedSeq(); got < seq {
		t.Fatalf("expected AppendRaw to block until synced, lastSyncedSeq=%d seq=%d", got, seq)
	}
}

func TestCloseFlushesPendingItemsInNoneMode(t *testing.T) {
	a := openTestAOF(t, ModeNone)
	raw := protocol.EncodeCommand("SET", "k", "v")
	a.AppendRaw(raw)
	path := a.Path()
	a.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read aof file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected the pending item to be flushed on close")
	}
}

func TestReplayRebuildsKeyspace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appendonly.aof")

	var data []byte
	data = append(data, protocol.EncodeCommand("SET", "a", "1")...)
	data = append(data, protocol.EncodeCommand("SET", "b", "2")...)
	data = append(data, protocol.EncodeCommand("DEL", "a")...)
	data = append(data, protocol.EncodeCommand("HSET", "h", "f", "v")...)
	data = append(data, protocol.EncodeCommand("ZADD", "z", "1.5", "m")...)
	// truncated tail: a partial frame that must be tolerated, not an error
	data = append(data, []byte("*2\r\n$3\r\nDEL")...)

	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write aof fixture: %v", err)
	}

	ks := store.NewKeyspace()
	if err := Replay(path, ks); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if _, ok := ks.Get("a"); ok {
		t.Fatalf("expected a to be deleted by replay")
	}
	if v, ok := ks.Get("b"); !ok || string(v) != "2" {
		t.Fatalf("expected b=2, got %q ok=%v", v, ok)
	}
	if v, ok := ks.HGet("h", "f"); !ok || string(v) != "v" {
		t.Fatalf("expected hash field replayed, got %q ok=%v", v, ok)
	}
	if score, ok := ks.ZScore("z", "m"); !ok || score != 1.5 {
		t.Fatalf("expected zset member replayed, got %v ok=%v", score, ok)
	}
}

func TestReplaySetPreservesPXTTL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appendonly.aof")

	// A raw client SET with PX is captured verbatim, array form and
	// all, exactly as AppendRaw would see it off the wire.
	data := protocol.EncodeCommand("SET", "b", "2", "PX", "100")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write aof fixture: %v", err)
	}

	ks := store.NewKeyspace()
	if err := Replay(path, ks); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if v, ok := ks.Get("b"); !ok || string(v) != "2" {
		t.Fatalf("expected b=2 immediately after replay, got %q ok=%v", v, ok)
	}
	time.Sleep(150 * time.Millisecond)
	if _, ok := ks.Get("b"); ok {
		t.Fatalf("expected replayed PX ttl to expire the key")
	}
}

func TestReplaySkipsRejectedSetOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appendonly.aof")

	// A malformed option the live handler would have rejected (and so
	// never propagated for real) must not resurrect the key on replay.
	data := protocol.EncodeCommand("SET", "k", "v", "PX", "-5")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write aof fixture: %v", err)
	}

	ks := store.NewKeyspace()
	if err := Replay(path, ks); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if _, ok := ks.Get("k"); ok {
		t.Fatalf("expected malformed SET frame to be skipped by replay")
	}
}

func TestReplayMissingFileIsNotAnError(t *testing.T) {
	ks := store.NewKeyspace()
	if err := Replay(filepath.Join(t.TempDir(), "missing.aof"), ks); err != nil {
		t.Fatalf("expected missing file to replay as empty, got %v", err)
	}
}

func TestReplayProtocolErrorAborts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.aof")
	// malformed mid-stream: not end-of-file, an actual bad prefix
	if err := os.WriteFile(path, []byte("X3\r\n"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	ks := store.NewKeyspace()
	if err := Replay(path, ks); err == nil {
		t.Fatalf("expected a protocol error to abort replay")
	}
}

func TestRewriteProducesReplayableCompaction(t *testing.T) {
	a := openTestAOF(t, ModeEverySecond)
	ks := store.NewKeyspace()

	// The live write path: mutate the keyspace, then append the frame.
	ks.Set("a", []byte("1"), nil)
	a.AppendRaw(protocol.EncodeCommand("SET", "a", "1"))
	ks.Set("b", []byte("2"), nil)
	a.AppendRaw(protocol.EncodeCommand("SET", "b", "2"))
	ks.HSet("h", "f", []byte("v"))
	a.AppendRaw(protocol.EncodeCommand("HSET", "h", "f", "v"))
	ks.ZAdd("z", 3.0, "m")
	a.AppendRaw(protocol.EncodeCommand("ZADD", "z", "3", "m"))

	if err := a.Rewrite(ks); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	// A write landing after the swap goes to the freshly installed file.
	ks.Set("c", []byte("3"), nil)
	a.AppendRaw(protocol.EncodeCommand("SET", "c", "3"))

	// give the writer goroutine a moment to process anything enqueued
	// after the rewrite swapped the file back in
	time.Sleep(20 * time.Millisecond)
	a.Close()

	replayed := store.NewKeyspace()
	if err := Replay(a.Path(), replayed); err != nil {
		t.Fatalf("replay after rewrite: %v", err)
	}
	for _, key := range []string{"a", "b", "c"} {
		if _, ok := replayed.Get(key); !ok {
			t.Fatalf("expected %q to survive rewrite+replay", key)
		}
	}
	if v, ok := replayed.HGet("h", "f"); !ok || string(v) != "v" {
		t.Fatalf("expected hash to survive rewrite+replay, got %q ok=%v", v, ok)
	}
	if score, ok := replayed.ZScore("z", "m"); !ok || score != 3.0 {
		t.Fatalf("expected zset member to survive rewrite+replay, got %v ok=%v", score, ok)
	}
}

func TestAppendDuringSnapshotPhaseLandsInIncrementalBuffer(t *testing.T) {
	a := openTestAOF(t, ModeNone)

	// Simulate the snapshot phase: while the collect flag is up, every
	// append is mirrored into the incremental buffer that the swap
	// phase will flush into the temp file.
	a.incrMu.Lock()
	a.incrCollect = true
	a.incrBuf = a.incrBuf[:0]
	a.incrMu.Unlock()

	raw := protocol.EncodeCommand("SET", "mid", "1")
	a.AppendRaw(raw)

	a.incrMu.Lock()
	got := len(a.incrBuf)
	var captured []byte
	if got == 1 {
		captured = a.incrBuf[0]
	}
	a.incrCollect = false
	a.incrMu.Unlock()

	if got != 1 {
		t.Fatalf("expected 1 buffered command, got %d", got)
	}
	if string(captured) != string(raw) {
		t.Fatalf("buffered bytes differ from appended bytes: %q vs %q", captured, raw)
	}
}

func TestRewriteRejectsConcurrentRewrite(t *testing.T) {
	a := openTestAOF(t, ModeNone)
	ks := store.NewKeyspace()

	atomic.StoreInt32(&a.rewriting, 1)
	defer atomic.StoreInt32(&a.rewriting, 0)

	if err := a.Rewrite(ks); err != ErrRewriteInProgress {
		t.Fatalf("expected ErrRewriteInProgress, got %v", err)
	}
}
