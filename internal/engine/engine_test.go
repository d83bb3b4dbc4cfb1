package engine

import (
	"strconv"
	"testing"

	"github.com/kvforge/goredis/internal/common"
	"github.com/kvforge/goredis/internal/protocol"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := common.NewConfig()
	cfg.Dir = dir
	cfg.RdbDir = dir
	cfg.AofDir = dir
	cfg.AofEnabled = true
	cfg.AofMode = "always"
	cfg.AofPreallocBytes = 0
	return cfg
}

// The keyspace mutation plus Propagate pair below is exactly what a
// command handler does on the live path: apply, then hand the
// verbatim frame to the AOF and the replication hub.
func TestRestartReplaysAOFWithoutSnapshot(t *testing.T) {
	cfg := testConfig(t)
	logger := common.NewLogger()

	e, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e.Keyspace.Set("a", []byte("1"), nil)
	e.Propagate(protocol.EncodeCommand("SET", "a", "1"))
	e.Keyspace.HSet("h", "f", []byte("v"))
	e.Propagate(protocol.EncodeCommand("HSET", "h", "f", "v"))
	e.Keyspace.ZAdd("z", 2.5, "m")
	e.Propagate(protocol.EncodeCommand("ZADD", "z", "2.5", "m"))

	// No Shutdown: the process "crashes" before any RDB save, so the
	// restart below recovers from the AOF alone. In always mode every
	// Propagate above returned only after its fsync.
	e.AOF.Close()

	e2, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	defer e2.Shutdown()

	if v, ok := e2.Keyspace.Get("a"); !ok || string(v) != "1" {
		t.Fatalf("expected a=1 after restart, got %q ok=%v", v, ok)
	}
	if v, ok := e2.Keyspace.HGet("h", "f"); !ok || string(v) != "v" {
		t.Fatalf("expected h.f=v after restart, got %q ok=%v", v, ok)
	}
	if score, ok := e2.Keyspace.ZScore("z", "m"); !ok || score != 2.5 {
		t.Fatalf("expected z.m=2.5 after restart, got %v ok=%v", score, ok)
	}
}

func TestRewriteKeepsStateAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	logger := common.NewLogger()

	e, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 50; i++ {
		key := "k" + strconv.Itoa(i)
		e.Keyspace.Set(key, []byte(strconv.Itoa(i)), nil)
		e.Propagate(protocol.EncodeCommand("SET", key, strconv.Itoa(i)))
	}
	e.Keyspace.Del([]string{"k0", "k1"})
	e.Propagate(protocol.EncodeCommand("DEL", "k0", "k1"))

	if err := e.RewriteAOF(); err != nil {
		t.Fatalf("RewriteAOF: %v", err)
	}

	// A command accepted after the rewrite swapped files in must land
	// in the new log.
	e.Keyspace.Set("post", []byte("1"), nil)
	e.Propagate(protocol.EncodeCommand("SET", "post", "1"))

	e.AOF.Close()

	e2, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	defer e2.Shutdown()

	for i := 2; i < 50; i++ {
		key := "k" + strconv.Itoa(i)
		if v, ok := e2.Keyspace.Get(key); !ok || string(v) != strconv.Itoa(i) {
			t.Fatalf("expected %s=%d after rewrite+restart, got %q ok=%v", key, i, v, ok)
		}
	}
	for _, key := range []string{"k0", "k1"} {
		if _, ok := e2.Keyspace.Get(key); ok {
			t.Fatalf("expected deleted key %s to stay gone after rewrite+restart", key)
		}
	}
	if v, ok := e2.Keyspace.Get("post"); !ok || string(v) != "1" {
		t.Fatalf("expected post-rewrite write to survive restart, got %q ok=%v", v, ok)
	}
}

func TestRewriteAOFErrorsWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.AofEnabled = false
	e, err := New(cfg, common.NewLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Shutdown()
	if err := e.RewriteAOF(); err == nil {
		t.Fatalf("expected RewriteAOF to error with aof disabled")
	}
}
