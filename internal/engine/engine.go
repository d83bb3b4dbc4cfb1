/*
file: goredis/internal/engine/engine.go
*/

// Package engine wires the durable store together: keyspace, AOF,
// RDB, and the replication hub, behind the single value the server
// loop and command handlers talk to.
package engine

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/kvforge/goredis/internal/aof"
	"github.com/kvforge/goredis/internal/common"
	"github.com/kvforge/goredis/internal/rdb"
	"github.com/kvforge/goredis/internal/repl"
	"github.com/kvforge/goredis/internal/store"
)

const replBacklogCapBytes = 4 * 1024 * 1024

// Engine is the boundary value the command dispatcher and the server
// loop operate on: the keyspace plus its durability and replication
// machinery, plus the handful of counters INFO reports.
type Engine struct {
	Config *common.Config
	Logger *common.Logger

	Keyspace *store.Keyspace
	AOF      *aof.AOF // nil when aof.enabled is false
	Hub      *repl.Hub
	Ingress  *repl.Ingress // non-nil when running as a replica

	rdbPath string

	startTime time.Time

	connectionsReceived int64 // atomic
	commandsExecuted    int64 // atomic
	bgsaving            int32 // atomic bool
	aofRewriting        int32 // atomic bool
}

// New boots an Engine: load any RDB snapshot, replay the AOF on top
// of it (the AOF takes precedence for the keys it covers), then start
// the AOF writer and, if configured as a replica, the ingress loop.
func New(cfg *common.Config, logger *common.Logger) (*Engine, error) {
	e := &Engine{
		Config:    cfg,
		Logger:    logger,
		Keyspace:  store.NewKeyspace(),
		Hub:       repl.NewHub(replBacklogCapBytes),
		rdbPath:   filepath.Join(cfg.RdbDir, cfg.RdbFilename),
		startTime: time.Now(),
	}

	if err := rdb.Load(e.rdbPath, e.Keyspace); err != nil {
		return nil, fmt.Errorf("engine: load rdb: %w", err)
	}

	if cfg.AofEnabled {
		mode, err := aof.ParseMode(cfg.AofMode)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		aofPath := filepath.Join(cfg.AofDir, cfg.AofFilename)
		if err := aof.Replay(aofPath, e.Keyspace); err != nil {
			return nil, fmt.Errorf("engine: replay aof: %w", err)
		}

		a, err := aof.Open(aof.Config{
			Enabled:        true,
			Mode:           mode,
			Dir:            cfg.AofDir,
			Filename:       cfg.AofFilename,
			BatchBytes:     cfg.AofBatchBytes,
			BatchWaitUs:    cfg.AofBatchWaitUs,
			PreallocBytes:  cfg.AofPreallocBytes,
			SyncIntervalMs: cfg.AofSyncIntervalMs,
		})
		if err != nil {
			return nil, fmt.Errorf("engine: open aof: %w", err)
		}
		e.AOF = a
	}

	if cfg.ReplicaOf != "" {
		e.Ingress = repl.NewIngress(cfg.ReplicaOf, e.rdbPath, e.Keyspace)
		go repl.RetryLoop(e.Ingress, time.Second)
	}

	return e, nil
}

func (e *Engine) RDBPath() string { return e.rdbPath }

// Propagate is the single point every mutating command passes
// through: it appends the verbatim command bytes to the AOF (when
// enabled) and broadcasts them to connected replicas via the hub.
// AOF append happens first, so a command is never visible on the
// replica stream before the primary has at least queued it durably.
func (e *Engine) Propagate(raw []byte) {
	if e.AOF != nil {
		e.AOF.AppendRaw(raw)
	}
	e.Hub.Propagate(raw)
}

// SaveRDB takes a synchronous snapshot. BGSAVE and SAVE both call
// this; the snapshot copy is taken under the keyspace mutex and the
// file write happens on the calling goroutine.
func (e *Engine) SaveRDB() error {
	atomic.StoreInt32(&e.bgsaving, 1)
	defer atomic.StoreInt32(&e.bgsaving, 0)
	return rdb.Save(e.rdbPath, e.Keyspace)
}

func (e *Engine) RewriteAOF() error {
	if e.AOF == nil {
		return fmt.Errorf("aof is not enabled")
	}
	atomic.StoreInt32(&e.aofRewriting, 1)
	defer atomic.StoreInt32(&e.aofRewriting, 0)
	return e.AOF.Rewrite(e.Keyspace)
}

func (e *Engine) IsBgsaving() bool     { return atomic.LoadInt32(&e.bgsaving) != 0 }
func (e *Engine) IsAofRewriting() bool { return atomic.LoadInt32(&e.aofRewriting) != 0 }

func (e *Engine) IncrConnectionsReceived() int64 { return atomic.AddInt64(&e.connectionsReceived, 1) }
func (e *Engine) ConnectionsReceived() int64     { return atomic.LoadInt64(&e.connectionsReceived) }
func (e *Engine) IncrCommandsExecuted() int64    { return atomic.AddInt64(&e.commandsExecuted, 1) }
func (e *Engine) CommandsExecuted() int64        { return atomic.LoadInt64(&e.commandsExecuted) }
func (e *Engine) Uptime() time.Duration          { return time.Since(e.startTime) }

// Shutdown performs the final persistence pass on SIGINT/SIGTERM: a
// last RDB save, then flush and close the AOF.
func (e *Engine) Shutdown() {
	if err := e.SaveRDB(); err != nil {
		e.Logger.Error("final rdb save failed: %v", err)
	}
	if e.Ingress != nil {
		e.Ingress.Stop()
	}
	if e.AOF != nil {
		if err := e.AOF.Close(); err != nil {
			e.Logger.Error("aof close failed: %v", err)
		}
	}
}
