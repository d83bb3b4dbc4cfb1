/*
file: goredis/internal/aof/aof.go
*/

// Package aof implements the append-only durability log: a bounded
// queue feeding a single batching writer goroutine, three durability
// modes, and the background rewrite/compaction protocol. The queue is
// a channel; the incremental-buffer mutex, the pause mutex and the
// file mutex are independent locks and are never held at the same time.
package aof

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kvforge/goredis/internal/protocol"
)

// Mode selects how aggressively the writer fsyncs.
type Mode int

const (
	ModeNone Mode = iota
	ModeEverySecond
	ModeAlways
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "none":
		return ModeNone, nil
	case "every_second":
		return ModeEverySecond, nil
	case "always":
		return ModeAlways, nil
	default:
		return ModeNone, fmt.Errorf("aof: unknown mode %q", s)
	}
}

// Config mirrors the recognized aof.* configuration keys.
type Config struct {
	Enabled         bool
	Mode            Mode
	Dir             string
	Filename        string
	BatchBytes      int
	BatchWaitUs     int
	PreallocBytes   int64
	SyncIntervalMs  int
}

func DefaultConfig() Config {
	return Config{
		Mode:           ModeEverySecond,
		Filename:       "appendonly.aof",
		BatchBytes:     256 * 1024,
		BatchWaitUs:    1500,
		PreallocBytes:  64 * 1024 * 1024,
		SyncIntervalMs: 1000,
	}
}

type item struct {
	seq     uint64
	data    []byte
	commit  chan struct{} // non-nil only under ModeAlways
}

// AOF owns the on-disk log file and the writer goroutine.
type AOF struct {
	cfg  Config
	path string

	file   *os.File
	fileMu sync.Mutex // guards file swaps during rewrite

	itemCh    chan *item
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	nextSeq       uint64 // atomic
	lastSyncedSeq uint64 // atomic

	pauseMu        sync.Mutex
	pauseCond      *sync.Cond
	pauseRequested bool
	paused         bool

	incrMu        sync.Mutex
	incrCollect   bool
	incrBuf       [][]byte

	rewriting int32 // atomic CAS flag

	nowFn func() time.Time
}

// Open creates the AOF directory and file if needed, best-effort
// preallocates it, and starts the writer goroutine.
func Open(cfg Config) (*AOF, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("aof: mkdir %s: %w", cfg.Dir, err)
	}
	path := filepath.Join(cfg.Dir, cfg.Filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("aof: open %s: %w", path, err)
	}
	if cfg.PreallocBytes > 0 {
		preallocate(f, cfg.PreallocBytes) // best-effort, never fatal
	}

	a := &AOF{
		cfg:    cfg,
		path:   path,
		file:   f,
		itemCh: make(chan *item, 4096),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		nowFn:  time.Now,
	}
	a.pauseCond = sync.NewCond(&a.pauseMu)

	go a.run()
	return a, nil
}

func (a *AOF) Path() string { return a.path }

// AppendRaw pushes bytes captured verbatim from the client. In
// ModeAlways the caller blocks until the writer has fsynced the
// assigned sequence number.
func (a *AOF) AppendRaw(raw []byte) uint64 {
	return a.enqueue(raw)
}

// AppendCommand serializes parts as a RESP array and pushes it, for
// callers that have no raw client bytes to pass. The rewrite path does
// not use it: it writes its compacted frames straight to the temp file.
func (a *AOF) AppendCommand(parts ...string) uint64 {
	return a.enqueue(protocol.EncodeCommand(parts...))
}

func (a *AOF) enqueue(data []byte) uint64 {
	seq := atomic.AddUint64(&a.nextSeq, 1)

	a.incrMu.Lock()
	if a.incrCollect {
		a.incrBuf = append(a.incrBuf, append([]byte(nil), data...))
	}
	a.incrMu.Unlock()

	it := &item{seq: seq, data: data}
	if a.cfg.Mode == ModeAlways {
		it.commit = make(chan struct{})
	}
	select {
	case a.itemCh <- it:
	case <-a.doneCh:
		return seq
	}

	if it.commit != nil {
		// Block until the writer has fsynced this sequence number, or
		// until shutdown releases every remaining waiter.
		select {
		case <-it.commit:
		case <-a.doneCh:
		}
	}
	return seq
}

// LastSyncedSeq reports the highest sequence number durably fsynced
// so far.
func (a *AOF) LastSyncedSeq() uint64 {
	return atomic.LoadUint64(&a.lastSyncedSeq)
}

func (a *AOF) run() {
	defer close(a.doneCh)

	var lastSync time.Time
	waitDur := time.Duration(a.cfg.BatchWaitUs) * time.Microsecond
	if waitDur <= 0 {
		waitDur = time.Millisecond
	}
	timer := time.NewTimer(waitDur)
	defer timer.Stop()

	for {
		a.waitWhilePaused()

		select {
		case <-a.stopCh:
			a.drainRemaining()
			_ = a.file.Sync()
			_ = a.file.Close()
			return

		case first := <-a.itemCh:
			batch := a.collectBatch(first)
			a.writeBatch(batch)
			lastSync = a.maybeSync(batch, lastSync)
			timer.Reset(waitDur)

		case <-timer.C:
			if a.cfg.Mode == ModeEverySecond && a.nowFn().Sub(lastSync) >= time.Duration(a.cfg.SyncIntervalMs)*time.Millisecond {
				_ = a.file.Sync()
				lastSync = a.nowFn()
			}
			timer.Reset(waitDur)
		}
	}
}

// collectBatch drains up to 64 items or batch_bytes worth, starting
// from an already-received first item.
func (a *AOF) collectBatch(first *item) []*item {
	batch := []*item{first}
	n := len(first.data)
	for len(batch) < 64 && n < a.cfg.BatchBytes {
		select {
		case it := <-a.itemCh:
			batch = append(batch, it)
			n += len(it.data)
		default:
			return batch
		}
	}
	return batch
}

// writeBatch performs the vectored-write discipline: write each
// item's bytes in order, retrying on a short write by advancing the
// cursor, backing off briefly on other errors.
func (a *AOF) writeBatch(batch []*item) {
	for _, it := range batch {
		buf := it.data
		for len(buf) > 0 {
			n, err := a.file.Write(buf)
			if err != nil {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			buf = buf[n:]
		}
	}
}

func (a *AOF) maybeSync(batch []*item, lastSync time.Time) time.Time {
	switch a.cfg.Mode {
	case ModeAlways:
		_ = a.file.Sync()
		maxSeq := uint64(0)
		for _, it := range batch {
			if it.seq > maxSeq {
				maxSeq = it.seq
			}
		}
		// Sequence numbers are handed out before items land on the
		// channel, so a batch can carry a smaller max than one already
		// synced. Never move the watermark backwards.
		if atomic.LoadUint64(&a.lastSyncedSeq) < maxSeq {
			atomic.StoreUint64(&a.lastSyncedSeq, maxSeq)
		}
		for _, it := range batch {
			if it.commit != nil {
				close(it.commit)
			}
		}
		return a.nowFn()
	case ModeEverySecond:
		if a.nowFn().Sub(lastSync) >= time.Duration(a.cfg.SyncIntervalMs)*time.Millisecond {
			_ = a.file.Sync()
			return a.nowFn()
		}
		return lastSync
	default: // ModeNone
		return lastSync
	}
}

func (a *AOF) drainRemaining() {
	for {
		select {
		case it := <-a.itemCh:
			a.writeBatch([]*item{it})
			if it.commit != nil {
				close(it.commit)
			}
		default:
			return
		}
	}
}

func (a *AOF) waitWhilePaused() {
	a.pauseMu.Lock()
	defer a.pauseMu.Unlock()
	if a.pauseRequested {
		a.paused = true
		a.pauseCond.Broadcast()
		for a.pauseRequested {
			a.pauseCond.Wait()
		}
		a.paused = false
	}
}

// requestPause blocks until the writer goroutine has parked itself
// in the paused state. Must be paired with resume().
func (a *AOF) requestPause() {
	a.pauseMu.Lock()
	a.pauseRequested = true
	a.pauseMu.Unlock()

	a.pauseMu.Lock()
	for !a.paused {
		a.pauseCond.Wait()
	}
	a.pauseMu.Unlock()
}

func (a *AOF) resume() {
	a.pauseMu.Lock()
	a.pauseRequested = false
	a.pauseCond.Broadcast()
	a.pauseMu.Unlock()
}

// Close stops the writer, draining the remaining queue with the same
// vectored-write discipline, then performs a final fdatasync. Safe to
// call more than once.
func (a *AOF) Close() error {
	a.closeOnce.Do(func() { close(a.stopCh) })
	<-a.doneCh
	return nil
}
