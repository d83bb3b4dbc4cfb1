//go:build linux

/*
file: goredis/internal/aof/prealloc_linux.go
*/
package aof

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves n bytes of disk space for f without growing
// its apparent size, so AOF replay never sees the reservation as
// content. Failure is silently ignored: some filesystems don't
// support fallocate, and that is not fatal to startup.
func preallocate(f *os.File, n int64) {
	_ = unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_KEEP_SIZE, 0, n)
}
