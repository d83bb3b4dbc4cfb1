//go:build !linux

/*
file: goredis/internal/aof/prealloc_other.go
*/
package aof

import "os"

// preallocate is a no-op on platforms without fallocate(2); the
// writer still works correctly, just without the space reservation.
func preallocate(f *os.File, n int64) {}
