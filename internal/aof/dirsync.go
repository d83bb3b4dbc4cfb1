/*
file: goredis/internal/aof/dirsync.go
*/
package aof

import (
	"os"
	"path/filepath"
)

// fsyncParentDir makes a rename durable across a crash by fsyncing
// the directory entry, not just the file's own contents. Best-effort:
// a platform or filesystem that rejects fsync on a directory leaves
// the rename itself intact, just not crash-durable a moment sooner.
func fsyncParentDir(path string) {
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return
	}
	defer dir.Close()
	_ = dir.Sync()
}
