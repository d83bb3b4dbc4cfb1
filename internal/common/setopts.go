/*
file: goredis/internal/common/setopts.go
*/
package common

import (
	"strconv"
	"strings"
)

// ParseSetTTL decodes the optional trailing `EX seconds` / `PX ms`
// pair of a SET command's argument list (everything after key and
// value) into the millisecond TTL store.Keyspace.Set expects. It is
// shared by AOF replay and replica ingress; the live SET handler
// checks the same rule itself so it can reply with a specific error
// for each kind of bad option. ok is false when optArgs is malformed (wrong
// option, non-integer, or non-positive duration); callers that only
// replay already-accepted commands treat that as "skip".
func ParseSetTTL(optArgs []string) (ttlMs *int64, ok bool) {
	switch len(optArgs) {
	case 0:
		return nil, true
	case 2:
		n, err := strconv.ParseInt(optArgs[1], 10, 64)
		if err != nil || n <= 0 {
			return nil, false
		}
		switch strings.ToUpper(optArgs[0]) {
		case "EX":
			ms := n * 1000
			return &ms, true
		case "PX":
			return &n, true
		default:
			return nil, false
		}
	default:
		return nil, false
	}
}
