/*
file: goredis/internal/rdb/tokenize.go
*/
package rdb

import (
	"fmt"
	"strconv"
	"strings"
)

// trimLeadingSpaces strips the purely cosmetic indentation Save
// writes ("  " for top-level entries, "    " for nested fields).
func trimLeadingSpaces(s string) string {
	return strings.TrimLeft(s, " ")
}

// takeToken returns the next space-delimited token and the remainder
// of the line with the separating space consumed.
func takeToken(s string) (token, rest string, err error) {
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return s, "", nil
	}
	return s[:idx], s[idx+1:], nil
}

func takeInt(s string) (int, string, error) {
	tok, rest, err := takeToken(s)
	if err != nil {
		return 0, "", err
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, "", fmt.Errorf("expected integer, got %q: %w", tok, err)
	}
	return n, rest, nil
}

func takeInt64(s string) (int64, string, error) {
	tok, rest, err := takeToken(s)
	if err != nil {
		return 0, "", err
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("expected integer, got %q: %w", tok, err)
	}
	return n, rest, nil
}

// takeFixed consumes exactly n bytes as a field value (which may
// itself contain spaces), then consumes the single separating space
// before whatever follows, if anything does.
func takeFixed(s string, n int) (string, string, error) {
	if n < 0 || len(s) < n {
		return "", "", fmt.Errorf("field length %d exceeds remaining %d bytes", n, len(s))
	}
	val := s[:n]
	rest := s[n:]
	if len(rest) > 0 {
		if rest[0] != ' ' {
			return "", "", fmt.Errorf("expected separator after %d-byte field", n)
		}
		rest = rest[1:]
	}
	return val, rest, nil
}
