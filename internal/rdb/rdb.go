/*
file: goredis/internal/rdb/rdb.go
*/

// Package rdb implements the point-in-time snapshot format: a
// textual, length-prefixed layout with a magic header, one section
// per typed map. Save writes to the final path in place (O_TRUNC,
// write, fsync, close); load tolerates a missing file as an empty
// snapshot but treats any other malformed input as a startup error,
// since a corrupt RDB is an integrity failure, not a recovery signal.
package rdb

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/kvforge/goredis/internal/store"
)

const (
	magicV2 = "MRDB2"
	magicV1 = "MRDB1" // legacy strings-only format
)

// Save writes a complete snapshot of ks to path, replacing any
// existing file in place (O_TRUNC, write, fsync, close). The
// replacement is not atomic: a crash mid-write leaves a partial file.
func Save(path string, ks *store.Keyspace) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("rdb save: open %s: %w", path, err)
	}

	w := bufio.NewWriterSize(f, 64*1024)
	w.WriteString(magicV2)
	w.WriteByte('\n')

	strs := ks.SnapshotStrings()
	fmt.Fprintf(w, "STR %d\n", len(strs))
	for key, rec := range strs {
		fmt.Fprintf(w, "  %d %s %d %s %d\n", len(key), key, len(rec.Value), rec.Value, rec.ExpireAtMs)
	}

	hashes := ks.SnapshotHash()
	fmt.Fprintf(w, "HASH %d\n", len(hashes))
	for key, rec := range hashes {
		fmt.Fprintf(w, "  %d %s %d %d\n", len(key), key, rec.ExpireAtMs, len(rec.Fields))
		for field, value := range rec.Fields {
			fmt.Fprintf(w, "    %d %s %d %s\n", len(field), field, len(value), value)
		}
	}

	zsets := ks.SnapshotZSet()
	fmt.Fprintf(w, "ZSET %d\n", len(zsets))
	for key, snap := range zsets {
		fmt.Fprintf(w, "  %d %s %d %d\n", len(key), key, snap.ExpireAtMs, len(snap.Members))
		for _, m := range snap.Members {
			fmt.Fprintf(w, "    %s %d %s\n", strconv.FormatFloat(m.Score, 'f', -1, 64), len(m.Member), m.Member)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("rdb save: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("rdb save: fsync: %w", err)
	}
	return f.Close()
}

// Load reads path into ks. A missing file is success with empty
// state. Any other read or format error is returned as-is: callers
// treat RDB corruption as a startup error, unlike AOF tail truncation.
func Load(path string, ks *store.Keyspace) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("rdb load: read %s: %w", path, err)
	}
	return load(data, ks)
}

func load(data []byte, ks *store.Keyspace) error {
	s := newScanner(data)

	magic, ok := s.line()
	if !ok {
		return fmt.Errorf("rdb load: empty file")
	}
	switch magic {
	case magicV2:
		return loadV2(s, ks)
	case magicV1:
		return loadV1(s, ks)
	default:
		return fmt.Errorf("rdb load: bad magic %q", magic)
	}
}

func loadV2(s *scanner, ks *store.Keyspace) error {
	nStr, err := s.header1("STR")
	if err != nil {
		return err
	}
	for i := 0; i < nStr; i++ {
		key, value, expireAtMs, err := s.strEntry()
		if err != nil {
			return fmt.Errorf("rdb load: STR entry %d: %w", i, err)
		}
		ks.SetWithExpireAtMs(key, value, expireAtMs)
	}

	nHash, err := s.header1("HASH")
	if err != nil {
		return err
	}
	for i := 0; i < nHash; i++ {
		key, expireAtMs, nFields, err := s.hashHeader()
		if err != nil {
			return fmt.Errorf("rdb load: HASH header %d: %w", i, err)
		}
		fields := make(map[string][]byte, nFields)
		for f := 0; f < nFields; f++ {
			field, value, err := s.hashField()
			if err != nil {
				return fmt.Errorf("rdb load: HASH field %d/%d: %w", i, f, err)
			}
			fields[field] = value
		}
		ks.RestoreHash(key, fields, expireAtMs)
	}

	nZSet, err := s.header1("ZSET")
	if err != nil {
		return err
	}
	for i := 0; i < nZSet; i++ {
		key, expireAtMs, nItems, err := s.zsetHeader()
		if err != nil {
			return fmt.Errorf("rdb load: ZSET header %d: %w", i, err)
		}
		members := make([]store.ZMember, 0, nItems)
		for m := 0; m < nItems; m++ {
			member, err := s.zsetItem()
			if err != nil {
				return fmt.Errorf("rdb load: ZSET item %d/%d: %w", i, m, err)
			}
			members = append(members, member)
		}
		ks.RestoreZSet(key, members, expireAtMs)
	}

	return nil
}

// loadV1 understands only the legacy leading STR section; no HASH or
// ZSET sections are expected in a v1 file.
func loadV1(s *scanner, ks *store.Keyspace) error {
	nStr, err := s.header1("STR")
	if err != nil {
		return err
	}
	for i := 0; i < nStr; i++ {
		key, value, expireAtMs, err := s.strEntry()
		if err != nil {
			return fmt.Errorf("rdb load: STR entry %d: %w", i, err)
		}
		ks.SetWithExpireAtMs(key, value, expireAtMs)
	}
	return nil
}

// scanner walks the length-prefixed textual payload a field at a
// time, each field separated by single spaces and each record
// terminated by LF, exactly as Save wrote it.
type scanner struct {
	data []byte
	pos  int
}

func newScanner(data []byte) *scanner { return &scanner{data: data} }

func (s *scanner) line() (string, bool) {
	if s.pos >= len(s.data) {
		return "", false
	}
	idx := bytes.IndexByte(s.data[s.pos:], '\n')
	if idx < 0 {
		return "", false
	}
	line := string(s.data[s.pos : s.pos+idx])
	s.pos += idx + 1
	return line, true
}

func (s *scanner) header1(tag string) (int, error) {
	line, ok := s.line()
	if !ok {
		return 0, fmt.Errorf("rdb load: expected %s header, got EOF", tag)
	}
	var got string
	var n int
	if _, err := fmt.Sscanf(line, "%s %d", &got, &n); err != nil || got != tag {
		return 0, fmt.Errorf("rdb load: expected %s header, got %q", tag, line)
	}
	return n, nil
}

// strEntry parses "<klen> <key> <vlen> <value> <expire_at_ms>". Key
// and value are read by fixed length rather than split-on-space so
// embedded spaces round-trip correctly.
func (s *scanner) strEntry() (key string, value []byte, expireAtMs int64, err error) {
	line, ok := s.line()
	if !ok {
		return "", nil, 0, fmt.Errorf("unexpected EOF")
	}
	return parseStrEntry(line)
}

func parseStrEntry(line string) (key string, value []byte, expireAtMs int64, err error) {
	line = trimLeadingSpaces(line)
	klen, rest, err := takeInt(line)
	if err != nil {
		return "", nil, 0, err
	}
	key, rest, err = takeFixed(rest, klen)
	if err != nil {
		return "", nil, 0, err
	}
	vlen, rest, err := takeInt(rest)
	if err != nil {
		return "", nil, 0, err
	}
	var valStr string
	valStr, rest, err = takeFixed(rest, vlen)
	if err != nil {
		return "", nil, 0, err
	}
	expireAtMs, _, err = takeInt64(rest)
	if err != nil {
		return "", nil, 0, err
	}
	return key, []byte(valStr), expireAtMs, nil
}

func (s *scanner) hashHeader() (key string, expireAtMs int64, nFields int, err error) {
	line, ok := s.line()
	if !ok {
		return "", 0, 0, fmt.Errorf("unexpected EOF")
	}
	line = trimLeadingSpaces(line)
	klen, rest, err := takeInt(line)
	if err != nil {
		return "", 0, 0, err
	}
	key, rest, err = takeFixed(rest, klen)
	if err != nil {
		return "", 0, 0, err
	}
	expireAtMs, rest, err = takeInt64(rest)
	if err != nil {
		return "", 0, 0, err
	}
	n, _, err := takeInt(rest)
	if err != nil {
		return "", 0, 0, err
	}
	return key, expireAtMs, n, nil
}

func (s *scanner) hashField() (field string, value []byte, err error) {
	line, ok := s.line()
	if !ok {
		return "", nil, fmt.Errorf("unexpected EOF")
	}
	line = trimLeadingSpaces(line)
	flen, rest, err := takeInt(line)
	if err != nil {
		return "", nil, err
	}
	field, rest, err = takeFixed(rest, flen)
	if err != nil {
		return "", nil, err
	}
	vlen, rest, err := takeInt(rest)
	if err != nil {
		return "", nil, err
	}
	var valStr string
	valStr, _, err = takeFixed(rest, vlen)
	if err != nil {
		return "", nil, err
	}
	return field, []byte(valStr), nil
}

func (s *scanner) zsetHeader() (key string, expireAtMs int64, nItems int, err error) {
	line, ok := s.line()
	if !ok {
		return "", 0, 0, fmt.Errorf("unexpected EOF")
	}
	line = trimLeadingSpaces(line)
	klen, rest, err := takeInt(line)
	if err != nil {
		return "", 0, 0, err
	}
	key, rest, err = takeFixed(rest, klen)
	if err != nil {
		return "", 0, 0, err
	}
	expireAtMs, rest, err = takeInt64(rest)
	if err != nil {
		return "", 0, 0, err
	}
	n, _, err := takeInt(rest)
	if err != nil {
		return "", 0, 0, err
	}
	return key, expireAtMs, n, nil
}

func (s *scanner) zsetItem() (store.ZMember, error) {
	line, ok := s.line()
	if !ok {
		return store.ZMember{}, fmt.Errorf("unexpected EOF")
	}
	line = trimLeadingSpaces(line)
	scoreTok, rest, err := takeToken(line)
	if err != nil {
		return store.ZMember{}, err
	}
	score, err := strconv.ParseFloat(scoreTok, 64)
	if err != nil {
		return store.ZMember{}, fmt.Errorf("bad score %q: %w", scoreTok, err)
	}
	mlen, rest, err := takeInt(rest)
	if err != nil {
		return store.ZMember{}, err
	}
	member, _, err := takeFixed(rest, mlen)
	if err != nil {
		return store.ZMember{}, err
	}
	return store.ZMember{Score: score, Member: member}, nil
}
