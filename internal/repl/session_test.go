package repl

import (
	"net"
	"strconv"
	"strings"
	"testing"
)

// newPipePair returns both ends of a net.Pipe so the test can read
// back exactly the bytes Propagate wrote.
func newPipePair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	c, s := net.Pipe()
	t.Cleanup(func() { c.Close(); s.Close() })
	return c, s
}

func TestPropagateHeaderOffsetMatchesBacklogTail(t *testing.T) {
	h := NewHub(1 << 20)
	client, server := newPipePair(t)

	reads := make(chan []byte, 16)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := server.Read(buf)
			if n > 0 {
				cp := make([]byte, n)
				copy(cp, buf[:n])
				reads <- cp
			}
			if err != nil {
				close(reads)
				return
			}
		}
	}()

	h.AddSession(client)

	cmd := []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	newTail := h.Propagate(cmd)

	frame := <-reads
	if !strings.HasPrefix(string(frame), "+OFFSET ") {
		t.Fatalf("expected frame to start with +OFFSET header, got %q", frame)
	}
	idx := strings.Index(string(frame), "\r\n")
	header := string(frame[:idx])
	printed, err := strconv.ParseInt(strings.TrimPrefix(header, "+OFFSET "), 10, 64)
	if err != nil {
		t.Fatalf("bad offset header %q: %v", header, err)
	}

	if printed != newTail {
		t.Fatalf("printed offset %d does not match returned tail %d", printed, newTail)
	}
	if h.Backlog().TailOffset() != newTail {
		t.Fatalf("backlog tail %d does not match returned tail %d", h.Backlog().TailOffset(), newTail)
	}

	// The archived frame in the backlog must be byte-identical to what
	// was broadcast: reconstructing the header from the final tail must
	// reproduce the exact same frame length.
	archived, ok := h.Backlog().Slice(h.Backlog().StartOffset())
	if !ok {
		t.Fatalf("expected backlog slice to succeed")
	}
	if len(archived) != len(frame) {
		t.Fatalf("archived frame length %d != broadcast frame length %d", len(archived), len(frame))
	}
}

// TestPropagateAcrossDigitBoundary exercises the fixed-point resolution
// when the tail offset's digit count grows mid-computation: a
// pre-filled backlog sitting just below a power of ten forces the
// header's own length to change between the first guess and the
// value that guess implies.
func TestPropagateAcrossDigitBoundary(t *testing.T) {
	h := NewHub(1 << 20)
	client, server := newPipePair(t)
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()
	h.AddSession(client)

	// Push the backlog tail to 95, so the next frame's offset will cross
	// from 2-digit to 3-digit territory depending on command size.
	h.backlog.Append(make([]byte, 95))

	cmd := []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n") // 27 bytes
	newTail := h.Propagate(cmd)

	// header "+OFFSET <n>\r\n" must describe newTail exactly, regardless
	// of whether <n> ended up 2 or 3 digits.
	expectedHeaderLen := len(offsetHeader(newTail))
	if 95+int64(expectedHeaderLen)+int64(len(cmd)) != newTail {
		t.Fatalf("offset %d inconsistent with header length %d and command length %d", newTail, expectedHeaderLen, len(cmd))
	}
}

func TestPropagateDropsSessionWithFailingWrite(t *testing.T) {
	h := NewHub(1 << 20)
	client, server := newPipePair(t)
	server.Close() // force writes on this session to fail immediately
	s := h.AddSession(client)

	h.Propagate([]byte("*1\r\n$4\r\nPING\r\n"))

	h.mu.Lock()
	_, stillPresent := h.sessions[s.ID]
	h.mu.Unlock()
	if stillPresent {
		t.Fatalf("expected session with a failing write to be removed")
	}
}
