package testsupport

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
)

// Responder answers one request line. Multi-line requests read their
// remaining lines from r.
type Responder func(line string, w *bufio.Writer, r *bufio.Reader)

// FakeDevice serves a line protocol on a loopback listener.
type FakeDevice struct {
	listener net.Listener
	respond  Responder

	mu       sync.Mutex
	requests []string
	conns    []net.Conn
}

// NewFakeDevice starts a listener that answers through respond until the
// test ends.
func NewFakeDevice(t testing.TB, respond Responder) *FakeDevice {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &FakeDevice{listener: ln, respond: respond}
	go d.serve()
	t.Cleanup(d.Close)
	return d
}

// Addr returns host:port of the listener.
func (d *FakeDevice) Addr() string { return d.listener.Addr().String() }

// Requests returns every request line received so far.
func (d *FakeDevice) Requests() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

// Close stops the listener and drops open connections.
func (d *FakeDevice) Close() {
	_ = d.listener.Close()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		_ = c.Close()
	}
	d.conns = nil
}

func (d *FakeDevice) serve() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()
		go d.handle(conn)
	}
}

func (d *FakeDevice) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		d.mu.Lock()
		d.requests = append(d.requests, line)
		d.mu.Unlock()
		d.respond(line, w, r)
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// ControlReplies answers identification, change polls and table reads from
// tables. Table writes are stored so a later read returns them.
func ControlReplies(tables map[string][]string) Responder {
	var mu sync.Mutex
	return func(line string, w *bufio.Writer, r *bufio.Reader) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case line == "*IDN?":
			w.WriteString("OK =FakeDAQ 1.0\n")
		case strings.HasPrefix(line, "*CHANGES"):
			w.WriteString(".\n")
		case strings.HasSuffix(line, "<"):
			field := strings.TrimSuffix(line, "<")
			var words []string
			for {
				word, err := r.ReadString('\n')
				word = strings.TrimSpace(word)
				if err != nil || word == "" {
					break
				}
				words = append(words, word)
			}
			tables[field] = words
			w.WriteString("OK\n")
		case strings.HasSuffix(line, "?"):
			words, ok := tables[strings.TrimSuffix(line, "?")]
			if !ok {
				w.WriteString("ERR No such field\n")
				return
			}
			for _, word := range words {
				w.WriteString("!" + word + "\n")
			}
			w.WriteString(".\n")
		default:
			w.WriteString("OK\n")
		}
	}
}

// StreamReplies answers any STREAM request with body, one JSON record per
// line, and then leaves the connection open.
func StreamReplies(body string) Responder {
	return func(line string, w *bufio.Writer, _ *bufio.Reader) {
		if strings.HasPrefix(line, "STREAM ") {
			w.WriteString(body)
		}
	}
}
