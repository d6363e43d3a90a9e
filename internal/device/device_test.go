package device

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeDevice serves scripted replies on a loopback listener. Each accepted
// connection reads request lines and answers through respond.
type fakeDevice struct {
	t        *testing.T
	listener net.Listener
	respond  func(line string, w *bufio.Writer, r *bufio.Reader)

	mu       sync.Mutex
	requests []string
	accepts  int
	conns    []net.Conn
}

func newFakeDevice(t *testing.T, respond func(line string, w *bufio.Writer, r *bufio.Reader)) *fakeDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	d := &fakeDevice{t: t, listener: ln, respond: respond}
	go d.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		d.mu.Lock()
		for _, c := range d.conns {
			_ = c.Close()
		}
		d.mu.Unlock()
	})
	return d
}

func (d *fakeDevice) addr() string { return d.listener.Addr().String() }

func (d *fakeDevice) serve() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.accepts++
		d.conns = append(d.conns, conn)
		d.mu.Unlock()
		go d.handle(conn)
	}
}

func (d *fakeDevice) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		d.mu.Lock()
		d.requests = append(d.requests, line)
		d.mu.Unlock()
		d.respond(line, w, r)
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (d *fakeDevice) acceptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepts
}

func (d *fakeDevice) requestLines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

// dropConnections closes every accepted connection, simulating a device
// restart.
func (d *fakeDevice) dropConnections() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		_ = c.Close()
	}
	d.conns = nil
}
