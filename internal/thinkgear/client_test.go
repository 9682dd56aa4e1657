package thinkgear

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/large-farva/neurotap/internal/packet"
)

const waitTimeout = 5 * time.Second

// fakeConnector accepts connections, captures the handshake object, and
// hands the socket to the test.
type fakeConnector struct {
	ln         net.Listener
	handshakes chan json.RawMessage
	conns      chan net.Conn
}

func startConnector(t *testing.T) *fakeConnector {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fc := &fakeConnector{
		ln:         ln,
		handshakes: make(chan json.RawMessage, 4),
		conns:      make(chan net.Conn, 4),
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			var hs json.RawMessage
			if err := json.NewDecoder(conn).Decode(&hs); err != nil {
				_ = conn.Close()
				continue
			}
			fc.handshakes <- hs
			fc.conns <- conn
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return fc
}

func (fc *fakeConnector) port() int {
	return fc.ln.Addr().(*net.TCPAddr).Port
}

func (fc *fakeConnector) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-fc.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(waitTimeout):
		t.Fatal("connector never received a handshake")
		return nil
	}
}

type recorder struct {
	packets  chan packet.Packet
	statuses chan Status
}

func newClient(t *testing.T, opts Options) (*Client, *recorder) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	c := New(opts)
	rec := &recorder{
		packets:  make(chan packet.Packet, 4096),
		statuses: make(chan Status, 64),
	}
	c.OnPacket(func(p packet.Packet) { rec.packets <- p })
	c.OnStatus(func(s Status) { rec.statuses <- s })
	t.Cleanup(c.Close)
	return c, rec
}

func (r *recorder) waitState(t *testing.T, want State) Status {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case s := <-r.statuses:
			if s.State == want {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
			return Status{}
		}
	}
}

func (r *recorder) expectNoStatus(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case s := <-r.statuses:
		t.Fatalf("unexpected status %+v", s)
	case <-time.After(d):
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestConnect_SendsHandshake(t *testing.T) {
	fc := startConnector(t)
	c, rec := newClient(t, Options{})

	if err := c.Connect("127.0.0.1", fc.port()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s := rec.waitState(t, Connecting); s.Text() != "Connecting to TGC..." {
		t.Errorf("Text() = %q", s.Text())
	}
	fc.accept(t)
	rec.waitState(t, Connected)

	hs := <-fc.handshakes
	if string(hs) != `{"enableRawOutput":true,"format":"Json"}` {
		t.Errorf("handshake = %s", hs)
	}
	if c.Status().State != Connected {
		t.Errorf("Status() = %v", c.Status())
	}
}

func TestConnect_CustomHandshake(t *testing.T) {
	fc := startConnector(t)
	c, rec := newClient(t, Options{Handshake: Handshake{
		EnableRawOutput: true, Format: "Json", AppName: "neurotap", AppKey: "k1",
	}})

	if err := c.Connect("127.0.0.1", fc.port()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fc.accept(t)
	rec.waitState(t, Connected)

	var hs Handshake
	if err := json.Unmarshal(<-fc.handshakes, &hs); err != nil {
		t.Fatal(err)
	}
	if hs.AppName != "neurotap" || hs.AppKey != "k1" || !hs.EnableRawOutput {
		t.Errorf("handshake = %+v", hs)
	}
}

func TestReadLoop_SkipsMalformedLine(t *testing.T) {
	fc := startConnector(t)
	c, rec := newClient(t, Options{})

	if err := c.Connect("127.0.0.1", fc.port()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := fc.accept(t)
	rec.waitState(t, Connected)

	// Fragment the stream across writes, including mid-record splits.
	for _, chunk := range []string{`{"rawEeg":5}` + "\nNOT JS", "ON\n\n{\"rawE", "eg\":7}\n"} {
		if _, err := io.WriteString(conn, chunk); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	_ = conn.Close()

	s := rec.waitState(t, Disconnected)
	if s.Reason != "connection closed by peer" {
		t.Errorf("Reason = %q", s.Reason)
	}

	var got []int
	for len(rec.packets) > 0 {
		p := <-rec.packets
		raw, ok := p.Raw()
		if !ok {
			t.Fatalf("packet without raw sample: %+v", p)
		}
		got = append(got, raw)
	}
	if len(got) != 2 || got[0] != 5 || got[1] != 7 {
		t.Errorf("packets = %v, want [5 7]", got)
	}

	st := c.Stats()
	if st.Lines != 3 || st.Packets != 2 || st.Dropped != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestReadLoop_PreservesWireOrder(t *testing.T) {
	fc := startConnector(t)
	c, rec := newClient(t, Options{})

	if err := c.Connect("127.0.0.1", fc.port()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := fc.accept(t)
	rec.waitState(t, Connected)

	const n = 2000
	w := bufio.NewWriter(conn)
	for i := 0; i < n; i++ {
		fmt.Fprintf(w, `{"rawEeg":%d}`+"\n", i-1000)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_ = conn.Close()
	rec.waitState(t, Disconnected)

	if len(rec.packets) != n {
		t.Fatalf("got %d packets, want %d", len(rec.packets), n)
	}
	for i := 0; i < n; i++ {
		raw, _ := (<-rec.packets).Raw()
		if raw != i-1000 {
			t.Fatalf("packet %d = %d, want %d", i, raw, i-1000)
		}
	}
}

func TestReadLoop_FinalLineWithoutNewline(t *testing.T) {
	fc := startConnector(t)
	c, rec := newClient(t, Options{})

	if err := c.Connect("127.0.0.1", fc.port()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := fc.accept(t)
	rec.waitState(t, Connected)

	_, _ = io.WriteString(conn, `{"blinkStrength":42}`)
	_ = conn.Close()
	rec.waitState(t, Disconnected)

	select {
	case p := <-rec.packets:
		if b, ok := p.Blink(); !ok || b != 42 {
			t.Errorf("packet = %+v", p)
		}
	default:
		t.Fatal("expected trailing record to be published")
	}
}

func TestConnect_Refused(t *testing.T) {
	port := freePort(t)
	c, rec := newClient(t, Options{})

	if err := c.Connect("127.0.0.1", port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	rec.waitState(t, Connecting)
	s := rec.waitState(t, Failed)

	if !strings.Contains(s.Reason, "refused") {
		t.Errorf("Reason = %q, want connection refused", s.Reason)
	}
	if !strings.HasPrefix(s.Text(), "Connection Failed: ") {
		t.Errorf("Text() = %q", s.Text())
	}
	if len(rec.packets) != 0 {
		t.Errorf("published %d packets on a failed connection", len(rec.packets))
	}

	// A failed attempt frees the slot for a user retry.
	if err := c.Connect("127.0.0.1", port); err != nil {
		t.Errorf("retry Connect: %v", err)
	}
	rec.waitState(t, Failed)
}

func TestConnect_AlreadyActive(t *testing.T) {
	fc := startConnector(t)
	c, rec := newClient(t, Options{})

	if err := c.Connect("127.0.0.1", fc.port()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fc.accept(t)
	rec.waitState(t, Connected)

	if err := c.Connect("127.0.0.1", fc.port()); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second Connect = %v, want ErrAlreadyActive", err)
	}
}

func TestDisconnect_BeforeConnect(t *testing.T) {
	c, rec := newClient(t, Options{})

	c.Disconnect()
	c.Disconnect()

	rec.expectNoStatus(t, 50*time.Millisecond)
	if c.Status().State != Disconnected {
		t.Errorf("Status() = %v", c.Status())
	}
}

func TestDisconnect_StopsReadLoop(t *testing.T) {
	fc := startConnector(t)
	c, rec := newClient(t, Options{})

	if err := c.Connect("127.0.0.1", fc.port()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := fc.accept(t)
	rec.waitState(t, Connected)

	c.Disconnect()
	s := rec.waitState(t, Disconnected)
	if s.Text() != "Disconnected" {
		t.Errorf("Text() = %q", s.Text())
	}

	// The connector side sees the socket close.
	_ = conn.SetReadDeadline(time.Now().Add(waitTimeout))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("expected connector read to fail after Disconnect")
	}

	// Idempotent: no second Disconnected event.
	c.Disconnect()
	rec.expectNoStatus(t, 100*time.Millisecond)

	// Nothing written after disconnect is published.
	_, _ = io.WriteString(conn, `{"rawEeg":1}`+"\n")
	time.Sleep(50 * time.Millisecond)
	if len(rec.packets) != 0 {
		t.Errorf("published %d packets after Disconnect", len(rec.packets))
	}
}

func TestDisconnect_FromFailed(t *testing.T) {
	c, rec := newClient(t, Options{})
	if err := c.Connect("127.0.0.1", freePort(t)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	rec.waitState(t, Failed)

	c.Disconnect()
	rec.waitState(t, Disconnected)
}

func TestReadTimeout(t *testing.T) {
	fc := startConnector(t)
	c, rec := newClient(t, Options{ReadTimeout: 100 * time.Millisecond})

	if err := c.Connect("127.0.0.1", fc.port()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fc.accept(t)
	rec.waitState(t, Connected)

	s := rec.waitState(t, Disconnected)
	if !strings.HasPrefix(s.Reason, "read: ") {
		t.Errorf("Reason = %q", s.Reason)
	}
}

func TestOnPacket_Unsubscribe(t *testing.T) {
	fc := startConnector(t)
	c, rec := newClient(t, Options{})

	var extra int
	unsubscribe := c.OnPacket(func(packet.Packet) { extra++ })
	unsubscribe()
	unsubscribe()

	if err := c.Connect("127.0.0.1", fc.port()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := fc.accept(t)
	rec.waitState(t, Connected)
	_, _ = io.WriteString(conn, `{"rawEeg":3}`+"\n")
	_ = conn.Close()
	rec.waitState(t, Disconnected)

	if len(rec.packets) != 1 {
		t.Errorf("recorder saw %d packets, want 1", len(rec.packets))
	}
	if extra != 0 {
		t.Errorf("unsubscribed listener called %d times", extra)
	}
}

func TestReadLine_OversizedRecordResyncs(t *testing.T) {
	input := strings.Repeat("x", 100) + "\n" + `{"rawEeg":9}` + "\r\n"
	r := bufio.NewReaderSize(strings.NewReader(input), 16)

	if _, err := readLine(r); !errors.Is(err, errLineTooLong) {
		t.Fatalf("first readLine err = %v, want errLineTooLong", err)
	}
	line, err := readLine(r)
	if err != nil {
		t.Fatalf("second readLine: %v", err)
	}
	if string(line) != `{"rawEeg":9}` {
		t.Errorf("line = %q", line)
	}
	if _, err := readLine(r); !errors.Is(err, io.EOF) {
		t.Errorf("third readLine err = %v, want EOF", err)
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{Status{State: Disconnected}, "Disconnected"},
		{Status{State: Connecting}, "Connecting to TGC..."},
		{Status{State: Connected}, "Connected to Headset"},
		{Status{State: Failed, Reason: "no route"}, "Connection Failed: no route"},
	}
	for _, tt := range tests {
		if got := tt.s.Text(); got != tt.want {
			t.Errorf("%v.Text() = %q, want %q", tt.s.State, got, tt.want)
		}
	}
}

func TestConnectionError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&ConnectionError{Op: "dial", Addr: "127.0.0.1:1", Err: inner})
	if !errors.Is(err, inner) {
		t.Error("ConnectionError should unwrap to its cause")
	}
	if err.Error() != "dial 127.0.0.1:1: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}
