// Package thinkgear is a client for the ThinkGear Connector, the local
// service that relays a headset's readings as newline-delimited JSON over
// TCP. A Client dials the connector, asks for raw output, and publishes
// every decodable line as a packet.Packet in wire order.
package thinkgear

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/large-farva/neurotap/internal/packet"
)

const (
	// DefaultHost and DefaultPort are where the connector listens out of
	// the box.
	DefaultHost = "127.0.0.1"
	DefaultPort = 13854

	// maxLineBytes bounds a single wire record. Longer records are skipped
	// up to the next newline.
	maxLineBytes = 64 << 10
)

var errLineTooLong = errors.New("thinkgear: line exceeds buffer")

// Handshake is the configuration object written once after the socket
// opens. AppName and AppKey are only needed by connectors that enforce
// application authorization.
type Handshake struct {
	EnableRawOutput bool   `json:"enableRawOutput"`
	Format          string `json:"format"`
	AppName         string `json:"appName,omitempty"`
	AppKey          string `json:"appKey,omitempty"`
}

// DefaultHandshake requests raw samples in the JSON line format.
func DefaultHandshake() Handshake {
	return Handshake{EnableRawOutput: true, Format: "Json"}
}

// Options configures a Client. Zero timeouts mean no timeout.
type Options struct {
	Logger      *log.Logger
	Handshake   Handshake
	DialTimeout time.Duration
	ReadTimeout time.Duration
	// Debug logs every dropped line instead of only counting it.
	Debug bool
}

// Stats counts traffic on the current and previous connections.
type Stats struct {
	Lines   uint64 `json:"lines"`
	Packets uint64 `json:"packets"`
	Dropped uint64 `json:"dropped"`
}

// Client owns one connector connection at a time. Connect and Disconnect
// may be called from any goroutine. Packet subscribers run on the read-loop
// goroutine; status subscribers run on whichever goroutine caused the
// transition. Neither may call Connect, Disconnect, or Close synchronously.
type Client struct {
	log         *log.Logger
	handshake   Handshake
	dialTimeout time.Duration
	readTimeout time.Duration
	debug       bool

	// emitMu orders status publication against connection generations.
	emitMu sync.Mutex

	mu     sync.Mutex
	gen    uint64
	active bool
	cancel context.CancelFunc
	conn   net.Conn
	done   chan struct{}
	status Status

	packetSubs listeners[packet.Packet]
	statusSubs listeners[Status]

	lines   atomic.Uint64
	packets atomic.Uint64
	dropped atomic.Uint64
}

// New returns a disconnected client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	hs := opts.Handshake
	if hs == (Handshake{}) {
		hs = DefaultHandshake()
	}
	return &Client{
		log:         logger,
		handshake:   hs,
		dialTimeout: opts.DialTimeout,
		readTimeout: opts.ReadTimeout,
		debug:       opts.Debug,
	}
}

// OnPacket registers fn for every decoded packet and returns a function
// that removes it.
func (c *Client) OnPacket(fn func(packet.Packet)) (unsubscribe func()) {
	return c.packetSubs.add(fn)
}

// OnStatus registers fn for every connection state transition and returns
// a function that removes it.
func (c *Client) OnStatus(fn func(Status)) (unsubscribe func()) {
	return c.statusSubs.add(fn)
}

// Status returns the most recently published status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Stats returns the line and packet counters.
func (c *Client) Stats() Stats {
	return Stats{
		Lines:   c.lines.Load(),
		Packets: c.packets.Load(),
		Dropped: c.dropped.Load(),
	}
}

// Connect publishes Connecting and dials host:port in the background. It
// returns immediately; the outcome arrives as a Connected or Failed status.
// ErrAlreadyActive is returned if a connection is already up or pending.
func (c *Client) Connect(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.active = true
	c.cancel = cancel
	c.conn = nil
	c.done = done
	c.mu.Unlock()

	c.transition(gen, Status{State: Connecting})
	go c.run(ctx, gen, addr, done)
	return nil
}

// Disconnect stops the read loop and closes the socket. It is idempotent
// and a no-op on a client that never connected. A Disconnected status is
// published unless the client was already disconnected.
func (c *Client) Disconnect() {
	c.disconnect()
}

// Close disconnects and waits for the read loop to exit.
func (c *Client) Close() {
	if done := c.disconnect(); done != nil {
		<-done
	}
}

func (c *Client) disconnect() <-chan struct{} {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	cancel, conn, done := c.cancel, c.conn, c.done
	prev := c.status.State
	c.gen++
	c.active = false
	c.cancel = nil
	c.conn = nil
	c.done = nil
	c.status = Status{State: Disconnected}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Closing the socket is what unblocks a pending read.
	if conn != nil {
		_ = conn.Close()
	}

	if prev != Disconnected {
		c.log.Printf("thinkgear: disconnected")
		c.statusSubs.emit(Status{State: Disconnected})
	}
	return done
}

// transition publishes st if gen is still the current connection. Terminal
// states release the connection slot so the user can retry.
func (c *Client) transition(gen uint64, st Status) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	if st.State == Disconnected || st.State == Failed {
		if c.cancel != nil {
			c.cancel()
		}
		c.active = false
		c.cancel = nil
		c.conn = nil
		c.done = nil
	}
	c.status = st
	c.mu.Unlock()

	c.statusSubs.emit(st)
	return true
}

func (c *Client) run(ctx context.Context, gen uint64, addr string, done chan struct{}) {
	defer close(done)

	conn, err := c.dial(ctx, addr)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Printf("thinkgear: %v", err)
		}
		c.transition(gen, Status{State: Failed, Reason: failureReason(err)})
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	if err := c.sendHandshake(conn, addr); err != nil {
		_ = conn.Close()
		c.log.Printf("thinkgear: %v", err)
		c.transition(gen, Status{State: Failed, Reason: failureReason(err)})
		return
	}

	if !c.transition(gen, Status{State: Connected}) {
		_ = conn.Close()
		return
	}
	c.log.Printf("thinkgear: connected to %s", addr)

	reason := c.readLoop(ctx, conn)
	_ = conn.Close()

	if c.transition(gen, Status{State: Disconnected, Reason: reason}) {
		c.log.Printf("thinkgear: %s", reason)
	}
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}
	return conn, nil
}

func (c *Client) sendHandshake(conn net.Conn, addr string) error {
	b, err := json.Marshal(c.handshake)
	if err != nil {
		return &ConnectionError{Op: "handshake", Addr: addr, Err: err}
	}
	if c.dialTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.dialTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	if _, err := conn.Write(b); err != nil {
		return &ConnectionError{Op: "handshake", Addr: addr, Err: err}
	}
	return nil
}

// readLoop decodes lines until the context is cancelled or the socket
// fails. Undecodable lines are dropped; the stream resynchronizes at the
// next newline. It returns why the loop ended.
func (c *Client) readLoop(ctx context.Context, conn net.Conn) string {
	r := bufio.NewReaderSize(conn, maxLineBytes)

	for ctx.Err() == nil {
		if c.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		line, err := readLine(r)
		if errors.Is(err, errLineTooLong) {
			c.lines.Add(1)
			c.dropped.Add(1)
			if c.debug {
				c.log.Printf("thinkgear: dropped oversized line")
			}
			continue
		}
		if len(line) > 0 {
			c.handleLine(ctx, line)
		}

		if err != nil {
			if ctx.Err() != nil {
				return "disconnected"
			}
			if errors.Is(err, io.EOF) {
				return "connection closed by peer"
			}
			return "read: " + err.Error()
		}
	}
	return "disconnected"
}

func (c *Client) handleLine(ctx context.Context, line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	c.lines.Add(1)

	p, err := packet.Decode(line)
	if err != nil {
		c.dropped.Add(1)
		if c.debug {
			c.log.Printf("thinkgear: dropped line %q: %v", truncate(line, 80), err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	c.packets.Add(1)
	c.packetSubs.emit(p)
}

// readLine returns the next record without its line terminator. The slice
// is only valid until the next call. A record that does not fit in the
// reader's buffer is consumed through its newline and reported as
// errLineTooLong.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = r.ReadSlice('\n')
		}
		if err != nil {
			return nil, err
		}
		return nil, errLineTooLong
	}
	return bytes.TrimRight(line, "\r\n"), err
}

func failureReason(err error) string {
	var ce *ConnectionError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err.Error()
	}
	return err.Error()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
