// Package demo simulates a ThinkGear connector service so the daemon, CLI,
// and web dashboard can be exercised end-to-end without a headset. It speaks
// the same TCP protocol: it waits for the client's handshake object, then
// streams newline-delimited JSON frames at the configured sample rate.
package demo

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/large-farva/neurotap/internal/packet"
)

const (
	// DefaultRateHz matches the raw output rate of the real headset.
	DefaultRateHz = 512

	tick          = 20 * time.Millisecond
	handshakeWait = 10 * time.Second
	writeWait     = 2 * time.Second
)

// Options configures a Connector.
type Options struct {
	Logger *log.Logger
	// RateHz is the number of raw frames per second.
	RateHz int
	// GarbleEvery injects a malformed line after every N frames. Zero
	// disables it.
	GarbleEvery int
	// Seed makes the generated signal reproducible. Zero picks a random seed.
	Seed uint64
}

// Connector is a fake connector service.
type Connector struct {
	log    *log.Logger
	rate   int
	garble int
	seed   uint64

	mu sync.Mutex
	ln net.Listener

	handshakes atomic.Uint64
	frames     atomic.Uint64
}

// New creates a Connector. Call Listen or Serve to start it.
func New(opts Options) *Connector {
	c := &Connector{
		log:    opts.Logger,
		rate:   opts.RateHz,
		garble: opts.GarbleEvery,
		seed:   opts.Seed,
	}
	if c.log == nil {
		c.log = log.New(os.Stderr, "", log.LstdFlags)
	}
	if c.rate <= 0 {
		c.rate = DefaultRateHz
	}
	return c
}

// Listen binds addr and serves connections until ctx is cancelled. It
// returns once the listener is bound; serving continues in the background.
func (c *Connector) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("demo: listen %s: %w", addr, err)
	}
	go func() {
		if err := c.Serve(ctx, ln); err != nil {
			c.log.Printf("demo: %v", err)
		}
	}()
	return nil
}

// Serve accepts connections on ln until ctx is cancelled. Each connection
// gets its own independent signal.
func (c *Connector) Serve(ctx context.Context, ln net.Listener) error {
	c.mu.Lock()
	c.ln = ln
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	c.log.Printf("demo: simulated connector on %s (%d Hz)", ln.Addr(), c.rate)

	var wg sync.WaitGroup
	defer wg.Wait()

	for n := uint64(1); ; n++ {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			c.handle(ctx, conn, seed)
		}(c.seedFor(n))
	}
}

// Addr returns the bound address, or nil before Serve has started.
func (c *Connector) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Handshakes returns how many clients completed the handshake.
func (c *Connector) Handshakes() uint64 { return c.handshakes.Load() }

// Frames returns how many lines have been written across all clients.
func (c *Connector) Frames() uint64 { return c.frames.Load() }

func (c *Connector) seedFor(n uint64) uint64 {
	if c.seed == 0 {
		return rand.Uint64()
	}
	return c.seed + n
}

func (c *Connector) handle(ctx context.Context, conn net.Conn, seed uint64) {
	defer conn.Close()

	// Stop writing when the daemon shuts down mid-stream.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	var hs map[string]any
	if err := json.NewDecoder(conn).Decode(&hs); err != nil {
		c.log.Printf("demo: %s: bad handshake: %v", conn.RemoteAddr(), err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	c.handshakes.Add(1)
	c.log.Printf("demo: %s: handshake %v", conn.RemoteAddr(), hs)

	gen := NewGenerator(c.rate, c.garble, seed)
	w := bufio.NewWriter(conn)
	start := time.Now()
	var sent int64

	t := time.NewTicker(tick)
	defer t.Stop()

	for {
		due := int64(time.Since(start).Seconds() * float64(c.rate))
		for ; sent < due; sent++ {
			for _, line := range gen.Next() {
				if _, err := w.Write(line); err != nil {
					return
				}
				c.frames.Add(1)
			}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := w.Flush(); err != nil {
			if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				c.log.Printf("demo: %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Generator produces the frame sequence for one simulated session. It is
// not safe for concurrent use.
type Generator struct {
	rate   int
	garble int
	rng    *rand.Rand

	n          int
	nextBlink  int
	attention  float64
	meditation float64
}

// NewGenerator returns a generator emitting rate raw frames per second.
func NewGenerator(rate, garbleEvery int, seed uint64) *Generator {
	if rate <= 0 {
		rate = DefaultRateHz
	}
	g := &Generator{
		rate:       rate,
		garble:     garbleEvery,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		attention:  50,
		meditation: 50,
	}
	g.nextBlink = g.blinkGap()
	return g
}

// Next returns the wire lines for the next frame: a raw sample, plus a
// summary once per second, an occasional blink, and the headset status on
// the very first frame.
func (g *Generator) Next() [][]byte {
	var lines [][]byte

	if g.n == 0 {
		lines = append(lines, encode(packet.Packet{Status: "scanning"}))
	}

	lines = append(lines, encode(packet.Packet{RawEEG: packet.Int(g.raw())}))

	if g.n > 0 && g.n%g.rate == 0 {
		lines = append(lines, encode(g.summary()))
	}

	if g.n == g.nextBlink {
		lines = append(lines, encode(packet.Packet{BlinkStrength: packet.Int(30 + g.rng.IntN(170))}))
		g.nextBlink = g.n + g.blinkGap()
	}

	g.n++
	if g.garble > 0 && g.n%g.garble == 0 {
		lines = append(lines, []byte("{\"rawEeg\": \n"))
	}
	return lines
}

// raw is a 10 Hz alpha rhythm with a slower theta component and noise,
// kept inside the 12-bit ADC range.
func (g *Generator) raw() int {
	t := float64(g.n) / float64(g.rate)
	v := 120*math.Sin(2*math.Pi*10*t) +
		40*math.Sin(2*math.Pi*6*t+0.7) +
		g.rng.NormFloat64()*25
	return max(-2048, min(2047, int(math.Round(v))))
}

func (g *Generator) summary() packet.Packet {
	g.attention = walk(g.attention, g.rng.NormFloat64()*8)
	g.meditation = walk(g.meditation, g.rng.NormFloat64()*8)

	band := func(scale float64) uint32 {
		return uint32(scale * (0.5 + g.rng.Float64()))
	}
	return packet.Packet{
		PoorSignalLevel: packet.Int(0),
		ESense: &packet.ESense{
			Attention:  int(math.Round(g.attention)),
			Meditation: int(math.Round(g.meditation)),
		},
		EEGPower: &packet.EEGPower{
			Delta:     band(400000),
			Theta:     band(120000),
			LowAlpha:  band(60000),
			HighAlpha: band(40000),
			LowBeta:   band(25000),
			HighBeta:  band(20000),
			LowGamma:  band(8000),
			HighGamma: band(5000),
		},
	}
}

// blinkGap is roughly four seconds of frames with some jitter.
func (g *Generator) blinkGap() int {
	return 3*g.rate + g.rng.IntN(2*g.rate)
}

func walk(v, step float64) float64 {
	return max(0, min(packet.MaxESense, v+step))
}

func encode(p packet.Packet) []byte {
	b, err := packet.Encode(p)
	if err != nil {
		// Generated packets are always in range.
		panic(err)
	}
	return b
}
