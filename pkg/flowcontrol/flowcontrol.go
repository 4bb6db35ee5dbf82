// Package flowcontrol implements the inflight-request/bytes flow
// controller of spec §4.2 (C2), plus the companion WindowController for
// sliding-window sequence flow control.
package flowcontrol

import (
	"sync"
	"sync/atomic"

	"gopkg.in/spacemonkeygo/monkit.v2"
)

var mon = monkit.Package()

// State is the three-state backpressure signal derived from the
// controller's counters (spec §4.2).
type State int

const (
	// Open: usage% < high watermark.
	Open State = iota
	// Throttled: high watermark <= usage% < 100.
	Throttled
	// Blocked: usage% >= 100.
	Blocked
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Throttled:
		return "throttled"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Config bounds the controller.
type Config struct {
	MaxRequests    uint32
	MaxBytes       uint64
	HighWatermark  float64 // percent, e.g. 80.0
}

// Controller is a lock-free (on the hot path) request/byte admission
// gate. TryAcquire atomically checks both inflight_requests < max and
// inflight_bytes + bytes <= max_bytes, incrementing both on success.
type Controller struct {
	cfg Config

	inflightRequests atomic.Int32
	inflightBytes    atomic.Int64
}

// New returns a Controller bound by cfg.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Permit represents reserved flow-control capacity. It must be released
// exactly once via Release, per the spec's RAII model.
type Permit struct {
	c        *Controller
	bytes    int64
	released atomic.Bool
}

// TryAcquire attempts to reserve capacity for one request of the given
// byte size. Returns nil if the controller is at capacity. Both counters
// are reserved via independent CAS loops so a failed byte reservation
// never leaves the request counter incremented.
func (c *Controller) TryAcquire(bytes uint64) *Permit {
	defer mon.Task()(nil)(nil)

	if !c.reserveRequest() {
		return nil
	}
	if !c.reserveBytes(int64(bytes)) {
		c.inflightRequests.Add(-1)
		return nil
	}
	return &Permit{c: c, bytes: int64(bytes)}
}

func (c *Controller) reserveRequest() bool {
	for {
		cur := c.inflightRequests.Load()
		if c.cfg.MaxRequests > 0 && uint32(cur) >= c.cfg.MaxRequests {
			return false
		}
		if c.inflightRequests.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (c *Controller) reserveBytes(bytes int64) bool {
	for {
		cur := c.inflightBytes.Load()
		next := cur + bytes
		if c.cfg.MaxBytes > 0 && uint64(next) > c.cfg.MaxBytes {
			return false
		}
		if c.inflightBytes.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Release returns the permit's reserved capacity to the controller.
// Releasing more than once is a no-op on the second call, so callers can
// safely defer Release and also call it early.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	p.c.inflightRequests.Add(-1)
	p.c.inflightBytes.Add(-p.bytes)
}

// Bytes returns the number of bytes this permit reserved.
func (p *Permit) Bytes() uint64 {
	return uint64(p.bytes)
}

// InflightRequests returns the current inflight request count.
func (c *Controller) InflightRequests() uint32 {
	return uint32(c.inflightRequests.Load())
}

// InflightBytes returns the current inflight byte count.
func (c *Controller) InflightBytes() uint64 {
	return uint64(c.inflightBytes.Load())
}

// State computes the current backpressure state from usage% = max of
// request_pct and byte_pct (spec §4.2).
func (c *Controller) State() State {
	reqPct := pct(int64(c.inflightRequests.Load()), int64(c.cfg.MaxRequests))
	bytePct := pct(c.inflightBytes.Load(), int64(c.cfg.MaxBytes))
	usage := reqPct
	if bytePct > usage {
		usage = bytePct
	}

	switch {
	case usage >= 100:
		return Blocked
	case usage >= c.cfg.HighWatermark:
		return Throttled
	default:
		return Open
	}
}

func pct(cur, max int64) float64 {
	if max <= 0 {
		return 0
	}
	return 100 * float64(cur) / float64(max)
}

// WindowController provides sliding-window sequence flow control:
// Advance(seq) succeeds iff seq is within [start, start+window) and the
// in-flight count is below window; Ack(seq) advances start through all
// acknowledged contiguous sequences.
type WindowController struct {
	mu       sync.Mutex
	start    uint64
	window   uint32
	acked    map[uint64]bool
	inFlight uint32
}

// NewWindowController returns a controller with the given window size.
func NewWindowController(window uint32) *WindowController {
	return &WindowController{
		window: window,
		acked:  make(map[uint64]bool),
	}
}

// Advance attempts to admit sequence seq into the window.
func (w *WindowController) Advance(seq uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seq < w.start || seq >= w.start+uint64(w.window) {
		return false
	}
	if w.inFlight >= w.window {
		return false
	}
	w.inFlight++
	return true
}

// CanSend reports whether the window currently has room for another
// sequence to be advanced.
func (w *WindowController) CanSend() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight < w.window
}

// Ack acknowledges seq and advances the window start through any run of
// contiguous acknowledged sequences starting at the current window start.
func (w *WindowController) Ack(seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seq < w.start {
		return
	}
	if w.acked[seq] {
		return
	}
	w.acked[seq] = true
	if w.inFlight > 0 {
		w.inFlight--
	}

	for w.acked[w.start] {
		delete(w.acked, w.start)
		w.start++
	}
}

// WindowStart returns the current window start sequence.
func (w *WindowController) WindowStart() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.start
}

// WindowEnd returns the exclusive end of the current window.
func (w *WindowController) WindowEnd() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.start + uint64(w.window)
}

// InFlight returns the number of sequences currently admitted but not
// yet acknowledged.
func (w *WindowController) InFlight() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight
}
