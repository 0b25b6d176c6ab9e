// Package render implements the Render Engine (C3): a fixed-rate loop that
// evaluates the installed Animation at every LED's coordinate, packs the
// result into a frame buffer, and hands channel slices to a Serial Session.
package render

import (
	"context"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/showrunner/controller/internal/anim"
	"github.com/showrunner/controller/internal/coords"
)

// Session is the subset of the Serial Session (C4) the Render Engine
// drives. Implementations must not block the caller beyond one tick.
type Session interface {
	// UpdateChannel buffers channel ch's LED colors without flushing.
	UpdateChannel(ch int, rgb []byte) error
	// Flush swaps every channel whose bit is set in mask.
	Flush(mask byte) error
	// ClearAll zeroes every channel and flushes immediately.
	ClearAll() error
}

// State is the host-side session state machine: idle before the first
// tick, rendering during normal operation, paused while a takeover client
// holds exclusive access.
type State int

const (
	Idle State = iota
	Rendering
	PausedByTakeover
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rendering:
		return "rendering"
	case PausedByTakeover:
		return "paused-by-takeover"
	default:
		return "unknown"
	}
}

// Engine is the fixed-rate frame pipeline: one tick samples the installed
// Animation at every LED's coordinate and hands the result to a Session.
type Engine struct {
	coords         *coords.Store
	session        Session
	fps            int
	channels       int
	ledsPerChannel int
	numLEDs        int

	animation atomic.Pointer[anim.Animation]

	mu         sync.Mutex
	state      State
	pauseCount int

	frame    []byte
	start    time.Time
	stopOnce sync.Once
	stopped  chan struct{}
}

// New constructs an Engine over numLEDs = channels*ledsPerChannel LEDs.
func New(cs *coords.Store, session Session, fps, channels, ledsPerChannel int) *Engine {
	numLEDs := channels * ledsPerChannel
	return &Engine{
		coords:         cs,
		session:        session,
		fps:            fps,
		channels:       channels,
		ledsPerChannel: ledsPerChannel,
		numLEDs:        numLEDs,
		frame:          make([]byte, numLEDs*3),
		state:          Idle,
		stopped:        make(chan struct{}),
	}
}

// InstallAnimation atomically replaces the installed Animation. The engine
// observes the new pointer at the next tick boundary, never mid-tick.
func (e *Engine) InstallAnimation(a *anim.Animation) {
	e.animation.Store(a)
}

// CurrentAnimation returns the Animation the engine is currently sampling,
// or nil if none has been installed yet.
func (e *Engine) CurrentAnimation() *anim.Animation {
	return e.animation.Load()
}

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pause transitions Rendering -> PausedByTakeover and immediately issues a
// Clear All so the display goes dark. Serialized against tick start via
// e.mu so a tick never straddles the transition. Pause/Resume are
// refcounted rather than a bare on/off switch: an evicted takeover client's
// deferred Resume races the new client's Pause on accept, and without a
// count the engine would flip back to Rendering out from under the client
// that now holds the socket.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseCount++
	if e.pauseCount > 1 {
		return nil
	}
	e.state = PausedByTakeover
	return e.session.ClearAll()
}

// Resume releases one Pause reference, transitioning PausedByTakeover ->
// Rendering only once every outstanding Pause has been matched.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pauseCount == 0 {
		return
	}
	e.pauseCount--
	if e.pauseCount == 0 {
		e.state = Rendering
	}
}

// Run executes the fixed-rate tick loop until ctx is canceled. It returns
// after at most one more in-flight tick completes, then issues a final
// Clear All. Run is expected to be called exactly once.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.state = Rendering
	e.start = time.Now()
	e.mu.Unlock()

	period := time.Second / time.Duration(e.fps)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	defer close(e.stopped)

	for {
		select {
		case <-ctx.Done():
			return e.session.ClearAll()
		case <-ticker.C:
			e.tick()
		}
	}
}

// Stopped is closed once Run has returned.
func (e *Engine) Stopped() <-chan struct{} {
	return e.stopped
}

func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Rendering {
		return
	}

	t := time.Since(e.start).Seconds()
	a := e.animation.Load()

	for i := range e.frame {
		e.frame[i] = 0
	}

	if a != nil {
		for id := 0; id < e.numLEDs; id++ {
			p, ok := e.coords.Coord(id)
			if !ok {
				continue
			}
			r, g, b, ok := a.Evaluate(p.X, p.Y, p.Z, t, a.DefaultParams, id)
			if !ok {
				continue
			}
			off := id * 3
			e.frame[off] = toByte(r)
			e.frame[off+1] = toByte(g)
			e.frame[off+2] = toByte(b)
		}
	}

	var mask byte
	for ch := 0; ch < e.channels; ch++ {
		lo := ch * e.ledsPerChannel * 3
		hi := lo + e.ledsPerChannel*3
		if err := e.session.UpdateChannel(ch, e.frame[lo:hi]); err != nil {
			log.Printf("render: update channel %d: %v", ch, err)
			continue
		}
		mask |= 1 << uint(ch)
	}
	if err := e.session.Flush(mask); err != nil {
		log.Printf("render: flush: %v", err)
	}
}

// toByte converts a real color component to an 8-bit integer by
// round(clamp(c,0,1)*255); NaN maps to 0.
func toByte(c float64) byte {
	if math.IsNaN(c) {
		return 0
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return byte(math.Round(c * 255))
}
