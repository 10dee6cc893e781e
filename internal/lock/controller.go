// Package lock runs the single-actuator command pipeline: one admission
// gate, one handoff slot, and one consumer goroutine that owns the servo.
//
// Commands are raw byte payloads. They cross the handoff channel
// unparsed; the consumer interprets them, so a garbage payload costs a
// warning instead of crashing a radio callback.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hs-CN/remote-servo-controllor/internal/monitoring"
	"github.com/hs-CN/remote-servo-controllor/internal/timeutil"
)

// Sources attached to submitted commands.
const (
	SourceBLE   = "ble"
	SourceHTTP  = "http"
	SourceLocal = "local"
)

// Defaults for the drive sequence.
const (
	DefaultDwell      = 1000 * time.Millisecond
	DefaultSettle     = 1000 * time.Millisecond
	DefaultRestDegree = 0
)

// State names the controller's position in the drive sequence.
type State string

const (
	// StateStarting covers construction through the initial settle.
	StateStarting State = "starting"
	// StateResting means the horn is at rest and admission is open.
	StateResting State = "resting"
	// StateMoving means the horn is being held at the commanded angle.
	StateMoving State = "moving"
	// StateReturning means the horn is travelling back to rest.
	StateReturning State = "returning"
)

// Actuator drives the horn to an absolute angle.
type Actuator interface {
	SetDegree(degree uint8) error
}

// Options tune a Controller. Zero values fall back to the defaults.
type Options struct {
	Dwell      time.Duration
	Settle     time.Duration
	RestDegree uint8
	Clock      timeutil.Clock
}

// Controller owns the actuator. Commands enter through TrySubmit and
// are executed one at a time by Run; while one is pending or executing,
// every further submission is dropped.
type Controller struct {
	actuator Actuator
	clock    timeutil.Clock

	dwell      time.Duration
	settle     time.Duration
	restDegree uint8

	cmds chan submission

	// busy is the admission token. A successful TrySubmit takes it;
	// Run releases it each time the horn is back at rest.
	busy atomic.Bool

	hub *hub

	mu         sync.Mutex
	state      State
	lastDegree uint8
	lastAt     time.Time
	startedAt  time.Time

	accepted  atomic.Uint64
	actuated  atomic.Uint64
	rejected  atomic.Uint64
	busyDrops atomic.Uint64
}

type submission struct {
	payload []byte
	source  string
}

// New creates a Controller around actuator. Run must be started for
// commands to execute; until its startup move settles, TrySubmit drops
// everything.
func New(actuator Actuator, opts Options) *Controller {
	if opts.Dwell <= 0 {
		opts.Dwell = DefaultDwell
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	c := &Controller{
		actuator:   actuator,
		clock:      opts.Clock,
		dwell:      opts.Dwell,
		settle:     opts.Settle,
		restDegree: opts.RestDegree,
		cmds:       make(chan submission, 1),
		hub:        newHub(),
		state:      StateStarting,
	}
	c.startedAt = c.clock.Now()
	c.busy.Store(true)
	return c
}

// TrySubmit offers a raw command payload for execution. It never
// blocks: if a command is already pending or executing, the new one is
// dropped with a warning and TrySubmit returns false. The payload is
// copied, so callers may reuse their buffer.
func (c *Controller) TrySubmit(payload []byte, source string) bool {
	if !c.busy.CompareAndSwap(false, true) {
		c.busyDrops.Add(1)
		monitoring.Logf("lock: is busy, dropped command %q from %s", payload, source)
		c.publish(Event{
			Kind:    EventBusy,
			Source:  source,
			Payload: string(payload),
			Reason:  ReasonBusy,
		})
		return false
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case c.cmds <- submission{payload: buf, source: source}:
		c.accepted.Add(1)
		c.publish(Event{Kind: EventAccepted, Source: source, Payload: string(buf)})
		return true
	default:
		// not reachable while the admission token is held
		c.busy.Store(false)
		return false
	}
}

// Run drives the startup move, then consumes commands until ctx is done
// or the actuator fails. An actuator failure is returned as an error; a
// nil return means ctx ended the loop.
func (c *Controller) Run(ctx context.Context) error {
	monitoring.Logf("lock: driving to rest position %d", c.restDegree)
	if err := c.actuator.SetDegree(c.restDegree); err != nil {
		return fmt.Errorf("drive to rest: %w", err)
	}
	c.clock.Sleep(c.settle)

	c.setState(StateResting)
	// Open admission before announcing readiness so a listener reacting
	// to the event can submit straight away.
	c.busy.Store(false)
	c.publish(Event{Kind: EventReady, Degree: int(c.restDegree)})

	for {
		select {
		case <-ctx.Done():
			return nil
		case sub := <-c.cmds:
			if err := c.execute(sub); err != nil {
				return err
			}
		}
	}
}

// execute runs one full drive sequence for an admitted payload. Parse
// failures are recorded and release the admission token; actuator
// failures are fatal and leave the token held.
func (c *Controller) execute(sub submission) error {
	degree, err := ParseDegree(sub.payload)
	if err != nil {
		c.rejected.Add(1)
		if errors.Is(err, ErrDegreeRange) {
			monitoring.Logf("lock: invalid degree: %d", degree)
		} else {
			monitoring.Logf("lock: invalid command: %q", sub.payload)
		}
		c.busy.Store(false)
		c.publish(Event{
			Kind:    EventRejected,
			Source:  sub.source,
			Payload: string(sub.payload),
			Reason:  RejectReason(err),
		})
		return nil
	}

	monitoring.Logf("lock: set degree: %d", degree)
	start := c.clock.Now()

	c.mu.Lock()
	c.state = StateMoving
	c.lastDegree = degree
	c.mu.Unlock()

	if err := c.actuator.SetDegree(degree); err != nil {
		return fmt.Errorf("drive to %d: %w", degree, err)
	}
	c.clock.Sleep(c.dwell)

	c.setState(StateReturning)
	if err := c.actuator.SetDegree(c.restDegree); err != nil {
		return fmt.Errorf("return to rest: %w", err)
	}
	c.clock.Sleep(c.settle)

	completed := c.clock.Now()
	c.mu.Lock()
	c.state = StateResting
	c.lastAt = completed
	c.mu.Unlock()

	c.actuated.Add(1)
	c.busy.Store(false)
	c.publish(Event{
		Kind:       EventActuated,
		Source:     sub.source,
		Payload:    string(sub.payload),
		Degree:     int(degree),
		DurationMs: completed.Sub(start).Milliseconds(),
	})
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State         State      `json:"state"`
	Busy          bool       `json:"busy"`
	RestDegree    uint8      `json:"rest_degree"`
	LastDegree    uint8      `json:"last_degree"`
	LastActuated  *time.Time `json:"last_actuated,omitempty"`
	Accepted      uint64     `json:"accepted"`
	Actuated      uint64     `json:"actuated"`
	Rejected      uint64     `json:"rejected"`
	BusyDrops     uint64     `json:"busy_drops"`
	UptimeSeconds int64      `json:"uptime_seconds"`
}

// Status reports the controller's current state and counters.
func (c *Controller) Status() Status {
	c.mu.Lock()
	state := c.state
	lastDegree := c.lastDegree
	lastAt := c.lastAt
	c.mu.Unlock()

	st := Status{
		State:         state,
		Busy:          c.busy.Load(),
		RestDegree:    c.restDegree,
		LastDegree:    lastDegree,
		Accepted:      c.accepted.Load(),
		Actuated:      c.actuated.Load(),
		Rejected:      c.rejected.Load(),
		BusyDrops:     c.busyDrops.Load(),
		UptimeSeconds: int64(c.clock.Since(c.startedAt).Seconds()),
	}
	if !lastAt.IsZero() {
		t := lastAt
		st.LastActuated = &t
	}
	return st
}
