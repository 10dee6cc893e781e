package lock

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hs-CN/remote-servo-controllor/internal/monitoring"
)

// EventKind labels an observable controller transition.
type EventKind string

const (
	// EventReady fires once the horn has settled at rest after startup.
	EventReady EventKind = "ready"

	// EventAccepted fires when a command wins admission.
	EventAccepted EventKind = "accepted"

	// EventActuated fires when a drive sequence completes and the horn
	// is back at rest.
	EventActuated EventKind = "actuated"

	// EventRejected fires when an admitted payload fails validation.
	EventRejected EventKind = "rejected"

	// EventBusy fires when admission control drops a command.
	EventBusy EventKind = "busy"
)

// Event describes one controller transition. Fields beyond ID, Kind and
// Time are set only where they mean something for the kind.
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	Time       time.Time `json:"time"`
	Source     string    `json:"source,omitempty"`
	Payload    string    `json:"payload,omitempty"`
	Degree     int       `json:"degree,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

// subscriberBuffer absorbs short bursts so listeners riding the HTTP
// stack do not lose events to scheduling jitter.
const subscriberBuffer = 16

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

type hub struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

func newHub() *hub {
	return &hub{subs: make(map[string]chan Event)}
}

func (h *hub) subscribe() (string, chan Event) {
	id := randomID()
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = ch
	return id, ch
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// a stalled subscriber loses events rather than
			// stalling the controller
			monitoring.Debugf("lock: subscriber %s lagging, dropped %s event", id, ev.Kind)
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a listener for controller events. The returned id
// releases the subscription via Unsubscribe.
func (c *Controller) Subscribe() (string, chan Event) {
	return c.hub.subscribe()
}

// Unsubscribe removes a listener and closes its channel.
func (c *Controller) Unsubscribe(id string) {
	c.hub.unsubscribe(id)
}

// publish stamps identity and time onto ev and fans it out.
func (c *Controller) publish(ev Event) {
	ev.ID = uuid.NewString()
	ev.Time = c.clock.Now()
	c.hub.publish(ev)
}
