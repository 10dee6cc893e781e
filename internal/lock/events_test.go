package lock

import (
	"testing"
	"time"

	"github.com/hs-CN/remote-servo-controllor/internal/timeutil"
)

func newIdleController() *Controller {
	return New(&fakeActuator{}, Options{
		Clock: timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func TestHub_FanOut(t *testing.T) {
	c := newIdleController()

	id1, ch1 := c.Subscribe()
	id2, ch2 := c.Subscribe()
	defer c.Unsubscribe(id1)
	defer c.Unsubscribe(id2)

	c.publish(Event{Kind: EventReady})

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Kind != EventReady {
				t.Errorf("subscriber %d got kind %s, want %s", i, ev.Kind, EventReady)
			}
			if ev.ID == "" {
				t.Errorf("subscriber %d event has no id", i)
			}
			if ev.Time.IsZero() {
				t.Errorf("subscriber %d event has no timestamp", i)
			}
		default:
			t.Fatalf("subscriber %d did not receive the event", i)
		}
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	c := newIdleController()

	id, ch := c.Subscribe()
	c.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic
	c.publish(Event{Kind: EventReady})
}

func TestHub_UnsubscribeUnknownID(t *testing.T) {
	c := newIdleController()
	c.Unsubscribe("not-a-subscriber")
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	c := newIdleController()

	id, ch := c.Subscribe()
	defer c.Unsubscribe(id)

	// Fill the buffer and then some; publish must never block.
	for i := 0; i < subscriberBuffer+5; i++ {
		c.publish(Event{Kind: EventAccepted})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}

	if received != subscriberBuffer {
		t.Errorf("received %d events, want %d buffered", received, subscriberBuffer)
	}
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	c := newIdleController()
	c.publish(Event{Kind: EventReady})
}
