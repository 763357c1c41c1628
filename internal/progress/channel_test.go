package progress

import (
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d events, wanted %d", len(got), n)
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events, wanted %d", len(got), n)
		}
	}
	return got
}

func TestPublishOrder(t *testing.T) {
	c := NewChannel()
	ch, cancel := c.Subscribe()
	defer cancel()

	for i := 1; i <= 5; i++ {
		c.Publish(Event{Stage: StageWriting, Percent: i * 20})
	}

	got := collect(t, ch, 5)
	for i, ev := range got {
		if ev.Percent != (i+1)*20 {
			t.Errorf("event %d: percent = %d, want %d", i, ev.Percent, (i+1)*20)
		}
	}
}

func TestPercentNeverRegresses(t *testing.T) {
	c := NewChannel()
	ch, cancel := c.Subscribe()
	defer cancel()

	// A retried chunk makes the producer re-report an earlier offset.
	c.Publish(Event{Stage: StageWriting, Percent: 40})
	c.Publish(Event{Stage: StageWriting, Percent: 30})
	c.Publish(Event{Stage: StageWriting, Percent: 50})

	got := collect(t, ch, 3)
	last := -1
	for _, ev := range got {
		if ev.Percent < last {
			t.Errorf("percent regressed: %d after %d", ev.Percent, last)
		}
		last = ev.Percent
	}
	if got[1].Percent != 40 {
		t.Errorf("clamped percent = %d, want 40", got[1].Percent)
	}
}

func TestLateSubscriberGetsLastEvent(t *testing.T) {
	c := NewChannel()
	c.Publish(Event{Stage: StageWriting, Percent: 10})
	c.Publish(Event{Stage: StageWriting, Percent: 60, Message: "writing"})

	ch, cancel := c.Subscribe()
	defer cancel()

	got := collect(t, ch, 1)
	if got[0].Percent != 60 || got[0].Message != "writing" {
		t.Errorf("late subscriber got %+v, want the last published event", got[0])
	}

	c.Publish(Event{Stage: StageWriting, Percent: 70})
	next := collect(t, ch, 1)
	if next[0].Percent != 70 {
		t.Errorf("follow-up event percent = %d, want 70", next[0].Percent)
	}
}

func TestLast(t *testing.T) {
	c := NewChannel()
	if _, ok := c.Last(); ok {
		t.Error("Last() reported an event before any publish")
	}
	c.Publish(Event{Percent: 33})
	ev, ok := c.Last()
	if !ok || ev.Percent != 33 {
		t.Errorf("Last() = %+v, %v; want percent 33", ev, ok)
	}
}

func TestCloseFlushesQueuedEvents(t *testing.T) {
	c := NewChannel()
	ch, cancel := c.Subscribe()
	defer cancel()

	c.Publish(Event{Percent: 50})
	c.Publish(Event{Percent: 100, Stage: StageDone})
	c.Close()

	got := collect(t, ch, 2)
	if got[1].Stage != StageDone {
		t.Errorf("final event stage = %q, want %q", got[1].Stage, StageDone)
	}
	if _, ok := <-ch; ok {
		t.Error("channel not closed after Close")
	}

	// Publishing after Close must be silently ignored.
	c.Publish(Event{Percent: 100})
}

func TestSubscribeAfterClose(t *testing.T) {
	c := NewChannel()
	c.Publish(Event{Percent: 100, Stage: StageDone})
	c.Close()

	ch, cancel := c.Subscribe()
	defer cancel()
	got := collect(t, ch, 1)
	if got[0].Percent != 100 {
		t.Errorf("subscriber after close got %+v, want final state", got[0])
	}
	if _, ok := <-ch; ok {
		t.Error("channel not closed for post-Close subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := NewChannel()
	ch, cancel := c.Subscribe()

	c.Publish(Event{Percent: 10})
	collect(t, ch, 1)
	cancel()
	cancel() // safe twice

	c.Publish(Event{Percent: 20})
	if ev, ok := <-ch; ok {
		t.Errorf("received %+v after unsubscribe", ev)
	}
}
