package recognition

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDispatcher_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSession(t, sink, nil)

	for i := range 100 {
		if _, err := s.OnCandidate(match(fmt.Sprintf("E%d", i), "x")); err != nil {
			t.Fatalf("OnCandidate failed: %v", err)
		}
	}
	stopDrain(t, s)

	events := sink.Events()
	if len(events) != 100 {
		t.Fatalf("expected 100 events, got %d", len(events))
	}
	for i, ev := range events {
		if want := fmt.Sprintf("E%d", i); ev.IdentityID != want {
			t.Fatalf("event %d: got %s, want %s", i, ev.IdentityID, want)
		}
	}
}

func TestDispatcher_EnqueueDoesNotBlockOnSlowSink(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{})}
	s := newTestSession(t, sink, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 1000 {
			s.OnCandidate(match(fmt.Sprintf("E%d", i%2), "x"))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("OnCandidate blocked behind a slow sink")
	}

	if pending := s.Status().Pending; pending < 998 {
		t.Errorf("expected queued events, got %d pending", pending)
	}

	close(sink.gate)
	stopDrain(t, s)

	if n := len(sink.Events()); n != 1000 {
		t.Errorf("expected 1000 delivered events, got %d", n)
	}
}

func TestDispatcher_StopDrainDeliversQueued(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{})}
	s := newTestSession(t, sink, nil)

	s.OnCandidate(match("E1", "Alice"))
	s.OnCandidate(match("E2", "Bob"))
	s.OnCandidate(match("E3", "Carol"))

	stopped := make(chan error, 1)
	go func() {
		stopped <- s.Stop(context.Background(), FlushDrain)
	}()

	select {
	case err := <-stopped:
		t.Fatalf("Stop returned before queued events were delivered: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.gate)
	if err := <-stopped; err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if n := len(sink.Events()); n != 3 {
		t.Errorf("expected 3 delivered events, got %d", n)
	}
}

func TestDispatcher_StopDiscardDropsQueued(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{}), started: make(chan struct{}, 10)}
	s := newTestSession(t, sink, nil)

	s.OnCandidate(match("E1", "Alice"))
	s.OnCandidate(match("E2", "Bob"))
	s.OnCandidate(match("E3", "Carol"))

	// Wait until the first event is in flight.
	<-sink.started

	stopped := make(chan error, 1)
	go func() {
		stopped <- s.Stop(context.Background(), FlushDiscard)
	}()

	// Release the sink only once the queue has been discarded.
	deadline := time.Now().Add(5 * time.Second)
	for s.dispatcher.pending() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("queue was not discarded")
		}
		time.Sleep(time.Millisecond)
	}

	close(sink.gate)
	if err := <-stopped; err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	events := sink.Events()
	if len(events) != 1 || events[0].IdentityID != "E1" {
		t.Errorf("expected only the in-flight event, got %+v", events)
	}
}

func TestDispatcher_StopTimeoutCancelsDelivery(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{})}
	s := newTestSession(t, sink, nil)

	s.OnCandidate(match("E1", "Alice"))
	s.OnCandidate(match("E2", "Bob"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Stop(ctx, FlushDrain)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	select {
	case <-s.dispatcher.done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not exit after cancellation")
	}
	if n := len(sink.Events()); n != 0 {
		t.Errorf("expected no recorded events, got %d", n)
	}
}

func TestDispatcher_NilSink(t *testing.T) {
	ann := &recordingAnnouncer{}
	s := newTestSession(t, nil, ann)

	s.OnCandidate(match("E1", "Alice"))
	stopDrain(t, s)

	if n := len(ann.Phrases()); n != 1 {
		t.Errorf("expected announcement without sink, got %d", n)
	}
}
