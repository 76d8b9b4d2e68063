package bus

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicWindowCreated)
	defer b.Unsubscribe(sub)

	b.Publish(TopicWindowCreated, WindowEvent{WindowID: "w1", Role: "trading"})

	select {
	case event := <-sub.Ch():
		if event.Topic != TopicWindowCreated {
			t.Fatalf("topic = %q, want %q", event.Topic, TopicWindowCreated)
		}
		we, ok := event.Payload.(WindowEvent)
		if !ok {
			t.Fatalf("payload type = %T, want WindowEvent", event.Payload)
		}
		if we.WindowID != "w1" {
			t.Fatalf("window id = %q, want w1", we.WindowID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_PrefixMatching(t *testing.T) {
	b := New()

	winSub := b.Subscribe("window.")
	defer b.Unsubscribe(winSub)

	allSub := b.Subscribe("")
	defer b.Unsubscribe(allSub)

	b.Publish(TopicWindowClosed, WindowEvent{WindowID: "w1"})
	b.Publish(TopicDiagnosticsCompleted, DiagnosticsEvent{Status: "OK"})

	select {
	case event := <-winSub.Ch():
		if event.Topic != TopicWindowClosed {
			t.Fatalf("topic = %q, want %q", event.Topic, TopicWindowClosed)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for window event")
	}

	// winSub must not see the diagnostics topic.
	select {
	case event := <-winSub.Ch():
		t.Fatalf("unexpected event on winSub: %v", event)
	case <-time.After(50 * time.Millisecond):
	}

	received := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allSub.Ch():
			received++
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for all-topics event")
		}
	}
	if received != 2 {
		t.Fatalf("allSub received %d events, want 2", received)
	}
}

func TestBus_NonBlocking(t *testing.T) {
	b := New()
	sub := b.Subscribe("workflow.")
	defer b.Unsubscribe(sub)

	// Publish more events than the buffer holds; the publisher must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize*2; i++ {
			b.Publish(TopicWorkflowCompleted, WorkflowEvent{Name: "overflow"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber buffer")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	b.Unsubscribe(sub)

	if _, ok := <-sub.Ch(); ok {
		t.Fatal("channel still open after unsubscribe")
	}
	if n := b.SubscriberCount(); n != 0 {
		t.Fatalf("subscriber count = %d, want 0", n)
	}

	// Double unsubscribe must not panic.
	b.Unsubscribe(sub)
}

func TestBus_ConcurrentPublish(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Publish(TopicMessageDelivered, MessageEvent{Role: "memory", Delivered: 1})
			}
		}()
	}
	wg.Wait()

	drained := 0
	for {
		select {
		case <-sub.Ch():
			drained++
		default:
			if drained == 0 {
				t.Fatal("no events received from concurrent publishers")
			}
			return
		}
	}
}
