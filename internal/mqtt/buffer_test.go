package mqtt

import (
	"fmt"
	"testing"
)

func TestRingBufferPushDrain(t *testing.T) {
	r := newRingBuffer(4)

	r.push(queuedMsg{topic: "a", payload: []byte("1")})
	r.push(queuedMsg{topic: "b", payload: []byte("2")})
	if r.len() != 2 {
		t.Fatalf("expected 2 buffered, got %d", r.len())
	}

	drained := r.drainAll()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained, got %d", len(drained))
	}
	if drained[0].topic != "a" || drained[1].topic != "b" {
		t.Errorf("wrong order: %s, %s", drained[0].topic, drained[1].topic)
	}
	if r.len() != 0 {
		t.Errorf("buffer not empty after drain: %d", r.len())
	}
}

func TestRingBufferDrainEmpty(t *testing.T) {
	r := newRingBuffer(4)
	if got := r.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %v", got)
	}
}

func TestRingBufferOverflowDropsOldest(t *testing.T) {
	r := newRingBuffer(3)

	for i := 0; i < 5; i++ {
		r.push(queuedMsg{topic: fmt.Sprintf("msg-%d", i)})
	}
	if r.len() != 3 {
		t.Fatalf("expected len 3 after overflow, got %d", r.len())
	}

	drained := r.drainAll()
	want := []string{"msg-2", "msg-3", "msg-4"}
	for i, topic := range want {
		if drained[i].topic != topic {
			t.Errorf("slot %d: got %s, want %s", i, drained[i].topic, topic)
		}
	}
}

func TestRingBufferReusableAfterDrain(t *testing.T) {
	r := newRingBuffer(2)

	r.push(queuedMsg{topic: "x"})
	r.push(queuedMsg{topic: "y"})
	r.push(queuedMsg{topic: "z"}) // drops x
	r.drainAll()

	r.push(queuedMsg{topic: "after"})
	drained := r.drainAll()
	if len(drained) != 1 || drained[0].topic != "after" {
		t.Errorf("unexpected contents after reuse: %+v", drained)
	}
}
