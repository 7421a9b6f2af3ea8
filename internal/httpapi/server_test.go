package httpapi

import (
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/tracker"
)

func TestHub_DropsForSlowSubscriber(t *testing.T) {
	h := NewHub(zap.NewNop())
	ch, cancel := h.Subscribe()
	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(tracker.Event{Kind: tracker.Offline})
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("want buffer full at %d, got %d", subscriberBuffer, len(ch))
	}
	cancel()
	cancel()
	if h.Subscribers() != 0 {
		t.Fatalf("want no subscribers after cancel")
	}
}
