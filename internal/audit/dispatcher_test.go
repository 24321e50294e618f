package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{Action: "login", UserID: "user-1", Success: true})

	select {
	case got := <-sink.Events():
		if got.Action != "login" || got.UserID != "user-1" || !got.Success {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestDispatcherDisabled(t *testing.T) {
	var d *Dispatcher = NewDispatcher(Config{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	// Nil receiver is safe.
	d.Emit(context.Background(), Event{Action: "login"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher cannot drop")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	// A sink that never consumes: buffer fills, later events drop.
	blocked := make(chan struct{})
	sink := sinkFunc(func(ctx context.Context, _ Event) {
		select {
		case <-blocked:
		case <-ctx.Done():
		}
	})

	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 16; i++ {
		d.Emit(context.Background(), Event{Action: "denied"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a saturated buffer")
	}
	close(blocked)
	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Action: "refresh"})
	}
	d.Close()

	delivered := 0
	for {
		select {
		case <-sink.Events():
			delivered++
		default:
			if delivered != 5 {
				t.Fatalf("Close must drain buffered events: got %d of 5", delivered)
			}
			return
		}
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		Action:       "guard_denied",
		UserID:       "user-1",
		ResourceType: "route",
		ResourceID:   "/admin",
		Success:      false,
		Error:        "missing role",
	})
	sink.Emit(context.Background(), Event{Action: "login", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 JSON lines, got %d", len(lines))
	}

	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0 not valid JSON: %v", err)
	}
	if first.Action != "guard_denied" || first.ResourceID != "/admin" || first.Success {
		t.Fatalf("unexpected decoded event: %+v", first)
	}
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
