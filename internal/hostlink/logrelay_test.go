package hostlink

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/setohima/UnityMCP-VRC/internal/wire"
)

func TestLogRelayQueuesUntilConnected(t *testing.T) {
	ts := newTestServer(t)
	l := newTestLink(t, ts.wsURL(), newFakeHost())
	relay := NewLogRelay(l)
	defer relay.Close()

	relay.Run(nil, zerolog.WarnLevel, "recorded while offline")
	time.Sleep(50 * time.Millisecond)
	if relay.Len() != 1 {
		t.Fatalf("queue = %d, want 1", relay.Len())
	}

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ts.waitKind(t, wire.KindHello)

	// The next event kicks the drain; both records must arrive in order.
	relay.Run(nil, zerolog.InfoLevel, "back online")

	first := ts.waitKind(t, wire.KindLog)
	var p wire.LogPayload
	if err := json.Unmarshal(first.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Message != "recorded while offline" || p.Severity != "warn" {
		t.Fatalf("first relayed = %+v", p)
	}
	second := ts.waitKind(t, wire.KindLog)
	if err := json.Unmarshal(second.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Message != "back online" || p.Severity != "info" {
		t.Fatalf("second relayed = %+v", p)
	}
	if p.Timestamp.IsZero() {
		t.Fatal("relayed record has no timestamp")
	}
}

func TestLogRelayBoundsQueue(t *testing.T) {
	ts := newTestServer(t)
	ts.healthy.Store(false)
	l := newTestLink(t, ts.wsURL(), newFakeHost())
	relay := NewLogRelay(l)
	defer relay.Close()

	for i := 0; i < relayQueueSize+10; i++ {
		relay.Run(nil, zerolog.InfoLevel, fmt.Sprintf("event %d", i))
	}
	time.Sleep(50 * time.Millisecond)
	if relay.Len() != relayQueueSize {
		t.Fatalf("queue = %d, want %d", relay.Len(), relayQueueSize)
	}
}

func TestLogRelaySkipsEmptyEvents(t *testing.T) {
	ts := newTestServer(t)
	l := newTestLink(t, ts.wsURL(), newFakeHost())
	relay := NewLogRelay(l)
	defer relay.Close()

	relay.Run(nil, zerolog.NoLevel, "ignored")
	relay.Run(nil, zerolog.InfoLevel, "")
	if relay.Len() != 0 {
		t.Fatalf("queue = %d, want 0", relay.Len())
	}
}

func TestSeverityOf(t *testing.T) {
	cases := map[zerolog.Level]string{
		zerolog.TraceLevel: "trace",
		zerolog.DebugLevel: "debug",
		zerolog.InfoLevel:  "info",
		zerolog.WarnLevel:  "warn",
		zerolog.ErrorLevel: "error",
		zerolog.FatalLevel: "fatal",
		zerolog.PanicLevel: "fatal",
	}
	for lvl, want := range cases {
		if got := severityOf(lvl); got != want {
			t.Fatalf("severityOf(%s) = %q, want %q", lvl, got, want)
		}
	}
}
