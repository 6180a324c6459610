package web

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "hello")

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Msg != "hello" {
			t.Errorf("msg = %q, want \"hello\"", evt.Msg)
		}
		if evt.Level != "info" {
			t.Errorf("level = %q, want \"info\"", evt.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Broadcast("info", "multi")

	for i, ch := range []<-chan string{ch1, ch2} {
		select {
		case msg := <-ch:
			var evt StatusEvent
			if err := json.Unmarshal([]byte(msg), &evt); err != nil {
				t.Fatalf("subscriber %d: unmarshal: %v", i, err)
			}
			if evt.Msg != "multi" {
				t.Errorf("subscriber %d: msg = %q, want \"multi\"", i, evt.Msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timeout", i)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()

	// Channel should be closed after unsubscribe
	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	// Fill the channel buffer (64 messages)
	for i := 0; i < 64; i++ {
		b.Broadcast("info", "fill")
	}

	// This should not panic or block; the message is dropped
	b.Broadcast("info", "overflow")

	// Drain and count messages
	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:
	if count != 64 {
		t.Errorf("expected 64 buffered messages, got %d", count)
	}
}

func TestBroadcaster_AfterUnsubscribeBroadcastDoesNotPanic(t *testing.T) {
	b := NewStatusBroadcaster()
	_, unsub := b.Subscribe()
	unsub()

	// Broadcasting after unsubscribe should not panic, nor a second unsub
	b.Broadcast("info", "after unsub")
	unsub()
}

func TestBroadcaster_BroadcastMsg(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.BroadcastMsg("convenience")

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Level != "info" {
			t.Errorf("level = %q, want \"info\"", evt.Level)
		}
		if evt.Msg != "convenience" {
			t.Errorf("msg = %q, want \"convenience\"", evt.Msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestBroadcastWriter_Write(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	n, err := w.Write([]byte("  trimmed message  \n"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != len("  trimmed message  \n") {
		t.Errorf("n = %d, want %d", n, len("  trimmed message  \n"))
	}

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Msg != "trimmed message" {
			t.Errorf("msg = %q, want \"trimmed message\"", evt.Msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestBroadcastWriter_EmptyWriteIgnored(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	w.Write([]byte("   \n"))

	select {
	case <-ch:
		t.Error("expected no message for whitespace-only write")
	case <-time.After(50 * time.Millisecond):
		// expected: no message
	}
}

func TestBroadcaster_EventHasTimestamp(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "timestamped")

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Time == "" {
			t.Error("event should have a timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestBroadcaster_NewSubscriberGetsHistory(t *testing.T) {
	b := NewStatusBroadcaster()
	for i := 0; i < historySize+5; i++ {
		b.Broadcast("live", "frame")
	}
	b.Broadcast("info", "last")

	ch, unsub := b.Subscribe()
	defer unsub()

	count := 0
	var last StatusEvent
	for {
		select {
		case msg := <-ch:
			count++
			if err := json.Unmarshal([]byte(msg), &last); err != nil {
				t.Fatal(err)
			}
			continue
		default:
		}
		break
	}
	if count != historySize {
		t.Errorf("replayed %d events, want %d", count, historySize)
	}
	if last.Msg != "last" {
		t.Errorf("last replayed = %q, want \"last\"", last.Msg)
	}
}

func TestBroadcastWriter_ParsesDebugLines(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	w.Write([]byte("[spinrec] 2026/10/19 10:00:00.000001 [LIVE] [19225811] Grabbed image 3\n" +
		"[spinrec] 2026/10/19 10:00:00.000002 [ERROR] [19225812] image incomplete\n"))

	want := []StatusEvent{
		{Level: "live", Camera: "19225811", Msg: "Grabbed image 3"},
		{Level: "error", Camera: "19225812", Msg: "image incomplete"},
	}
	for _, wnt := range want {
		select {
		case msg := <-ch:
			var evt StatusEvent
			if err := json.Unmarshal([]byte(msg), &evt); err != nil {
				t.Fatal(err)
			}
			evt.Time = ""
			if evt != wnt {
				t.Errorf("event = %+v, want %+v", evt, wnt)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
}

func TestParseLogLine(t *testing.T) {
	cases := []struct {
		line string
		want StatusEvent
		ok   bool
	}{
		{"[spinrec] 2026/10/19 10:00:00.000001 [INFO] Number of cameras detected: 2",
			StatusEvent{Level: "info", Msg: "Number of cameras detected: 2"}, true},
		{"[spinrec] 2026/10/19 10:00:00.000001 [NODE] read TriggerMode value=Off",
			StatusEvent{Level: "trace", Msg: "read TriggerMode value=Off"}, true},
		{"[spinrec] 2026/10/19 10:00:00.000001   Acquisition",
			StatusEvent{Level: "info", Msg: "Acquisition"}, true},
		{"plain text", StatusEvent{Level: "info", Msg: "plain text"}, true},
		{"[UNKNOWN] kept", StatusEvent{Level: "info", Camera: "UNKNOWN", Msg: "kept"}, true},
		{"   ", StatusEvent{}, false},
	}
	for _, tc := range cases {
		got, ok := parseLogLine(tc.line)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseLogLine(%q) = %+v, %v; want %+v, %v", tc.line, got, ok, tc.want, tc.ok)
		}
	}
}
