package gate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "al***@example.com"},
		{"ab@example.com", "a***@example.com"},
		{"añejo@example.com", "añ***@example.com"},
		{"ñu@example.com", "ñ***@example.com"},
		{"a@example.com", "a***@example.com"},
		{"@example.com", "***@example.com"},
		{"not-an-email", "***"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := maskEmail(tt.in); got != tt.want {
				t.Errorf("maskEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMaskIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.2.3.4", "1.2.3.0/24"},
		{"203.0.113.255", "203.0.113.0/24"},
		{"2001:db8:abcd:12::1", "2001:db8:abcd::/48"},
		{"0.0.0.0", "0.0.0.0/24"},
		{"garbage", "***"},
		{"", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := maskIP(tt.in); got != tt.want {
				t.Errorf("maskIP(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	sink.Emit(context.Background(), Event{ID: "1", Timestamp: ts, Action: ActionSignUp, Success: true})
	sink.Emit(context.Background(), Event{ID: "2", Timestamp: ts, Action: ActionForgotPassword, Reason: ReasonCaptchaFailed})

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]any
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		lines = append(lines, m)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["action"] != "signup" || lines[0]["success"] != true {
		t.Errorf("unexpected first line: %v", lines[0])
	}
	if _, ok := lines[0]["reason"]; ok {
		t.Error("empty reason should be omitted")
	}
	if lines[1]["reason"] != "captcha_failed" || lines[1]["success"] != false {
		t.Errorf("unexpected second line: %v", lines[1])
	}
}

func TestJSONWriterSink_NilWriter(t *testing.T) {
	var sink *JSONWriterSink
	sink.Emit(context.Background(), Event{})
	NewJSONWriterSink(nil).Emit(context.Background(), Event{})
}

func TestChannelSink_ContextDone(t *testing.T) {
	sink := NewChannelSink(0)
	sink.Emit(context.Background(), Event{ID: "first"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sink.Emit(ctx, Event{ID: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer after ctx was cancelled")
	}

	if ev := <-sink.Events(); ev.ID != "first" {
		t.Errorf("got %q, want first", ev.ID)
	}
}
