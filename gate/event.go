package gate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nhalm/authgate"
	"github.com/nhalm/canonlog"
)

// Event is the structured record of one finished auth action. Email and IP
// are masked; Detail holds the internal error text and never reaches the caller.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Action     Action    `json:"action"`
	Success    bool      `json:"success"`
	Reason     Reason    `json:"reason,omitempty"`
	Email      string    `json:"email,omitempty"`
	IP         string    `json:"ip,omitempty"`
	RetryAfter int       `json:"retry_after,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// EventSink receives every Event. Emit must not block the request for long.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(append(data, '\n'))
}

// ChannelSink delivers events on a buffered channel.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a sink with the given buffer (at least 1).
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

// Emit blocks until the event is buffered or ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

func (s *Service) record(ctx context.Context, ev Event) {
	ev.ID = uuid.NewString()
	ev.Timestamp = s.now().UTC()
	if id, ok := authgate.RequestIDFromContext(ctx); ok {
		ev.RequestID = id
	}

	outcome := "success"
	if !ev.Success {
		outcome = "failure"
	}

	if _, ok := canonlog.TryGetLogger(ctx); ok {
		fields := map[string]any{
			"auth_event_id": ev.ID,
			"auth_action":   string(ev.Action),
			"auth_outcome":  outcome,
			"auth_email":    ev.Email,
			"auth_ip":       ev.IP,
		}
		if ev.Reason != "" {
			fields["auth_reason"] = string(ev.Reason)
		}
		if ev.RetryAfter > 0 {
			fields["auth_retry_after"] = ev.RetryAfter
		}
		if ev.Detail != "" {
			fields["auth_detail"] = ev.Detail
		}
		canonlog.InfoAddMany(ctx, fields)
	} else {
		level := slog.LevelInfo
		if !ev.Success {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "auth action",
			"event_id", ev.ID,
			"action", ev.Action,
			"outcome", outcome,
			"reason", ev.Reason,
			"email", ev.Email,
			"ip", ev.IP,
			"detail", ev.Detail,
		)
	}

	s.emit(ctx, ev)
}

// emit delivers ev to the sink. A panicking sink loses the event, not the request.
func (s *Service) emit(ctx context.Context, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "event sink panicked", "event_id", ev.ID, "panic", rec)
		}
	}()
	s.sink.Emit(ctx, ev)
}

// maskEmail keeps the first two characters (runes) of the local part and the domain.
func maskEmail(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		if address == "" {
			return ""
		}
		return "***"
	}
	local, domain := []rune(address[:at]), address[at+1:]
	keep := min(2, len(local))
	if len(local) <= 2 {
		keep = min(1, len(local))
	}
	return string(local[:keep]) + "***@" + domain
}

// maskIP zeroes the host part: the last octet of IPv4, the last 80 bits of IPv6.
func maskIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "***"
	}
	bits := 24
	if addr.Is6() {
		bits = 48
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "***"
	}
	return prefix.String()
}
