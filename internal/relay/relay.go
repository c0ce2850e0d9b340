package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	logx "hostelrelay/pkg/logx"
)

// Relay formats submissions and delivers them to the configured chat.
// It holds no mutable state, so one Relay serves concurrent callers.
type Relay struct {
	cfg    Config
	sender Sender
	log    logx.Logger
	now    func() time.Time
}

type Option func(*Relay)

// WithSender replaces the default HTTPSender (built from Config.Endpoint).
func WithSender(s Sender) Option {
	return func(r *Relay) { r.sender = s }
}

func WithLogger(log logx.Logger) Option {
	return func(r *Relay) { r.log = log }
}

// WithClock overrides the clock used for "Submitted at".
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

func New(cfg Config, opts ...Option) (*Relay, error) {
	if strings.TrimSpace(cfg.ChatID) == "" {
		return nil, errors.New("relay: chat id is empty")
	}
	if strings.TrimSpace(cfg.ParseMode) == "" {
		cfg.ParseMode = ParseModeMarkdown
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Location == nil {
		cfg.Location = DefaultLocation()
	}

	r := &Relay{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	if r.sender == nil {
		if cfg.Endpoint == nil {
			return nil, errors.New("relay: endpoint not configured")
		}
		r.sender = NewHTTPSender(cfg.Endpoint, &http.Client{Timeout: cfg.Timeout})
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r, nil
}

// DefaultLocation returns Asia/Kolkata, falling back to a fixed +05:30
// zone when tzdata is unavailable.
func DefaultLocation() *time.Location {
	if loc, err := time.LoadLocation(defaultTimezone); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*60*60+30*60)
}

// Config returns a copy of the effective configuration.
func (r *Relay) Config() Config { return r.cfg }

func (r *Relay) formatOptions() FormatOptions {
	return FormatOptions{EscapeMarkdown: r.cfg.EscapeMarkdown}
}

func (r *Relay) submittedAt() time.Time {
	return r.now().In(r.cfg.Location)
}

// NotifyBooking renders b and delivers it. Missing required fields are
// not rejected; the message is sent as-is.
func (r *Relay) NotifyBooking(ctx context.Context, b Booking) Result {
	text := FormatBooking(b, r.submittedAt(), r.formatOptions())
	return r.deliver(ctx, text, logx.String("kind", "booking"), logx.String("booking_id", b.BookingID))
}

func (r *Relay) NotifyContact(ctx context.Context, c Contact) Result {
	text := FormatContact(c, r.submittedAt(), r.formatOptions())
	return r.deliver(ctx, text, logx.String("kind", "contact"))
}

// TestConnection sends TestMessage; used to smoke-test the configuration.
func (r *Relay) TestConnection(ctx context.Context) Result {
	return r.deliver(ctx, TestMessage, logx.String("kind", "test"))
}

// Deliver sends text to the configured chat and interprets the response.
func (r *Relay) Deliver(ctx context.Context, text string) Result {
	return r.deliver(ctx, text, logx.String("kind", "raw"))
}

func (r *Relay) deliver(ctx context.Context, text string, fields ...logx.Field) (res Result) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := r.log.With(fields...)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			log.Error("panic while sending notification", logx.String("panic", fmt.Sprint(p)))
			res = Failure(ReasonNetwork)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	data, err := r.sender.Send(sendCtx, Message{
		ChatID:    r.cfg.ChatID,
		Text:      text,
		ParseMode: r.cfg.ParseMode,
	})
	if err != nil {
		log.Error("network error sending notification", logx.Err(err), logx.Duration("took", time.Since(start)))
		return Failure(ReasonNetwork)
	}

	res = Interpret(data)
	switch {
	case res.OK:
		log.Info("notification sent", logx.Int("chars", len(text)), logx.Duration("took", time.Since(start)))
	case res.Reason == ReasonNetwork:
		log.Error("unreadable response from messaging api", logx.Int("bytes", len(data)))
	default:
		log.Warn("messaging api rejected notification", logx.String("reason", res.Reason))
	}
	return res
}

// Interpret maps a raw response envelope to a Result. A truthy "ok"
// is success; otherwise "description" (when present) is the reason.
// A body that is not a JSON value counts as a transport failure.
func Interpret(data []byte) Result {
	var v any
	if err := json.Unmarshal(data, &v); err != nil || v == nil {
		return Failure(ReasonNetwork)
	}
	env, ok := v.(map[string]any)
	if !ok {
		return Failure(ReasonUnknown)
	}
	if truthy(env["ok"]) {
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Success(raw)
	}
	if d, ok := env["description"].(string); ok && d != "" {
		return Failure(d)
	}
	return Failure(ReasonUnknown)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
