package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "hostelrelay/pkg/logx"
)

type capturedRequest struct {
	method      string
	path        string
	contentType string
	body        Message
}

type fakeBotAPI struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	response string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	var msg Message
	_ = json.Unmarshal(b, &msg)

	f.mu.Lock()
	f.requests = append(f.requests, capturedRequest{
		method:      r.Method,
		path:        r.URL.Path,
		contentType: r.Header.Get("Content-Type"),
		body:        msg,
	})
	status, response := f.status, f.response
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, response)
}

func (f *fakeBotAPI) calls() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedRequest(nil), f.requests...)
}

func newTestRelay(t *testing.T, api *fakeBotAPI, opts ...Option) *Relay {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := Config{
		Endpoint: BotEndpoint(srv.URL, "123:ABC"),
		ChatID:   "-100200300",
		Location: ist,
		Timeout:  2 * time.Second,
	}
	opts = append([]Option{WithClock(fixedTime)}, opts...)
	r, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestDeliverPostsSendMessageRequest(t *testing.T) {
	api := &fakeBotAPI{response: `{"ok":true,"result":{"message_id":7}}`}
	r := newTestRelay(t, api)

	res := r.Deliver(context.Background(), "hello *world*")
	if !res.OK {
		t.Fatalf("expected success, got %v", res)
	}
	if res.Err() != nil {
		t.Fatalf("Err() = %v, want nil", res.Err())
	}
	if !bytes.Contains(res.Raw, []byte(`"message_id":7`)) {
		t.Fatalf("raw response not preserved: %s", res.Raw)
	}

	calls := api.calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.method != http.MethodPost {
		t.Fatalf("method = %s, want POST", c.method)
	}
	if c.path != "/bot123:ABC/sendMessage" {
		t.Fatalf("path = %s", c.path)
	}
	if c.contentType != "application/json" {
		t.Fatalf("content-type = %q", c.contentType)
	}
	want := Message{ChatID: "-100200300", Text: "hello *world*", ParseMode: "Markdown"}
	if c.body != want {
		t.Fatalf("body = %+v, want %+v", c.body, want)
	}
}

func TestDeliverInterpretsEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		ok       bool
		reason   string
	}{
		{name: "ok true", response: `{"ok":true,"result":{}}`, ok: true},
		{name: "ok truthy number", response: `{"ok":1}`, ok: true},
		{name: "ok false with description", status: http.StatusBadRequest, response: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, reason: "Bad Request: chat not found"},
		{name: "ok false without description", status: http.StatusBadRequest, response: `{"ok":false}`, reason: ReasonUnknown},
		{name: "ok missing", response: `{"result":{}}`, reason: ReasonUnknown},
		{name: "empty description", response: `{"ok":false,"description":""}`, reason: ReasonUnknown},
		{name: "ok true despite status", status: http.StatusInternalServerError, response: `{"ok":true}`, ok: true},
		{name: "not json", status: http.StatusBadGateway, response: `<html>bad gateway</html>`, reason: ReasonNetwork},
		{name: "empty body", response: ``, reason: ReasonNetwork},
		{name: "json null", response: `null`, reason: ReasonNetwork},
		{name: "json array", response: `[]`, reason: ReasonUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeBotAPI{status: tt.status, response: tt.response}
			r := newTestRelay(t, api)
			res := r.Deliver(context.Background(), "x")
			if res.OK != tt.ok {
				t.Fatalf("OK = %v, want %v (reason %q)", res.OK, tt.ok, res.Reason)
			}
			if !tt.ok {
				if res.Reason != tt.reason {
					t.Fatalf("Reason = %q, want %q", res.Reason, tt.reason)
				}
				if res.Err() == nil || res.Err().Error() != tt.reason {
					t.Fatalf("Err() = %v, want %q", res.Err(), tt.reason)
				}
			}
		})
	}
}

func TestDeliverNetworkErrorWhenServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r, err := New(Config{Endpoint: BotEndpoint(url, "t"), ChatID: "1", Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := r.Deliver(context.Background(), "x")
	if res.OK || res.Reason != ReasonNetwork {
		t.Fatalf("got %v, want network failure", res)
	}
}

func TestDeliverNetworkErrorOnTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	r, err := New(Config{Endpoint: BotEndpoint(srv.URL, "t"), ChatID: "1", Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := r.Deliver(context.Background(), "x")
	if res.OK || res.Reason != ReasonNetwork {
		t.Fatalf("got %v, want network failure", res)
	}
}

type senderFunc func(ctx context.Context, msg Message) ([]byte, error)

func (f senderFunc) Send(ctx context.Context, msg Message) ([]byte, error) { return f(ctx, msg) }

func TestDeliverNeverPropagatesSenderFailures(t *testing.T) {
	tests := []struct {
		name   string
		sender Sender
	}{
		{name: "error", sender: senderFunc(func(context.Context, Message) ([]byte, error) {
			return nil, errors.New("dial tcp: lookup api.telegram.org: no such host")
		})},
		{name: "panic", sender: senderFunc(func(context.Context, Message) ([]byte, error) {
			panic("boom")
		})},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(Config{ChatID: "1"}, WithSender(tt.sender))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res := r.Deliver(context.Background(), "x")
			if res.OK || res.Reason != ReasonNetwork {
				t.Fatalf("got %v, want network failure", res)
			}
		})
	}
}

func TestDeliverLogsFailureClass(t *testing.T) {
	var buf bytes.Buffer
	log := logx.NewJSON(&buf, "debug")
	r, err := New(Config{ChatID: "1"}, WithLogger(log), WithSender(senderFunc(func(context.Context, Message) ([]byte, error) {
		return []byte(`{"ok":false,"description":"Forbidden: bot was blocked by the user"}`), nil
	})))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Deliver(context.Background(), "x")
	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "Forbidden: bot was blocked by the user") {
		t.Fatalf("expected warn log with reason, got %s", out)
	}
}

func TestNotifyBookingSendsFormattedMessage(t *testing.T) {
	api := &fakeBotAPI{response: `{"ok":true}`}
	r := newTestRelay(t, api)

	b := sampleBooking()
	b.InstituteCompany = ""
	b.GuardianEmail = ""
	res := r.NotifyBooking(context.Background(), b)
	if !res.OK {
		t.Fatalf("expected success, got %v", res)
	}

	calls := api.calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	text := calls[0].body.Text
	if text != FormatBooking(b, fixedTime(), FormatOptions{}) {
		t.Fatalf("unexpected text:\n%s", text)
	}
	for _, want := range []string{"Not specified", "Not provided", "15/10/2026, 3:04:05 pm"} {
		if !strings.Contains(text, want) {
			t.Fatalf("text missing %q", want)
		}
	}
}

func TestNotifyBookingDoesNotMutatePayload(t *testing.T) {
	api := &fakeBotAPI{response: `{"ok":true}`}
	r := newTestRelay(t, api, WithClock(fixedTime))

	b := sampleBooking()
	b.SpecialRequirements = "*late* arrival"
	before := b
	r2, err := New(Config{Endpoint: r.cfg.Endpoint, ChatID: "1", EscapeMarkdown: true, Location: ist})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.NotifyBooking(context.Background(), b)
	r2.NotifyBooking(context.Background(), b)
	if b != before {
		t.Fatalf("payload mutated: %+v", b)
	}
}

func TestNotifyBookingTwiceDeliversTwice(t *testing.T) {
	api := &fakeBotAPI{response: `{"ok":true}`}
	r := newTestRelay(t, api)

	b := sampleBooking()
	r.NotifyBooking(context.Background(), b)
	r.NotifyBooking(context.Background(), b)

	if n := len(api.calls()); n != 2 {
		t.Fatalf("calls = %d, want 2 (no dedup)", n)
	}
}

func TestNotifyContactSendsFullMessage(t *testing.T) {
	api := &fakeBotAPI{response: `{"ok":true}`}
	r := newTestRelay(t, api)

	c := Contact{Name: "N", Phone: "P", Email: "E", Subject: "Fees & deposit", Message: strings.Repeat("line\n", 100)}
	res := r.NotifyContact(context.Background(), c)
	if !res.OK {
		t.Fatalf("expected success, got %v", res)
	}
	text := api.calls()[0].body.Text
	if !strings.Contains(text, "🏷️ *Subject:* Fees & deposit") || !strings.Contains(text, c.Message) {
		t.Fatalf("subject or message altered:\n%s", text)
	}
}

func TestTestConnectionSendsFixedMessage(t *testing.T) {
	api := &fakeBotAPI{response: `{"ok":true}`}
	r := newTestRelay(t, api)

	if res := r.TestConnection(context.Background()); !res.OK {
		t.Fatalf("expected success, got %v", res)
	}
	if got := api.calls()[0].body.Text; got != "🧪 *TEST MESSAGE* 🧪\n\nTelegram Bot connection successful!" {
		t.Fatalf("test text = %q", got)
	}
}

func TestEndpointBuiltPerCall(t *testing.T) {
	var n atomic.Int32
	api := &fakeBotAPI{response: `{"ok":true}`}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	r, err := New(Config{
		Endpoint: func() string { n.Add(1); return srv.URL + "/custom" },
		ChatID:   "1",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Deliver(context.Background(), "a")
	r.Deliver(context.Background(), "b")
	if n.Load() != 2 {
		t.Fatalf("endpoint calls = %d, want 2", n.Load())
	}
	if p := api.calls()[0].path; p != "/custom" {
		t.Fatalf("path = %s, want /custom", p)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Endpoint: BotEndpoint("", "t")}); err == nil {
		t.Fatal("expected error for empty chat id")
	}
	if _, err := New(Config{ChatID: "1"}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
	r, err := New(Config{ChatID: "1", Endpoint: BotEndpoint("", "t")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg := r.Config()
	if cfg.ParseMode != ParseModeMarkdown {
		t.Fatalf("ParseMode = %q", cfg.ParseMode)
	}
	if cfg.Timeout != defaultTimeout {
		t.Fatalf("Timeout = %v", cfg.Timeout)
	}
	if cfg.Location == nil {
		t.Fatal("Location not defaulted")
	}
}

func TestBotEndpoint(t *testing.T) {
	t.Parallel()
	if got := BotEndpoint("", "42:XYZ")(); got != "https://api.telegram.org/bot42:XYZ/sendMessage" {
		t.Fatalf("default endpoint = %s", got)
	}
	if got := BotEndpoint("http://localhost:8081/", "42:XYZ")(); got != "http://localhost:8081/bot42:XYZ/sendMessage" {
		t.Fatalf("custom endpoint = %s", got)
	}
}
