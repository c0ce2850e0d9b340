package probe

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"hostelrelay/internal/relay"
	logx "hostelrelay/pkg/logx"
)

type fakeTester struct {
	calls atomic.Int32
	res   relay.Result
}

func (f *fakeTester) TestConnection(context.Context) relay.Result {
	f.calls.Add(1)
	return f.res
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
	}{
		{"0 9 * * *", "0 9 * * *"},
		{"cron:*/30 * * * *", "*/30 * * * *"},
		{"@hourly", "@hourly"},
		{"@every 6h", "@every 6h"},
		{"6h", "@every 6h0m0s"},
		{" 90m ", "@every 1h30m0s"},
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.raw)
		if err != nil {
			t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseSchedule(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "soon", "0s", "61 * * * *", "@fortnightly"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) expected error", raw)
		}
	}
}

func TestRunOnceRecordsOutcome(t *testing.T) {
	ft := &fakeTester{res: relay.Failure("Unauthorized")}
	s, err := New(Config{Schedule: "@hourly", Location: time.UTC}, ft, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := s.RunOnce(context.Background())
	if res.OK || res.Reason != "Unauthorized" {
		t.Fatalf("RunOnce = %v", res)
	}
	snap := s.Snapshot()
	if snap.Runs != 1 || snap.Failures != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Last.Reason != "Unauthorized" || snap.LastAt.IsZero() {
		t.Fatalf("last = %+v at %v", snap.Last, snap.LastAt)
	}
}

func TestScheduledRun(t *testing.T) {
	ft := &fakeTester{res: relay.Success([]byte(`{"ok":true}`))}
	s, err := New(Config{Schedule: "@every 1s", Location: time.UTC}, ft, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	s.Start() // idempotent
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	deadline := time.Now().Add(5 * time.Second)
	for ft.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("probe did not run")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if snap := s.Snapshot(); snap.Failures != 0 || snap.Spec != "@every 1s" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s, err := New(Config{Schedule: "1h"}, &fakeTester{}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNewRejectsNilTester(t *testing.T) {
	if _, err := New(Config{Schedule: "1h"}, nil, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
