package ratelimit

import (
	"testing"
	"time"
)

func TestAdmitWithinWindow(t *testing.T) {
	l := New(10, 60*time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		if !l.Admit("X", base.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}
	if l.Admit("X", base.Add(11*time.Second)) {
		t.Fatalf("11th request within window should be denied")
	}
}

func TestAdmitAfterWindowElapsed(t *testing.T) {
	l := New(10, 60*time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		l.Admit("X", base)
	}
	if l.Admit("X", base.Add(30*time.Second)) {
		t.Fatalf("expected denial while window is full")
	}
	if !l.Admit("X", base.Add(61*time.Second)) {
		t.Fatalf("expected admission after window fully elapsed")
	}
}

func TestIdentifiersAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	now := time.Now()

	if !l.Admit("a", now) {
		t.Fatalf("first request for a should pass")
	}
	if l.Admit("a", now) {
		t.Fatalf("second request for a should be denied")
	}
	if !l.Admit("b", now) {
		t.Fatalf("b must not be affected by a's window")
	}
}

func TestDefaults(t *testing.T) {
	l := New(0, 0)
	if l.max != DefaultMaxRequests || l.window != DefaultWindow {
		t.Fatalf("expected defaults, got max=%d window=%s", l.max, l.window)
	}
}
