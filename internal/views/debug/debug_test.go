package debug

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestAddEntry(t *testing.T) {
	m := New(nil)
	m.Add("ws", "connected")
	entries := m.Log.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Kind != "ws" {
		t.Errorf("expected kind 'ws', got %q", entries[0].Kind)
	}
}

func TestMaxEntries(t *testing.T) {
	m := New(nil)
	for i := 0; i < maxEntries+50; i++ {
		m.Add("ws", "msg")
	}
	if m.Log.Len() != maxEntries {
		t.Errorf("expected %d entries, got %d", maxEntries, m.Log.Len())
	}
}

func TestScrollUpDown(t *testing.T) {
	m := New(nil)
	for i := 0; i < 20; i++ {
		m.Add("ws", "msg")
	}

	m.ScrollUp(5)
	if m.Offset != 5 {
		t.Errorf("expected offset 5, got %d", m.Offset)
	}

	m.ScrollDown(3)
	if m.Offset != 2 {
		t.Errorf("expected offset 2, got %d", m.Offset)
	}

	m.ScrollDown(10)
	if m.Offset != 0 {
		t.Errorf("expected offset 0, got %d", m.Offset)
	}
}

func TestScrollUpCapped(t *testing.T) {
	m := New(nil)
	for i := 0; i < 5; i++ {
		m.Add("ws", "msg")
	}
	m.ScrollUp(100)
	if m.Offset != 4 {
		t.Errorf("expected offset 4, got %d", m.Offset)
	}
}

func TestViewEmpty(t *testing.T) {
	v := New(nil).View(80, 20)
	if !strings.Contains(v, "No events") {
		t.Error("empty view should show 'No events' message")
	}
}

func TestViewWithEntries(t *testing.T) {
	m := New(nil)
	m.Add("ws", "connected")
	m.Add("err", "timeout")
	v := m.View(80, 20)
	if !strings.Contains(v, "connected") {
		t.Error("view should contain 'connected'")
	}
	if !strings.Contains(v, "timeout") {
		t.Error("view should contain 'timeout'")
	}
}

func TestLogrusHook(t *testing.T) {
	log := NewLog()
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.AddHook(log)

	l.WithField("component", "monitor").WithField("session", "device-01").Info("monitor enabled")
	l.WithField("component", "monitor").WithError(errors.New("timeout")).Warn("status poll failed")
	l.Debug("not captured")

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != "monitor" || entries[0].Message != "device-01: monitor enabled" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Kind != "err" || entries[1].Message != "status poll failed: timeout" {
		t.Errorf("unexpected second entry %+v", entries[1])
	}
}
