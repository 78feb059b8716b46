package core

import (
	"testing"
	"time"
)

func TestDebugWriter(t *testing.T) {
	defer SetDebugWriter(nil)

	DebugPrintln("dropped")
	if DebugEnabled() {
		t.Fatal("Expected debug output off without a writer")
	}

	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	DebugPrintln("hello")
	if len(lines) != 1 || lines[0] != "hello" {
		t.Errorf("Expected [hello], got %v", lines)
	}
}

func TestDebugAsync(t *testing.T) {
	defer SetDebugWriter(nil)

	got := make(chan string, 1)
	SetDebugWriter(func(s string) { got <- s })
	StartDebugQueue(4)

	if !DebugAsync("queued") {
		t.Fatal("Expected line to be queued")
	}
	select {
	case s := <-got:
		if s != "queued" {
			t.Errorf("Expected queued, got %s", s)
		}
	case <-time.After(time.Second):
		t.Error("Expected the queued line to be written")
	}
}

func TestUtoa(t *testing.T) {
	tests := map[uint32]string{
		0:          "0",
		7:          "7",
		1234:       "1234",
		4294967295: "4294967295",
	}
	for n, want := range tests {
		if got := Utoa(n); got != want {
			t.Errorf("Utoa(%d): expected %s, got %s", n, want, got)
		}
	}
}
