package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered the previous callback")
	}
}

func TestComponent(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	logf := Component("sweep")
	logf("iteration %d/%d", 1, 4)

	// Swapping the logger after Component was called still takes effect.
	var later []string
	SetLogger(func(format string, v ...interface{}) {
		later = append(later, fmt.Sprintf(format, v...))
	})
	logf("done")

	if len(lines) != 1 || lines[0] != "[sweep] iteration 1/4" {
		t.Errorf("unexpected first logger output: %q", lines)
	}
	if len(later) != 1 || later[0] != "[sweep] done" {
		t.Errorf("unexpected second logger output: %q", later)
	}
}
