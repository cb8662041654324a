package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op logger
	SetLogger(nil)
	Logf("test message")

	captured := false
	SetLogger(func(format string, v ...interface{}) {
		captured = true
	})
	Logf("test")
	if !captured {
		t.Error("replacement logger should have been called")
	}

	captured = false
	SetLogger(nil)
	Logf("test")
	if captured {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("test message: %s", "value")
}

func TestPrefixed(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	plog := Prefixed("pipeline")
	plog("scored %d vehicles", 3)
	if got != "[pipeline] scored 3 vehicles" {
		t.Errorf("Prefixed logged %q", got)
	}

	// Prefixed loggers follow later SetLogger calls.
	var second string
	SetLogger(func(format string, v ...interface{}) {
		second = fmt.Sprintf(format, v...)
	})
	plog("done")
	if second != "[pipeline] done" {
		t.Errorf("Prefixed after SetLogger logged %q", second)
	}
}
