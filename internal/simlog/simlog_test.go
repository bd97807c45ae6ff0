package simlog

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewRespectsVerbose(t *testing.T) {
	quiet, err := New(false)
	if err != nil {
		t.Fatalf("New(false): %v", err)
	}
	if quiet.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("quiet logger should not enable debug level")
	}
	if !quiet.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("quiet logger should still enable warn level")
	}

	verbose, err := New(true)
	if err != nil {
		t.Fatalf("New(true): %v", err)
	}
	if !verbose.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("verbose logger should enable debug level")
	}
}

func TestNoopDiscardsWithoutPanicking(t *testing.T) {
	l := Noop()
	l.Info("this should go nowhere")
	ForNode(ForProtocol(l, "chord"), 42).Warn("tagged but still discarded")
}
