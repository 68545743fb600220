package cradle

import (
	"encoding/json"
	"testing"
)

func TestFuncRunInvokesWrapped(t *testing.T) {
	called := false
	f := NewFunc(nil, func() (int, error) {
		called = true
		return 7, nil
	})
	code, err := f.Run()
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if code != 7 {
		t.Fatalf("code = %d, want 7", code)
	}
	if !called {
		t.Fatal("wrapped function was not invoked")
	}
}

func TestPollCommandNonBlockingEmpty(t *testing.T) {
	b := NewBase(nil)
	cmds := make(chan Command, 1)
	b.SetQueues(cmds, nil)

	if _, ok := b.PollCommand(); ok {
		t.Fatal("expected no command pending")
	}
}

func TestPollCommandReturnsOnlyOnePending(t *testing.T) {
	b := NewBase(nil)
	cmds := make(chan Command, 4)
	cmds <- Command{Cmd: Start}
	cmds <- Command{Cmd: Stop}
	b.SetQueues(cmds, nil)

	cmd, ok := b.PollCommand()
	if !ok || cmd.Cmd != Start {
		t.Fatalf("first poll = %+v, %v; want Start, true", cmd, ok)
	}
	cmd, ok = b.PollCommand()
	if !ok || cmd.Cmd != Stop {
		t.Fatalf("second poll = %+v, %v; want Stop, true", cmd, ok)
	}
	if _, ok := b.PollCommand(); ok {
		t.Fatal("expected channel drained")
	}
}

func TestPublishStatusNonBlockingWhenFull(t *testing.T) {
	b := NewBase(nil)
	status := make(chan any, 1)
	b.SetQueues(nil, status)

	b.PublishStatus("first")
	done := make(chan struct{})
	go func() {
		b.PublishStatus("second") // must not block even though buffer is full
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	<-done
}

func TestTargetConfigReturnsSubtree(t *testing.T) {
	b := NewBase([]byte(`{"a":1}`))
	if string(b.TargetConfig()) != `{"a":1}` {
		t.Fatalf("TargetConfig = %s", b.TargetConfig())
	}
}

func TestRegisterAndResolve(t *testing.T) {
	Register("test-cradle-registry", func(tc json.RawMessage) Cradle {
		return NewFunc(tc, func() (int, error) { return 0, nil })
	})

	c, err := Resolve("test-cradle-registry", []byte(`{}`))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c == nil {
		t.Fatal("expected non-nil cradle")
	}

	if _, err := Resolve("does-not-exist", nil); err == nil {
		t.Fatal("expected error resolving unknown cradle")
	}
}
