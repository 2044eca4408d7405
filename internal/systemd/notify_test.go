package systemd

import (
	"errors"
	"testing"
)

func TestNotifierStates(t *testing.T) {
	var sent []string
	n := &Notifier{send: func(state string) (bool, error) {
		sent = append(sent, state)
		return true, nil
	}}

	if err := n.Ready(); err != nil {
		t.Fatal(err)
	}
	if err := n.Status("all_nominal"); err != nil {
		t.Fatal(err)
	}
	if err := n.Watchdog(); err != nil {
		t.Fatal(err)
	}
	if err := n.Stopping(); err != nil {
		t.Fatal(err)
	}

	want := []string{"READY=1", "STATUS=all_nominal", "WATCHDOG=1", "STOPPING=1"}
	if len(sent) != len(want) {
		t.Fatalf("sent %v, want %v", sent, want)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, sent[i], want[i])
		}
	}
}

func TestNotifierError(t *testing.T) {
	n := &Notifier{send: func(string) (bool, error) {
		return false, errors.New("socket gone")
	}}
	if err := n.Ready(); err == nil {
		t.Error("Ready() should return the send error")
	}
}

func TestNotifierOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	if err := NewNotifier().Ready(); err != nil {
		t.Errorf("Ready() without NOTIFY_SOCKET = %v, want nil", err)
	}
	if d := WatchdogInterval(); d != 0 {
		t.Errorf("WatchdogInterval() = %s, want 0", d)
	}
}
