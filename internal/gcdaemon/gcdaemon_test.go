package gcdaemon

import (
	"os"
	"testing"
	"time"
)

func TestStatusWhenNeverStarted(t *testing.T) {
	d := New(t.TempDir())

	status := d.Status()
	if status.Running {
		t.Errorf("expected Running=false, got true")
	}
}

func TestWriteReadState(t *testing.T) {
	d := New(t.TempDir())

	state := &State{
		PID:             os.Getpid(),
		StartTime:       time.Now(),
		DatabasePath:    "/tmp/blocks.db",
		IntervalSeconds: 300,
	}
	if err := d.WriteState(state); err != nil {
		t.Fatalf("write state: %v", err)
	}

	got, err := d.ReadState()
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if got.DatabasePath != state.DatabasePath || got.IntervalSeconds != state.IntervalSeconds {
		t.Errorf("state mismatch: got %+v, want %+v", got, state)
	}
}

func TestStatusReportsOwnPIDAsRunning(t *testing.T) {
	d := New(t.TempDir())

	if err := d.WritePID(); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	state := &State{PID: os.Getpid(), StartTime: time.Now(), IntervalSeconds: 60}
	if err := d.WriteState(state); err != nil {
		t.Fatalf("write state: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Errorf("expected the daemon's own process to read as running")
	}
	if status.IntervalSeconds != 60 {
		t.Errorf("expected interval 60, got %d", status.IntervalSeconds)
	}
}

func TestStopWithoutPIDFile(t *testing.T) {
	d := New(t.TempDir())
	if err := d.Stop(); err == nil {
		t.Errorf("expected Stop to fail when no PID file exists")
	}
}

func TestRunStopsOnSignal(t *testing.T) {
	d := New(t.TempDir())
	stop := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- d.Run(Params{
			Store:           nil,
			DatabasePath:    "",
			IntervalSeconds: 3600,
			Stop:            stop,
		})
	}()

	close(stop)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}
}
