// Package gcdaemon runs incremental garbage collection in the background
// on a fixed interval, with a PID/state-file lifecycle a CLI can query
// and stop.
package gcdaemon

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/blockvault/blockvault/internal/logging"
	"github.com/blockvault/blockvault/internal/store"
)

var log = logging.GetLogger("gcdaemon")

const (
	PIDFileName   = "blockvault-gc.pid"
	StateFileName = "blockvault-gc.state"
)

// State is the daemon state persisted to disk.
type State struct {
	PID             int       `json:"pid"`
	StartTime       time.Time `json:"start_time"`
	DatabasePath    string    `json:"database_path"`
	IntervalSeconds int       `json:"interval_seconds"`
	LastRunAt       time.Time `json:"last_run_at,omitempty"`
	LastRunDone     bool      `json:"last_run_done"`
	LastRunError    string    `json:"last_run_error,omitempty"`
}

// Status is the current daemon status as reported to a caller.
type Status struct {
	Running         bool          `json:"running"`
	PID             int           `json:"pid,omitempty"`
	Uptime          time.Duration `json:"uptime,omitempty"`
	DatabasePath    string        `json:"database_path,omitempty"`
	IntervalSeconds int           `json:"interval_seconds,omitempty"`
	LastRunAt       time.Time     `json:"last_run_at,omitempty"`
	LastRunDone     bool          `json:"last_run_done,omitempty"`
	LastRunError    string        `json:"last_run_error,omitempty"`
}

// Daemon manages the GC background scheduler's lifecycle.
type Daemon struct {
	configDir string
}

// New creates a Daemon rooted at configDir, where its PID and state files
// live.
func New(configDir string) *Daemon {
	return &Daemon{configDir: configDir}
}

func (d *Daemon) PIDPath() string   { return filepath.Join(d.configDir, PIDFileName) }
func (d *Daemon) StatePath() string { return filepath.Join(d.configDir, StateFileName) }

func (d *Daemon) WritePID() error {
	return os.WriteFile(d.PIDPath(), []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.PIDPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

func (d *Daemon) RemovePID() error { return os.Remove(d.PIDPath()) }

func (d *Daemon) WriteState(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.StatePath(), data, 0644)
}

func (d *Daemon) ReadState() (*State, error) {
	data, err := os.ReadFile(d.StatePath())
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (d *Daemon) RemoveState() error { return os.Remove(d.StatePath()) }

// IsRunning reports whether the process named in the PID file is alive.
func (d *Daemon) IsRunning() bool {
	pid, err := d.ReadPID()
	if err != nil {
		return false
	}
	return d.isProcessRunning(pid)
}

func (d *Daemon) isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Status returns the current daemon status, cleaning up a stale PID file
// if the recorded process is no longer alive.
func (d *Daemon) Status() *Status {
	status := &Status{Running: false}

	pid, err := d.ReadPID()
	if err != nil {
		return status
	}
	if !d.isProcessRunning(pid) {
		d.RemovePID()
		d.RemoveState()
		return status
	}

	status.Running = true
	status.PID = pid

	if state, err := d.ReadState(); err == nil {
		status.DatabasePath = state.DatabasePath
		status.IntervalSeconds = state.IntervalSeconds
		status.LastRunAt = state.LastRunAt
		status.LastRunDone = state.LastRunDone
		status.LastRunError = state.LastRunError
		status.Uptime = time.Since(state.StartTime)
	}

	return status
}

// Stop sends SIGTERM, falling back to SIGKILL after a 5 second timeout.
func (d *Daemon) Stop() error {
	log.Info("stopping gc daemon")

	pid, err := d.ReadPID()
	if err != nil {
		return fmt.Errorf("gc daemon is not running (no PID file)")
	}
	if !d.isProcessRunning(pid) {
		d.RemovePID()
		d.RemoveState()
		return fmt.Errorf("gc daemon is not running (stale PID file)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	log.Debug("sending SIGTERM", "pid", pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	for i := 0; i < 50; i++ {
		if !d.isProcessRunning(pid) {
			d.RemovePID()
			d.RemoveState()
			log.Info("gc daemon stopped gracefully", "pid", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	log.Warn("gc daemon did not stop gracefully, sending SIGKILL", "pid", pid)
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}
	d.RemovePID()
	d.RemoveState()
	return nil
}

// Cleanup removes the PID and state files. Called by Run on exit.
func (d *Daemon) Cleanup() {
	d.RemovePID()
	d.RemoveState()
}

// Fork re-execs the current binary detached from the controlling
// terminal, with its own process group so it survives the parent
// exiting.
func (d *Daemon) Fork(args []string) error {
	if d.IsRunning() {
		return fmt.Errorf("gc daemon is already running")
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start gc daemon: %w", err)
	}
	return nil
}

// Params configures a Run loop.
type Params struct {
	Store           *store.Store
	DatabasePath    string
	IntervalSeconds int
	MinBlocks       int
	MaxDuration     time.Duration
	Targets         store.GCTargets
	Tracker         store.CacheTracker
	Stop            <-chan struct{}
}

// Run writes the PID/state files and ticks IncrementalGC on
// IntervalSeconds until Stop is closed. Intended to be called from the
// forked child process after Fork returns in the parent.
func (d *Daemon) Run(p Params) error {
	if d.IsRunning() {
		return fmt.Errorf("gc daemon is already running")
	}
	if err := d.WritePID(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer d.Cleanup()

	state := &State{
		PID:             os.Getpid(),
		StartTime:       time.Now(),
		DatabasePath:    p.DatabasePath,
		IntervalSeconds: p.IntervalSeconds,
	}
	if err := d.WriteState(state); err != nil {
		d.RemovePID()
		return fmt.Errorf("failed to write state file: %w", err)
	}

	ticker := time.NewTicker(time.Duration(p.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	log.Info("gc daemon started", "pid", state.PID, "interval_seconds", p.IntervalSeconds)

	for {
		select {
		case <-p.Stop:
			log.Info("gc daemon stopping")
			return nil
		case <-ticker.C:
			done, err := p.Store.IncrementalGC(p.MinBlocks, p.MaxDuration, p.Targets, p.Tracker)
			state.LastRunAt = time.Now()
			state.LastRunDone = done
			if err != nil {
				state.LastRunError = err.Error()
				log.Error("gc pass failed", "error", err)
			} else {
				state.LastRunError = ""
			}
			if werr := d.WriteState(state); werr != nil {
				log.Warn("failed to persist gc daemon state", "error", werr)
			}
		}
	}
}
