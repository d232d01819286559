package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockvault/blockvault/internal/gcdaemon"
	"github.com/blockvault/blockvault/internal/store"
)

var (
	gcMinBlocks   int
	gcMaxDuration time.Duration
	gcMaxCount    int64
	gcMaxSize     int64
	gcTracker     string

	gcDaemonFlag bool
	gcStartFlag  bool
	gcStopFlag   bool
	gcStatusFlag bool
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run incremental garbage collection, or manage the background GC daemon",
	Long: `Without flags, gc runs a single bounded incremental-GC pass in the
foreground. --start/--stop/--status manage a background daemon that
reruns GC on a fixed interval; --daemon is the internal flag used by the
forked daemon process itself and should not be invoked directly.

Examples:
  blockvault gc
  blockvault gc --max-count 10000 --max-size-bytes 104857600
  blockvault gc --start
  blockvault gc --status
  blockvault gc --stop`,
	Run: func(cmd *cobra.Command, args []string) {
		switch {
		case gcDaemonFlag:
			runGCDaemonChild()
		case gcStartFlag:
			runGCStart()
		case gcStopFlag:
			runGCStop()
		case gcStatusFlag:
			runGCStatus()
		default:
			runGCOnce()
		}
	},
}

var sweepOrphansCmd = &cobra.Command{
	Use:   "sweep-orphans",
	Short: "Delete block payloads with no owning identifier",
	Run: func(cmd *cobra.Command, args []string) {
		runSweepOrphans()
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(sweepOrphansCmd)

	gcCmd.Flags().IntVar(&gcMinBlocks, "min-blocks", 100, "minimum candidates to evict before checking the time budget")
	gcCmd.Flags().DurationVar(&gcMaxDuration, "max-duration", 500*time.Millisecond, "time budget for one GC pass")
	gcCmd.Flags().Int64Var(&gcMaxCount, "max-count", 1_000_000, "GC runs while stored block count exceeds this")
	gcCmd.Flags().Int64Var(&gcMaxSize, "max-size-bytes", 1<<30, "GC runs while stored payload bytes exceed this")
	gcCmd.Flags().StringVar(&gcTracker, "tracker", "fifo", "eviction order: null, fifo, or size")

	gcCmd.Flags().BoolVar(&gcDaemonFlag, "daemon", false, "internal: run as the forked background daemon")
	gcCmd.Flags().BoolVar(&gcStartFlag, "start", false, "fork and start the background GC daemon")
	gcCmd.Flags().BoolVar(&gcStopFlag, "stop", false, "stop the background GC daemon")
	gcCmd.Flags().BoolVar(&gcStatusFlag, "status", false, "report background GC daemon status")
	gcCmd.Flags().MarkHidden("daemon")

	sweepOrphansCmd.Flags().IntVar(&gcMinBlocks, "min-blocks", 100, "minimum orphans to delete before checking the time budget")
	sweepOrphansCmd.Flags().DurationVar(&gcMaxDuration, "max-duration", 500*time.Millisecond, "time budget for one sweep pass")
}

func resolveTracker(s *store.Store) store.CacheTracker {
	switch gcTracker {
	case "null":
		return store.NullTracker{}
	case "size":
		return store.NewSizeTracker(s)
	default:
		return store.FIFOTracker{}
	}
}

func runGCOnce() {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	targets := store.GCTargets{MaxCount: gcMaxCount, MaxSize: gcMaxSize}
	done, err := s.IncrementalGC(gcMinBlocks, gcMaxDuration, targets, resolveTracker(s))
	if err != nil {
		fail("error running gc: %v", err)
	}
	if done {
		fmt.Println("gc complete: targets satisfied or no candidates remained")
	} else {
		fmt.Println("gc pass bounded by budget: more candidates remain, run again")
	}
}

func runSweepOrphans() {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	done, err := s.IncrementalDeleteOrphaned(gcMinBlocks, gcMaxDuration)
	if err != nil {
		fail("error sweeping orphans: %v", err)
	}
	if done {
		fmt.Println("orphan sweep complete")
	} else {
		fmt.Println("orphan sweep bounded by budget: more orphans remain, run again")
	}
}

func runGCStart() {
	cfg, err := loadConfig()
	if err != nil {
		fail("error: %v", err)
	}

	d := gcdaemon.New(filepath.Dir(cfg.Database.Path))
	args := []string{"gc", "--daemon",
		"--min-blocks", fmt.Sprint(cfg.GC.MinBlocks),
		"--max-duration", fmt.Sprintf("%dms", cfg.GC.MaxDurationMS),
		"--max-count", fmt.Sprint(cfg.GC.MaxCount),
		"--max-size-bytes", fmt.Sprint(cfg.GC.MaxSizeBytes),
	}
	if err := d.Fork(args); err != nil {
		fail("error starting gc daemon: %v", err)
	}
	fmt.Println("gc daemon started")
}

func runGCStop() {
	cfg, err := loadConfig()
	if err != nil {
		fail("error: %v", err)
	}

	d := gcdaemon.New(filepath.Dir(cfg.Database.Path))
	if err := d.Stop(); err != nil {
		fail("error stopping gc daemon: %v", err)
	}
	fmt.Println("gc daemon stopped")
}

func runGCStatus() {
	cfg, err := loadConfig()
	if err != nil {
		fail("error: %v", err)
	}

	d := gcdaemon.New(filepath.Dir(cfg.Database.Path))
	status := d.Status()
	if !status.Running {
		fmt.Println("gc daemon: not running")
		return
	}
	fmt.Printf("gc daemon: running (pid %d, uptime %s)\n", status.PID, status.Uptime.Round(time.Second))
	if !status.LastRunAt.IsZero() {
		fmt.Printf("  last run: %s (done=%v)\n", status.LastRunAt.Format(time.RFC3339), status.LastRunDone)
	}
	if status.LastRunError != "" {
		fmt.Printf("  last error: %s\n", status.LastRunError)
	}
}

func runGCDaemonChild() {
	cfg, err := loadConfig()
	if err != nil {
		fail("error: %v", err)
	}

	s, err := store.Open(cfg.Database.Path, cfg.Database.Memory)
	if err != nil {
		fail("error opening store: %v", err)
	}
	defer s.Close()

	d := gcdaemon.New(filepath.Dir(cfg.Database.Path))
	stop := make(chan struct{})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		close(stop)
	}()

	err = d.Run(gcdaemon.Params{
		Store:           s,
		DatabasePath:    cfg.Database.Path,
		IntervalSeconds: cfg.GC.IntervalSeconds,
		MinBlocks:       gcMinBlocks,
		MaxDuration:     gcMaxDuration,
		Targets:         store.GCTargets{MaxCount: gcMaxCount, MaxSize: gcMaxSize},
		Tracker:         resolveTracker(s),
		Stop:            stop,
	})
	if err != nil {
		fail("gc daemon error: %v", err)
	}
}
