package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recomputeFlag bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report the stored block count and total payload size",
	Run: func(cmd *cobra.Command, args []string) {
		runStats()
	},
}

var integrityCheckCmd = &cobra.Command{
	Use:   "integrity-check",
	Short: "Run SQLite's integrity check plus the block store's own invariant checks",
	Run: func(cmd *cobra.Command, args []string) {
		runIntegrityCheck()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(integrityCheckCmd)

	statsCmd.Flags().BoolVar(&recomputeFlag, "recompute", false, "recompute stats from ground truth instead of reading the cached mirror")
}

func runStats() {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	if recomputeFlag {
		stats, err := s.RecomputeStats()
		if err != nil {
			fail("error recomputing stats: %v", err)
		}
		fmt.Printf("blocks: %d\nbytes:  %d\n", stats.Count, stats.Size)
		return
	}

	stats, err := s.StoreStats()
	if err != nil {
		fail("error reading stats: %v", err)
	}
	fmt.Printf("blocks: %d\nbytes:  %d\n", stats.Count, stats.Size)
}

func runIntegrityCheck() {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	diagnostics, err := s.IntegrityCheck()
	if err != nil {
		fail("error running integrity check: %v", err)
	}

	for _, d := range diagnostics {
		fmt.Println(d)
	}
	if len(diagnostics) != 1 || diagnostics[0] != "ok" {
		fail("integrity check found %d problem(s)", len(diagnostics))
	}
}
