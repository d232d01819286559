package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var aliasCmd = &cobra.Command{
	Use:   "alias <name> <hash>",
	Short: "Attach a durable name to a hash",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runAlias(args[0], args[1])
	},
}

var unaliasCmd = &cobra.Command{
	Use:   "unalias <name>",
	Short: "Remove a durable alias",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runUnalias(args[0])
	},
}

var reverseAliasCmd = &cobra.Command{
	Use:   "reverse-alias <hash>",
	Short: "List alias names attached to a hash or any of its ancestors",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runReverseAlias(args[0])
	},
}

func init() {
	rootCmd.AddCommand(aliasCmd)
	rootCmd.AddCommand(unaliasCmd)
	rootCmd.AddCommand(reverseAliasCmd)
}

func runAlias(name, hashHex string) {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	if err := s.Alias([]byte(name), decodeHash(hashHex)); err != nil {
		fail("error creating alias: %v", err)
	}
	fmt.Printf("aliased %q -> %s\n", name, hashHex)
}

func runUnalias(name string) {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	if err := s.Unalias([]byte(name)); err != nil {
		fail("error removing alias: %v", err)
	}
	fmt.Printf("removed alias %q\n", name)
}

func runReverseAlias(hashHex string) {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	entries, err := s.ReverseAlias(decodeHash(hashHex))
	if err != nil {
		fail("error: %v", err)
	}
	for _, e := range entries {
		if e.HasName {
			fmt.Println(string(e.Name))
		}
	}
}
