package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockvault/blockvault/internal/store"
)

var (
	putPayloadFile string
	putLinks       []string
	putSession     string
)

var putCmd = &cobra.Command{
	Use:   "put <hash>",
	Short: "Store a block",
	Long: `Store a block under its hash, with an optional payload and an
ordered set of child link hashes. Putting an already-stored block is a
no-op on its payload and links, but still attaches a transient pin if
--session is given.

Examples:
  blockvault put a1b2c3 --payload-file block.bin --link d4e5f6 --link 112233
  blockvault put a1b2c3 --payload-file block.bin --session 9f86d0`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPut(args[0])
	},
}

var getCmd = &cobra.Command{
	Use:   "get <hash>",
	Short: "Retrieve a block's payload",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runGet(args[0])
	},
}

var hasCmd = &cobra.Command{
	Use:   "has <hash>",
	Short: "Report whether a block's payload is stored locally",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runHas(args[0])
	},
}

var descendantsCmd = &cobra.Command{
	Use:   "descendants <hash>",
	Short: "List the reflexive-transitive closure of a hash's links",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDescendants(args[0])
	},
}

var missingCmd = &cobra.Command{
	Use:   "missing <hash>",
	Short: "List descendant hashes with no stored payload",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runMissing(args[0])
	},
}

var listHashesCmd = &cobra.Command{
	Use:   "list-hashes",
	Short: "List every interned hash, whether or not it has a stored payload",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runListHashes()
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(hasCmd)
	rootCmd.AddCommand(descendantsCmd)
	rootCmd.AddCommand(missingCmd)
	rootCmd.AddCommand(listHashesCmd)

	putCmd.Flags().StringVar(&putPayloadFile, "payload-file", "", "path to the block's payload (required unless the block is already stored)")
	putCmd.Flags().StringSliceVar(&putLinks, "link", nil, "hex hash of a child block (repeatable)")
	putCmd.Flags().StringVar(&putSession, "session", "", "session token from open-session to attach a transient pin")
}

func decodeHash(s string) []byte {
	h, err := hex.DecodeString(s)
	if err != nil {
		fail("invalid hash %q: %v", s, err)
	}
	return h
}

func runPut(hashHex string) {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	hash := decodeHash(hashHex)
	links := make([][]byte, len(putLinks))
	for i, l := range putLinks {
		links[i] = decodeHash(l)
	}

	var payload []byte
	if putPayloadFile != "" {
		payload, err = os.ReadFile(putPayloadFile)
		if err != nil {
			fail("error reading payload file: %v", err)
		}
	}

	var pin *store.PinHandle
	if putSession != "" {
		pin = sessionHandle(putSession)
	}

	if _, err := s.PutBlock(hash, payload, links, pin); err != nil {
		fail("error storing block: %v", err)
	}

	if putSession != "" {
		persistSessionHandle(putSession, pin)
	}

	fmt.Printf("stored %s (%d bytes, %d links)\n", hashHex, len(payload), len(links))
}

func runGet(hashHex string) {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	_, payload, found, err := s.GetBlock(decodeHash(hashHex))
	if err != nil {
		fail("error retrieving block: %v", err)
	}
	if !found {
		fail("block %s has no stored payload", hashHex)
	}
	os.Stdout.Write(payload)
}

func runHas(hashHex string) {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	has, err := s.HasBlock(decodeHash(hashHex))
	if err != nil {
		fail("error: %v", err)
	}
	if has {
		fmt.Println("true")
	} else {
		fmt.Println("false")
		os.Exit(1)
	}
}

func runDescendants(hashHex string) {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	hashes, err := s.GetDescendants(decodeHash(hashHex))
	if err != nil {
		fail("error: %v", err)
	}
	for _, h := range hashes {
		fmt.Println(hex.EncodeToString(h))
	}
}

func runMissing(hashHex string) {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	hashes, err := s.GetMissingBlocks(decodeHash(hashHex))
	if err != nil {
		fail("error: %v", err)
	}
	for _, h := range hashes {
		fmt.Println(hex.EncodeToString(h))
	}
}

func runListHashes() {
	s, _, err := openStore()
	if err != nil {
		fail("error: %v", err)
	}
	defer s.Close()

	hashes, err := s.ListHashes()
	if err != nil {
		fail("error: %v", err)
	}
	for _, h := range hashes {
		fmt.Println(hex.EncodeToString(h))
	}
}
