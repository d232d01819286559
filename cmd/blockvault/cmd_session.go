package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blockvault/blockvault/internal/store"
)

// sessionState is what's persisted on disk for one open-session token: a
// transient pin's PinId, assigned lazily by the first put --session call
// that uses the token (see store.ExistingPinHandle).
type sessionState struct {
	PinID int64 `json:"pin_id"`
}

var openSessionCmd = &cobra.Command{
	Use:   "open-session",
	Short: "Start a transient pin session and print its token",
	Long: `Start a transient pin session. The returned token identifies a
PinHandle that survives across separate blockvault invocations (each
CLI invocation is its own process): pass it to "put --session" to keep
blocks alive until "close-session" releases it, or until the process
crashes, in which case the pin is purged the next time the store is
opened.`,
	Run: func(cmd *cobra.Command, args []string) {
		runOpenSession()
	},
}

var closeSessionCmd = &cobra.Command{
	Use:   "close-session <token>",
	Short: "Release a transient pin session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCloseSession(args[0])
	},
}

func init() {
	rootCmd.AddCommand(openSessionCmd)
	rootCmd.AddCommand(closeSessionCmd)
}

func sessionDir() string {
	cfg, err := loadConfig()
	if err != nil {
		fail("error: %v", err)
	}
	return filepath.Join(filepath.Dir(cfg.Database.Path), "sessions")
}

func sessionPath(token string) string {
	return filepath.Join(sessionDir(), token+".json")
}

func runOpenSession() {
	token := uuid.NewString()

	if err := os.MkdirAll(sessionDir(), 0755); err != nil {
		fail("error creating session directory: %v", err)
	}

	data, err := json.Marshal(sessionState{})
	if err != nil {
		fail("error: %v", err)
	}
	if err := os.WriteFile(sessionPath(token), data, 0644); err != nil {
		fail("error writing session file: %v", err)
	}

	fmt.Println(token)
}

func runCloseSession(token string) {
	path := sessionPath(token)
	data, err := os.ReadFile(path)
	if err != nil {
		fail("unknown session token %q: %v", token, err)
	}

	var state sessionState
	if err := json.Unmarshal(data, &state); err != nil {
		fail("error reading session state: %v", err)
	}

	if state.PinID != 0 {
		s, _, err := openStore()
		if err != nil {
			fail("error: %v", err)
		}
		defer s.Close()

		if err := s.DeleteTempPin(state.PinID); err != nil {
			fail("error releasing session pins: %v", err)
		}
	}

	if err := os.Remove(path); err != nil {
		fail("error removing session file: %v", err)
	}
	fmt.Printf("closed session %s\n", token)
}

// sessionHandle loads token's persisted PinHandle, to be used for one
// PutBlock call. The caller must call persistSessionHandle afterwards to
// persist any PinId the call assigned.
func sessionHandle(token string) *store.PinHandle {
	path := sessionPath(token)
	data, err := os.ReadFile(path)
	if err != nil {
		fail("unknown session token %q: %v", token, err)
	}

	var state sessionState
	if err := json.Unmarshal(data, &state); err != nil {
		fail("error reading session state: %v", err)
	}

	handle := store.ExistingPinHandle(state.PinID)
	sessionHandles[token] = path
	return handle
}

// sessionHandles tracks the file path each in-flight session token maps
// to, so the put command can persist the handle's PinId after the store
// call that may have assigned it.
var sessionHandles = map[string]string{}

func persistSessionHandle(token string, handle *store.PinHandle) {
	path, ok := sessionHandles[token]
	if !ok {
		return
	}
	data, err := json.Marshal(sessionState{PinID: handle.ID()})
	if err != nil {
		fail("error: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		fail("error persisting session state: %v", err)
	}
}
