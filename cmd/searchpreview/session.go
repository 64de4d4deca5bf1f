package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/searchpreview/internal/debuglog"
	"github.com/pders01/searchpreview/internal/event"
	"github.com/pders01/searchpreview/internal/storage"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect the stored analytics session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the live session id",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.Get(event.SessionKey)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			cmd.Println("no live session")
		case err != nil:
			return err
		default:
			cmd.Printf("session: %s\n", id)
		}

		last, err := store.LastPurge()
		if err == nil && !last.IsZero() {
			cmd.Printf("last purge: %s\n", last.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var sessionPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired entries from the session store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Purge()
		if err != nil {
			return fmt.Errorf("purging: %w", err)
		}
		cmd.Printf("removed %d expired entries\n", n)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd, sessionPurgeCmd)
}

func openSessionStore() (*storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	defer debuglog.Close()
	return storage.NewStore(cfg.Session.Path)
}
