package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/comigor/dialchat-go/internal/config"
	"github.com/comigor/dialchat-go/internal/transcript"
)

func newTranscriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcript [session-id]",
		Short: "List recorded sessions, or print the messages of one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// no credentials needed here, so the config is read but not validated
			cfg, err := config.Read(cmd.Flags())
			if err != nil {
				return err
			}
			path := cfg.Transcript.DBPath
			if path == "" {
				return errors.New("no transcript database configured (--transcript-db)")
			}
			store := transcript.Open(path)
			defer store.Close()
			if !store.Persistent() {
				return fmt.Errorf("cannot open transcript database %s", path)
			}
			return printTranscript(cmd, store, args, cmd.OutOrStdout())
		},
	}
}

func printTranscript(cmd *cobra.Command, store *transcript.Store, args []string, out io.Writer) error {
	ctx := cmd.Context()
	if len(args) == 0 {
		sessions, err := store.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, id := range sessions {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	entries, err := store.List(ctx, args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no messages recorded for session %s", args[0])
	}
	for _, e := range entries {
		fmt.Fprintf(out, "[%s] %s (%s): %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Role, e.Deployment, e.Content)
	}
	return nil
}
