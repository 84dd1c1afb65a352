package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// backfillConcurrency bounds parallel conversation fetches during export.
const backfillConcurrency = 4

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export chat history as JSONL",
	Long: `Export chat history as JSONL.

Refreshes the local archive from the server first (each conversation's full
history is fetched), then writes one JSON record per line: conversation
records followed by their messages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		purge, _ := cmd.Flags().GetBool("purge")
		offline, _ := cmd.Flags().GetBool("offline")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.archive == nil {
			return fmt.Errorf("local archive unavailable")
		}
		if purge {
			if err := a.archive.Purge(); err != nil {
				return fmt.Errorf("purging archive: %w", err)
			}
			printSuccess("Archive purged")
		}

		if !offline {
			if err := a.requireAuth(cmd.Context()); err != nil {
				return err
			}
			if err := backfill(cmd, a); err != nil {
				return err
			}
		}

		var writer *os.File
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		} else {
			writer = os.Stdout
		}

		enc := json.NewEncoder(writer)
		convs, err := a.archive.Conversations()
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		for _, c := range convs {
			if err := enc.Encode(map[string]any{"type": "conversation", "data": c}); err != nil {
				return err
			}
			msgs, err := a.archive.Messages(c.ID)
			if err != nil {
				return fmt.Errorf("reading messages of conversation %d: %w", c.ID, err)
			}
			for _, m := range msgs {
				if err := enc.Encode(map[string]any{"type": "message", "data": m}); err != nil {
					return err
				}
			}
		}

		if output != "" {
			printSuccess("History exported to %s", output)
		}
		return nil
	},
}

// backfill refreshes the archive from the server, fetching conversation
// histories with bounded concurrency.
func backfill(cmd *cobra.Command, a *app) error {
	convs, err := a.client.Conversations(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	if err := a.archive.ArchiveConversations(convs); err != nil {
		return fmt.Errorf("archiving conversations: %w", err)
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(backfillConcurrency)
	for _, conv := range convs {
		conv := conv
		g.Go(func() error {
			detail, err := a.client.Conversation(ctx, conv.ID)
			if err != nil {
				return fmt.Errorf("fetching conversation %d: %w", conv.ID, err)
			}
			return a.archive.ArchiveMessages(detail.Messages)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var total int
	for _, c := range convs {
		total += c.MessageCount
	}
	printStatus("Backfilled", "%d conversations (~%d messages)", len(convs), total)
	return nil
}

func init() {
	exportCmd.Flags().String("output", "", "output file path (default: stdout)")
	exportCmd.Flags().Bool("purge", false, "purge the local archive before exporting")
	exportCmd.Flags().Bool("offline", false, "export from the local archive without contacting the server")
}
