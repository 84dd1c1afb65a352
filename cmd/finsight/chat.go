package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imunoz/finsight/internal/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Talk to the analytics assistant",
	Long: `Talk to the analytics assistant.

With arguments, sends a single message and prints the reply:
  finsight chat how did storage costs trend last quarter?

Without arguments, starts an interactive session:
  finsight chat
  finsight chat --conversation 5

Interactive commands: /new (start a fresh conversation), /list
(list conversations), /switch <id>, /quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, _ := cmd.Flags().GetInt("conversation")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireAuth(cmd.Context()); err != nil {
			return err
		}
		if convID != 0 {
			if err := a.chat.SetCurrentConversation(cmd.Context(), convID); err != nil {
				return fmt.Errorf("%s", a.chat.Err())
			}
		}

		if len(args) > 0 {
			return sendOnce(cmd.Context(), a, strings.Join(args, " "))
		}
		return runRepl(cmd.Context(), a)
	},
}

func init() {
	chatCmd.Flags().IntP("conversation", "c", 0, "resume the given conversation")
}

func sendOnce(ctx context.Context, a *app, message string) error {
	if err := a.chat.SendMessage(ctx, message); err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			return err
		}
		return fmt.Errorf("%s", a.chat.Err())
	}
	msgs := a.chat.Messages()
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		printMessage(last.Role, last.Content)
	}
	return nil
}

func runRepl(ctx context.Context, a *app) error {
	if id := a.chat.CurrentConversation(); id != 0 {
		for _, m := range a.chat.Messages() {
			printMessage(m.Role, m.Content)
		}
		printStatus("Conversation", "#%d", id)
	} else {
		fmt.Fprintln(os.Stderr, "Starting a new conversation. Type /quit to exit.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for {
		fmt.Fprint(os.Stderr, styleBold.apply("you> "))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading input: %w", err)
			}
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := replCommand(ctx, a, line)
			if err != nil {
				printError("%v", err)
			}
			if done {
				return nil
			}
			continue
		}

		if err := a.chat.SendMessage(ctx, line); err != nil {
			// The optimistic entry is already rolled back; the typed text is
			// echoed so the user can recover it.
			printError("%s", a.chat.Err())
			printStatus("Unsent", "%s", line)
			continue
		}
		msgs := a.chat.Messages()
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			printMessage(last.Role, last.Content)
		}
	}
}

func replCommand(ctx context.Context, a *app, line string) (done bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		a.chat.NewConversation()
		fmt.Fprintln(os.Stderr, "Started a fresh conversation.")
		return false, nil
	case "/list":
		if err := a.chat.LoadConversations(ctx); err != nil {
			return false, fmt.Errorf("%s", a.chat.Err())
		}
		for _, c := range a.chat.Conversations() {
			fmt.Fprintf(os.Stderr, "  #%d  %s (%d messages)\n", c.ID, c.Title, c.MessageCount)
		}
		return false, nil
	case "/switch":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /switch <id>")
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return false, fmt.Errorf("invalid conversation id %q", fields[1])
		}
		if err := a.chat.SetCurrentConversation(ctx, id); err != nil {
			return false, fmt.Errorf("%s", a.chat.Err())
		}
		for _, m := range a.chat.Messages() {
			printMessage(m.Role, m.Content)
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}
