package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imunoz/finsight/internal/config"
)

// --- session ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		var err error
		if email, err = promptIfEmpty(email, "Email: "); err != nil {
			return err
		}
		if password, err = promptIfEmpty(password, "Password: "); err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Login(cmd.Context(), email, password); err != nil {
			return fmt.Errorf("%s", a.session.Err())
		}
		user, _ := a.session.User()
		printSuccess("Signed in as %s (%s)", user.FullName, user.Role)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		fullName, _ := cmd.Flags().GetString("name")
		var err error
		if email, err = promptIfEmpty(email, "Email: "); err != nil {
			return err
		}
		if password, err = promptIfEmpty(password, "Password: "); err != nil {
			return err
		}
		if fullName, err = promptIfEmpty(fullName, "Full name: "); err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Register(cmd.Context(), email, password, fullName); err != nil {
			return fmt.Errorf("%s", a.session.Err())
		}
		user, _ := a.session.User()
		printSuccess("Account created; signed in as %s", user.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		a.session.Logout()
		printSuccess("Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireAuth(cmd.Context()); err != nil {
			return err
		}
		user, _ := a.session.User()
		printStatus("Email", "%s", user.Email)
		printStatus("Name", "%s", user.FullName)
		printStatus("Role", "%s", user.Role)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringP("email", "e", "", "account email")
	loginCmd.Flags().StringP("password", "p", "", "account password")
	registerCmd.Flags().StringP("email", "e", "", "account email")
	registerCmd.Flags().StringP("password", "p", "", "account password")
	registerCmd.Flags().StringP("name", "n", "", "full name")
}

func promptIfEmpty(val, prompt string) (string, error) {
	if val != "" {
		return val, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("value is required")
	}
	return line, nil
}

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convs"},
	Short:   "Browse conversation history",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireAuth(cmd.Context()); err != nil {
			return err
		}
		if err := a.chat.LoadConversations(cmd.Context()); err != nil {
			return fmt.Errorf("%s", a.chat.Err())
		}

		convs := a.chat.Conversations()
		if len(convs) == 0 {
			fmt.Println("No conversations yet.")
			return nil
		}
		for _, c := range convs {
			title := c.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s  (%d messages, updated %s)\n",
				styleCyan.apply(fmt.Sprintf("#%d", c.ID)),
				title, c.MessageCount, c.UpdatedAt)
		}
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid conversation id %q", args[0])
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireAuth(cmd.Context()); err != nil {
			return err
		}
		if err := a.chat.LoadConversation(cmd.Context(), id); err != nil {
			return fmt.Errorf("%s", a.chat.Err())
		}
		for _, m := range a.chat.Messages() {
			printMessage(m.Role, m.Content)
		}
		return nil
	},
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
}

func printMessage(role, content string) {
	label := role
	switch role {
	case "user":
		label = styleBold.apply("you")
	case "assistant":
		label = styleGreen.apply("assistant")
	}
	fmt.Printf("%s> %s\n", label, content)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", styleBold.apply(k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
