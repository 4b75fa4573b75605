package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/profile"
	"github.com/spf13/cobra"
)

var (
	profileFlag string
	jsonOut     bool
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Scriptable access to a chatline profile",
	Long: `chatctl talks to the chat backend of a chatline profile without the TUI.

It reads the same config.toml and profile .env as chatline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	rootCmd.AddCommand(historyCmd, sendCmd, uploadCmd, addFriendCmd, linkCmd, outboxCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// resolve returns the validated profile name and its effective config.
func resolve() (string, *config.Config, error) {
	name := profile.Resolve(profileFlag)
	if err := profile.ValidateName(name); err != nil {
		return "", nil, err
	}
	return name, profile.LoadConfig(name), nil
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
