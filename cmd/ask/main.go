// Command ask is a terminal chat client for Claude and GPT with shell, SSH and
// task automation helpers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ask",
	Short: "Chat with an LLM from your terminal",
	Long: `ask is an interactive chat client for Anthropic and OpenAI models.

Inside a chat session the assistant can read files and web pages, suggest and
run shell commands locally or over SSH, and author reusable tasks.

Run without arguments to start a chat session.`,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
	RunE:         runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat [text...]",
	Short: "Start an interactive chat session",
	Long: `Starts an interactive chat session. Any text given on the command line is
sent as the first message.

Examples:
  ask chat
  ask chat how do I flatten a list in go`,
	RunE: runChat,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Set up or show the stored API keys",
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config JSON/JSONC")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	configCmd.Flags().Bool("list", false, "Print current settings")

	rootCmd.AddCommand(chatCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
