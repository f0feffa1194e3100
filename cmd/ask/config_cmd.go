package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ask/internal/config"
)

func runConfig(cmd *cobra.Command, _ []string) error {
	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	return configure(cmd.InOrStdin(), cmd.OutOrStdout(), config.GlobalConfigPath(), list)
}

// configure prints the stored keys, or asks for new ones. Empty answers keep
// the stored value.
func configure(in io.Reader, out io.Writer, path string, list bool) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("cannot resolve home directory for config")
	}
	stored, err := config.ReadStoredKeys(path)
	if err != nil {
		return err
	}

	if list {
		fmt.Fprintf(out, "\nConfig at %s:\n\n", path)
		for _, line := range config.DescribeStored(stored) {
			fmt.Fprintf(out, "  %s\n", line)
		}
		return nil
	}

	reader := bufio.NewReader(in)
	openaiKey, err := ask(reader, out, "OpenAI API Key (press Enter to skip): ")
	if err != nil {
		return err
	}
	anthropicKey, err := ask(reader, out, "Anthropic API Key (press Enter to skip): ")
	if err != nil {
		return err
	}
	if err := config.WriteStoredKeys(path, config.StoredKeys{
		OpenAIAPIKey:    openaiKey,
		AnthropicAPIKey: anthropicKey,
	}); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved to %s\n", path)
	return nil
}

func ask(r *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
