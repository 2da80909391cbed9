package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"claude_gateway/internal/config"
	"claude_gateway/internal/utils"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Claude proxy and usage-metering gateway",
	Long: "Proxies chat completions to one or more Claude-compatible endpoints, " +
		"applies stored prompts and model policies, and meters token usage per user, chat, model and day.",
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true
}

// loadConfig reads configuration and applies the configured log level to
// loggers created from here on.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	utils.SetDefaultLogLevel(utils.ParseLogLevel(cfg.LogLevel))
	return cfg, nil
}
