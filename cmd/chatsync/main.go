// Command chatsync is a terminal client for workspace chat.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/workspace-chat/backend/internal/config"
)

var version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Terminal client for workspace chat",
	Long: `chatsync joins a workspace on a chat relay, prints its history and
live messages, and sends every line typed on stdin.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().String("server", "", "relay base URL (overrides CHATSYNC_SERVER_URL)")
	rootCmd.PersistentFlags().String("user", "", "user id (overrides CHATSYNC_USER_ID)")
	rootCmd.PersistentFlags().String("name", "", "display name (overrides CHATSYNC_USER_NAME)")
	rootCmd.PersistentFlags().String("env-file", "", "dotenv file to load (default .env)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (config.Client, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := config.LoadDotEnv(files...); err != nil {
		return config.Client{}, err
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return cfg, err
	}
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		cfg.ServerURL = v
	}
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		cfg.UserID = v
	}
	if v, _ := cmd.Flags().GetString("name"); v != "" {
		cfg.UserName = v
	}
	if cfg.UserName == "" {
		cfg.UserName = cfg.UserID
	}
	return cfg, cfg.Validate()
}
