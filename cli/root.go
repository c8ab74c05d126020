package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pawlink/pawlink-chat/cli/config"
	"github.com/pawlink/pawlink-chat/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:     "pawlink",
	Short:   "PawLink adoption chat client",
	Long:    `Command-line client for PawLink pet adoption conversations: realtime chat with coordinators over WebSocket or SSE, with a polling fallback.`,
	Version: "1.0.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Before `pawlink init` there is no config; logging stays on stdout.
		cfg, err := config.Load()
		if err != nil {
			return
		}
		if err := setupFileLogging(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "log setup failed: %v\n", err)
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize local configuration",
	Long:  `Create the ~/.pawlink directory with a default config.yaml, data and log directories.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			printError(fmt.Sprintf("Failed to initialize config: %v", err))
			return err
		}
		path, _ := config.GetConfigPath()
		printSuccess("Configuration initialized")
		fmt.Printf("Config file: %s\n", path)
		fmt.Println("Next: pawlink auth register --username <name> --email <email>")
		return nil
	},
}

// setupFileLogging routes the structured logger to a JSON log file under the
// configured log directory, which is what the logs subcommands read.
func setupFileLogging(cfg *config.Config) error {
	if cfg.Logging.Path == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.Logging.Path, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(cfg.Logging.Path, "pawlink.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	logger.Init(parseLogLevel(cfg.Logging.Level), true, f)
	return nil
}

func parseLogLevel(s string) logger.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logger.DEBUG
	case "warn":
		return logger.WARN
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(systemCmd)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "✗ %s\n", msg)
}

func printSuccess(msg string) {
	fmt.Printf("✓ %s\n", msg)
}
